package logger

import (
	"time"
)

// Standard field keys used by streamkit packages.
const (
	FieldComponent     = "component"
	FieldStream        = "stream"
	FieldListeners     = "listeners"
	FieldStrategy      = "strategy"
	FieldPolicy        = "policy"
	FieldCapacity      = "capacity"
	FieldIndex         = "index"
	FieldRoute         = "route"
	FieldCorrelationID = "correlation_id"
	FieldClientID      = "client_id"
	FieldError         = "error"
	FieldDuration      = "duration_ms"
)

// Fields builds a map[string]interface{} from alternating key-value pairs.
//
//	logger.Info("evicted", logger.Fields("stream", name, "count", n))
func Fields(kvs ...interface{}) map[string]interface{} {
	m := make(map[string]interface{}, len(kvs)/2)
	for i := 0; i < len(kvs)-1; i += 2 {
		if key, ok := kvs[i].(string); ok {
			m[key] = kvs[i+1]
		}
	}
	return m
}

// ErrorFields creates fields for a failure on a named stream.
func ErrorFields(stream string, err error) map[string]interface{} {
	return map[string]interface{}{
		FieldStream: stream,
		FieldError:  err.Error(),
	}
}

// DurationFields creates fields for a timed operation.
func DurationFields(op string, d time.Duration) map[string]interface{} {
	return map[string]interface{}{
		"operation":   op,
		FieldDuration: d.Milliseconds(),
	}
}
