package observability

import (
	"context"

	"github.com/kbukum/streamkit/errors"
	"github.com/kbukum/streamkit/logger"
)

// Sink is a stream.ErrorSink that logs contained failures and counts them
// when metrics are configured.
type Sink struct {
	log     *logger.Logger
	metrics *Metrics
}

// NewSink creates a sink. metrics may be nil.
func NewSink(metrics *Metrics) *Sink {
	return &Sink{log: logger.Get("stream"), metrics: metrics}
}

// ReportError implements stream.ErrorSink.
func (s *Sink) ReportError(stream string, err error) {
	code := errors.CodeOf(err)
	fields := logger.ErrorFields(stream, err)
	fields["code"] = string(code)
	s.log.Warn("contained stream failure", fields)
	if s.metrics != nil {
		s.metrics.RecordStreamError(context.Background(), stream, code)
	}
}
