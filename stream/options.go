package stream

import (
	"sync/atomic"

	"github.com/kbukum/streamkit/logger"
)

// ErrorSink receives failures that are contained at a stream boundary,
// such as a panicking listener. Implementations must be safe for
// concurrent use.
type ErrorSink interface {
	ReportError(stream string, err error)
}

// ErrorSinkFunc adapts a function to ErrorSink.
type ErrorSinkFunc func(stream string, err error)

// ReportError calls f.
func (f ErrorSinkFunc) ReportError(stream string, err error) { f(stream, err) }

// LogSink reports contained failures through the "stream" component logger.
var LogSink ErrorSink = ErrorSinkFunc(func(stream string, err error) {
	logger.Get("stream").Warn("contained stream failure", logger.ErrorFields(stream, err))
})

var defaultSink atomic.Pointer[ErrorSink]

// SetDefaultErrorSink sets the sink used by streams created without
// WithErrorSink. Passing nil restores LogSink.
func SetDefaultErrorSink(sink ErrorSink) {
	if sink == nil {
		defaultSink.Store(nil)
		return
	}
	defaultSink.Store(&sink)
}

// DefaultErrorSink returns the process default sink.
func DefaultErrorSink() ErrorSink {
	if p := defaultSink.Load(); p != nil {
		return *p
	}
	return LogSink
}

// Option configures a stream.
type Option func(*options)

type options struct {
	name string
	sink ErrorSink
}

// WithName names the stream for logs and errors.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithErrorSink routes contained failures of this stream to sink.
func WithErrorSink(sink ErrorSink) Option {
	return func(o *options) { o.sink = sink }
}

func applyOptions(opts []Option) options {
	o := options{name: "stream"}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// derivedOptions names a derived stream after its upstream and inherits its
// sink; explicit opts win.
func derivedOptions[T any](up *Stream[T], suffix string, opts []Option) []Option {
	base := []Option{WithName(up.name + "." + suffix)}
	if up.sink != nil {
		base = append(base, WithErrorSink(up.sink))
	}
	return append(base, opts...)
}
