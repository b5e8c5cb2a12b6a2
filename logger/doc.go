// Package logger provides structured logging for streamkit using zerolog.
//
// Core packages log through component loggers obtained with Get:
//
//	log := logger.Get("stream")
//	log.Warn("listener panicked", logger.Fields("stream", name))
//
// Call Init (or SetGlobalLogger) before creating streams to route those
// component loggers to a configured output.
package logger
