package logger

import (
	"sync"
)

// registry caches component loggers derived from the global logger.
var registry = &loggerRegistry{
	loggers: make(map[string]*Logger),
}

type loggerRegistry struct {
	mu      sync.Mutex
	loggers map[string]*Logger
}

// Register stores a named logger in the registry.
func Register(name string, l *Logger) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.loggers[name] = l
}

// Get retrieves a named logger. Unregistered names get the global logger
// tagged with the component name, cached for later calls.
func Get(name string) *Logger {
	registry.mu.Lock()
	l, ok := registry.loggers[name]
	registry.mu.Unlock()
	if ok {
		return l
	}
	l = GetGlobalLogger().WithComponent(name)
	Register(name, l)
	return l
}
