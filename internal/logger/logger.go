package logger

import (
	"errors"
	"fmt"
	"sync"
)

// global holds the process-wide logger; nil until Init
var global struct {
	sync.RWMutex
	logger Logger
}

// Init builds a logger from config and installs it process-wide.
// It fails if a logger is already installed; call Shutdown first.
func Init(config Config) error {
	l, err := NewSlogLogger(config)
	if err != nil {
		return fmt.Errorf("failed to create slog logger: %w", err)
	}

	global.Lock()
	defer global.Unlock()
	if global.logger != nil {
		_ = l.Shutdown()
		return errors.New("logger already initialized; call Shutdown() before re-initializing")
	}
	global.logger = l
	return nil
}

// Get returns the process-wide logger, or a NullLogger before Init
func Get() Logger {
	global.RLock()
	defer global.RUnlock()
	if global.logger == nil {
		return &NullLogger{}
	}
	return global.logger
}

// With returns a child of the process-wide logger carrying args on every line
func With(args ...any) Logger {
	return Get().With(args...)
}

// Sync flushes the process-wide logger
func Sync() error {
	return Get().Sync()
}

// Shutdown uninstalls and closes the process-wide logger. Safe to call twice.
func Shutdown() error {
	global.Lock()
	l := global.logger
	global.logger = nil
	global.Unlock()

	if l == nil {
		return nil
	}
	// Outside the lock: closing may log through Get()
	return l.Shutdown()
}

// NullLogger discards everything
type NullLogger struct{}

func (n *NullLogger) Debug(msg string, args ...any) {}
func (n *NullLogger) Info(msg string, args ...any)  {}
func (n *NullLogger) Warn(msg string, args ...any)  {}
func (n *NullLogger) Error(msg string, args ...any) {}
func (n *NullLogger) With(args ...any) Logger       { return n }
func (n *NullLogger) Sync() error                   { return nil }
func (n *NullLogger) Shutdown() error               { return nil }
