package engine

import "time"

// Option is a functional option for configuring the AgenticMemoryManager.
type Option func(*AgenticMemoryManager)

// WithLogger sets the logger for the manager.
func WithLogger(logger Logger) Option {
	return func(m *AgenticMemoryManager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithRecorder sets the metrics recorder for the manager.
func WithRecorder(recorder Recorder) Option {
	return func(m *AgenticMemoryManager) {
		if recorder != nil {
			m.recorder = recorder
		}
	}
}

// WithClock overrides the time source of the manager and its engines.
func WithClock(now func() time.Time) Option {
	return func(m *AgenticMemoryManager) {
		if now != nil {
			m.now = now
		}
	}
}
