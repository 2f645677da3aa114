package engine

import "time"

// Logger is the logging surface the manager needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// Recorder receives manager metrics.
type Recorder interface {
	RecordMemoryOperation(operation, memoryType string, duration time.Duration, err error)
	RecordRetrievalStrategy(strategy string, err error)
	RecordConsolidation(duration time.Duration, err error)
	SetWorkingMessages(n int)
}

type nopRecorder struct{}

func (nopRecorder) RecordMemoryOperation(string, string, time.Duration, error) {}
func (nopRecorder) RecordRetrievalStrategy(string, error)                      {}
func (nopRecorder) RecordConsolidation(time.Duration, error)                   {}
func (nopRecorder) SetWorkingMessages(int)                                     {}
