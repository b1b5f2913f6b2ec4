package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// Logs is the read side of an observed logger, used by tests to assert on emitted entries.
type Logs interface {
	Len() int
	All() []observer.LoggedEntry
	FilterMessage(msg string) *observer.ObservedLogs
	TakeAll() []observer.LoggedEntry
}

var _ Logs = (*observer.ObservedLogs)(nil)

// NewObserverLogger creates a logger that records every entry at or above level in memory.
// An unparsable level falls back to debug.
func NewObserverLogger(level string) (*ZapLogger, Logs) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		lvl = zap.NewAtomicLevelAt(zap.DebugLevel)
	}

	core, logs := observer.New(lvl)
	return &ZapLogger{Logger: zap.New(core)}, logs
}
