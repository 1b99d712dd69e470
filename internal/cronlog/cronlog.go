// Package cronlog adapts zap to the logger interface of robfig/cron.
package cronlog

import (
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Logger adapts zap.Logger to cron.Logger. Routine cron messages are
// logged at debug level.
type Logger struct {
	logger *zap.Logger
}

var _ cron.Logger = (*Logger)(nil)

// New creates a cron logger writing to logger
func New(logger *zap.Logger) *Logger {
	return &Logger{logger: logger}
}

// Info implements cron.Logger
func (l *Logger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, zap.Any("details", keysAndValues))
}

// Error implements cron.Logger
func (l *Logger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, zap.Error(err), zap.Any("details", keysAndValues))
}
