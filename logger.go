package biflow

import "go.uber.org/zap"

// DefaultLogger is a no-op logger implementation
type DefaultLogger struct{}

// Debug implements Logger.Debug
func (l *DefaultLogger) Debug(format string, args ...interface{}) {}

// Info implements Logger.Info
func (l *DefaultLogger) Info(format string, args ...interface{}) {}

// Warn implements Logger.Warn
func (l *DefaultLogger) Warn(format string, args ...interface{}) {}

// Error implements Logger.Error
func (l *DefaultLogger) Error(format string, args ...interface{}) {}

// NewDefaultLogger creates a new default no-op logger
func NewDefaultLogger() Logger {
	return &DefaultLogger{}
}

// ZapLogger adapts a zap logger to the pipeline Logger interface.
type ZapLogger struct {
	sugar *zap.SugaredLogger
}

// NewZapLogger creates a pipeline Logger backed by the given zap logger.
func NewZapLogger(l *zap.Logger) *ZapLogger {
	return &ZapLogger{sugar: l.Sugar()}
}

// Debug implements Logger.Debug
func (l *ZapLogger) Debug(format string, args ...interface{}) { l.sugar.Debugf(format, args...) }

// Info implements Logger.Info
func (l *ZapLogger) Info(format string, args ...interface{}) { l.sugar.Infof(format, args...) }

// Warn implements Logger.Warn
func (l *ZapLogger) Warn(format string, args ...interface{}) { l.sugar.Warnf(format, args...) }

// Error implements Logger.Error
func (l *ZapLogger) Error(format string, args ...interface{}) { l.sugar.Errorf(format, args...) }
