package registry

import "github.com/platinummonkey/deptree/pkg/observability"

// leveledLogger adapts observability.Logger to retryablehttp.LeveledLogger
type leveledLogger struct {
	logger *observability.Logger
}

func (l leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.With(keysAndValues...).Error(msg)
}

func (l leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.With(keysAndValues...).Info(msg)
}

// retryablehttp logs every attempt at debug level
func (l leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.logger.With(keysAndValues...).Debug(msg)
}

func (l leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.logger.With(keysAndValues...).Warn(msg)
}
