package logging

import "go.uber.org/zap"

// New builds the process-wide JSON logger. Constructed once in main and
// injected; packages never reach for a global logger.
func New(service string) *zap.Logger {
	l := zap.Must(zap.NewProduction())
	return l.With(zap.String("service", service))
}
