// Package logging wraps zap into the tagged, component-scoped logger used
// throughout this module, following the house pattern of one structured
// logger built once at startup and handed to every component via
// constructor injection rather than a package-level global.
package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the sugared logging interface every package depends on. It is
// satisfied by *zap.SugaredLogger directly so production code never
// imports zap itself outside this package.
type Logger interface {
	Debugw(msg string, keysAndValues ...interface{})
	Infow(msg string, keysAndValues ...interface{})
	Warnw(msg string, keysAndValues ...interface{})
	Errorw(msg string, keysAndValues ...interface{})
	With(args ...interface{}) *zap.SugaredLogger
	Sync() error
}

// New builds the process-wide logger. env selects the encoder: "production"
// gets JSON output and an info default level, anything else gets
// human-readable console output and a debug default level. LOG_LEVEL, if
// set, overrides the default.
func New(env string) (*zap.SugaredLogger, error) {
	var cfg zap.Config
	if env == "production" {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.DisableStacktrace = true

	if val, ok := os.LookupEnv("LOG_LEVEL"); ok {
		var lvl zapcore.Level
		if err := lvl.Set(val); err == nil {
			cfg.Level = zap.NewAtomicLevelAt(lvl)
		}
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}

// Component returns a child logger tagged with a "component" field, the
// convention every constructor in this module uses instead of ad hoc
// string prefixes.
func Component(base *zap.SugaredLogger, name string) *zap.SugaredLogger {
	return base.With("component", name)
}

// Noop returns a logger that discards everything, used by tests and by
// callers that don't want logging overhead.
func Noop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
