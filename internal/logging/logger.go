// Package logging provides zap logger construction shared by the
// orchestrator and worker processes.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a zap.Logger configured for development or production use.
// Development mode gets colorized level output and a friendlier encoder;
// production mode emits structured JSON suitable for log aggregation.
func New(development bool) (*zap.Logger, error) {
	if development {
		cfg := zap.NewDevelopmentConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		logger, err := cfg.Build()
		if err != nil {
			return nil, fmt.Errorf("build dev logger: %w", err)
		}
		return logger, nil
	}
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "ts"
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build prod logger: %w", err)
	}
	return logger, nil
}

// WithFields is a small helper for attaching run-scoped fields (run ID,
// worker index) that every component logs consistently.
func WithFields(logger *zap.Logger, fields ...zap.Field) *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return logger.With(fields...)
}

// bootstrap is used for messages logged before a run's own logger (built
// from resolved --development config) exists, such as config-file
// discovery in cmd's cobra.OnInitialize hook (initConfig).
var bootstrap = zap.NewNop()

// Bootstrap installs the process-wide bootstrap logger. Call once from
// main before command execution.
func Bootstrap(logger *zap.Logger) {
	if logger != nil {
		bootstrap = logger
	}
}

// Default returns the bootstrap logger.
func Default() *zap.Logger { return bootstrap }
