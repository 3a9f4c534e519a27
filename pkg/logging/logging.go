// Package logging builds the structured logger every component receives
// by injection rather than through a package-level singleton, so tests
// and alternate entrypoints can supply their own without touching global
// state.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a console-encoded, stderr-only *zap.SugaredLogger. debug
// lowers the level to Debug; otherwise the daemon logs at Info.
func New(debug bool) *zap.SugaredLogger {
	level := zapcore.InfoLevel
	if debug {
		level = zapcore.DebugLevel
	}

	cfg := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       false,
		DisableStacktrace: true,
		Encoding:          "console",
		EncoderConfig:     zap.NewDevelopmentEncoderConfig(),
		OutputPaths:       []string{"stderr"},
		ErrorOutputPaths:  []string{"stderr"},
	}

	logger, err := cfg.Build()
	if err != nil {
		panic(fmt.Errorf("logging: failed to initialize logger: %v", err))
	}
	return logger.Sugar()
}
