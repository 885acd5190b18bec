// Package logging builds the connector framework's structured logger from
// the logical processing.log_level configuration field, using
// go.uber.org/zap the way the rest of the retrieval pack's production
// services do. Tracing/logging backend selection is the binary's
// responsibility per spec §9 ("No global state"), so New is called once
// from cmd/connector/main.go and threaded through by reference, never
// reached for via a package-level global.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a production zap.Logger at the given logical level ("debug",
// "info", "warn", "error"), defaulting to info on an unrecognized value.
func New(level string) (*zap.Logger, error) {
	zapLevel, err := parseLevel(level)
	if err != nil {
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("logging: failed to build zap logger: %w", err)
	}
	return logger, nil
}

func parseLevel(level string) (zapcore.Level, error) {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return zapcore.InfoLevel, err
	}
	return l, nil
}
