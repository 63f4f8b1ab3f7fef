// Package logger builds the process-wide slog logger on top of zap.
package logger

import (
	"log/slog"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/exp/zapslog"
	"go.uber.org/zap/zapcore"
)

// New returns a slog logger backed by zap and the function that flushes it.
// "development" (or "dev") selects the colored console encoder; anything
// else gets zap's production JSON config.
func New(env string) (*slog.Logger, func() error) {
	var zapLogger *zap.Logger

	switch strings.ToLower(env) {
	case "development", "dev":
		config := zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapLogger = zap.Must(config.Build())
	default:
		zapLogger = zap.Must(zap.NewProduction())
	}

	return slog.New(zapslog.NewHandler(zapLogger.Core())), zapLogger.Sync
}
