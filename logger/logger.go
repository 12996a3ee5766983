package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/warp/yield-pacing/config"
)

// New builds a JSON logger for production or format=json, a colored console
// logger otherwise. Unknown levels fall back to info.
func New(cfg *config.LoggingConfig, app *config.AppConfig) (*zap.Logger, error) {
	var zapCfg zap.Config
	if cfg.Format == "json" || app.Environment == "production" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	zapCfg.InitialFields = map[string]interface{}{
		"app":         app.Name,
		"environment": app.Environment,
	}

	logger, err := zapCfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return logger, nil
}

// WithRequest adds request fields for the development server.
func WithRequest(logger *zap.Logger, method, path, requestID string) *zap.Logger {
	return logger.With(
		zap.String("method", method),
		zap.String("path", path),
		zap.String("request_id", requestID),
	)
}

// WithAdvisor tags a logger with the signed-in advisor.
func WithAdvisor(logger *zap.Logger, advisorID, name string) *zap.Logger {
	return logger.With(
		zap.String("advisor_id", advisorID),
		zap.String("advisor_name", name),
	)
}
