package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a sugared zap logger, JSON in production and colored console
// output otherwise, selected by GO_ENV.
func New() *zap.SugaredLogger {
	var cfg zap.Config

	if os.Getenv("GO_ENV") == "production" {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "ts"
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	log, err := cfg.Build()
	if err != nil {
		panic("logger init failed: " + err.Error())
	}
	return log.Sugar()
}
