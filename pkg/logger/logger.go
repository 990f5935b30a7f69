// Package logger, uygulama genelinde kullanılan zap logger'ını kurar.
//
// Kurulumdan sonra logger zap.ReplaceGlobals ile global yapılır;
// paketler zap.S() (sugared) üzerinden log yazar:
//
//	zap.S().Infow("[chat] message sent", "chat_id", chatID)
//
// Mesajlardaki "[bileşen]" prefix'i (ws, chat, circle, presence...) log'ları
// bileşen bazında filtrelemeyi kolaylaştırır.
package logger

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New, verilen seviye ile logger oluşturur ve global logger olarak kaydeder.
//
// development=true → renkli console encoder, stack trace warn seviyesinden.
// development=false → JSON encoder (log toplayıcılar için).
func New(level string, development bool) (*zap.Logger, error) {
	lvl, err := parseLevel(level)
	if err != nil {
		return nil, err
	}

	var cfg zap.Config
	if development {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	zap.ReplaceGlobals(logger)
	return logger, nil
}

func parseLevel(level string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "", "info":
		return zapcore.InfoLevel, nil
	case "debug":
		return zapcore.DebugLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", level)
	}
}
