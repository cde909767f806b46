package logger

import (
	"os"

	"backend-postboard/internal/config"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var buildConfig = func(c zap.Config) (*zap.Logger, error) { return c.Build() }

var fallbackOut zapcore.WriteSyncer = os.Stderr

// New builds the process logger from config. Unknown levels fall back to info.
func New(cfg config.Config) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if cfg.LogLevel != "" {
		if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
			level = zapcore.InfoLevel
		}
	}

	zcfg := zap.NewProductionConfig()
	if cfg.LogDevelopment {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	return buildConfig(zcfg)
}

// Must is New for process bootstrap. If the configured logger cannot be built
// it reports the error and keeps logging as JSON on stderr.
func Must(cfg config.Config) *zap.Logger {
	l, err := New(cfg)
	if err == nil {
		return l
	}
	encoder := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	fallback := zap.New(zapcore.NewCore(encoder, zapcore.Lock(fallbackOut), zapcore.InfoLevel))
	fallback.Error("logger config rejected, falling back to stderr", zap.Error(err))
	return fallback
}
