package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kkkkikiki/promotion/internal/config"
)

// New builds the process logger. Production emits JSON on stdout, everything else uses
// the zap development encoder.
func New(cfg *config.Config) *zap.Logger {
	level := zapcore.InfoLevel
	if cfg != nil {
		if parsed, err := zapcore.ParseLevel(cfg.App.LogLevel); err == nil {
			level = parsed
		}
		if cfg.App.Debug {
			level = zapcore.DebugLevel
		}
	}

	var log *zap.Logger
	if cfg != nil && cfg.App.IsProduction() {
		config := zap.NewProductionConfig()
		config.Level = zap.NewAtomicLevelAt(level)
		config.EncoderConfig.TimeKey = "timestamp"
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		config.EncoderConfig.StacktraceKey = "stacktrace"
		config.EncoderConfig.LevelKey = "severity"
		config.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		config.EncoderConfig.CallerKey = "caller"
		config.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
		config.Encoding = "json"
		config.OutputPaths = []string{"stdout"}
		config.ErrorOutputPaths = []string{"stderr"}

		var err error
		log, err = config.Build()
		if err != nil {
			panic(err)
		}
	} else {
		config := zap.NewDevelopmentConfig()
		config.Level = zap.NewAtomicLevelAt(level)
		log = zap.Must(config.Build())
	}

	if cfg != nil {
		log = log.With(
			zap.String("env", cfg.App.Environment),
			zap.String("service_name", cfg.App.Name),
		)
	}

	zap.ReplaceGlobals(log)

	return log
}
