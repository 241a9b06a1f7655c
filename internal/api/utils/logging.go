package utils

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/gorm/logger"
)

var (
	loggerOnce sync.Once
	rootLogger *zap.Logger
)

// GetLogger returns the process-wide zap logger. The level comes from
// the LOG_LEVEL environment variable (debug, silent, default info).
func GetLogger() *zap.Logger {
	loggerOnce.Do(func() {
		level := zapcore.InfoLevel
		if os.Getenv("LOG_LEVEL") == "debug" {
			level = zapcore.DebugLevel
		}

		encoderConfig := zapcore.EncoderConfig{
			TimeKey:        "time",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.LowercaseLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		}

		core := zapcore.NewCore(
			zapcore.NewJSONEncoder(encoderConfig),
			zapcore.AddSync(os.Stdout),
			level,
		)

		rootLogger = zap.New(core,
			zap.AddCaller(),
			zap.AddStacktrace(zapcore.ErrorLevel),
		)
	})
	return rootLogger
}

// GetGormLogger returns the GORM logger used by the report archive,
// backed by the same zap logger as everything else.
func GetGormLogger() logger.Interface {
	level := logger.Warn
	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		level = logger.Info
	case "silent":
		level = logger.Silent
	}

	return logger.New(
		zapWriter{logger: GetLogger().Sugar()},
		logger.Config{
			LogLevel:                  level,
			IgnoreRecordNotFoundError: true,
		},
	)
}

// zapWriter adapts the zap sugared logger to gorm's logger.Writer.
type zapWriter struct {
	logger *zap.SugaredLogger
}

func (w zapWriter) Printf(message string, data ...interface{}) {
	w.logger.Debugf(message, data...)
}
