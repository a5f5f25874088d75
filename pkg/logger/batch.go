package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewBatchLogger builds a zap sugared logger for the batch back-end.
//
// Batch runners are long-lived external processes invoked once per job
// rather than once per request. With format "json" the logger uses zap's
// production config, whose sampling core keeps log volume bounded across a
// historical-sync run touching thousands of items; any other format uses
// zap's development config, which does not sample.
func NewBatchLogger(level, format string) (*zap.SugaredLogger, error) {
	var cfg zap.Config
	if format == "json" {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(parseZapLevel(level))

	core, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return core.Sugar(), nil
}

func parseZapLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
