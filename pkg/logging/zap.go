package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapConfig controls the zap backend used by the daemon.
type ZapConfig struct {
	Level       string // debug, info, warn, error
	Development bool   // console encoder with colors when true
}

// NewZapBackend builds a zap SugaredLogger according to config and returns
// both the logger (for flushing on exit) and the LogFuncs adapter for
// NewLogger.
func NewZapBackend(config ZapConfig) (*zap.SugaredLogger, LogFuncs, error) {
	var zapConfig zap.Config
	if config.Development {
		zapConfig = zap.NewDevelopmentConfig()
	} else {
		zapConfig = zap.NewProductionConfig()
		zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	level, err := zapcore.ParseLevel(config.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}
	zapConfig.Level = zap.NewAtomicLevelAt(level)

	zapLogger, err := zapConfig.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, LogFuncs{}, err
	}

	sugar := zapLogger.Sugar()
	funcs := LogFuncs{
		Debugf: sugar.Debugf,
		Infof:  sugar.Infof,
		Warnf:  sugar.Warnf,
		Errorf: sugar.Errorf,
	}
	return sugar, funcs, nil
}
