package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps zap.Logger for the client and its CLI. Output always goes to
// stderr so it never mixes with a host application's stdout.
type Logger struct {
	*zap.Logger
}

// Config selects the level and the encoding. Development switches to a
// colored console encoder with stack traces on warnings.
type Config struct {
	Level       string
	Development bool
}

// New builds a logger; an unknown level is an error
func New(cfg Config) (*Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, err
	}

	zapCfg := zap.NewProductionConfig()
	if cfg.Development {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zapCfg.EncoderConfig = encoderConfig(cfg.Development)
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	zapCfg.OutputPaths = []string{"stderr"}
	zapCfg.Sampling = nil

	logger, err := zapCfg.Build()
	if err != nil {
		return nil, err
	}
	return &Logger{Logger: logger.Named("tracekit")}, nil
}

// NewNop returns a logger that discards everything
func NewNop() *Logger {
	return &Logger{Logger: zap.NewNop()}
}

// FromLevel builds a logger for level. An empty level means info; an
// unknown one falls back to info with a warning.
func FromLevel(level string, development bool) *Logger {
	if level == "" {
		level = "info"
	}
	logger, err := New(Config{Level: level, Development: development})
	if err == nil {
		return logger
	}

	logger, fallbackErr := New(Config{Level: "info", Development: development})
	if fallbackErr != nil {
		return NewNop()
	}
	logger.Warn("invalid log level, using info", zap.String("level", level), zap.Error(err))
	return logger
}

// Component returns a named child logger for one subsystem
func (l *Logger) Component(name string) *zap.Logger {
	return l.Logger.Named(name)
}

func encoderConfig(development bool) zapcore.EncoderConfig {
	if development {
		ec := zap.NewDevelopmentEncoderConfig()
		ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return ec
	}

	ec := zap.NewProductionEncoderConfig()
	ec.TimeKey = "timestamp"
	ec.MessageKey = "message"
	ec.EncodeTime = zapcore.ISO8601TimeEncoder
	ec.EncodeDuration = zapcore.MillisDurationEncoder
	return ec
}
