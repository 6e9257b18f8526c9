package log

import (
	"ddnsguard/config"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	defaultMaxSizeMB  = 1
	defaultMaxBackups = 5
)

// NewRotatingCore writes entries to a size-rotated file. Encoding follows
// zap.Config, "console" or anything else meaning JSON.
func NewRotatingCore(c config.LogFile, encoding string, encCfg zapcore.EncoderConfig, level zapcore.LevelEnabler) (zapcore.Core, *lumberjack.Logger) {
	w := &lumberjack.Logger{
		Filename:   c.Path,
		MaxSize:    c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
		MaxAge:     c.MaxAgeDays,
		Compress:   c.Compress,
	}

	if w.MaxSize <= 0 {
		w.MaxSize = defaultMaxSizeMB
	}

	if w.MaxBackups <= 0 {
		w.MaxBackups = defaultMaxBackups
	}

	var enc zapcore.Encoder
	if encoding == "console" {
		enc = zapcore.NewConsoleEncoder(encCfg)
	} else {
		enc = zapcore.NewJSONEncoder(encCfg)
	}

	return zapcore.NewCore(enc, zapcore.AddSync(w), level), w
}

// TeeFile returns a zap option duplicating every entry into the rotating file.
func TeeFile(c config.LogFile, zc zap.Config) (zap.Option, func() error) {
	core, w := NewRotatingCore(c, zc.Encoding, zc.EncoderConfig, zc.Level)
	return zap.WrapCore(func(upstream zapcore.Core) zapcore.Core {
		return zapcore.NewTee(upstream, core)
	}), w.Close
}
