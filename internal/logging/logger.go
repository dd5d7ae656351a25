// Package logging builds the zap loggers used by the client and the
// sandbox server.
package logging

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures a logger.
type Options struct {
	// File is the log file path. Empty means stderr.
	File string
	// Debug enables debug level output.
	Debug bool
	// MaxSizeMB is the size at which the file is rotated.
	MaxSizeMB int
	// MaxBackups is how many rotated files are kept.
	MaxBackups int
	// MaxAgeDays is how long rotated files are kept.
	MaxAgeDays int
}

// New builds a console-encoded SugaredLogger. File output rotates through
// lumberjack. The returned closer flushes and closes the file.
func New(opts Options) (*zap.SugaredLogger, io.Closer) {
	var ws zapcore.WriteSyncer
	var closer io.Closer = nopCloser{}
	if opts.File != "" {
		lj := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    orDefault(opts.MaxSizeMB, 10),
			MaxBackups: orDefault(opts.MaxBackups, 3),
			MaxAge:     orDefault(opts.MaxAgeDays, 7),
		}
		ws = zapcore.AddSync(lj)
		closer = lj
	} else {
		ws = zapcore.Lock(os.Stderr)
	}

	level := zapcore.InfoLevel
	if opts.Debug {
		level = zapcore.DebugLevel
	}

	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig()), ws, level)
	logger := zap.New(core, zap.AddCaller()).Sugar()
	return logger, syncCloser{logger: logger, next: closer}
}

// Nop returns a logger that discards everything.
func Nop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:       "ts",
		LevelKey:      "level",
		NameKey:       "logger",
		CallerKey:     "caller",
		MessageKey:    "msg",
		StacktraceKey: "stack",
		LineEnding:    zapcore.DefaultLineEnding,
		EncodeLevel:   zapcore.CapitalLevelEncoder,
		EncodeTime:    zapcore.ISO8601TimeEncoder,
		EncodeCaller:  zapcore.ShortCallerEncoder,
	}
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

type syncCloser struct {
	logger *zap.SugaredLogger
	next   io.Closer
}

func (c syncCloser) Close() error {
	_ = c.logger.Sync()
	return c.next.Close()
}
