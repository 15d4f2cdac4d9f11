// Package logger builds the process-wide logrus logger.
package logger

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/iliyamo/hotel-reservation/internal/config"
)

// New returns a logger for cfg.  Production logs are JSON; other
// environments use the text formatter.  When cfg.Log.File is set the output
// is also written to a size-rotated file, and the returned closer must be
// closed on shutdown.
func New(cfg config.Config) (*logrus.Logger, io.Closer) {
	l := logrus.New()
	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)
	if cfg.IsProd() {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	if cfg.Log.File == "" {
		l.SetOutput(os.Stdout)
		return l, nopCloser{}
	}
	rotate := &lumberjack.Logger{
		Filename:   cfg.Log.File,
		MaxSize:    cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAgeDays,
		LocalTime:  true,
	}
	l.SetOutput(io.MultiWriter(os.Stdout, rotate))
	if err != nil {
		l.WithField("level", cfg.Log.Level).Warn("logger: unknown LOG_LEVEL, using info")
	}
	return l, rotate
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
