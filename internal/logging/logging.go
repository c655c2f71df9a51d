package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

const timestampFormat = "2006-01-02 15:04:05"

// Logger writes leveled logs to stdout and a rotating file.
type Logger struct {
	*logrus.Logger
	file *lumberjack.Logger
}

func New(dir, level string) (*Logger, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create logs folder failed: %v", err)
	}
	file := &lumberjack.Logger{
		Filename:   filepath.Join(dir, "alert-buddy.log"),
		MaxSize:    50, // megabytes
		MaxBackups: 7,
		MaxAge:     28, // days
		Compress:   true,
	}
	// Output to both file and console
	l, err := newLogger(io.MultiWriter(file, os.Stdout), level)
	if err != nil {
		return nil, err
	}
	l.file = file
	return l, nil
}

// NewWithWriter builds a Logger that only writes to w.
func NewWithWriter(w io.Writer, level string) *Logger {
	l, err := newLogger(w, level)
	if err != nil {
		l, _ = newLogger(w, "info")
	}
	return l
}

func newLogger(w io.Writer, level string) (*Logger, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	base := logrus.New()
	base.SetOutput(w)
	base.SetLevel(lvl)
	base.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: timestampFormat,
		DisableColors:   true,
	})
	return &Logger{Logger: base}, nil
}

// WithRequestID tags entries with the request or alert id they belong to.
func (l *Logger) WithRequestID(requestID string) *logrus.Entry {
	return l.WithField("request_id", requestID)
}

func (l *Logger) Close() {
	if l.file == nil {
		return
	}
	err := l.file.Close()
	if err != nil {
		return
	}
}
