package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is a logrus logger that also owns its rotating file sink.
type Logger struct {
	*logrus.Logger
	file *lumberjack.Logger
}

// New builds a JSON logger writing to stdout and to a rotating <dir>/<service>.log.
// An empty dir disables the file sink.
func New(service, dir, level string) (*Logger, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", level, err)
	}

	l := logrus.New()
	l.SetLevel(lvl)
	l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"})

	out := &Logger{Logger: l}
	var w io.Writer = os.Stdout
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
		out.file = &lumberjack.Logger{
			Filename:   filepath.Join(dir, service+".log"),
			MaxSize:    50, // megabytes
			MaxBackups: 5,
			MaxAge:     14, // days
		}
		w = io.MultiWriter(os.Stdout, out.file)
	}
	l.SetOutput(w)

	return out, nil
}

// Close flushes and closes the rotating file, if any.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}
