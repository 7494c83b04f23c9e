// Package logging builds the process-wide zerolog logger.
package logging

import (
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options controls where log lines go.
type Options struct {
	// Development switches stdout to the human readable console writer.
	Development bool
	// File, when set, additionally writes JSON lines to a rotating file.
	File  string
	Level zerolog.Level
	// Stdout overrides os.Stdout, mostly for tests.
	Stdout io.Writer
}

// New returns a timestamped logger. The caller owns the returned closer and
// must close it on shutdown to flush the rotating file.
func New(opts Options) (zerolog.Logger, io.Closer, error) {
	out := opts.Stdout
	if out == nil {
		out = os.Stdout
	}
	if opts.Development {
		out = zerolog.ConsoleWriter{Out: out}
	}

	var closer io.Closer = nopCloser{}
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			return zerolog.Nop(), nil, err
		}
		fileWriter := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		}
		out = zerolog.MultiLevelWriter(out, fileWriter)
		closer = fileWriter
	}

	logger := zerolog.New(out).Level(opts.Level).With().Timestamp().Logger()
	return logger, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
