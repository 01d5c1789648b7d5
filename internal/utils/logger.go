package utils

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/benmeehan/device-hub/internal/constants"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// NewLogger builds the process logger from the logging section. Output goes
// to stdout, or to a size-rotated file when a file is configured.
func NewLogger(config *Config) (zerolog.Logger, io.Closer, error) {
	level, err := zerolog.ParseLevel(config.Logging.Level)
	if err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("invalid log level %q: %w", config.Logging.Level, err)
	}
	zerolog.TimeFieldFormat = time.RFC3339Nano

	var out io.Writer = os.Stdout
	var closer io.Closer = nopCloser{}
	if config.Logging.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   config.Logging.File,
			MaxSize:    config.Logging.MaxSizeMB,
			MaxBackups: config.Logging.MaxBackups,
			MaxAge:     config.Logging.MaxAgeDays,
			Compress:   config.Logging.Compress,
		}
		out = rotator
		closer = rotator
	}

	logger := zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		Str("service", constants.DefaultServiceName).
		Logger()
	return logger, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
