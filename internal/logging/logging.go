// Package logging builds the prefixed *log.Logger values that components
// take in their constructors. All loggers from one Factory share a writer:
// stderr, plus a size-rotated file when one is configured.
package logging

import (
	"io"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/opendatath/catalog/internal/config"
)

// Factory hands out component loggers.
type Factory struct {
	out  io.Writer
	file *lumberjack.Logger
}

// New creates a Factory. With an empty cfg.File it writes to stderr only.
func New(cfg config.LogConfig) (*Factory, error) {
	return NewWithWriter(os.Stderr, cfg)
}

// NewWithWriter is New with a custom console writer.
func NewWithWriter(console io.Writer, cfg config.LogConfig) (*Factory, error) {
	if cfg.File == "" {
		return &Factory{out: console}, nil
	}
	if dir := filepath.Dir(cfg.File); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}
	file := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
	}
	return &Factory{out: io.MultiWriter(console, file), file: file}, nil
}

// Discard returns a Factory whose loggers drop everything.
func Discard() *Factory {
	return &Factory{out: io.Discard}
}

// Logger returns a logger for component, prefixed "[component] ".
func (f *Factory) Logger(component string) *log.Logger {
	return log.New(f.out, "["+component+"] ", log.LstdFlags)
}

// Writer returns the shared destination.
func (f *Factory) Writer() io.Writer {
	return f.out
}

// Close closes the log file, if any.
func (f *Factory) Close() error {
	if f.file == nil {
		return nil
	}
	return f.file.Close()
}
