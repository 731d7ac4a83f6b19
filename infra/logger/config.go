package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls the log level and an optional rotating log file.
type Config struct {
	Level string `json:"level"`
	// File receives a copy of every log line when set.
	File       string `json:"file"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.MaxSizeMB == 0 {
		c.MaxSizeMB = 20
	}
	if c.MaxBackups == 0 {
		c.MaxBackups = 3
	}
}

// Validate checks the level.
func (c Config) Validate() error {
	if _, err := zerolog.ParseLevel(strings.ToLower(c.Level)); err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	return nil
}

var (
	outMu  sync.RWMutex
	output io.Writer = os.Stdout
	file   *lumberjack.Logger
)

func currentOutput() io.Writer {
	outMu.RLock()
	defer outMu.RUnlock()
	return output
}

// Configure applies cfg to loggers created afterwards. It returns a function
// closing the log file.
func Configure(cfg Config) (func() error, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := SetLevel(cfg.Level); err != nil {
		return nil, err
	}
	outMu.Lock()
	defer outMu.Unlock()
	if file != nil {
		_ = file.Close()
		file = nil
	}
	output = os.Stdout
	if cfg.File == "" {
		return func() error { return nil }, nil
	}
	file = &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
	}
	output = io.MultiWriter(os.Stdout, file)
	lj := file
	return lj.Close, nil
}
