// Package logger provides the zerolog backed component loggers. Configure
// sets the level and output once at startup; New returns a logger tagged
// with a component field.
package logger

import corelogger "github.com/kilianp07/eosbridge/core/logger"

type Logger = corelogger.Logger

// NopLogger discards everything. Tests use it where output is irrelevant.
type NopLogger struct{}

func (NopLogger) Debugf(string, ...any)            {}
func (NopLogger) Debugw(string, corelogger.Fields) {}
func (NopLogger) Infof(string, ...any)             {}
func (NopLogger) Warnf(string, ...any)             {}
func (NopLogger) Errorf(string, ...any)            {}

// New returns the logger of component.
func New(component string) Logger { return NewZerologLogger(component) }
