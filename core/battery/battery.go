// Package battery defines the seam for reading live battery state.
package battery

import (
	"context"
	"errors"

	"github.com/kilianp07/eosbridge/core/model"
)

// ErrUnavailable is returned when the state of charge cannot be read or is
// not a number.
var ErrUnavailable = errors.New("battery sensor unavailable")

// Reader returns the current battery state.
type Reader interface {
	ReadBattery(ctx context.Context) (model.BatteryState, error)
}

// ReaderFunc adapts a function to Reader.
type ReaderFunc func(ctx context.Context) (model.BatteryState, error)

// ReadBattery implements Reader.
func (f ReaderFunc) ReadBattery(ctx context.Context) (model.BatteryState, error) { return f(ctx) }
