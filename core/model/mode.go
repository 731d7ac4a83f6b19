package model

import (
	"fmt"
	"strconv"
	"strings"
)

// Mode is the operating mode requested from the battery inverter.
type Mode int

const (
	// ModeAuto defers to the current plan slot.
	ModeAuto Mode = iota
	ModeChargeFromGrid
	ModeAvoidDischarge
	ModeDischargeAllowed
)

// modeInfo is the boundary encoding of a Mode: the numeric value used by
// inverters and Home Assistant entities, the display name and the key used in
// configuration and API payloads.
type modeInfo struct {
	value int
	name  string
	key   string
}

var modeTable = map[Mode]modeInfo{
	ModeAuto:             {value: -2, name: "Auto", key: "auto"},
	ModeChargeFromGrid:   {value: 0, name: "Charge from Grid", key: "charge_from_grid"},
	ModeAvoidDischarge:   {value: 1, name: "Avoid Discharge", key: "avoid_discharge"},
	ModeDischargeAllowed: {value: 2, name: "Discharge Allowed", key: "discharge_allowed"},
}

// Modes lists all modes in display order.
func Modes() []Mode {
	return []Mode{ModeAuto, ModeChargeFromGrid, ModeAvoidDischarge, ModeDischargeAllowed}
}

// String returns the configuration key of the mode.
func (m Mode) String() string {
	if info, ok := modeTable[m]; ok {
		return info.key
	}
	return "unknown"
}

// DisplayName returns the human readable name of the mode.
func (m Mode) DisplayName() string {
	if info, ok := modeTable[m]; ok {
		return info.name
	}
	return "Unknown"
}

// Value returns the numeric inverter encoding of the mode.
func (m Mode) Value() int {
	if info, ok := modeTable[m]; ok {
		return info.value
	}
	return -99
}

// Valid reports whether m is one of the defined modes.
func (m Mode) Valid() bool {
	_, ok := modeTable[m]
	return ok
}

// ModeFromValue maps a numeric inverter value back to a Mode.
func ModeFromValue(v int) (Mode, error) {
	for m, info := range modeTable {
		if info.value == v {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown mode value %d", v)
}

// ParseMode accepts a key ("charge_from_grid"), a display name
// ("Charge from Grid") or a numeric value ("0").
func ParseMode(s string) (Mode, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty mode")
	}
	if v, err := strconv.Atoi(s); err == nil {
		return ModeFromValue(v)
	}
	norm := strings.ToLower(strings.NewReplacer(" ", "_", "-", "_").Replace(s))
	for m, info := range modeTable {
		if info.key == norm || strings.EqualFold(info.name, s) {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown mode %q", s)
}

// MarshalText encodes the mode as its key.
func (m Mode) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("invalid mode %d", int(m))
	}
	return []byte(m.String()), nil
}

// UnmarshalText decodes any representation accepted by ParseMode.
func (m *Mode) UnmarshalText(b []byte) error {
	v, err := ParseMode(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// ModeForSlot derives the mode implied by a plan slot.
func ModeForSlot(acChargeW float64, dischargeAllowed bool) Mode {
	switch {
	case acChargeW > 0:
		return ModeChargeFromGrid
	case !dischargeAllowed:
		return ModeAvoidDischarge
	default:
		return ModeDischargeAllowed
	}
}
