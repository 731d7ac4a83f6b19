// Package export writes optimizer plans as JSON or CSV.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/kilianp07/eosbridge/core/model"
)

// Format selects the output encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// ParseFormat accepts json or csv, case-insensitively. Empty means JSON.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case "", FormatJSON:
		return FormatJSON, nil
	case FormatCSV:
		return FormatCSV, nil
	}
	return "", fmt.Errorf("unknown format %q", s)
}

// Write encodes plan in format f.
func Write(w io.Writer, f Format, plan *model.Plan) error {
	if f == FormatCSV {
		return WriteCSV(w, plan)
	}
	return WriteJSON(w, plan)
}

// WriteJSON writes the plan to w in JSON format.
func WriteJSON(w io.Writer, plan *model.Plan) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(plan)
}

// WriteCSV writes one row per slot. Optional values are left empty when the
// optimizer did not report them.
func WriteCSV(w io.Writer, plan *model.Plan) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"start", "mode", "ac_charge_w", "dc_charge_w", "discharge_allowed", "soc_percent", "grid_import_wh", "grid_export_wh", "cost_eur"}); err != nil {
		return err
	}
	if plan != nil {
		for _, s := range plan.Slots {
			rec := []string{
				s.Start.Format(time.RFC3339),
				s.Mode().String(),
				formatFloat(s.ACChargeW),
				formatFloat(s.DCChargeW),
				strconv.FormatBool(s.DischargeAllowed),
				optional(s.SOCPercent),
				optional(s.GridImportWh),
				optional(s.GridExportWh),
				optional(s.CostEUR),
			}
			if err := cw.Write(rec); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

func optional(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}
