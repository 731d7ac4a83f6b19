package forecast

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/eosbridge/core/model"
)

// FixedProvider returns a constant value for every step in the window.
type FixedProvider struct {
	Value float64
	Step  time.Duration
}

// Points implements Provider.
func (f FixedProvider) Points(_ context.Context, from, to time.Time) ([]model.Point, error) {
	step := f.Step
	if step <= 0 {
		step = 15 * time.Minute
	}
	var pts []model.Point
	for t := from; t.Before(to); t = t.Add(step) {
		pts = append(pts, model.Point{Time: t, Value: f.Value})
	}
	return pts, nil
}

// fileDoc is the on-disk layout of a static series file. Either explicit
// points or a daily profile with one value per hour may be given.
type fileDoc struct {
	Points []model.Point `yaml:"points"`
	// Daily repeats 24 hourly values for every day in the window.
	Daily []float64 `yaml:"daily"`
	Scale float64   `yaml:"scale"`
}

// FileProvider reads a YAML or JSON series file on every call so edits are
// picked up without a restart.
type FileProvider struct {
	Path string
}

// Points implements Provider.
func (f FileProvider) Points(_ context.Context, from, to time.Time) ([]model.Point, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.Path, err)
	}
	var doc fileDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", f.Path, err)
	}
	scale := doc.Scale
	if scale == 0 {
		scale = 1
	}
	var pts []model.Point
	for _, p := range doc.Points {
		if p.Time.Before(from) || !p.Time.Before(to) {
			continue
		}
		pts = append(pts, model.Point{Time: p.Time, Value: p.Value * scale})
	}
	if len(doc.Daily) > 0 {
		if len(doc.Daily) != 24 {
			return nil, fmt.Errorf("%s: daily profile needs 24 values, got %d", f.Path, len(doc.Daily))
		}
		for t := from.Truncate(time.Hour); t.Before(to); t = t.Add(time.Hour) {
			if t.Before(from) {
				continue
			}
			pts = append(pts, model.Point{Time: t, Value: doc.Daily[t.Hour()] * scale})
		}
	}
	sort.Slice(pts, func(i, j int) bool { return pts[i].Time.Before(pts[j].Time) })
	return pts, nil
}
