package homeassistant

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/kilianp07/eosbridge/core/model"
)

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
}

func parseTime(v any, loc *time.Location) (time.Time, bool) {
	s, ok := v.(string)
	if !ok {
		return time.Time{}, false
	}
	for _, l := range timeLayouts {
		if t, err := time.ParseInLocation(l, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// firstOf returns the value of the first key present in m.
func firstOf(m map[string]any, keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// listPoints parses a list of objects carrying a time key and a value key.
func listPoints(raw any, timeKeys, valueKeys []string, loc *time.Location) []model.Point {
	list, ok := raw.([]any)
	if !ok {
		return nil
	}
	var pts []model.Point
	for _, e := range list {
		m, ok := e.(map[string]any)
		if !ok {
			continue
		}
		tv, ok := firstOf(m, timeKeys...)
		if !ok {
			continue
		}
		t, ok := parseTime(tv, loc)
		if !ok {
			continue
		}
		vv, ok := firstOf(m, valueKeys...)
		if !ok {
			continue
		}
		v, ok := toFloat(vv)
		if !ok {
			continue
		}
		pts = append(pts, model.Point{Time: t, Value: v})
	}
	return pts
}

// dictPoints parses a timestamp to value map.
func dictPoints(raw any, loc *time.Location) []model.Point {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil
	}
	var pts []model.Point
	for k, vv := range m {
		t, ok := parseTime(k, loc)
		if !ok {
			continue
		}
		if v, ok := toFloat(vv); ok {
			pts = append(pts, model.Point{Time: t, Value: v})
		}
	}
	sortPoints(pts)
	return pts
}

func sortPoints(pts []model.Point) {
	sort.Slice(pts, func(i, j int) bool { return pts[i].Time.Before(pts[j].Time) })
}

// ParsePVForecast extracts forecast points from the attributes of a PV
// forecast entity. Solcast, generic forecast lists and Forecast.Solar style
// dictionaries are recognised. Values are returned unscaled.
func ParsePVForecast(attrs map[string]any, loc *time.Location) []model.Point {
	for _, key := range []string{"DetailedForecast", "detailedHourly", "detailed_forecast"} {
		if raw, ok := attrs[key]; ok {
			if pts := listPoints(raw, []string{"period_start"}, []string{"pv_estimate", "pv_estimate50"}, loc); len(pts) > 0 {
				return pts
			}
		}
	}
	if raw, ok := attrs["forecast"]; ok {
		pts := listPoints(raw,
			[]string{"period_start", "datetime", "start", "time"},
			[]string{"pv_estimate", "power", "watt_hours", "value"}, loc)
		if len(pts) > 0 {
			return pts
		}
	}
	for _, key := range []string{"watt_hours", "watts"} {
		if pts := dictPoints(attrs[key], loc); len(pts) > 0 {
			return pts
		}
	}
	return nil
}

// ParsePrices extracts price points in EUR/kWh. Tibber, Nordpool and ENTSO-E
// attribute layouts are recognised; now anchors Nordpool hourly lists.
func ParsePrices(attrs map[string]any, now time.Time) []model.Point {
	loc := now.Location()
	if pts := listPoints(attrs["prices"], []string{"from", "startsAt", "start"}, []string{"price", "total", "value"}, loc); len(pts) > 0 {
		return pts
	}

	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	var pts []model.Point
	for day, keys := range [][]string{{"raw_today", "prices_today", "today"}, {"raw_tomorrow", "prices_tomorrow", "tomorrow"}} {
		raw, ok := firstOf(attrs, keys...)
		if !ok {
			continue
		}
		pts = append(pts, nordpoolDay(raw, midnight.AddDate(0, 0, day))...)
	}
	if len(pts) > 0 {
		sortPoints(pts)
		return pts
	}

	if pts := listPoints(attrs["data"], []string{"time", "start", "datetime"}, []string{"price", "value"}, loc); len(pts) > 0 {
		for i := range pts {
			// ENTSO-E publishes EUR/MWh.
			if pts[i].Value > 1 {
				pts[i].Value /= 1000
			}
		}
		return pts
	}
	return nil
}

func nordpoolDay(raw any, midnight time.Time) []model.Point {
	list, ok := raw.([]any)
	if !ok || len(list) == 0 {
		return nil
	}
	if pts := listPoints(raw, []string{"start"}, []string{"value", "price"}, midnight.Location()); len(pts) > 0 {
		return pts
	}
	step := 24 * time.Hour / time.Duration(len(list))
	var pts []model.Point
	for i, e := range list {
		if v, ok := toFloat(e); ok {
			pts = append(pts, model.Point{Time: midnight.Add(time.Duration(i) * step), Value: v})
		}
	}
	return pts
}

// hourly spreads a single current value over [from, to).
func hourly(v float64, from, to time.Time) []model.Point {
	var pts []model.Point
	for t := from.Truncate(time.Hour); t.Before(to); t = t.Add(time.Hour) {
		pts = append(pts, model.Point{Time: t, Value: v})
	}
	return pts
}

func scale(pts []model.Point, f float64) []model.Point {
	if f == 1 {
		return pts
	}
	for i := range pts {
		pts[i].Value *= f
	}
	return pts
}

// PVProvider reads the PV forecast from an entity. Values are multiplied by
// the configured scale to obtain W.
type PVProvider struct {
	client *Client
	entity string
	scale  float64
}

// NewPVProvider returns a provider for entity.
func NewPVProvider(c *Client, entity string, scale float64) *PVProvider {
	if scale == 0 {
		scale = 1
	}
	return &PVProvider{client: c, entity: entity, scale: scale}
}

// Points implements forecast.Provider. Without forecast attributes the current
// state is used for the first hour and zero afterwards.
func (p *PVProvider) Points(ctx context.Context, from, to time.Time) ([]model.Point, error) {
	st, err := p.client.State(ctx, p.entity)
	if err != nil {
		return nil, fmt.Errorf("pv forecast %s: %w", p.entity, err)
	}
	if pts := ParsePVForecast(st.Attributes, from.Location()); len(pts) > 0 {
		return scale(pts, p.scale), nil
	}
	v, err := numericState(st)
	if err != nil {
		return nil, fmt.Errorf("pv forecast %s: %w", p.entity, err)
	}
	pts := hourly(0, from, to)
	if len(pts) > 0 {
		pts[0].Value = v
	}
	return scale(pts, p.scale), nil
}

// PriceProvider reads electricity prices from an entity.
type PriceProvider struct {
	client *Client
	entity string
	scale  float64
	now    func() time.Time
}

// NewPriceProvider returns a provider for entity.
func NewPriceProvider(c *Client, entity string, scale float64) *PriceProvider {
	if scale == 0 {
		scale = 1
	}
	return &PriceProvider{client: c, entity: entity, scale: scale, now: time.Now}
}

// Points implements forecast.Provider. Without price attributes the current
// price is repeated over the window.
func (p *PriceProvider) Points(ctx context.Context, from, to time.Time) ([]model.Point, error) {
	st, err := p.client.State(ctx, p.entity)
	if err != nil {
		return nil, fmt.Errorf("prices %s: %w", p.entity, err)
	}
	if pts := ParsePrices(st.Attributes, p.now().In(from.Location())); len(pts) > 0 {
		return scale(pts, p.scale), nil
	}
	v, err := numericState(st)
	if err != nil {
		return nil, fmt.Errorf("prices %s: %w", p.entity, err)
	}
	return scale(hourly(v, from, to), p.scale), nil
}

// LoadProvider reads the household load history of a power sensor in W.
type LoadProvider struct {
	client *Client
	entity string
}

// NewLoadProvider returns a provider for entity.
func NewLoadProvider(c *Client, entity string) *LoadProvider {
	return &LoadProvider{client: c, entity: entity}
}

// Points implements forecast.Provider. Unavailable history entries are
// skipped.
func (p *LoadProvider) Points(ctx context.Context, from, to time.Time) ([]model.Point, error) {
	hist, err := p.client.History(ctx, p.entity, from, to)
	if err != nil {
		return nil, fmt.Errorf("load history %s: %w", p.entity, err)
	}
	pts := make([]model.Point, 0, len(hist))
	for _, st := range hist {
		v, err := numericState(st)
		if err != nil {
			continue
		}
		t := st.LastChanged
		if t.IsZero() {
			t = st.LastUpdated
		}
		pts = append(pts, model.Point{Time: t, Value: v})
	}
	if len(pts) == 0 {
		return nil, fmt.Errorf("load history %s: no numeric states", p.entity)
	}
	sortPoints(pts)
	return pts, nil
}
