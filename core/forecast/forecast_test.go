package forecast

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/eosbridge/core/model"
	"github.com/kilianp07/eosbridge/infra/logger"
)

var t0 = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

func hourly(values ...float64) []model.Point {
	pts := make([]model.Point, len(values))
	for i, v := range values {
		pts[i] = model.Point{Time: t0.Add(time.Duration(i) * time.Hour), Value: v}
	}
	return pts
}

func TestResampleAveragesWithinSlot(t *testing.T) {
	pts := []model.Point{
		{Time: t0, Value: 100},
		{Time: t0.Add(30 * time.Minute), Value: 300},
		{Time: t0.Add(time.Hour), Value: 50},
	}
	ts, err := Resample(pts, ResampleOptions{Start: t0, Interval: time.Hour, Slots: 2})
	require.NoError(t, err)
	assert.Equal(t, []float64{200, 50}, ts.Values)
}

func TestResampleForwardFillsBoundedGap(t *testing.T) {
	pts := []model.Point{{Time: t0, Value: 0.25}, {Time: t0.Add(3 * time.Hour), Value: 0.3}}
	ts, err := Resample(pts, ResampleOptions{Start: t0, Interval: time.Hour, Slots: 4, MaxGap: 2})
	require.NoError(t, err)
	assert.Equal(t, []float64{0.25, 0.25, 0.25, 0.3}, ts.Values)
}

func TestResampleRejectsLongGap(t *testing.T) {
	pts := []model.Point{{Time: t0, Value: 0.25}, {Time: t0.Add(5 * time.Hour), Value: 0.3}}
	_, err := Resample(pts, ResampleOptions{Start: t0, Interval: time.Hour, Slots: 6, MaxGap: 2})
	assert.True(t, errors.Is(err, ErrIncomplete))
}

func TestResampleUsesSeedBeforeStart(t *testing.T) {
	pts := []model.Point{{Time: t0.Add(-time.Hour), Value: 7}, {Time: t0.Add(2 * time.Hour), Value: 9}}
	ts, err := Resample(pts, ResampleOptions{Start: t0, Interval: time.Hour, Slots: 3, MaxGap: 2})
	require.NoError(t, err)
	assert.Equal(t, []float64{7, 7, 9}, ts.Values)
}

func TestResampleNoDataIsIncomplete(t *testing.T) {
	_, err := Resample(nil, ResampleOptions{Start: t0, Interval: time.Hour, Slots: 3, MaxGap: 2})
	assert.ErrorIs(t, err, ErrIncomplete)
}

func TestResampleMissingSecondDayIsIncomplete(t *testing.T) {
	values := make([]float64, 24)
	for i := range values {
		values[i] = 0.30
	}
	_, err := Resample(hourly(values...), ResampleOptions{Start: t0, Interval: time.Hour, Slots: 48, MaxGap: 2})
	require.ErrorIs(t, err, ErrIncomplete)
	assert.Contains(t, err.Error(), t0.Add(26*time.Hour).Format(time.RFC3339))
}

func TestLoadProfileAveragesSameTimeOfDay(t *testing.T) {
	history := []model.Point{
		{Time: t0.Add(-48*time.Hour + 14*time.Hour), Value: 1000},
		{Time: t0.Add(-24*time.Hour + 14*time.Hour), Value: 2000},
	}
	ts := LoadProfile(history, t0, time.Hour, 48, 400)
	assert.Equal(t, 1500.0, ts.Values[14])
	assert.Equal(t, 1500.0, ts.Values[38])
	assert.Equal(t, 400.0, ts.Values[3])
}

func TestLoadProfileDefault(t *testing.T) {
	ts := LoadProfile(nil, t0, 15*time.Minute, 8, 400)
	for _, v := range ts.Values {
		assert.Equal(t, 400.0, v)
	}
}

func TestAssemblerBuildsBundle(t *testing.T) {
	pv := ProviderFunc(func(ctx context.Context, from, to time.Time) ([]model.Point, error) {
		return FixedProvider{Value: 2000, Step: time.Hour}.Points(ctx, from, to)
	})
	price := FixedProvider{Value: 0.3}
	a, err := NewAssembler(Config{}, pv, price, nil, logger.NopLogger{})
	require.NoError(t, err)
	b, err := a.Assemble(context.Background(), t0.Add(14*time.Hour+20*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, t0.Add(14*time.Hour), b.Start)
	assert.Equal(t, 48, b.Slots())
	assert.Equal(t, 2000.0, b.PVWh[0])
	assert.Equal(t, 0.3, b.PriceEURPerKWh[47])
	assert.Equal(t, 400.0, b.LoadWh[10])
	assert.Equal(t, 0.08, b.FeedInEURPerKWh)
}

func TestAssemblerPropagatesIncomplete(t *testing.T) {
	empty := ProviderFunc(func(context.Context, time.Time, time.Time) ([]model.Point, error) { return nil, nil })
	a, err := NewAssembler(Config{}, empty, FixedProvider{Value: 0.3}, nil, nil)
	require.NoError(t, err)
	_, err = a.Assemble(context.Background(), t0)
	assert.ErrorIs(t, err, ErrIncomplete)
}

func TestAssemblerRejectsOneDayOfPrices(t *testing.T) {
	oneDay := ProviderFunc(func(ctx context.Context, from, _ time.Time) ([]model.Point, error) {
		return FixedProvider{Value: 0.3, Step: time.Hour}.Points(ctx, from, t0.Add(24*time.Hour))
	})
	a, err := NewAssembler(Config{}, FixedProvider{Value: 2000}, oneDay, nil, nil)
	require.NoError(t, err)
	_, err = a.Assemble(context.Background(), t0)
	require.ErrorIs(t, err, ErrIncomplete)
	assert.Contains(t, err.Error(), "prices")
}

func TestAssemblerQuarterHourInterval(t *testing.T) {
	a, err := NewAssembler(Config{IntervalSeconds: 900}, FixedProvider{Value: 1000}, FixedProvider{Value: 0.2}, FixedProvider{Value: 800}, nil)
	require.NoError(t, err)
	b, err := a.Assemble(context.Background(), t0.Add(7*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 192, b.Slots())
	assert.Equal(t, 250.0, b.PVWh[0])
	assert.Equal(t, 200.0, b.LoadWh[0])
}

func TestFileProvider(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prices.yaml")
	data := `points:
  - time: 2024-05-01T00:00:00Z
    value: 250
  - time: 2024-05-01T01:00:00Z
    value: 260
scale: 0.001
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	pts, err := FileProvider{Path: path}.Points(context.Background(), t0, t0.Add(2*time.Hour))
	require.NoError(t, err)
	require.Len(t, pts, 2)
	assert.InDelta(t, 0.26, pts[1].Value, 1e-9)

	daily := filepath.Join(dir, "pv.yaml")
	require.NoError(t, os.WriteFile(daily, []byte("daily: [0,0,0,0,0,0,100,300,800,1500,2500,3000,3200,3000,2500,1500,800,300,100,0,0,0,0,0]\n"), 0o644))
	pts, err = FileProvider{Path: daily}.Points(context.Background(), t0, t0.Add(48*time.Hour))
	require.NoError(t, err)
	assert.Len(t, pts, 48)
	assert.Equal(t, 3200.0, pts[36].Value)
}

func TestConfigValidate(t *testing.T) {
	c := Config{IntervalSeconds: 600}
	c.SetDefaults()
	assert.Error(t, c.Validate())
	c = Config{}
	c.SetDefaults()
	assert.NoError(t, c.Validate())
	assert.Equal(t, 48, c.Slots())
}
