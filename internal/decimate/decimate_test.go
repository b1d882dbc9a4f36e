package decimate_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sensor-monitor/internal/decimate"
	"sensor-monitor/internal/models"
	"sensor-monitor/internal/units"
)

var start = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

func env(at time.Time, temp float64) models.Reading {
	return models.Reading{
		DeviceID:  "env-1",
		Timestamp: at,
		Status:    models.StatusActive,
		Payload:   models.Environmental{Temperature: temp, Humidity: 40, Pressure: 1013, GasLevel: 400, Distance: 20},
	}
}

func series(n int, spacing time.Duration, temp func(i int) float64) []models.Reading {
	out := make([]models.Reading, n)
	for i := range out {
		out[i] = env(start.Add(time.Duration(i)*spacing), temp(i))
	}
	return out
}

func flat(int) float64 { return 20 }

func TestDecimateIdentityWhenShort(t *testing.T) {
	for _, n := range []int{0, 1, 2, 47, 48} {
		data := series(n, time.Minute, flat)
		got := decimate.Decimate(data, decimate.Options{TargetPoints: 48, TimeGap: time.Minute})
		assert.Equal(t, data, got, "n=%d", n)
	}
}

func TestDecimateKeepsFirstAndLast(t *testing.T) {
	for _, n := range []int{49, 50, 97, 200, 1000} {
		data := series(n, time.Minute, func(i int) float64 { return float64(i % 7) })
		got := decimate.Decimate(data, decimate.DefaultRanges().Lookup(24).Options(false))
		require.NotEmpty(t, got)
		assert.Equal(t, data[0], got[0], "n=%d", n)
		assert.Equal(t, data[n-1], got[len(got)-1], "n=%d", n)
		assert.LessOrEqual(t, len(got), n)
	}
}

func TestDecimateFlatSeriesUsesTimeGap(t *testing.T) {
	// 200 точек по 7.2 мин, шаг 4: каждая вторая посещенная точка старше 30 мин
	data := series(200, 24*time.Hour/200, flat)
	got := decimate.Decimate(data, decimate.DefaultRanges().Lookup(24).Options(false))

	assert.Equal(t, 26, len(got))
	for i := 1; i < len(got)-1; i++ {
		assert.GreaterOrEqual(t, got[i].Timestamp.Sub(got[i-1].Timestamp), 30*time.Minute)
	}
}

func TestDecimateDayScenarioKeepsShortSpike(t *testing.T) {
	spacing := 24 * time.Hour / 200
	data := make([]models.Reading, 200)
	at := start
	for i := range data {
		temp := 20.0
		switch i {
		case 96:
			temp = 21
		case 100:
			temp = 23
		}
		data[i] = env(at, temp)
		if i >= 96 && i < 100 {
			at = at.Add(30 * time.Second)
		} else {
			at = at.Add(spacing)
		}
	}
	require.Equal(t, 2*time.Minute, data[100].Timestamp.Sub(data[96].Timestamp))

	rng := decimate.DefaultRanges().Lookup(24)
	require.Equal(t, 48, rng.MaxPoints)
	require.Equal(t, 0.8, rng.Thresholds[models.ChannelTemperature])

	got := rng.Apply(data, false)
	require.LessOrEqual(t, len(got), 200)
	require.Equal(t, data[0], got[0])
	require.Equal(t, data[199], got[len(got)-1])
	require.Contains(t, got, data[96])
	require.Contains(t, got, data[100])
}

func TestDecimateComparesToLastKeptPoint(t *testing.T) {
	// рост 0.1 на точку: соседние посещенные точки отличаются на 0.4,
	// но дрейф от последней оставленной точки превышает порог каждые три шага
	data := series(400, time.Second, func(i int) float64 { return 20 + float64(i)*0.1 })
	opts := decimate.Options{
		TargetPoints: 100,
		Thresholds:   map[models.Channel]float64{models.ChannelTemperature: 1.0},
	}
	got := decimate.Decimate(data, opts)

	require.Greater(t, len(got), 2)
	assert.Equal(t, data[12], got[1])
	assert.Equal(t, data[24], got[2])
}

func TestDecimateFaultTransitionIsSignificant(t *testing.T) {
	data := series(100, time.Second, flat)
	faulty := data[40]
	faulty.Payload = models.Environmental{Temperature: -1, Humidity: 40, Pressure: 1013, GasLevel: 400, Distance: 20}
	data[40] = faulty

	opts := decimate.Options{
		TargetPoints: 10,
		Thresholds:   map[models.Channel]float64{models.ChannelTemperature: 0.5},
	}
	got := decimate.Decimate(data, opts)
	require.Contains(t, got, data[40])
	require.Contains(t, got, data[50], "recovery from fault is kept too")
}

func TestDecimateQualityAware(t *testing.T) {
	data := series(100, time.Second, flat)
	bad := data[30]
	bad.Status = models.StatusError
	data[30] = bad

	opts := decimate.Options{TargetPoints: 10}
	require.NotContains(t, decimate.Decimate(data, opts), data[30])

	opts.QualityAware = true
	require.Contains(t, decimate.Decimate(data, opts), data[30])
}

func TestRangesLookup(t *testing.T) {
	rs := decimate.DefaultRanges()
	require.NoError(t, rs.Validate())

	assert.Equal(t, 30, rs.Lookup(1).MaxPoints)
	assert.Equal(t, 2*time.Minute, rs.Lookup(1).TimeGap)
	assert.Equal(t, 84, rs.Lookup(168).MaxPoints)
	assert.Equal(t, 48, rs.Lookup(5).MaxPoints)
	assert.Equal(t, 7*24*time.Hour, rs.Lookup(168).Lookback())

	dup := append(decimate.Ranges{}, rs[0], rs[0])
	require.Error(t, dup.Validate())
}

func TestChartPoints(t *testing.T) {
	r := env(start.Add(90*time.Minute), 25)
	r.Payload = models.Environmental{Temperature: 25, Humidity: -1, Pressure: 1013, GasLevel: 450, Distance: 10}

	prefs := units.DefaultPreferences()
	prefs.Temperature = units.Fahrenheit
	prefs.GasLevel = units.Percent

	rows := decimate.ChartPoints([]models.Reading{r}, prefs)
	require.Len(t, rows, 1)
	row := rows[0]

	assert.Equal(t, "01:30:00", row.Timestamp)
	require.NotNil(t, row.Values["temperature"])
	assert.Equal(t, 77.0, *row.Values["temperature"])
	assert.Equal(t, 0.045, *row.Values["gasLevel"])
	assert.Nil(t, row.Values["humidity"])
	assert.True(t, row.Errors["humidity"])
	assert.False(t, row.Errors["temperature"])

	assert.Equal(t, decimate.ErrorLabel, decimate.DisplayValue(r, models.ChannelHumidity, prefs))
	assert.Equal(t, "77.0°F", decimate.DisplayValue(r, models.ChannelTemperature, prefs))
}
