package models_test

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sensor-monitor/internal/models"
)

func TestIsSensorError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		value float64
		want  bool
	}{
		{name: "sentinel", value: -1, want: true},
		{name: "legacy sentinel", value: -999, want: true},
		{name: "nan", value: math.NaN(), want: true},
		{name: "zero", value: 0, want: false},
		{name: "negative temperature", value: -12.5, want: false},
		{name: "positive", value: 21.3, want: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, models.IsSensorError(tc.value))
		})
	}
}

func TestVibrationMagnitude(t *testing.T) {
	require.Equal(t, 0.0, models.VibrationMagnitude(0, 0, 0))
	require.Equal(t, 5.0, models.VibrationMagnitude(3, 4, 0))
	require.Equal(t, 5.0, models.VibrationMagnitude(-3, 0, -4))
}

func TestMotorValueKeepsNegativeAxis(t *testing.T) {
	m := models.Motor{AccX: -1, AccY: -999, AccZ: 2, AnomalyScore: -1}

	v, ok := m.Value(models.ChannelAccX)
	require.True(t, ok)
	require.Equal(t, -1.0, v)

	_, ok = m.Value(models.ChannelAccY)
	require.False(t, ok)

	_, ok = m.Value(models.ChannelAnomalyScore)
	require.False(t, ok)

	require.InDelta(t, math.Sqrt(5), m.Vibration(), 1e-12)
}

func TestEnvironmentalValue(t *testing.T) {
	e := models.Environmental{Temperature: 21.5, Humidity: -1, GasLevel: math.NaN()}

	v, ok := e.Value(models.ChannelTemperature)
	require.True(t, ok)
	require.Equal(t, 21.5, v)

	_, ok = e.Value(models.ChannelHumidity)
	require.False(t, ok)
	_, ok = e.Value(models.ChannelGasLevel)
	require.False(t, ok)
	_, ok = e.Value(models.ChannelAccX)
	require.False(t, ok)
}

func TestReadingValidate(t *testing.T) {
	ts := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	r := models.Reading{DeviceID: "motor-1", Timestamp: ts, Status: models.StatusActive, Payload: models.Motor{}}

	require.NoError(t, r.Validate(models.KindMotor))

	err := r.Validate(models.KindEnvironmental)
	require.True(t, errors.Is(err, models.ErrSchemaMismatch))

	r.DeviceID = ""
	err = r.Validate(models.KindMotor)
	require.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestReadingFaulty(t *testing.T) {
	r := models.Reading{Payload: models.Environmental{Temperature: 20, Humidity: -1}}
	require.True(t, r.Faulty())
	require.False(t, r.Faulty(models.ChannelTemperature))
	require.True(t, r.Faulty(models.ChannelHumidity))
}
