package decimate

import (
	"fmt"
	"slices"
	"strconv"
	"time"

	"sensor-monitor/internal/metrics"
	"sensor-monitor/internal/models"
)

// DefaultRangeHours диапазон по умолчанию
const DefaultRangeHours = 24

// Range калибровка прореживания для диапазона графика
type Range struct {
	Hours      int                        `mapstructure:"hours" json:"hours"`
	Label      string                     `mapstructure:"label" json:"label"`
	MaxPoints  int                        `mapstructure:"max_points" json:"maxPoints"`
	Thresholds map[models.Channel]float64 `mapstructure:"thresholds" json:"thresholds"`
	TimeGap    time.Duration              `mapstructure:"time_gap" json:"timeGap"`
}

// Ranges таблица калибровки
type Ranges []Range

// DefaultRanges чем короче диапазон, тем чувствительнее пороги
func DefaultRanges() Ranges {
	return Ranges{
		{
			Hours: 1, Label: "Last Hour", MaxPoints: 30, TimeGap: 2 * time.Minute,
			Thresholds: thresholds(0.3, 2, 3, 0.2, 0.2),
		},
		{
			Hours: 6, Label: "Last 6 Hours", MaxPoints: 36, TimeGap: 10 * time.Minute,
			Thresholds: thresholds(0.5, 3, 4, 0.3, 0.3),
		},
		{
			Hours: 24, Label: "Last 24 Hours", MaxPoints: 48, TimeGap: 30 * time.Minute,
			Thresholds: thresholds(0.8, 4, 6, 0.5, 0.5),
		},
		{
			Hours: 168, Label: "Last 7 Days", MaxPoints: 84, TimeGap: 120 * time.Minute,
			Thresholds: thresholds(1.2, 6, 8, 0.8, 0.8),
		},
	}
}

func thresholds(temperature, humidity, gas, axis, anomaly float64) map[models.Channel]float64 {
	return map[models.Channel]float64{
		models.ChannelTemperature:  temperature,
		models.ChannelHumidity:     humidity,
		models.ChannelGasLevel:     gas,
		models.ChannelAccX:         axis,
		models.ChannelAccY:         axis,
		models.ChannelAccZ:         axis,
		models.ChannelAnomalyScore: anomaly,
	}
}

// Validate каждая строка с положительными часами и числом точек, часы не повторяются
func (rs Ranges) Validate() error {
	if len(rs) == 0 {
		return fmt.Errorf("decimation ranges are empty")
	}
	seen := make(map[int]bool, len(rs))
	for _, r := range rs {
		if r.Hours <= 0 || r.MaxPoints <= 0 {
			return fmt.Errorf("decimation range %q: hours and max points must be positive", r.Label)
		}
		if seen[r.Hours] {
			return fmt.Errorf("decimation range %dh is duplicated", r.Hours)
		}
		seen[r.Hours] = true
		for ch, v := range r.Thresholds {
			if v < 0 {
				return fmt.Errorf("decimation range %dh: negative threshold for %s", r.Hours, ch)
			}
		}
	}
	return nil
}

// Lookup строка для диапазона; неизвестный диапазон получает строку 24 ч
func (rs Ranges) Lookup(hours int) Range {
	if i := slices.IndexFunc(rs, func(r Range) bool { return r.Hours == hours }); i >= 0 {
		return rs[i]
	}
	if i := slices.IndexFunc(rs, func(r Range) bool { return r.Hours == DefaultRangeHours }); i >= 0 {
		return rs[i]
	}
	return DefaultRanges()[2]
}

// Lookback окно истории диапазона
func (r Range) Lookback() time.Duration {
	return time.Duration(r.Hours) * time.Hour
}

// Options параметры прореживания для диапазона
func (r Range) Options(qualityAware bool) Options {
	return Options{
		TargetPoints: r.MaxPoints,
		Thresholds:   r.Thresholds,
		TimeGap:      r.TimeGap,
		QualityAware: qualityAware,
	}
}

// Apply прореживает данные по калибровке диапазона
func (r Range) Apply(data []models.Reading, qualityAware bool) []models.Reading {
	out := Decimate(data, r.Options(qualityAware))
	if len(data) > 0 {
		metrics.DecimationRatio.WithLabelValues(strconv.Itoa(r.Hours)).Observe(float64(len(out)) / float64(len(data)))
	}
	return out
}
