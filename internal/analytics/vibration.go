// Package analytics вычисляет производные метрики по окну показаний.
// Все функции чистые; неисправные каналы в агрегаты не попадают.
package analytics

import (
	"math"

	"sensor-monitor/internal/models"
)

// Trend направление изменения
type Trend string

const (
	TrendIncreasing Trend = "increasing"
	TrendDecreasing Trend = "decreasing"
	TrendStable     Trend = "stable"
)

// TrendThresholdPercent порог относительного изменения средних четвертей
const TrendThresholdPercent = 10.0

// VibrationTrends сводка вибрации по окну
type VibrationTrends struct {
	Current       float64 `json:"current"`
	Average       float64 `json:"average"`
	Peak          float64 `json:"peak"`
	RMS           float64 `json:"rms"`
	Trend         Trend   `json:"trend"`
	ChangePercent float64 `json:"changePercent"`
}

// vibrationSeries модули вибрации показаний с исправными осями
func vibrationSeries(window []models.Reading) []float64 {
	out := make([]float64, 0, len(window))
	for _, r := range window {
		m, ok := r.Motor()
		if !ok || r.Faulty(models.ChannelAccX, models.ChannelAccY, models.ChannelAccZ) {
			continue
		}
		out = append(out, m.Vibration())
	}
	return out
}

// AverageVibration средний модуль вибрации; 0 для пустого окна
func AverageVibration(window []models.Reading) float64 {
	return calculateAverage(vibrationSeries(window))
}

// PeakVibration максимальный модуль вибрации; 0 для пустого окна
func PeakVibration(window []models.Reading) float64 {
	peak := 0.0
	for _, v := range vibrationSeries(window) {
		peak = math.Max(peak, v)
	}
	return peak
}

// RMS среднеквадратичное значение вибрации; 0 для пустого окна
func RMS(window []models.Reading) float64 {
	values := vibrationSeries(window)
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(values)))
}

// TrendOf сравнивает средние первой и последней четверти ряда.
// Четверть не короче одного значения; ровно ±10% считается stable.
func TrendOf(values []float64) (Trend, float64) {
	if len(values) == 0 {
		return TrendStable, 0
	}
	quarter := max(1, len(values)/4)
	oldAvg := calculateAverage(values[:quarter])
	recentAvg := calculateAverage(values[len(values)-quarter:])

	change := 0.0
	if oldAvg != 0 {
		change = (recentAvg - oldAvg) / oldAvg * 100
	}

	switch {
	case change > TrendThresholdPercent:
		return TrendIncreasing, change
	case change < -TrendThresholdPercent:
		return TrendDecreasing, change
	}
	return TrendStable, change
}

// VibrationTrend направление вибрации по окну
func VibrationTrend(window []models.Reading) (Trend, float64) {
	return TrendOf(vibrationSeries(window))
}

// CurrentVibration вибрация последнего показания; неисправные оси считаются нулем
func CurrentVibration(window []models.Reading) float64 {
	if len(window) == 0 {
		return 0
	}
	return window[len(window)-1].Vibration()
}

// AnalyzeVibration собирает сводку вибрации
func AnalyzeVibration(window []models.Reading) VibrationTrends {
	trend, change := VibrationTrend(window)
	return VibrationTrends{
		Current:       CurrentVibration(window),
		Average:       AverageVibration(window),
		Peak:          PeakVibration(window),
		RMS:           RMS(window),
		Trend:         trend,
		ChangePercent: change,
	}
}

// AxisStats статистика одной оси ускорения по модулю
type AxisStats struct {
	Current float64 `json:"current"`
	Faulty  bool    `json:"faulty"`
	Avg     float64 `json:"avg"`
	Peak    float64 `json:"peak"`
}

// Acceleration анализ осей и доминирующая ось
type Acceleration struct {
	X            AxisStats `json:"x"`
	Y            AxisStats `json:"y"`
	Z            AxisStats `json:"z"`
	DominantAxis string    `json:"dominantAxis"`
}

// AccelerationAnalysis средние и пики |acc| по осям; при равенстве приоритет x, затем y
func AccelerationAnalysis(window []models.Reading) Acceleration {
	res := Acceleration{
		X:            axisStats(window, models.ChannelAccX),
		Y:            axisStats(window, models.ChannelAccY),
		Z:            axisStats(window, models.ChannelAccZ),
		DominantAxis: "z",
	}
	if len(window) == 0 {
		return res
	}
	maxAvg := math.Max(res.X.Avg, math.Max(res.Y.Avg, res.Z.Avg))
	switch maxAvg {
	case res.X.Avg:
		res.DominantAxis = "x"
	case res.Y.Avg:
		res.DominantAxis = "y"
	}
	return res
}

func axisStats(window []models.Reading, ch models.Channel) AxisStats {
	var (
		st     AxisStats
		values []float64
	)
	for _, r := range window {
		if r.Kind() != models.KindMotor {
			continue
		}
		if v, ok := r.Value(ch); ok {
			values = append(values, math.Abs(v))
			st.Peak = math.Max(st.Peak, math.Abs(v))
		}
	}
	st.Avg = calculateAverage(values)

	if len(window) > 0 {
		v, ok := window[len(window)-1].Value(ch)
		st.Current, st.Faulty = v, !ok
	}
	return st
}

// calculateAverage вычисляет среднее значение
func calculateAverage(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
