// Package decimate прореживает историю показаний до ограниченного числа точек графика,
// сохраняя заметные изменения и разрывы во времени.
package decimate

import (
	"math"
	"slices"
	"time"

	"sensor-monitor/internal/models"
)

// Options параметры прореживания
type Options struct {
	// TargetPoints желаемое число точек; при len(data) <= TargetPoints данные не меняются
	TargetPoints int
	// Thresholds минимальное изменение канала относительно последней оставленной точки
	Thresholds map[models.Channel]float64
	// TimeGap разрыв во времени, после которого точка сохраняется всегда
	TimeGap time.Duration
	// QualityAware сохранять точки с отказом датчика или статусом error
	QualityAware bool
}

// Decimate возвращает первую точку, значимые точки из середины с шагом
// floor(N/TargetPoints) и последнюю точку. Сравнение идет с последней
// оставленной точкой, а не с предыдущей.
func Decimate(data []models.Reading, opts Options) []models.Reading {
	if opts.TargetPoints <= 0 || len(data) <= opts.TargetPoints {
		return slices.Clone(data)
	}

	step := max(1, len(data)/opts.TargetPoints)
	out := make([]models.Reading, 0, opts.TargetPoints+2)
	out = append(out, data[0])
	lastKept := 0

	for i := step; i < len(data)-step; i += step {
		if significant(data[lastKept], data[i], opts) {
			out = append(out, data[i])
			lastKept = i
		}
	}

	if lastKept != len(data)-1 {
		out = append(out, data[len(data)-1])
	}
	return out
}

func significant(kept, cur models.Reading, opts Options) bool {
	for ch, threshold := range opts.Thresholds {
		if changed(kept, cur, ch, threshold) {
			return true
		}
	}
	if opts.TimeGap > 0 && cur.Timestamp.Sub(kept.Timestamp) >= opts.TimeGap {
		return true
	}
	if opts.QualityAware && (cur.Status == models.StatusError || cur.Faulty(channels(opts)...)) {
		return true
	}
	return false
}

// changed переход в отказ или из отказа тоже считается изменением
func changed(kept, cur models.Reading, ch models.Channel, threshold float64) bool {
	a, okA := kept.Value(ch)
	b, okB := cur.Value(ch)
	if okA != okB {
		return true
	}
	if !okA {
		return false
	}
	return math.Abs(b-a) > threshold
}

func channels(opts Options) []models.Channel {
	if len(opts.Thresholds) == 0 {
		return nil
	}
	out := make([]models.Channel, 0, len(opts.Thresholds))
	for ch := range opts.Thresholds {
		out = append(out, ch)
	}
	return out
}
