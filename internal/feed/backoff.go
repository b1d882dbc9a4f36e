package feed

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// Backoff экспоненциальная задержка между попытками восстановить live-подписку
type Backoff struct {
	// MinInterval задержка первой попытки, по умолчанию 1/8 с
	MinInterval time.Duration
	// MaxInterval верхняя граница до джиттера, по умолчанию 30 с
	MaxInterval time.Duration
	// NoJitter отключает разброс 95-105%
	NoJitter bool
}

// Delay интервал перед попыткой attempt (с единицы)
func (b Backoff) Delay(attempt int) time.Duration {
	minInterval := b.MinInterval
	if minInterval <= 0 {
		minInterval = time.Second / 8
	}
	maxInterval := b.MaxInterval
	if maxInterval <= 0 {
		maxInterval = 30 * time.Second
	}
	if attempt < 1 {
		attempt = 1
	}

	factor := math.Pow(2, min(
		float64(attempt-1),
		math.Log2(float64(maxInterval)/float64(minInterval)),
	))
	if !b.NoJitter {
		// #nosec G404
		factor *= .95 + .1*rand.Float64()
	}
	return time.Duration(factor * float64(minInterval))
}

// wait ждет задержку; false если контекст отменен раньше
func (b Backoff) wait(ctx context.Context, attempt int) bool {
	t := time.NewTimer(b.Delay(attempt))
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
