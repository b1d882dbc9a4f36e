package analytics

import (
	"time"

	"sensor-monitor/internal/models"
)

const (
	// CriticalConsecutiveAnomalies столько аномалий подряд считается критичным
	CriticalConsecutiveAnomalies = 3
	// RecentAnomalyLimit длина списка последних аномалий
	RecentAnomalyLimit = 10
)

// AnomalyEvent одна зафиксированная аномалия
type AnomalyEvent struct {
	DeviceID       string                `json:"deviceId"`
	Timestamp      time.Time             `json:"timestamp"`
	Score          *float64              `json:"score"`
	Classification models.Classification `json:"classification"`
}

// AnomalyInfo сводка по аномалиям окна
type AnomalyInfo struct {
	CurrentScore *float64       `json:"currentScore"`
	IsAnomaly    bool           `json:"isAnomaly"`
	Count        int            `json:"count"`
	Rate         float64        `json:"rate"`
	Recent       []AnomalyEvent `json:"recent"`
	Consecutive  int            `json:"consecutive"`
	IsCritical   bool           `json:"isCritical"`
}

// AnomalyRate доля показаний с флагом аномалии, в процентах
func AnomalyRate(window []models.Reading) float64 {
	if len(window) == 0 {
		return 0
	}
	n := 0
	for _, r := range window {
		if r.IsAnomaly() {
			n++
		}
	}
	return float64(n) / float64(len(window)) * 100
}

// ConsecutiveAnomalies число аномалий подряд с конца окна
func ConsecutiveAnomalies(window []models.Reading) int {
	n := 0
	for i := len(window) - 1; i >= 0; i-- {
		if !window[i].IsAnomaly() {
			break
		}
		n++
	}
	return n
}

// IsCritical три и более аномалий подряд
func IsCritical(window []models.Reading) bool {
	return ConsecutiveAnomalies(window) >= CriticalConsecutiveAnomalies
}

// RecentAnomalies последние limit аномалий в порядке возрастания времени
func RecentAnomalies(window []models.Reading, limit int) []AnomalyEvent {
	var events []AnomalyEvent
	for _, r := range window {
		if !r.IsAnomaly() {
			continue
		}
		m, _ := r.Motor()
		events = append(events, AnomalyEvent{
			DeviceID:       r.DeviceID,
			Timestamp:      r.Timestamp,
			Score:          optional(r.Value(models.ChannelAnomalyScore)),
			Classification: m.Classification,
		})
	}
	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}
	return events
}

// DetectAnomalies собирает сводку по аномалиям
func DetectAnomalies(window []models.Reading) AnomalyInfo {
	info := AnomalyInfo{Recent: []AnomalyEvent{}}
	if len(window) == 0 {
		return info
	}

	latest := window[len(window)-1]
	info.CurrentScore = optional(latest.Value(models.ChannelAnomalyScore))
	info.IsAnomaly = latest.IsAnomaly()
	for _, r := range window {
		if r.IsAnomaly() {
			info.Count++
		}
	}
	info.Rate = AnomalyRate(window)
	if recent := RecentAnomalies(window, RecentAnomalyLimit); recent != nil {
		info.Recent = recent
	}
	info.Consecutive = ConsecutiveAnomalies(window)
	info.IsCritical = info.Consecutive >= CriticalConsecutiveAnomalies
	return info
}

// Distribution распределение классов режима работы
type Distribution struct {
	Idle              int     `json:"idle"`
	Nominal           int     `json:"nominal"`
	IdlePercentage    float64 `json:"idlePercentage"`
	NominalPercentage float64 `json:"nominalPercentage"`
}

// ClassificationDistribution считает idle и nominal в окне
func ClassificationDistribution(window []models.Reading) Distribution {
	var d Distribution
	if len(window) == 0 {
		return d
	}
	for _, r := range window {
		m, ok := r.Motor()
		if !ok {
			continue
		}
		switch m.Classification {
		case models.ClassificationIdle:
			d.Idle++
		case models.ClassificationNominal:
			d.Nominal++
		}
	}
	d.IdlePercentage = float64(d.Idle) / float64(len(window)) * 100
	d.NominalPercentage = float64(d.Nominal) / float64(len(window)) * 100
	return d
}

func optional(v float64, ok bool) *float64 {
	if !ok {
		return nil
	}
	return &v
}
