package analytics

import (
	"fmt"
	"math"

	"sensor-monitor/internal/models"
)

// HealthStatus корзина оценки здоровья мотора
type HealthStatus string

const (
	HealthExcellent HealthStatus = "excellent"
	HealthGood      HealthStatus = "good"
	HealthFair      HealthStatus = "fair"
	HealthPoor      HealthStatus = "poor"
	HealthCritical  HealthStatus = "critical"
	HealthUnknown   HealthStatus = "unknown"
)

// Calibration эмпирические коэффициенты оценки здоровья
type Calibration struct {
	ConfidenceWeight float64 `mapstructure:"confidence_weight" json:"confidenceWeight"`
	AnomalyWeight    float64 `mapstructure:"anomaly_weight" json:"anomalyWeight"`
	VibrationWeight  float64 `mapstructure:"vibration_weight" json:"vibrationWeight"`

	// AnomalyScale расстояние до кластера, при котором вклад аномалии равен нулю
	AnomalyScale float64 `mapstructure:"anomaly_scale" json:"anomalyScale"`

	// VibrationScale вибрация в м/с², при которой вклад вибрации равен нулю
	VibrationScale float64 `mapstructure:"vibration_scale" json:"vibrationScale"`
}

// DefaultCalibration 0.4/0.4/0.2, шкалы 5 и 10
func DefaultCalibration() Calibration {
	return Calibration{
		ConfidenceWeight: 0.4,
		AnomalyWeight:    0.4,
		VibrationWeight:  0.2,
		AnomalyScale:     5,
		VibrationScale:   10,
	}
}

// Validate шкалы должны быть положительными
func (c Calibration) Validate() error {
	if c.AnomalyScale <= 0 || c.VibrationScale <= 0 {
		return fmt.Errorf("health calibration scales must be positive: anomaly=%v vibration=%v", c.AnomalyScale, c.VibrationScale)
	}
	if c.ConfidenceWeight < 0 || c.AnomalyWeight < 0 || c.VibrationWeight < 0 {
		return fmt.Errorf("health calibration weights must not be negative")
	}
	return nil
}

// HealthFactors вклад каждого фактора, 0-100
type HealthFactors struct {
	Classification int `json:"classification"`
	Anomaly        int `json:"anomaly"`
	Vibration      int `json:"vibration"`
}

// Health итоговая оценка
type Health struct {
	Score   int           `json:"score"`
	Status  HealthStatus  `json:"status"`
	Factors HealthFactors `json:"factors"`
}

// HealthScore смесь уверенности классификатора, инвертированной аномалии и инвертированной вибрации
func HealthScore(confidence, anomalyScore, vibration float64, cal Calibration) Health {
	anomaly := clamp(100-anomalyScore/cal.AnomalyScale*100, 0, 100)
	vib := clamp(100-vibration/cal.VibrationScale*100, 0, 100)

	raw := confidence*cal.ConfidenceWeight + anomaly*cal.AnomalyWeight + vib*cal.VibrationWeight
	score := int(math.Round(raw))

	return Health{
		Score:  score,
		Status: HealthBucket(score),
		Factors: HealthFactors{
			Classification: int(math.Round(confidence)),
			Anomaly:        int(math.Round(anomaly)),
			Vibration:      int(math.Round(vib)),
		},
	}
}

// HealthBucket <40 critical, <60 poor, <75 fair, <90 good
func HealthBucket(score int) HealthStatus {
	switch {
	case score < 40:
		return HealthCritical
	case score < 60:
		return HealthPoor
	case score < 75:
		return HealthFair
	case score < 90:
		return HealthGood
	}
	return HealthExcellent
}

// MotorHealth оценка по последнему показанию. false если показание не моторное
// или уверенность либо оценка аномалии неисправны.
func MotorHealth(latest models.Reading, vibrationCurrent float64, cal Calibration) (Health, bool) {
	if latest.Kind() != models.KindMotor {
		return Health{Status: HealthUnknown}, false
	}
	conf, ok := latest.Value(models.ChannelClassificationConfidence)
	if !ok {
		return Health{Status: HealthUnknown}, false
	}
	score, ok := latest.Value(models.ChannelAnomalyScore)
	if !ok {
		return Health{Status: HealthUnknown}, false
	}
	return HealthScore(conf, score, vibrationCurrent, cal), true
}

// Status состояние мотора по последнему показанию
type Status struct {
	Status         models.Status         `json:"status"`
	Classification models.Classification `json:"classification"`
	Confidence     float64               `json:"confidence"`
	IsHealthy      bool                  `json:"isHealthy"`
	VibrationLevel float64               `json:"vibrationLevel"`
	HasAnomaly     bool                  `json:"hasAnomaly"`
	AnomalyScore   *float64              `json:"anomalyScore"`
}

// HealthyConfidence нижняя граница уверенности для isHealthy
const HealthyConfidence = 70.0

// MotorStatus nominal, без аномалии и уверенность > 70 считается здоровым
func MotorStatus(latest *models.Reading) Status {
	st := Status{Status: models.StatusInactive, Classification: models.ClassificationIdle}
	if latest == nil {
		return st
	}
	m, ok := latest.Motor()
	if !ok {
		return st
	}

	conf, confOK := latest.Value(models.ChannelClassificationConfidence)
	st.Status = latest.Status
	if m.Classification != "" {
		st.Classification = m.Classification
	}
	st.Confidence = conf
	st.VibrationLevel = m.Vibration()
	st.HasAnomaly = m.IsAnomaly
	st.AnomalyScore = optional(latest.Value(models.ChannelAnomalyScore))
	st.IsHealthy = m.Classification == models.ClassificationNominal && !m.IsAnomaly && confOK && conf > HealthyConfidence
	return st
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
