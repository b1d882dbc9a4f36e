package analytics

import (
	"time"

	"sensor-monitor/internal/models"
)

// Snapshot производные метрики последнего показания устройства.
// Неисправные каналы в Values отсутствуют.
type Snapshot struct {
	DeviceID string                    `json:"deviceId"`
	At       time.Time                 `json:"at"`
	Kind     models.Kind               `json:"kind"`
	Values   map[models.Metric]float64 `json:"values"`
}

// Value значение метрики; false если метрики нет в снимке
func (s Snapshot) Value(m models.Metric) (float64, bool) {
	v, ok := s.Values[m]
	return v, ok
}

// Derive вычисляет снимок метрик по последнему показанию
func Derive(latest models.Reading, cal Calibration) Snapshot {
	snap := Snapshot{
		DeviceID: latest.DeviceID,
		At:       latest.Timestamp,
		Kind:     latest.Kind(),
		Values:   make(map[models.Metric]float64),
	}

	switch latest.Kind() {
	case models.KindMotor:
		put(snap.Values, models.MetricAnomalyScore, latest, models.ChannelAnomalyScore)
		put(snap.Values, models.MetricClassificationConfidence, latest, models.ChannelClassificationConfidence)
		if !latest.Faulty(models.ChannelAccX, models.ChannelAccY, models.ChannelAccZ) {
			snap.Values[models.MetricVibrationMagnitude] = latest.Vibration()
		}
		if h, ok := MotorHealth(latest, latest.Vibration(), cal); ok {
			snap.Values[models.MetricMotorHealth] = float64(h.Score)
		}
	case models.KindEnvironmental:
		put(snap.Values, models.MetricTemperature, latest, models.ChannelTemperature)
		put(snap.Values, models.MetricHumidity, latest, models.ChannelHumidity)
		put(snap.Values, models.MetricPressure, latest, models.ChannelPressure)
		put(snap.Values, models.MetricGasLevel, latest, models.ChannelGasLevel)
		put(snap.Values, models.MetricDistance, latest, models.ChannelDistance)
	}
	return snap
}

func put(values map[models.Metric]float64, m models.Metric, r models.Reading, ch models.Channel) {
	if v, ok := r.Value(ch); ok {
		values[m] = v
	}
}

// Report сводка окна для дашборда
type Report struct {
	DeviceID     string              `json:"deviceId,omitempty"`
	Kind         models.Kind         `json:"kind,omitempty"`
	Readings     int                 `json:"readings"`
	Vibration    *VibrationTrends    `json:"vibration,omitempty"`
	Anomalies    *AnomalyInfo        `json:"anomalies,omitempty"`
	Distribution *Distribution       `json:"distribution,omitempty"`
	Acceleration *Acceleration       `json:"acceleration,omitempty"`
	Health       *Health             `json:"health,omitempty"`
	Motor        *Status             `json:"motor,omitempty"`
	Environment  *EnvironmentSummary `json:"environment,omitempty"`
}

// BuildReport пересчитывает сводку по окну целиком
func BuildReport(window []models.Reading, cal Calibration) Report {
	rep := Report{Readings: len(window)}
	if len(window) == 0 {
		return rep
	}

	latest := window[len(window)-1]
	rep.DeviceID = latest.DeviceID
	rep.Kind = latest.Kind()

	switch rep.Kind {
	case models.KindMotor:
		vib := AnalyzeVibration(window)
		anomalies := DetectAnomalies(window)
		dist := ClassificationDistribution(window)
		acc := AccelerationAnalysis(window)
		status := MotorStatus(&latest)
		health, ok := MotorHealth(latest, vib.Current, cal)
		if !ok {
			health = Health{Status: HealthUnknown}
		}
		rep.Vibration = &vib
		rep.Anomalies = &anomalies
		rep.Distribution = &dist
		rep.Acceleration = &acc
		rep.Motor = &status
		rep.Health = &health
	case models.KindEnvironmental:
		env := EnvironmentStats(window)
		rep.Environment = &env
	}
	return rep
}
