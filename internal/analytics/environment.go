package analytics

import (
	"time"

	"sensor-monitor/internal/models"
)

// EnvironmentSummary средние по каналам среды и сведения об устройствах
type EnvironmentSummary struct {
	AvgTemperature float64                `json:"avgTemperature"`
	AvgHumidity    float64                `json:"avgHumidity"`
	AvgPressure    float64                `json:"avgPressure"`
	AvgGasLevel    float64                `json:"avgGasLevel"`
	AvgDistance    float64                `json:"avgDistance"`
	Faults         map[models.Channel]int `json:"faults"`
	TotalReadings  int                    `json:"totalReadings"`
	ActiveDevices  int                    `json:"activeDevices"`
	LastUpdate     time.Time              `json:"lastUpdate"`
}

// EnvironmentStats средние по исправным значениям; отказы считаются отдельно
func EnvironmentStats(window []models.Reading) EnvironmentSummary {
	sum := EnvironmentSummary{Faults: make(map[models.Channel]int)}
	values := make(map[models.Channel][]float64)
	devices := make(map[string]struct{})

	for _, r := range window {
		if r.Kind() != models.KindEnvironmental {
			continue
		}
		sum.TotalReadings++
		devices[r.DeviceID] = struct{}{}
		if r.Timestamp.After(sum.LastUpdate) {
			sum.LastUpdate = r.Timestamp
		}
		for _, ch := range models.KindEnvironmental.Channels() {
			v, ok := r.Value(ch)
			if !ok {
				sum.Faults[ch]++
				continue
			}
			values[ch] = append(values[ch], v)
		}
	}

	sum.ActiveDevices = len(devices)
	sum.AvgTemperature = calculateAverage(values[models.ChannelTemperature])
	sum.AvgHumidity = calculateAverage(values[models.ChannelHumidity])
	sum.AvgPressure = calculateAverage(values[models.ChannelPressure])
	sum.AvgGasLevel = calculateAverage(values[models.ChannelGasLevel])
	sum.AvgDistance = calculateAverage(values[models.ChannelDistance])
	return sum
}
