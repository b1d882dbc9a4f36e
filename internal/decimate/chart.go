package decimate

import (
	"math"
	"time"

	"sensor-monitor/internal/models"
	"sensor-monitor/internal/units"
)

// ErrorLabel отображение отказа датчика вместо числа
const ErrorLabel = "Error"

// ChartRow точка графика в единицах пользователя; отказ датчика дает null и флаг
type ChartRow struct {
	Timestamp string              `json:"timestamp"`
	Time      time.Time           `json:"time"`
	DeviceID  string              `json:"deviceId"`
	Values    map[string]*float64 `json:"values"`
	Errors    map[string]bool     `json:"errors"`
}

// VibrationKey ключ модуля вибрации в строке графика
const VibrationKey = "vibration"

// ChartPoints переводит показания в строки графика
func ChartPoints(data []models.Reading, prefs units.Preferences) []ChartRow {
	prefs = prefs.WithDefaults()
	rows := make([]ChartRow, 0, len(data))
	for _, r := range data {
		row := ChartRow{
			Timestamp: r.Timestamp.Format(time.TimeOnly),
			Time:      r.Timestamp,
			DeviceID:  r.DeviceID,
			Values:    make(map[string]*float64),
			Errors:    make(map[string]bool),
		}
		for _, ch := range r.Kind().Channels() {
			v, ok := r.Value(ch)
			row.Errors[string(ch)] = !ok
			if !ok {
				row.Values[string(ch)] = nil
				continue
			}
			converted := convert(ch, v, prefs)
			row.Values[string(ch)] = &converted
		}
		if r.Kind() == models.KindMotor {
			faulty := r.Faulty(models.ChannelAccX, models.ChannelAccY, models.ChannelAccZ)
			row.Errors[VibrationKey] = faulty
			if faulty {
				row.Values[VibrationKey] = nil
			} else {
				v := round(units.ConvertVibration(r.Vibration(), prefs.Vibration), 2)
				row.Values[VibrationKey] = &v
			}
		}
		rows = append(rows, row)
	}
	return rows
}

func convert(ch models.Channel, v float64, prefs units.Preferences) float64 {
	switch ch {
	case models.ChannelTemperature:
		return round(units.ConvertTemperature(v, prefs.Temperature), 1)
	case models.ChannelHumidity:
		return round(v, 1)
	case models.ChannelGasLevel:
		return round(units.ConvertGasLevel(v, prefs.GasLevel), prefs.GasPrecision())
	case models.ChannelDistance:
		return round(units.ConvertDistance(v, prefs.Distance), 1)
	case models.ChannelPressure:
		return round(units.ConvertPressure(v, prefs.Pressure), 2)
	case models.ChannelAccX, models.ChannelAccY, models.ChannelAccZ:
		return round(units.ConvertVibration(v, prefs.Vibration), 3)
	case models.ChannelClassificationConfidence:
		return round(v, 1)
	case models.ChannelAnomalyScore:
		return round(v, 3)
	}
	return v
}

// DisplayValue текст значения канала в единицах пользователя или "Error"
func DisplayValue(r models.Reading, ch models.Channel, prefs units.Preferences) string {
	v, ok := r.Value(ch)
	if !ok {
		return ErrorLabel
	}
	prefs = prefs.WithDefaults()
	switch ch {
	case models.ChannelTemperature:
		return units.FormatTemperature(v, prefs.Temperature)
	case models.ChannelHumidity:
		return units.FormatHumidity(v)
	case models.ChannelGasLevel:
		return units.FormatGasLevel(v, prefs.GasLevel)
	case models.ChannelDistance:
		return units.FormatDistance(v, prefs.Distance)
	case models.ChannelPressure:
		return units.FormatPressure(v, prefs.Pressure)
	case models.ChannelAccX, models.ChannelAccY, models.ChannelAccZ:
		return units.FormatVibration(v, prefs.Vibration)
	case models.ChannelClassificationConfidence:
		return units.FormatHumidity(v)
	}
	return units.FormatNumber(v, 2)
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
