// Package units переводит сырые единицы датчиков в единицы отображения.
// Датчики всегда отдают °C, см, ppm, гПа и м/с².
package units

import (
	"fmt"
	"strconv"
	"strings"
)

// Temperature единица температуры
type Temperature string

const (
	Celsius    Temperature = "celsius"
	Fahrenheit Temperature = "fahrenheit"
)

// Distance единица расстояния
type Distance string

const (
	Centimeters Distance = "cm"
	Inches      Distance = "inches"
)

// GasLevel единица концентрации газа
type GasLevel string

const (
	PPM     GasLevel = "ppm"
	Percent GasLevel = "percent"
)

// Pressure единица давления
type Pressure string

const (
	Hectopascal Pressure = "hPa"
	Kilopascal  Pressure = "kPa"
	PSI         Pressure = "psi"
)

// Vibration единица ускорения
type Vibration string

const (
	MetersPerSecond2 Vibration = "m/s2"
	StandardGravity  Vibration = "g"
)

const (
	inchesPerCm   = 0.393701
	ppmPerPercent = 10000.0
	psiPerHPa     = 0.0145038
	gravity       = 9.80665
)

// Preferences выбранные пользователем единицы
type Preferences struct {
	Temperature Temperature `json:"temperature"`
	Distance    Distance    `json:"distance"`
	GasLevel    GasLevel    `json:"gasLevel"`
	Pressure    Pressure    `json:"pressure"`
	Vibration   Vibration   `json:"vibration"`
}

// DefaultPreferences единицы по умолчанию совпадают с сырыми
func DefaultPreferences() Preferences {
	return Preferences{
		Temperature: Celsius,
		Distance:    Centimeters,
		GasLevel:    PPM,
		Pressure:    Hectopascal,
		Vibration:   MetersPerSecond2,
	}
}

// Validate проверяет, что все единицы известны
func (p Preferences) Validate() error {
	switch p.Temperature {
	case Celsius, Fahrenheit:
	default:
		return fmt.Errorf("unknown temperature unit %q", p.Temperature)
	}
	switch p.Distance {
	case Centimeters, Inches:
	default:
		return fmt.Errorf("unknown distance unit %q", p.Distance)
	}
	switch p.GasLevel {
	case PPM, Percent:
	default:
		return fmt.Errorf("unknown gas level unit %q", p.GasLevel)
	}
	switch p.Pressure {
	case Hectopascal, Kilopascal, PSI:
	default:
		return fmt.Errorf("unknown pressure unit %q", p.Pressure)
	}
	switch p.Vibration {
	case MetersPerSecond2, StandardGravity:
	default:
		return fmt.Errorf("unknown vibration unit %q", p.Vibration)
	}
	return nil
}

// WithDefaults заполняет пустые поля значениями по умолчанию
func (p Preferences) WithDefaults() Preferences {
	d := DefaultPreferences()
	if p.Temperature == "" {
		p.Temperature = d.Temperature
	}
	if p.Distance == "" {
		p.Distance = d.Distance
	}
	if p.GasLevel == "" {
		p.GasLevel = d.GasLevel
	}
	if p.Pressure == "" {
		p.Pressure = d.Pressure
	}
	if p.Vibration == "" {
		p.Vibration = d.Vibration
	}
	return p
}

// ConvertTemperature из °C
func ConvertTemperature(v float64, to Temperature) float64 {
	if to == Fahrenheit {
		return v*9/5 + 32
	}
	return v
}

// ConvertDistance из см
func ConvertDistance(v float64, to Distance) float64 {
	if to == Inches {
		return v * inchesPerCm
	}
	return v
}

// ConvertGasLevel из ppm
func ConvertGasLevel(v float64, to GasLevel) float64 {
	if to == Percent {
		return v / ppmPerPercent
	}
	return v
}

// ConvertPressure из гПа
func ConvertPressure(v float64, to Pressure) float64 {
	switch to {
	case Kilopascal:
		return v / 10
	case PSI:
		return v * psiPerHPa
	}
	return v
}

// ConvertVibration из м/с²
func ConvertVibration(v float64, to Vibration) float64 {
	if to == StandardGravity {
		return v / gravity
	}
	return v
}

// FormatTemperature "21.5°C"
func FormatTemperature(v float64, unit Temperature) string {
	suffix := "°C"
	if unit == Fahrenheit {
		suffix = "°F"
	}
	return fmt.Sprintf("%.1f%s", ConvertTemperature(v, unit), suffix)
}

// FormatDistance "12.0 cm"
func FormatDistance(v float64, unit Distance) string {
	return fmt.Sprintf("%.1f %s", ConvertDistance(v, unit), unit)
}

// FormatGasLevel "450 ppm" или "0.045%"
func FormatGasLevel(v float64, unit GasLevel) string {
	if unit == Percent {
		return fmt.Sprintf("%.3f%%", ConvertGasLevel(v, unit))
	}
	return fmt.Sprintf("%.0f ppm", v)
}

// FormatPressure "1013.2 hPa"
func FormatPressure(v float64, unit Pressure) string {
	return fmt.Sprintf("%.1f %s", ConvertPressure(v, unit), unit)
}

// FormatHumidity "45.0%"
func FormatHumidity(v float64) string {
	return fmt.Sprintf("%.1f%%", v)
}

// FormatVibration "1.25 m/s²"
func FormatVibration(v float64, unit Vibration) string {
	label := strings.Replace(string(unit), "2", "²", 1)
	return fmt.Sprintf("%.2f %s", ConvertVibration(v, unit), label)
}

// GasPrecision число знаков после запятой для концентрации газа на графиках
func (p Preferences) GasPrecision() int {
	if p.GasLevel == Percent {
		return 3
	}
	return 0
}

// FormatNumber число с фиксированной точностью без единицы
func FormatNumber(v float64, places int) string {
	return strconv.FormatFloat(v, 'f', places, 64)
}
