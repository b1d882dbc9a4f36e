package models

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// SensorErrorValue и LegacySensorErrorValue зарезервированные значения "отказ датчика"
const (
	SensorErrorValue       = -1.0
	LegacySensorErrorValue = -999.0
)

// ErrSchemaMismatch документ не соответствует схеме развертывания
var ErrSchemaMismatch = errors.New("reading does not match deployment schema")

// Status статус устройства в момент измерения
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusError    Status = "error"
)

// Valid проверяет допустимость статуса
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusInactive, StatusError:
		return true
	}
	return false
}

// Kind дискриминант схемы показаний
type Kind string

const (
	KindEnvironmental Kind = "environmental"
	KindMotor         Kind = "motor"
)

// ParseKind разбирает имя схемы
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindEnvironmental, KindMotor:
		return Kind(s), nil
	}
	return "", fmt.Errorf("unknown reading kind %q", s)
}

// Channel имя числового канала
type Channel string

const (
	ChannelTemperature Channel = "temperature"
	ChannelHumidity    Channel = "humidity"
	ChannelPressure    Channel = "pressure"
	ChannelGasLevel    Channel = "gasLevel"
	ChannelDistance    Channel = "distance"

	ChannelAccX                     Channel = "accX"
	ChannelAccY                     Channel = "accY"
	ChannelAccZ                     Channel = "accZ"
	ChannelClassificationConfidence Channel = "classificationConfidence"
	ChannelAnomalyScore             Channel = "anomalyScore"
)

// Channels возвращает числовые каналы схемы
func (k Kind) Channels() []Channel {
	switch k {
	case KindEnvironmental:
		return []Channel{ChannelTemperature, ChannelHumidity, ChannelPressure, ChannelGasLevel, ChannelDistance}
	case KindMotor:
		return []Channel{ChannelAccX, ChannelAccY, ChannelAccZ, ChannelClassificationConfidence, ChannelAnomalyScore}
	}
	return nil
}

// Classification класс режима работы мотора
type Classification string

const (
	ClassificationIdle    Classification = "idle"
	ClassificationNominal Classification = "nominal"
)

// Payload показания конкретной схемы. Реализуется только Environmental и Motor.
type Payload interface {
	Kind() Kind
	Value(ch Channel) (float64, bool)
	sealed()
}

// Environmental показания датчиков окружающей среды
type Environmental struct {
	Temperature float64
	Humidity    float64
	Pressure    float64
	GasLevel    float64
	Distance    float64
}

// Kind реализует Payload
func (Environmental) Kind() Kind { return KindEnvironmental }

func (Environmental) sealed() {}

// Value возвращает значение канала; false для неизвестного канала или отказа датчика
func (e Environmental) Value(ch Channel) (float64, bool) {
	var v float64
	switch ch {
	case ChannelTemperature:
		v = e.Temperature
	case ChannelHumidity:
		v = e.Humidity
	case ChannelPressure:
		v = e.Pressure
	case ChannelGasLevel:
		v = e.GasLevel
	case ChannelDistance:
		v = e.Distance
	default:
		return 0, false
	}
	if IsSensorError(v) {
		return 0, false
	}
	return v, true
}

// Motor показания вибродатчика мотора
type Motor struct {
	AccX                     float64
	AccY                     float64
	AccZ                     float64
	Classification           Classification
	ClassificationConfidence float64
	AnomalyScore             float64
	IsAnomaly                bool
}

// Kind реализует Payload
func (Motor) Kind() Kind { return KindMotor }

func (Motor) sealed() {}

// Value возвращает значение канала; false для неизвестного канала или отказа датчика
func (m Motor) Value(ch Channel) (float64, bool) {
	switch ch {
	case ChannelAccX:
		return axisValue(m.AccX)
	case ChannelAccY:
		return axisValue(m.AccY)
	case ChannelAccZ:
		return axisValue(m.AccZ)
	case ChannelClassificationConfidence:
		return scalarValue(m.ClassificationConfidence)
	case ChannelAnomalyScore:
		return scalarValue(m.AnomalyScore)
	}
	return 0, false
}

// Vibration модуль вектора ускорения; неисправные оси считаются нулем
func (m Motor) Vibration() float64 {
	x, _ := axisValue(m.AccX)
	y, _ := axisValue(m.AccY)
	z, _ := axisValue(m.AccZ)
	return VibrationMagnitude(x, y, z)
}

// Reading одно измерение устройства
type Reading struct {
	DeviceID  string
	Timestamp time.Time
	Status    Status
	Payload   Payload
}

// Kind схема показания
func (r Reading) Kind() Kind {
	if r.Payload == nil {
		return ""
	}
	return r.Payload.Kind()
}

// Value значение канала показания
func (r Reading) Value(ch Channel) (float64, bool) {
	if r.Payload == nil {
		return 0, false
	}
	return r.Payload.Value(ch)
}

// Motor возвращает показания мотора, если схема совпадает
func (r Reading) Motor() (Motor, bool) {
	m, ok := r.Payload.(Motor)
	return m, ok
}

// Environmental возвращает показания среды, если схема совпадает
func (r Reading) Environmental() (Environmental, bool) {
	e, ok := r.Payload.(Environmental)
	return e, ok
}

// Vibration модуль вибрации; 0 для схемы без акселерометра
func (r Reading) Vibration() float64 {
	if m, ok := r.Motor(); ok {
		return m.Vibration()
	}
	return 0
}

// IsAnomaly флаг аномалии; false для схемы без детектора
func (r Reading) IsAnomaly() bool {
	if m, ok := r.Motor(); ok {
		return m.IsAnomaly
	}
	return false
}

// Faulty сообщает, есть ли среди каналов отказ датчика
func (r Reading) Faulty(channels ...Channel) bool {
	if r.Payload == nil {
		return true
	}
	if len(channels) == 0 {
		channels = r.Kind().Channels()
	}
	for _, ch := range channels {
		if _, ok := r.Value(ch); !ok {
			return true
		}
	}
	return false
}

// Validate проверяет показание на границе фида
func (r Reading) Validate(kind Kind) error {
	if r.DeviceID == "" {
		return &ValidationError{Field: "deviceId", Reason: "is required"}
	}
	if r.Timestamp.IsZero() {
		return &ValidationError{Field: "timestamp", Reason: "is required"}
	}
	if !r.Status.Valid() {
		return &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", r.Status)}
	}
	if r.Payload == nil {
		return &ValidationError{Field: "payload", Reason: "is required"}
	}
	if kind != "" && r.Kind() != kind {
		return fmt.Errorf("%w: got %s, want %s", ErrSchemaMismatch, r.Kind(), kind)
	}
	return nil
}

// IsSensorError true для зарезервированного значения отказа или NaN
func IsSensorError(v float64) bool {
	return math.IsNaN(v) || v == SensorErrorValue || v == LegacySensorErrorValue
}

// IsAxisError проверка для знаковых осей ускорения: -1 м/с² допустимое значение
func IsAxisError(v float64) bool {
	return math.IsNaN(v) || v == LegacySensorErrorValue
}

// VibrationMagnitude евклидова норма ускорения
func VibrationMagnitude(x, y, z float64) float64 {
	return math.Sqrt(x*x + y*y + z*z)
}

func scalarValue(v float64) (float64, bool) {
	if IsSensorError(v) {
		return 0, false
	}
	return v, true
}

func axisValue(v float64) (float64, bool) {
	if IsAxisError(v) {
		return 0, false
	}
	return v, true
}
