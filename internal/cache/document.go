package cache

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/relvacode/iso8601"

	"sensor-monitor/internal/models"
)

// ErrBadDocument документ не удалось разобрать
var ErrBadDocument = errors.New("malformed sensor document")

// document формат хранения показания: плоский JSON с полями исходной схемы
type document struct {
	DeviceID  string          `json:"deviceId"`
	Timestamp json.RawMessage `json:"timestamp"`
	Status    models.Status   `json:"status"`
	Kind      models.Kind     `json:"kind,omitempty"`

	Temperature *float64 `json:"temperature,omitempty"`
	Humidity    *float64 `json:"humidity,omitempty"`
	Pressure    *float64 `json:"pressure,omitempty"`
	GasLevel    *float64 `json:"gasLevel,omitempty"`
	Distance    *float64 `json:"distance,omitempty"`

	AccX                     *float64              `json:"accX,omitempty"`
	AccY                     *float64              `json:"accY,omitempty"`
	AccZ                     *float64              `json:"accZ,omitempty"`
	Classification           models.Classification `json:"classification,omitempty"`
	ClassificationConfidence *float64              `json:"classificationConfidence,omitempty"`
	AnomalyScore             *float64              `json:"anomalyScore,omitempty"`
	IsAnomaly                *bool                 `json:"isAnomaly,omitempty"`
}

// firestoreTime нативный тип времени исходного хранилища
type firestoreTime struct {
	Seconds     int64 `json:"seconds"`
	Nanoseconds int64 `json:"nanoseconds"`
}

// EncodeReading сериализует показание; NaN не представим в JSON и опускается
func EncodeReading(r models.Reading) ([]byte, error) {
	ts, err := json.Marshal(r.Timestamp.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, err
	}
	doc := document{
		DeviceID:  r.DeviceID,
		Timestamp: ts,
		Status:    r.Status,
		Kind:      r.Kind(),
	}

	switch p := r.Payload.(type) {
	case models.Environmental:
		doc.Temperature = number(p.Temperature)
		doc.Humidity = number(p.Humidity)
		doc.Pressure = number(p.Pressure)
		doc.GasLevel = number(p.GasLevel)
		doc.Distance = number(p.Distance)
	case models.Motor:
		doc.AccX = number(p.AccX)
		doc.AccY = number(p.AccY)
		doc.AccZ = number(p.AccZ)
		doc.Classification = p.Classification
		doc.ClassificationConfidence = number(p.ClassificationConfidence)
		doc.AnomalyScore = number(p.AnomalyScore)
		isAnomaly := p.IsAnomaly
		doc.IsAnomaly = &isAnomaly
	default:
		return nil, fmt.Errorf("%w: reading has no payload", ErrBadDocument)
	}

	return json.Marshal(doc)
}

// DecodeReading разбирает документ. Отсутствующий канал становится NaN.
// Схема берется из поля kind или определяется по наличию полей мотора.
func DecodeReading(b []byte) (models.Reading, error) {
	var doc document
	if err := json.Unmarshal(b, &doc); err != nil {
		return models.Reading{}, fmt.Errorf("%w: %v", ErrBadDocument, err)
	}

	ts, err := parseTimestamp(doc.Timestamp)
	if err != nil {
		return models.Reading{}, err
	}

	status := doc.Status
	if status == "" {
		status = models.StatusActive
	}

	kind := doc.Kind
	if kind == "" {
		kind = models.KindEnvironmental
		if doc.AccX != nil || doc.AccY != nil || doc.AccZ != nil || doc.AnomalyScore != nil || doc.IsAnomaly != nil {
			kind = models.KindMotor
		}
	}

	r := models.Reading{DeviceID: doc.DeviceID, Timestamp: ts, Status: status}
	switch kind {
	case models.KindEnvironmental:
		r.Payload = models.Environmental{
			Temperature: value(doc.Temperature),
			Humidity:    value(doc.Humidity),
			Pressure:    value(doc.Pressure),
			GasLevel:    value(doc.GasLevel),
			Distance:    value(doc.Distance),
		}
	case models.KindMotor:
		m := models.Motor{
			AccX:                     value(doc.AccX),
			AccY:                     value(doc.AccY),
			AccZ:                     value(doc.AccZ),
			Classification:           doc.Classification,
			ClassificationConfidence: value(doc.ClassificationConfidence),
			AnomalyScore:             value(doc.AnomalyScore),
		}
		if doc.IsAnomaly != nil {
			m.IsAnomaly = *doc.IsAnomaly
		}
		r.Payload = m
	default:
		return models.Reading{}, fmt.Errorf("%w: unknown kind %q", ErrBadDocument, kind)
	}

	if err := r.Validate(""); err != nil {
		return models.Reading{}, fmt.Errorf("%w: %v", ErrBadDocument, err)
	}
	return r, nil
}

// parseTimestamp принимает ISO8601 строку, unix-миллисекунды или {seconds, nanoseconds}
func parseTimestamp(raw json.RawMessage) (time.Time, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return time.Time{}, fmt.Errorf("%w: timestamp is required", ErrBadDocument)
	}

	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return time.Time{}, fmt.Errorf("%w: %v", ErrBadDocument, err)
		}
		t, err := iso8601.ParseString(s)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: timestamp: %v", ErrBadDocument, err)
		}
		return t.UTC(), nil
	case '{':
		var ft firestoreTime
		if err := json.Unmarshal(raw, &ft); err != nil {
			return time.Time{}, fmt.Errorf("%w: %v", ErrBadDocument, err)
		}
		return time.Unix(ft.Seconds, ft.Nanoseconds).UTC(), nil
	default:
		var ms float64
		if err := json.Unmarshal(raw, &ms); err != nil {
			return time.Time{}, fmt.Errorf("%w: timestamp: %v", ErrBadDocument, err)
		}
		return time.UnixMilli(int64(ms)).UTC(), nil
	}
}

func number(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func value(p *float64) float64 {
	if p == nil {
		return math.NaN()
	}
	return *p
}
