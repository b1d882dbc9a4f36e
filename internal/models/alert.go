package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidInput некорректные входные данные
var ErrInvalidInput = errors.New("invalid input")

// ErrStatusConflict статус правила изменился с момента чтения
var ErrStatusConflict = errors.New("alert status changed concurrently")

// ValidationError ошибка проверки входных данных
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

// Is позволяет сопоставлять ошибки проверки с ErrInvalidInput
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// Metric метрика, по которой срабатывает правило
type Metric string

const (
	MetricAnomalyScore             Metric = "anomalyScore"
	MetricVibrationMagnitude       Metric = "vibrationMagnitude"
	MetricClassificationConfidence Metric = "classificationConfidence"
	MetricMotorHealth              Metric = "motorHealth"
	MetricTemperature              Metric = "temperature"
	MetricHumidity                 Metric = "humidity"
	MetricPressure                 Metric = "pressure"
	MetricGasLevel                 Metric = "gasLevel"
	MetricDistance                 Metric = "distance"
)

// Metrics возвращает метрики, доступные правилам для схемы
func (k Kind) Metrics() []Metric {
	switch k {
	case KindMotor:
		return []Metric{MetricAnomalyScore, MetricVibrationMagnitude, MetricClassificationConfidence, MetricMotorHealth}
	case KindEnvironmental:
		return []Metric{MetricTemperature, MetricHumidity, MetricPressure, MetricGasLevel, MetricDistance}
	}
	return nil
}

// Valid проверяет допустимость метрики
func (m Metric) Valid() bool {
	for _, k := range []Kind{KindMotor, KindEnvironmental} {
		for _, known := range k.Metrics() {
			if m == known {
				return true
			}
		}
	}
	return false
}

// Unit единица отображения метрики
func (m Metric) Unit() string {
	switch m {
	case MetricVibrationMagnitude:
		return " m/s²"
	case MetricClassificationConfidence, MetricHumidity:
		return "%"
	case MetricTemperature:
		return "°C"
	case MetricPressure:
		return " hPa"
	case MetricGasLevel:
		return " ppm"
	case MetricDistance:
		return " cm"
	}
	return ""
}

// Operator оператор сравнения с порогом
type Operator string

const (
	OperatorAbove   Operator = "above"
	OperatorBelow   Operator = "below"
	OperatorBetween Operator = "between"
)

// Priority приоритет правила
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// AlertStatus состояние правила
type AlertStatus string

const (
	AlertActive    AlertStatus = "active"
	AlertInactive  AlertStatus = "inactive"
	AlertTriggered AlertStatus = "triggered"
)

// MaxMessageLength ограничение длины текста правила
const MaxMessageLength = 200

// Alert пользовательское пороговое правило
type Alert struct {
	ID            string      `json:"id"`
	Type          Metric      `json:"type"`
	Operator      Operator    `json:"operator"`
	Threshold     float64     `json:"threshold"`
	ThresholdHigh *float64    `json:"thresholdHigh,omitempty"`
	Message       string      `json:"message"`
	Priority      Priority    `json:"priority"`
	Status        AlertStatus `json:"status"`
	LastTriggered *time.Time  `json:"lastTriggered,omitempty"`
	CreatedAt     time.Time   `json:"createdAt"`
	UpdatedAt     time.Time   `json:"updatedAt"`
}

// Matches проверяет условие правила. Границы интервала не включаются.
func (a Alert) Matches(value float64) bool {
	switch a.Operator {
	case OperatorAbove:
		return value > a.Threshold
	case OperatorBelow:
		return value < a.Threshold
	case OperatorBetween:
		return value > a.Threshold && a.ThresholdHigh != nil && value < *a.ThresholdHigh
	}
	return false
}

// Validate проверяет инварианты правила
func (a Alert) Validate() error {
	return validateRule(a.Type, a.Operator, a.Threshold, a.ThresholdHigh, a.Message, a.Priority)
}

// CreateAlertInput поля, задаваемые пользователем при создании
type CreateAlertInput struct {
	Type          Metric   `json:"type"`
	Operator      Operator `json:"operator"`
	Threshold     float64  `json:"threshold"`
	ThresholdHigh *float64 `json:"thresholdHigh,omitempty"`
	Message       string   `json:"message"`
	Priority      Priority `json:"priority"`
}

// Validate проверяет ввод до передачи в хранилище
func (in CreateAlertInput) Validate() error {
	return validateRule(in.Type, in.Operator, in.Threshold, in.ThresholdHigh, in.Message, in.Priority)
}

// AlertPatch частичное обновление правила
type AlertPatch struct {
	Type               *Metric      `json:"type,omitempty"`
	Operator           *Operator    `json:"operator,omitempty"`
	Threshold          *float64     `json:"threshold,omitempty"`
	ThresholdHigh      *float64     `json:"thresholdHigh,omitempty"`
	ClearThresholdHigh bool         `json:"clearThresholdHigh,omitempty"`
	Message            *string      `json:"message,omitempty"`
	Priority           *Priority    `json:"priority,omitempty"`
	// Status пользователь может только включить или выключить правило
	Status             *AlertStatus `json:"status,omitempty"`
}

// Validate статус triggered назначает только движок правил
func (p AlertPatch) Validate() error {
	if p.Status == nil {
		return nil
	}
	switch *p.Status {
	case AlertActive, AlertInactive:
		return nil
	default:
		return &ValidationError{Field: "status", Reason: fmt.Sprintf("can only be %s or %s", AlertActive, AlertInactive)}
	}
}

// Apply накладывает изменения на копию правила. Включение сработавшего
// правила оставляет его в triggered.
func (p AlertPatch) Apply(a Alert) Alert {
	if p.Type != nil {
		a.Type = *p.Type
	}
	if p.Operator != nil {
		a.Operator = *p.Operator
	}
	if p.Threshold != nil {
		a.Threshold = *p.Threshold
	}
	if p.ClearThresholdHigh {
		a.ThresholdHigh = nil
	}
	if p.ThresholdHigh != nil {
		v := *p.ThresholdHigh
		a.ThresholdHigh = &v
	}
	if p.Message != nil {
		a.Message = *p.Message
	}
	if p.Priority != nil {
		a.Priority = *p.Priority
	}
	if p.Status != nil {
		switch {
		case *p.Status == AlertInactive:
			a.Status = AlertInactive
		case *p.Status == AlertActive && a.Status == AlertInactive:
			a.Status = AlertActive
		}
	}
	return a
}

func validateRule(metric Metric, op Operator, threshold float64, high *float64, message string, priority Priority) error {
	if !metric.Valid() {
		return &ValidationError{Field: "type", Reason: fmt.Sprintf("unknown metric %q", metric)}
	}
	switch op {
	case OperatorAbove, OperatorBelow:
		if high != nil {
			return &ValidationError{Field: "thresholdHigh", Reason: "is only allowed with operator between"}
		}
	case OperatorBetween:
		if high == nil {
			return &ValidationError{Field: "thresholdHigh", Reason: "is required with operator between"}
		}
		if *high <= threshold {
			return &ValidationError{Field: "thresholdHigh", Reason: "must be greater than threshold"}
		}
	default:
		return &ValidationError{Field: "operator", Reason: fmt.Sprintf("unknown operator %q", op)}
	}
	msg := strings.TrimSpace(message)
	if msg == "" {
		return &ValidationError{Field: "message", Reason: "is required"}
	}
	if len([]rune(msg)) > MaxMessageLength {
		return &ValidationError{Field: "message", Reason: fmt.Sprintf("must be at most %d characters", MaxMessageLength)}
	}
	switch priority {
	case PriorityLow, PriorityMedium, PriorityHigh:
	default:
		return &ValidationError{Field: "priority", Reason: fmt.Sprintf("unknown priority %q", priority)}
	}
	return nil
}
