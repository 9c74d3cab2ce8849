package ingest

import (
	"fmt"

	"iot-forecast/internal/models"
)

// Допустимые диапазоны показаний
const (
	minTemperature = -50.0
	maxTemperature = 100.0
	minHumidity    = 0.0
	maxHumidity    = 100.0

	criticalMargin = 5.0
)

// Thresholds пороги алертов
type Thresholds struct {
	Temperature float64
	Humidity    float64
}

// Evaluate возвращает алерты превышения порогов
func (t Thresholds) Evaluate(r models.Reading) []models.Alert {
	var alerts []models.Alert

	if r.Temperature > t.Temperature {
		alerts = append(alerts, models.Alert{
			Type:     models.AlertTemperature,
			Message:  fmt.Sprintf("High temperature: %.2f°C (threshold: %.2f°C)", r.Temperature, t.Temperature),
			Severity: models.SeverityWarning,
		})
	}
	if r.Temperature > t.Temperature+criticalMargin {
		alerts = append(alerts, models.Alert{
			Type:     models.AlertTemperature,
			Message:  fmt.Sprintf("Critical temperature: %.2f°C", r.Temperature),
			Severity: models.SeverityCritical,
		})
	}
	if r.Humidity > t.Humidity {
		alerts = append(alerts, models.Alert{
			Type:     models.AlertHumidity,
			Message:  fmt.Sprintf("High humidity: %.2f%% (threshold: %.2f%%)", r.Humidity, t.Humidity),
			Severity: models.SeverityWarning,
		})
	}
	return alerts
}

func spikeAlert() models.Alert {
	return models.Alert{
		Type:     models.AlertAnomaly,
		Message:  "Unusual sensor reading detected",
		Severity: models.SeverityWarning,
	}
}

// Validate проверяет обязательные поля и физические диапазоны
func Validate(r models.Reading) error {
	if r.DeviceID == "" {
		return fmt.Errorf("device_id is required")
	}
	if r.Timestamp.IsZero() {
		return fmt.Errorf("timestamp is required")
	}
	if r.Temperature < minTemperature || r.Temperature > maxTemperature {
		return fmt.Errorf("temperature %.2f outside [%.0f, %.0f]", r.Temperature, minTemperature, maxTemperature)
	}
	if r.Humidity < minHumidity || r.Humidity > maxHumidity {
		return fmt.Errorf("humidity %.2f outside [%.0f, %.0f]", r.Humidity, minHumidity, maxHumidity)
	}
	return nil
}
