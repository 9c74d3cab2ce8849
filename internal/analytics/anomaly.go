package analytics

import (
	"fmt"

	"iot-forecast/internal/mlmodel"
	"iot-forecast/internal/models"
)

const (
	anomalyMessage = "Anomaly detected!"
	normalMessage  = "Normal reading"
)

// AnomalyDetector проверка показания моделью выбросов. История не нужна.
type AnomalyDetector struct {
	models *mlmodel.Bundle
}

// NewAnomalyDetector создает сервис проверки показаний
func NewAnomalyDetector(bundle *mlmodel.Bundle) *AnomalyDetector {
	return &AnomalyDetector{models: bundle}
}

// Detect классифицирует пару (температура, влажность)
func (d *AnomalyDetector) Detect(temperature, humidity float64) (models.AnomalyResult, error) {
	model, err := d.models.Outlier()
	if err != nil {
		return models.AnomalyResult{}, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}

	p := mlmodel.Point{temperature, humidity}
	isAnomaly := model.Predict(p) == -1
	msg := normalMessage
	if isAnomaly {
		msg = anomalyMessage
	}

	return models.AnomalyResult{
		IsAnomaly:    isAnomaly,
		AnomalyScore: round(model.Score(p), 4),
		Message:      msg,
	}, nil
}
