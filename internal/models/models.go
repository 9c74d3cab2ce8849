package models

import "time"

// Reading показание датчика температуры/влажности
type Reading struct {
	DeviceID    string    `json:"device_id"`
	Temperature float64   `json:"temperature"`
	Humidity    float64   `json:"humidity"`
	Timestamp   time.Time `json:"timestamp"`
}

// Severity уровень важности алерта
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// AlertType источник алерта
type AlertType string

const (
	AlertTemperature AlertType = "temperature"
	AlertHumidity    AlertType = "humidity"
	AlertAnomaly     AlertType = "anomaly"
)

// Alert алерт, сформированный при приеме показания
type Alert struct {
	Type     AlertType `json:"type"`
	Message  string    `json:"message"`
	Severity Severity  `json:"severity"`
}

// Record показание в журнале вместе с результатом проверки при приеме
type Record struct {
	Reading
	IsAnomaly bool    `json:"is_anomaly"`
	Alerts    []Alert `json:"alerts,omitempty"`
}

// PredictionResult прогноз температуры для устройства
type PredictionResult struct {
	DeviceID             string    `json:"device_id"`
	PredictedTemperature float64   `json:"predicted_temperature"`
	Confidence           float64   `json:"confidence"`
	Timestamp            time.Time `json:"timestamp"`
}

// NextHourPrediction прогноз температуры на следующий час
type NextHourPrediction struct {
	DeviceID             string    `json:"device_id"`
	CurrentTemperature   float64   `json:"current_temperature"`
	PredictedTemperature float64   `json:"predicted_temperature"`
	PredictionTime       time.Time `json:"prediction_time"`
	Confidence           float64   `json:"confidence"`
}

// AnomalyResult результат проверки показания моделью выбросов
type AnomalyResult struct {
	IsAnomaly    bool    `json:"is_anomaly"`
	AnomalyScore float64 `json:"anomaly_score"`
	Message      string  `json:"message"`
}

// Trend направление прогноза относительно последнего значения
type Trend string

const (
	TrendIncreasing Trend = "increasing"
	TrendDecreasing Trend = "decreasing"
)

// DeviceForecast сводка прогноза по одному устройству
type DeviceForecast struct {
	DeviceID      string  `json:"device_id"`
	CurrentTemp   float64 `json:"current_temp"`
	PredictedTemp float64 `json:"predicted_temp"`
	Trend         Trend   `json:"trend"`
}

// SkipReason причина, по которой устройство не попало в прогноз
type SkipReason string

const SkipInsufficientHistory SkipReason = "insufficient_history"

// SkippedDevice устройство, пропущенное при расчете прогноза по парку
type SkippedDevice struct {
	DeviceID string     `json:"device_id"`
	Reason   SkipReason `json:"reason"`
	Readings int        `json:"readings"`
}

// FleetForecast прогноз по всем известным устройствам
type FleetForecast struct {
	Predictions []DeviceForecast `json:"predictions"`
	Skipped     []SkippedDevice  `json:"skipped"`
}

// DeviceStats агрегированная статистика по истории устройства
type DeviceStats struct {
	DeviceID     string  `json:"device_id"`
	Count        int     `json:"count"`
	AvgTemp      float64 `json:"avg_temp"`
	MinTemp      float64 `json:"min_temp"`
	MaxTemp      float64 `json:"max_temp"`
	AvgHumidity  float64 `json:"avg_humidity"`
	MinHumidity  float64 `json:"min_humidity"`
	MaxHumidity  float64 `json:"max_humidity"`
	AnomalyCount int     `json:"anomaly_count"`
}

// AlertEvent событие об алертах для внешних подписчиков
type AlertEvent struct {
	ID        string    `json:"id"`
	DeviceID  string    `json:"device_id"`
	IsAnomaly bool      `json:"is_anomaly"`
	Alerts    []Alert   `json:"alerts"`
	Reading   Reading   `json:"reading"`
	Timestamp time.Time `json:"timestamp"`
}
