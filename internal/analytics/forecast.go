package analytics

import (
	"context"
	"fmt"
	"math"
	"time"

	"iot-forecast/internal/features"
	"iot-forecast/internal/mlmodel"
	"iot-forecast/internal/models"
)

const (
	// ForecastWindow число показаний, запрашиваемых для прогноза
	ForecastWindow = 5
	// NextHourConfidence фиксированная уверенность прогноза на следующий час
	NextHourConfidence = 0.85

	minConfidence = 0.6
	maxConfidence = 0.95
)

// HistoryReader доступ к последним показаниям устройства, новые первыми
type HistoryReader interface {
	Recent(ctx context.Context, deviceID string, limit int) ([]models.Reading, error)
}

// ForecastRequest запрос прогноза. Hour и DayOfWeek по умолчанию берутся из момента запроса.
type ForecastRequest struct {
	DeviceID  string
	Humidity  float64
	Hour      *int
	DayOfWeek *int
}

// Forecaster сервис прогноза температуры
type Forecaster struct {
	history HistoryReader
	models  *mlmodel.Bundle
	loc     *time.Location
}

// NewForecaster создает сервис прогноза. loc задает зону для часа и дня недели.
func NewForecaster(history HistoryReader, bundle *mlmodel.Bundle, loc *time.Location) *Forecaster {
	if loc == nil {
		loc = time.Local
	}
	return &Forecaster{
		history: history,
		models:  bundle,
		loc:     loc,
	}
}

// Predict прогнозирует температуру устройства по текущей влажности
func (f *Forecaster) Predict(ctx context.Context, req ForecastRequest, now time.Time) (models.PredictionResult, error) {
	if req.DeviceID == "" {
		return models.PredictionResult{}, fmt.Errorf("%w: device_id is required", ErrInvalidInput)
	}
	tf := features.Resolve(now, f.loc, req.Hour, req.DayOfWeek)
	if err := tf.Validate(); err != nil {
		return models.PredictionResult{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err := f.ready(); err != nil {
		return models.PredictionResult{}, err
	}

	window, err := f.window(ctx, req.DeviceID, ForecastWindow)
	if err != nil {
		return models.PredictionResult{}, err
	}
	vec, err := features.Build(window, req.Humidity, tf)
	if err != nil {
		return models.PredictionResult{}, fmt.Errorf("device %s: %w", req.DeviceID, err)
	}

	forecast, err := f.infer(vec)
	if err != nil {
		return models.PredictionResult{}, err
	}

	return models.PredictionResult{
		DeviceID:             req.DeviceID,
		PredictedTemperature: round(forecast, 2),
		Confidence:           round(Confidence(forecast, vec.TempLag1()), 2),
		Timestamp:            now,
	}, nil
}

// PredictNextHour прогнозирует температуру на момент now+1h.
// Время суток и день недели берутся из будущего момента, лаги и влажность из последних показаний.
func (f *Forecaster) PredictNextHour(ctx context.Context, deviceID string, now time.Time) (models.NextHourPrediction, error) {
	if deviceID == "" {
		return models.NextHourPrediction{}, fmt.Errorf("%w: device_id is required", ErrInvalidInput)
	}
	if err := f.ready(); err != nil {
		return models.NextHourPrediction{}, err
	}

	window, err := f.window(ctx, deviceID, ForecastWindow)
	if err != nil {
		return models.NextHourPrediction{}, err
	}
	if len(window) < features.MinHistory {
		return models.NextHourPrediction{}, fmt.Errorf("device %s: %w: have %d readings", deviceID, ErrInsufficientHistory, len(window))
	}

	next := now.Add(time.Hour)
	vec, err := features.Build(window, features.Latest(window).Humidity, features.At(next, f.loc))
	if err != nil {
		return models.NextHourPrediction{}, fmt.Errorf("device %s: %w", deviceID, err)
	}

	forecast, err := f.infer(vec)
	if err != nil {
		return models.NextHourPrediction{}, err
	}

	return models.NextHourPrediction{
		DeviceID:             deviceID,
		CurrentTemperature:   round(vec.TempLag1(), 2),
		PredictedTemperature: round(forecast, 2),
		PredictionTime:       next,
		Confidence:           NextHourConfidence,
	}, nil
}

// Confidence эвристика уверенности: падает по мере удаления прогноза от последнего
// значения и ограничена диапазоном [0.6, 0.95]
func Confidence(forecast, lastTemp float64) float64 {
	c := 1.0 - math.Abs(forecast-lastTemp)/10.0
	if math.IsNaN(c) {
		return minConfidence
	}
	return math.Min(maxConfidence, math.Max(minConfidence, c))
}

func (f *Forecaster) ready() error {
	if _, _, err := f.models.Forecast(); err != nil {
		return fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	return nil
}

// infer масштабирует вектор и вызывает регрессию
func (f *Forecaster) infer(vec features.Vector) (float64, error) {
	scaler, reg, err := f.models.Forecast()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	return reg.Predict(scaler.Transform(vec)), nil
}

func (f *Forecaster) window(ctx context.Context, deviceID string, limit int) ([]models.Reading, error) {
	window, err := f.history.Recent(ctx, deviceID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstreamStore, err)
	}
	return window, nil
}

func round(x float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(x*p) / p
}
