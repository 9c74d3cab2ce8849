package mlmodel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"iot-forecast/internal/artifacts"
)

// Имена файлов артефактов
const (
	RegressionFile = "temperature_model.json"
	ScalerFile     = "scaler.json"
	OutlierFile    = "anomaly_model.json"
)

// ErrUnavailable модель не загружена при старте
var ErrUnavailable = errors.New("model not loaded")

// Bundle набор моделей процесса. Создается один раз при старте и передается сервисам.
// Модель, которую не удалось загрузить, остается недоступной до перезапуска.
type Bundle struct {
	regressor Regressor
	scaler    Scaler
	outlier   OutlierDetector

	regressorErr error
	scalerErr    error
	outlierErr   error
}

// Status флаги загруженных моделей
type Status struct {
	Regression bool `json:"regression"`
	Scaler     bool `json:"scaler"`
	Outlier    bool `json:"outlier"`
}

// AllLoaded все модели загружены
func (s Status) AllLoaded() bool {
	return s.Regression && s.Scaler && s.Outlier
}

// NewBundle собирает набор из готовых моделей; nil означает недоступную модель
func NewBundle(reg Regressor, sc Scaler, out OutlierDetector) *Bundle {
	b := &Bundle{regressor: reg, scaler: sc, outlier: out}
	if reg == nil {
		b.regressorErr = ErrUnavailable
	}
	if sc == nil {
		b.scalerErr = ErrUnavailable
	}
	if out == nil {
		b.outlierErr = ErrUnavailable
	}
	return b
}

// Load загружает все артефакты из src. Ошибки отдельных моделей не прерывают загрузку,
// а переводят модель в недоступное состояние.
func Load(ctx context.Context, src artifacts.Source, log *slog.Logger) *Bundle {
	b := &Bundle{}

	var err error
	if b.regressor, err = loadOne(ctx, src, RegressionFile, func(r io.Reader) (Regressor, error) {
		return DecodeLinearRegression(r)
	}); err != nil {
		b.regressor, b.regressorErr = nil, err
	}
	if b.scaler, err = loadOne(ctx, src, ScalerFile, func(r io.Reader) (Scaler, error) {
		return DecodeScaler(r)
	}); err != nil {
		b.scaler, b.scalerErr = nil, err
	}
	if b.outlier, err = loadOne(ctx, src, OutlierFile, func(r io.Reader) (OutlierDetector, error) {
		return DecodeIsolationForest(r)
	}); err != nil {
		b.outlier, b.outlierErr = nil, err
	}

	results := []struct {
		name string
		err  error
	}{
		{RegressionFile, b.regressorErr},
		{ScalerFile, b.scalerErr},
		{OutlierFile, b.outlierErr},
	}
	for _, r := range results {
		if r.err != nil {
			log.Error("model not loaded", "artifact", r.name, "source", src.String(), "err", r.err)
		} else {
			log.Info("model loaded", "artifact", r.name, "source", src.String())
		}
	}
	return b
}

func loadOne[T any](ctx context.Context, src artifacts.Source, name string, decode func(io.Reader) (T, error)) (T, error) {
	var zero T
	rc, err := src.Open(ctx, name)
	if err != nil {
		return zero, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer rc.Close()

	m, err := decode(rc)
	if err != nil {
		return zero, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return m, nil
}

// Forecast возвращает пару scaler + регрессия или ErrUnavailable
func (b *Bundle) Forecast() (Scaler, Regressor, error) {
	if b.scalerErr != nil {
		return nil, nil, fmt.Errorf("scaler: %w", b.scalerErr)
	}
	if b.regressorErr != nil {
		return nil, nil, fmt.Errorf("regression: %w", b.regressorErr)
	}
	return b.scaler, b.regressor, nil
}

// Outlier возвращает модель выбросов или ErrUnavailable
func (b *Bundle) Outlier() (OutlierDetector, error) {
	if b.outlierErr != nil {
		return nil, fmt.Errorf("outlier: %w", b.outlierErr)
	}
	return b.outlier, nil
}

// Status возвращает флаги загруженных моделей
func (b *Bundle) Status() Status {
	return Status{
		Regression: b.regressorErr == nil,
		Scaler:     b.scalerErr == nil,
		Outlier:    b.outlierErr == nil,
	}
}
