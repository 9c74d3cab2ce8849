// Package mlmodel содержит обученные модели в виде интерфейсов и их реализации,
// загружаемые из JSON-артефактов при старте процесса.
package mlmodel

import (
	"encoding/json"
	"fmt"
	"io"

	"iot-forecast/internal/features"
)

// Scaler преобразование признаков перед регрессией
type Scaler interface {
	Transform(v features.Vector) features.Vector
}

// Regressor модель прогноза температуры
type Regressor interface {
	Predict(v features.Vector) float64
}

// Point точка для модели выбросов: температура и влажность
type Point [2]float64

// OutlierDetector модель выбросов.
// Predict возвращает -1 для аномалии и 1 для нормы, Score чем меньше, тем аномальнее.
type OutlierDetector interface {
	Predict(p Point) int
	Score(p Point) float64
}

// MinMaxScaler линейное масштабирование x*scale + min
type MinMaxScaler struct {
	Min   features.Vector
	Scale features.Vector
}

// Transform масштабирует вектор признаков
func (s *MinMaxScaler) Transform(v features.Vector) features.Vector {
	var out features.Vector
	for i := range v {
		out[i] = v[i]*s.Scale[i] + s.Min[i]
	}
	return out
}

// LinearRegression линейная регрессия coef·x + intercept
type LinearRegression struct {
	Coef      features.Vector
	Intercept float64
}

// Predict вычисляет прогноз
func (m *LinearRegression) Predict(v features.Vector) float64 {
	y := m.Intercept
	for i := range v {
		y += m.Coef[i] * v[i]
	}
	return y
}

// DecodeScaler читает артефакт {"min": [...], "scale": [...]}
func DecodeScaler(r io.Reader) (*MinMaxScaler, error) {
	var raw struct {
		Min   []float64 `json:"min"`
		Scale []float64 `json:"scale"`
	}
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode scaler: %w", err)
	}

	s := &MinMaxScaler{}
	if err := fill(&s.Min, raw.Min, "min"); err != nil {
		return nil, err
	}
	if err := fill(&s.Scale, raw.Scale, "scale"); err != nil {
		return nil, err
	}
	return s, nil
}

// DecodeLinearRegression читает артефакт {"coef": [...], "intercept": x}
func DecodeLinearRegression(r io.Reader) (*LinearRegression, error) {
	var raw struct {
		Coef      []float64 `json:"coef"`
		Intercept *float64  `json:"intercept"`
	}
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode regression: %w", err)
	}
	if raw.Intercept == nil {
		return nil, fmt.Errorf("regression: missing intercept")
	}

	m := &LinearRegression{Intercept: *raw.Intercept}
	if err := fill(&m.Coef, raw.Coef, "coef"); err != nil {
		return nil, err
	}
	return m, nil
}

func fill(dst *features.Vector, src []float64, name string) error {
	if len(src) != features.Size {
		return fmt.Errorf("%s: expected %d values, got %d", name, features.Size, len(src))
	}
	copy(dst[:], src)
	return nil
}
