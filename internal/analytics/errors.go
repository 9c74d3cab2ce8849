package analytics

import (
	"errors"

	"iot-forecast/internal/features"
)

var (
	// ErrModelUnavailable модель или scaler не загружены при старте процесса
	ErrModelUnavailable = errors.New("model unavailable")
	// ErrInsufficientHistory у устройства меньше двух показаний
	ErrInsufficientHistory = features.ErrInsufficientHistory
	// ErrUpstreamStore журнал показаний недоступен или вернул ошибку
	ErrUpstreamStore = errors.New("upstream store failure")
	// ErrInvalidInput некорректные параметры запроса
	ErrInvalidInput = errors.New("invalid input")
)
