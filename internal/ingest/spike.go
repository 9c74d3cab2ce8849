package ingest

import (
	"math"

	"iot-forecast/internal/models"
)

// SpikeDetector обнаружение скачков температуры по z-score относительно
// последних показаний устройства
type SpikeDetector struct {
	Window      int
	MinReadings int
	Threshold   float64
}

// DefaultSpikeDetector 2σ по последним 10 показаниям, не меньше 5
func DefaultSpikeDetector() SpikeDetector {
	return SpikeDetector{Window: 10, MinReadings: 5, Threshold: 2.0}
}

// Check возвращает признак скачка и z-score температуры
func (d SpikeDetector) Check(temperature float64, history []models.Reading) (bool, float64) {
	if len(history) < d.MinReadings {
		return false, 0
	}

	temps := make([]float64, len(history))
	for i, r := range history {
		temps[i] = r.Temperature
	}

	avg := calculateAverage(temps)
	stdDev := calculateStdDev(temps, avg)
	deviation := math.Abs(temperature - avg)

	var zScore float64
	if stdDev > 0 {
		zScore = deviation / stdDev
	}
	return deviation > d.Threshold*stdDev, zScore
}

// calculateAverage вычисляет среднее значение
func calculateAverage(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// calculateStdDev вычисляет стандартное отклонение
func calculateStdDev(values []float64, mean float64) float64 {
	if len(values) == 0 {
		return 0
	}

	variance := 0.0
	for _, v := range values {
		diff := v - mean
		variance += diff * diff
	}
	variance /= float64(len(values))

	return math.Sqrt(variance)
}
