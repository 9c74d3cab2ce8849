package analytics

import (
	"context"
	"fmt"
	"time"

	"iot-forecast/internal/features"
	"iot-forecast/internal/models"
)

// FleetWindow число показаний, запрашиваемых для каждого устройства
const FleetWindow = 10

// DeviceLister перечисление известных устройств
type DeviceLister interface {
	Devices(ctx context.Context) ([]string, error)
}

// FleetAggregator прогноз по всем устройствам парка
type FleetAggregator struct {
	devices    DeviceLister
	forecaster *Forecaster
}

// NewFleetAggregator создает агрегатор
func NewFleetAggregator(devices DeviceLister, forecaster *Forecaster) *FleetAggregator {
	return &FleetAggregator{
		devices:    devices,
		forecaster: forecaster,
	}
}

// PredictAll строит прогноз для каждого устройства с историей не короче двух показаний.
// Устройства с короткой историей не считаются ошибкой и попадают в Skipped.
func (a *FleetAggregator) PredictAll(ctx context.Context, now time.Time) (models.FleetForecast, error) {
	if err := a.forecaster.ready(); err != nil {
		return models.FleetForecast{}, err
	}

	ids, err := a.devices.Devices(ctx)
	if err != nil {
		return models.FleetForecast{}, fmt.Errorf("%w: %w", ErrUpstreamStore, err)
	}

	out := models.FleetForecast{
		Predictions: make([]models.DeviceForecast, 0, len(ids)),
		Skipped:     []models.SkippedDevice{},
	}
	tf := features.At(now, a.forecaster.loc)

	for _, id := range ids {
		window, err := a.forecaster.window(ctx, id, FleetWindow)
		if err != nil {
			return models.FleetForecast{}, err
		}
		if len(window) < features.MinHistory {
			out.Skipped = append(out.Skipped, models.SkippedDevice{
				DeviceID: id,
				Reason:   models.SkipInsufficientHistory,
				Readings: len(window),
			})
			continue
		}

		vec, err := features.Build(window, features.Latest(window).Humidity, tf)
		if err != nil {
			return models.FleetForecast{}, fmt.Errorf("device %s: %w", id, err)
		}
		forecast, err := a.forecaster.infer(vec)
		if err != nil {
			return models.FleetForecast{}, err
		}

		out.Predictions = append(out.Predictions, models.DeviceForecast{
			DeviceID:      id,
			CurrentTemp:   round(vec.TempLag1(), 2),
			PredictedTemp: round(forecast, 2),
			Trend:         ClassifyTrend(forecast, vec.TempLag1()),
		})
	}
	return out, nil
}

// ClassifyTrend increasing только если прогноз строго выше последнего значения
func ClassifyTrend(forecast, lastTemp float64) models.Trend {
	if forecast > lastTemp {
		return models.TrendIncreasing
	}
	return models.TrendDecreasing
}
