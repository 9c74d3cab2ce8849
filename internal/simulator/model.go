// Package simulator генерирует синтетические показания для фиксированного набора устройств.
//
// Состояние каждого устройства меняется случайным блужданием с ограничением диапазона;
// наружу попадают только сформированные показания.
package simulator

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"iot-forecast/internal/models"
)

// Границы состояния и шаги блуждания
const (
	TempMin     = 20.0
	TempMax     = 35.0
	HumidityMin = 40.0
	HumidityMax = 85.0

	TempDelta     = 1.5
	HumidityDelta = 3.0
)

// DefaultDevices набор устройств по умолчанию
var DefaultDevices = []string{"sensor_01", "sensor_02", "sensor_03", "sensor_04", "sensor_05"}

// DeviceState текущее состояние устройства
type DeviceState struct {
	Temperature float64
	Humidity    float64
}

// Model состояния всех устройств набора
type Model struct {
	mu      sync.Mutex
	rng     *rand.Rand
	devices []string
	states  map[string]*DeviceState
}

// NewModel создает модель; начальное состояние выбирается равномерно в границах
func NewModel(devices []string, rng *rand.Rand) *Model {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	m := &Model{
		rng:     rng,
		devices: append([]string(nil), devices...),
		states:  make(map[string]*DeviceState, len(devices)),
	}
	for _, id := range m.devices {
		m.states[id] = &DeviceState{
			Temperature: uniform(rng, TempMin, TempMax),
			Humidity:    uniform(rng, HumidityMin, HumidityMax),
		}
	}
	return m
}

// Devices набор устройств
func (m *Model) Devices() []string {
	return append([]string(nil), m.devices...)
}

// State копия состояния устройства
func (m *Model) State(deviceID string) (DeviceState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.states[deviceID]
	if !ok {
		return DeviceState{}, false
	}
	return *s, true
}

// Step делает один переход для устройства и возвращает показание
func (m *Model) Step(deviceID string, now time.Time) (models.Reading, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.states[deviceID]
	if !ok {
		return models.Reading{}, false
	}

	s.Temperature = clamp(s.Temperature+uniform(m.rng, -TempDelta, TempDelta), TempMin, TempMax)
	s.Humidity = clamp(s.Humidity+uniform(m.rng, -HumidityDelta, HumidityDelta), HumidityMin, HumidityMax)

	return models.Reading{
		DeviceID:    deviceID,
		Temperature: round2(s.Temperature),
		Humidity:    round2(s.Humidity),
		Timestamp:   now.UTC().Truncate(time.Second),
	}, true
}

// Cycle делает переход для всех устройств в порядке набора
func (m *Model) Cycle(now time.Time) []models.Reading {
	out := make([]models.Reading, 0, len(m.devices))
	for _, id := range m.devices {
		if r, ok := m.Step(id, now); ok {
			out = append(out, r)
		}
	}
	return out
}

func uniform(rng *rand.Rand, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
