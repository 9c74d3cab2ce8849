// Package features строит вектор признаков для модели прогноза температуры.
//
// Порядок признаков фиксирован и должен совпадать с порядком, на котором
// обучалась модель: humidity, hour, day_of_week, temp_lag_1, temp_lag_2, humidity_lag_1.
// Проверить это во время работы нельзя, модель принимает любой вектор длины Size.
package features

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"iot-forecast/internal/models"
)

// Size число признаков в векторе
const Size = 6

// MinHistory минимальное число прошлых показаний для построения вектора
const MinHistory = 2

// Индексы признаков в векторе
const (
	IdxHumidity = iota
	IdxHour
	IdxDayOfWeek
	IdxTempLag1
	IdxTempLag2
	IdxHumidityLag1
)

// Names имена признаков в порядке вектора
var Names = [Size]string{"humidity", "hour", "day_of_week", "temp_lag_1", "temp_lag_2", "humidity_lag_1"}

// ErrInsufficientHistory в окне меньше MinHistory показаний
var ErrInsufficientHistory = errors.New("insufficient history")

// Vector вектор признаков
type Vector [Size]float64

// TempLag1 последняя известная температура
func (v Vector) TempLag1() float64 {
	return v[IdxTempLag1]
}

// TimeFields временные признаки момента, для которого строится прогноз
type TimeFields struct {
	Hour      int
	DayOfWeek int // 0 = понедельник
}

// Validate проверяет диапазоны hour (0-23) и day_of_week (0-6)
func (tf TimeFields) Validate() error {
	if tf.Hour < 0 || tf.Hour > 23 {
		return fmt.Errorf("hour must be in [0, 23], got %d", tf.Hour)
	}
	if tf.DayOfWeek < 0 || tf.DayOfWeek > 6 {
		return fmt.Errorf("day_of_week must be in [0, 6], got %d", tf.DayOfWeek)
	}
	return nil
}

// At возвращает временные признаки момента t в зоне loc.
// Неделя начинается с понедельника, как при обучении модели.
func At(t time.Time, loc *time.Location) TimeFields {
	if loc != nil {
		t = t.In(loc)
	}
	return TimeFields{
		Hour:      t.Hour(),
		DayOfWeek: (int(t.Weekday()) + 6) % 7,
	}
}

// Resolve подставляет значения момента now вместо незаданных hour/dayOfWeek
func Resolve(now time.Time, loc *time.Location, hour, dayOfWeek *int) TimeFields {
	tf := At(now, loc)
	if hour != nil {
		tf.Hour = *hour
	}
	if dayOfWeek != nil {
		tf.DayOfWeek = *dayOfWeek
	}
	return tf
}

// Build строит вектор из окна истории, текущей влажности и временных признаков.
//
// Лаговые признаки всегда берутся из последних показаний окна, независимо от того,
// для какого момента строится прогноз. Окно может быть не упорядочено.
func Build(window []models.Reading, humidity float64, tf TimeFields) (Vector, error) {
	if len(window) < MinHistory {
		return Vector{}, fmt.Errorf("%w: need %d readings, have %d", ErrInsufficientHistory, MinHistory, len(window))
	}

	latest := newestFirst(window)

	var v Vector
	v[IdxHumidity] = humidity
	v[IdxHour] = float64(tf.Hour)
	v[IdxDayOfWeek] = float64(tf.DayOfWeek)
	v[IdxTempLag1] = latest[0].Temperature
	v[IdxTempLag2] = latest[1].Temperature
	v[IdxHumidityLag1] = latest[0].Humidity
	return v, nil
}

// Latest возвращает самое позднее показание окна; окно не должно быть пустым
func Latest(window []models.Reading) models.Reading {
	return newestFirst(window)[0]
}

// newestFirst возвращает копию окна, отсортированную по убыванию времени.
// Для одинакового времени сохраняется исходный порядок.
func newestFirst(window []models.Reading) []models.Reading {
	sorted := make([]models.Reading, len(window))
	copy(sorted, window)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.After(sorted[j].Timestamp)
	})
	return sorted
}
