package analytics

import "iot-forecast/internal/models"

// Summarize считает статистику по записям одного устройства
func Summarize(deviceID string, records []models.Record) models.DeviceStats {
	st := models.DeviceStats{DeviceID: deviceID, Count: len(records)}
	if len(records) == 0 {
		return st
	}

	st.MinTemp, st.MaxTemp = records[0].Temperature, records[0].Temperature
	st.MinHumidity, st.MaxHumidity = records[0].Humidity, records[0].Humidity

	var sumTemp, sumHum float64
	for _, r := range records {
		sumTemp += r.Temperature
		sumHum += r.Humidity
		st.MinTemp = min(st.MinTemp, r.Temperature)
		st.MaxTemp = max(st.MaxTemp, r.Temperature)
		st.MinHumidity = min(st.MinHumidity, r.Humidity)
		st.MaxHumidity = max(st.MaxHumidity, r.Humidity)
		if r.IsAnomaly {
			st.AnomalyCount++
		}
	}

	n := float64(len(records))
	st.AvgTemp = round(sumTemp/n, 2)
	st.AvgHumidity = round(sumHum/n, 2)
	return st
}
