package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"iot-forecast/internal/analytics"
	"iot-forecast/internal/ingest"
	"iot-forecast/internal/metrics"
	"iot-forecast/internal/mlmodel"
	"iot-forecast/internal/models"

	"github.com/gorilla/mux"
)

const (
	defaultHistoryLimit  = 50
	defaultReadingsLimit = 100
	maxLimit             = 1000
	statsLimit           = 10000
	maxBatch             = 1000
)

// ReadingStore журнал показаний, нужный HTTP-слою
type ReadingStore interface {
	Devices(ctx context.Context) ([]string, error)
	RecentRecords(ctx context.Context, deviceID string, limit int) ([]models.Record, error)
	Anomalies(ctx context.Context, deviceID string, limit int) ([]models.Record, error)
	Ping(ctx context.Context) error
	GetStats() map[string]interface{}
}

// Ingestor прием показаний в обработку
type Ingestor interface {
	Submit(r models.Reading) error
	QueueLen() int
}

// Handler обработчик HTTP запросов
type Handler struct {
	forecaster *analytics.Forecaster
	detector   *analytics.AnomalyDetector
	fleet      *analytics.FleetAggregator
	bundle     *mlmodel.Bundle
	store      ReadingStore
	ingest     Ingestor
	now        func() time.Time
	log        *slog.Logger
}

// Deps зависимости обработчика
type Deps struct {
	Forecaster *analytics.Forecaster
	Detector   *analytics.AnomalyDetector
	Fleet      *analytics.FleetAggregator
	Bundle     *mlmodel.Bundle
	Store      ReadingStore
	Ingest     Ingestor
	Clock      func() time.Time
	Logger     *slog.Logger
}

// NewHandler создает новый обработчик
func NewHandler(d Deps) *Handler {
	if d.Clock == nil {
		d.Clock = time.Now
	}
	return &Handler{
		forecaster: d.Forecaster,
		detector:   d.Detector,
		fleet:      d.Fleet,
		bundle:     d.Bundle,
		store:      d.Store,
		ingest:     d.Ingest,
		now:        d.Clock,
		log:        d.Logger,
	}
}

type predictRequest struct {
	DeviceID  string   `json:"device_id"`
	Humidity  *float64 `json:"humidity"`
	Hour      *int     `json:"hour"`
	DayOfWeek *int     `json:"day_of_week"`
}

// Predict обрабатывает POST /predict
func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() {
		metrics.PredictionLatency.WithLabelValues("predict").Observe(time.Since(start).Seconds())
	}()

	var req predictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.predictionError(w, "predict", badRequest("invalid JSON"))
		return
	}
	if req.Humidity == nil {
		h.predictionError(w, "predict", badRequest("humidity is required"))
		return
	}

	result, err := h.forecaster.Predict(r.Context(), analytics.ForecastRequest{
		DeviceID:  req.DeviceID,
		Humidity:  *req.Humidity,
		Hour:      req.Hour,
		DayOfWeek: req.DayOfWeek,
	}, h.now())
	if err != nil {
		h.predictionError(w, "predict", err)
		return
	}

	metrics.PredictionsTotal.WithLabelValues("predict", "success").Inc()
	writeJSON(w, http.StatusOK, result)
}

// PredictNextHour обрабатывает GET /predict/next-hour/{device_id}
func (h *Handler) PredictNextHour(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() {
		metrics.PredictionLatency.WithLabelValues("next_hour").Observe(time.Since(start).Seconds())
	}()

	result, err := h.forecaster.PredictNextHour(r.Context(), mux.Vars(r)["device_id"], h.now())
	if err != nil {
		h.predictionError(w, "next_hour", err)
		return
	}

	metrics.PredictionsTotal.WithLabelValues("next_hour", "success").Inc()
	writeJSON(w, http.StatusOK, result)
}

type detectRequest struct {
	Temperature *float64 `json:"temperature"`
	Humidity    *float64 `json:"humidity"`
}

// DetectAnomaly обрабатывает POST /anomaly/detect
func (h *Handler) DetectAnomaly(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() {
		metrics.PredictionLatency.WithLabelValues("anomaly").Observe(time.Since(start).Seconds())
	}()

	var req detectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.predictionError(w, "anomaly", badRequest("invalid JSON"))
		return
	}
	if req.Temperature == nil || req.Humidity == nil {
		h.predictionError(w, "anomaly", badRequest("temperature and humidity are required"))
		return
	}

	result, err := h.detector.Detect(*req.Temperature, *req.Humidity)
	if err != nil {
		h.predictionError(w, "anomaly", err)
		return
	}

	if result.IsAnomaly {
		metrics.AnomaliesDetected.WithLabelValues("model", "none").Inc()
	}
	metrics.PredictionsTotal.WithLabelValues("anomaly", "success").Inc()
	writeJSON(w, http.StatusOK, result)
}

// FleetPredictions обрабатывает GET /stats/predictions
func (h *Handler) FleetPredictions(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() {
		metrics.PredictionLatency.WithLabelValues("fleet").Observe(time.Since(start).Seconds())
	}()

	fleet, err := h.fleet.PredictAll(r.Context(), h.now())
	if err != nil {
		h.predictionError(w, "fleet", err)
		return
	}

	metrics.PredictionsTotal.WithLabelValues("fleet", "success").Inc()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":     true,
		"predictions": fleet.Predictions,
		"skipped":     fleet.Skipped,
	})
}

// AnomalyHistory обрабатывает GET /anomaly/history
func (h *Handler) AnomalyHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r, defaultHistoryLimit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	deviceID := r.URL.Query().Get("device_id")

	records, err := h.store.Anomalies(r.Context(), deviceID, limit)
	metrics.RedisOperations.WithLabelValues("anomalies", metrics.Status(err)).Inc()
	if err != nil {
		h.writeError(w, upstream(err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":     len(records),
		"anomalies": nonNil(records),
	})
}

// SubmitReading обрабатывает POST /readings
func (h *Handler) SubmitReading(w http.ResponseWriter, r *http.Request) {
	var reading models.Reading
	if err := json.NewDecoder(r.Body).Decode(&reading); err != nil {
		h.writeError(w, badRequest("invalid JSON"))
		return
	}

	if err := h.ingest.Submit(reading); err != nil {
		if errors.Is(err, ingest.ErrQueueFull) || errors.Is(err, ingest.ErrStopped) {
			writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: err.Error(), Code: "unavailable"})
			return
		}
		h.writeError(w, badRequest(err.Error()))
		return
	}

	metrics.ReadingsReceived.WithLabelValues("http").Inc()
	writeJSON(w, http.StatusAccepted, map[string]string{
		"status":    "accepted",
		"device_id": reading.DeviceID,
	})
}

// SubmitBatch обрабатывает POST /readings/batch. Некорректные показания пропускаются.
// Если ни одно показание не принято из-за переполненной очереди, отвечает 503.
func (h *Handler) SubmitBatch(w http.ResponseWriter, r *http.Request) {
	var batch []models.Reading
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		h.writeError(w, badRequest("invalid JSON"))
		return
	}
	if len(batch) > maxBatch {
		h.writeError(w, badRequest("batch exceeds "+strconv.Itoa(maxBatch)+" readings"))
		return
	}

	accepted := 0
	var unavailable error
	for _, reading := range batch {
		if err := h.ingest.Submit(reading); err != nil {
			if errors.Is(err, ingest.ErrQueueFull) || errors.Is(err, ingest.ErrStopped) {
				unavailable = err
			}
			h.log.Debug("batch reading rejected", "device_id", reading.DeviceID, "err", err)
			continue
		}
		metrics.ReadingsReceived.WithLabelValues("http").Inc()
		accepted++
	}

	if accepted == 0 && unavailable != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: unavailable.Error(), Code: "unavailable"})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"status":   "accepted",
		"total":    len(batch),
		"accepted": accepted,
	})
}

// ListDevices обрабатывает GET /devices
func (h *Handler) ListDevices(w http.ResponseWriter, r *http.Request) {
	ids, err := h.store.Devices(r.Context())
	metrics.RedisOperations.WithLabelValues("devices", metrics.Status(err)).Inc()
	if err != nil {
		h.writeError(w, upstream(err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":   len(ids),
		"devices": nonNil(ids),
	})
}

// DeviceReadings обрабатывает GET /devices/{device_id}/readings
func (h *Handler) DeviceReadings(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r, defaultReadingsLimit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	deviceID := mux.Vars(r)["device_id"]

	records, err := h.store.RecentRecords(r.Context(), deviceID, limit)
	metrics.RedisOperations.WithLabelValues("recent", metrics.Status(err)).Inc()
	if err != nil {
		h.writeError(w, upstream(err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"device_id": deviceID,
		"count":     len(records),
		"readings":  nonNil(records),
	})
}

// LatestReadings обрабатывает GET /readings/latest: последнее показание каждого устройства
func (h *Handler) LatestReadings(w http.ResponseWriter, r *http.Request) {
	ids, err := h.store.Devices(r.Context())
	if err != nil {
		h.writeError(w, upstream(err))
		return
	}

	latest := make([]models.Record, 0, len(ids))
	for _, id := range ids {
		records, err := h.store.RecentRecords(r.Context(), id, 1)
		if err != nil {
			h.writeError(w, upstream(err))
			return
		}
		if len(records) > 0 {
			latest = append(latest, records[0])
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":    len(latest),
		"readings": latest,
	})
}

// GetStats обрабатывает GET /stats. С device_id возвращает статистику устройства,
// без него состояние пула Redis и очереди приема.
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	deviceID := r.URL.Query().Get("device_id")
	if deviceID == "" {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"redis":      h.store.GetStats(),
			"queue_size": h.ingest.QueueLen(),
			"models":     h.bundle.Status(),
			"timestamp":  h.now().UTC(),
		})
		return
	}

	records, err := h.store.RecentRecords(r.Context(), deviceID, statsLimit)
	if err != nil {
		h.writeError(w, upstream(err))
		return
	}
	writeJSON(w, http.StatusOK, analytics.Summarize(deviceID, records))
}

// HealthCheck обрабатывает GET /health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	// Проверяем Redis
	redisOK := h.store.Ping(ctx) == nil
	status := h.bundle.Status()

	health := "healthy"
	httpStatus := http.StatusOK
	if !redisOK {
		health = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, map[string]interface{}{
		"status":        health,
		"models_loaded": status.AllLoaded(),
		"models":        status,
		"redis":         redisOK,
		"timestamp":     h.now().UTC(),
	})
}

// predictionError учитывает неуспешный прогноз и пишет ответ с ошибкой
func (h *Handler) predictionError(w http.ResponseWriter, kind string, err error) {
	_, code := classify(err)
	metrics.PredictionsTotal.WithLabelValues(kind, code).Inc()
	h.writeError(w, err)
}

func parseLimit(r *http.Request, def int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, badRequest("limit must be a positive integer")
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return limit, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
