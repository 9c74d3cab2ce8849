package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter регистрирует маршруты API
func NewRouter(h *Handler, limiter *RateLimiter) *mux.Router {
	r := mux.NewRouter()
	r.Use(requestID, instrument)

	api := r.NewRoute().Subrouter()
	if limiter != nil {
		api.Use(limiter.Middleware)
	}

	api.HandleFunc("/predict", h.Predict).Methods(http.MethodPost)
	api.HandleFunc("/predict/next-hour/{device_id}", h.PredictNextHour).Methods(http.MethodGet)
	api.HandleFunc("/anomaly/detect", h.DetectAnomaly).Methods(http.MethodPost)
	api.HandleFunc("/anomaly/history", h.AnomalyHistory).Methods(http.MethodGet)
	api.HandleFunc("/stats/predictions", h.FleetPredictions).Methods(http.MethodGet)
	api.HandleFunc("/stats", h.GetStats).Methods(http.MethodGet)
	api.HandleFunc("/readings", h.SubmitReading).Methods(http.MethodPost)
	api.HandleFunc("/readings/batch", h.SubmitBatch).Methods(http.MethodPost)
	api.HandleFunc("/readings/latest", h.LatestReadings).Methods(http.MethodGet)
	api.HandleFunc("/devices", h.ListDevices).Methods(http.MethodGet)
	api.HandleFunc("/devices/{device_id}/readings", h.DeviceReadings).Methods(http.MethodGet)

	r.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)

	// Prometheus metrics endpoint
	r.Handle("/prometheus", promhttp.Handler()).Methods(http.MethodGet)

	return r
}
