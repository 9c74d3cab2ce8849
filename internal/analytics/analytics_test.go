package analytics

import (
	"context"
	"errors"
	"math"
	"sort"
	"testing"
	"time"

	"iot-forecast/internal/features"
	"iot-forecast/internal/mlmodel"
	"iot-forecast/internal/models"
)

type stubHistory struct {
	readings map[string][]models.Reading
	err      error
	calls    int
}

func (s *stubHistory) Recent(_ context.Context, deviceID string, limit int) ([]models.Reading, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	r := s.readings[deviceID]
	if len(r) > limit {
		r = r[:limit]
	}
	return r, nil
}

func (s *stubHistory) Devices(_ context.Context) ([]string, error) {
	if s.err != nil {
		return nil, s.err
	}
	ids := make([]string, 0, len(s.readings))
	for id := range s.readings {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

type recordingScaler struct {
	seen []features.Vector
}

func (s *recordingScaler) Transform(v features.Vector) features.Vector {
	s.seen = append(s.seen, v)
	return v
}

type stubRegressor struct {
	value float64
	calls int
}

func (r *stubRegressor) Predict(features.Vector) float64 {
	r.calls++
	return r.value
}

type stubOutlier struct {
	label int
	score float64
}

func (o stubOutlier) Predict(mlmodel.Point) int     { return o.label }
func (o stubOutlier) Score(mlmodel.Point) float64 { return o.score }

var now = time.Date(2026, 10, 16, 14, 30, 0, 0, time.UTC) // пятница

func window(temps ...float64) []models.Reading {
	out := make([]models.Reading, len(temps))
	for i, t := range temps {
		out[i] = models.Reading{
			DeviceID:    "sensor_01",
			Temperature: t,
			Humidity:    50 + float64(i),
			Timestamp:   now.Add(-time.Duration(i+1) * 5 * time.Second),
		}
	}
	return out
}

func newForecaster(h *stubHistory, value float64) (*Forecaster, *recordingScaler, *stubRegressor) {
	sc := &recordingScaler{}
	reg := &stubRegressor{value: value}
	return NewForecaster(h, mlmodel.NewBundle(reg, sc, nil), time.UTC), sc, reg
}

func TestPredictBuildsFeaturesAndConfidence(t *testing.T) {
	h := &stubHistory{readings: map[string][]models.Reading{"sensor_01": window(24.0, 23.0, 22.0)}}
	f, sc, reg := newForecaster(h, 24.456)

	hour, dow := 10, 2
	res, err := f.Predict(context.Background(), ForecastRequest{DeviceID: "sensor_01", Humidity: 56, Hour: &hour, DayOfWeek: &dow}, now)
	if err != nil {
		t.Fatalf("predict: %v", err)
	}

	want := features.Vector{56, 10, 2, 24.0, 23.0, 50}
	if len(sc.seen) != 1 || sc.seen[0] != want {
		t.Fatalf("expected scaler input %v, got %v", want, sc.seen)
	}
	if reg.calls != 1 {
		t.Fatalf("expected one model call, got %d", reg.calls)
	}
	if res.PredictedTemperature != 24.46 {
		t.Fatalf("expected rounded forecast 24.46, got %v", res.PredictedTemperature)
	}
	if res.Confidence != 0.95 {
		t.Fatalf("expected confidence 0.95, got %v", res.Confidence)
	}
	if !res.Timestamp.Equal(now) || res.DeviceID != "sensor_01" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestPredictDefaultsTimeFieldsFromNow(t *testing.T) {
	h := &stubHistory{readings: map[string][]models.Reading{"sensor_01": window(24.0, 23.0)}}
	f, sc, _ := newForecaster(h, 22.0)

	res, err := f.Predict(context.Background(), ForecastRequest{DeviceID: "sensor_01", Humidity: 60}, now)
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	want := features.Vector{60, 14, 4, 24.0, 23.0, 50}
	if sc.seen[0] != want {
		t.Fatalf("expected %v, got %v", want, sc.seen[0])
	}
	if res.Confidence != 0.8 {
		t.Fatalf("expected confidence 0.8, got %v", res.Confidence)
	}
}

func TestPredictInsufficientHistoryNeverCallsModel(t *testing.T) {
	for _, n := range []int{0, 1} {
		h := &stubHistory{readings: map[string][]models.Reading{"sensor_01": window(24.0, 23.0)[:n]}}
		f, _, reg := newForecaster(h, 22.0)

		_, err := f.Predict(context.Background(), ForecastRequest{DeviceID: "sensor_01", Humidity: 50}, now)
		if !errors.Is(err, ErrInsufficientHistory) {
			t.Fatalf("%d readings: expected ErrInsufficientHistory, got %v", n, err)
		}
		if _, err := f.PredictNextHour(context.Background(), "sensor_01", now); !errors.Is(err, ErrInsufficientHistory) {
			t.Fatalf("%d readings: next hour expected ErrInsufficientHistory, got %v", n, err)
		}
		if reg.calls != 0 {
			t.Fatalf("%d readings: model must not be called, got %d calls", n, reg.calls)
		}
	}
}

func TestPredictModelUnavailable(t *testing.T) {
	h := &stubHistory{readings: map[string][]models.Reading{"sensor_01": window(24.0, 23.0)}}
	f := NewForecaster(h, mlmodel.NewBundle(&stubRegressor{}, nil, nil), time.UTC)

	if _, err := f.Predict(context.Background(), ForecastRequest{DeviceID: "sensor_01"}, now); !errors.Is(err, ErrModelUnavailable) {
		t.Fatalf("expected ErrModelUnavailable, got %v", err)
	}
	if _, err := f.PredictNextHour(context.Background(), "sensor_01", now); !errors.Is(err, ErrModelUnavailable) {
		t.Fatalf("expected ErrModelUnavailable, got %v", err)
	}
	if h.calls != 0 {
		t.Fatal("store must not be queried without models")
	}
}

func TestPredictUpstreamStoreFailure(t *testing.T) {
	storeErr := errors.New("connection refused")
	h := &stubHistory{err: storeErr}
	f, _, _ := newForecaster(h, 22.0)

	_, err := f.Predict(context.Background(), ForecastRequest{DeviceID: "sensor_01"}, now)
	if !errors.Is(err, ErrUpstreamStore) || !errors.Is(err, storeErr) {
		t.Fatalf("expected wrapped store error, got %v", err)
	}
}

func TestPredictRejectsInvalidInput(t *testing.T) {
	h := &stubHistory{readings: map[string][]models.Reading{"sensor_01": window(24.0, 23.0)}}
	f, _, reg := newForecaster(h, 22.0)

	hour := 25
	if _, err := f.Predict(context.Background(), ForecastRequest{DeviceID: "sensor_01", Hour: &hour}, now); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if _, err := f.Predict(context.Background(), ForecastRequest{}, now); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for empty device, got %v", err)
	}
	if reg.calls != 0 {
		t.Fatal("model must not be called for invalid input")
	}
}

func TestPredictNextHour(t *testing.T) {
	h := &stubHistory{readings: map[string][]models.Reading{"sensor_01": window(24.0, 23.0, 22.0)}}
	f, sc, _ := newForecaster(h, 30.0)

	late := time.Date(2026, 10, 18, 23, 30, 0, 0, time.UTC) // воскресенье
	res, err := f.PredictNextHour(context.Background(), "sensor_01", late)
	if err != nil {
		t.Fatalf("predict next hour: %v", err)
	}

	// следующий час приходится на понедельник 00:30
	want := features.Vector{50, 0, 0, 24.0, 23.0, 50}
	if sc.seen[0] != want {
		t.Fatalf("expected %v, got %v", want, sc.seen[0])
	}
	if res.Confidence != NextHourConfidence {
		t.Fatalf("expected fixed confidence, got %v", res.Confidence)
	}
	if res.CurrentTemperature != 24.0 || res.PredictedTemperature != 30.0 {
		t.Fatalf("unexpected temperatures %+v", res)
	}
	if !res.PredictionTime.Equal(late.Add(time.Hour)) {
		t.Fatalf("unexpected prediction time %s", res.PredictionTime)
	}
}

func TestConfidenceAlwaysInBand(t *testing.T) {
	tests := []struct {
		forecast, last float64
		want           float64
	}{
		{22.0, 22.0, 0.95},
		{22.5, 22.0, 0.95},
		{23.0, 22.0, 0.9},
		{19.0, 22.0, 0.7},
		{1022.0, 22.0, 0.6},
		{-978.0, 22.0, 0.6},
		{math.Inf(1), 22.0, 0.6},
		{math.NaN(), 22.0, 0.6},
	}
	for _, tt := range tests {
		got := Confidence(tt.forecast, tt.last)
		if got < 0.6 || got > 0.95 {
			t.Fatalf("confidence %v out of band for forecast %v", got, tt.forecast)
		}
		if math.Abs(got-tt.want) > 1e-9 {
			t.Fatalf("forecast %v last %v: expected %v, got %v", tt.forecast, tt.last, tt.want, got)
		}
	}
}

func TestDetectSignConvention(t *testing.T) {
	d := NewAnomalyDetector(mlmodel.NewBundle(nil, nil, stubOutlier{label: -1, score: -0.712345}))
	res, err := d.Detect(40, 95)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if !res.IsAnomaly || res.Message != "Anomaly detected!" || res.AnomalyScore != -0.7123 {
		t.Fatalf("unexpected anomaly result %+v", res)
	}

	d = NewAnomalyDetector(mlmodel.NewBundle(nil, nil, stubOutlier{label: 1, score: -0.41}))
	res, err = d.Detect(24, 55)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if res.IsAnomaly || res.Message != "Normal reading" {
		t.Fatalf("unexpected normal result %+v", res)
	}
}

func TestDetectModelUnavailable(t *testing.T) {
	d := NewAnomalyDetector(mlmodel.NewBundle(&stubRegressor{}, &recordingScaler{}, nil))
	if _, err := d.Detect(24, 55); !errors.Is(err, ErrModelUnavailable) {
		t.Fatalf("expected ErrModelUnavailable, got %v", err)
	}
}

func TestClassifyTrend(t *testing.T) {
	if got := ClassifyTrend(23.5, 22.0); got != models.TrendIncreasing {
		t.Fatalf("expected increasing, got %s", got)
	}
	if got := ClassifyTrend(22.0, 22.0); got != models.TrendDecreasing {
		t.Fatalf("equal values should be decreasing, got %s", got)
	}
	if got := ClassifyTrend(21.0, 22.0); got != models.TrendDecreasing {
		t.Fatalf("expected decreasing, got %s", got)
	}
}

func TestPredictAllSkipsShortHistory(t *testing.T) {
	h := &stubHistory{readings: map[string][]models.Reading{
		"sensor_01": window(22.0, 21.0),
		"sensor_02": window(22.0),
		"sensor_03": window(22.0, 23.0, 24.0),
	}}
	f, sc, reg := newForecaster(h, 23.5)
	agg := NewFleetAggregator(h, f)

	res, err := agg.PredictAll(context.Background(), now)
	if err != nil {
		t.Fatalf("predict all: %v", err)
	}

	if reg.calls != 2 {
		t.Fatalf("expected 2 model calls, got %d", reg.calls)
	}
	if len(res.Predictions) != 2 || res.Predictions[0].DeviceID != "sensor_01" || res.Predictions[1].DeviceID != "sensor_03" {
		t.Fatalf("unexpected predictions %+v", res.Predictions)
	}
	if res.Predictions[0].Trend != models.TrendIncreasing || res.Predictions[0].CurrentTemp != 22.0 || res.Predictions[0].PredictedTemp != 23.5 {
		t.Fatalf("unexpected summary %+v", res.Predictions[0])
	}
	if len(res.Skipped) != 1 || res.Skipped[0].DeviceID != "sensor_02" || res.Skipped[0].Reason != models.SkipInsufficientHistory || res.Skipped[0].Readings != 1 {
		t.Fatalf("unexpected skipped %+v", res.Skipped)
	}
	// время берется из now, влажность из последнего показания
	want := features.Vector{50, 14, 4, 22.0, 21.0, 50}
	if sc.seen[0] != want {
		t.Fatalf("expected %v, got %v", want, sc.seen[0])
	}
}

func TestPredictAllEqualForecastIsDecreasing(t *testing.T) {
	h := &stubHistory{readings: map[string][]models.Reading{"sensor_01": window(22.0, 21.0)}}
	f, _, _ := newForecaster(h, 22.0)

	res, err := NewFleetAggregator(h, f).PredictAll(context.Background(), now)
	if err != nil {
		t.Fatalf("predict all: %v", err)
	}
	if res.Predictions[0].Trend != models.TrendDecreasing {
		t.Fatalf("expected decreasing, got %s", res.Predictions[0].Trend)
	}
}

func TestPredictAllFailures(t *testing.T) {
	h := &stubHistory{readings: map[string][]models.Reading{"sensor_01": window(22.0, 21.0)}}
	f := NewForecaster(h, mlmodel.NewBundle(nil, nil, nil), time.UTC)
	if _, err := NewFleetAggregator(h, f).PredictAll(context.Background(), now); !errors.Is(err, ErrModelUnavailable) {
		t.Fatalf("expected ErrModelUnavailable, got %v", err)
	}

	broken := &stubHistory{err: errors.New("timeout")}
	f, _, _ = newForecaster(broken, 22.0)
	if _, err := NewFleetAggregator(broken, f).PredictAll(context.Background(), now); !errors.Is(err, ErrUpstreamStore) {
		t.Fatalf("expected ErrUpstreamStore, got %v", err)
	}
}

func TestSummarize(t *testing.T) {
	recs := []models.Record{
		{Reading: models.Reading{Temperature: 20, Humidity: 40}},
		{Reading: models.Reading{Temperature: 30, Humidity: 80}, IsAnomaly: true},
		{Reading: models.Reading{Temperature: 25, Humidity: 60}},
	}
	st := Summarize("sensor_01", recs)
	if st.Count != 3 || st.AvgTemp != 25 || st.MinTemp != 20 || st.MaxTemp != 30 {
		t.Fatalf("unexpected temperature stats %+v", st)
	}
	if st.AvgHumidity != 60 || st.MinHumidity != 40 || st.MaxHumidity != 80 || st.AnomalyCount != 1 {
		t.Fatalf("unexpected humidity stats %+v", st)
	}
	if empty := Summarize("x", nil); empty.Count != 0 || empty.AvgTemp != 0 {
		t.Fatalf("unexpected empty stats %+v", empty)
	}
}
