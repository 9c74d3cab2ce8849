package simulator

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/rand"
	"testing"
	"time"

	"iot-forecast/internal/models"
)

var testNow = time.Date(2026, 10, 16, 14, 30, 5, 123456789, time.UTC)

func TestInitialStateWithinBounds(t *testing.T) {
	for seed := int64(0); seed < 50; seed++ {
		m := NewModel(DefaultDevices, rand.New(rand.NewSource(seed)))
		for _, id := range DefaultDevices {
			s, ok := m.State(id)
			if !ok {
				t.Fatalf("missing state for %s", id)
			}
			checkBounds(t, s.Temperature, s.Humidity)
		}
	}
}

func TestCycleStaysWithinBounds(t *testing.T) {
	m := NewModel(DefaultDevices, rand.New(rand.NewSource(42)))

	for i := 0; i < 10000; i++ {
		for _, r := range m.Cycle(testNow) {
			checkBounds(t, r.Temperature, r.Humidity)
		}
	}
}

func TestClampAtBoundary(t *testing.T) {
	m := NewModel([]string{"edge"}, rand.New(rand.NewSource(7)))
	m.states["edge"] = &DeviceState{Temperature: TempMax, Humidity: HumidityMin}

	for i := 0; i < 1000; i++ {
		r, ok := m.Step("edge", testNow)
		if !ok {
			t.Fatal("step failed")
		}
		checkBounds(t, r.Temperature, r.Humidity)
	}
}

func TestStepIsBoundedWalk(t *testing.T) {
	m := NewModel([]string{"d"}, rand.New(rand.NewSource(3)))
	m.states["d"] = &DeviceState{Temperature: 27, Humidity: 60}

	prev, _ := m.State("d")
	for i := 0; i < 100; i++ {
		m.Step("d", testNow)
		cur, _ := m.State("d")
		if d := cur.Temperature - prev.Temperature; d < -TempDelta || d > TempDelta {
			t.Fatalf("temperature moved by %f", d)
		}
		if d := cur.Humidity - prev.Humidity; d < -HumidityDelta || d > HumidityDelta {
			t.Fatalf("humidity moved by %f", d)
		}
		prev = cur
	}
}

func TestCycleEmitsRoster(t *testing.T) {
	m := NewModel(DefaultDevices, rand.New(rand.NewSource(1)))

	readings := m.Cycle(testNow)
	if len(readings) != len(DefaultDevices) {
		t.Fatalf("expected %d readings, got %d", len(DefaultDevices), len(readings))
	}
	for i, r := range readings {
		if r.DeviceID != DefaultDevices[i] {
			t.Errorf("position %d: expected %s, got %s", i, DefaultDevices[i], r.DeviceID)
		}
		if !r.Timestamp.Equal(testNow.Truncate(time.Second)) {
			t.Errorf("unexpected timestamp %v", r.Timestamp)
		}
		if r.Temperature != round2(r.Temperature) || r.Humidity != round2(r.Humidity) {
			t.Errorf("values not rounded: %+v", r)
		}
	}

	if _, ok := m.Step("unknown", testNow); ok {
		t.Error("unknown device must not step")
	}
}

func checkBounds(t *testing.T, temp, hum float64) {
	t.Helper()
	if temp < TempMin || temp > TempMax {
		t.Fatalf("temperature %f out of [%v, %v]", temp, TempMin, TempMax)
	}
	if hum < HumidityMin || hum > HumidityMax {
		t.Fatalf("humidity %f out of [%v, %v]", hum, HumidityMin, HumidityMax)
	}
}

type flakyPublisher struct {
	fail map[string]bool
	got  []models.Reading
}

func (p *flakyPublisher) Publish(_ context.Context, r models.Reading) error {
	if p.fail[r.DeviceID] {
		return errors.New("broker unavailable")
	}
	p.got = append(p.got, r)
	return nil
}

func TestRunCycleContinuesAfterFailure(t *testing.T) {
	pub := &flakyPublisher{fail: map[string]bool{"sensor_02": true}}
	r := NewRunner(NewModel(DefaultDevices, rand.New(rand.NewSource(1))), pub, time.Second,
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	r.clock = func() time.Time { return testNow }

	if n := r.RunCycle(context.Background()); n != 4 {
		t.Fatalf("expected 4 published, got %d", n)
	}
	for _, got := range pub.got {
		if got.DeviceID == "sensor_02" {
			t.Fatal("failed device recorded as published")
		}
	}
	if pub.got[len(pub.got)-1].DeviceID != "sensor_05" {
		t.Error("cycle stopped before the last device")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	pub := &flakyPublisher{}
	r := NewRunner(NewModel(DefaultDevices, rand.New(rand.NewSource(1))), pub, time.Hour,
		slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop")
	}
	if len(pub.got) != len(DefaultDevices) {
		t.Errorf("expected one cycle before stop, got %d readings", len(pub.got))
	}
}

func TestEncodeReading(t *testing.T) {
	payload, err := encodeReading(models.Reading{
		DeviceID: "sensor_01", Temperature: 24.37, Humidity: 55.1, Timestamp: testNow.Truncate(time.Second),
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	var got map[string]any
	if err := json.Unmarshal(payload, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["timestamp"] != "2026-10-16T14:30:05Z" {
		t.Errorf("unexpected timestamp %v", got["timestamp"])
	}
	if got["device_id"] != "sensor_01" || got["temperature"] != 24.37 {
		t.Errorf("unexpected payload %s", payload)
	}
}
