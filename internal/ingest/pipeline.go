package ingest

import (
	"context"
	"errors"
	"fmt"
	"hash/crc32"
	"log/slog"
	"sync"
	"time"

	"iot-forecast/internal/metrics"
	"iot-forecast/internal/models"

	"github.com/google/uuid"
)

// ErrQueueFull очередь воркера переполнена
var ErrQueueFull = errors.New("ingest queue full")

// ErrStopped конвейер остановлен
var ErrStopped = errors.New("ingest pipeline stopped")

const processTimeout = 5 * time.Second

// Store журнал показаний
type Store interface {
	Recent(ctx context.Context, deviceID string, limit int) ([]models.Reading, error)
	Append(ctx context.Context, rec models.Record) error
}

// Notifier рассылка алертов
type Notifier interface {
	Notify(ctx context.Context, ev models.AlertEvent) error
}

// Options параметры конвейера
type Options struct {
	Workers    int
	QueueSize  int
	Thresholds Thresholds
	Spikes     SpikeDetector
	Clock      func() time.Time
}

// Pipeline прием показаний: проверка, алерты, детектор скачков, запись в журнал.
// Показания одного устройства всегда попадают к одному воркеру и обрабатываются по порядку.
type Pipeline struct {
	store      Store
	notifier   Notifier
	log        *slog.Logger
	thresholds Thresholds
	spikes     SpikeDetector
	now        func() time.Time

	queues  []chan models.Reading
	mu      sync.RWMutex
	stopped bool
	wg      sync.WaitGroup
}

// NewPipeline создает конвейер; воркеры запускаются через Start
func NewPipeline(store Store, notifier Notifier, log *slog.Logger, opts Options) *Pipeline {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1000
	}
	if opts.Spikes.Window <= 0 {
		opts.Spikes = DefaultSpikeDetector()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	queues := make([]chan models.Reading, opts.Workers)
	for i := range queues {
		queues[i] = make(chan models.Reading, opts.QueueSize)
	}

	return &Pipeline{
		store:      store,
		notifier:   notifier,
		log:        log,
		thresholds: opts.Thresholds,
		spikes:     opts.Spikes,
		now:        opts.Clock,
		queues:     queues,
	}
}

// Start запускает по одному воркеру на очередь
func (p *Pipeline) Start() {
	for i, q := range p.queues {
		p.wg.Add(1)
		go p.worker(i, q)
	}
	p.log.Info("ingest pipeline started", "workers", len(p.queues))
}

// Stop закрывает очереди и ждет обработки уже принятых показаний
func (p *Pipeline) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	for _, q := range p.queues {
		close(q)
	}
	p.mu.Unlock()

	p.wg.Wait()
	p.log.Info("ingest pipeline stopped")
}

// Submit ставит показание в очередь без блокировки.
// Время показания по умолчанию равно времени приема.
func (p *Pipeline) Submit(r models.Reading) error {
	if r.Timestamp.IsZero() {
		r.Timestamp = p.now()
	}
	if err := Validate(r); err != nil {
		return err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrStopped
	}

	select {
	case p.queues[p.shard(r.DeviceID)] <- r:
		metrics.QueueSize.Set(float64(p.QueueLen()))
		return nil
	default:
		metrics.ReadingsDropped.WithLabelValues("queue_full").Inc()
		return ErrQueueFull
	}
}

// QueueLen суммарная длина очередей
func (p *Pipeline) QueueLen() int {
	n := 0
	for _, q := range p.queues {
		n += len(q)
	}
	return n
}

func (p *Pipeline) shard(deviceID string) int {
	return int(crc32.ChecksumIEEE([]byte(deviceID)) % uint32(len(p.queues)))
}

func (p *Pipeline) worker(id int, q <-chan models.Reading) {
	defer p.wg.Done()

	for r := range q {
		ctx, cancel := context.WithTimeout(context.Background(), processTimeout)
		if _, err := p.Process(ctx, r); err != nil {
			metrics.ReadingsDropped.WithLabelValues("process_error").Inc()
			p.log.Error("reading not stored", "worker", id, "device_id", r.DeviceID, "err", err)
		}
		cancel()
		metrics.QueueSize.Set(float64(p.QueueLen()))
	}
}

// Process синхронно обрабатывает одно показание и возвращает записанную запись
func (p *Pipeline) Process(ctx context.Context, r models.Reading) (models.Record, error) {
	start := time.Now()
	defer func() {
		metrics.IngestLatency.Observe(time.Since(start).Seconds())
	}()

	if r.Timestamp.IsZero() {
		r.Timestamp = p.now()
	}
	r.Timestamp = r.Timestamp.UTC()
	if err := Validate(r); err != nil {
		return models.Record{}, err
	}

	rec := models.Record{Reading: r, Alerts: p.thresholds.Evaluate(r)}

	// история до записи текущего показания
	history, err := p.store.Recent(ctx, r.DeviceID, p.spikes.Window)
	metrics.RedisOperations.WithLabelValues("recent", metrics.Status(err)).Inc()
	if err != nil {
		p.log.Warn("spike check skipped", "device_id", r.DeviceID, "err", err)
	} else {
		spike, z := p.spikes.Check(r.Temperature, history)
		metrics.CurrentZScore.WithLabelValues(r.DeviceID).Set(z)
		if spike {
			rec.IsAnomaly = true
			rec.Alerts = append(rec.Alerts, spikeAlert())
			metrics.AnomaliesDetected.WithLabelValues("spike", r.DeviceID).Inc()
		}
	}

	err = p.store.Append(ctx, rec)
	metrics.RedisOperations.WithLabelValues("append", metrics.Status(err)).Inc()
	if err != nil {
		return models.Record{}, fmt.Errorf("append reading: %w", err)
	}

	metrics.LastReading.WithLabelValues(r.DeviceID, "temperature").Set(r.Temperature)
	metrics.LastReading.WithLabelValues(r.DeviceID, "humidity").Set(r.Humidity)
	for _, a := range rec.Alerts {
		metrics.AlertsRaised.WithLabelValues(string(a.Type), string(a.Severity)).Inc()
	}

	if len(rec.Alerts) > 0 {
		p.log.Warn("alert", "device_id", r.DeviceID, "alerts", len(rec.Alerts), "anomaly", rec.IsAnomaly,
			"temperature", r.Temperature, "humidity", r.Humidity)
		ev := models.AlertEvent{
			ID:        uuid.NewString(),
			DeviceID:  r.DeviceID,
			IsAnomaly: rec.IsAnomaly,
			Alerts:    rec.Alerts,
			Reading:   r,
			Timestamp: p.now().UTC(),
		}
		if err := p.notifier.Notify(ctx, ev); err != nil {
			p.log.Warn("alert notification failed", "device_id", r.DeviceID, "err", err)
		}
	}

	return rec, nil
}
