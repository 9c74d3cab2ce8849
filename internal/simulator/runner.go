package simulator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"iot-forecast/internal/metrics"
	"iot-forecast/internal/models"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// DefaultInterval интервал между циклами
const DefaultInterval = 5 * time.Second

// Publisher отправка показания
type Publisher interface {
	Publish(ctx context.Context, r models.Reading) error
}

// Runner раз в интервал публикует по одному показанию на устройство
type Runner struct {
	model     *Model
	publisher Publisher
	interval  time.Duration
	clock     func() time.Time
	log       *slog.Logger
}

// NewRunner создает Runner
func NewRunner(model *Model, publisher Publisher, interval time.Duration, log *slog.Logger) *Runner {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Runner{
		model:     model,
		publisher: publisher,
		interval:  interval,
		clock:     time.Now,
		log:       log,
	}
}

// Run работает до отмены контекста
func (r *Runner) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	cycle := 0
	for {
		cycle++
		published := r.RunCycle(ctx)
		r.log.Info("cycle published", "cycle", cycle, "published", published, "devices", len(r.model.Devices()))

		select {
		case <-ctx.Done():
			r.log.Info("simulator stopped", "cycles", cycle)
			return
		case <-ticker.C:
		}
	}
}

// RunCycle публикует один цикл и возвращает число успешных публикаций.
// Ошибка по одному устройству не прерывает цикл.
func (r *Runner) RunCycle(ctx context.Context) int {
	published := 0
	for _, reading := range r.model.Cycle(r.clock()) {
		if err := r.publisher.Publish(ctx, reading); err != nil {
			metrics.SimulatorPublished.WithLabelValues(reading.DeviceID, "error").Inc()
			r.log.Warn("publish failed", "device_id", reading.DeviceID, "err", err)
			continue
		}
		metrics.SimulatorPublished.WithLabelValues(reading.DeviceID, "success").Inc()
		r.log.Debug("published", "device_id", reading.DeviceID,
			"temperature", reading.Temperature, "humidity", reading.Humidity)
		published++
	}
	return published
}

// wireReading формат сообщения в брокере: время в RFC 3339 с точностью до секунды
type wireReading struct {
	DeviceID    string  `json:"device_id"`
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
	Timestamp   string  `json:"timestamp"`
}

// MQTTPublisher публикация показаний с QoS 1
type MQTTPublisher struct {
	client  mqtt.Client
	topic   string
	timeout time.Duration
}

// NewMQTTPublisher создает публикатор поверх подключенного клиента
func NewMQTTPublisher(client mqtt.Client, topic string) *MQTTPublisher {
	return &MQTTPublisher{client: client, topic: topic, timeout: 5 * time.Second}
}

// Publish отправляет показание и ждет подтверждения брокера
func (p *MQTTPublisher) Publish(ctx context.Context, r models.Reading) error {
	payload, err := encodeReading(r)
	if err != nil {
		return err
	}

	token := p.client.Publish(p.topic, 1, false, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(p.timeout):
		return fmt.Errorf("publish %s: timeout", r.DeviceID)
	}
	return token.Error()
}

func encodeReading(r models.Reading) ([]byte, error) {
	payload, err := json.Marshal(wireReading{
		DeviceID:    r.DeviceID,
		Temperature: r.Temperature,
		Humidity:    r.Humidity,
		Timestamp:   r.Timestamp.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal reading: %w", err)
	}
	return payload, nil
}

// Connect подключает MQTT клиент симулятора
func Connect(broker, clientID string, timeout time.Duration, log *slog.Logger) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Warn("mqtt connection lost, reconnecting", "err", err)
		})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(timeout) {
		return nil, fmt.Errorf("mqtt connect %s: timeout", broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", broker, err)
	}
	return client, nil
}
