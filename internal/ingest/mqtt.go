package ingest

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"iot-forecast/internal/metrics"
	"iot-forecast/internal/models"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Submitter принимает показания в обработку
type Submitter interface {
	Submit(r models.Reading) error
}

// MQTTConfig параметры подписки
type MQTTConfig struct {
	Broker   string
	Topic    string
	ClientID string
	Username string
	Password string
}

// Subscriber подписчик MQTT, передающий показания в конвейер
type Subscriber struct {
	client mqtt.Client
	topic  string
	sink   Submitter
	log    *slog.Logger
}

// NewSubscriber создает подписчика. Подписка восстанавливается при каждом переподключении.
func NewSubscriber(cfg MQTTConfig, sink Submitter, log *slog.Logger) *Subscriber {
	s := &Subscriber{topic: cfg.Topic, sink: sink, log: log}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectTimeout(4 * time.Second).
		SetOnConnectHandler(s.onConnect).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Warn("mqtt connection lost", "err", err)
		})
	s.client = mqtt.NewClient(opts)
	return s
}

// Connect подключается к брокеру; ошибка первого подключения фатальна для процесса
func (s *Subscriber) Connect(timeout time.Duration) error {
	token := s.client.Connect()
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("mqtt connect: timeout after %s", timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	return nil
}

// IsConnected состояние подключения
func (s *Subscriber) IsConnected() bool {
	return s.client.IsConnectionOpen()
}

// Close отключается от брокера
func (s *Subscriber) Close() {
	s.client.Disconnect(250)
	s.log.Info("mqtt subscriber disconnected")
}

func (s *Subscriber) onConnect(c mqtt.Client) {
	token := c.Subscribe(s.topic, 1, func(_ mqtt.Client, msg mqtt.Message) {
		s.handlePayload(msg.Payload())
	})
	token.Wait()
	if err := token.Error(); err != nil {
		s.log.Error("mqtt subscribe failed", "topic", s.topic, "err", err)
		return
	}
	s.log.Info("mqtt subscribed", "topic", s.topic)
}

func (s *Subscriber) handlePayload(payload []byte) {
	var r models.Reading
	if err := json.Unmarshal(payload, &r); err != nil {
		metrics.ReadingsDropped.WithLabelValues("decode").Inc()
		s.log.Warn("invalid reading payload", "err", err)
		return
	}

	if err := s.sink.Submit(r); err != nil {
		s.log.Warn("reading rejected", "device_id", r.DeviceID, "err", err)
		return
	}
	metrics.ReadingsReceived.WithLabelValues("mqtt").Inc()
}
