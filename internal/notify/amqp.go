// Package notify рассылает события об алертах внешним подписчикам.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"iot-forecast/internal/models"

	amqp "github.com/rabbitmq/amqp091-go"
)

// channel часть *amqp.Channel, нужная для публикации
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPNotifier публикует алерты в topic exchange с ключом alerts.<device_id>
type AMQPNotifier struct {
	conn     *amqp.Connection
	channel  channel
	exchange string
}

// NewAMQPNotifier подключается к брокеру и объявляет exchange
func NewAMQPNotifier(url, exchange string) (*AMQPNotifier, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		exchange,
		"topic",
		true, // durable
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("amqp exchange declare: %w", err)
	}

	return &AMQPNotifier{conn: conn, channel: ch, exchange: exchange}, nil
}

// RoutingKey ключ маршрутизации для устройства
func RoutingKey(deviceID string) string {
	return "alerts." + deviceID
}

// Notify публикует событие
func (n *AMQPNotifier) Notify(ctx context.Context, ev models.AlertEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal alert event: %w", err)
	}

	return n.channel.PublishWithContext(ctx,
		n.exchange,
		RoutingKey(ev.DeviceID),
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    ev.ID,
			Timestamp:    ev.Timestamp,
			Body:         body,
		},
	)
}

// Close закрывает канал и соединение
func (n *AMQPNotifier) Close() error {
	if err := n.channel.Close(); err != nil {
		return err
	}
	if n.conn != nil {
		return n.conn.Close()
	}
	return nil
}

// LogNotifier пишет алерты в лог, если брокер не настроен
type LogNotifier struct {
	log *slog.Logger
}

// NewLogNotifier создает LogNotifier
func NewLogNotifier(log *slog.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

// Notify записывает событие в лог
func (n *LogNotifier) Notify(_ context.Context, ev models.AlertEvent) error {
	for _, a := range ev.Alerts {
		n.log.Warn("alert",
			"event_id", ev.ID,
			"device_id", ev.DeviceID,
			"type", a.Type,
			"severity", a.Severity,
			"message", a.Message,
			"reading_time", ev.Reading.Timestamp.Format(time.RFC3339),
		)
	}
	return nil
}
