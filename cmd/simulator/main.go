package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"iot-forecast/internal/config"
	"iot-forecast/internal/simulator"
)

func main() {
	cfg := config.LoadSimulator()
	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))

	client, err := simulator.Connect(cfg.MQTTBroker, cfg.MQTTClientID, 10*time.Second, log)
	if err != nil {
		log.Error("failed to connect to mqtt broker", "broker", cfg.MQTTBroker, "err", err)
		os.Exit(1)
	}
	defer client.Disconnect(250)

	log.Info("simulator started",
		"broker", cfg.MQTTBroker,
		"topic", cfg.MQTTTopic,
		"devices", len(cfg.Devices),
		"interval", cfg.Interval,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	model := simulator.NewModel(cfg.Devices, nil)
	runner := simulator.NewRunner(model, simulator.NewMQTTPublisher(client, cfg.MQTTTopic), cfg.Interval, log)
	runner.Run(ctx)
}
