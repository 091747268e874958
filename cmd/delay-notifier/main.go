package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/BearBump/DelayBoard/config"
	"github.com/BearBump/DelayBoard/internal/broker/kafka"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	cfg, err := config.LoadConfig(os.Getenv("configPath"))
	if err != nil {
		panic(fmt.Sprintf("config load failed, %v", err))
	}
	if !cfg.Kafka.Enabled() {
		panic("kafka host and port are required for the notifier")
	}

	topic := cfg.Kafka.OrderOverdueTopicName
	if topic == "" {
		topic = "orders.overdue"
	}
	consumerGroup := cfg.DelayBoard.NotifierConsumerGroup
	if consumerGroup == "" {
		consumerGroup = "delay-notifier"
	}

	consumer := kafka.NewConsumer(cfg.Kafka.Brokers(), topic, consumerGroup)
	defer func() { _ = consumer.Close() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := runNotifier(ctx, notifierOpts{
		httpAddr:      cfg.DelayBoard.NotifierHTTPAddr,
		topic:         topic,
		consumerGroup: consumerGroup,
	}, consumer, newDigest()); err != nil && !errors.Is(err, context.Canceled) {
		panic(err)
	}
}
