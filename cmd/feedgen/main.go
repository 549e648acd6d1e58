package main

import (
	"context"
	"math/rand"
	"net"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/marketwire/quotefeed/internal/feed"
	"github.com/marketwire/quotefeed/pkg/config"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger, err := config.NewLogger(cfg.App)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	ensureTopic(logger, cfg.Kafka.Brokers[0], cfg.Kafka.Topic)

	writer := &kafka.Writer{
		Addr:     kafka.TCP(cfg.Kafka.Brokers...),
		Topic:    cfg.Kafka.Topic,
		Balancer: &kafka.LeastBytes{},
		// Batch writes to reduce network IO; symbol keys keep per-symbol order
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		Async:        true,
	}

	sim := feed.NewSimulator(
		logger,
		feed.KafkaSink{Writer: writer},
		cfg.Feed.Symbols,
		cfg.Feed.Interval,
		cfg.Feed.PriceMin,
		cfg.Feed.PriceMax,
		feed.RealRand{Rand: rand.New(rand.NewSource(time.Now().UnixNano()))},
		feed.RealClock{},
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sim.Run(ctx)

	// Flush the async writer buffer before exit
	if err := writer.Close(); err != nil {
		logger.Error("Error closing Kafka writer", zap.Error(err))
	} else {
		logger.Info("Kafka writer closed cleanly")
	}
}

// ensureTopic creates the topic if it does not exist yet. Best effort: a
// failure here just means the first writes race topic auto-creation.
func ensureTopic(logger *zap.Logger, brokerAddress, topicName string) {
	conn, err := kafka.Dial("tcp", brokerAddress)
	if err != nil {
		logger.Warn("Failed to dial leader for topic creation", zap.Error(err))
		return
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		logger.Warn("Failed to connect to controller", zap.Error(err))
		return
	}

	controllerConn, err := kafka.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		logger.Warn("Failed to dial controller", zap.Error(err))
		return
	}
	defer controllerConn.Close()

	err = controllerConn.CreateTopics(kafka.TopicConfig{
		Topic:             topicName,
		NumPartitions:     4,
		ReplicationFactor: 1,
	})
	if err != nil {
		logger.Debug("Topic creation info", zap.Error(err))
	}
}
