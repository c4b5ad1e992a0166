package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"busway/internal/bookings/service"
	"busway/pkg/config"
	"busway/pkg/logger"

	"github.com/segmentio/kafka-go"
)

// Consumer drains the payment events topic and feeds reconciled outcomes
// into the booking lifecycle. It implements app.Worker.
type Consumer struct {
	reader   *kafka.Reader
	bookings service.BookingService
	log      *logger.Logger

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func NewConsumer(bookings service.BookingService, cfg *config.Config) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.KafkaBrokers,
		GroupID:  cfg.KafkaGroupID,
		Topic:    cfg.PaymentEventsTopic,
		MinBytes: 1,
		MaxBytes: 10e6,
	})

	return &Consumer{
		reader:   reader,
		bookings: bookings,
		log:      cfg.Log,
		done:     make(chan struct{}),
	}
}

func (c *Consumer) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	go c.run(ctx)
	c.log.Info("Payment consumer started", "topic", c.reader.Config().Topic)
	return nil
}

func (c *Consumer) Stop() error {
	c.once.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}
		<-c.done
	})

	if err := c.reader.Close(); err != nil {
		return fmt.Errorf("failed to close payment reader: %w", err)
	}
	c.log.Info("Payment consumer stopped")
	return nil
}

func (c *Consumer) run(ctx context.Context) {
	defer close(c.done)

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
				return
			}
			c.log.Error("Failed to fetch payment message", "error", err)
			continue
		}

		c.handle(ctx, msg)

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			c.log.Error("Failed to commit payment message",
				"offset", msg.Offset, "error", err)
		}
	}
}

// handle applies one notification. Malformed or unmappable messages are
// logged and committed anyway; redelivering them cannot make them valid.
func (c *Consumer) handle(ctx context.Context, msg kafka.Message) {
	var notification GatewayNotification
	if err := json.Unmarshal(msg.Value, &notification); err != nil {
		c.log.Error("Malformed payment message",
			"offset", msg.Offset, "error", err)
		return
	}

	outcome, err := MapNotification(notification)
	if err != nil {
		c.log.Error("Unmappable payment notification",
			"order_code", notification.OrderCode, "status", notification.Status, "error", err)
		return
	}

	if _, err := c.bookings.ReportPayment(ctx, outcome); err != nil {
		c.log.Error("Failed to apply payment outcome",
			"order_code", outcome.OrderCode, "result", outcome.Result, "error", err)
	}
}
