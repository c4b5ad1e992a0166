// Package events emits booking lifecycle events to Kafka so downstream
// consumers (notifications, analytics, refund handling) can react without
// polling the store.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"busway/pkg/config"
	"busway/pkg/logger"
	"busway/pkg/model"

	"github.com/segmentio/kafka-go"
)

const (
	TypeBookingHeld        = "booking.held"
	TypeBookingConfirmed   = "booking.confirmed"
	TypeBookingCancelled   = "booking.cancelled"
	TypeBookingExpired     = "booking.expired"
	TypeBookingCompleted   = "booking.completed"
	TypeHoldExtended       = "booking.hold_extended"
	TypePaymentAfterExpiry = "booking.payment_after_expiry"
)

type BookingEvent struct {
	Type           string    `json:"type"`
	BookingID      string    `json:"booking_id"`
	TripID         string    `json:"trip_id"`
	OrderCode      string    `json:"order_code"`
	Seats          []string  `json:"seats"`
	Status         string    `json:"status"`
	RefundRequired bool      `json:"refund_required,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// NewBookingEvent snapshots the booking into an event of the given type.
func NewBookingEvent(eventType string, b *model.Booking, at time.Time) BookingEvent {
	return BookingEvent{
		Type:           eventType,
		BookingID:      b.ID,
		TripID:         b.TripID,
		OrderCode:      b.OrderCode,
		Seats:          b.SeatNumbers(),
		Status:         string(b.Status),
		RefundRequired: b.RefundRequired,
		OccurredAt:     at,
	}
}

type Publisher interface {
	Publish(ctx context.Context, event BookingEvent) error
	Close() error
}

type kafkaPublisher struct {
	writer *kafka.Writer
	log    *logger.Logger
}

func NewKafkaPublisher(cfg *config.Config) Publisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.BookingEventsTopic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Compression:  kafka.Snappy,
		BatchTimeout: 10 * time.Millisecond,
	}

	return &kafkaPublisher{
		writer: writer,
		log:    cfg.Log,
	}
}

func (p *kafkaPublisher) Publish(ctx context.Context, event BookingEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal booking event: %w", err)
	}

	msg := kafka.Message{
		// Keyed by booking so all events of one booking stay ordered
		// within a partition.
		Key:   []byte(event.BookingID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish booking event: %w", err)
	}

	p.log.Debug("Booking event published",
		"type", event.Type,
		"booking_id", event.BookingID,
		"trip_id", event.TripID,
	)
	return nil
}

func (p *kafkaPublisher) Close() error {
	return p.writer.Close()
}

// NopPublisher drops events. Used when no Kafka brokers are configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, BookingEvent) error { return nil }

func (NopPublisher) Close() error { return nil }

// ForConfig picks the Kafka publisher when brokers are configured and the
// nop publisher otherwise.
func ForConfig(cfg *config.Config) Publisher {
	if len(cfg.KafkaBrokers) == 0 {
		cfg.Log.Warn("No Kafka brokers configured, booking events disabled")
		return NopPublisher{}
	}
	return NewKafkaPublisher(cfg)
}
