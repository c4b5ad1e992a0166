// Package payments reconciles gateway notifications with bookings. Gateway
// payloads come in over a webhook and a Kafka topic in whatever shape the
// gateway uses; both are narrowed to a model.PaymentOutcome before touching
// the booking lifecycle.
package payments

import (
	"fmt"
	"strings"

	"busway/pkg/model"
)

// GatewayNotification is the raw payload the payment gateway delivers.
type GatewayNotification struct {
	OrderCode     string `json:"order_code"`
	Status        string `json:"status"`
	TransactionID string `json:"transaction_id,omitempty"`
	FailureReason string `json:"failure_reason,omitempty"`
}

var paidStatuses = map[string]struct{}{
	"paid":      {},
	"success":   {},
	"settled":   {},
	"completed": {},
}

var failedStatuses = map[string]struct{}{
	"failed":    {},
	"declined":  {},
	"expired":   {},
	"cancelled": {},
	"refused":   {},
}

// MapNotification narrows a gateway notification to the closed outcome
// variant. Statuses outside the known vocabulary are rejected rather than
// guessed at.
func MapNotification(n GatewayNotification) (model.PaymentOutcome, error) {
	if n.OrderCode == "" {
		return model.PaymentOutcome{}, fmt.Errorf("%w: order code is required", model.ErrInvalidPaymentOutcome)
	}

	status := strings.ToLower(strings.TrimSpace(n.Status))
	if _, ok := paidStatuses[status]; ok {
		if n.TransactionID == "" {
			return model.PaymentOutcome{}, fmt.Errorf(
				"%w: paid notification without transaction ID for order %s",
				model.ErrInvalidPaymentOutcome, n.OrderCode)
		}
		return model.PaidOutcome(n.OrderCode, n.TransactionID), nil
	}
	if _, ok := failedStatuses[status]; ok {
		reason := n.FailureReason
		if reason == "" {
			reason = status
		}
		return model.FailedOutcome(n.OrderCode, reason), nil
	}

	return model.PaymentOutcome{}, fmt.Errorf(
		"%w: unknown gateway status %q for order %s",
		model.ErrInvalidPaymentOutcome, n.Status, n.OrderCode)
}
