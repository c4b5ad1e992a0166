package model

import (
	"errors"
	"fmt"
)

type PaymentResult string

const (
	ResultPaid   PaymentResult = "PAID"
	ResultFailed PaymentResult = "FAILED"
)

var ErrInvalidPaymentOutcome = errors.New("invalid payment outcome")

// PaymentOutcome is the closed variant handed to the booking lifecycle by
// the payment reconciliation adapter. Whatever shape the gateway sends is
// mapped into this before it reaches the lifecycle manager.
type PaymentOutcome struct {
	OrderCode     string        `json:"order_code"`
	Result        PaymentResult `json:"result"`
	TransactionID string        `json:"transaction_id,omitempty"`
	Reason        string        `json:"reason,omitempty"`
}

func PaidOutcome(orderCode, transactionID string) PaymentOutcome {
	return PaymentOutcome{
		OrderCode:     orderCode,
		Result:        ResultPaid,
		TransactionID: transactionID,
	}
}

func FailedOutcome(orderCode, reason string) PaymentOutcome {
	return PaymentOutcome{
		OrderCode: orderCode,
		Result:    ResultFailed,
		Reason:    reason,
	}
}

func (o PaymentOutcome) Validate() error {
	if o.OrderCode == "" {
		return fmt.Errorf("%w: order code is required", ErrInvalidPaymentOutcome)
	}
	switch o.Result {
	case ResultPaid, ResultFailed:
		return nil
	default:
		return fmt.Errorf("%w: unknown result %q", ErrInvalidPaymentOutcome, string(o.Result))
	}
}
