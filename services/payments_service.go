package services

import (
	"context"

	"redsys/entity"
)

// StartRequest carries the caller's input for a new payment attempt.
type StartRequest struct {
	// Origin identifies the record to charge, "<entityKind>,<entityId>",
	// or empty when the caller supplies the amount directly
	Origin      string
	Description string
	Party       string
	// Amount as a decimal string; required when Origin is empty
	Amount string
	// Gateway configuration resolved for the merchant
	Gateway *entity.GatewayConfig
	// DefaultCurrency applies when neither origin nor gateway dictate one
	DefaultCurrency string
}

// CallbackUrls are the processor-facing callback locations for one request.
type CallbackUrls struct {
	Notify  string
	Confirm string
	Cancel  string
}

// ReconcileStatus is the outcome of processing one notification.
type ReconcileStatus string

const (
	StatusConfirmed         ReconcileStatus = "confirmed"
	StatusDeclined          ReconcileStatus = "declined"
	StatusRejectedSignature ReconcileStatus = "rejected_signature"
)

// Reconciliation reports how a notification was settled. ResponseCode is the
// raw processor code and doubles as the acknowledgement body the merchant
// endpoint must echo back.
type Reconciliation struct {
	Status       ReconcileStatus
	ResponseCode string
	Transaction  *entity.Transaction
}

type Payments interface {
	// StartAttempt opens a new draft transaction for the request.
	StartAttempt(ctx context.Context, request StartRequest) (*entity.Transaction, error)
	// BuildRequest assembles the signed payload for the hosted payment page.
	BuildRequest(transaction *entity.Transaction, gateway *entity.GatewayConfig, urls CallbackUrls) (*entity.PaymentRequest, error)
	// ReconcileNotification verifies and applies one processor callback.
	ReconcileNotification(ctx context.Context, signature, parameters string, gateway *entity.GatewayConfig) (*Reconciliation, error)
}
