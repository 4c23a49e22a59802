package services

import (
	"context"

	"github.com/shopspring/decimal"
)

// Origin is a source record a payment attempt charges against, typically a
// sale order. Any record type exposing these three capabilities is accepted.
type Origin interface {
	// TotalAmount reports the full amount to collect; ok is false when the
	// record cannot report one.
	TotalAmount() (amount decimal.Decimal, ok bool)
	// GatewayAmount is the part of the total already paid through a gateway.
	GatewayAmount() decimal.Decimal
	// Currency returns the record's currency code, or empty when unknown.
	Currency() string
}

// OriginResolver looks up origin records by entity kind and id.
type OriginResolver interface {
	ResolveOrigin(ctx context.Context, kind, id string) (Origin, error)
}
