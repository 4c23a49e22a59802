// Package entity defines data models for the Redsys merchant gateway service.
package entity

import (
	"time"
)

// Transaction states. A transaction starts as a draft and is moved exactly
// once to confirmed or cancelled by a verified processor notification.
const (
	StateDraft     = "draft"
	StateConfirmed = "confirmed"
	StateCancelled = "cancelled"
)

// Transaction is the reconciliation record for one payment attempt.
// Rows are never deleted; cancelled drafts are retained for audit.
type Transaction struct {
	Id          string `json:"transaction_id" bson:"transaction_id"`
	Description string `json:"description" bson:"description"`
	// Origin identifies the source record the attempt charges against,
	// in the form "<entityKind>,<entityId>", or empty for direct payments
	Origin string `json:"origin,omitempty" bson:"origin"`
	// Gateway is the merchant code of the gateway config the attempt used
	Gateway string `json:"gateway" bson:"gateway"`
	// ReferenceGateway is the processor-facing order reference, unique per attempt
	ReferenceGateway  string    `json:"reference_gateway" bson:"reference_gateway"`
	Party             string    `json:"party,omitempty" bson:"party"`
	Amount            Amount    `json:"amount" bson:"amount"`
	Currency          string    `json:"currency" bson:"currency"`
	AuthorisationCode string    `json:"authorisation_code,omitempty" bson:"authorisation_code"`
	Log               string    `json:"log,omitempty" bson:"log"`
	State             string    `json:"state" bson:"state"`
	TimeCreated       time.Time `json:"time_created" bson:"time_created"`
	TimeClosed        time.Time `json:"time_closed,omitempty" bson:"time_closed"`
}

// IsTerminal reports whether the transaction already reached a final state.
func (t *Transaction) IsTerminal() bool {
	return t.State == StateConfirmed || t.State == StateCancelled
}

// AppendLog adds a raw notification dump to the transaction's diagnostic log.
func (t *Transaction) AppendLog(entry string) {
	if entry == "" {
		return
	}
	if t.Log == "" {
		t.Log = entry
		return
	}
	t.Log = t.Log + "\n---\n" + entry
}
