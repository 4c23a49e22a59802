package services

import (
	"context"

	"redsys/entity"
)

// Sequencer issues processor order references. Every call returns a value
// that differs from all previously issued values for the same sequence; the
// processor rejects reused references.
type Sequencer interface {
	NextReference(ctx context.Context, sequence string) (string, error)
}

// Database is the transaction store. Implementations must make
// SaveTransaction atomic per record: a transaction is either fully written
// or not written at all.
type Database interface {
	Sequencer

	WriteLogMessage(data Data) error

	SaveTransaction(ctx context.Context, transaction *entity.Transaction) error
	// GetDraftByReference returns the newest draft with the given processor
	// reference, or nil when no draft matches.
	GetDraftByReference(ctx context.Context, reference string) (*entity.Transaction, error)
	// GetTransactionByReference returns the newest transaction with the given
	// reference in any state, or nil when none exists.
	GetTransactionByReference(ctx context.Context, reference string) (*entity.Transaction, error)
	// CancelDraftTransactions cancels every draft charging the given origin
	// and reports how many rows it closed.
	CancelDraftTransactions(ctx context.Context, origin string) (int64, error)
}
