package library

import (
	"context"

	"github.com/google/uuid"
)

// Outcome is the per-row result of an upsert.
type Outcome string

const (
	OutcomeInserted Outcome = "inserted"
	OutcomeUpdated  Outcome = "updated"
	OutcomeFailed   Outcome = "failed"
)

// RowOutcome reports what happened to a single book in a batch.
type RowOutcome struct {
	IdentityKey string
	Outcome     Outcome
	Err         error // set when Outcome is OutcomeFailed
}

// BookQuery filters and bounds a ListBooks call.
type BookQuery struct {
	Shelf   string // "" means all shelves
	OrderBy string // "title", "date_read", "date_added"; "" for stored order
	Desc    bool
	Limit   int // 0 means no limit
}

// Store is the storage capability the library depends on. Each backend
// implements these operations natively; the library never inspects query
// text to guess what a backend can do.
//
// UpsertBooks is one atomic unit: the batch commits or rolls back as a
// whole. A single row's constraint or type failure is reported in its
// RowOutcome without aborting the batch; infrastructure failures abort the
// batch and surface as *Error with CodeStorage or CodeConflict. Matching is
// enforced by the backend's own uniqueness guarantee over
// (user_id, identity_key), so concurrent imports cannot race into
// duplicates.
type Store interface {
	UpsertBooks(ctx context.Context, books []Book) ([]RowOutcome, error)
	ListBooks(ctx context.Context, userID uuid.UUID, q BookQuery) ([]Book, error)
	ShelfCounts(ctx context.Context, userID uuid.UUID) (map[string]int, error)
	AuthorRollup(ctx context.Context, userID uuid.UUID) ([]AuthorStat, error)
	ReadingStats(ctx context.Context, userID uuid.UUID) (ReadingStats, error)
	TopRated(ctx context.Context, userID uuid.UUID, limit int) ([]Book, error)
	RandomByShelf(ctx context.Context, userID uuid.UUID, shelf string, exclude bool, limit int) ([]Book, error)
	DeleteBooks(ctx context.Context, userID uuid.UUID) (int64, error)
}
