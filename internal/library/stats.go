package library

import (
	"context"

	"github.com/google/uuid"
)

const topRatedLimit = 3

// StatsService is the read side: every answer is recomputed from the
// current book rows, so it is always consistent with the latest import.
// It never writes and never locks beyond plain reads.
type StatsService struct {
	store Store
}

func NewStatsService(store Store) *StatsService {
	return &StatsService{store: store}
}

// ShelfCounts returns the count of books per exclusive shelf. A user with
// no books still gets the three well-known shelves at zero so consumers
// never have to distinguish "shelf missing" from "shelf empty".
func (s *StatsService) ShelfCounts(ctx context.Context, userID uuid.UUID) (map[string]int, error) {
	counts, err := s.store.ShelfCounts(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(counts) == 0 {
		counts = map[string]int{
			ShelfRead:             0,
			ShelfCurrentlyReading: 0,
			ShelfToRead:           0,
		}
	}
	return counts, nil
}

// LibraryStats assembles the full aggregate view for one user.
func (s *StatsService) LibraryStats(ctx context.Context, userID uuid.UUID) (*LibraryStats, error) {
	shelves, err := s.ShelfCounts(ctx, userID)
	if err != nil {
		return nil, err
	}

	authors, err := s.store.AuthorRollup(ctx, userID)
	if err != nil {
		return nil, err
	}

	reading, err := s.store.ReadingStats(ctx, userID)
	if err != nil {
		return nil, err
	}

	topRated, err := s.store.TopRated(ctx, userID, topRatedLimit)
	if err != nil {
		return nil, err
	}

	stats := &LibraryStats{
		ShelfDistribution: shelves,
		ReadingStats:      reading,
		TopRatedBooks:     topRated,
	}
	// The rollup is already ordered by read count, then total book count.
	if len(authors) > 0 {
		top := authors[0]
		stats.TopAuthor = &top
	}
	return stats, nil
}

// Recommendations picks two random to-read books plus one random "lucky"
// book from any other shelf.
func (s *StatsService) Recommendations(ctx context.Context, userID uuid.UUID) ([]Book, error) {
	toRead, err := s.store.RandomByShelf(ctx, userID, ShelfToRead, false, 2)
	if err != nil {
		return nil, err
	}
	lucky, err := s.store.RandomByShelf(ctx, userID, ShelfToRead, true, 1)
	if err != nil {
		return nil, err
	}
	return append(toRead, lucky...), nil
}
