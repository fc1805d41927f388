package library

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store used by tests and demo mode. It
// mirrors the Postgres semantics: one row per (user, identity key), batch
// upserts overwrite every source field, aggregates skip nil page counts.
type MemoryStore struct {
	mu     sync.RWMutex
	nextID int64
	books  map[uuid.UUID]map[string]*Book // userID -> identityKey -> book
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{books: make(map[uuid.UUID]map[string]*Book)}
}

func (s *MemoryStore) UpsertBooks(ctx context.Context, books []Book) ([]RowOutcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, Cancelled(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	outcomes := make([]RowOutcome, 0, len(books))
	for _, b := range books {
		byKey, ok := s.books[b.UserID]
		if !ok {
			byKey = make(map[string]*Book)
			s.books[b.UserID] = byKey
		}

		if existing, ok := byKey[b.IdentityKey]; ok {
			id := existing.ID
			*existing = b
			existing.ID = id
			outcomes = append(outcomes, RowOutcome{IdentityKey: b.IdentityKey, Outcome: OutcomeUpdated})
			continue
		}

		s.nextID++
		stored := b
		stored.ID = s.nextID
		byKey[b.IdentityKey] = &stored
		outcomes = append(outcomes, RowOutcome{IdentityKey: b.IdentityKey, Outcome: OutcomeInserted})
	}
	return outcomes, nil
}

func (s *MemoryStore) userBooks(userID uuid.UUID) []Book {
	var books []Book
	for _, b := range s.books[userID] {
		books = append(books, *b)
	}
	sort.Slice(books, func(i, j int) bool { return books[i].ID < books[j].ID })
	return books
}

func (s *MemoryStore) ListBooks(ctx context.Context, userID uuid.UUID, q BookQuery) ([]Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var books []Book
	for _, b := range s.userBooks(userID) {
		if q.Shelf != "" && b.ExclusiveShelf != q.Shelf {
			continue
		}
		books = append(books, b)
	}

	switch q.OrderBy {
	case "title":
		sort.SliceStable(books, func(i, j int) bool { return books[i].Title < books[j].Title })
	case "date_read":
		sort.SliceStable(books, func(i, j int) bool { return timeLess(books[i].DateRead, books[j].DateRead) })
	case "date_added":
		sort.SliceStable(books, func(i, j int) bool { return timeLess(books[i].DateAdded, books[j].DateAdded) })
	}
	if q.Desc {
		reverse(books)
	}
	if q.Limit > 0 && len(books) > q.Limit {
		books = books[:q.Limit]
	}
	return books, nil
}

func (s *MemoryStore) ShelfCounts(ctx context.Context, userID uuid.UUID) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[string]int)
	for _, b := range s.books[userID] {
		counts[b.ExclusiveShelf]++
	}
	return counts, nil
}

func (s *MemoryStore) AuthorRollup(ctx context.Context, userID uuid.UUID) ([]AuthorStat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byAuthor := make(map[string]*AuthorStat)
	for _, b := range s.books[userID] {
		if b.Author == "" {
			continue
		}
		stat, ok := byAuthor[b.Author]
		if !ok {
			stat = &AuthorStat{Author: b.Author}
			byAuthor[b.Author] = stat
		}
		stat.BookCount++
		if b.ExclusiveShelf == ShelfRead {
			stat.ReadCount++
		}
	}

	stats := make([]AuthorStat, 0, len(byAuthor))
	for _, stat := range byAuthor {
		stats = append(stats, *stat)
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].ReadCount != stats[j].ReadCount {
			return stats[i].ReadCount > stats[j].ReadCount
		}
		if stats[i].BookCount != stats[j].BookCount {
			return stats[i].BookCount > stats[j].BookCount
		}
		return stats[i].Author < stats[j].Author
	})
	return stats, nil
}

func (s *MemoryStore) ReadingStats(ctx context.Context, userID uuid.UUID) (ReadingStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stats ReadingStats
	var sum, counted int
	for _, b := range s.books[userID] {
		if b.ExclusiveShelf != ShelfRead {
			continue
		}
		stats.BooksRead++
		if b.NumberOfPages == nil {
			continue
		}
		sum += *b.NumberOfPages
		counted++
		if stats.MaxPages == nil || *b.NumberOfPages > *stats.MaxPages {
			pages := *b.NumberOfPages
			stats.MaxPages = &pages
		}
	}
	if counted > 0 {
		avg := float64(sum) / float64(counted)
		stats.AveragePages = &avg
	}
	return stats, nil
}

func (s *MemoryStore) TopRated(ctx context.Context, userID uuid.UUID, limit int) ([]Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rated []Book
	for _, b := range s.userBooks(userID) {
		if b.MyRating != nil {
			rated = append(rated, b)
		}
	}
	sort.SliceStable(rated, func(i, j int) bool {
		if *rated[i].MyRating != *rated[j].MyRating {
			return *rated[i].MyRating > *rated[j].MyRating
		}
		// Most recent date_read first, unknown dates last.
		return timeLess(rated[j].DateRead, rated[i].DateRead)
	})
	if limit > 0 && len(rated) > limit {
		rated = rated[:limit]
	}
	return rated, nil
}

func (s *MemoryStore) RandomByShelf(ctx context.Context, userID uuid.UUID, shelf string, exclude bool, limit int) ([]Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var pool []Book
	for _, b := range s.userBooks(userID) {
		onShelf := b.ExclusiveShelf == shelf
		if onShelf != exclude {
			pool = append(pool, b)
		}
	}
	rand.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	if limit > 0 && len(pool) > limit {
		pool = pool[:limit]
	}
	return pool, nil
}

func (s *MemoryStore) DeleteBooks(ctx context.Context, userID uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := int64(len(s.books[userID]))
	delete(s.books, userID)
	return n, nil
}

// timeLess orders nil times first so a descending sort puts them last.
func timeLess(a, b *time.Time) bool {
	if a == nil {
		return b != nil
	}
	if b == nil {
		return false
	}
	return a.Before(*b)
}

func reverse(books []Book) {
	for i, j := 0, len(books)-1; i < j; i, j = i+1, j-1 {
		books[i], books[j] = books[j], books[i]
	}
}
