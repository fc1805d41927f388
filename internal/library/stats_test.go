package library

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
)

func intptr(n int) *int { return &n }

func seedBooks(t *testing.T, store Store, userID uuid.UUID, books []Book) {
	t.Helper()
	for i := range books {
		books[i].UserID = userID
		if books[i].IdentityKey == "" {
			books[i].IdentityKey = "ta:" + books[i].Title + "|" + books[i].Author
		}
	}
	if _, err := store.UpsertBooks(context.Background(), books); err != nil {
		t.Fatal(err)
	}
}

func TestShelfCounts_EmptyLibraryGetsDefaults(t *testing.T) {
	svc := NewStatsService(NewMemoryStore())
	counts, err := svc.ShelfCounts(context.Background(), uuid.New())
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]int{ShelfRead: 0, ShelfCurrentlyReading: 0, ShelfToRead: 0}
	if len(counts) != len(want) {
		t.Fatalf("counts = %v, want %v", counts, want)
	}
	for shelf, n := range want {
		if counts[shelf] != n {
			t.Errorf("counts[%q] = %d, want %d", shelf, counts[shelf], n)
		}
	}
}

func TestShelfCounts_NonEmptyLibrary(t *testing.T) {
	store := NewMemoryStore()
	userID := uuid.New()
	seedBooks(t, store, userID, []Book{
		{Title: "A", ExclusiveShelf: ShelfRead},
		{Title: "B", ExclusiveShelf: ShelfRead},
		{Title: "C", ExclusiveShelf: "abandoned"},
	})

	counts, err := NewStatsService(store).ShelfCounts(context.Background(), userID)
	if err != nil {
		t.Fatal(err)
	}
	if counts[ShelfRead] != 2 || counts["abandoned"] != 1 {
		t.Errorf("counts = %v", counts)
	}
	// Defaults apply only to an empty library; a populated one reports
	// exactly the shelves it has.
	if _, ok := counts[ShelfToRead]; ok {
		t.Errorf("unexpected zero-filled shelf in %v", counts)
	}
}

func TestLibraryStats(t *testing.T) {
	store := NewMemoryStore()
	userID := uuid.New()
	readDate := time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)
	seedBooks(t, store, userID, []Book{
		{Title: "A", Author: "Tolkien", ExclusiveShelf: ShelfRead, NumberOfPages: intptr(300), MyRating: intptr(5), DateRead: &readDate},
		{Title: "B", Author: "Tolkien", ExclusiveShelf: ShelfRead, NumberOfPages: intptr(500), MyRating: intptr(4)},
		{Title: "C", Author: "Tolkien", ExclusiveShelf: ShelfToRead},
		{Title: "D", Author: "Austen", ExclusiveShelf: ShelfRead}, // no page count
		{Title: "E", Author: "Austen", ExclusiveShelf: ShelfRead, NumberOfPages: intptr(400), MyRating: intptr(5)},
		{Title: "F", Author: "Herbert", ExclusiveShelf: ShelfToRead, MyRating: intptr(3)},
	})

	stats, err := NewStatsService(store).LibraryStats(context.Background(), userID)
	if err != nil {
		t.Fatal(err)
	}

	if stats.ShelfDistribution[ShelfRead] != 4 || stats.ShelfDistribution[ShelfToRead] != 2 {
		t.Errorf("shelves = %v", stats.ShelfDistribution)
	}

	if stats.TopAuthor == nil || stats.TopAuthor.Author != "Tolkien" {
		t.Fatalf("top author = %+v, want Tolkien", stats.TopAuthor)
	}
	if stats.TopAuthor.ReadCount != 2 || stats.TopAuthor.BookCount != 3 {
		t.Errorf("top author counts = %+v", stats.TopAuthor)
	}

	if stats.ReadingStats.BooksRead != 4 {
		t.Errorf("books read = %d, want 4", stats.ReadingStats.BooksRead)
	}
	// Average over the three read books with a known page count; the book
	// without one is excluded, not counted as zero.
	if stats.ReadingStats.AveragePages == nil || *stats.ReadingStats.AveragePages != 400 {
		t.Errorf("average pages = %v, want 400", stats.ReadingStats.AveragePages)
	}
	if stats.ReadingStats.MaxPages == nil || *stats.ReadingStats.MaxPages != 500 {
		t.Errorf("max pages = %v, want 500", stats.ReadingStats.MaxPages)
	}

	if len(stats.TopRatedBooks) != 3 {
		t.Fatalf("top rated = %d books, want 3", len(stats.TopRatedBooks))
	}
	// Two five-star books sort before the four-star one; among equals the
	// one with a read date comes first.
	if *stats.TopRatedBooks[0].MyRating != 5 || stats.TopRatedBooks[0].Title != "A" {
		t.Errorf("top rated[0] = %+v", stats.TopRatedBooks[0])
	}
	if *stats.TopRatedBooks[2].MyRating != 4 {
		t.Errorf("top rated[2] rating = %d, want 4", *stats.TopRatedBooks[2].MyRating)
	}
}

func TestLibraryStats_EmptyLibrary(t *testing.T) {
	stats, err := NewStatsService(NewMemoryStore()).LibraryStats(context.Background(), uuid.New())
	if err != nil {
		t.Fatal(err)
	}
	if stats.TopAuthor != nil {
		t.Errorf("top author = %+v, want nil", stats.TopAuthor)
	}
	if stats.ReadingStats.BooksRead != 0 || stats.ReadingStats.AveragePages != nil || stats.ReadingStats.MaxPages != nil {
		t.Errorf("reading stats = %+v", stats.ReadingStats)
	}
	if len(stats.TopRatedBooks) != 0 {
		t.Errorf("top rated = %+v, want empty", stats.TopRatedBooks)
	}
}

func TestRecommendations(t *testing.T) {
	store := NewMemoryStore()
	userID := uuid.New()
	seedBooks(t, store, userID, []Book{
		{Title: "A", ExclusiveShelf: ShelfToRead},
		{Title: "B", ExclusiveShelf: ShelfToRead},
		{Title: "C", ExclusiveShelf: ShelfToRead},
		{Title: "D", ExclusiveShelf: ShelfRead},
		{Title: "E", ExclusiveShelf: ShelfCurrentlyReading},
	})

	recs, err := NewStatsService(store).Recommendations(context.Background(), userID)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 3 {
		t.Fatalf("got %d recommendations, want 3", len(recs))
	}
	toRead := 0
	for _, b := range recs[:2] {
		if b.ExclusiveShelf == ShelfToRead {
			toRead++
		}
	}
	if toRead != 2 {
		t.Errorf("first two picks should come from the to-read shelf, got %+v", recs[:2])
	}
	if recs[2].ExclusiveShelf == ShelfToRead {
		t.Errorf("lucky pick should not come from the to-read shelf, got %+v", recs[2])
	}
}

func TestRecommendations_OnlyToReadBooks(t *testing.T) {
	store := NewMemoryStore()
	userID := uuid.New()
	seedBooks(t, store, userID, []Book{
		{Title: "A", ExclusiveShelf: ShelfToRead},
	})

	recs, err := NewStatsService(store).Recommendations(context.Background(), userID)
	if err != nil {
		t.Fatal(err)
	}
	// One to-read book and nothing else on the shelves: no lucky pick.
	if len(recs) != 1 || recs[0].Title != "A" {
		t.Errorf("recs = %+v", recs)
	}
}
