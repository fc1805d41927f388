// Package library holds the per-user book collection: the reconciliation
// of repeated Goodreads imports into one canonical set of rows, and the
// read-side statistics derived from those rows.
package library

import (
	"time"

	"github.com/google/uuid"
)

// Well-known exclusive shelves. Goodreads allows arbitrary shelf names;
// these three always exist and are the ones statistics reason about.
const (
	ShelfRead             = "read"
	ShelfCurrentlyReading = "currently-reading"
	ShelfToRead           = "to-read"
)

// Book is the unit of reconciliation. For a given user at most one Book
// exists per IdentityKey; re-importing the same logical book overwrites the
// stored row instead of duplicating it.
type Book struct {
	ID             int64      `json:"id"`
	UserID         uuid.UUID  `json:"-"`
	IdentityKey    string     `json:"-"`
	ExternalID     *string    `json:"external_id,omitempty"`
	ISBN           *string    `json:"isbn,omitempty"`
	Title          string     `json:"title"`
	Author         string     `json:"author"`
	AverageRating  *float64   `json:"average_rating,omitempty"`
	NumberOfPages  *int       `json:"number_of_pages,omitempty"`
	ExclusiveShelf string     `json:"exclusive_shelf"`
	MyRating       *int       `json:"my_rating,omitempty"`
	DateAdded      *time.Time `json:"date_added,omitempty"`
	DateRead       *time.Time `json:"date_read,omitempty"`
	MyReview       *string    `json:"my_review,omitempty"`
}

// ImportReport summarizes one import run. It is returned to the caller and
// never persisted.
type ImportReport struct {
	RowsSeen     int            `json:"rows_seen"`
	RowsInserted int            `json:"rows_inserted"`
	RowsUpdated  int            `json:"rows_updated"`
	RowsFailed   int            `json:"rows_failed"`
	RowsSkipped  map[string]int `json:"rows_skipped,omitempty"`
}

// AuthorStat is one author's slice of a user's library.
type AuthorStat struct {
	Author    string `json:"author"`
	ReadCount int    `json:"read_count"`
	BookCount int    `json:"book_count"`
}

// ReadingStats covers books on the read shelf. Average and max pages are
// computed only over books with a known page count; a book imported without
// one is excluded, not counted as zero. Both are nil when no read book has
// a page count.
type ReadingStats struct {
	BooksRead    int      `json:"books_read"`
	AveragePages *float64 `json:"average_pages,omitempty"`
	MaxPages     *int     `json:"max_pages,omitempty"`
}

// LibraryStats is the read-side aggregate, recomputed from Book rows on
// demand.
type LibraryStats struct {
	ShelfDistribution map[string]int `json:"shelf_distribution"`
	TopAuthor         *AuthorStat    `json:"top_author,omitempty"`
	ReadingStats      ReadingStats   `json:"reading_stats"`
	TopRatedBooks     []Book         `json:"top_rated_books"`
}
