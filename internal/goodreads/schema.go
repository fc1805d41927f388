// Package goodreads parses Goodreads library export files.
//
// A library export is a CSV with a fixed, documented header row. This
// package validates that header once per file, normalizes individual rows
// into typed records, and derives the identity key used to reconcile
// repeated imports of the same logical book.
package goodreads

import "strings"

// Column names as they appear in a Goodreads library export header.
const (
	ColBookID        = "Book Id"
	ColTitle         = "Title"
	ColAuthor        = "Author"
	ColISBN          = "ISBN"
	ColISBN13        = "ISBN13"
	ColMyRating      = "My Rating"
	ColAverageRating = "Average Rating"
	ColPages         = "Number of Pages"
	ColDateRead      = "Date Read"
	ColDateAdded     = "Date Added"
	ColShelf         = "Exclusive Shelf"
	ColReview        = "My Review"
)

// RequiredColumns are the headers an export must carry to be importable.
// Goodreads exports contain more columns (publisher, binding, bookshelf
// positions, ...); those are ignored rather than rejected.
var RequiredColumns = []string{
	ColBookID,
	ColTitle,
	ColAuthor,
	ColISBN,
	ColISBN13,
	ColMyRating,
	ColAverageRating,
	ColPages,
	ColDateRead,
	ColDateAdded,
	ColShelf,
	ColReview,
}

// HeaderIndex maps lower-cased column names to their position in a row.
type HeaderIndex map[string]int

// IndexHeader builds a HeaderIndex from the export's header row.
// Header cells are cleaned the same way data cells are, so a BOM or
// Excel-style ="..." wrapper on the first column does not break matching.
func IndexHeader(header []string) HeaderIndex {
	idx := make(HeaderIndex, len(header))
	for i, h := range header {
		idx[strings.ToLower(CleanCell(h))] = i
	}
	return idx
}

// ValidateHeader checks that every required column is present.
// It returns the index for row lookups and the names of any missing
// columns, in RequiredColumns order, for the schema-mismatch error.
func ValidateHeader(header []string) (HeaderIndex, []string) {
	idx := IndexHeader(header)
	var missing []string
	for _, col := range RequiredColumns {
		if _, ok := idx[strings.ToLower(col)]; !ok {
			missing = append(missing, col)
		}
	}
	return idx, missing
}

// Get returns the cleaned cell for the named column, or "" when the column
// is absent or the row is too short.
func (h HeaderIndex) Get(row []string, col string) string {
	pos, ok := h[strings.ToLower(col)]
	if !ok || pos >= len(row) {
		return ""
	}
	return CleanCell(row[pos])
}
