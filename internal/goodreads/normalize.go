package goodreads

import (
	"strconv"
	"strings"
	"time"

	"github.com/moraes/isbn"
)

// Record is one export row normalized into the shape the library stores.
// Optional fields are nil when the export omits them or the value does not
// parse; the importer never fabricates a default.
type Record struct {
	ExternalID    *string // Goodreads "Book Id", absent in very old exports
	ISBN          *string
	Title         string
	Author        string
	AverageRating *float64
	Pages         *int
	Shelf         string
	MyRating      *int
	DateAdded     *time.Time
	DateRead      *time.Time
	Review        *string
}

// SkipReason says why a row was dropped instead of imported.
type SkipReason string

const (
	// SkipBlankRow marks rows whose cells are all empty.
	SkipBlankRow SkipReason = "BLANK_ROW"

	// SkipMalformedRow marks rows the CSV decoder could not parse.
	SkipMalformedRow SkipReason = "MALFORMED_ROW"

	// SkipMissingIdentity marks rows with no external id, no ISBN and no
	// title. Nothing anchors such a row to a book, so it cannot be
	// reconciled on a re-import.
	SkipMissingIdentity SkipReason = "MISSING_IDENTITY"
)

// Date layouts seen in Goodreads exports across versions.
var dateLayouts = []string{
	"2006/01/02",
	"2006-01-02",
	"01/02/2006",
	"Jan 02, 2006",
	"Jan 2, 2006",
}

// Normalize converts a raw CSV row into a Record. A row that cannot be
// imported yields a nil Record and a SkipReason; normalization itself never
// fails, so one bad row never stops the stream.
func Normalize(row []string, idx HeaderIndex) (*Record, SkipReason) {
	if blankRow(row) {
		return nil, SkipBlankRow
	}

	rec := &Record{
		ExternalID:    optText(idx.Get(row, ColBookID)),
		ISBN:          pickISBN(idx.Get(row, ColISBN13), idx.Get(row, ColISBN)),
		Title:         idx.Get(row, ColTitle),
		Author:        idx.Get(row, ColAuthor),
		AverageRating: optFloat(idx.Get(row, ColAverageRating)),
		Pages:         optPages(idx.Get(row, ColPages)),
		Shelf:         idx.Get(row, ColShelf),
		MyRating:      optRating(idx.Get(row, ColMyRating)),
		DateAdded:     optDate(idx.Get(row, ColDateAdded)),
		DateRead:      optDate(idx.Get(row, ColDateRead)),
		Review:        optText(idx.Get(row, ColReview)),
	}

	if rec.ExternalID == nil && rec.ISBN == nil && rec.Title == "" {
		return nil, SkipMissingIdentity
	}

	return rec, ""
}

// CleanCell strips whitespace, surrounding quotes and the Excel formula
// wrapper Goodreads uses to keep ISBNs textual (`="0316769487"`).
func CleanCell(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, `="`) && strings.HasSuffix(s, `"`) && len(s) >= 3 {
		s = s[2 : len(s)-1]
	}
	s = strings.Trim(s, `"`)
	return strings.TrimSpace(s)
}

func blankRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// pickISBN prefers the 13-digit form. A bare ISBN-10 is upgraded to its
// ISBN-13 equivalent so a book exported once with only the old form and
// later with both resolves to a single identity.
func pickISBN(isbn13, isbn10 string) *string {
	if v := cleanISBN(isbn13); v != "" {
		return &v
	}
	v := cleanISBN(isbn10)
	if v == "" {
		return nil
	}
	if len(v) == 10 && isbn.Validate10(v) {
		if upgraded, err := isbn.To13(v); err == nil {
			return &upgraded
		}
	}
	return &v
}

func cleanISBN(s string) string {
	s = strings.ReplaceAll(CleanCell(s), "-", "")
	if s == "" || strings.Trim(s, "0") == "" {
		return ""
	}
	return s
}

func optText(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func optFloat(s string) *float64 {
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &f
}

func optPages(s string) *int {
	if s == "" {
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return nil
	}
	return &n
}

func optRating(s string) *int {
	if s == "" {
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 || n > 5 {
		return nil
	}
	return &n
}

func optDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}
