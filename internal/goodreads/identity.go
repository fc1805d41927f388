package goodreads

import "strings"

// IdentityKey decides whether two imported rows are the same book for one
// user. Keys carry a kind prefix so values from different sources can never
// collide (a Goodreads id that happens to look like an ISBN, for example).
type IdentityKey string

// Identity derives the reconciliation key for a record, in strict priority
// order:
//
//  1. the export's own "Book Id" — authoritative when present
//  2. the ISBN — stands in when the export predates per-row ids
//  3. lower-cased (title, author) — last resort
//
// The title+author fallback is deliberately a plain case-normalized match.
// It can merge distinct editions sharing a title and split on punctuation
// variants; that limitation is accepted rather than papered over with fuzzy
// matching that would change which rows reconcile between versions.
//
// Identity is a pure function and performs no I/O.
func Identity(rec *Record) IdentityKey {
	if rec.ExternalID != nil {
		return IdentityKey("gr:" + *rec.ExternalID)
	}
	if rec.ISBN != nil {
		return IdentityKey("isbn:" + *rec.ISBN)
	}
	title := strings.ToLower(strings.TrimSpace(rec.Title))
	author := strings.ToLower(strings.TrimSpace(rec.Author))
	return IdentityKey("ta:" + title + "|" + author)
}
