package library

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"log/slog"

	"github.com/google/uuid"

	"github.com/akshaychugh/betterreads/internal/goodreads"
)

// DefaultBatchSize bounds how many rows share one transaction. Batching is
// a resource-control knob: it caps lock hold time on large exports at the
// cost of a partially-committed library if a later batch fails. That trade
// is safe because re-importing the same file is idempotent.
const DefaultBatchSize = 500

// Importer drives one import run: stream the CSV, normalize rows, batch
// candidates and reconcile each batch against the store. It is the only
// component that opens write transactions against the book table.
type Importer struct {
	store     Store
	batchSize int
	logger    *slog.Logger
}

func NewImporter(store Store, batchSize int, logger *slog.Logger) *Importer {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{store: store, batchSize: batchSize, logger: logger}
}

// VerifyHeader checks that a stream starts with a valid export header.
// It reads only the header row and never writes.
func VerifyHeader(r io.Reader) error {
	reader := newExportReader(r)
	header, err := reader.Read()
	if err != nil {
		return SchemaMismatch(goodreads.RequiredColumns)
	}
	if _, missing := goodreads.ValidateHeader(header); len(missing) > 0 {
		return SchemaMismatch(missing)
	}
	return nil
}

// ImportLibrary reconciles an uploaded export into userID's collection.
//
// The run either returns a complete ImportReport (possibly with skip and
// failure counts) or a typed *Error; a failure never leaves an unreported
// partially-imported state beyond whole batches that already committed.
func (im *Importer) ImportLibrary(ctx context.Context, userID uuid.UUID, r io.Reader) (*ImportReport, error) {
	reader := newExportReader(r)

	// STARTED: the header decides up front whether this is an export at
	// all. Nothing is written before this check passes.
	header, err := reader.Read()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, Cancelled(ctxErr)
		}
		return nil, SchemaMismatch(goodreads.RequiredColumns)
	}
	idx, missing := goodreads.ValidateHeader(header)
	if len(missing) > 0 {
		return nil, SchemaMismatch(missing)
	}

	logger := im.logger.With("user_id", userID.String())
	logger.Info("import started", "batch_size", im.batchSize)

	report := &ImportReport{RowsSkipped: make(map[string]int)}
	batch := make([]Book, 0, im.batchSize)

	// STREAMING: rows are pulled one at a time; the file is never held in
	// memory whole.
	for {
		if err := ctx.Err(); err != nil {
			return nil, Cancelled(err)
		}

		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				// One mangled row is skipped and counted, not fatal.
				report.RowsSeen++
				report.RowsSkipped[string(goodreads.SkipMalformedRow)]++
				continue
			}
			// The stream itself broke: client disconnect or abort.
			return nil, Cancelled(err)
		}

		report.RowsSeen++
		rec, skip := goodreads.Normalize(row, idx)
		if rec == nil {
			report.RowsSkipped[string(skip)]++
			continue
		}

		batch = append(batch, candidateBook(userID, rec))
		if len(batch) >= im.batchSize {
			if err := im.reconcile(ctx, batch, report); err != nil {
				return nil, err
			}
			batch = batch[:0]
		}
	}

	if len(batch) > 0 {
		if err := im.reconcile(ctx, batch, report); err != nil {
			return nil, err
		}
	}

	if len(report.RowsSkipped) == 0 {
		report.RowsSkipped = nil
	}
	logger.Info("import completed",
		"rows_seen", report.RowsSeen,
		"inserted", report.RowsInserted,
		"updated", report.RowsUpdated,
		"failed", report.RowsFailed,
	)
	return report, nil
}

// reconcile hands one batch to the store and folds the outcomes into the
// report. Store errors are already typed; anything untyped is a storage
// failure.
func (im *Importer) reconcile(ctx context.Context, batch []Book, report *ImportReport) error {
	outcomes, err := im.store.UpsertBooks(ctx, batch)
	if err != nil {
		if CodeOf(err) != "" {
			return err
		}
		return StorageError(err)
	}
	for _, o := range outcomes {
		switch o.Outcome {
		case OutcomeInserted:
			report.RowsInserted++
		case OutcomeUpdated:
			report.RowsUpdated++
		case OutcomeFailed:
			report.RowsFailed++
			im.logger.Warn("row rejected by store", "identity_key", o.IdentityKey, "error", o.Err)
		}
	}
	return nil
}

func candidateBook(userID uuid.UUID, rec *goodreads.Record) Book {
	return Book{
		UserID:         userID,
		IdentityKey:    string(goodreads.Identity(rec)),
		ExternalID:     rec.ExternalID,
		ISBN:           rec.ISBN,
		Title:          rec.Title,
		Author:         rec.Author,
		AverageRating:  rec.AverageRating,
		NumberOfPages:  rec.Pages,
		ExclusiveShelf: rec.Shelf,
		MyRating:       rec.MyRating,
		DateAdded:      rec.DateAdded,
		DateRead:       rec.DateRead,
		MyReview:       rec.Review,
	}
}

// newExportReader builds a CSV reader tolerant of the quirks real exports
// show: BOMs, stray bytes, rows with trailing columns.
func newExportReader(r io.Reader) *csv.Reader {
	reader := csv.NewReader(goodreads.WrapReader(r))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	return reader
}
