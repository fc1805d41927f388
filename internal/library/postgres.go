package library

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store on a pgx connection pool. The
// books_user_identity_key unique constraint in the schema is what makes
// UpsertBooks safe under concurrent imports; the application never has to
// pre-check for duplicates.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// upsertBookSQL overwrites every source-derived field on conflict: the most
// recent import is authoritative. xmax = 0 is true only for freshly
// inserted rows, which is how inserts are told apart from updates.
const upsertBookSQL = `
INSERT INTO books (
	user_id, identity_key, external_id, isbn, title, author,
	average_rating, number_of_pages, exclusive_shelf, my_rating,
	date_added, date_read, my_review, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, now())
ON CONFLICT (user_id, identity_key) DO UPDATE SET
	external_id     = EXCLUDED.external_id,
	isbn            = EXCLUDED.isbn,
	title           = EXCLUDED.title,
	author          = EXCLUDED.author,
	average_rating  = EXCLUDED.average_rating,
	number_of_pages = EXCLUDED.number_of_pages,
	exclusive_shelf = EXCLUDED.exclusive_shelf,
	my_rating       = EXCLUDED.my_rating,
	date_added      = EXCLUDED.date_added,
	date_read       = EXCLUDED.date_read,
	my_review       = EXCLUDED.my_review,
	updated_at      = now()
RETURNING (xmax = 0) AS inserted`

// UpsertBooks reconciles one batch inside a single transaction. Each row
// runs under its own savepoint: PostgreSQL aborts the whole transaction on
// any statement error, so the savepoint is what lets a bad row be recorded
// and skipped while the rest of the batch proceeds.
func (s *PostgresStore) UpsertBooks(ctx context.Context, books []Book) ([]RowOutcome, error) {
	if len(books) == 0 {
		return nil, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, classifyInfra(err)
	}
	defer tx.Rollback(ctx) // No-op once committed

	outcomes := make([]RowOutcome, 0, len(books))

	for i, b := range books {
		sp := fmt.Sprintf("sp_%d", i)
		if _, err := tx.Exec(ctx, "SAVEPOINT "+sp); err != nil {
			return nil, classifyInfra(err)
		}

		var inserted bool
		err := tx.QueryRow(ctx, upsertBookSQL,
			b.UserID, b.IdentityKey, b.ExternalID, b.ISBN, b.Title, b.Author,
			b.AverageRating, b.NumberOfPages, b.ExclusiveShelf, b.MyRating,
			b.DateAdded, b.DateRead, b.MyReview,
		).Scan(&inserted)

		if err != nil {
			if infra := classifyInfra(err); infra != nil {
				return nil, infra
			}
			// Row-level problem (constraint or type violation): recover the
			// transaction and keep going.
			if _, rbErr := tx.Exec(ctx, "ROLLBACK TO SAVEPOINT "+sp); rbErr != nil {
				return nil, classifyInfra(rbErr)
			}
			outcomes = append(outcomes, RowOutcome{IdentityKey: b.IdentityKey, Outcome: OutcomeFailed, Err: err})
			continue
		}

		if _, err := tx.Exec(ctx, "RELEASE SAVEPOINT "+sp); err != nil {
			return nil, classifyInfra(err)
		}

		outcome := OutcomeUpdated
		if inserted {
			outcome = OutcomeInserted
		}
		outcomes = append(outcomes, RowOutcome{IdentityKey: b.IdentityKey, Outcome: outcome})
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, classifyInfra(err)
	}
	return outcomes, nil
}

// classifyInfra maps an error to the typed import failure it represents,
// or nil when the error is row-local and the batch can continue.
func classifyInfra(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Cancelled(err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "55P03":
			// Serialization failure, deadlock, lock timeout: another import
			// for the same user is in flight.
			return Conflict(err)
		}
		if len(pgErr.Code) >= 2 {
			switch pgErr.Code[:2] {
			case "22", "23":
				// Data or integrity violation: the row's fault, not the store's.
				return nil
			}
		}
		return StorageError(err)
	}

	// Anything non-Postgres (connection loss, closed pool) is infrastructure.
	return StorageError(err)
}

func (s *PostgresStore) ListBooks(ctx context.Context, userID uuid.UUID, q BookQuery) ([]Book, error) {
	sql := `SELECT id, user_id, identity_key, external_id, isbn, title, author,
		average_rating, number_of_pages, exclusive_shelf, my_rating,
		date_added, date_read, my_review
	FROM books WHERE user_id = $1`
	args := []any{userID}

	if q.Shelf != "" {
		sql += " AND exclusive_shelf = $2"
		args = append(args, q.Shelf)
	}

	// Order columns are whitelisted, never taken from the query verbatim.
	switch q.OrderBy {
	case "title":
		sql += " ORDER BY title"
	case "date_read":
		sql += " ORDER BY date_read"
	case "date_added":
		sql += " ORDER BY date_added"
	case "":
		sql += " ORDER BY id"
	default:
		return nil, fmt.Errorf("unsupported order column %q", q.OrderBy)
	}
	if q.Desc {
		sql += " DESC NULLS LAST"
	}
	if q.Limit > 0 {
		sql += fmt.Sprintf(" LIMIT %d", q.Limit)
	}

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanBooks(rows)
}

func (s *PostgresStore) ShelfCounts(ctx context.Context, userID uuid.UUID) (map[string]int, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT exclusive_shelf, COUNT(*) FROM books WHERE user_id = $1 GROUP BY exclusive_shelf`,
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var shelf string
		var n int
		if err := rows.Scan(&shelf, &n); err != nil {
			return nil, err
		}
		counts[shelf] = n
	}
	return counts, rows.Err()
}

func (s *PostgresStore) AuthorRollup(ctx context.Context, userID uuid.UUID) ([]AuthorStat, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT author,
			COUNT(*) FILTER (WHERE exclusive_shelf = 'read') AS read_count,
			COUNT(*) AS book_count
		FROM books
		WHERE user_id = $1 AND author <> ''
		GROUP BY author
		ORDER BY read_count DESC, book_count DESC, author`,
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []AuthorStat
	for rows.Next() {
		var a AuthorStat
		if err := rows.Scan(&a.Author, &a.ReadCount, &a.BookCount); err != nil {
			return nil, err
		}
		stats = append(stats, a)
	}
	return stats, rows.Err()
}

// ReadingStats relies on AVG/MAX skipping NULL page counts; a book without
// a known length never drags the average toward zero.
func (s *PostgresStore) ReadingStats(ctx context.Context, userID uuid.UUID) (ReadingStats, error) {
	var stats ReadingStats
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*),
			AVG(number_of_pages)::float8,
			MAX(number_of_pages)
		FROM books
		WHERE user_id = $1 AND exclusive_shelf = 'read'`,
		userID).Scan(&stats.BooksRead, &stats.AveragePages, &stats.MaxPages)
	return stats, err
}

func (s *PostgresStore) TopRated(ctx context.Context, userID uuid.UUID, limit int) ([]Book, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, identity_key, external_id, isbn, title, author,
			average_rating, number_of_pages, exclusive_shelf, my_rating,
			date_added, date_read, my_review
		FROM books
		WHERE user_id = $1 AND my_rating IS NOT NULL
		ORDER BY my_rating DESC, date_read DESC NULLS LAST, id
		LIMIT $2`,
		userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanBooks(rows)
}

func (s *PostgresStore) RandomByShelf(ctx context.Context, userID uuid.UUID, shelf string, exclude bool, limit int) ([]Book, error) {
	op := "="
	if exclude {
		op = "<>"
	}
	rows, err := s.pool.Query(ctx,
		fmt.Sprintf(`SELECT id, user_id, identity_key, external_id, isbn, title, author,
			average_rating, number_of_pages, exclusive_shelf, my_rating,
			date_added, date_read, my_review
		FROM books
		WHERE user_id = $1 AND exclusive_shelf %s $2
		ORDER BY random()
		LIMIT $3`, op),
		userID, shelf, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanBooks(rows)
}

func (s *PostgresStore) DeleteBooks(ctx context.Context, userID uuid.UUID) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM books WHERE user_id = $1`, userID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanBooks(rows pgx.Rows) ([]Book, error) {
	var books []Book
	for rows.Next() {
		var b Book
		if err := rows.Scan(
			&b.ID, &b.UserID, &b.IdentityKey, &b.ExternalID, &b.ISBN, &b.Title, &b.Author,
			&b.AverageRating, &b.NumberOfPages, &b.ExclusiveShelf, &b.MyRating,
			&b.DateAdded, &b.DateRead, &b.MyReview,
		); err != nil {
			return nil, err
		}
		books = append(books, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return books, nil
}
