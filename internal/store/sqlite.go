package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/easybook-dev/easybook/internal/catalog"
	apperrors "github.com/easybook-dev/easybook/pkg/errors"
)

// SQLiteStore serves queries from a local bulk snapshot of the catalog. The
// snapshot file is produced offline by the import pipeline; this store only
// reads it.
type SQLiteStore struct {
	db          *sql.DB
	path        string
	initialized bool
	logger      *slog.Logger
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS books (
	md5 TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	author TEXT,
	extension TEXT NOT NULL,
	filesize INTEGER,
	language TEXT,
	year TEXT,
	publisher TEXT,
	ipfs_cid TEXT
);
CREATE INDEX IF NOT EXISTS idx_books_title ON books (title);
CREATE INDEX IF NOT EXISTS idx_books_author ON books (author);
`

// NewSQLiteStore opens the snapshot at path. The file is not required to
// exist yet; Init reports readiness.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open snapshot db: %w", err)
	}
	return &SQLiteStore{
		db:     db,
		path:   path,
		logger: slog.Default().With("component", "sqlite-store"),
	}, nil
}

// Init verifies the snapshot file exists and is queryable. A missing snapshot
// leaves the store uninitialized; queries then fail with
// ErrBackendUnavailable until the next Init.
func (s *SQLiteStore) Init(ctx context.Context) error {
	if _, err := os.Stat(s.path); err != nil {
		s.logger.Warn("snapshot file missing, search unavailable", "path", s.path)
		return apperrors.Newf(apperrors.ErrBackendUnavailable, 503,
			"snapshot file %s not found", s.path)
	}
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("migrating snapshot db: %w", err)
	}
	count, err := s.Count(ctx)
	if err != nil {
		return err
	}
	s.initialized = true
	s.logger.Info("sqlite store initialized", "path", s.path, "records", count)
	return nil
}

func (s *SQLiteStore) Query(ctx context.Context, q Query) ([]catalog.Record, int, error) {
	if !s.initialized {
		return nil, 0, apperrors.New(apperrors.ErrBackendUnavailable, 503,
			"sqlite store not initialized")
	}

	where, args := sqliteWhere(q)

	var total int
	countSQL := "SELECT COUNT(*) FROM books WHERE " + where
	if err := s.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, apperrors.Newf(apperrors.ErrBackendUnavailable, 503,
			"counting matches: %v", err)
	}

	querySQL := `SELECT md5, title, author, extension, filesize, language, year, publisher, ipfs_cid
		FROM books WHERE ` + where + `
		ORDER BY title, md5
		LIMIT ? OFFSET ?`
	rows, err := s.db.QueryContext(ctx, querySQL, append(args, q.Limit, q.Offset)...)
	if err != nil {
		return nil, 0, apperrors.Newf(apperrors.ErrBackendUnavailable, 503,
			"querying books: %v", err)
	}
	defer rows.Close()

	records, err := scanRecords(rows)
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM books").Scan(&count); err != nil {
		return 0, apperrors.Newf(apperrors.ErrBackendUnavailable, 503,
			"counting records: %v", err)
	}
	return count, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// sqliteWhere builds the match predicate for a query. LOWER on both sides
// keeps matching case-insensitive beyond the ASCII-only default of LIKE.
func sqliteWhere(q Query) (string, []any) {
	if q.FreeText() {
		pattern := "%" + strings.ToLower(q.Term) + "%"
		return "(LOWER(title) LIKE ? OR LOWER(COALESCE(author,'')) LIKE ?)",
			[]any{pattern, pattern}
	}
	clauses := make([]string, 0, 2)
	args := make([]any, 0, 2)
	if q.Title != "" {
		clauses = append(clauses, "LOWER(title) LIKE ?")
		args = append(args, "%"+strings.ToLower(q.Title)+"%")
	}
	if q.Author != "" {
		clauses = append(clauses, "LOWER(COALESCE(author,'')) LIKE ?")
		args = append(args, "%"+strings.ToLower(q.Author)+"%")
	}
	if len(clauses) == 0 {
		return "1=1", nil
	}
	return strings.Join(clauses, " AND "), args
}

// scanRecords reads rows into Records, mapping NULL optional columns to zero
// values.
func scanRecords(rows *sql.Rows) ([]catalog.Record, error) {
	records := make([]catalog.Record, 0)
	for rows.Next() {
		var rec catalog.Record
		var author, language, year, publisher, cid sql.NullString
		var filesize sql.NullInt64
		if err := rows.Scan(&rec.MD5, &rec.Title, &author, &rec.Extension,
			&filesize, &language, &year, &publisher, &cid); err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		rec.Author = author.String
		rec.Filesize = filesize.Int64
		rec.Language = language.String
		rec.Year = year.String
		rec.Publisher = publisher.String
		rec.IPFSCID = cid.String
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating records: %w", err)
	}
	return records, nil
}
