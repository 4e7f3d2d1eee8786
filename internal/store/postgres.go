package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/easybook-dev/easybook/internal/catalog"
	apperrors "github.com/easybook-dev/easybook/pkg/errors"
	"github.com/easybook-dev/easybook/pkg/postgres"
)

// PostgresStore serves queries from the managed books index in PostgreSQL.
// The table is populated by the offline import pipeline.
type PostgresStore struct {
	client      *postgres.Client
	initialized bool
	logger      *slog.Logger
}

func NewPostgresStore(client *postgres.Client) *PostgresStore {
	return &PostgresStore{
		client: client,
		logger: slog.Default().With("component", "postgres-store"),
	}
}

// Init verifies the books table is reachable and logs the record count.
func (s *PostgresStore) Init(ctx context.Context) error {
	count, err := s.Count(ctx)
	if err != nil {
		return err
	}
	s.initialized = true
	s.logger.Info("postgres store initialized", "records", count)
	return nil
}

func (s *PostgresStore) Query(ctx context.Context, q Query) ([]catalog.Record, int, error) {
	if !s.initialized {
		return nil, 0, apperrors.New(apperrors.ErrBackendUnavailable, 503,
			"postgres store not initialized")
	}

	where, args := postgresWhere(q)

	var total int
	countSQL := "SELECT COUNT(*) FROM books WHERE " + where
	if err := s.client.DB.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, apperrors.Newf(apperrors.ErrBackendUnavailable, 503,
			"counting matches: %v", err)
	}

	querySQL := fmt.Sprintf(`SELECT md5, title, author, extension, filesize, language, year, publisher, ipfs_cid
		FROM books WHERE %s
		ORDER BY title, md5
		LIMIT $%d OFFSET $%d`, where, len(args)+1, len(args)+2)
	rows, err := s.client.DB.QueryContext(ctx, querySQL, append(args, q.Limit, q.Offset)...)
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

func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.client.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM books").Scan(&count); err != nil {
		return 0, apperrors.Newf(apperrors.ErrBackendUnavailable, 503,
			"counting records: %v", err)
	}
	return count, nil
}

// Close is a no-op; the shared postgres client is owned by the caller.
func (s *PostgresStore) Close() error {
	return nil
}

func postgresWhere(q Query) (string, []any) {
	if q.FreeText() {
		pattern := "%" + q.Term + "%"
		return "(title ILIKE $1 OR COALESCE(author,'') ILIKE $2)",
			[]any{pattern, pattern}
	}
	clauses := make([]string, 0, 2)
	args := make([]any, 0, 2)
	if q.Title != "" {
		args = append(args, "%"+q.Title+"%")
		clauses = append(clauses, fmt.Sprintf("title ILIKE $%d", len(args)))
	}
	if q.Author != "" {
		args = append(args, "%"+q.Author+"%")
		clauses = append(clauses, fmt.Sprintf("COALESCE(author,'') ILIKE $%d", len(args)))
	}
	if len(clauses) == 0 {
		return "TRUE", nil
	}
	return strings.Join(clauses, " AND "), args
}
