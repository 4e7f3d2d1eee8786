// Package store provides read-only access to the bulk book dataset. Two
// backends implement the same contract: a local SQLite snapshot file and a
// managed PostgreSQL index. The orchestrator depends only on RecordStore.
package store

import (
	"context"

	"github.com/easybook-dev/easybook/internal/catalog"
)

// Query describes one record lookup. Either Term is set (free-text, matched
// against title OR author) or Title/Author are set (combined with AND).
// Limit is the caller's fetch window, which is larger than one response page
// so results can be ranked before pagination.
type Query struct {
	Term   string
	Title  string
	Author string
	Limit  int
	Offset int
}

// FreeText reports whether the query is a single free-text term rather than
// separate title/author fields.
func (q Query) FreeText() bool {
	return q.Term != ""
}

// RecordStore answers substring queries over the bulk dataset.
//
// Query returns matching records plus the total match count before limit and
// offset. An unreachable or uninitialized backend yields
// errors.ErrBackendUnavailable, never a silent empty result.
type RecordStore interface {
	// Init validates the backend is reachable and ready to serve queries.
	Init(ctx context.Context) error
	Query(ctx context.Context, q Query) ([]catalog.Record, int, error)
	// Count is a cheap row-count probe used by readiness checks.
	Count(ctx context.Context) (int, error)
	Close() error
}
