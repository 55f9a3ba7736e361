// Package source defines the capture-source contract used by the poller and
// provides the in-memory SMS inbox source.
package source

import (
	"context"
	"errors"

	"github.com/mixelka/otprelay/pkg/models"
)

var (
	// ErrCursorInvalid means the cursor no longer identifies a position in the
	// source's change stream. Callers re-baseline instead of failing.
	ErrCursorInvalid = errors.New("cursor invalid")

	// ErrMessageGone means a listed message can no longer be fetched
	ErrMessageGone = errors.New("message gone")

	// ErrDuplicateMessage means a message id is already held by the inbox
	ErrDuplicateMessage = errors.New("duplicate message id")
)

// Source is an incremental inbound-message provider
type Source interface {
	// Name is the source identifier matched against a request's accepted sources
	Name() string

	// Baseline returns a cursor at the source's current position
	Baseline(ctx context.Context) (models.Cursor, error)

	// Changes lists ids of messages added after cursor, oldest first, and the
	// cursor to resume from. It returns ErrCursorInvalid for stale cursors.
	Changes(ctx context.Context, cursor models.Cursor) (models.Cursor, []string, error)

	// Fetch returns the full message for an id returned by Changes
	Fetch(ctx context.Context, id string) (*models.SourceMessage, error)
}
