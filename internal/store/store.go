//go:generate go run go.uber.org/mock/mockgen -source=store.go -destination=../mocks/mock_store.go -package=mocks
package store

import (
	"context"
	"errors"

	"github.com/manpreetbhatti/menuroom/internal/menu"
)

var (
	ErrNotFound = errors.New("room not found")
	ErrExists   = errors.New("room already exists")
)

// Store fetches and replaces whole room documents. It does no versioning:
// the last Replace wins, so callers must serialize writes per room.
type Store interface {
	Get(ctx context.Context, roomID string) (*menu.Document, error)
	Replace(ctx context.Context, roomID string, doc *menu.Document) error
	Create(ctx context.Context, doc *menu.Document) error
	List(ctx context.Context, limit, offset int) ([]menu.Summary, error)
}
