package positions

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/trogers1052/portfolio-tracker/internal/models"
)

// Store is the persistence boundary. Every call is scoped to owner; records
// that exist but belong to someone else are reported as models.ErrNotFound.
type Store interface {
	// FindPosition returns the live position for (portfolioID, symbol) or models.ErrNotFound.
	FindPosition(ctx context.Context, owner string, portfolioID int, symbol string) (*models.Position, error)
	GetPosition(ctx context.Context, owner string, id int) (*models.Position, error)
	ListTransactions(ctx context.Context, owner string, positionID int) ([]*models.Transaction, error)
	// SaveMutation writes the position and its transaction atomically. Updates
	// must match Position.Version and bump it; a stale version fails with
	// models.ErrVersionConflict.
	SaveMutation(ctx context.Context, owner string, m *models.Mutation) error
	DeletePosition(ctx context.Context, owner string, id int) error
	SetCurrentPrice(ctx context.Context, owner string, id int, price decimal.Decimal) error
}

// Locker serializes mutations of one position across processes
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// Publisher receives position change events
type Publisher interface {
	PublishPositionEvent(ctx context.Context, event models.PositionEvent) error
}

type noopLocker struct{}

func (noopLocker) Lock(context.Context, string) (func(), error) { return func() {}, nil }

type noopPublisher struct{}

func (noopPublisher) PublishPositionEvent(context.Context, models.PositionEvent) error { return nil }
