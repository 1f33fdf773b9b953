package orders

import (
	"context"

	"github.com/bissquit/pizzeria/internal/domain"
)

// Repository defines the interface for order document operations.
// Every lookup and write is scoped to the owning user.
type Repository interface {
	ListByUser(ctx context.Context, userID int64) ([]domain.Order, error)
	// GetByID returns ErrOrderNotFound for unknown and malformed ids.
	GetByID(ctx context.Context, userID int64, orderID string) (*domain.Order, error)
	// Insert assigns order.ID.
	Insert(ctx context.Context, order *domain.Order) error
	// InsertMany attempts every order independently. Orders that were not
	// written are reported in InsertManyResult.Failed; err is reserved for
	// failures that say nothing about individual orders.
	InsertMany(ctx context.Context, orders []domain.Order) (*InsertManyResult, error)
	// UpdateItems writes order.Items, order.UpdatedAt and order.Version if the
	// stored version still equals expectedVersion, else ErrVersionConflict.
	UpdateItems(ctx context.Context, order *domain.Order, expectedVersion int64) error
	Delete(ctx context.Context, userID int64, orderID string) (int64, error)
	DeleteMany(ctx context.Context, userID int64, orderIDs []string) (int64, error)
}

// InsertManyResult splits a bulk insert into written and rejected orders.
type InsertManyResult struct {
	Inserted []domain.Order
	Failed   int
}
