package orders

import (
	"errors"
	"fmt"
)

// Domain errors for orders module.
var (
	ErrOrderNotFound    = errors.New("order not found")
	ErrNoChanges        = errors.New("no changes were detected to update")
	ErrVersionConflict  = errors.New("order was modified by another request")
	ErrBulkCreateFailed = errors.New("no orders could be created")
	ErrInvalidDelete    = errors.New("deletion was not processed for one or all entities")
	ErrPartialDelete    = fmt.Errorf("%w: partial deletion", ErrInvalidDelete)
	ErrInvalidIDs       = errors.New("invalid order ids")
	ErrEmptyBatch       = errors.New("at least one order is required")
)

// BatchOrderNotFoundError reports the first order of a bulk update that does
// not exist for the user. No order of the batch was written.
type BatchOrderNotFoundError struct {
	OrderID string
}

func (e *BatchOrderNotFoundError) Error() string {
	return fmt.Sprintf("order %s was not found for bulk update", e.OrderID)
}
