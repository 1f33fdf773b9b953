package domain

import (
	"slices"
	"time"
)

// Order is owned by exactly one user and holds at least one item.
type Order struct {
	ID        string      `json:"orderId"`
	UserID    int64       `json:"userId"`
	Items     []OrderItem `json:"items"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
	Version   int64       `json:"version"`
}

type OrderItem struct {
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

// SameItems reports whether items matches the order's current item list in order.
func (o *Order) SameItems(items []OrderItem) bool {
	return slices.Equal(o.Items, items)
}
