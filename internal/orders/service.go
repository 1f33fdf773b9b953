// Package orders provides the order workflow, including bulk operations with
// partial-success semantics.
package orders

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/bissquit/pizzeria/internal/domain"
	"github.com/bissquit/pizzeria/internal/pkg/ctxlog"
	"github.com/bissquit/pizzeria/internal/pkg/metrics"
	"golang.org/x/sync/errgroup"
)

// Delete policies for DeleteMany.
const (
	// DeletePolicyStrict fails the request unless every requested order was removed.
	DeletePolicyStrict = "strict"
	// DeletePolicyPartial reports partial removal as a partial outcome.
	DeletePolicyPartial = "partial"
)

// ValidDeletePolicy reports whether p names a known delete policy.
func ValidDeletePolicy(p string) bool {
	return p == DeletePolicyStrict || p == DeletePolicyPartial
}

// maxConcurrentUpdates bounds the writes issued by one bulk update.
const maxConcurrentUpdates = 8

// Outcome classifies a bulk operation.
type Outcome string

// Bulk outcomes.
const (
	OutcomeFull    Outcome = "full"
	OutcomePartial Outcome = "partial"
	OutcomeNone    Outcome = "none"
	outcomeFailed  Outcome = "failed"
)

// Options configures the order service.
type Options struct {
	DeleteManyPolicy string
}

// Service implements order business logic.
type Service struct {
	repo         Repository
	deletePolicy string
	now          func() time.Time
}

// NewService creates a new orders service.
func NewService(repo Repository, opts Options) *Service {
	policy := opts.DeleteManyPolicy
	if policy == "" {
		policy = DeletePolicyStrict
	}
	return &Service{
		repo:         repo,
		deletePolicy: policy,
		now:          func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
	}
}

// OrderUpdate is one entry of a bulk update.
type OrderUpdate struct {
	OrderID string
	Items   []domain.OrderItem
}

// CreateManyResult is the outcome of CreateMany.
type CreateManyResult struct {
	Outcome Outcome
	Orders  []domain.Order
	Failed  int
}

// UpdateManyResult is the outcome of UpdateMany.
type UpdateManyResult struct {
	Outcome    Outcome  `json:"-"`
	Modified   []string `json:"modified"`
	Unmodified []string `json:"unmodified"`
}

// DeleteManyResult is the outcome of DeleteMany.
type DeleteManyResult struct {
	Outcome   Outcome `json:"-"`
	Requested int64   `json:"requested"`
	Deleted   int64   `json:"deleted"`
}

// ListForUser returns the user's orders. An empty slice is not an error.
func (s *Service) ListForUser(ctx context.Context, userID int64) ([]domain.Order, error) {
	orders, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

// GetForUser returns one order owned by the user.
func (s *Service) GetForUser(ctx context.Context, userID int64, orderID string) (*domain.Order, error) {
	return s.repo.GetByID(ctx, userID, orderID)
}

// Create stores a new order for the user.
func (s *Service) Create(ctx context.Context, userID int64, items []domain.OrderItem) (*domain.Order, error) {
	order := s.newOrder(userID, items)

	if err := s.repo.Insert(ctx, &order); err != nil {
		return nil, fmt.Errorf("insert order: %w", err)
	}

	ctxlog.FromContext(ctx).Info("order created", "order_id", order.ID, "user_id", userID)

	return &order, nil
}

// CreateMany stores every order independently. Each order must carry its UserID.
func (s *Service) CreateMany(ctx context.Context, orders []domain.Order) (*CreateManyResult, error) {
	if len(orders) == 0 {
		return nil, ErrEmptyBatch
	}

	batch := make([]domain.Order, 0, len(orders))
	for _, o := range orders {
		batch = append(batch, s.newOrder(o.UserID, o.Items))
	}

	res, err := s.repo.InsertMany(ctx, batch)
	if err != nil {
		s.recordOutcome("create_many", outcomeFailed)
		return nil, fmt.Errorf("insert orders: %w", err)
	}

	log := ctxlog.FromContext(ctx)
	if res.Failed == len(batch) {
		s.recordOutcome("create_many", outcomeFailed)
		log.Warn("bulk order creation failed", "requested", len(batch))
		return nil, ErrBulkCreateFailed
	}

	outcome := OutcomeFull
	if res.Failed > 0 {
		outcome = OutcomePartial
		log.Warn("bulk order creation partially failed",
			"requested", len(batch),
			"failed", res.Failed,
		)
	}
	s.recordOutcome("create_many", outcome)

	return &CreateManyResult{
		Outcome: outcome,
		Orders:  res.Inserted,
		Failed:  res.Failed,
	}, nil
}

// Update replaces the items of an order. Submitting the current items is
// reported as ErrNoChanges and nothing is written.
func (s *Service) Update(ctx context.Context, userID int64, orderID string, items []domain.OrderItem) (*domain.Order, error) {
	order, err := s.repo.GetByID(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}

	if order.SameItems(items) {
		return nil, ErrNoChanges
	}

	if err := s.applyUpdate(ctx, order, items); err != nil {
		return nil, err
	}

	return order, nil
}

// UpdateMany applies a batch of item replacements for one user.
//
// Every target is looked up before anything is written; the first missing
// order aborts the batch with *BatchOrderNotFoundError. Changed orders are
// then written concurrently. Orders whose items are unchanged, or that lost a
// concurrent write, are reported as unmodified.
func (s *Service) UpdateMany(ctx context.Context, userID int64, updates []OrderUpdate) (*UpdateManyResult, error) {
	if len(updates) == 0 {
		return nil, ErrEmptyBatch
	}

	updates = slices.Clone(updates)
	seen := make(map[string]struct{}, len(updates))
	for i := range updates {
		id := canonicalID(updates[i].OrderID)
		if id == "" {
			return nil, ErrInvalidIDs
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("%w: %s appears more than once", ErrInvalidIDs, id)
		}
		seen[id] = struct{}{}
		updates[i].OrderID = id
	}

	targets := make([]*domain.Order, len(updates))
	for i, u := range updates {
		order, err := s.repo.GetByID(ctx, userID, u.OrderID)
		if err != nil {
			if errors.Is(err, ErrOrderNotFound) {
				return nil, &BatchOrderNotFoundError{OrderID: u.OrderID}
			}
			return nil, fmt.Errorf("get order %s: %w", u.OrderID, err)
		}
		targets[i] = order
	}

	var (
		mu       sync.Mutex
		modified = make([]bool, len(updates))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentUpdates)

	for i, u := range updates {
		order := targets[i]
		if order.SameItems(u.Items) {
			continue
		}

		g.Go(func() error {
			err := s.applyUpdate(gctx, order, u.Items)
			if errors.Is(err, ErrVersionConflict) {
				return nil
			}
			if err != nil {
				return err
			}
			mu.Lock()
			modified[i] = true
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		s.recordOutcome("update_many", outcomeFailed)
		return nil, err
	}

	result := &UpdateManyResult{
		Modified:   []string{},
		Unmodified: []string{},
	}
	for i, u := range updates {
		if modified[i] {
			result.Modified = append(result.Modified, u.OrderID)
		} else {
			result.Unmodified = append(result.Unmodified, u.OrderID)
		}
	}

	switch len(result.Modified) {
	case 0:
		s.recordOutcome("update_many", OutcomeNone)
		return nil, ErrNoChanges
	case len(updates):
		result.Outcome = OutcomeFull
	default:
		result.Outcome = OutcomePartial
	}
	s.recordOutcome("update_many", result.Outcome)

	return result, nil
}

func (s *Service) applyUpdate(ctx context.Context, order *domain.Order, items []domain.OrderItem) error {
	expected := order.Version

	order.Items = slices.Clone(items)
	order.UpdatedAt = s.now()
	order.Version = expected + 1

	if err := s.repo.UpdateItems(ctx, order, expected); err != nil {
		if errors.Is(err, ErrVersionConflict) {
			return err
		}
		return fmt.Errorf("update order %s: %w", order.ID, err)
	}

	ctxlog.FromContext(ctx).Info("order updated", "order_id", order.ID, "version", order.Version)
	return nil
}

// Delete removes one order of the user.
func (s *Service) Delete(ctx context.Context, userID int64, orderID string) error {
	deleted, err := s.repo.Delete(ctx, userID, orderID)
	if err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	if deleted != 1 {
		return ErrInvalidDelete
	}

	ctxlog.FromContext(ctx).Info("order deleted", "order_id", orderID, "user_id", userID)
	return nil
}

// DeleteMany removes the listed orders of the user. Duplicate ids count once.
// Under the strict policy, removing fewer orders than requested is an error even
// though the removed orders stay removed.
func (s *Service) DeleteMany(ctx context.Context, userID int64, orderIDs []string) (*DeleteManyResult, error) {
	if len(orderIDs) == 0 {
		return nil, ErrEmptyBatch
	}

	ids := make([]string, 0, len(orderIDs))
	seen := make(map[string]struct{}, len(orderIDs))
	for _, id := range orderIDs {
		id = canonicalID(id)
		if id == "" {
			return nil, ErrInvalidIDs
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	deleted, err := s.repo.DeleteMany(ctx, userID, ids)
	if err != nil {
		s.recordOutcome("delete_many", outcomeFailed)
		return nil, fmt.Errorf("delete orders: %w", err)
	}

	result := &DeleteManyResult{
		Requested: int64(len(ids)),
		Deleted:   deleted,
	}

	ctxlog.FromContext(ctx).Info("orders deleted",
		"user_id", userID,
		"requested", result.Requested,
		"deleted", result.Deleted,
	)

	switch {
	case deleted == result.Requested:
		result.Outcome = OutcomeFull
	case deleted == 0:
		s.recordOutcome("delete_many", OutcomeNone)
		return nil, ErrInvalidDelete
	case s.deletePolicy == DeletePolicyPartial:
		result.Outcome = OutcomePartial
	default:
		s.recordOutcome("delete_many", OutcomePartial)
		return nil, ErrPartialDelete
	}
	s.recordOutcome("delete_many", result.Outcome)

	return result, nil
}

// canonicalID folds an order id to the lowercase hex form the store returns.
func canonicalID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

func (s *Service) newOrder(userID int64, items []domain.OrderItem) domain.Order {
	now := s.now()
	return domain.Order{
		UserID:    userID,
		Items:     slices.Clone(items),
		CreatedAt: now,
		UpdatedAt: now,
		Version:   1,
	}
}

func (s *Service) recordOutcome(operation string, outcome Outcome) {
	metrics.RecordBulkOutcome(operation, string(outcome))
}
