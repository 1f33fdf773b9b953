// Package mongo provides MongoDB implementation of the order repository.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bissquit/pizzeria/internal/domain"
	"github.com/bissquit/pizzeria/internal/orders"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// UserIndexName is the name of the ascending index on userId.
const UserIndexName = "userId_1"

type itemDocument struct {
	Name  string  `bson:"name"`
	Price float64 `bson:"price"`
}

type orderDocument struct {
	ID        primitive.ObjectID `bson:"_id"`
	UserID    int64              `bson:"userId"`
	Items     []itemDocument     `bson:"items"`
	CreatedAt time.Time          `bson:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt"`
	Version   int64              `bson:"version"`
}

// Repository implements the orders.Repository interface using MongoDB.
type Repository struct {
	coll *mongo.Collection
}

// NewRepository creates a repository over the named collection of db.
func NewRepository(db *mongo.Database, collection string) *Repository {
	return &Repository{coll: db.Collection(collection)}
}

// EnsureIndexes creates the userId index if it does not exist.
func (r *Repository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "userId", Value: 1}},
		Options: options.Index().SetName(UserIndexName),
	})
	if err != nil {
		return fmt.Errorf("create %s index: %w", UserIndexName, err)
	}
	return nil
}

// ListByUser returns the user's orders, oldest first.
func (r *Repository) ListByUser(ctx context.Context, userID int64) ([]domain.Order, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})

	cur, err := r.coll.Find(ctx, bson.M{"userId": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("find orders: %w", err)
	}

	var docs []orderDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode orders: %w", err)
	}

	result := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		result = append(result, doc.toDomain())
	}
	return result, nil
}

// GetByID returns the order if it belongs to the user.
func (r *Repository) GetByID(ctx context.Context, userID int64, orderID string) (*domain.Order, error) {
	oid, err := primitive.ObjectIDFromHex(orderID)
	if err != nil {
		return nil, orders.ErrOrderNotFound
	}

	var doc orderDocument
	err = r.coll.FindOne(ctx, bson.M{"_id": oid, "userId": userID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, orders.ErrOrderNotFound
		}
		return nil, fmt.Errorf("find order: %w", err)
	}

	order := doc.toDomain()
	return &order, nil
}

// Insert stores a new order and assigns its id.
func (r *Repository) Insert(ctx context.Context, order *domain.Order) error {
	doc := newDocument(order)

	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	order.ID = doc.ID.Hex()
	return nil
}

// InsertMany stores orders with an unordered bulk insert so one rejected
// document does not stop the rest.
func (r *Repository) InsertMany(ctx context.Context, batch []domain.Order) (*orders.InsertManyResult, error) {
	docs := make([]any, len(batch))
	for i := range batch {
		doc := newDocument(&batch[i])
		batch[i].ID = doc.ID.Hex()
		docs[i] = doc
	}

	_, err := r.coll.InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	failed, err := failedIndexes(err)
	if err != nil {
		return nil, fmt.Errorf("insert orders: %w", err)
	}

	return splitInserted(batch, failed), nil
}

// failedIndexes extracts the positions of rejected documents from a bulk write
// error. Errors that are not per-document write errors are returned as is.
func failedIndexes(err error) (map[int]struct{}, error) {
	if err == nil {
		return nil, nil
	}

	var bwe mongo.BulkWriteException
	if !errors.As(err, &bwe) || len(bwe.WriteErrors) == 0 {
		return nil, err
	}

	failed := make(map[int]struct{}, len(bwe.WriteErrors))
	for _, we := range bwe.WriteErrors {
		failed[we.Index] = struct{}{}
	}
	return failed, nil
}

func splitInserted(batch []domain.Order, failed map[int]struct{}) *orders.InsertManyResult {
	res := &orders.InsertManyResult{Inserted: make([]domain.Order, 0, len(batch)-len(failed))}
	for i, o := range batch {
		if _, ok := failed[i]; ok {
			res.Failed++
			continue
		}
		res.Inserted = append(res.Inserted, o)
	}
	return res
}

// UpdateItems performs a version-checked replacement of the order's items.
func (r *Repository) UpdateItems(ctx context.Context, order *domain.Order, expectedVersion int64) error {
	oid, err := primitive.ObjectIDFromHex(order.ID)
	if err != nil {
		return orders.ErrOrderNotFound
	}

	filter := bson.M{"_id": oid, "userId": order.UserID, "version": expectedVersion}
	update := bson.M{"$set": bson.M{
		"items":     toItemDocuments(order.Items),
		"updatedAt": order.UpdatedAt,
		"version":   order.Version,
	}}

	res, err := r.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	if res.MatchedCount == 0 {
		return orders.ErrVersionConflict
	}
	return nil
}

// Delete removes one order of the user and returns the number removed.
func (r *Repository) Delete(ctx context.Context, userID int64, orderID string) (int64, error) {
	oid, err := primitive.ObjectIDFromHex(orderID)
	if err != nil {
		return 0, nil
	}

	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": oid, "userId": userID})
	if err != nil {
		return 0, fmt.Errorf("delete order: %w", err)
	}
	return res.DeletedCount, nil
}

// DeleteMany removes the listed orders of the user. Malformed ids match nothing.
func (r *Repository) DeleteMany(ctx context.Context, userID int64, orderIDs []string) (int64, error) {
	oids := make([]primitive.ObjectID, 0, len(orderIDs))
	for _, id := range orderIDs {
		if oid, err := primitive.ObjectIDFromHex(id); err == nil {
			oids = append(oids, oid)
		}
	}
	if len(oids) == 0 {
		return 0, nil
	}

	res, err := r.coll.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": oids}, "userId": userID})
	if err != nil {
		return 0, fmt.Errorf("delete orders: %w", err)
	}
	return res.DeletedCount, nil
}

func newDocument(order *domain.Order) orderDocument {
	return orderDocument{
		ID:        primitive.NewObjectID(),
		UserID:    order.UserID,
		Items:     toItemDocuments(order.Items),
		CreatedAt: order.CreatedAt,
		UpdatedAt: order.UpdatedAt,
		Version:   order.Version,
	}
}

func toItemDocuments(items []domain.OrderItem) []itemDocument {
	docs := make([]itemDocument, 0, len(items))
	for _, it := range items {
		docs = append(docs, itemDocument(it))
	}
	return docs
}

func (d orderDocument) toDomain() domain.Order {
	items := make([]domain.OrderItem, 0, len(d.Items))
	for _, it := range d.Items {
		items = append(items, domain.OrderItem(it))
	}
	return domain.Order{
		ID:        d.ID.Hex(),
		UserID:    d.UserID,
		Items:     items,
		CreatedAt: d.CreatedAt.UTC(),
		UpdatedAt: d.UpdatedAt.UTC(),
		Version:   d.Version,
	}
}
