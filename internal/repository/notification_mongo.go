package repository

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/khushnawaj/scriptSelf-sub001/internal/domain"
)

type NotificationRepository struct {
	coll *mongo.Collection
}

func NewNotificationRepository(ctx context.Context, db *mongo.Database) (*NotificationRepository, error) {
	coll := db.Collection("notifications")
	ix := mongo.IndexModel{
		Keys:    bson.D{{Key: "recipient", Value: 1}, {Key: "createdAt", Value: -1}},
		Options: options.Index().SetName("recipient_created_idx"),
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	if _, err := coll.Indexes().CreateOne(ctx, ix); err != nil {
		return nil, fmt.Errorf("create notification index: %w", err)
	}
	return &NotificationRepository{coll: coll}, nil
}

func (r *NotificationRepository) Insert(ctx context.Context, n *domain.Notification) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	_, err := r.coll.InsertOne(ctx, n)
	return err
}

// Recent returns the newest notifications of recipient first.
func (r *NotificationRepository) Recent(ctx context.Context, recipient string, limit int) ([]*domain.Notification, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}).SetLimit(int64(limit))
	cur, err := r.coll.Find(ctx, bson.M{"recipient": recipient}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := []*domain.Notification{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *NotificationRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*domain.Notification, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	var n domain.Notification
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&n); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &n, nil
}

func (r *NotificationRepository) MarkRead(ctx context.Context, id primitive.ObjectID, recipient string) (*domain.Notification, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var n domain.Notification
	err := r.coll.FindOneAndUpdate(ctx, bson.M{"_id": id, "recipient": recipient}, bson.M{"$set": bson.M{"isRead": true}}, opts).Decode(&n)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &n, nil
}

func (r *NotificationRepository) MarkAllRead(ctx context.Context, recipient string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	res, err := r.coll.UpdateMany(ctx, bson.M{"recipient": recipient, "isRead": false}, bson.M{"$set": bson.M{"isRead": true}})
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

func (r *NotificationRepository) Delete(ctx context.Context, id primitive.ObjectID, recipient string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": id, "recipient": recipient})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}
