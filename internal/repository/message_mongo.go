package repository

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/khushnawaj/scriptSelf-sub001/internal/delivery"
	"github.com/khushnawaj/scriptSelf-sub001/internal/domain"
)

type MessageRepository struct {
	coll *mongo.Collection
}

func NewMessageRepository(ctx context.Context, db *mongo.Database) (*MessageRepository, error) {
	coll := db.Collection("messages")
	ixs := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "sender", Value: 1}, {Key: "recipient", Value: 1}, {Key: "createdAt", Value: -1}},
			Options: options.Index().SetName("conversation_created_idx"),
		},
		{
			Keys:    bson.D{{Key: "recipient", Value: 1}, {Key: "createdAt", Value: -1}},
			Options: options.Index().SetName("recipient_created_idx"),
		},
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	if _, err := coll.Indexes().CreateMany(ctx, ixs); err != nil {
		return nil, fmt.Errorf("create message indexes: %w", err)
	}
	return &MessageRepository{coll: coll}, nil
}

func (r *MessageRepository) Insert(ctx context.Context, m *domain.Message) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	_, err := r.coll.InsertOne(ctx, m)
	return err
}

func (r *MessageRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*domain.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	var m domain.Message
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&m); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

// SaveBody writes only the body fields so a concurrent status change is never
// overwritten. A message that is already deleted is left alone and
// domain.ErrMessageDeleted is returned.
func (r *MessageRepository) SaveBody(ctx context.Context, m *domain.Message) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	update := bson.M{"$set": bson.M{
		"message":   m.Content,
		"isEdited":  m.IsEdited,
		"isDeleted": m.IsDeleted,
	}}
	if m.Attachment == nil {
		update["$unset"] = bson.M{"attachment": ""}
	}
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": m.ID, "isDeleted": bson.M{"$ne": true}}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		if _, err := r.FindByID(ctx, m.ID); err != nil {
			return err
		}
		return domain.ErrMessageDeleted
	}
	return nil
}

func (r *MessageRepository) History(ctx context.Context, q domain.HistoryQuery) ([]*domain.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	var filter bson.M
	if q.UserB != "" {
		filter = bson.M{"$or": bson.A{
			bson.M{"sender": q.UserA, "recipient": q.UserB},
			bson.M{"sender": q.UserB, "recipient": q.UserA},
		}}
	} else {
		filter = bson.M{"recipient": bson.M{"$exists": false}}
	}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}).SetLimit(int64(q.Limit))
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := []*domain.Message{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	reverse(out)
	return out, nil
}

func (r *MessageRepository) AdvanceStatus(ctx context.Context, id primitive.ObjectID, recipient string, to domain.Status) (*domain.Message, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	filter := bson.M{"_id": id, "recipient": recipient, "status": bson.M{"$in": delivery.Before(to)}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var m domain.Message
	err := r.coll.FindOneAndUpdate(ctx, filter, bson.M{"$set": bson.M{"status": to}}, opts).Decode(&m)
	if err == nil {
		return &m, true, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, err
	}
	// already at or past the target, or not addressed to recipient
	if err := r.coll.FindOne(ctx, bson.M{"_id": id, "recipient": recipient}).Decode(&m); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, false, domain.ErrNotFound
		}
		return nil, false, err
	}
	return &m, false, nil
}

func (r *MessageRepository) MarkConversationRead(ctx context.Context, recipient, sender string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	filter := bson.M{
		"sender":    sender,
		"recipient": recipient,
		"status":    bson.M{"$in": delivery.Before(domain.StatusRead)},
	}
	res, err := r.coll.UpdateMany(ctx, filter, bson.M{"$set": bson.M{"status": domain.StatusRead}})
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

func reverse[T any](s []T) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
