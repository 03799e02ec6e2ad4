package repository

import (
	"context"
	"errors"
	"sort"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/crlx1q/antimat/internal/database"
	"github.com/crlx1q/antimat/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

type MessageRepository struct {
	c        *mongo.Collection
	counters *mongo.Collection
}

func NewMessageRepository(db *mongo.Database) *MessageRepository {
	return &MessageRepository{
		c:        db.Collection(database.CollectionMessages),
		counters: db.Collection(database.CollectionCounters),
	}
}

func counterKey(groupID primitive.ObjectID) string {
	return "chat:" + groupID.Hex()
}

func (r *MessageRepository) nextSeq(ctx context.Context, groupID primitive.ObjectID) (int64, error) {
	var counter struct {
		Value int64 `bson:"value"`
	}
	err := r.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": counterKey(groupID)},
		bson.M{"$inc": bson.M{"value": int64(1)}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	if err != nil {
		return 0, err
	}
	return counter.Value, nil
}

// Insert stores the message with the next sequence number of its group.
func (r *MessageRepository) Insert(ctx context.Context, msg models.ChatMessage) (models.ChatMessage, error) {
	seq, err := r.nextSeq(ctx, msg.Group)
	if err != nil {
		return models.ChatMessage{}, err
	}
	if msg.ID.IsZero() {
		msg.ID = primitive.NewObjectID()
	}
	msg.Seq = seq
	if _, err := r.c.InsertOne(ctx, msg); err != nil {
		return models.ChatMessage{}, err
	}
	return msg, nil
}

func (r *MessageRepository) GetByID(ctx context.Context, id primitive.ObjectID) (models.ChatMessage, error) {
	var msg models.ChatMessage
	if err := r.c.FindOne(ctx, bson.M{"_id": id}).Decode(&msg); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.ChatMessage{}, ErrMessageNotFound
		}
		return models.ChatMessage{}, err
	}
	return msg, nil
}

// After returns messages of the group with seq greater than seq, ascending.
func (r *MessageRepository) After(ctx context.Context, groupID primitive.ObjectID, seq int64, limit int) ([]models.ChatMessage, error) {
	cur, err := r.c.Find(ctx,
		bson.M{"group": groupID, "seq": bson.M{"$gt": seq}},
		options.Find().SetSort(bson.D{{Key: "seq", Value: 1}}).SetLimit(int64(limit)),
	)
	if err != nil {
		return nil, err
	}
	out := []models.ChatMessage{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Latest returns the newest limit messages in ascending order.
func (r *MessageRepository) Latest(ctx context.Context, groupID primitive.ObjectID, limit int) ([]models.ChatMessage, error) {
	out, _, err := r.Page(ctx, groupID, 1, limit)
	return out, err
}

// Page returns one page counted from the newest message. Items inside the
// page are ascending.
func (r *MessageRepository) Page(ctx context.Context, groupID primitive.ObjectID, page, limit int) ([]models.ChatMessage, int64, error) {
	filter := bson.M{"group": groupID}
	total, err := r.c.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	skip, size := pageOptions(page, limit)
	cur, err := r.c.Find(ctx, filter, options.Find().
		SetSort(bson.D{{Key: "seq", Value: -1}}).
		SetSkip(skip).
		SetLimit(size))
	if err != nil {
		return nil, 0, err
	}
	out := []models.ChatMessage{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, 0, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, total, nil
}

// DeleteByGroup removes the group's history and its sequence counter.
func (r *MessageRepository) DeleteByGroup(ctx context.Context, groupID primitive.ObjectID) (int64, error) {
	res, err := r.c.DeleteMany(ctx, bson.M{"group": groupID})
	if err != nil {
		return 0, err
	}
	if _, err := r.counters.DeleteOne(ctx, bson.M{"_id": counterKey(groupID)}); err != nil {
		return res.DeletedCount, err
	}
	return res.DeletedCount, nil
}

func (r *MessageRepository) DeleteByGroups(ctx context.Context, groupIDs []primitive.ObjectID) (int64, error) {
	var total int64
	for _, id := range groupIDs {
		n, err := r.DeleteByGroup(ctx, id)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func (r *MessageRepository) DeleteBySender(ctx context.Context, userID primitive.ObjectID) (int64, error) {
	res, err := r.c.DeleteMany(ctx, bson.M{"sender": userID})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

func (r *MessageRepository) GroupRefs(ctx context.Context) ([]primitive.ObjectID, error) {
	return distinctIDs(ctx, r.c, "group", bson.M{})
}
