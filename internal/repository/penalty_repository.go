package repository

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/crlx1q/antimat/internal/database"
	"github.com/crlx1q/antimat/internal/models"
)

var (
	ErrPenaltyNotFound = errors.New("penalty not found")
	ErrPenaltyForgiven = errors.New("penalty already forgiven")
)

type PenaltyRepository struct {
	c *mongo.Collection
}

func NewPenaltyRepository(db *mongo.Database) *PenaltyRepository {
	return &PenaltyRepository{c: db.Collection(database.CollectionPenalties)}
}

func (r *PenaltyRepository) Create(ctx context.Context, p models.Penalty) (models.Penalty, error) {
	if p.ID.IsZero() {
		p.ID = primitive.NewObjectID()
	}
	if _, err := r.c.InsertOne(ctx, p); err != nil {
		return models.Penalty{}, err
	}
	return p, nil
}

func (r *PenaltyRepository) GetByID(ctx context.Context, id primitive.ObjectID) (models.Penalty, error) {
	var p models.Penalty
	if err := r.c.FindOne(ctx, bson.M{"_id": id}).Decode(&p); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Penalty{}, ErrPenaltyNotFound
		}
		return models.Penalty{}, err
	}
	return p, nil
}

// MarkForgiven flips the penalty to forgiven only if it is not already,
// so concurrent forgives decrement the debt once.
func (r *PenaltyRepository) MarkForgiven(ctx context.Context, id, by primitive.ObjectID, at time.Time) (models.Penalty, error) {
	var p models.Penalty
	err := r.c.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "isForgiven": false},
		bson.M{"$set": bson.M{"isForgiven": true, "forgivenBy": by, "forgivenAt": at}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&p)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return models.Penalty{}, err
	}
	if _, getErr := r.GetByID(ctx, id); getErr != nil {
		return models.Penalty{}, getErr
	}
	return models.Penalty{}, ErrPenaltyForgiven
}

func userSince(userID primitive.ObjectID, since *time.Time) bson.M {
	match := bson.M{"user": userID}
	if since != nil {
		match["detectedAt"] = bson.M{"$gte": *since}
	}
	return match
}

func (r *PenaltyRepository) Stats(ctx context.Context, userID primitive.ObjectID, since *time.Time) (models.PenaltyStats, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: userSince(userID, since)}},
		{{Key: "$group", Value: bson.M{
			"_id":         nil,
			"totalCount":  bson.M{"$sum": 1},
			"totalAmount": bson.M{"$sum": "$amount"},
			"forgivenCount": bson.M{"$sum": bson.M{
				"$cond": bson.A{"$isForgiven", 1, 0},
			}},
			"forgivenAmount": bson.M{"$sum": bson.M{
				"$cond": bson.A{"$isForgiven", "$amount", 0},
			}},
		}}},
	}
	var rows []models.PenaltyStats
	if err := r.aggregate(ctx, pipeline, &rows); err != nil {
		return models.PenaltyStats{}, err
	}
	if len(rows) == 0 {
		return models.PenaltyStats{}, nil
	}
	return rows[0], nil
}

func (r *PenaltyRepository) TopWords(ctx context.Context, userID primitive.ObjectID, limit int) ([]models.WordCount, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"user": userID}}},
		{{Key: "$group", Value: bson.M{
			"_id":         "$word",
			"count":       bson.M{"$sum": 1},
			"totalAmount": bson.M{"$sum": "$amount"},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "count", Value: -1}, {Key: "_id", Value: 1}}}},
		{{Key: "$limit", Value: limit}},
	}
	rows := []models.WordCount{}
	if err := r.aggregate(ctx, pipeline, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// ListSince returns the user's penalties detected at or after since,
// oldest first. Only the fields needed for bucketing are loaded.
func (r *PenaltyRepository) ListSince(ctx context.Context, userID primitive.ObjectID, since time.Time) ([]models.Penalty, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "detectedAt", Value: 1}}).
		SetProjection(bson.M{"amount": 1, "detectedAt": 1, "user": 1})
	cur, err := r.c.Find(ctx, userSince(userID, &since), opts)
	if err != nil {
		return nil, err
	}
	var out []models.Penalty
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *PenaltyRepository) History(ctx context.Context, userID primitive.ObjectID, groupID *primitive.ObjectID, page, limit int) ([]models.Penalty, int64, error) {
	filter := bson.M{"user": userID}
	if groupID != nil {
		filter["group"] = *groupID
	}
	total, err := r.c.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	skip, size := pageOptions(page, limit)
	cur, err := r.c.Find(ctx, filter, options.Find().
		SetSort(bson.D{{Key: "detectedAt", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(skip).
		SetLimit(size))
	if err != nil {
		return nil, 0, err
	}
	out := []models.Penalty{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// MemberTotals aggregates count and amount per user inside a group.
func (r *PenaltyRepository) MemberTotals(ctx context.Context, groupID primitive.ObjectID) (map[primitive.ObjectID]models.GroupTotals, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"group": groupID}}},
		{{Key: "$group", Value: bson.M{
			"_id":         "$user",
			"totalCount":  bson.M{"$sum": 1},
			"totalAmount": bson.M{"$sum": "$amount"},
		}}},
	}
	var rows []struct {
		User        primitive.ObjectID `bson:"_id"`
		TotalCount  int64              `bson:"totalCount"`
		TotalAmount int64              `bson:"totalAmount"`
	}
	if err := r.aggregate(ctx, pipeline, &rows); err != nil {
		return nil, err
	}
	out := make(map[primitive.ObjectID]models.GroupTotals, len(rows))
	for _, row := range rows {
		out[row.User] = models.GroupTotals{TotalCount: row.TotalCount, TotalAmount: row.TotalAmount}
	}
	return out, nil
}

// MemberTopWords returns up to limit most frequent words per user inside a
// group.
func (r *PenaltyRepository) MemberTopWords(ctx context.Context, groupID primitive.ObjectID, limit int) (map[primitive.ObjectID][]models.WordCount, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"group": groupID}}},
		{{Key: "$group", Value: bson.M{
			"_id":         bson.M{"user": "$user", "word": "$word"},
			"count":       bson.M{"$sum": 1},
			"totalAmount": bson.M{"$sum": "$amount"},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "count", Value: -1}, {Key: "_id.word", Value: 1}}}},
		{{Key: "$group", Value: bson.M{
			"_id": "$_id.user",
			"words": bson.M{"$push": bson.M{
				"_id":         "$_id.word",
				"count":       "$count",
				"totalAmount": "$totalAmount",
			}},
		}}},
		{{Key: "$project", Value: bson.M{"words": bson.M{"$slice": bson.A{"$words", limit}}}}},
	}
	var rows []struct {
		User  primitive.ObjectID `bson:"_id"`
		Words []models.WordCount `bson:"words"`
	}
	if err := r.aggregate(ctx, pipeline, &rows); err != nil {
		return nil, err
	}
	out := make(map[primitive.ObjectID][]models.WordCount, len(rows))
	for _, row := range rows {
		out[row.User] = row.Words
	}
	return out, nil
}

// Ledger is what a user's penalties say their debt should be.
type Ledger struct {
	Amount int64
	// LastChange is the newest detectedAt or forgivenAt among the user's
	// penalties, zero when there are none.
	LastChange time.Time
}

func (r *PenaltyRepository) LedgerOf(ctx context.Context, userID primitive.ObjectID) (Ledger, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"user": userID}}},
		{{Key: "$group", Value: bson.M{
			"_id":          nil,
			"amount":       bson.M{"$sum": bson.M{"$cond": bson.A{"$isForgiven", 0, "$amount"}}},
			"lastDetected": bson.M{"$max": "$detectedAt"},
			"lastForgiven": bson.M{"$max": "$forgivenAt"},
		}}},
	}
	var rows []struct {
		Amount       int64      `bson:"amount"`
		LastDetected *time.Time `bson:"lastDetected"`
		LastForgiven *time.Time `bson:"lastForgiven"`
	}
	if err := r.aggregate(ctx, pipeline, &rows); err != nil {
		return Ledger{}, err
	}
	if len(rows) == 0 {
		return Ledger{}, nil
	}
	l := Ledger{Amount: rows[0].Amount}
	if rows[0].LastDetected != nil {
		l.LastChange = *rows[0].LastDetected
	}
	if f := rows[0].LastForgiven; f != nil && f.After(l.LastChange) {
		l.LastChange = *f
	}
	return l, nil
}

// TakeUnforgiven deletes one unforgiven penalty of the given groups and
// returns it, or ErrPenaltyNotFound when none is left. A refund issued per
// taken penalty can never be repeated for the same row.
func (r *PenaltyRepository) TakeUnforgiven(ctx context.Context, groupIDs []primitive.ObjectID) (models.Penalty, error) {
	var p models.Penalty
	err := r.c.FindOneAndDelete(ctx, bson.M{"isForgiven": false, "group": bson.M{"$in": groupIDs}}).Decode(&p)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Penalty{}, ErrPenaltyNotFound
	}
	if err != nil {
		return models.Penalty{}, err
	}
	return p, nil
}

func (r *PenaltyRepository) Totals(ctx context.Context) (models.GroupTotals, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.M{
			"_id":         nil,
			"totalCount":  bson.M{"$sum": 1},
			"totalAmount": bson.M{"$sum": "$amount"},
		}}},
	}
	var rows []models.GroupTotals
	if err := r.aggregate(ctx, pipeline, &rows); err != nil {
		return models.GroupTotals{}, err
	}
	if len(rows) == 0 {
		return models.GroupTotals{}, nil
	}
	return rows[0], nil
}

func (r *PenaltyRepository) DeleteByGroups(ctx context.Context, groupIDs []primitive.ObjectID) (int64, error) {
	if len(groupIDs) == 0 {
		return 0, nil
	}
	return r.deleteMany(ctx, bson.M{"group": bson.M{"$in": groupIDs}})
}

func (r *PenaltyRepository) DeleteByUser(ctx context.Context, userID primitive.ObjectID) (int64, error) {
	return r.deleteMany(ctx, bson.M{"user": userID})
}

func (r *PenaltyRepository) deleteMany(ctx context.Context, filter bson.M) (int64, error) {
	res, err := r.c.DeleteMany(ctx, filter)
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// GroupRefs lists every distinct non-null group id referenced by a penalty.
func (r *PenaltyRepository) GroupRefs(ctx context.Context) ([]primitive.ObjectID, error) {
	return distinctIDs(ctx, r.c, "group", bson.M{"group": bson.M{"$ne": nil}})
}

func (r *PenaltyRepository) aggregate(ctx context.Context, pipeline mongo.Pipeline, out any) error {
	cur, err := r.c.Aggregate(ctx, pipeline)
	if err != nil {
		return err
	}
	return cur.All(ctx, out)
}
