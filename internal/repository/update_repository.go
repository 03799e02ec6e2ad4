package repository

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/crlx1q/antimat/internal/database"
	"github.com/crlx1q/antimat/internal/models"
)

var (
	ErrUpdateNotFound = errors.New("update not found")
	ErrVersionExists  = errors.New("version already uploaded")
)

type UpdateRepository struct {
	c *mongo.Collection
}

func NewUpdateRepository(db *mongo.Database) *UpdateRepository {
	return &UpdateRepository{c: db.Collection(database.CollectionUpdates)}
}

func (r *UpdateRepository) Create(ctx context.Context, u models.Update) (models.Update, error) {
	if u.ID.IsZero() {
		u.ID = primitive.NewObjectID()
	}
	if _, err := r.c.InsertOne(ctx, u); err != nil {
		if database.IsDup(err) {
			return models.Update{}, ErrVersionExists
		}
		return models.Update{}, err
	}
	return u, nil
}

func (r *UpdateRepository) GetByID(ctx context.Context, id primitive.ObjectID) (models.Update, error) {
	return r.findOne(ctx, bson.M{"_id": id}, nil)
}

func (r *UpdateRepository) VersionExists(ctx context.Context, version string) (bool, error) {
	n, err := r.c.CountDocuments(ctx, bson.M{"version": version}, options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Latest is the most recently uploaded release.
func (r *UpdateRepository) Latest(ctx context.Context) (models.Update, error) {
	return r.findOne(ctx, bson.M{}, options.FindOne().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}))
}

func (r *UpdateRepository) findOne(ctx context.Context, filter bson.M, opts *options.FindOneOptions) (models.Update, error) {
	var u models.Update
	var err error
	if opts != nil {
		err = r.c.FindOne(ctx, filter, opts).Decode(&u)
	} else {
		err = r.c.FindOne(ctx, filter).Decode(&u)
	}
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Update{}, ErrUpdateNotFound
		}
		return models.Update{}, err
	}
	return u, nil
}

func (r *UpdateRepository) List(ctx context.Context, limit int) ([]models.Update, error) {
	cur, err := r.c.Find(ctx, bson.M{}, options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(limit)))
	if err != nil {
		return nil, err
	}
	out := []models.Update{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *UpdateRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	res, err := r.c.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrUpdateNotFound
	}
	return nil
}
