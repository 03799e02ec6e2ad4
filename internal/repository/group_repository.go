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
	ErrGroupNotFound   = errors.New("group not found")
	ErrInviteCodeTaken = errors.New("invite code already used")
	ErrAlreadyMember   = errors.New("already a member")
	ErrNotMember       = errors.New("not a member")
)

type GroupRepository struct {
	c *mongo.Collection
}

func NewGroupRepository(db *mongo.Database) *GroupRepository {
	return &GroupRepository{c: db.Collection(database.CollectionGroups)}
}

func (r *GroupRepository) Create(ctx context.Context, group models.Group) (models.Group, error) {
	if group.ID.IsZero() {
		group.ID = primitive.NewObjectID()
	}
	if group.Admins == nil {
		group.Admins = []primitive.ObjectID{}
	}
	if _, err := r.c.InsertOne(ctx, group); err != nil {
		if database.IsDup(err) {
			return models.Group{}, ErrInviteCodeTaken
		}
		return models.Group{}, err
	}
	return group, nil
}

func (r *GroupRepository) GetByID(ctx context.Context, id primitive.ObjectID) (models.Group, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *GroupRepository) FindByInviteCode(ctx context.Context, code string) (models.Group, error) {
	return r.findOne(ctx, bson.M{"inviteCode": code})
}

func (r *GroupRepository) findOne(ctx context.Context, filter bson.M) (models.Group, error) {
	var group models.Group
	if err := r.c.FindOne(ctx, filter).Decode(&group); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Group{}, ErrGroupNotFound
		}
		return models.Group{}, err
	}
	return group, nil
}

func (r *GroupRepository) InviteCodeExists(ctx context.Context, code string) (bool, error) {
	n, err := r.c.CountDocuments(ctx, bson.M{"inviteCode": code}, options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *GroupRepository) ListByMember(ctx context.Context, userID primitive.ObjectID) ([]models.Group, error) {
	cur, err := r.c.Find(ctx, bson.M{"members.user": userID},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		return nil, err
	}
	groups := []models.Group{}
	if err := cur.All(ctx, &groups); err != nil {
		return nil, err
	}
	return groups, nil
}

func (r *GroupRepository) AddMember(ctx context.Context, groupID primitive.ObjectID, member models.GroupMember) error {
	res, err := r.c.UpdateOne(ctx,
		bson.M{"_id": groupID, "members.user": bson.M{"$ne": member.User}},
		bson.M{"$push": bson.M{"members": member}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount > 0 {
		return nil
	}
	if _, err := r.GetByID(ctx, groupID); err != nil {
		return err
	}
	return ErrAlreadyMember
}

// RemoveMember drops the user from both members and admins.
func (r *GroupRepository) RemoveMember(ctx context.Context, groupID, userID primitive.ObjectID) error {
	res, err := r.c.UpdateOne(ctx,
		bson.M{"_id": groupID, "members.user": userID},
		bson.M{"$pull": bson.M{
			"members": bson.M{"user": userID},
			"admins":  userID,
		}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotMember
	}
	return nil
}

// RemoveMemberEverywhere is used when an account disappears.
func (r *GroupRepository) RemoveMemberEverywhere(ctx context.Context, userIDs []primitive.ObjectID) (int64, error) {
	if len(userIDs) == 0 {
		return 0, nil
	}
	res, err := r.c.UpdateMany(ctx,
		bson.M{"members.user": bson.M{"$in": userIDs}},
		bson.M{"$pull": bson.M{
			"members": bson.M{"user": bson.M{"$in": userIDs}},
			"admins":  bson.M{"$in": userIDs},
		}},
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

func (r *GroupRepository) UpdateSettings(ctx context.Context, groupID primitive.ObjectID, settings models.GroupSettings) (models.Group, error) {
	var group models.Group
	err := r.c.FindOneAndUpdate(ctx, bson.M{"_id": groupID},
		bson.M{"$set": bson.M{"settings": settings}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&group)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Group{}, ErrGroupNotFound
		}
		return models.Group{}, err
	}
	return group, nil
}

// TransferOwnership hands the group to newOwner and demotes the previous
// owner to admin in one update. The filter pins the current owner.
func (r *GroupRepository) TransferOwnership(ctx context.Context, groupID, from, to primitive.ObjectID, admins []primitive.ObjectID) (models.Group, error) {
	update := bson.M{"$set": bson.M{
		"owner":                to,
		"admins":               admins,
		"members.$[old].role":  models.RoleAdmin,
		"members.$[next].role": models.RoleOwner,
	}}

	opts := options.FindOneAndUpdate().
		SetArrayFilters(options.ArrayFilters{Filters: []any{
			bson.M{"old.user": from},
			bson.M{"next.user": to},
		}}).
		SetReturnDocument(options.After)

	var group models.Group
	err := r.c.FindOneAndUpdate(ctx,
		bson.M{"_id": groupID, "owner": from, "members.user": to},
		update, opts,
	).Decode(&group)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Group{}, ErrGroupNotFound
		}
		return models.Group{}, err
	}
	return group, nil
}

func (r *GroupRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	res, err := r.c.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrGroupNotFound
	}
	return nil
}

func (r *GroupRepository) Count(ctx context.Context) (int64, error) {
	return r.c.CountDocuments(ctx, bson.M{})
}

func (r *GroupRepository) ExistingIDs(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]bool, error) {
	return existing(ctx, r.c, ids)
}

// MemberRefs lists every distinct user id appearing in a member list.
func (r *GroupRepository) MemberRefs(ctx context.Context) ([]primitive.ObjectID, error) {
	return distinctIDs(ctx, r.c, "members.user", bson.M{})
}
