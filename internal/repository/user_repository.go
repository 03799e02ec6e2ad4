package repository

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/crlx1q/antimat/internal/database"
	"github.com/crlx1q/antimat/internal/models"
)

var (
	ErrUserNotFound   = errors.New("user not found")
	ErrEmailTaken     = errors.New("email already registered")
	ErrWordExists     = errors.New("word already tracked")
	ErrWordNotFound   = errors.New("word not tracked")
	ErrWordLimit      = errors.New("word limit reached")
	ErrGroupLimit     = errors.New("group limit reached")
	ErrAlreadyInGroup = errors.New("user already in group")
	ErrPenaltyLocked  = errors.New("penalty amount changed recently")
)

type UserRepository struct {
	c *mongo.Collection
}

func NewUserRepository(db *mongo.Database) *UserRepository {
	return &UserRepository{c: db.Collection(database.CollectionUsers)}
}

func (r *UserRepository) Create(ctx context.Context, user models.User) (models.User, error) {
	if user.ID.IsZero() {
		user.ID = primitive.NewObjectID()
	}
	if user.BannedWords == nil {
		user.BannedWords = []models.BannedWord{}
	}
	if user.Groups == nil {
		user.Groups = []primitive.ObjectID{}
	}
	if _, err := r.c.InsertOne(ctx, user); err != nil {
		if database.IsDup(err) {
			return models.User{}, ErrEmailTaken
		}
		return models.User{}, err
	}
	return user, nil
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (models.User, error) {
	return r.findOne(ctx, bson.M{"email": email})
}

func (r *UserRepository) GetByID(ctx context.Context, id primitive.ObjectID) (models.User, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *UserRepository) findOne(ctx context.Context, filter bson.M) (models.User, error) {
	var user models.User
	if err := r.c.FindOne(ctx, filter).Decode(&user); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.User{}, ErrUserNotFound
		}
		return models.User{}, err
	}
	return user, nil
}

func (r *UserRepository) FindByIDs(ctx context.Context, ids []primitive.ObjectID) ([]models.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	cur, err := r.c.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	var users []models.User
	if err := cur.All(ctx, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// PushTokens returns the non-empty tokens of the given users whose
// notifications are enabled.
func (r *UserRepository) PushTokens(ctx context.Context, ids []primitive.ObjectID) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	filter := bson.M{
		"_id":                           bson.M{"$in": ids},
		"fcmToken":                      bson.M{"$nin": bson.A{nil, ""}},
		"settings.notificationsEnabled": bson.M{"$ne": false},
	}
	cur, err := r.c.Find(ctx, filter, options.Find().SetProjection(bson.M{"fcmToken": 1}))
	if err != nil {
		return nil, err
	}
	var rows []struct {
		Token string `bson:"fcmToken"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, err
	}
	tokens := make([]string, 0, len(rows))
	for _, row := range rows {
		tokens = append(tokens, row.Token)
	}
	return tokens, nil
}

// AllPushTokens is used by admin broadcasts.
func (r *UserRepository) AllPushTokens(ctx context.Context) ([]string, error) {
	values, err := r.c.Distinct(ctx, "fcmToken", bson.M{"fcmToken": bson.M{"$nin": bson.A{nil, ""}}})
	if err != nil {
		return nil, err
	}
	tokens := make([]string, 0, len(values))
	for _, v := range values {
		if s, ok := v.(string); ok && s != "" {
			tokens = append(tokens, s)
		}
	}
	return tokens, nil
}

func (r *UserRepository) ClearPushTokens(ctx context.Context, tokens []string) (int64, error) {
	if len(tokens) == 0 {
		return 0, nil
	}
	res, err := r.c.UpdateMany(ctx,
		bson.M{"fcmToken": bson.M{"$in": tokens}},
		bson.M{"$set": bson.M{"fcmToken": nil}},
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

func (r *UserRepository) SetPasswordHash(ctx context.Context, id primitive.ObjectID, hash string) error {
	_, err := r.c.UpdateByID(ctx, id, bson.M{"$set": bson.M{"password": hash}})
	return err
}

func (r *UserRepository) TouchActive(ctx context.Context, id primitive.ObjectID, at time.Time) error {
	_, err := r.c.UpdateByID(ctx, id, bson.M{"$set": bson.M{"lastActiveAt": at}})
	return err
}

// Heartbeat stores the presence timestamp and returns the document as it was
// before the update, so callers can detect a recording flag change.
func (r *UserRepository) Heartbeat(ctx context.Context, id primitive.ObjectID, at time.Time, recording *bool) (models.User, error) {
	set := bson.M{"lastSeen": at, "lastActiveAt": at}
	if recording != nil {
		set["isRecording"] = *recording
	}
	var before models.User
	err := r.c.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.Before),
	).Decode(&before)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.User{}, ErrUserNotFound
		}
		return models.User{}, err
	}
	return before, nil
}

type ProfileUpdate struct {
	Name   *string
	Avatar *string
}

func (r *UserRepository) UpdateProfile(ctx context.Context, id primitive.ObjectID, upd ProfileUpdate) (models.User, error) {
	set := bson.M{}
	if upd.Name != nil {
		set["name"] = *upd.Name
	}
	if upd.Avatar != nil {
		if *upd.Avatar == "" {
			set["avatar"] = nil
		} else {
			set["avatar"] = *upd.Avatar
		}
	}
	return r.applySet(ctx, bson.M{"_id": id}, set)
}

type SettingsUpdate struct {
	Theme                *models.Theme
	SoundEnabled         *bool
	NotificationsEnabled *bool
	ContinuousRecording  *bool
}

func (r *UserRepository) UpdateSettings(ctx context.Context, id primitive.ObjectID, upd SettingsUpdate) (models.User, error) {
	set := bson.M{}
	if upd.Theme != nil {
		set["settings.theme"] = *upd.Theme
	}
	if upd.SoundEnabled != nil {
		set["settings.soundEnabled"] = *upd.SoundEnabled
	}
	if upd.NotificationsEnabled != nil {
		set["settings.notificationsEnabled"] = *upd.NotificationsEnabled
	}
	if upd.ContinuousRecording != nil {
		set["continuousRecording"] = *upd.ContinuousRecording
	}
	return r.applySet(ctx, bson.M{"_id": id}, set)
}

// SetPenaltyAmount changes the fine only if the previous change is older
// than the cooldown. The condition lives in the filter so two concurrent
// requests cannot both pass.
func (r *UserRepository) SetPenaltyAmount(ctx context.Context, id primitive.ObjectID, amount int64, at time.Time) (models.User, error) {
	filter := bson.M{
		"_id": id,
		"$or": bson.A{
			bson.M{"penaltyAmountUpdatedAt": nil},
			bson.M{"penaltyAmountUpdatedAt": bson.M{"$lte": at.Add(-models.PenaltyAmountCooldown)}},
		},
	}
	user, err := r.applySet(ctx, filter, bson.M{"penaltyAmount": amount, "penaltyAmountUpdatedAt": at})
	if errors.Is(err, ErrUserNotFound) {
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return models.User{}, getErr
		}
		return models.User{}, ErrPenaltyLocked
	}
	return user, err
}

func (r *UserRepository) SetPushToken(ctx context.Context, id primitive.ObjectID, token string) error {
	var value any
	if token != "" {
		value = token
	}
	res, err := r.c.UpdateByID(ctx, id, bson.M{"$set": bson.M{"fcmToken": value}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) applySet(ctx context.Context, filter bson.M, set bson.M) (models.User, error) {
	if len(set) == 0 {
		return r.findOne(ctx, filter)
	}
	var user models.User
	err := r.c.FindOneAndUpdate(ctx, filter, bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.User{}, ErrUserNotFound
		}
		return models.User{}, err
	}
	return user, nil
}

// AddWord appends a banned word. Both the duplicate check and the cap are
// part of the update filter so the cap holds under concurrent requests.
func (r *UserRepository) AddWord(ctx context.Context, id primitive.ObjectID, word string, limit int, at time.Time) (models.User, error) {
	filter := bson.M{
		"_id":                                  id,
		"bannedWords.word":                     bson.M{"$ne": word},
		fmt.Sprintf("bannedWords.%d", limit-1): bson.M{"$exists": false},
	}
	var user models.User
	err := r.c.FindOneAndUpdate(ctx, filter,
		bson.M{"$push": bson.M{"bannedWords": models.BannedWord{Word: word, AddedAt: at}}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&user)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return models.User{}, err
	}

	current, getErr := r.GetByID(ctx, id)
	if getErr != nil {
		return models.User{}, getErr
	}
	for _, w := range current.BannedWords {
		if w.Word == word {
			return models.User{}, ErrWordExists
		}
	}
	return models.User{}, ErrWordLimit
}

func (r *UserRepository) RemoveWord(ctx context.Context, id primitive.ObjectID, word string) (models.User, error) {
	var user models.User
	err := r.c.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "bannedWords.word": word},
		bson.M{"$pull": bson.M{"bannedWords": bson.M{"word": word}}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			if _, getErr := r.GetByID(ctx, id); getErr != nil {
				return models.User{}, getErr
			}
			return models.User{}, ErrWordNotFound
		}
		return models.User{}, err
	}
	return user, nil
}

// AddGroup records a membership on the user side, enforcing the group
// ceiling in the same filter.
func (r *UserRepository) AddGroup(ctx context.Context, id, groupID primitive.ObjectID, limit int) error {
	filter := bson.M{
		"_id":                             id,
		"groups":                          bson.M{"$ne": groupID},
		fmt.Sprintf("groups.%d", limit-1): bson.M{"$exists": false},
	}
	res, err := r.c.UpdateOne(ctx, filter, bson.M{"$push": bson.M{"groups": groupID}})
	if err != nil {
		return err
	}
	if res.MatchedCount > 0 {
		return nil
	}
	user, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if user.InGroup(groupID) {
		return ErrAlreadyInGroup
	}
	return ErrGroupLimit
}

func (r *UserRepository) PullGroup(ctx context.Context, id, groupID primitive.ObjectID) error {
	_, err := r.c.UpdateByID(ctx, id, bson.M{"$pull": bson.M{"groups": groupID}})
	return err
}

// PullGroups removes the group references from every user holding them.
func (r *UserRepository) PullGroups(ctx context.Context, groupIDs []primitive.ObjectID) (int64, error) {
	if len(groupIDs) == 0 {
		return 0, nil
	}
	res, err := r.c.UpdateMany(ctx,
		bson.M{"groups": bson.M{"$in": groupIDs}},
		bson.M{"$pull": bson.M{"groups": bson.M{"$in": groupIDs}}},
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

func (r *UserRepository) IncDebt(ctx context.Context, id primitive.ObjectID, delta int64) error {
	res, err := r.c.UpdateByID(ctx, id, bson.M{"$inc": bson.M{"totalDebt": delta}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) SetDebt(ctx context.Context, id primitive.ObjectID, amount int64) error {
	_, err := r.c.UpdateByID(ctx, id, bson.M{"$set": bson.M{"totalDebt": amount}})
	return err
}

// SetDebtIf replaces totalDebt only while it still equals expected. It
// reports whether the write happened.
func (r *UserRepository) SetDebtIf(ctx context.Context, id primitive.ObjectID, expected, amount int64) (bool, error) {
	res, err := r.c.UpdateOne(ctx, bson.M{"_id": id, "totalDebt": expected}, bson.M{"$set": bson.M{"totalDebt": amount}})
	if err != nil {
		return false, err
	}
	return res.MatchedCount == 1, nil
}

// Debts returns the stored totalDebt of every user.
func (r *UserRepository) Debts(ctx context.Context) (map[primitive.ObjectID]int64, error) {
	cur, err := r.c.Find(ctx, bson.M{}, options.Find().SetProjection(bson.M{"totalDebt": 1}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	debts := make(map[primitive.ObjectID]int64)
	for cur.Next(ctx) {
		var row struct {
			ID        primitive.ObjectID `bson:"_id"`
			TotalDebt int64              `bson:"totalDebt"`
		}
		if err := cur.Decode(&row); err != nil {
			return nil, err
		}
		debts[row.ID] = row.TotalDebt
	}
	return debts, cur.Err()
}

func (r *UserRepository) SetPremium(ctx context.Context, id primitive.ObjectID, expiresAt *time.Time) (models.User, error) {
	set := bson.M{"isPremium": expiresAt != nil, "premiumExpiresAt": expiresAt}
	return r.applySet(ctx, bson.M{"_id": id}, set)
}

func (r *UserRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	res, err := r.c.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) Count(ctx context.Context) (int64, error) {
	return r.c.CountDocuments(ctx, bson.M{})
}

func (r *UserRepository) CountPremium(ctx context.Context, now time.Time) (int64, error) {
	return r.c.CountDocuments(ctx, bson.M{"premiumExpiresAt": bson.M{"$gt": now}})
}

// List pages through users newest first, optionally filtered by a case
// insensitive substring of name or email.
func (r *UserRepository) List(ctx context.Context, search string, page, limit int) ([]models.User, int64, error) {
	filter := bson.M{}
	if search != "" {
		pattern := primitive.Regex{Pattern: regexp.QuoteMeta(search), Options: "i"}
		filter["$or"] = bson.A{bson.M{"name": pattern}, bson.M{"email": pattern}}
	}

	total, err := r.c.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	skip, size := pageOptions(page, limit)
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetSkip(skip).
		SetLimit(size).
		SetProjection(bson.M{"password": 0})
	cur, err := r.c.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	users := []models.User{}
	if err := cur.All(ctx, &users); err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

// GroupRefs lists every distinct group id referenced by a user.
func (r *UserRepository) GroupRefs(ctx context.Context) ([]primitive.ObjectID, error) {
	return distinctIDs(ctx, r.c, "groups", bson.M{})
}

// ExistingIDs returns the subset of ids that still exist.
func (r *UserRepository) ExistingIDs(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]bool, error) {
	return existing(ctx, r.c, ids)
}
