package database

import (
	"context"
	"errors"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	CollectionUsers     = "users"
	CollectionGroups    = "groups"
	CollectionPenalties = "penalties"
	CollectionMessages  = "chatmessages"
	CollectionUpdates   = "updates"
	CollectionCounters  = "counters"
)

// EnsureIndexes is called at startup by both binaries. Every step is
// idempotent; problems are collected so all of them show up at once.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	var problems []string

	for _, spec := range indexSpecs() {
		if err := ensure(ctx, db.Collection(spec.collection), spec.models); err != nil {
			problems = append(problems, spec.collection+": "+err.Error())
		}
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

type collectionIndexes struct {
	collection string
	models     []mongo.IndexModel
}

func indexSpecs() []collectionIndexes {
	return []collectionIndexes{
		{CollectionUsers, []mongo.IndexModel{
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetName("uniq_email").SetUnique(true)},
			{Keys: bson.D{{Key: "groups", Value: 1}}, Options: options.Index().SetName("idx_groups")},
			{Keys: bson.D{{Key: "premiumExpiresAt", Value: 1}}, Options: options.Index().SetName("idx_premium_expires")},
		}},
		{CollectionGroups, []mongo.IndexModel{
			{Keys: bson.D{{Key: "inviteCode", Value: 1}}, Options: options.Index().SetName("uniq_invite_code").SetUnique(true)},
			{Keys: bson.D{{Key: "members.user", Value: 1}}, Options: options.Index().SetName("idx_members_user")},
		}},
		{CollectionPenalties, []mongo.IndexModel{
			{Keys: bson.D{{Key: "user", Value: 1}, {Key: "detectedAt", Value: -1}}, Options: options.Index().SetName("idx_user_detected")},
			{Keys: bson.D{{Key: "group", Value: 1}, {Key: "detectedAt", Value: -1}}, Options: options.Index().SetName("idx_group_detected")},
			{Keys: bson.D{{Key: "word", Value: 1}}, Options: options.Index().SetName("idx_word")},
		}},
		{CollectionMessages, []mongo.IndexModel{
			{Keys: bson.D{{Key: "group", Value: 1}, {Key: "seq", Value: 1}}, Options: options.Index().SetName("uniq_group_seq").SetUnique(true)},
			{Keys: bson.D{{Key: "sender", Value: 1}}, Options: options.Index().SetName("idx_sender")},
		}},
		{CollectionUpdates, []mongo.IndexModel{
			{Keys: bson.D{{Key: "version", Value: 1}}, Options: options.Index().SetName("uniq_version").SetUnique(true)},
			{Keys: bson.D{{Key: "createdAt", Value: -1}}, Options: options.Index().SetName("idx_created")},
		}},
	}
}

func ensure(ctx context.Context, c *mongo.Collection, models []mongo.IndexModel) error {
	for _, m := range models {
		if _, err := c.Indexes().CreateOne(ctx, m); err != nil {
			// An index with the same keys under another name already serves
			// the purpose.
			if isOptionsConflict(err) {
				continue
			}
			return err
		}
	}
	return nil
}

func isOptionsConflict(err error) bool {
	var ce mongo.CommandError
	if errors.As(err, &ce) && (ce.Code == 85 || ce.Code == 86) {
		return true
	}
	return strings.Contains(err.Error(), "IndexOptionsConflict") ||
		strings.Contains(err.Error(), "IndexKeySpecsConflict")
}
