package testutil

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/crlx1q/antimat/internal/models"
	"github.com/crlx1q/antimat/internal/repository"
)

// Fixtures inserts documents directly through the repositories so tests can
// set up state without going through the services.
type Fixtures struct {
	t         *testing.T
	Users     *repository.UserRepository
	Groups    *repository.GroupRepository
	Penalties *repository.PenaltyRepository
	Messages  *repository.MessageRepository

	seq int
}

func NewFixtures(t *testing.T, db *mongo.Database) *Fixtures {
	return &Fixtures{
		t:         t,
		Users:     repository.NewUserRepository(db),
		Groups:    repository.NewGroupRepository(db),
		Penalties: repository.NewPenaltyRepository(db),
		Messages:  repository.NewMessageRepository(db),
	}
}

func (f *Fixtures) CreateUser(ctx context.Context, name string) models.User {
	f.t.Helper()
	f.seq++
	now := time.Now().UTC()
	user, err := f.Users.Create(ctx, models.User{
		Email:         fmt.Sprintf("%s.%d@example.com", strings.ToLower(strings.ReplaceAll(name, " ", ".")), f.seq),
		PasswordHash:  "unused",
		Name:          name,
		PenaltyAmount: models.DefaultPenaltyAmount,
		Settings:      models.DefaultUserSettings(),
		CreatedAt:     now,
		LastActiveAt:  now,
	})
	if err != nil {
		f.t.Fatalf("create user %q: %v", name, err)
	}
	return user
}

func (f *Fixtures) CreatePremiumUser(ctx context.Context, name string) models.User {
	f.t.Helper()
	user := f.CreateUser(ctx, name)
	expires := time.Now().UTC().Add(30 * 24 * time.Hour)
	user, err := f.Users.SetPremium(ctx, user.ID, &expires)
	if err != nil {
		f.t.Fatalf("set premium: %v", err)
	}
	return user
}

// CreateGroup makes owner the owner and adds members with RoleMember. User
// documents are updated to reference the group.
func (f *Fixtures) CreateGroup(ctx context.Context, name string, owner models.User, members ...models.User) models.Group {
	f.t.Helper()
	f.seq++
	now := time.Now().UTC()
	group := models.Group{
		Name:       name,
		InviteCode: fmt.Sprintf("T%04d", f.seq%10000),
		Owner:      owner.ID,
		Members:    []models.GroupMember{{User: owner.ID, Role: models.RoleOwner, JoinedAt: now}},
		Settings:   models.DefaultGroupSettings(),
		CreatedAt:  now,
	}
	for _, m := range members {
		group.Members = append(group.Members, models.GroupMember{User: m.ID, Role: models.RoleMember, JoinedAt: now})
	}
	group, err := f.Groups.Create(ctx, group)
	if err != nil {
		f.t.Fatalf("create group %q: %v", name, err)
	}
	for _, id := range group.MemberIDs() {
		if err := f.Users.AddGroup(ctx, id, group.ID, models.PremiumGroupLimit); err != nil {
			f.t.Fatalf("link user to group: %v", err)
		}
	}
	return group
}

// CreatePenalty inserts a penalty and keeps totalDebt consistent with it.
func (f *Fixtures) CreatePenalty(ctx context.Context, user models.User, group *primitive.ObjectID, word string, amount int64, detectedAt time.Time) models.Penalty {
	f.t.Helper()
	p, err := f.Penalties.Create(ctx, models.Penalty{
		User:       user.ID,
		Group:      group,
		Word:       word,
		Amount:     amount,
		DetectedAt: detectedAt,
	})
	if err != nil {
		f.t.Fatalf("create penalty: %v", err)
	}
	if err := f.Users.IncDebt(ctx, user.ID, amount); err != nil {
		f.t.Fatalf("inc debt: %v", err)
	}
	return p
}

func (f *Fixtures) Reload(ctx context.Context, id primitive.ObjectID) models.User {
	f.t.Helper()
	user, err := f.Users.GetByID(ctx, id)
	if err != nil {
		f.t.Fatalf("reload user: %v", err)
	}
	return user
}
