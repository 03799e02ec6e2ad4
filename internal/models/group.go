package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type MemberRole string

const (
	RoleOwner  MemberRole = "owner"
	RoleAdmin  MemberRole = "admin"
	RoleMember MemberRole = "member"
)

type GroupMember struct {
	User     primitive.ObjectID `bson:"user"`
	Role     MemberRole         `bson:"role"`
	JoinedAt time.Time          `bson:"joinedAt"`
}

type GroupSettings struct {
	CanMembersAddWords    bool `bson:"canMembersAddWords" json:"canMembersAddWords"`
	CanMembersSeeAllStats bool `bson:"canMembersSeeAllStats" json:"canMembersSeeAllStats"`
	CanMembersForgiveDebt bool `bson:"canMembersForgiveDebt" json:"canMembersForgiveDebt"`
}

func DefaultGroupSettings() GroupSettings {
	return GroupSettings{
		CanMembersAddWords:    false,
		CanMembersSeeAllStats: true,
		CanMembersForgiveDebt: false,
	}
}

// Group is a set of users sharing a chat and a leaderboard. The owner is
// always present in Members with RoleOwner.
type Group struct {
	ID          primitive.ObjectID   `bson:"_id"`
	Name        string               `bson:"name"`
	Description string               `bson:"description"`
	InviteCode  string               `bson:"inviteCode"`
	Owner       primitive.ObjectID   `bson:"owner"`
	Admins      []primitive.ObjectID `bson:"admins"`
	Members     []GroupMember        `bson:"members"`
	Settings    GroupSettings        `bson:"settings"`
	CreatedAt   time.Time            `bson:"createdAt"`
}

func (g Group) IsMember(userID primitive.ObjectID) bool {
	for _, m := range g.Members {
		if m.User == userID {
			return true
		}
	}
	return false
}

func (g Group) IsOwner(userID primitive.ObjectID) bool {
	return g.Owner == userID
}

// IsAdmin is true for the owner and for anyone listed in Admins.
func (g Group) IsAdmin(userID primitive.ObjectID) bool {
	if g.IsOwner(userID) {
		return true
	}
	for _, id := range g.Admins {
		if id == userID {
			return true
		}
	}
	return false
}

func (g Group) MemberIDs() []primitive.ObjectID {
	ids := make([]primitive.ObjectID, 0, len(g.Members))
	for _, m := range g.Members {
		ids = append(ids, m.User)
	}
	return ids
}

// OtherMemberIDs lists every member except the given user.
func (g Group) OtherMemberIDs(except primitive.ObjectID) []primitive.ObjectID {
	ids := make([]primitive.ObjectID, 0, len(g.Members))
	for _, m := range g.Members {
		if m.User != except {
			ids = append(ids, m.User)
		}
	}
	return ids
}
