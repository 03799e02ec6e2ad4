package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	FreeWordLimit     = 10
	PremiumWordLimit  = 30
	FreeGroupLimit    = 2
	PremiumGroupLimit = 30

	DefaultPenaltyAmount = 100
	MinPenaltyAmount     = 1
	MaxPenaltyAmount     = 100000

	// PenaltyAmountCooldown is how long a user must wait between two
	// changes of their fine.
	PenaltyAmountCooldown = 7 * 24 * time.Hour
)

type Theme string

const (
	ThemeDark  Theme = "dark"
	ThemeLight Theme = "light"
)

type BannedWord struct {
	Word    string    `bson:"word" json:"word"`
	AddedAt time.Time `bson:"addedAt" json:"addedAt"`
}

type UserSettings struct {
	Theme                Theme `bson:"theme" json:"theme"`
	SoundEnabled         bool  `bson:"soundEnabled" json:"soundEnabled"`
	NotificationsEnabled bool  `bson:"notificationsEnabled" json:"notificationsEnabled"`
}

func DefaultUserSettings() UserSettings {
	return UserSettings{
		Theme:                ThemeDark,
		SoundEnabled:         true,
		NotificationsEnabled: true,
	}
}

type User struct {
	ID                     primitive.ObjectID   `bson:"_id"`
	Email                  string               `bson:"email"`
	PasswordHash           string               `bson:"password"`
	Name                   string               `bson:"name"`
	Avatar                 *string              `bson:"avatar"`
	PenaltyAmount          int64                `bson:"penaltyAmount"`
	PenaltyAmountUpdatedAt *time.Time           `bson:"penaltyAmountUpdatedAt"`
	IsPremium              bool                 `bson:"isPremium"`
	PremiumExpiresAt       *time.Time           `bson:"premiumExpiresAt"`
	ContinuousRecording    bool                 `bson:"continuousRecording"`
	BannedWords            []BannedWord         `bson:"bannedWords"`
	TotalDebt              int64                `bson:"totalDebt"`
	Groups                 []primitive.ObjectID `bson:"groups"`
	Settings               UserSettings         `bson:"settings"`
	FCMToken               *string              `bson:"fcmToken"`
	LastSeen               *time.Time           `bson:"lastSeen"`
	IsRecording            bool                 `bson:"isRecording"`
	CreatedAt              time.Time            `bson:"createdAt"`
	LastActiveAt           time.Time            `bson:"lastActiveAt"`
}

// Premium reports whether the subscription is active at now. The stored
// isPremium flag is ignored: it is only kept for older clients.
func (u User) Premium(now time.Time) bool {
	return u.PremiumExpiresAt != nil && u.PremiumExpiresAt.After(now)
}

func (u User) WordLimit(now time.Time) int {
	if u.Premium(now) {
		return PremiumWordLimit
	}
	return FreeWordLimit
}

func (u User) GroupLimit(now time.Time) int {
	if u.Premium(now) {
		return PremiumGroupLimit
	}
	return FreeGroupLimit
}

// NextPenaltyChange returns the earliest time the fine may change again.
// A zero time means it can change right away.
func (u User) NextPenaltyChange() time.Time {
	if u.PenaltyAmountUpdatedAt == nil {
		return time.Time{}
	}
	return u.PenaltyAmountUpdatedAt.Add(PenaltyAmountCooldown)
}

func (u User) CanChangePenaltyAmount(now time.Time) bool {
	return !now.Before(u.NextPenaltyChange())
}

func (u User) InGroup(groupID primitive.ObjectID) bool {
	for _, id := range u.Groups {
		if id == groupID {
			return true
		}
	}
	return false
}

func (u User) PushToken() string {
	if u.FCMToken == nil {
		return ""
	}
	return *u.FCMToken
}

// ClampPenaltyAmount keeps a requested fine within the allowed range.
func ClampPenaltyAmount(amount int64) int64 {
	if amount < MinPenaltyAmount {
		return MinPenaltyAmount
	}
	if amount > MaxPenaltyAmount {
		return MaxPenaltyAmount
	}
	return amount
}
