package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type PenaltyMetadata struct {
	Context    string   `bson:"context,omitempty"`
	Confidence *float64 `bson:"confidence,omitempty"`
}

// Penalty is one recorded violation. Amount is a snapshot of the user's fine
// at detection time; only the forgiveness fields ever change.
type Penalty struct {
	ID           primitive.ObjectID  `bson:"_id"`
	User         primitive.ObjectID  `bson:"user"`
	Group        *primitive.ObjectID `bson:"group"`
	Word         string              `bson:"word"`
	Amount       int64               `bson:"amount"`
	IsForgiven   bool                `bson:"isForgiven"`
	ForgivenBy   *primitive.ObjectID `bson:"forgivenBy"`
	ForgivenAt   *time.Time          `bson:"forgivenAt"`
	AIPunishment string              `bson:"aiPunishment"`
	DetectedAt   time.Time           `bson:"detectedAt"`
	Metadata     PenaltyMetadata     `bson:"metadata"`
}

type PenaltyStats struct {
	TotalCount     int64 `bson:"totalCount" json:"totalCount"`
	TotalAmount    int64 `bson:"totalAmount" json:"totalAmount"`
	ForgivenCount  int64 `bson:"forgivenCount" json:"forgivenCount"`
	ForgivenAmount int64 `bson:"forgivenAmount" json:"forgivenAmount"`
}

type WordCount struct {
	Word        string `bson:"_id" json:"word"`
	Count       int64  `bson:"count" json:"count"`
	TotalAmount int64  `bson:"totalAmount" json:"totalAmount"`
}

type DailyStat struct {
	Day    string `bson:"_id" json:"date"`
	Count  int64  `bson:"count" json:"count"`
	Amount int64  `bson:"amount" json:"amount"`
}

// MemberStat is one row of a group leaderboard.
type MemberStat struct {
	UserID           primitive.ObjectID `bson:"userId" json:"userId"`
	Name             string             `bson:"name" json:"name"`
	TotalDebt        int64              `bson:"totalDebt" json:"totalDebt"`
	PremiumExpiresAt *time.Time         `bson:"premiumExpiresAt" json:"-"`
	IsPremium        bool               `bson:"-" json:"isPremium"`
	TotalCount       int64              `bson:"totalCount" json:"totalCount"`
	TotalAmount      int64              `bson:"totalAmount" json:"totalAmount"`
	TopWords         []WordCount        `bson:"topWords" json:"topWords"`
}

type GroupTotals struct {
	TotalCount  int64 `bson:"totalCount" json:"totalCount"`
	TotalAmount int64 `bson:"totalAmount" json:"totalAmount"`
}
