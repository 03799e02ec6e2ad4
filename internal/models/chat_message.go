package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type MessageType string

const (
	MessageTypeMessage MessageType = "message"
	MessageTypePenalty MessageType = "penalty"
	MessageTypeSystem  MessageType = "system"
	MessageTypeJoin    MessageType = "join"
	MessageTypeLeave   MessageType = "leave"
)

type MessageMetadata struct {
	PenaltyID     *primitive.ObjectID `bson:"penaltyId,omitempty"`
	PenaltyAmount *int64              `bson:"penaltyAmount,omitempty"`
	Word          string              `bson:"word,omitempty"`
	TargetUser    *primitive.ObjectID `bson:"targetUser,omitempty"`
}

// ChatMessage is append-only. Seq is a per-group insertion sequence that
// totally orders messages even when CreatedAt collides.
type ChatMessage struct {
	ID        primitive.ObjectID  `bson:"_id"`
	Group     primitive.ObjectID  `bson:"group"`
	Sender    *primitive.ObjectID `bson:"sender"`
	Type      MessageType         `bson:"type"`
	Text      string              `bson:"text"`
	Metadata  *MessageMetadata    `bson:"metadata,omitempty"`
	Seq       int64               `bson:"seq"`
	CreatedAt time.Time           `bson:"createdAt"`
}
