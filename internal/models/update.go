package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	APKContentType     = "application/vnd.android.package-archive"
	CurrentReleaseName = "app-release.apk"
)

// Update describes one uploaded APK release.
type Update struct {
	ID          primitive.ObjectID `bson:"_id" json:"id"`
	Version     string             `bson:"version" json:"version"`
	Title       string             `bson:"title" json:"title"`
	Description string             `bson:"description" json:"description"`
	FilePath    string             `bson:"filePath" json:"filePath"`
	FileName    string             `bson:"fileName" json:"fileName"`
	FileSize    int64              `bson:"fileSize" json:"fileSize"`
	CreatedAt   time.Time          `bson:"createdAt" json:"createdAt"`
}
