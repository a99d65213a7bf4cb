package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence.
type UserModel struct {
	ID           string `gorm:"primaryKey"`
	Email        string `gorm:"uniqueIndex;not null"`
	PasswordHash string `gorm:"not null"`
	FullName     string
	IsActive     bool      `gorm:"not null;default:true"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time
}

type BookModel struct {
	ID            string `gorm:"primaryKey"`
	Title         string `gorm:"not null"`
	Author        string
	Description   string `gorm:"type:text"`
	StorageKey    string `gorm:"not null"`
	Summary       *string `gorm:"type:text"`
	AverageRating *float64
	RatingCount   int            `gorm:"not null;default:0"`
	Metadata      datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt     time.Time      `gorm:"not null"`
	UpdatedAt     time.Time      `gorm:"not null"`
}

type BorrowModel struct {
	ID         string    `gorm:"primaryKey"`
	UserID     string    `gorm:"not null;index"`
	BookID     string    `gorm:"not null;index"`
	BorrowedAt time.Time `gorm:"not null"`
	ReturnedAt *time.Time
}

type ReviewModel struct {
	ID             string `gorm:"primaryKey"`
	UserID         string `gorm:"not null;index"`
	BookID         string `gorm:"not null;index"`
	Rating         int    `gorm:"not null"`
	Comment        string `gorm:"type:text"`
	SentimentScore *float64
	SentimentLabel string
	CreatedAt      time.Time `gorm:"not null;index"`
}

type PreferenceModel struct {
	ID     string `gorm:"primaryKey"`
	UserID string `gorm:"not null;index:idx_pref_user_key,unique"`
	Key    string `gorm:"column:pref_key;not null;index:idx_pref_user_key,unique"`
	Value  string `gorm:"not null"`
}
