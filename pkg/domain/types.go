package domain

import (
	"fmt"
	"time"
)

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	FullName     string    `json:"full_name,omitempty"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type Book struct {
	ID            string            `json:"id"`
	Title         string            `json:"title"`
	Author        string            `json:"author,omitempty"`
	Description   string            `json:"description,omitempty"`
	StorageKey    string            `json:"-"`
	Summary       *string           `json:"summary"`
	AverageRating *float64          `json:"average_rating"`
	RatingCount   int               `json:"rating_count"`
	Consensus     string            `json:"consensus,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// ConsensusLine renders the stored aggregate. The aggregate lives in the
// structured fields and is replaced on each recompute, never appended to
// the description.
func (b Book) ConsensusLine() string {
	if b.AverageRating == nil || b.RatingCount == 0 {
		return ""
	}
	return fmt.Sprintf("Average rating: %.2f (%d reviews)", *b.AverageRating, b.RatingCount)
}

type Borrow struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	BookID     string     `json:"book_id"`
	BorrowedAt time.Time  `json:"borrowed_at"`
	ReturnedAt *time.Time `json:"returned_at"`
}

// Open reports whether the book has not been returned yet.
func (b Borrow) Open() bool {
	return b.ReturnedAt == nil
}

type Review struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	BookID         string    `json:"book_id"`
	Rating         int       `json:"rating"`
	Comment        string    `json:"comment,omitempty"`
	SentimentScore *float64  `json:"sentiment_score"`
	SentimentLabel string    `json:"sentiment_label,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

type Preference struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}
