package store

import (
	"time"

	"luminalib/pkg/domain"
)

// Store defines persistence operations for users, books, borrows and reviews.
type Store interface {
	// users
	CreateUser(domain.User) error
	HasUserEmail(email string) (bool, error)
	GetUserByEmail(email string) (domain.User, bool, error)
	GetUserByID(id string) (domain.User, bool, error)
	UpdateUser(domain.User) error

	// preferences
	ListPreferences(userID string) ([]domain.Preference, error)
	ReplacePreferences(userID string, prefs []domain.Preference) error

	// books
	CreateBook(domain.Book) error
	GetBook(id string) (domain.Book, bool, error)
	ListBooks(offset, limit int) ([]domain.Book, error)
	UpdateBook(domain.Book) error
	DeleteBook(id string) error
	// SetBookSummary reports false when the book no longer exists.
	SetBookSummary(id, summary string) (bool, error)
	// SetBookConsensus replaces the stored aggregate; avg is nil to clear it.
	SetBookConsensus(id string, avg *float64, count int) (bool, error)

	// borrows
	CreateBorrow(domain.Borrow) error
	GetOpenBorrow(userID, bookID string) (domain.Borrow, bool, error)
	CloseBorrow(id string, returnedAt time.Time) error
	HasBorrow(userID, bookID string) (bool, error)

	// reviews
	CreateReview(domain.Review) error
	GetReview(id string) (domain.Review, bool, error)
	ListReviewsByBook(bookID string) ([]domain.Review, error)
	// SetReviewSentiment reports false when the review no longer exists.
	SetReviewSentiment(id string, score float64, label string) (bool, error)
	// ReviewStats returns the total review count for a book and the average
	// sentiment over reviews with a non-null score (nil when there are none).
	ReviewStats(bookID string) (int, *float64, error)
}

// SessionStore issues and validates session tokens.
type SessionStore interface {
	NewSession(userID string) (string, error)
	GetUserIDByToken(token string) (string, bool, error)
	DeleteSession(token string) error
}
