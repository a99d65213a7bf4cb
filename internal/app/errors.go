package app

import "errors"

var (
	// ErrInvalidCredentials is returned for both unknown emails and wrong
	// passwords. The single message keeps account enumeration impossible.
	ErrInvalidCredentials = errors.New("Incorrect email address or password")

	ErrEmailAndPasswordRequired = errors.New("email and password required")
	ErrInvalidEmail             = errors.New("invalid email address")
	ErrEmailAlreadyExists       = errors.New("email already exists")

	// ErrInvalidToken is returned when a session token fails verification.
	ErrInvalidToken = errors.New("invalid or expired token")

	// ErrNotFound is returned when a referenced entity does not exist,
	// including a valid token whose user has since been deleted.
	ErrNotFound = errors.New("not found")

	ErrTitleRequired = errors.New("title required")
	ErrFileRequired  = errors.New("file required")

	// ErrBorrowAlreadyOpen is returned when the user already holds an
	// unreturned borrow of the book.
	ErrBorrowAlreadyOpen = errors.New("book already borrowed")

	// ErrNoOpenBorrow is returned when returning a book without an open borrow.
	ErrNoOpenBorrow = errors.New("no open borrow for this book")

	// ErrReviewWithoutBorrow is returned when reviewing a never-borrowed book.
	ErrReviewWithoutBorrow = errors.New("you must borrow a book before reviewing it")

	ErrInvalidRating = errors.New("rating must be between 1 and 5")

	// ErrRecommendationsUnavailable is returned when the recommendation
	// service is unreachable or not configured.
	ErrRecommendationsUnavailable = errors.New("recommendation service unavailable")
)
