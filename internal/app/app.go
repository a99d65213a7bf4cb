package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"luminalib/internal/enrich"
	"luminalib/internal/recclient"
	"luminalib/pkg/auth"
	"luminalib/pkg/domain"
	"luminalib/pkg/storage"
	"luminalib/pkg/store"
	"luminalib/pkg/textextract"
)

// BooksPerPage is the fixed page size for book listings.
const BooksPerPage = 10

// Config holds the components the core application wires together.
type Config struct {
	Store           store.Store
	Sessions        store.SessionStore
	Storage         storage.Backend
	Enricher        *enrich.Runner
	Recommendations *recclient.Client
}

// App is the core application service: accounts, the book catalog,
// borrowing, reviews and the enrichment hand-off.
type App struct {
	store    store.Store
	sessions store.SessionStore
	storage  storage.Backend
	enricher *enrich.Runner
	recs     *recclient.Client
}

// New constructs the application. Recommendations is optional; the
// other components are required.
func New(cfg Config) (*App, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store required")
	}
	if cfg.Sessions == nil {
		return nil, fmt.Errorf("session store required")
	}
	if cfg.Storage == nil {
		return nil, fmt.Errorf("storage backend required")
	}
	if cfg.Enricher == nil {
		return nil, fmt.Errorf("enricher required")
	}
	return &App{
		store:    cfg.Store,
		sessions: cfg.Sessions,
		storage:  cfg.Storage,
		enricher: cfg.Enricher,
		recs:     cfg.Recommendations,
	}, nil
}

// SignUp registers a new account.
func (a *App) SignUp(email, password, fullName string) (domain.User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return domain.User{}, ErrEmailAndPasswordRequired
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return domain.User{}, ErrInvalidEmail
	}
	if err := auth.ValidatePassword(password); err != nil {
		return domain.User{}, err
	}
	exists, err := a.store.HasUserEmail(email)
	if err != nil {
		return domain.User{}, fmt.Errorf("check email: %w", err)
	}
	if exists {
		return domain.User{}, ErrEmailAlreadyExists
	}
	passwordHash, err := auth.HashPassword(password)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}
	now := time.Now().UTC()
	user := domain.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: passwordHash,
		FullName:     strings.TrimSpace(fullName),
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := a.store.CreateUser(user); err != nil {
		return domain.User{}, fmt.Errorf("save user: %w", err)
	}
	return user, nil
}

// Login validates credentials and issues a session token. Unknown
// emails, wrong passwords and deactivated accounts all produce the
// same error.
func (a *App) Login(email, password string) (domain.User, string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	user, ok, err := a.store.GetUserByEmail(email)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("fetch user: %w", err)
	}
	if !ok {
		return domain.User{}, "", ErrInvalidCredentials
	}
	if !user.IsActive {
		return domain.User{}, "", ErrInvalidCredentials
	}
	if !auth.CheckPassword(password, user.PasswordHash) {
		return domain.User{}, "", ErrInvalidCredentials
	}
	token, err := a.sessions.NewSession(user.ID)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("issue token: %w", err)
	}
	return user, token, nil
}

// Logout revokes the session token.
func (a *App) Logout(token string) error {
	return a.sessions.DeleteSession(token)
}

// CurrentUser resolves a session token to its user. A token that fails
// verification yields ErrInvalidToken; a valid token whose user no
// longer exists yields ErrNotFound.
func (a *App) CurrentUser(token string) (domain.User, error) {
	uid, ok, err := a.sessions.GetUserIDByToken(token)
	if err != nil || !ok {
		return domain.User{}, ErrInvalidToken
	}
	user, found, err := a.store.GetUserByID(uid)
	if err != nil {
		return domain.User{}, fmt.Errorf("fetch user: %w", err)
	}
	if !found {
		return domain.User{}, ErrNotFound
	}
	if !user.IsActive {
		return domain.User{}, ErrInvalidToken
	}
	return user, nil
}

// UpdateProfile changes the user's full name, email and password.
// Empty fields are left untouched.
func (a *App) UpdateProfile(user domain.User, fullName, email, password string) (domain.User, error) {
	fullName = strings.TrimSpace(fullName)
	email = strings.TrimSpace(strings.ToLower(email))
	if email != "" && email != user.Email {
		if _, err := mail.ParseAddress(email); err != nil {
			return domain.User{}, ErrInvalidEmail
		}
		existing, ok, err := a.store.GetUserByEmail(email)
		if err != nil {
			return domain.User{}, fmt.Errorf("check email: %w", err)
		}
		if ok && existing.ID != user.ID {
			return domain.User{}, ErrEmailAlreadyExists
		}
		user.Email = email
	}
	if fullName != "" {
		user.FullName = fullName
	}
	if password != "" {
		if err := auth.ValidatePassword(password); err != nil {
			return domain.User{}, err
		}
		passwordHash, err := auth.HashPassword(password)
		if err != nil {
			return domain.User{}, fmt.Errorf("hash password: %w", err)
		}
		user.PasswordHash = passwordHash
	}
	user.UpdatedAt = time.Now().UTC()
	if err := a.store.UpdateUser(user); err != nil {
		return domain.User{}, fmt.Errorf("update user: %w", err)
	}
	return user, nil
}

// Preferences lists the user's reading preferences.
func (a *App) Preferences(userID string) ([]domain.Preference, error) {
	return a.store.ListPreferences(userID)
}

// ReplacePreferences swaps the user's preference set wholesale.
func (a *App) ReplacePreferences(userID string, prefs []domain.Preference) ([]domain.Preference, error) {
	cleaned := make([]domain.Preference, 0, len(prefs))
	for _, pref := range prefs {
		key := strings.TrimSpace(pref.Key)
		if key == "" {
			continue
		}
		cleaned = append(cleaned, domain.Preference{Key: key, Value: strings.TrimSpace(pref.Value)})
	}
	if err := a.store.ReplacePreferences(userID, cleaned); err != nil {
		return nil, fmt.Errorf("replace preferences: %w", err)
	}
	return cleaned, nil
}

// UploadBook stores the file, creates the catalog entry and schedules
// summary generation. The upload succeeds even when text extraction or
// scheduling fails; those steps are logged and skipped.
func (a *App) UploadBook(ctx context.Context, title, author, description, filename, contentType string, file io.Reader) (domain.Book, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return domain.Book{}, ErrTitleRequired
	}
	if file == nil {
		return domain.Book{}, ErrFileRequired
	}
	data, err := io.ReadAll(file)
	if err != nil {
		return domain.Book{}, fmt.Errorf("read upload: %w", err)
	}
	if len(data) == 0 {
		return domain.Book{}, ErrFileRequired
	}

	key, err := a.storage.Save(ctx, bytes.NewReader(data), int64(len(data)), filename, contentType)
	if err != nil {
		return domain.Book{}, fmt.Errorf("store file: %w", err)
	}

	now := time.Now().UTC()
	book := domain.Book{
		ID:          uuid.NewString(),
		Title:       title,
		Author:      strings.TrimSpace(author),
		Description: strings.TrimSpace(description),
		StorageKey:  key,
		Metadata: map[string]string{
			"filename":     filename,
			"content_type": contentType,
			"size":         strconv.Itoa(len(data)),
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := a.store.CreateBook(book); err != nil {
		if delErr := a.storage.Delete(ctx, key); delErr != nil {
			slog.Error("cleanup stored file", "key", key, "error", delErr)
		}
		return domain.Book{}, fmt.Errorf("save book: %w", err)
	}

	text, err := textextract.Extract(filename, data)
	if err != nil {
		slog.Warn("text extraction failed, skipping summary", "book_id", book.ID, "error", err)
		return book, nil
	}
	if err := a.enricher.EnqueueBookSummary(ctx, book.ID, text); err != nil {
		slog.Error("enqueue summary", "book_id", book.ID, "error", err)
	}
	return book, nil
}

// ListBooks returns one page of the catalog, newest first. Pages are
// 1-based.
func (a *App) ListBooks(page int) ([]domain.Book, error) {
	if page < 1 {
		page = 1
	}
	books, err := a.store.ListBooks((page-1)*BooksPerPage, BooksPerPage)
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	for i := range books {
		books[i].Consensus = books[i].ConsensusLine()
	}
	return books, nil
}

// GetBook fetches one catalog entry.
func (a *App) GetBook(id string) (domain.Book, error) {
	book, ok, err := a.store.GetBook(id)
	if err != nil {
		return domain.Book{}, fmt.Errorf("fetch book: %w", err)
	}
	if !ok {
		return domain.Book{}, ErrNotFound
	}
	book.Consensus = book.ConsensusLine()
	return book, nil
}

// UpdateBook changes catalog fields. Nil fields are left untouched.
func (a *App) UpdateBook(id string, title, author, description *string) (domain.Book, error) {
	book, ok, err := a.store.GetBook(id)
	if err != nil {
		return domain.Book{}, fmt.Errorf("fetch book: %w", err)
	}
	if !ok {
		return domain.Book{}, ErrNotFound
	}
	if title != nil {
		if strings.TrimSpace(*title) == "" {
			return domain.Book{}, ErrTitleRequired
		}
		book.Title = strings.TrimSpace(*title)
	}
	if author != nil {
		book.Author = strings.TrimSpace(*author)
	}
	if description != nil {
		book.Description = strings.TrimSpace(*description)
	}
	book.UpdatedAt = time.Now().UTC()
	if err := a.store.UpdateBook(book); err != nil {
		return domain.Book{}, fmt.Errorf("update book: %w", err)
	}
	book.Consensus = book.ConsensusLine()
	return book, nil
}

// DeleteBook removes the catalog entry along with its borrows, reviews
// and stored file.
func (a *App) DeleteBook(ctx context.Context, id string) error {
	book, ok, err := a.store.GetBook(id)
	if err != nil {
		return fmt.Errorf("fetch book: %w", err)
	}
	if !ok {
		return ErrNotFound
	}
	if err := a.store.DeleteBook(id); err != nil {
		return fmt.Errorf("delete book: %w", err)
	}
	if book.StorageKey != "" {
		if err := a.storage.Delete(ctx, book.StorageKey); err != nil {
			slog.Error("delete stored file", "key", book.StorageKey, "error", err)
		}
	}
	return nil
}

// DownloadBook opens the stored file for streaming to the client.
func (a *App) DownloadBook(ctx context.Context, id string) (io.ReadCloser, domain.Book, error) {
	book, ok, err := a.store.GetBook(id)
	if err != nil {
		return nil, domain.Book{}, fmt.Errorf("fetch book: %w", err)
	}
	if !ok || book.StorageKey == "" {
		return nil, domain.Book{}, ErrNotFound
	}
	rc, err := a.storage.Open(ctx, book.StorageKey)
	if err != nil {
		return nil, domain.Book{}, fmt.Errorf("open stored file: %w", err)
	}
	return rc, book, nil
}

// BorrowBook opens a borrow. A user cannot hold two open borrows of
// the same book.
func (a *App) BorrowBook(userID, bookID string) (domain.Borrow, error) {
	if _, ok, err := a.store.GetBook(bookID); err != nil {
		return domain.Borrow{}, fmt.Errorf("fetch book: %w", err)
	} else if !ok {
		return domain.Borrow{}, ErrNotFound
	}
	if _, open, err := a.store.GetOpenBorrow(userID, bookID); err != nil {
		return domain.Borrow{}, fmt.Errorf("check open borrow: %w", err)
	} else if open {
		return domain.Borrow{}, ErrBorrowAlreadyOpen
	}
	borrow := domain.Borrow{
		ID:         uuid.NewString(),
		UserID:     userID,
		BookID:     bookID,
		BorrowedAt: time.Now().UTC(),
	}
	if err := a.store.CreateBorrow(borrow); err != nil {
		return domain.Borrow{}, fmt.Errorf("save borrow: %w", err)
	}
	return borrow, nil
}

// ReturnBook closes the user's open borrow of the book.
func (a *App) ReturnBook(userID, bookID string) (domain.Borrow, error) {
	borrow, open, err := a.store.GetOpenBorrow(userID, bookID)
	if err != nil {
		return domain.Borrow{}, fmt.Errorf("check open borrow: %w", err)
	}
	if !open {
		return domain.Borrow{}, ErrNoOpenBorrow
	}
	returnedAt := time.Now().UTC()
	if err := a.store.CloseBorrow(borrow.ID, returnedAt); err != nil {
		return domain.Borrow{}, fmt.Errorf("close borrow: %w", err)
	}
	borrow.ReturnedAt = &returnedAt
	return borrow, nil
}

// CreateReview records a rating. Only users who borrowed the book at
// some point may review it. Sentiment analysis is scheduled for
// non-empty comments; the consensus recompute runs for every review.
func (a *App) CreateReview(ctx context.Context, userID, bookID string, rating int, comment string) (domain.Review, error) {
	if _, ok, err := a.store.GetBook(bookID); err != nil {
		return domain.Review{}, fmt.Errorf("fetch book: %w", err)
	} else if !ok {
		return domain.Review{}, ErrNotFound
	}
	if rating < 1 || rating > 5 {
		return domain.Review{}, ErrInvalidRating
	}
	borrowed, err := a.store.HasBorrow(userID, bookID)
	if err != nil {
		return domain.Review{}, fmt.Errorf("check borrow history: %w", err)
	}
	if !borrowed {
		return domain.Review{}, ErrReviewWithoutBorrow
	}
	review := domain.Review{
		ID:        uuid.NewString(),
		UserID:    userID,
		BookID:    bookID,
		Rating:    rating,
		Comment:   strings.TrimSpace(comment),
		CreatedAt: time.Now().UTC(),
	}
	if err := a.store.CreateReview(review); err != nil {
		return domain.Review{}, fmt.Errorf("save review: %w", err)
	}
	if review.Comment != "" {
		if err := a.enricher.EnqueueReviewSentiment(ctx, review.ID, review.Comment); err != nil {
			slog.Error("enqueue sentiment", "review_id", review.ID, "error", err)
		}
	}
	if err := a.enricher.EnqueueBookConsensus(ctx, bookID); err != nil {
		slog.Error("enqueue consensus", "book_id", bookID, "error", err)
	}
	return review, nil
}

// ListReviews returns all reviews of a book.
func (a *App) ListReviews(bookID string) ([]domain.Review, error) {
	if _, ok, err := a.store.GetBook(bookID); err != nil {
		return nil, fmt.Errorf("fetch book: %w", err)
	} else if !ok {
		return nil, ErrNotFound
	}
	return a.store.ListReviewsByBook(bookID)
}

// BookAnalysis summarises review activity for a book: total review
// count and the average sentiment score over analyzed comments. The
// average is null until at least one sentiment score exists.
type BookAnalysis struct {
	BookID           string   `json:"book_id"`
	ReviewCount      int      `json:"review_count"`
	AverageSentiment *float64 `json:"average_sentiment"`
}

// Analysis computes the review statistics for a book.
func (a *App) Analysis(bookID string) (BookAnalysis, error) {
	if _, ok, err := a.store.GetBook(bookID); err != nil {
		return BookAnalysis{}, fmt.Errorf("fetch book: %w", err)
	} else if !ok {
		return BookAnalysis{}, ErrNotFound
	}
	count, avg, err := a.store.ReviewStats(bookID)
	if err != nil {
		return BookAnalysis{}, fmt.Errorf("review stats: %w", err)
	}
	return BookAnalysis{BookID: bookID, ReviewCount: count, AverageSentiment: avg}, nil
}

// Recommendations proxies the external recommendation service.
func (a *App) Recommendations(ctx context.Context, userID string) (json.RawMessage, error) {
	if a.recs == nil {
		return nil, ErrRecommendationsUnavailable
	}
	payload, err := a.recs.Recommendations(ctx, userID)
	if err != nil {
		slog.Error("recommendation service", "user_id", userID, "error", err)
		return nil, ErrRecommendationsUnavailable
	}
	return payload, nil
}
