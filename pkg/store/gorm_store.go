package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"luminalib/pkg/domain"
)

// GormStore implements Store using GORM.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens a Postgres database and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	if dsn == "" {
		return nil, errors.New("database dsn required")
	}
	return Open(postgres.Open(dsn))
}

// Open builds a store on any GORM dialector. Tests use the sqlite driver.
func Open(dialector gorm.Dialector) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.AutoMigrate(&UserModel{}, &BookModel{}, &BorrowModel{}, &ReviewModel{}, &PreferenceModel{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) CreateUser(u domain.User) error {
	model := userToModel(u)
	if err := s.db.Create(&model).Error; err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *GormStore) HasUserEmail(email string) (bool, error) {
	var count int64
	if err := s.db.Model(&UserModel{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return false, fmt.Errorf("count users by email: %w", err)
	}
	return count > 0, nil
}

func (s *GormStore) GetUserByEmail(email string) (domain.User, bool, error) {
	var model UserModel
	err := s.db.Where("email = ?", email).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.User{}, false, nil
	}
	if err != nil {
		return domain.User{}, false, fmt.Errorf("get user by email: %w", err)
	}
	return userFromModel(model), true, nil
}

func (s *GormStore) GetUserByID(id string) (domain.User, bool, error) {
	var model UserModel
	err := s.db.First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.User{}, false, nil
	}
	if err != nil {
		return domain.User{}, false, fmt.Errorf("get user: %w", err)
	}
	return userFromModel(model), true, nil
}

func (s *GormStore) UpdateUser(u domain.User) error {
	model := userToModel(u)
	if err := s.db.Save(&model).Error; err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	return nil
}

func (s *GormStore) ListPreferences(userID string) ([]domain.Preference, error) {
	var models []PreferenceModel
	if err := s.db.Where("user_id = ?", userID).Order("pref_key asc").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("list preferences: %w", err)
	}
	prefs := make([]domain.Preference, 0, len(models))
	for _, m := range models {
		prefs = append(prefs, domain.Preference{Key: m.Key, Value: m.Value})
	}
	return prefs, nil
}

func (s *GormStore) ReplacePreferences(userID string, prefs []domain.Preference) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", userID).Delete(&PreferenceModel{}).Error; err != nil {
			return fmt.Errorf("clear preferences: %w", err)
		}
		for _, p := range prefs {
			model := PreferenceModel{
				ID:     uuid.NewString(),
				UserID: userID,
				Key:    p.Key,
				Value:  p.Value,
			}
			if err := tx.Create(&model).Error; err != nil {
				return fmt.Errorf("save preference: %w", err)
			}
		}
		return nil
	})
}

func (s *GormStore) CreateBook(b domain.Book) error {
	model, err := bookToModel(b)
	if err != nil {
		return err
	}
	if err := s.db.Create(&model).Error; err != nil {
		return fmt.Errorf("create book: %w", err)
	}
	return nil
}

func (s *GormStore) GetBook(id string) (domain.Book, bool, error) {
	var model BookModel
	err := s.db.First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Book{}, false, nil
	}
	if err != nil {
		return domain.Book{}, false, fmt.Errorf("get book: %w", err)
	}
	return bookFromModel(model), true, nil
}

func (s *GormStore) ListBooks(offset, limit int) ([]domain.Book, error) {
	var models []BookModel
	if err := s.db.Order("created_at desc").Offset(offset).Limit(limit).Find(&models).Error; err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	books := make([]domain.Book, 0, len(models))
	for _, m := range models {
		books = append(books, bookFromModel(m))
	}
	return books, nil
}

func (s *GormStore) UpdateBook(b domain.Book) error {
	model, err := bookToModel(b)
	if err != nil {
		return err
	}
	if err := s.db.Save(&model).Error; err != nil {
		return fmt.Errorf("update book: %w", err)
	}
	return nil
}

func (s *GormStore) DeleteBook(id string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("book_id = ?", id).Delete(&BorrowModel{}).Error; err != nil {
			return fmt.Errorf("delete borrows: %w", err)
		}
		if err := tx.Where("book_id = ?", id).Delete(&ReviewModel{}).Error; err != nil {
			return fmt.Errorf("delete reviews: %w", err)
		}
		if err := tx.Delete(&BookModel{}, "id = ?", id).Error; err != nil {
			return fmt.Errorf("delete book: %w", err)
		}
		return nil
	})
}

func (s *GormStore) SetBookSummary(id, summary string) (bool, error) {
	res := s.db.Model(&BookModel{}).Where("id = ?", id).Updates(map[string]any{
		"summary":    summary,
		"updated_at": time.Now().UTC(),
	})
	if res.Error != nil {
		return false, fmt.Errorf("set book summary: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (s *GormStore) SetBookConsensus(id string, avg *float64, count int) (bool, error) {
	res := s.db.Model(&BookModel{}).Where("id = ?", id).Updates(map[string]any{
		"average_rating": avg,
		"rating_count":   count,
		"updated_at":     time.Now().UTC(),
	})
	if res.Error != nil {
		return false, fmt.Errorf("set book consensus: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (s *GormStore) CreateBorrow(b domain.Borrow) error {
	model := BorrowModel{
		ID:         b.ID,
		UserID:     b.UserID,
		BookID:     b.BookID,
		BorrowedAt: b.BorrowedAt,
		ReturnedAt: b.ReturnedAt,
	}
	if err := s.db.Create(&model).Error; err != nil {
		return fmt.Errorf("create borrow: %w", err)
	}
	return nil
}

func (s *GormStore) GetOpenBorrow(userID, bookID string) (domain.Borrow, bool, error) {
	var model BorrowModel
	err := s.db.Where("user_id = ? AND book_id = ? AND returned_at IS NULL", userID, bookID).
		Order("borrowed_at desc").First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Borrow{}, false, nil
	}
	if err != nil {
		return domain.Borrow{}, false, fmt.Errorf("get open borrow: %w", err)
	}
	return borrowFromModel(model), true, nil
}

func (s *GormStore) CloseBorrow(id string, returnedAt time.Time) error {
	res := s.db.Model(&BorrowModel{}).Where("id = ?", id).Update("returned_at", returnedAt)
	if res.Error != nil {
		return fmt.Errorf("close borrow: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return errors.New("borrow not found")
	}
	return nil
}

func (s *GormStore) HasBorrow(userID, bookID string) (bool, error) {
	var count int64
	if err := s.db.Model(&BorrowModel{}).Where("user_id = ? AND book_id = ?", userID, bookID).Count(&count).Error; err != nil {
		return false, fmt.Errorf("count borrows: %w", err)
	}
	return count > 0, nil
}

func (s *GormStore) CreateReview(r domain.Review) error {
	model := reviewToModel(r)
	if err := s.db.Create(&model).Error; err != nil {
		return fmt.Errorf("create review: %w", err)
	}
	return nil
}

func (s *GormStore) GetReview(id string) (domain.Review, bool, error) {
	var model ReviewModel
	err := s.db.First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Review{}, false, nil
	}
	if err != nil {
		return domain.Review{}, false, fmt.Errorf("get review: %w", err)
	}
	return reviewFromModel(model), true, nil
}

func (s *GormStore) ListReviewsByBook(bookID string) ([]domain.Review, error) {
	var models []ReviewModel
	if err := s.db.Where("book_id = ?", bookID).Order("created_at asc").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	reviews := make([]domain.Review, 0, len(models))
	for _, m := range models {
		reviews = append(reviews, reviewFromModel(m))
	}
	return reviews, nil
}

func (s *GormStore) SetReviewSentiment(id string, score float64, label string) (bool, error) {
	res := s.db.Model(&ReviewModel{}).Where("id = ?", id).Updates(map[string]any{
		"sentiment_score": score,
		"sentiment_label": label,
	})
	if res.Error != nil {
		return false, fmt.Errorf("set review sentiment: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (s *GormStore) ReviewStats(bookID string) (int, *float64, error) {
	var count int64
	if err := s.db.Model(&ReviewModel{}).Where("book_id = ?", bookID).Count(&count).Error; err != nil {
		return 0, nil, fmt.Errorf("count reviews: %w", err)
	}
	var avg *float64
	err := s.db.Model(&ReviewModel{}).
		Where("book_id = ? AND sentiment_score IS NOT NULL", bookID).
		Select("AVG(sentiment_score)").
		Scan(&avg).Error
	if err != nil {
		return 0, nil, fmt.Errorf("average sentiment: %w", err)
	}
	return int(count), avg, nil
}

func userToModel(u domain.User) UserModel {
	return UserModel{
		ID:           u.ID,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		FullName:     u.FullName,
		IsActive:     u.IsActive,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func userFromModel(m UserModel) domain.User {
	return domain.User{
		ID:           m.ID,
		Email:        m.Email,
		PasswordHash: m.PasswordHash,
		FullName:     m.FullName,
		IsActive:     m.IsActive,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func bookToModel(b domain.Book) (BookModel, error) {
	model := BookModel{
		ID:            b.ID,
		Title:         b.Title,
		Author:        b.Author,
		Description:   b.Description,
		StorageKey:    b.StorageKey,
		Summary:       b.Summary,
		AverageRating: b.AverageRating,
		RatingCount:   b.RatingCount,
		CreatedAt:     b.CreatedAt,
		UpdatedAt:     b.UpdatedAt,
	}
	if len(b.Metadata) > 0 {
		raw, err := json.Marshal(b.Metadata)
		if err != nil {
			return BookModel{}, fmt.Errorf("marshal book metadata: %w", err)
		}
		model.Metadata = raw
	}
	return model, nil
}

func bookFromModel(m BookModel) domain.Book {
	book := domain.Book{
		ID:            m.ID,
		Title:         m.Title,
		Author:        m.Author,
		Description:   m.Description,
		StorageKey:    m.StorageKey,
		Summary:       m.Summary,
		AverageRating: m.AverageRating,
		RatingCount:   m.RatingCount,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
	if len(m.Metadata) > 0 {
		meta := map[string]string{}
		if err := json.Unmarshal(m.Metadata, &meta); err == nil {
			book.Metadata = meta
		}
	}
	return book
}

func borrowFromModel(m BorrowModel) domain.Borrow {
	return domain.Borrow{
		ID:         m.ID,
		UserID:     m.UserID,
		BookID:     m.BookID,
		BorrowedAt: m.BorrowedAt,
		ReturnedAt: m.ReturnedAt,
	}
}

func reviewToModel(r domain.Review) ReviewModel {
	return ReviewModel{
		ID:             r.ID,
		UserID:         r.UserID,
		BookID:         r.BookID,
		Rating:         r.Rating,
		Comment:        r.Comment,
		SentimentScore: r.SentimentScore,
		SentimentLabel: r.SentimentLabel,
		CreatedAt:      r.CreatedAt,
	}
}

func reviewFromModel(m ReviewModel) domain.Review {
	return domain.Review{
		ID:             m.ID,
		UserID:         m.UserID,
		BookID:         m.BookID,
		Rating:         m.Rating,
		Comment:        m.Comment,
		SentimentScore: m.SentimentScore,
		SentimentLabel: m.SentimentLabel,
		CreatedAt:      m.CreatedAt,
	}
}
