package store

import (
	"errors"
	"sort"
	"sync"
	"time"

	"luminalib/pkg/domain"
)

// MemoryStore keeps everything in-process. It backs tests and local runs
// without a database.
type MemoryStore struct {
	mu      sync.RWMutex
	users   map[string]domain.User
	email   map[string]string // email -> user ID
	books   map[string]domain.Book
	order   []string // book insertion order, newest listed first
	borrows map[string]domain.Borrow
	reviews map[string]domain.Review
	prefs   map[string][]domain.Preference
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:   make(map[string]domain.User),
		email:   make(map[string]string),
		books:   make(map[string]domain.Book),
		borrows: make(map[string]domain.Borrow),
		reviews: make(map[string]domain.Review),
		prefs:   make(map[string][]domain.Preference),
	}
}

func (m *MemoryStore) CreateUser(u domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.email[u.Email]; exists {
		return errors.New("email already exists")
	}
	m.users[u.ID] = u
	m.email[u.Email] = u.ID
	return nil
}

func (m *MemoryStore) HasUserEmail(email string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.email[email]
	return ok, nil
}

func (m *MemoryStore) GetUserByEmail(email string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.email[email]
	if !ok {
		return domain.User{}, false, nil
	}
	user, ok := m.users[id]
	return user, ok, nil
}

func (m *MemoryStore) GetUserByID(id string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	user, ok := m.users[id]
	return user, ok, nil
}

func (m *MemoryStore) UpdateUser(u domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	old, ok := m.users[u.ID]
	if !ok {
		return errors.New("user not found")
	}
	if old.Email != u.Email {
		delete(m.email, old.Email)
		m.email[u.Email] = u.ID
	}
	m.users[u.ID] = u
	return nil
}

func (m *MemoryStore) ListPreferences(userID string) ([]domain.Preference, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	prefs := append([]domain.Preference(nil), m.prefs[userID]...)
	sort.Slice(prefs, func(i, j int) bool { return prefs[i].Key < prefs[j].Key })
	return prefs, nil
}

func (m *MemoryStore) ReplacePreferences(userID string, prefs []domain.Preference) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prefs[userID] = append([]domain.Preference(nil), prefs...)
	return nil
}

func (m *MemoryStore) CreateBook(b domain.Book) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.books[b.ID]; !exists {
		m.order = append(m.order, b.ID)
	}
	m.books[b.ID] = b
	return nil
}

func (m *MemoryStore) GetBook(id string) (domain.Book, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	book, ok := m.books[id]
	return book, ok, nil
}

func (m *MemoryStore) ListBooks(offset, limit int) ([]domain.Book, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := make([]domain.Book, 0, len(m.order))
	for i := len(m.order) - 1; i >= 0; i-- {
		if b, ok := m.books[m.order[i]]; ok {
			all = append(all, b)
		}
	}
	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func (m *MemoryStore) UpdateBook(b domain.Book) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.books[b.ID]; !ok {
		return errors.New("book not found")
	}
	m.books[b.ID] = b
	return nil
}

func (m *MemoryStore) DeleteBook(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.books, id)
	for rid, r := range m.reviews {
		if r.BookID == id {
			delete(m.reviews, rid)
		}
	}
	for bid, b := range m.borrows {
		if b.BookID == id {
			delete(m.borrows, bid)
		}
	}
	return nil
}

func (m *MemoryStore) SetBookSummary(id, summary string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	book, ok := m.books[id]
	if !ok {
		return false, nil
	}
	book.Summary = &summary
	book.UpdatedAt = time.Now().UTC()
	m.books[id] = book
	return true, nil
}

func (m *MemoryStore) SetBookConsensus(id string, avg *float64, count int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	book, ok := m.books[id]
	if !ok {
		return false, nil
	}
	book.AverageRating = avg
	book.RatingCount = count
	book.UpdatedAt = time.Now().UTC()
	m.books[id] = book
	return true, nil
}

func (m *MemoryStore) CreateBorrow(b domain.Borrow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.borrows[b.ID] = b
	return nil
}

func (m *MemoryStore) GetOpenBorrow(userID, bookID string) (domain.Borrow, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var latest domain.Borrow
	found := false
	for _, b := range m.borrows {
		if b.UserID != userID || b.BookID != bookID || !b.Open() {
			continue
		}
		if !found || b.BorrowedAt.After(latest.BorrowedAt) {
			latest = b
			found = true
		}
	}
	return latest, found, nil
}

func (m *MemoryStore) CloseBorrow(id string, returnedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.borrows[id]
	if !ok {
		return errors.New("borrow not found")
	}
	b.ReturnedAt = &returnedAt
	m.borrows[id] = b
	return nil
}

func (m *MemoryStore) HasBorrow(userID, bookID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, b := range m.borrows {
		if b.UserID == userID && b.BookID == bookID {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryStore) CreateReview(r domain.Review) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reviews[r.ID] = r
	return nil
}

func (m *MemoryStore) GetReview(id string) (domain.Review, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	review, ok := m.reviews[id]
	return review, ok, nil
}

func (m *MemoryStore) ListReviewsByBook(bookID string) ([]domain.Review, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	reviews := make([]domain.Review, 0)
	for _, r := range m.reviews {
		if r.BookID == bookID {
			reviews = append(reviews, r)
		}
	}
	sort.Slice(reviews, func(i, j int) bool { return reviews[i].CreatedAt.Before(reviews[j].CreatedAt) })
	return reviews, nil
}

func (m *MemoryStore) SetReviewSentiment(id string, score float64, label string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	review, ok := m.reviews[id]
	if !ok {
		return false, nil
	}
	review.SentimentScore = &score
	review.SentimentLabel = label
	m.reviews[id] = review
	return true, nil
}

func (m *MemoryStore) ReviewStats(bookID string) (int, *float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	scored := 0
	sum := 0.0
	for _, r := range m.reviews {
		if r.BookID != bookID {
			continue
		}
		count++
		if r.SentimentScore != nil {
			scored++
			sum += *r.SentimentScore
		}
	}
	if scored == 0 {
		return count, nil, nil
	}
	avg := sum / float64(scored)
	return count, &avg, nil
}
