package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"
)

type bookPayload struct {
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	Summary       *string  `json:"summary"`
	AverageRating *float64 `json:"average_rating"`
	RatingCount   int      `json:"rating_count"`
	Consensus     string   `json:"consensus"`
}

func (e *testEnv) getBook(t *testing.T, token, id string) bookPayload {
	t.Helper()
	status, body := e.do(t, http.MethodGet, token, "/books/"+id, nil, "")
	if status != http.StatusOK {
		t.Fatalf("get book returned %d: %s", status, body)
	}
	var book bookPayload
	if err := json.Unmarshal(body, &book); err != nil {
		t.Fatalf("decode book: %v", err)
	}
	return book
}

func (e *testEnv) waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestUploadGeneratesSummaryAsynchronously(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t, "reader@example.com", "Sup3rSecret")
	token := env.login(t, "reader@example.com", "Sup3rSecret")

	text := strings.Repeat("The whale surfaced again at dawn. ", 20)
	id := env.uploadBook(t, token, "Moby Dick", "moby.txt", text)

	// The upload response itself must not wait for the summary.
	if book := env.getBook(t, token, id); book.Summary != nil && *book.Summary == "" {
		t.Fatalf("unexpected empty summary: %+v", book)
	}

	env.waitFor(t, "summary", func() bool {
		return env.getBook(t, token, id).Summary != nil
	})
	summary := *env.getBook(t, token, id).Summary
	if !strings.HasSuffix(summary, "...") || !strings.HasPrefix(text, strings.TrimSuffix(summary, "...")) {
		t.Fatalf("summary is not a prefix of the text: %q", summary)
	}
}

func TestListBooksPaginates(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t, "reader@example.com", "Sup3rSecret")
	token := env.login(t, "reader@example.com", "Sup3rSecret")

	for i := 0; i < 12; i++ {
		env.uploadBook(t, token, fmt.Sprintf("Book %02d", i), fmt.Sprintf("book%02d.txt", i), "contents")
	}

	var page1 struct {
		Items []bookPayload `json:"items"`
		Count int           `json:"count"`
		Page  int           `json:"page"`
	}
	status, body := env.do(t, http.MethodGet, token, "/books", nil, "")
	if status != http.StatusOK {
		t.Fatalf("list returned %d: %s", status, body)
	}
	if err := json.Unmarshal(body, &page1); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if page1.Count != 10 {
		t.Fatalf("page 1 count = %d, want 10", page1.Count)
	}

	status, body = env.do(t, http.MethodGet, token, "/books?page=2", nil, "")
	if status != http.StatusOK {
		t.Fatalf("list page 2 returned %d: %s", status, body)
	}
	var page2 struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(body, &page2); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if page2.Count != 2 {
		t.Fatalf("page 2 count = %d, want 2", page2.Count)
	}

	status, _ = env.do(t, http.MethodGet, token, "/books?page=zero", nil, "")
	if status != http.StatusUnprocessableEntity {
		t.Fatalf("bad page returned %d", status)
	}
}

func TestBooksCollectionTrailingSlash(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t, "reader@example.com", "Sup3rSecret")
	token := env.login(t, "reader@example.com", "Sup3rSecret")

	env.uploadBook(t, token, "Dune", "dune.txt", "spice")

	// "/books/" must serve the same collection as "/books".
	status, body := env.do(t, http.MethodGet, token, "/books/", nil, "")
	if status != http.StatusOK {
		t.Fatalf("list at /books/ returned %d: %s", status, body)
	}
	var page struct {
		Count int           `json:"count"`
		Items []bookPayload `json:"items"`
	}
	if err := json.Unmarshal(body, &page); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if page.Count != 1 {
		t.Fatalf("count = %d, want 1", page.Count)
	}

	status, _ = env.do(t, http.MethodDelete, token, "/books/", nil, "")
	if status != http.StatusMethodNotAllowed {
		t.Fatalf("delete at /books/ returned %d", status)
	}
}

func TestBorrowReturnLifecycle(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t, "reader@example.com", "Sup3rSecret")
	token := env.login(t, "reader@example.com", "Sup3rSecret")
	id := env.uploadBook(t, token, "Dune", "dune.txt", "spice")

	status, body := env.do(t, http.MethodPost, token, "/books/"+id+"/borrow", nil, "")
	if status != http.StatusCreated {
		t.Fatalf("borrow returned %d: %s", status, body)
	}

	// second open borrow of the same book must conflict
	status, body = env.do(t, http.MethodPost, token, "/books/"+id+"/borrow", nil, "")
	if status != http.StatusConflict {
		t.Fatalf("double borrow returned %d: %s", status, body)
	}

	status, body = env.do(t, http.MethodPost, token, "/books/"+id+"/return", nil, "")
	if status != http.StatusOK {
		t.Fatalf("return returned %d: %s", status, body)
	}
	var borrow struct {
		ReturnedAt *time.Time `json:"returned_at"`
	}
	if err := json.Unmarshal(body, &borrow); err != nil {
		t.Fatalf("decode borrow: %v", err)
	}
	if borrow.ReturnedAt == nil {
		t.Fatalf("returned_at not set: %s", body)
	}

	// nothing open anymore
	status, _ = env.do(t, http.MethodPost, token, "/books/"+id+"/return", nil, "")
	if status != http.StatusNotFound {
		t.Fatalf("second return returned %d", status)
	}

	// borrowing again after return is allowed
	status, _ = env.do(t, http.MethodPost, token, "/books/"+id+"/borrow", nil, "")
	if status != http.StatusCreated {
		t.Fatalf("re-borrow returned %d", status)
	}

	status, _ = env.do(t, http.MethodPost, token, "/books/missing/borrow", nil, "")
	if status != http.StatusNotFound {
		t.Fatalf("borrow of missing book returned %d", status)
	}
}

func TestReviewRequiresBorrowHistory(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t, "reader@example.com", "Sup3rSecret")
	token := env.login(t, "reader@example.com", "Sup3rSecret")
	id := env.uploadBook(t, token, "Dune", "dune.txt", "spice")

	status, body := env.postJSON(t, token, "/books/"+id+"/reviews", map[string]any{"rating": 4})
	if status != http.StatusForbidden {
		t.Fatalf("review without borrow returned %d: %s", status, body)
	}

	env.do(t, http.MethodPost, token, "/books/"+id+"/borrow", nil, "")
	env.do(t, http.MethodPost, token, "/books/"+id+"/return", nil, "")

	// a returned borrow still counts as history
	status, body = env.postJSON(t, token, "/books/"+id+"/reviews", map[string]any{"rating": 4, "comment": "a great read"})
	if status != http.StatusCreated {
		t.Fatalf("review after return returned %d: %s", status, body)
	}

	status, _ = env.postJSON(t, token, "/books/"+id+"/reviews", map[string]any{"rating": 6})
	if status != http.StatusUnprocessableEntity {
		t.Fatalf("out-of-range rating returned %d", status)
	}
	status, _ = env.postJSON(t, token, "/books/"+id+"/reviews", map[string]any{"rating": 0})
	if status != http.StatusUnprocessableEntity {
		t.Fatalf("zero rating returned %d", status)
	}
}

func TestConsensusRecomputeReplacesAggregate(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t, "alice@example.com", "Sup3rSecret")
	env.signup(t, "bob@example.com", "Sup3rSecret")
	alice := env.login(t, "alice@example.com", "Sup3rSecret")
	bob := env.login(t, "bob@example.com", "Sup3rSecret")
	id := env.uploadBook(t, alice, "Dune", "dune.txt", "spice")

	for user, rating := range map[string]int{alice: 3, bob: 5} {
		env.do(t, http.MethodPost, user, "/books/"+id+"/borrow", nil, "")
		status, body := env.postJSON(t, user, "/books/"+id+"/reviews", map[string]any{"rating": rating})
		if status != http.StatusCreated {
			t.Fatalf("review returned %d: %s", status, body)
		}
	}

	env.waitFor(t, "consensus", func() bool {
		book := env.getBook(t, alice, id)
		return book.AverageRating != nil && *book.AverageRating == 4.0 && book.RatingCount == 2
	})
	book := env.getBook(t, alice, id)
	if book.Consensus != "Average rating: 4.00 (2 reviews)" {
		t.Fatalf("unexpected consensus line: %q", book.Consensus)
	}
}

func TestAnalysisSentimentAverage(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t, "reader@example.com", "Sup3rSecret")
	token := env.login(t, "reader@example.com", "Sup3rSecret")
	id := env.uploadBook(t, token, "Dune", "dune.txt", "spice")

	env.do(t, http.MethodPost, token, "/books/"+id+"/borrow", nil, "")

	// rating only, no comment: counted but never analyzed
	status, body := env.postJSON(t, token, "/books/"+id+"/reviews", map[string]any{"rating": 4})
	if status != http.StatusCreated {
		t.Fatalf("review returned %d: %s", status, body)
	}

	type analysis struct {
		ReviewCount      int      `json:"review_count"`
		AverageSentiment *float64 `json:"average_sentiment"`
	}
	fetch := func() analysis {
		status, body := env.do(t, http.MethodGet, token, "/books/"+id+"/analysis", nil, "")
		if status != http.StatusOK {
			t.Fatalf("analysis returned %d: %s", status, body)
		}
		var out analysis
		if err := json.Unmarshal(body, &out); err != nil {
			t.Fatalf("decode analysis: %v", err)
		}
		return out
	}

	got := fetch()
	if got.ReviewCount != 1 || got.AverageSentiment != nil {
		t.Fatalf("expected count 1 and null sentiment, got %+v", got)
	}

	status, body = env.postJSON(t, token, "/books/"+id+"/reviews", map[string]any{"rating": 5, "comment": "a wonderful amazing book, loved it"})
	if status != http.StatusCreated {
		t.Fatalf("review returned %d: %s", status, body)
	}
	env.waitFor(t, "sentiment", func() bool {
		got := fetch()
		return got.AverageSentiment != nil
	})
	got = fetch()
	if got.ReviewCount != 2 {
		t.Fatalf("review count = %d, want 2", got.ReviewCount)
	}
	if *got.AverageSentiment <= 0 {
		t.Fatalf("average sentiment = %v, want positive", *got.AverageSentiment)
	}

	status, _ = env.do(t, http.MethodGet, token, "/books/missing/analysis", nil, "")
	if status != http.StatusNotFound {
		t.Fatalf("analysis of missing book returned %d", status)
	}
}

func TestDownloadRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t, "reader@example.com", "Sup3rSecret")
	token := env.login(t, "reader@example.com", "Sup3rSecret")
	id := env.uploadBook(t, token, "Dune", "dune.txt", "the spice must flow")

	status, body := env.do(t, http.MethodGet, token, "/books/"+id+"/download", nil, "")
	if status != http.StatusOK {
		t.Fatalf("download returned %d: %s", status, body)
	}
	if string(body) != "the spice must flow" {
		t.Fatalf("download content = %q", body)
	}
}

func TestUpdateAndDeleteBook(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t, "reader@example.com", "Sup3rSecret")
	token := env.login(t, "reader@example.com", "Sup3rSecret")
	id := env.uploadBook(t, token, "Dune", "dune.txt", "spice")

	payload, _ := json.Marshal(map[string]string{"description": "desert planet epic"})
	status, body := env.do(t, http.MethodPut, token, "/books/"+id, strings.NewReader(string(payload)), "application/json")
	if status != http.StatusOK {
		t.Fatalf("update returned %d: %s", status, body)
	}
	var updated struct {
		Title       string `json:"title"`
		Description string `json:"description"`
	}
	if err := json.Unmarshal(body, &updated); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if updated.Title != "Dune" || updated.Description != "desert planet epic" {
		t.Fatalf("unexpected update result: %s", body)
	}

	status, _ = env.do(t, http.MethodDelete, token, "/books/"+id, nil, "")
	if status != http.StatusOK {
		t.Fatalf("delete returned %d", status)
	}
	status, _ = env.do(t, http.MethodGet, token, "/books/"+id, nil, "")
	if status != http.StatusNotFound {
		t.Fatalf("deleted book still fetchable: %d", status)
	}
}
