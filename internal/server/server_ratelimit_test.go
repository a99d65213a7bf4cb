package server

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"luminalib/internal/app"
	"luminalib/internal/enrich"
	"luminalib/internal/ratelimit"
	"luminalib/pkg/llm"
	"luminalib/pkg/queue"
	"luminalib/pkg/storage"
	"luminalib/pkg/store"
)

func TestLoginRateLimit(t *testing.T) {
	redisSrv := miniredis.RunT(t)
	limiter, err := ratelimit.NewRedisFixedWindowLimiter(redisSrv.Addr(), "", "test:ratelimit", 2, time.Minute)
	if err != nil {
		t.Fatalf("limiter: %v", err)
	}

	dataStore := store.NewMemoryStore()
	sessions, err := store.NewJWTSessionStore("test-secret", "HS256", time.Hour, store.NewMemoryTokenRevoker(), store.JWTOptions{})
	if err != nil {
		t.Fatalf("session store: %v", err)
	}
	backend, err := storage.New(storage.Config{Backend: "local", LocalPath: t.TempDir()})
	if err != nil {
		t.Fatalf("storage: %v", err)
	}
	q := queue.NewMemoryQueue(queue.MemoryQueueConfig{RetryDelay: time.Millisecond})
	application, err := app.New(app.Config{
		Store:    dataStore,
		Sessions: sessions,
		Storage:  backend,
		Enricher: enrich.New(dataStore, llm.NewLocalProvider(), q, time.Second),
	})
	if err != nil {
		t.Fatalf("app: %v", err)
	}
	s, err := New(Config{App: application, LoginLimiter: limiter})
	if err != nil {
		t.Fatalf("server: %v", err)
	}
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	creds := url.Values{"username": {"nobody@example.com"}, "password": {"WrongPass1"}}
	for i := 0; i < 2; i++ {
		resp, err := http.PostForm(srv.URL+"/auth/login", creds)
		if err != nil {
			t.Fatalf("login: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("attempt %d returned %d, want 401", i+1, resp.StatusCode)
		}
	}
	resp, err := http.PostForm(srv.URL+"/auth/login", creds)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("third attempt returned %d, want 429", resp.StatusCode)
	}
}
