package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"
)

// Backend persists uploaded file bytes under an opaque key.
type Backend interface {
	// Save persists the content and returns the key it was stored under.
	Save(ctx context.Context, r io.Reader, size int64, filename, contentType string) (string, error)
	// Open returns a reader over the stored content.
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete removes the content; deleting an absent key is a no-op.
	Delete(ctx context.Context, key string) error
}

// Config selects and configures a storage backend.
type Config struct {
	Backend string

	// local
	LocalPath string

	// minio
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool
}

// New builds the configured backend. Unknown selectors fail here, at
// construction time, not on first use.
func New(cfg Config) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", "local":
		return NewFileStore(cfg.LocalPath)
	case "minio":
		return NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// buildKey prefixes the sanitized filename with a random segment so that
// uploads with the same name never collide.
func buildKey(filename string) string {
	name := sanitizeFilename(path.Base(filename))
	if name == "" {
		name = "book"
	}
	return path.Join("books", uuid.NewString(), name)
}

func sanitizeFilename(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(name))
	lastUnderscore := false
	for _, r := range name {
		if r <= 0x7f {
			if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '.' || r == '-' || r == '_' {
				b.WriteRune(r)
				lastUnderscore = false
				continue
			}
		}
		if !lastUnderscore {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	return strings.Trim(b.String(), "_")
}
