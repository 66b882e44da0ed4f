package termstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joelkehle/safe-negotiator/internal/safe"
)

var ErrNotFound = errors.New("terms not found")

type Source string

const (
	SourceManual    Source = "manual"
	SourceExtracted Source = "extracted"
)

// Version is one immutable entry in the terms history. The latest version
// holds the active terms; older versions are superseded, never removed.
type Version struct {
	ID        string     `json:"id"`
	Number    int        `json:"version"`
	Terms     safe.Terms `json:"terms"`
	Source    Source     `json:"source"`
	Note      string     `json:"note,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// Store is the terms history contract shared by every backend.
type Store interface {
	Current(ctx context.Context) (Version, error)
	Update(ctx context.Context, terms safe.Terms, source Source, note string) (Version, error)
	History(ctx context.Context) ([]Version, error)
	Version(ctx context.Context, number int) (Version, error)
	Close() error
}

type Config struct {
	Clock func() time.Time
	NewID func() string
}

type MemoryStore struct {
	mu       sync.RWMutex
	versions []Version
	clock    func() time.Time
	newID    func() string
}

func NewMemoryStore(cfg Config) *MemoryStore {
	if cfg.Clock == nil {
		cfg.Clock = func() time.Time { return time.Now().UTC() }
	}
	if cfg.NewID == nil {
		cfg.NewID = func() string { return uuid.NewString() }
	}
	return &MemoryStore{clock: cfg.Clock, newID: cfg.NewID}
}

func (s *MemoryStore) Current(context.Context) (Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.versions) == 0 {
		return Version{}, ErrNotFound
	}
	return s.versions[len(s.versions)-1], nil
}

func (s *MemoryStore) Update(_ context.Context, terms safe.Terms, source Source, note string) (Version, error) {
	if err := terms.Validate(); err != nil {
		return Version{}, err
	}
	switch source {
	case SourceManual, SourceExtracted:
	case "":
		source = SourceManual
	default:
		return Version{}, safe.NewError(safe.KindInvalidInput, "unknown terms source %q", source)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	v := Version{
		ID:        s.newID(),
		Number:    len(s.versions) + 1,
		Terms:     terms,
		Source:    source,
		Note:      note,
		CreatedAt: s.clock(),
	}
	s.versions = append(s.versions, v)
	return v, nil
}

func (s *MemoryStore) History(context.Context) ([]Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Version(nil), s.versions...), nil
}

func (s *MemoryStore) Version(_ context.Context, number int) (Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if number < 1 || number > len(s.versions) {
		return Version{}, fmt.Errorf("version %d: %w", number, ErrNotFound)
	}
	return s.versions[number-1], nil
}

func (s *MemoryStore) Close() error { return nil }

// restore replaces the history wholesale; used by backends when loading.
func (s *MemoryStore) restore(versions []Version) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.versions = append([]Version(nil), versions...)
}
