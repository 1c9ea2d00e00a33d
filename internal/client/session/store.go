package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/storefront/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/storefront/internal/common"
)

// CredentialStore persists the credential pair between runs. Load returns
// common.ErrorNotFound when nothing is stored.
type CredentialStore interface {
	Load(ctx context.Context) (*Credentials, error)
	Save(ctx context.Context, c Credentials) error
	Clear(ctx context.Context) error
}

// MemoryStore keeps credentials for the life of the process.
type MemoryStore struct {
	mu    sync.Mutex
	creds *Credentials
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (s *MemoryStore) Load(context.Context) (*Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.creds == nil {
		return nil, common.ErrorNotFound
	}
	c := *s.creds
	return &c, nil
}

func (s *MemoryStore) Save(_ context.Context, c Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = &c
	return nil
}

func (s *MemoryStore) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = nil
	return nil
}

const (
	keyAccessToken  = "session.access_token"
	keyRefreshToken = "session.refresh_token"
	keyExpiresAt    = "session.expires_at"
)

// MetadataStore keeps credentials in the local metadata table.
type MetadataStore struct {
	repo metadata.Repository
}

func NewMetadataStore(repo metadata.Repository) *MetadataStore {
	return &MetadataStore{repo: repo}
}

func (s *MetadataStore) Load(ctx context.Context) (*Credentials, error) {
	all, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	access, refresh := all[keyAccessToken], all[keyRefreshToken]
	if access == "" || refresh == "" {
		return nil, common.ErrorNotFound
	}

	c := &Credentials{AccessToken: access, RefreshToken: refresh}
	if raw := all[keyExpiresAt]; raw != "" {
		if c.ExpiresAt, err = time.Parse(time.RFC3339Nano, raw); err != nil {
			return nil, fmt.Errorf("stored expiry: %w", err)
		}
	}
	return c, nil
}

func (s *MetadataStore) Save(ctx context.Context, c Credentials) error {
	return s.repo.SetMany(ctx, map[string]string{
		keyAccessToken:  c.AccessToken,
		keyRefreshToken: c.RefreshToken,
		keyExpiresAt:    c.ExpiresAt.UTC().Format(time.RFC3339Nano),
	})
}

func (s *MetadataStore) Clear(ctx context.Context) error {
	return s.repo.Delete(ctx, keyAccessToken, keyRefreshToken, keyExpiresAt)
}

func isNotFound(err error) bool { return errors.Is(err, common.ErrorNotFound) }
