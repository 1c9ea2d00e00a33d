package refreshtokens

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/storefront/internal/common"
	"github.com/dmitrijs2005/storefront/internal/server/models"
)

// MemoryRepository keeps records in process. A single mutex makes Rotate
// atomic with respect to every other operation. Records handed out are
// copies, so callers cannot mutate stored state.
type MemoryRepository struct {
	mu      sync.Mutex
	byID    map[string]*models.RefreshToken
	byValue map[string]string
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:    make(map[string]*models.RefreshToken),
		byValue: make(map[string]string),
	}
}

func clone(t *models.RefreshToken) *models.RefreshToken {
	c := *t
	if t.RevokedAt != nil {
		at := *t.RevokedAt
		c.RevokedAt = &at
	}
	if t.ReplacedByTokenID != nil {
		id := *t.ReplacedByTokenID
		c.ReplacedByTokenID = &id
	}
	return &c
}

func (r *MemoryRepository) Create(ctx context.Context, token *models.RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.createLocked(token)
}

func (r *MemoryRepository) createLocked(token *models.RefreshToken) error {
	if _, ok := r.byValue[token.Value]; ok {
		return common.ErrAlreadyExists
	}
	if _, ok := r.byID[token.ID]; ok {
		return common.ErrAlreadyExists
	}
	r.byID[token.ID] = clone(token)
	r.byValue[token.Value] = token.ID
	return nil
}

func (r *MemoryRepository) findLocked(value string) (*models.RefreshToken, error) {
	id, ok := r.byValue[value]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return r.byID[id], nil
}

func (r *MemoryRepository) FindByValue(ctx context.Context, value string) (*models.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, err := r.findLocked(value)
	if err != nil {
		return nil, err
	}
	return clone(t), nil
}

func (r *MemoryRepository) Rotate(ctx context.Context, value string, next *models.RefreshToken, now time.Time) (*models.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, err := r.findLocked(value)
	if err != nil {
		return nil, err
	}

	if t.ExpiredAt(now) {
		if !t.Revoked() {
			t.RevokedAt = &now
		}
		return clone(t), common.ErrTokenExpired
	}
	if t.Revoked() {
		return clone(t), common.ErrTokenReused
	}

	if err := r.createLocked(next); err != nil {
		return nil, err
	}
	nextID := next.ID
	t.RevokedAt = &now
	t.ReplacedByTokenID = &nextID
	return clone(t), nil
}

func (r *MemoryRepository) Revoke(ctx context.Context, value string, now time.Time) (*models.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, err := r.findLocked(value)
	if err != nil {
		return nil, err
	}
	if !t.Revoked() {
		t.RevokedAt = &now
	}
	return clone(t), nil
}

func (r *MemoryRepository) RevokeAll(ctx context.Context, userID string, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for _, t := range r.byID {
		if t.UserID == userID && !t.Revoked() {
			t.RevokedAt = &now
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepository) chainLocked(id string) []*models.RefreshToken {
	var out []*models.RefreshToken
	cur, ok := r.byID[id]
	for ok && cur.ReplacedByTokenID != nil {
		cur, ok = r.byID[*cur.ReplacedByTokenID]
		if ok {
			out = append(out, cur)
		}
	}
	return out
}

func (r *MemoryRepository) DescendantsOf(ctx context.Context, id string) ([]*models.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	chain := r.chainLocked(id)
	out := make([]*models.RefreshToken, 0, len(chain))
	for _, t := range chain {
		out = append(out, clone(t))
	}
	return out, nil
}

func (r *MemoryRepository) RevokeDescendants(ctx context.Context, id string, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for _, t := range r.chainLocked(id) {
		if !t.Revoked() {
			t.RevokedAt = &now
			n++
		}
	}
	return n, nil
}
