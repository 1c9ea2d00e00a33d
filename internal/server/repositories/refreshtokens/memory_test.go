package refreshtokens

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/storefront/internal/common"
	"github.com/dmitrijs2005/storefront/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRecord(id, userID, value string, now time.Time) *models.RefreshToken {
	return &models.RefreshToken{ID: id, UserID: userID, Value: value, CreatedAt: now, ExpiresAt: now.Add(time.Hour)}
}

func TestMemory_CreateAndFind(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	now := time.Now()

	require.NoError(t, repo.Create(ctx, newRecord("t1", "u1", "v1", now)))
	assert.ErrorIs(t, repo.Create(ctx, newRecord("t2", "u1", "v1", now)), common.ErrAlreadyExists)

	got, err := repo.FindByValue(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, "t1", got.ID)

	_, err = repo.FindByValue(ctx, "V1")
	assert.ErrorIs(t, err, common.ErrorNotFound, "lookups are exact match")
}

func TestMemory_ReturnedRecordsAreCopies(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	now := time.Now()
	require.NoError(t, repo.Create(ctx, newRecord("t1", "u1", "v1", now)))

	got, err := repo.FindByValue(ctx, "v1")
	require.NoError(t, err)
	got.RevokedAt = &now

	again, err := repo.FindByValue(ctx, "v1")
	require.NoError(t, err)
	assert.Nil(t, again.RevokedAt)
}

func TestMemory_RotateChainAndReuse(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	now := time.Now()
	require.NoError(t, repo.Create(ctx, newRecord("a", "u1", "va", now)))

	prev, err := repo.Rotate(ctx, "va", newRecord("b", "u1", "vb", now), now)
	require.NoError(t, err)
	require.NotNil(t, prev.ReplacedByTokenID)
	assert.Equal(t, "b", *prev.ReplacedByTokenID)

	_, err = repo.Rotate(ctx, "vb", newRecord("c", "u1", "vc", now), now)
	require.NoError(t, err)

	_, err = repo.Rotate(ctx, "va", newRecord("x", "u1", "vx", now), now)
	assert.ErrorIs(t, err, common.ErrTokenReused)

	desc, err := repo.DescendantsOf(ctx, "a")
	require.NoError(t, err)
	require.Len(t, desc, 2)
	assert.Equal(t, "b", desc[0].ID)
	assert.Equal(t, "c", desc[1].ID)

	n, err := repo.RevokeDescendants(ctx, "a", now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "only the live tip was still unrevoked")

	tip, err := repo.FindByValue(ctx, "vc")
	require.NoError(t, err)
	assert.True(t, tip.Revoked())

	_, err = repo.FindByValue(ctx, "vx")
	assert.ErrorIs(t, err, common.ErrorNotFound, "a refused rotation stores nothing")
}

func TestMemory_RotateExpiredRevokesLazily(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	now := time.Now()
	rec := newRecord("a", "u1", "va", now.Add(-2*time.Hour))
	require.NoError(t, repo.Create(ctx, rec))

	got, err := repo.Rotate(ctx, "va", newRecord("b", "u1", "vb", now), now)
	assert.ErrorIs(t, err, common.ErrTokenExpired)
	assert.True(t, got.Revoked())

	again, err := repo.Rotate(ctx, "va", newRecord("c", "u1", "vc", now), now)
	assert.ErrorIs(t, err, common.ErrTokenExpired, "expiry is reported before reuse")
	assert.True(t, again.RevokedAt.Equal(*got.RevokedAt))
}

func TestMemory_ConcurrentRotateHasOneWinner(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	now := time.Now()
	require.NoError(t, repo.Create(ctx, newRecord("a", "u1", "va", now)))

	const n = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
		reused  int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			next := newRecord(fmt.Sprintf("n%d", i), "u1", fmt.Sprintf("vn%d", i), now)
			_, err := repo.Rotate(ctx, "va", next, now)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners++
			case assert.ErrorIs(t, err, common.ErrTokenReused):
				reused++
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
	assert.Equal(t, n-1, reused)

	desc, err := repo.DescendantsOf(ctx, "a")
	require.NoError(t, err)
	assert.Len(t, desc, 1, "exactly one successor is linked")
}

func TestMemory_RevokeAndRevokeAll(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	now := time.Now()
	require.NoError(t, repo.Create(ctx, newRecord("a", "u1", "va", now)))
	require.NoError(t, repo.Create(ctx, newRecord("b", "u1", "vb", now)))
	require.NoError(t, repo.Create(ctx, newRecord("c", "u2", "vc", now)))

	first, err := repo.Revoke(ctx, "va", now)
	require.NoError(t, err)
	later := now.Add(time.Minute)
	second, err := repo.Revoke(ctx, "va", later)
	require.NoError(t, err)
	assert.True(t, second.RevokedAt.Equal(*first.RevokedAt), "revocation time is not rewritten")

	_, err = repo.Revoke(ctx, "missing", now)
	assert.ErrorIs(t, err, common.ErrorNotFound)

	n, err := repo.RevokeAll(ctx, "u1", now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	other, err := repo.FindByValue(ctx, "vc")
	require.NoError(t, err)
	assert.False(t, other.Revoked())
}
