package session

import (
	"context"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/good-yellow-bee/taskflow/internal/models"
	"github.com/good-yellow-bee/taskflow/internal/storage"
)

func testSession() *models.Session {
	return &models.Session{
		User:         models.User{ID: 7, Username: "alice", Email: "alice@example.com", Role: models.RoleClient},
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
	}
}

func TestStore_SaveAndLoad(t *testing.T) {
	kv := storage.NewMemoryKV()
	store := NewStore(kv, nil)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, testSession()))
	assert.Equal(t, 3, kv.Len(), "user, access and refresh keys persisted")
	assert.True(t, store.SignedIn())

	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(7), got.User.ID)
	assert.Equal(t, "access-1", got.AccessToken)
	assert.Equal(t, "refresh-1", got.RefreshToken)
}

func TestStore_SaveRequiresTokens(t *testing.T) {
	store := NewStore(storage.NewMemoryKV(), nil)
	sess := testSession()
	sess.RefreshToken = ""

	assert.Error(t, store.Save(context.Background(), sess))
	assert.Error(t, store.Save(context.Background(), nil))
	assert.False(t, store.SignedIn())
}

func TestStore_LoadEmpty(t *testing.T) {
	store := NewStore(storage.NewMemoryKV(), nil)

	_, err := store.Load(context.Background())
	assert.ErrorIs(t, err, ErrNoSession)
	assert.Nil(t, store.Current())
}

func TestStore_LoadPartialIsCorrupt(t *testing.T) {
	tests := []struct {
		name    string
		entries map[string]string
	}{
		{"profile without tokens", map[string]string{KeyUser: `{"id":1}`}},
		{"tokens without profile", map[string]string{KeyAccessToken: "a", KeyRefreshToken: "r"}},
		{"missing refresh", map[string]string{KeyUser: `{"id":1}`, KeyAccessToken: "a"}},
		{"undecodable profile", map[string]string{KeyUser: `{not json`, KeyAccessToken: "a", KeyRefreshToken: "r"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			kv := storage.NewMemoryKV()
			require.NoError(t, kv.PutMany(context.Background(), tc.entries))
			store := NewStore(kv, nil)

			_, err := store.Load(context.Background())
			assert.ErrorIs(t, err, ErrCorruptSession)
		})
	}
}

func TestStore_LoadCorruptDropsCurrent(t *testing.T) {
	kv := storage.NewMemoryKV()
	ctx := context.Background()
	store := NewStore(kv, nil)
	require.NoError(t, store.Save(ctx, &models.Session{
		User: models.User{ID: 1}, AccessToken: "a", RefreshToken: "r",
	}))
	require.True(t, store.SignedIn())

	require.NoError(t, kv.Delete(ctx, KeyRefreshToken))
	_, err := store.Load(ctx)
	require.ErrorIs(t, err, ErrCorruptSession)
	assert.False(t, store.SignedIn(), "memory follows durable state")
	assert.Nil(t, store.Current())
	access, refresh := store.Tokens()
	assert.Empty(t, access)
	assert.Empty(t, refresh)
}

func TestStore_InitClearsCorruptState(t *testing.T) {
	kv := storage.NewMemoryKV()
	ctx := context.Background()
	require.NoError(t, kv.PutMany(ctx, map[string]string{KeyUser: `{"id":1}`}))

	store := NewStore(kv, nil)
	_, err := store.Init(ctx)
	assert.ErrorIs(t, err, ErrCorruptSession)
	assert.Equal(t, 0, kv.Len(), "corrupt state is removed")
}

func TestStore_ClearIsIdempotent(t *testing.T) {
	kv := storage.NewMemoryKV()
	store := NewStore(kv, nil)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, testSession()))
	require.NoError(t, store.Clear(ctx))
	require.NoError(t, store.Clear(ctx))

	assert.Equal(t, 0, kv.Len())
	assert.Nil(t, store.Current())
	_, err := store.Load(ctx)
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestStore_SetTokens(t *testing.T) {
	kv := storage.NewMemoryKV()
	store := NewStore(kv, nil)
	ctx := context.Background()

	assert.ErrorIs(t, store.SetTokens(ctx, "x", ""), ErrNoSession)

	require.NoError(t, store.Save(ctx, testSession()))
	require.NoError(t, store.SetTokens(ctx, "access-2", ""))

	access, refresh := store.Tokens()
	assert.Equal(t, "access-2", access)
	assert.Equal(t, "refresh-1", refresh, "empty refresh keeps the old one")

	require.NoError(t, store.SetTokens(ctx, "access-3", "refresh-3"))
	persisted, err := kv.GetMany(ctx, KeyAccessToken, KeyRefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "access-3", persisted[KeyAccessToken])
	assert.Equal(t, "refresh-3", persisted[KeyRefreshToken])
}

func TestStore_ReloadFromDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	ctx := context.Background()

	db, err := storage.OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, NewStore(db, nil).Save(ctx, testSession()))
	require.NoError(t, db.Close())

	db, err = storage.OpenSQLite(path)
	require.NoError(t, err)
	defer db.Close()

	store := NewStore(db, nil)
	got, err := store.Init(ctx)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.User.Username)
	assert.Equal(t, "access-1", store.AccessToken())
}

func TestStore_TokensNeverTorn(t *testing.T) {
	store := NewStore(storage.NewMemoryKV(), nil)
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, testSession()))

	pairs := map[string]string{"access-1": "refresh-1"}
	var mu sync.Mutex
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 2; i < 200; i++ {
			a := "access-" + strconv.Itoa(i)
			r := "refresh-" + strconv.Itoa(i)
			mu.Lock()
			pairs[a] = r
			mu.Unlock()
			store.SetTokens(ctx, a, r)
		}
	}()

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				a, r := store.Tokens()
				mu.Lock()
				want := pairs[a]
				mu.Unlock()
				if want != r {
					t.Errorf("torn read: access %q with refresh %q", a, r)
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestTokenExpiry(t *testing.T) {
	exp := time.Now().Add(15 * time.Minute).Truncate(time.Second)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	signed, err := token.SignedString([]byte("secret"))
	require.NoError(t, err)

	got, err := TokenExpiry(signed)
	require.NoError(t, err)
	assert.True(t, got.Equal(exp), "expiry = %v, want %v", got, exp)

	_, err = TokenExpiry("not-a-jwt")
	assert.Error(t, err)
}
