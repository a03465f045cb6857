package storage

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/financekit/internal/logging"
)

// failingRepo fails every operation, as a broken or locked database would.
type failingRepo struct{ err error }

func (f failingRepo) Get(context.Context, string) ([]byte, error)     { return nil, f.err }
func (f failingRepo) Set(context.Context, string, []byte) error       { return f.err }
func (f failingRepo) Delete(context.Context, string) error            { return f.err }
func (f failingRepo) List(context.Context) (map[string][]byte, error) { return nil, f.err }
func (f failingRepo) Clear(context.Context) error                     { return f.err }

func bufferLogger() (logging.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(&buf, nil))), &buf
}

func TestSafeStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewSafeStore(NewSQLiteRepository(newTestDB(t)), logging.NewNop(), "bulk")

	_, ok := s.Get(ctx, "k")
	assert.False(t, ok)

	assert.True(t, s.Set(ctx, "k", "v"))
	v, ok := s.Get(ctx, "k")
	assert.True(t, ok)
	assert.Equal(t, "v", v)

	assert.True(t, s.Remove(ctx, "k"))
	assert.True(t, s.Remove(ctx, "k"), "removing an absent key succeeds")
	_, ok = s.Get(ctx, "k")
	assert.False(t, ok)
}

func TestSafeStore_SwallowsFailures(t *testing.T) {
	ctx := context.Background()
	log, buf := bufferLogger()
	s := NewSafeStore(failingRepo{err: errors.New("database is locked")}, log, "secure")

	require.NotPanics(t, func() {
		_, ok := s.Get(ctx, "accessToken")
		assert.False(t, ok)
		assert.False(t, s.Set(ctx, "accessToken", "a"))
		assert.False(t, s.Remove(ctx, "accessToken"))
		assert.False(t, s.SetMany(ctx, map[string]string{"a": "1"}))
		assert.False(t, s.RemoveMany(ctx, "a", "b"))
		assert.Nil(t, s.Keys(ctx))
	})

	out := buf.String()
	assert.Contains(t, out, "level=WARN")
	assert.Contains(t, out, "tier=secure")
	assert.Contains(t, out, "database is locked")
	assert.NotContains(t, out, "value=")
}

func TestSafeStore_SetManyIsAtomic(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	s := NewSafeStore(NewSQLiteRepository(db), logging.NewNop(), "bulk")

	// A trigger makes the second insert fail; the first must not survive.
	_, err := db.Exec(`CREATE TRIGGER reject_b BEFORE INSERT ON kv_store
		WHEN NEW.key = 'b' BEGIN SELECT RAISE(ABORT, 'rejected'); END;`)
	require.NoError(t, err)

	assert.False(t, s.SetMany(ctx, map[string]string{"a": "1", "b": "2"}))
	_, ok := s.Get(ctx, "a")
	assert.False(t, ok)

	assert.True(t, s.SetMany(ctx, map[string]string{"a": "1", "c": "3"}))
	assert.Equal(t, []string{"a", "c"}, s.Keys(ctx))

	assert.True(t, s.RemoveMany(ctx, "a", "c"))
	assert.Empty(t, s.Keys(ctx))
}

func TestSafeStore_SealedTierBatch(t *testing.T) {
	ctx := context.Background()
	sealed, err := NewSealedRepository(ctx, NewSQLiteRepository(newTestDB(t)), []byte("s"))
	require.NoError(t, err)
	s := NewSafeStore(sealed, logging.NewNop(), "secure")

	require.True(t, s.SetMany(ctx, map[string]string{"accessToken": "a", "refreshToken": "r"}))
	a, _ := s.Get(ctx, "accessToken")
	r, _ := s.Get(ctx, "refreshToken")
	assert.Equal(t, "a", a)
	assert.Equal(t, "r", r)
	assert.Equal(t, []string{"accessToken", "refreshToken"}, s.Keys(ctx))
}

func TestJSONHelpers(t *testing.T) {
	ctx := context.Background()
	log := logging.NewNop()
	s := NewSafeStore(NewMemoryRepository(), log, "bulk")

	type payload struct {
		IDs []int64 `json:"ids"`
	}

	assert.Equal(t, payload{IDs: []int64{9}}, GetJSON(ctx, s, log, "p", payload{IDs: []int64{9}}))

	require.True(t, SetJSON(ctx, s, log, "p", payload{IDs: []int64{1, 2}}))
	assert.Equal(t, payload{IDs: []int64{1, 2}}, GetJSON(ctx, s, log, "p", payload{}))

	require.True(t, s.Set(ctx, "p", "{not json"))
	assert.Equal(t, payload{}, GetJSON(ctx, s, log, "p", payload{}))

	assert.False(t, SetJSON(ctx, s, log, "bad", func() {}))
}
