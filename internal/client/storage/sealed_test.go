package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealedRepository_ValuesAreEncryptedAtRest(t *testing.T) {
	ctx := context.Background()
	inner := NewSQLiteRepository(newTestDB(t))

	r, err := NewSealedRepository(ctx, inner, []byte("device-secret"))
	require.NoError(t, err)

	require.NoError(t, r.Set(ctx, "refreshToken", []byte("r-123")))

	raw, err := inner.Get(ctx, "refreshToken")
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "r-123")

	v, err := r.Get(ctx, "refreshToken")
	require.NoError(t, err)
	assert.Equal(t, []byte("r-123"), v)

	missing, err := r.Get(ctx, "absent")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSealedRepository_ReopenWithSameSecret(t *testing.T) {
	ctx := context.Background()
	inner := NewMemoryRepository()

	r1, err := NewSealedRepository(ctx, inner, []byte("device-secret"))
	require.NoError(t, err)
	require.NoError(t, r1.Set(ctx, "k", []byte("v")))

	r2, err := NewSealedRepository(ctx, inner, []byte("device-secret"))
	require.NoError(t, err)
	v, err := r2.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), v)

	_, err = NewSealedRepository(ctx, inner, []byte("other"))
	require.ErrorIs(t, err, ErrWrongSecret)
}

func TestSealedRepository_WrongSecretLeavesDataIntact(t *testing.T) {
	ctx := context.Background()
	inner := NewSQLiteRepository(newTestDB(t))

	r, err := NewSealedRepository(ctx, inner, []byte("correct"))
	require.NoError(t, err)
	require.NoError(t, r.Set(ctx, "privB64", []byte("seed")))
	before, err := inner.List(ctx)
	require.NoError(t, err)

	_, err = NewSealedRepository(ctx, inner, []byte("typo"))
	require.ErrorIs(t, err, ErrWrongSecret)

	after, err := inner.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	r, err = NewSealedRepository(ctx, inner, []byte("correct"))
	require.NoError(t, err)
	v, err := r.Get(ctx, "privB64")
	require.NoError(t, err)
	assert.Equal(t, []byte("seed"), v)
}

func TestSealedRepository_StoreWithoutVerifier(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		secret  string
		wantErr error
	}{
		{name: "matching secret records verifier", secret: "correct"},
		{name: "other secret is rejected", secret: "typo", wantErr: ErrWrongSecret},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inner := NewMemoryRepository()
			r, err := NewSealedRepository(ctx, inner, []byte("correct"))
			require.NoError(t, err)
			require.NoError(t, r.Set(ctx, "k", []byte("v")))
			require.NoError(t, inner.Delete(ctx, VerifierKey))

			_, err = NewSealedRepository(ctx, inner, []byte(tt.secret))
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				v, _ := inner.Get(ctx, VerifierKey)
				assert.Nil(t, v)
				return
			}
			require.NoError(t, err)
			v, err := inner.Get(ctx, VerifierKey)
			require.NoError(t, err)
			assert.NotEmpty(t, v)
		})
	}
}

func TestSealedRepository_ListAndClearKeepReservedKeys(t *testing.T) {
	ctx := context.Background()
	inner := NewSQLiteRepository(newTestDB(t))

	r, err := NewSealedRepository(ctx, inner, []byte("s"))
	require.NoError(t, err)
	require.NoError(t, r.Set(ctx, "a", []byte("1")))
	require.NoError(t, r.Set(ctx, "b", []byte("2")))

	all, err := r.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string][]byte{"a": []byte("1"), "b": []byte("2")}, all)

	require.NoError(t, r.Clear(ctx))
	all, err = r.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	salt, err := inner.Get(ctx, SaltKey)
	require.NoError(t, err)
	assert.NotEmpty(t, salt)
	verifier, err := inner.Get(ctx, VerifierKey)
	require.NoError(t, err)
	assert.NotEmpty(t, verifier)

	require.Error(t, r.Set(ctx, SaltKey, []byte("x")))
	require.Error(t, r.Set(ctx, VerifierKey, []byte("x")))
	require.NoError(t, r.Delete(ctx, SaltKey))
	salt, err = inner.Get(ctx, SaltKey)
	require.NoError(t, err)
	assert.NotEmpty(t, salt)
}

func TestNewSealedRepository_EmptySecret(t *testing.T) {
	_, err := NewSealedRepository(context.Background(), NewMemoryRepository(), nil)
	require.ErrorIs(t, err, ErrEmptySecret)
}
