package grant

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/financekit/internal/common"
)

func newKey(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return pub, priv
}

func decodeSegment(t *testing.T, seg string) map[string]any {
	t.Helper()
	raw, err := base64.RawURLEncoding.DecodeString(seg)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	return m
}

var fixedNow = time.Unix(1_700_000_000, 0)

func clock(ts time.Time) func() time.Time { return func() time.Time { return ts } }

func TestMint_HeaderAndPayload(t *testing.T) {
	pub, priv := newKey(t)
	claims := NewClaims("1", []string{common.ScopeReceiptIngest}, nil, fixedNow, 120*time.Second, 5*time.Second)

	tok, err := Mint("device-42", priv, claims)
	require.NoError(t, err)

	parts := strings.Split(tok, ".")
	require.Len(t, parts, 3)
	for _, p := range parts {
		assert.NotContains(t, p, "=", "segments must be unpadded base64url")
	}

	header := decodeSegment(t, parts[0])
	assert.Equal(t, map[string]any{"alg": "EdDSA", "typ": "JWT", "kid": "device-42"}, header)

	payload := decodeSegment(t, parts[1])
	assert.Equal(t, "1", payload["sub"])
	assert.Equal(t, []any{"receipt:ingest"}, payload["scope"])
	assert.EqualValues(t, fixedNow.Unix(), payload["iat"])
	assert.EqualValues(t, fixedNow.Unix()-5, payload["nbf"])
	assert.EqualValues(t, fixedNow.Unix()+120, payload["exp"])
	assert.NotEmpty(t, payload["jti"])
	assert.NotContains(t, payload, "targets")
	assert.NotContains(t, payload, "iss")

	sig, err := base64.RawURLEncoding.DecodeString(parts[2])
	require.NoError(t, err)
	assert.True(t, ed25519.Verify(pub, []byte(parts[0]+"."+parts[1]), sig))
}

func TestMint_TargetsAndIssuer(t *testing.T) {
	_, priv := newKey(t)
	claims := NewClaims("1", []string{common.ScopeReceiptDecrypt}, []int64{7, 9}, fixedNow, time.Minute, 0)
	claims.Issuer = "device-42"

	tok, err := Mint("device-42", priv, claims)
	require.NoError(t, err)

	payload := decodeSegment(t, strings.Split(tok, ".")[1])
	assert.Equal(t, []any{float64(7), float64(9)}, payload["targets"])
	assert.Equal(t, "device-42", payload["iss"])
}

func TestMint_UniqueJTI(t *testing.T) {
	a := NewClaims("1", []string{"s"}, nil, fixedNow, time.Minute, 0)
	b := NewClaims("1", []string{"s"}, nil, fixedNow, time.Minute, 0)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestMint_Rejects(t *testing.T) {
	_, priv := newKey(t)
	valid := NewClaims("1", []string{"s"}, nil, fixedNow, time.Minute, 0)

	_, err := Mint("", priv, valid)
	require.ErrorIs(t, err, ErrInvalidSigner)

	_, err = Mint("dev", ed25519.PrivateKey([]byte("short")), valid)
	require.ErrorIs(t, err, ErrInvalidSigner)

	noSub := valid
	noSub.Subject = ""
	_, err = Mint("dev", priv, noSub)
	require.ErrorIs(t, err, ErrInvalidClaims)

	noScope := valid
	noScope.Scope = nil
	_, err = Mint("dev", priv, noScope)
	require.ErrorIs(t, err, ErrInvalidClaims)

	tooLong := NewClaims("1", []string{"s"}, nil, fixedNow, MaxTTL+time.Second, 0)
	_, err = Mint("dev", priv, tooLong)
	require.ErrorIs(t, err, ErrInvalidClaims)

	inverted := valid
	inverted.ExpiresAt = jwt.NewNumericDate(fixedNow.Add(-time.Minute))
	_, err = Mint("dev", priv, inverted)
	require.ErrorIs(t, err, ErrInvalidClaims)
}

func TestVerify(t *testing.T) {
	pub, priv := newKey(t)
	otherPub, _ := newKey(t)

	claims := NewClaims("1", []string{common.ScopeReceiptDecrypt}, []int64{3, 4}, fixedNow, 120*time.Second, 5*time.Second)
	tok, err := Mint("device-42", priv, claims)
	require.NoError(t, err)

	t.Run("valid", func(t *testing.T) {
		got, err := Verify(tok, pub, WithClock(clock(fixedNow)),
			RequireScope(common.ScopeReceiptDecrypt), RequireTargets(3))
		require.NoError(t, err)
		assert.Equal(t, claims.ID, got.ID)
		assert.Equal(t, []int64{3, 4}, got.Targets)
	})

	t.Run("within nbf skew", func(t *testing.T) {
		_, err := Verify(tok, pub, WithClock(clock(fixedNow.Add(-5*time.Second))))
		require.NoError(t, err)
	})

	t.Run("not yet valid", func(t *testing.T) {
		_, err := Verify(tok, pub, WithClock(clock(fixedNow.Add(-6*time.Second))))
		require.ErrorIs(t, err, jwt.ErrTokenNotValidYet)
	})

	t.Run("expired at exp", func(t *testing.T) {
		_, err := Verify(tok, pub, WithClock(clock(fixedNow.Add(120*time.Second))))
		require.ErrorIs(t, err, jwt.ErrTokenExpired)
	})

	t.Run("wrong key", func(t *testing.T) {
		_, err := Verify(tok, otherPub, WithClock(clock(fixedNow)))
		require.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)
	})

	t.Run("tampered payload", func(t *testing.T) {
		parts := strings.Split(tok, ".")
		forged := NewClaims("2", []string{common.ScopeReceiptDecrypt}, nil, fixedNow, time.Minute, 0)
		raw, err := json.Marshal(forged)
		require.NoError(t, err)
		parts[1] = base64.RawURLEncoding.EncodeToString(raw)
		_, err = Verify(strings.Join(parts, "."), pub, WithClock(clock(fixedNow)))
		require.Error(t, err)
	})

	t.Run("missing scope", func(t *testing.T) {
		_, err := Verify(tok, pub, WithClock(clock(fixedNow)), RequireScope(common.ScopeReceiptIngest))
		require.ErrorIs(t, err, ErrScopeMissing)
	})

	t.Run("target outside grant", func(t *testing.T) {
		_, err := Verify(tok, pub, WithClock(clock(fixedNow)), RequireTargets(3, 5))
		require.ErrorIs(t, err, ErrTargetNotAllowed)
	})

	t.Run("other algorithm rejected", func(t *testing.T) {
		hs := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
		s, err := hs.SignedString([]byte("secret"))
		require.NoError(t, err)
		_, err = Verify(s, pub, WithClock(clock(fixedNow)))
		require.Error(t, err)
	})
}

func TestVerify_RejectsAnySingleBitFlip(t *testing.T) {
	pub, priv := newKey(t)
	tok, err := Mint("device-42", priv, NewClaims("alice", []string{common.ScopeReceiptIngest}, []int64{42}, fixedNow, 120*time.Second, 5*time.Second))
	require.NoError(t, err)
	_, err = Verify(tok, pub, WithClock(clock(fixedNow)))
	require.NoError(t, err)

	for i, name := range []string{"header", "payload", "signature"} {
		t.Run(name, func(t *testing.T) {
			parts := strings.Split(tok, ".")
			raw, err := base64.RawURLEncoding.DecodeString(parts[i])
			require.NoError(t, err)

			for bit := 0; bit < len(raw)*8; bit++ {
				mutated := append([]byte(nil), raw...)
				mutated[bit/8] ^= 1 << (bit % 8)

				forged := append([]string(nil), parts...)
				forged[i] = base64.RawURLEncoding.EncodeToString(mutated)
				_, err := Verify(strings.Join(forged, "."), pub, WithClock(clock(fixedNow)))
				require.Error(t, err, "bit %d accepted", bit)
			}
		})
	}
}

func TestVerify_IngestGrantExpiresAfterTwoMinutes(t *testing.T) {
	pub, priv := newKey(t)
	claims := NewClaims("alice", []string{"receipt:ingest"}, []int64{42}, fixedNow, 120*time.Second, 5*time.Second)
	require.Equal(t, claims.IssuedAt.Unix()+120, claims.ExpiresAt.Unix())

	tok, err := Mint("device-42", priv, claims)
	require.NoError(t, err)

	tests := []struct {
		name    string
		after   time.Duration
		wantErr error
	}{
		{name: "fresh", after: 0},
		{name: "just before exp", after: 119 * time.Second},
		{name: "130 seconds later", after: 130 * time.Second, wantErr: jwt.ErrTokenExpired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Verify(tok, pub, WithClock(clock(fixedNow.Add(tt.after))),
				RequireScope("receipt:ingest"), RequireTargets(42))
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, []int64{42}, got.Targets)
		})
	}
}

func TestKeyID(t *testing.T) {
	_, priv := newKey(t)
	tok, err := Mint("device-42", priv, NewClaims("1", []string{"s"}, nil, fixedNow, time.Minute, 0))
	require.NoError(t, err)

	kid, err := KeyID(tok)
	require.NoError(t, err)
	assert.Equal(t, "device-42", kid)

	_, err = KeyID("garbage")
	require.Error(t, err)
}

func TestClaims_Covers(t *testing.T) {
	open := Claims{}
	assert.True(t, open.Covers(1, 2))

	scoped := Claims{Targets: []int64{1, 2}}
	assert.True(t, scoped.Covers(1))
	assert.True(t, scoped.Covers(1, 2))
	assert.False(t, scoped.Covers(3))
}
