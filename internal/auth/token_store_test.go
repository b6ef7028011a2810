// WorkTime - Pull Request Review Time Tracking Agent
// Copyright 2026 WorkTime contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tkhieu/worktime

package auth

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tkhieu/worktime/internal/store"
)

const testSecret = "a-long-enough-secret-for-token-encryption"

func openStore(t *testing.T, dir string) *store.DB {
	t.Helper()
	cfg := store.DefaultConfig(dir)
	cfg.Compression = false
	cfg.MemTableSize = 1 << 20
	cfg.ValueLogFileSize = 1 << 20
	db, err := store.Open(cfg)
	require.NoError(t, err)
	return db
}

func signedJWT(t *testing.T, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "reviewer-1",
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	s, err := tok.SignedString([]byte("backend-only-key"))
	require.NoError(t, err)
	return s
}

func TestTokenEncryptor_RoundTrip(t *testing.T) {
	enc, err := NewTokenEncryptor(testSecret)
	require.NoError(t, err)

	a, err := enc.Encrypt("bearer-value")
	require.NoError(t, err)
	b, err := enc.Encrypt("bearer-value")
	require.NoError(t, err)
	assert.NotEqual(t, a, b, "nonces must differ")

	plain, err := enc.Decrypt(a)
	require.NoError(t, err)
	assert.Equal(t, "bearer-value", plain)
}

func TestTokenEncryptor_Errors(t *testing.T) {
	_, err := NewTokenEncryptor("")
	assert.ErrorIs(t, err, ErrEncryptionKeyMissing)

	enc, err := NewTokenEncryptor(testSecret)
	require.NoError(t, err)

	_, err = enc.Encrypt("")
	assert.ErrorIs(t, err, ErrEmptyPlaintext)

	_, err = enc.Decrypt("not base64!")
	assert.ErrorIs(t, err, ErrInvalidCiphertext)

	_, err = enc.Decrypt("c2hvcnQ=")
	assert.ErrorIs(t, err, ErrInvalidCiphertext)

	sealed, err := enc.Encrypt("bearer-value")
	require.NoError(t, err)
	other, err := NewTokenEncryptor("another-secret")
	require.NoError(t, err)
	_, err = other.Decrypt(sealed)
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestMaskToken(t *testing.T) {
	assert.Equal(t, "", MaskToken(""))
	assert.Equal(t, "****", MaskToken("abcd"))
	assert.Equal(t, "****...wxyz", MaskToken("abcdefwxyz"))
}

func TestTokenStore_OpaqueToken(t *testing.T) {
	ctx := context.Background()
	s, err := NewTokenStore(nil, "")
	require.NoError(t, err)
	require.NoError(t, s.Load(ctx))

	assert.False(t, s.IsAuthenticated(ctx))
	_, err = s.BearerToken(ctx)
	assert.ErrorIs(t, err, ErrNoToken)

	require.NoError(t, s.Set(ctx, "opaque-token"))
	assert.True(t, s.IsAuthenticated(ctx))
	token, err := s.BearerToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "opaque-token", token)
	_, hasExp := s.ExpiresAt()
	assert.False(t, hasExp)

	require.NoError(t, s.Clear(ctx))
	assert.False(t, s.IsAuthenticated(ctx))
	assert.ErrorIs(t, s.Set(ctx, ""), ErrNoToken)
}

func TestTokenStore_JWTExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	s, err := NewTokenStore(nil, "")
	require.NoError(t, err)
	s.SetClock(func() time.Time { return now })

	require.NoError(t, s.Set(ctx, signedJWT(t, now.Add(time.Hour))))
	assert.True(t, s.IsAuthenticated(ctx))
	exp, ok := s.ExpiresAt()
	require.True(t, ok)
	assert.True(t, exp.Equal(now.Add(time.Hour)))

	require.NoError(t, s.Set(ctx, signedJWT(t, now.Add(10*time.Second))))
	_, err = s.BearerToken(ctx)
	assert.ErrorIs(t, err, ErrTokenExpired, "tokens inside the skew count as expired")

	require.NoError(t, s.Set(ctx, signedJWT(t, now.Add(-time.Minute))))
	assert.False(t, s.IsAuthenticated(ctx))
}

func TestTokenStore_PersistsEncrypted(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	db := openStore(t, dir)
	s, err := NewTokenStore(db.Meta, testSecret)
	require.NoError(t, err)
	require.True(t, s.Persistent())
	require.NoError(t, s.Load(ctx))
	require.NoError(t, s.Set(ctx, "opaque-token-123"))

	raw, err := db.Meta.Get(metaTokenKey)
	require.NoError(t, err)
	assert.False(t, strings.Contains(string(raw), "opaque-token-123"), "token must not be stored in clear")
	require.NoError(t, db.Close())

	db2 := openStore(t, dir)
	defer db2.Close()
	restored, err := NewTokenStore(db2.Meta, testSecret)
	require.NoError(t, err)
	require.NoError(t, restored.Load(ctx))
	token, err := restored.BearerToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "opaque-token-123", token)

	require.NoError(t, restored.Clear(ctx))
	_, err = db2.Meta.Get(metaTokenKey)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestTokenStore_DropsUndecryptableToken(t *testing.T) {
	ctx := context.Background()
	db := openStore(t, t.TempDir())
	defer db.Close()

	first, err := NewTokenStore(db.Meta, testSecret)
	require.NoError(t, err)
	require.NoError(t, first.Set(ctx, "opaque-token"))

	rotated, err := NewTokenStore(db.Meta, "rotated-secret")
	require.NoError(t, err)
	require.NoError(t, rotated.Load(ctx))
	assert.False(t, rotated.IsAuthenticated(ctx))

	_, err = db.Meta.Get(metaTokenKey)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

var _ Authenticator = (*TokenStore)(nil)
