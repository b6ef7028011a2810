// WorkTime - Pull Request Review Time Tracking Agent
// Copyright 2026 WorkTime contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tkhieu/worktime

package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tkhieu/worktime/internal/logging"
	"github.com/tkhieu/worktime/internal/store"
)

const metaTokenKey = "auth_token"

// expirySkew treats tokens about to expire as expired, so a request is not
// sent with a credential that dies in flight.
const expirySkew = 30 * time.Second

var (
	// ErrNoToken is returned when no bearer token is stored.
	ErrNoToken = errors.New("no bearer token")

	// ErrTokenExpired is returned when the stored JWT has expired.
	ErrTokenExpired = errors.New("bearer token expired")
)

// Authenticator is the credential capability the sync engine consumes.
type Authenticator interface {
	IsAuthenticated(ctx context.Context) bool
	// BearerToken may block while the credential is refreshed.
	BearerToken(ctx context.Context) (string, error)
	Clear(ctx context.Context) error
}

// TokenStore holds the bearer token handed over by the sign-in flow. The
// token is kept in memory and, when an encryption secret is configured,
// persisted encrypted in the meta namespace so it survives restarts.
//
// Tokens that parse as JWTs are checked against their exp claim. The
// signature is not verified; it belongs to the backend.
type TokenStore struct {
	meta      *store.Meta
	encryptor *TokenEncryptor
	parser    *jwt.Parser
	now       func() time.Time

	mu    sync.RWMutex
	token string
}

// NewTokenStore creates a token store. An empty secret keeps the token in
// memory only.
func NewTokenStore(meta *store.Meta, secret string) (*TokenStore, error) {
	s := &TokenStore{
		meta:   meta,
		parser: jwt.NewParser(),
		now:    time.Now,
	}
	if secret != "" {
		enc, err := NewTokenEncryptor(secret)
		if err != nil {
			return nil, err
		}
		s.encryptor = enc
	}
	return s, nil
}

// SetClock replaces the time source used for expiry checks.
func (s *TokenStore) SetClock(now func() time.Time) {
	s.now = now
}

// Persistent reports whether tokens survive a restart.
func (s *TokenStore) Persistent() bool {
	return s.encryptor != nil && s.meta != nil
}

// Load restores a persisted token. A token that cannot be decrypted (the
// secret changed) is dropped.
func (s *TokenStore) Load(_ context.Context) error {
	if !s.Persistent() {
		logging.Warn().Msg("No auth encryption secret configured, bearer token will not survive restarts")
		return nil
	}

	raw, err := s.meta.Get(metaTokenKey)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load token: %w", err)
	}

	token, err := s.encryptor.Decrypt(string(raw))
	if err != nil {
		logging.Warn().Err(err).Msg("Dropping stored bearer token that cannot be decrypted")
		if derr := s.meta.Delete(metaTokenKey); derr != nil {
			return fmt.Errorf("drop token: %w", derr)
		}
		return nil
	}

	s.mu.Lock()
	s.token = token
	s.mu.Unlock()

	logging.Info().Str("token", MaskToken(token)).Msg("Bearer token restored")
	return nil
}

// Set stores a new bearer token.
func (s *TokenStore) Set(_ context.Context, token string) error {
	if token == "" {
		return ErrNoToken
	}
	if s.Persistent() {
		sealed, err := s.encryptor.Encrypt(token)
		if err != nil {
			return fmt.Errorf("encrypt token: %w", err)
		}
		if err := s.meta.Set(metaTokenKey, []byte(sealed)); err != nil {
			return fmt.Errorf("persist token: %w", err)
		}
	}

	s.mu.Lock()
	s.token = token
	s.mu.Unlock()

	logging.Info().Str("token", MaskToken(token)).Msg("Bearer token set")
	return nil
}

// Clear forgets the token, in memory and on disk.
func (s *TokenStore) Clear(_ context.Context) error {
	s.mu.Lock()
	had := s.token != ""
	s.token = ""
	s.mu.Unlock()

	if s.Persistent() {
		if err := s.meta.Delete(metaTokenKey); err != nil && !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("delete token: %w", err)
		}
	}
	if had {
		logging.Warn().Msg("Bearer token cleared")
	}
	return nil
}

// BearerToken returns the token when it is present and not expired.
func (s *TokenStore) BearerToken(_ context.Context) (string, error) {
	s.mu.RLock()
	token := s.token
	s.mu.RUnlock()

	if token == "" {
		return "", ErrNoToken
	}
	if exp, ok := s.expiry(token); ok && !s.now().Add(expirySkew).Before(exp) {
		return "", ErrTokenExpired
	}
	return token, nil
}

// IsAuthenticated reports whether BearerToken would succeed.
func (s *TokenStore) IsAuthenticated(ctx context.Context) bool {
	_, err := s.BearerToken(ctx)
	return err == nil
}

// ExpiresAt returns the exp claim of the current token, if it has one.
func (s *TokenStore) ExpiresAt() (time.Time, bool) {
	s.mu.RLock()
	token := s.token
	s.mu.RUnlock()
	if token == "" {
		return time.Time{}, false
	}
	return s.expiry(token)
}

// expiry reads the exp claim without verifying the signature. Opaque
// tokens have no expiry.
func (s *TokenStore) expiry(token string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := s.parser.ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
