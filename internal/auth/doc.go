// WorkTime - Pull Request Review Time Tracking Agent
// Copyright 2026 WorkTime contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tkhieu/worktime

/*
Package auth holds the bearer credential the agent presents to the backend.

The sign-in flow runs elsewhere (the browser extension); it hands the
agent a token through PUT /v1/auth/token. TokenStore keeps that token and
answers the two questions the sync orchestrator asks: is there a usable
credential, and what is it.

Key Components:

  - Authenticator: the interface the orchestrator depends on
  - TokenStore: in-memory token with optional encrypted persistence
  - TokenEncryptor: AES-256-GCM with an HKDF-SHA256 derived key

Expiry:

When the token is a JWT, its exp claim is read without verifying the
signature (the backend does that) and IsAuthenticated reports false once it
has passed. Opaque tokens never expire locally; the backend's 401 is the
only signal.

Persistence:

With an encryption secret configured the token is sealed and written to the
store's meta namespace, so a restart does not sign the user out. Without a
secret the token lives in memory only. A stored token that no longer
decrypts (the secret changed) is dropped on Load.

Usage Example:

	tokens, err := auth.NewTokenStore(db.Meta, cfg.Auth.EncryptionSecret)
	if err != nil {
	    return err
	}
	if err := tokens.Load(ctx); err != nil {
	    logging.Warn().Err(err).Msg("Stored token could not be restored")
	}
	client := backend.NewClient(&cfg.Backend, tokens)

Thread Safety:

TokenStore is safe for concurrent use.
*/
package auth
