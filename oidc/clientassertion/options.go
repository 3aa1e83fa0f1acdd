// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package clientassertion

import (
	"fmt"
	"time"

	"github.com/go-jose/go-jose/v4"
)

// Option configures the JWT
type Option func(*JWT) error

// WithClientSecret sets a secret and algorithm to sign the JWT with
// (client_secret_jwt).  The secret must be long enough for the algorithm.
func WithClientSecret(secret string, alg HSAlgorithm) Option {
	const op = "WithClientSecret"
	return func(j *JWT) error {
		if err := alg.Validate(secret); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		j.secret = secret
		j.alg = jose.SignatureAlgorithm(alg)
		return nil
	}
}

// WithKey sets a private key and algorithm to sign the JWT with
// (private_key_jwt).  Supported keys are *rsa.PrivateKey,
// *ecdsa.PrivateKey, ed25519.PrivateKey and a *jose.JSONWebKey holding one of
// them.  A *jose.JSONWebKey with a KeyID sets the "kid" header as well.
func WithKey(key any, alg KeyAlgorithm) Option {
	const op = "WithKey"
	return func(j *JWT) error {
		if err := alg.Validate(key); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		if jwk, ok := key.(*jose.JSONWebKey); ok {
			if jwk.KeyID != "" {
				j.headers["kid"] = jwk.KeyID
			}
			key = jwk.Key
		}
		j.key = key
		j.alg = jose.SignatureAlgorithm(alg)
		return nil
	}
}

// WithKeyID sets the "kid" header that OIDC providers use to look up the
// public key to check the signed JWT
func WithKeyID(keyID string) Option {
	return func(j *JWT) error {
		j.headers["kid"] = keyID
		return nil
	}
}

// WithHeaders sets extra JWT headers
func WithHeaders(h map[string]string) Option {
	return func(j *JWT) error {
		for k, v := range h {
			j.headers[k] = v
		}
		return nil
	}
}

// WithLifetime sets how long the JWT is valid for.  The default is 5 minutes.
func WithLifetime(d time.Duration) Option {
	const op = "WithLifetime"
	return func(j *JWT) error {
		if d <= 0 {
			return fmt.Errorf("%s: %w", op, ErrInvalidLifetime)
		}
		j.lifetime = d
		return nil
	}
}

// WithNow sets the clock used for the "iat", "nbf" and "exp" claims.  A nil
// func is ignored.
func WithNow(now func() time.Time) Option {
	return func(j *JWT) error {
		if now != nil {
			j.now = now
		}
		return nil
	}
}
