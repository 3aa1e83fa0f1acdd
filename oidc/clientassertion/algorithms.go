// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package clientassertion

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"fmt"

	"github.com/go-jose/go-jose/v4"
)

type (
	// HSAlgorithm is an HMAC signature algorithm
	HSAlgorithm string
	// KeyAlgorithm is an asymmetric signature algorithm
	KeyAlgorithm string
)

// JOSE signing algorithm values as defined by RFC 7518.
// See: https://tools.ietf.org/html/rfc7518#section-3.1
const (
	HS256 HSAlgorithm = "HS256" // HMAC using SHA-256
	HS384 HSAlgorithm = "HS384" // HMAC using SHA-384
	HS512 HSAlgorithm = "HS512" // HMAC using SHA-512

	RS256 KeyAlgorithm = "RS256" // RSASSA-PKCS-v1.5 using SHA-256
	RS384 KeyAlgorithm = "RS384" // RSASSA-PKCS-v1.5 using SHA-384
	RS512 KeyAlgorithm = "RS512" // RSASSA-PKCS-v1.5 using SHA-512
	PS256 KeyAlgorithm = "PS256" // RSASSA-PSS using SHA256 and MGF1-SHA256
	PS384 KeyAlgorithm = "PS384" // RSASSA-PSS using SHA384 and MGF1-SHA384
	PS512 KeyAlgorithm = "PS512" // RSASSA-PSS using SHA512 and MGF1-SHA512
	ES256 KeyAlgorithm = "ES256" // ECDSA using P-256 and SHA-256
	ES384 KeyAlgorithm = "ES384" // ECDSA using P-384 and SHA-384
	ES512 KeyAlgorithm = "ES512" // ECDSA using P-521 and SHA-512
	EdDSA KeyAlgorithm = "EdDSA" // Ed25519
)

// Validate checks that the secret is a supported algorithm and that it's
// the proper length for the HSAlgorithm:
//   - HS256: >= 32 bytes
//   - HS384: >= 48 bytes
//   - HS512: >= 64 bytes
func (a HSAlgorithm) Validate(secret string) error {
	const op = "HSAlgorithm.Validate"
	if secret == "" {
		return fmt.Errorf("%s: %w: empty", op, ErrInvalidSecretLength)
	}
	var expectLen int
	switch a {
	case HS256:
		expectLen = 32
	case HS384:
		expectLen = 48
	case HS512:
		expectLen = 64
	default:
		return fmt.Errorf("%s: %w %q for client secret", op, ErrUnsupportedAlgorithm, a)
	}
	if len(secret) < expectLen {
		return fmt.Errorf("%s: %w: %q must be %d bytes long", op, ErrInvalidSecretLength, a, expectLen)
	}
	return nil
}

// Validate checks that the key is a private key of a type which can be used
// with the KeyAlgorithm.  A *jose.JSONWebKey is validated using its Key.
func (a KeyAlgorithm) Validate(key any) error {
	const op = "KeyAlgorithm.Validate"
	if jwk, ok := key.(*jose.JSONWebKey); ok && jwk != nil {
		key = jwk.Key
	}
	switch k := key.(type) {
	case nil:
		return fmt.Errorf("%s: %w", op, ErrNilPrivateKey)
	case *rsa.PrivateKey:
		if k == nil {
			return fmt.Errorf("%s: %w", op, ErrNilPrivateKey)
		}
		switch a {
		case RS256, RS384, RS512, PS256, PS384, PS512:
		default:
			return fmt.Errorf("%s: %w %q for RSA key", op, ErrUnsupportedAlgorithm, a)
		}
		if err := k.Validate(); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		return nil
	case *ecdsa.PrivateKey:
		if k == nil {
			return fmt.Errorf("%s: %w", op, ErrNilPrivateKey)
		}
		switch a {
		case ES256, ES384, ES512:
			return nil
		default:
			return fmt.Errorf("%s: %w %q for ECDSA key", op, ErrUnsupportedAlgorithm, a)
		}
	case ed25519.PrivateKey:
		if a != EdDSA {
			return fmt.Errorf("%s: %w %q for Ed25519 key", op, ErrUnsupportedAlgorithm, a)
		}
		return nil
	default:
		return fmt.Errorf("%s: %w: key type %T", op, ErrUnsupportedKey, key)
	}
}
