// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"testing"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/stretchr/testify/require"
)

// TestGenerateKeys generates an ECDSA P-256 key pair, PEM encoded.
func TestGenerateKeys(t *testing.T) (pub, priv string) {
	t.Helper()
	require := require.New(t)
	k, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(err)

	privDER, err := x509.MarshalECPrivateKey(k)
	require.NoError(err)
	pubDER, err := x509.MarshalPKIXPublicKey(k.Public())
	require.NoError(err)
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})),
		string(pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: privDER}))
}

// TestParseECPrivateKey parses a PEM encoded ECDSA private key.
func TestParseECPrivateKey(t *testing.T, ecdsaPrivKeyPEM string) *ecdsa.PrivateKey {
	t.Helper()
	block, _ := pem.Decode([]byte(ecdsaPrivKeyPEM))
	require.NotNil(t, block, "unable to decode private key pem")
	key, err := x509.ParseECPrivateKey(block.Bytes)
	require.NoError(t, err)
	return key
}

// TestClientJWKS returns a private JWKS with a single ES256 signing key, as
// used by a private_key_jwt client (see WithJWKS), and that key.
func TestClientJWKS(t *testing.T, keyID string) (*jose.JSONWebKeySet, *ecdsa.PrivateKey) {
	t.Helper()
	k, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	return &jose.JSONWebKeySet{Keys: []jose.JSONWebKey{
		{Key: k, KeyID: keyID, Algorithm: string(ES256), Use: "sig"},
	}}, k
}

// TestSignJWTWithKey signs the claims and private claims with the key.  A
// non-empty keyID is set as the "kid" header.
func TestSignJWTWithKey(t *testing.T, key jose.SigningKey, keyID string, claims jwt.Claims, privateClaims interface{}) string {
	t.Helper()
	require := require.New(t)
	opts := (&jose.SignerOptions{}).WithType("JWT")
	if keyID != "" {
		opts = opts.WithHeader(jose.HeaderKey("kid"), keyID)
	}
	sig, err := jose.NewSigner(key, opts)
	require.NoError(err)
	raw, err := jwt.Signed(sig).Claims(claims).Claims(privateClaims).Serialize()
	require.NoError(err)
	return raw
}
