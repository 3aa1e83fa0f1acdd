// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"crypto"
	_ "crypto/sha256" // register the hash implementations used by hashForAlg
	_ "crypto/sha512"
	"encoding/base64"
	"fmt"
)

// Alg represents asymmetric (and HMAC) signing algorithms
type Alg string

// JOSE signing algorithm values as defined by RFC 7518.
// See: https://tools.ietf.org/html/rfc7518#section-3.1
const (
	RS256 Alg = "RS256" // RSASSA-PKCS-v1.5 using SHA-256
	RS384 Alg = "RS384" // RSASSA-PKCS-v1.5 using SHA-384
	RS512 Alg = "RS512" // RSASSA-PKCS-v1.5 using SHA-512
	ES256 Alg = "ES256" // ECDSA using P-256 and SHA-256
	ES384 Alg = "ES384" // ECDSA using P-384 and SHA-384
	ES512 Alg = "ES512" // ECDSA using P-521 and SHA-512
	PS256 Alg = "PS256" // RSASSA-PSS using SHA256 and MGF1-SHA256
	PS384 Alg = "PS384" // RSASSA-PSS using SHA384 and MGF1-SHA384
	PS512 Alg = "PS512" // RSASSA-PSS using SHA512 and MGF1-SHA512
	EdDSA Alg = "EdDSA" // Ed25519 using SHA-512
	HS256 Alg = "HS256" // HMAC using SHA-256
	HS384 Alg = "HS384" // HMAC using SHA-384
	HS512 Alg = "HS512" // HMAC using SHA-512
)

var supportedAlgorithms = map[Alg]crypto.Hash{
	RS256: crypto.SHA256,
	RS384: crypto.SHA384,
	RS512: crypto.SHA512,
	ES256: crypto.SHA256,
	ES384: crypto.SHA384,
	ES512: crypto.SHA512,
	PS256: crypto.SHA256,
	PS384: crypto.SHA384,
	PS512: crypto.SHA512,
	EdDSA: crypto.SHA512,
	HS256: crypto.SHA256,
	HS384: crypto.SHA384,
	HS512: crypto.SHA512,
}

func isSupportedAlg(alg string) bool {
	_, ok := supportedAlgorithms[Alg(alg)]
	return ok
}

// hashForAlg returns the hash function used by the alg
func hashForAlg(alg string) (crypto.Hash, error) {
	h, ok := supportedAlgorithms[Alg(alg)]
	if !ok {
		return 0, fmt.Errorf("%q: %w", alg, ErrUnsupportedAlg)
	}
	return h, nil
}

// leftHalfHash computes the at_hash/c_hash/s_hash value for v: the base64url
// encoding of the left-most half of the hash of v, using the hash function of
// the JOSE header alg.  See:
// https://openid.net/specs/openid-connect-core-1_0.html#CodeIDToken
func leftHalfHash(alg, v string) (string, error) {
	h, err := hashForAlg(alg)
	if err != nil {
		return "", err
	}
	hasher := h.New()
	_, _ = hasher.Write([]byte(v))
	sum := hasher.Sum(nil)
	return base64.RawURLEncoding.EncodeToString(sum[:len(sum)/2]), nil
}
