// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package jwt provides the key sets a relying party uses to verify the
// signatures of JWTs issued by its provider: id_tokens, JWT secured
// authorization responses and signed userinfo responses.
package jwt

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/go-jose/go-jose/v4"

	sdkhttp "github.com/hashicorp/cap-rp/sdk/http"
)

// ErrNoValidKey is returned when no key in the set verifies a signature.
var ErrNoValidKey = errors.New("no known key successfully validated the token signature")

// KeySet represents a set of keys that can be used to verify the signatures
// of JWTs. A KeySet is expected to be backed by a set of local or remote keys.
// It's compatible with github.com/coreos/go-oidc/v3/oidc.KeySet.
//
// Implementations are asked for every verification; a remote KeySet is
// responsible for refreshing its keys when the provider rotates them.
type KeySet interface {
	// VerifySignature parses the given JWT, verifies its signature, and
	// returns the raw payload.
	VerifySignature(ctx context.Context, token string) (payload []byte, err error)
}

// Claims verifies the token's signature with the KeySet and returns its
// claims.
func Claims(ctx context.Context, ks KeySet, token string) (map[string]interface{}, error) {
	payload, err := ks.VerifySignature(ctx, token)
	if err != nil {
		return nil, err
	}
	claims := map[string]interface{}{}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, fmt.Errorf("unable to unmarshal token claims: %w", err)
	}
	return claims, nil
}

// OIDCDiscoveryKeySet verifies JWT signatures using keys obtained by the OIDC
// discovery mechanism.
type OIDCDiscoveryKeySet struct {
	provider *oidc.Provider
}

// NewOIDCDiscoveryKeySet returns a KeySet that verifies JWT signatures using
// keys from the JSON Web Key Set (JWKS) published in the discovery document at
// the given discoveryURL. The client used to obtain the remote keys will
// verify server certificates using the root certificates provided by
// discoveryCAPEM.
func NewOIDCDiscoveryKeySet(ctx context.Context, discoveryURL string, discoveryCAPEM string) (KeySet, error) {
	const op = "NewOIDCDiscoveryKeySet"
	if discoveryURL == "" {
		return nil, fmt.Errorf("%s: discoveryURL must not be empty", op)
	}
	caCtx, err := createCAContext(ctx, discoveryCAPEM)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	provider, err := oidc.NewProvider(caCtx, discoveryURL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &OIDCDiscoveryKeySet{
		provider: provider,
	}, nil
}

// VerifySignature parses the given JWT, verifies its signature using
// discovered JWKS keys, and returns the payload.
func (ks *OIDCDiscoveryKeySet) VerifySignature(ctx context.Context, token string) ([]byte, error) {
	// Verify only the signature
	verifier := ks.provider.Verifier(&oidc.Config{
		SkipClientIDCheck: true,
		SkipExpiryCheck:   true,
		SkipIssuerCheck:   true,
		// any alg the provider publishes
		SupportedSigningAlgs: allAlgs,
	})
	idToken, err := verifier.Verify(ctx, token)
	if err != nil {
		return nil, err
	}
	var payload json.RawMessage
	if err := idToken.Claims(&payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// NewJSONWebKeySet returns a KeySet that verifies JWT signatures using keys
// from the JSON Web Key Set (JWKS) at the given jwksURL. The client used to
// obtain the remote JWKS will verify server certificates using the root
// certificates provided by jwksCAPEM.  Keys are refreshed when a token is
// signed by an unknown key.
func NewJSONWebKeySet(ctx context.Context, jwksURL string, jwksCAPEM string) (KeySet, error) {
	const op = "NewJSONWebKeySet"
	if jwksURL == "" {
		return nil, fmt.Errorf("%s: jwksURL must not be empty", op)
	}
	caCtx, err := createCAContext(ctx, jwksCAPEM)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return oidc.NewRemoteKeySet(caCtx, jwksURL), nil
}

// NewStaticKeySet returns a KeySet that verifies JWT signatures using
// PEM-encoded public keys. The given publicKeys must be of PEM-encoded x509
// certificate or PKIX public key forms.
func NewStaticKeySet(publicKeys []string) (KeySet, error) {
	const op = "NewStaticKeySet"
	parsed := make([]crypto.PublicKey, 0, len(publicKeys))
	for _, k := range publicKeys {
		key, err := ParsePublicKeyPEM([]byte(k))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		parsed = append(parsed, key)
	}
	return &oidc.StaticKeySet{PublicKeys: parsed}, nil
}

// JOSEKeySet verifies JWT signatures using an in-memory JSON Web Key Set.
type JOSEKeySet struct {
	keys jose.JSONWebKeySet
}

// NewJOSEKeySet returns a KeySet backed by the public keys of jwks.  Private
// keys in jwks are converted to their public counterpart.
func NewJOSEKeySet(jwks *jose.JSONWebKeySet) (KeySet, error) {
	const op = "NewJOSEKeySet"
	if jwks == nil || len(jwks.Keys) == 0 {
		return nil, fmt.Errorf("%s: key set is empty", op)
	}
	ks := &JOSEKeySet{}
	for _, k := range jwks.Keys {
		if !k.IsPublic() {
			k = k.Public()
		}
		if !k.Valid() {
			return nil, fmt.Errorf("%s: invalid key %q", op, k.KeyID)
		}
		ks.keys.Keys = append(ks.keys.Keys, k)
	}
	return ks, nil
}

// VerifySignature parses the given JWT, verifies its signature with the key
// matching its "kid" header (or every key when there's no kid), and returns
// the payload.
func (ks *JOSEKeySet) VerifySignature(_ context.Context, token string) ([]byte, error) {
	const op = "JOSEKeySet.VerifySignature"
	jws, err := jose.ParseSigned(token, allJOSEAlgs)
	if err != nil {
		return nil, fmt.Errorf("%s: malformed jwt: %w", op, err)
	}
	if len(jws.Signatures) != 1 {
		return nil, fmt.Errorf("%s: expected one signature, got %d", op, len(jws.Signatures))
	}
	candidates := ks.keys.Keys
	if kid := jws.Signatures[0].Header.KeyID; kid != "" {
		candidates = ks.keys.Key(kid)
	}
	for _, k := range candidates {
		if payload, err := jws.Verify(k); err == nil {
			return payload, nil
		}
	}
	return nil, fmt.Errorf("%s: %w", op, ErrNoValidKey)
}

// ParsePublicKeyPEM is used to parse RSA, ECDSA and Ed25519 public keys from
// PEMs.
func ParsePublicKeyPEM(data []byte) (crypto.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block != nil {
		var rawKey interface{}
		var err error
		if rawKey, err = x509.ParsePKIXPublicKey(block.Bytes); err != nil {
			if cert, err := x509.ParseCertificate(block.Bytes); err == nil {
				rawKey = cert.PublicKey
			} else {
				return nil, err
			}
		}

		switch k := rawKey.(type) {
		case *rsa.PublicKey:
			return k, nil
		case *ecdsa.PublicKey:
			return k, nil
		case ed25519.PublicKey:
			return k, nil
		}
	}

	return nil, errors.New("data does not contain any valid RSA, ECDSA, or ED25519 public keys")
}

// createCAContext returns a context with a custom TLS client that's configured
// with the root certificates from caPEM. If no certificates are configured,
// the original context is returned.
func createCAContext(ctx context.Context, caPEM string) (context.Context, error) {
	if caPEM == "" {
		return ctx, nil
	}
	client, err := sdkhttp.NewClient(caPEM)
	if err != nil {
		return nil, fmt.Errorf("could not parse CA PEM value successfully: %w", err)
	}
	return sdkhttp.ClientContext(ctx, client), nil
}

var allAlgs = []string{
	oidc.RS256, oidc.RS384, oidc.RS512,
	oidc.ES256, oidc.ES384, oidc.ES512,
	oidc.PS256, oidc.PS384, oidc.PS512,
	oidc.EdDSA,
}

var allJOSEAlgs = []jose.SignatureAlgorithm{
	jose.RS256, jose.RS384, jose.RS512,
	jose.ES256, jose.ES384, jose.ES512,
	jose.PS256, jose.PS384, jose.PS512,
	jose.EdDSA,
}
