// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package clientassertion signs the JWTs a client uses to authenticate itself
// to an authorization server with the client_secret_jwt and private_key_jwt
// methods.  See: https://openid.net/specs/openid-connect-core-1_0.html#ClientAuthentication
//
// Example usage:
//
//	j, err := clientassertion.NewJWT("client-id", []string{"https://issuer"},
//		clientassertion.WithKey(privateKey, clientassertion.ES256),
//		clientassertion.WithKeyID("jwks-key-id"),
//	)
//	assertion, err := j.Serialize()
package clientassertion

import (
	"fmt"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/hashicorp/go-multierror"
	"github.com/hashicorp/go-uuid"
)

const (
	// JWTTypeParam is the client_assertion_type of a JWT client assertion.
	// https://www.rfc-editor.org/rfc/rfc7523.html#section-2.2
	JWTTypeParam = "urn:ietf:params:oauth:client-assertion-type:jwt-bearer"

	// DefaultLifetime is how long a client assertion is valid for unless
	// WithLifetime is used.
	DefaultLifetime = 5 * time.Minute
)

// JWT is a client assertion: a JWT issued by the client for itself (iss and
// sub are the client_id) to the authorization server (aud).  It's signed
// with either the client's secret or one of its private keys.
type JWT struct {
	clientID string
	audience []string
	headers  map[string]string
	lifetime time.Duration
	now      func() time.Time

	alg jose.SignatureAlgorithm
	// key is anything jose.SigningKey accepts; secret is used instead of it
	// for the HS algorithms.
	key    interface{}
	secret string
}

// NewJWT creates a client assertion JWT for clientID which is valid for the
// audience.
//
// Supported Options:
//   - WithClientSecret
//   - WithKey
//   - WithKeyID
//   - WithHeaders
//   - WithLifetime
//   - WithNow
//
// Exactly one of WithKey or WithClientSecret must be used.  Every problem
// with the options is reported in the returned error.
func NewJWT(clientID string, audience []string, opt ...Option) (*JWT, error) {
	const op = "NewJWT"
	j := &JWT{
		clientID: clientID,
		audience: audience,
		headers:  map[string]string{},
		lifetime: DefaultLifetime,
		now:      time.Now,
	}
	var result *multierror.Error
	for _, o := range opt {
		if o == nil {
			continue
		}
		if err := o(j); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if err := j.validate(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := result.ErrorOrNil(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	// the key can only be fully checked by signing with it
	if _, err := j.Serialize(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return j, nil
}

// Serialize returns a newly signed client assertion.  Each assertion has a
// new "jti" and fresh "iat", "nbf" and "exp" claims, since authorization
// servers may reject a reused jti.
func (j *JWT) Serialize() (string, error) {
	const op = "JWT.Serialize"
	if err := j.validate(); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	signer, err := j.signer()
	if err != nil {
		return "", fmt.Errorf("%s: %w: %w", op, ErrSigning, err)
	}
	jti, err := uuid.GenerateUUID()
	if err != nil {
		return "", fmt.Errorf("%s: unable to generate jti: %w: %w", op, ErrSigning, err)
	}
	token, err := jwt.Signed(signer).Claims(j.claims(jti)).Serialize()
	if err != nil {
		return "", fmt.Errorf("%s: %w: %w", op, ErrSigning, err)
	}
	return token, nil
}

func (j *JWT) validate() error {
	var result *multierror.Error
	if j.clientID == "" {
		result = multierror.Append(result, ErrMissingClientID)
	}
	if len(j.audience) == 0 {
		result = multierror.Append(result, ErrMissingAudience)
	}
	if j.alg == "" {
		result = multierror.Append(result, ErrMissingAlgorithm)
	}
	switch {
	case j.key == nil && j.secret == "":
		result = multierror.Append(result, ErrMissingKeyOrSecret)
	case j.key != nil && j.secret != "":
		result = multierror.Append(result, ErrBothKeyAndSecret)
	}
	return result.ErrorOrNil()
}

func (j *JWT) signer() (jose.Signer, error) {
	sk := jose.SigningKey{Algorithm: j.alg, Key: j.key}
	if j.secret != "" {
		sk.Key = []byte(j.secret)
	}
	so := (&jose.SignerOptions{}).WithType("JWT")
	for k, v := range j.headers {
		so = so.WithHeader(jose.HeaderKey(k), v)
	}
	return jose.NewSigner(sk, so)
}

func (j *JWT) claims(jti string) *jwt.Claims {
	now := time.Now
	if j.now != nil {
		now = j.now
	}
	iat := now().UTC()
	return &jwt.Claims{
		Issuer:    j.clientID,
		Subject:   j.clientID,
		Audience:  j.audience,
		ID:        jti,
		IssuedAt:  jwt.NewNumericDate(iat),
		NotBefore: jwt.NewNumericDate(iat.Add(-time.Second)),
		Expiry:    jwt.NewNumericDate(iat.Add(j.lifetime)),
	}
}
