// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	josejwt "github.com/go-jose/go-jose/v4/jwt"
)

// verifyResponse verifies a JWT secured authorization response (JARM) and
// returns all of its claims, which are the authorization response params.
// See: https://openid.net/specs/oauth-v2-jarm.html#section-4.4
func (v tokenVerifier) verifyResponse(ctx context.Context, token string) (map[string]interface{}, error) {
	const op = "ResponseVerifier.Verify"
	if token == "" {
		return nil, invalidToken(op, fmt.Errorf("response is empty: %w", ErrMalformedToken))
	}
	payload, _, err := v.verifySignature(ctx, token)
	if err != nil {
		return nil, invalidToken(op, err)
	}
	claims, std, err := parseClaims(payload)
	if err != nil {
		return nil, invalidToken(op, err)
	}
	if std.Expiry == nil {
		return nil, invalidToken(op, fmt.Errorf("%q: %w", "exp", ErrMissingClaim))
	}
	expected := josejwt.Expected{
		Issuer:      v.client.issuer.metadata.Issuer,
		AnyAudience: josejwt.Audience{v.client.metadata.ClientID},
		Time:        v.timeNow(),
	}
	if err := std.ValidateWithLeeway(expected, v.leeway); err != nil {
		return nil, invalidToken(op, classifyJOSEClaimsError(err))
	}
	return claims, nil
}

// parseClaims unmarshals a JWT payload into both its claims and its
// registered claims.
func parseClaims(payload []byte) (map[string]interface{}, *josejwt.Claims, error) {
	claims := map[string]interface{}{}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrMalformedToken, err)
	}
	var std josejwt.Claims
	if err := json.Unmarshal(payload, &std); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrMalformedToken, err)
	}
	return claims, &std, nil
}

// classifyJOSEClaimsError maps go-jose claim validation errors to the
// package's verification errors.
func classifyJOSEClaimsError(err error) error {
	switch {
	case errors.Is(err, josejwt.ErrInvalidIssuer):
		return fmt.Errorf("%w: %w", ErrInvalidIssuer, err)
	case errors.Is(err, josejwt.ErrInvalidAudience):
		return fmt.Errorf("%w: %w", ErrInvalidAudience, err)
	case errors.Is(err, josejwt.ErrExpired):
		return fmt.Errorf("%w: %w", ErrExpiredToken, err)
	case errors.Is(err, josejwt.ErrIssuedInTheFuture), errors.Is(err, josejwt.ErrNotValidYet):
		return fmt.Errorf("%w: %w", ErrExpiredToken, err)
	default:
		return err
	}
}
