// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
)

// verifyIDToken verifies an id_token.  See:
// https://openid.net/specs/openid-connect-core-1_0.html#IDTokenValidation
func (v tokenVerifier) verifyIDToken(ctx context.Context, token string) (map[string]interface{}, error) {
	const op = "IDTokenVerifier.Verify"
	if token == "" {
		return nil, invalidToken(op, ErrMissingIDToken)
	}
	alg, err := v.headerAlg(token)
	if err != nil {
		return nil, invalidToken(op, err)
	}
	ks, err := v.keySet(alg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	now := v.timeNow()
	verifier := oidc.NewVerifier(v.client.issuer.metadata.Issuer, ks, &oidc.Config{
		ClientID:             v.client.metadata.ClientID,
		SupportedSigningAlgs: []string{alg},
		Now:                  func() time.Time { return now.Add(-v.leeway) },
	})
	idt, err := verifier.Verify(ctx, token)
	if err != nil {
		return nil, invalidToken(op, classifyOIDCError(err))
	}
	claims := map[string]interface{}{}
	if err := idt.Claims(&claims); err != nil {
		return nil, invalidToken(op, fmt.Errorf("%w: %w", ErrMalformedToken, err))
	}

	for _, c := range []string{"sub", "iat"} {
		if _, ok := claims[c]; !ok {
			return nil, invalidToken(op, fmt.Errorf("%q: %w", c, ErrMissingClaim))
		}
	}
	if err := v.checkAuthorizedParty(claims); err != nil {
		return nil, invalidToken(op, err)
	}
	if v.expect.nonce != "" {
		got, _ := claimString(claims, "nonce")
		if got != v.expect.nonce {
			return nil, invalidToken(op, ErrInvalidNonce)
		}
	}
	if v.expect.maxAge != nil {
		authTime, ok := claimTime(claims, "auth_time")
		if !ok {
			return nil, invalidToken(op, fmt.Errorf("%q: %w", "auth_time", ErrMissingClaim))
		}
		deadline := authTime.Add(time.Duration(*v.expect.maxAge) * time.Second)
		if deadline.Before(now.Add(-v.leeway)) {
			return nil, invalidToken(op, ErrInvalidAuthTime)
		}
	}
	if _, ok := claims["at_hash"]; ok && v.expect.accessToken != "" {
		if isHMACAlg(alg) {
			err = checkHash(claims, "at_hash", alg, v.expect.accessToken, ErrInvalidAtHash)
		} else if verr := idt.VerifyAccessToken(v.expect.accessToken); verr != nil {
			err = fmt.Errorf("%w: %w", ErrInvalidAtHash, verr)
		}
		if err != nil {
			return nil, invalidToken(op, err)
		}
	}
	if err := checkHash(claims, "c_hash", alg, v.expect.code, ErrInvalidCHash); err != nil {
		return nil, invalidToken(op, err)
	}
	if err := checkHash(claims, "s_hash", alg, v.expect.state, ErrInvalidSHash); err != nil {
		return nil, invalidToken(op, err)
	}
	return claims, nil
}

// checkAuthorizedParty requires an azp equal to the client id when the token
// has more than one audience, and checks any azp present.
func (v tokenVerifier) checkAuthorizedParty(claims map[string]interface{}) error {
	azp, ok := claimString(claims, "azp")
	if len(claimAudience(claims)) > 1 && !ok {
		return fmt.Errorf("%q: %w", "azp", ErrMissingClaim)
	}
	if ok && azp != v.client.metadata.ClientID {
		return fmt.Errorf("expected %q, got %q: %w", v.client.metadata.ClientID, azp, ErrInvalidAZP)
	}
	return nil
}

// classifyOIDCError maps the errors of the go-oidc verifier to the package's
// verification errors.
func classifyOIDCError(err error) error {
	var expired *oidc.TokenExpiredError
	if errors.As(err, &expired) {
		return fmt.Errorf("%w: %w", ErrExpiredToken, err)
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "different provider"):
		return fmt.Errorf("%w: %w", ErrInvalidIssuer, err)
	case strings.Contains(msg, "expected audience"):
		return fmt.Errorf("%w: %w", ErrInvalidAudience, err)
	case strings.Contains(msg, "unsupported algorithm"), strings.Contains(msg, "unexpected signature algorithm"):
		return fmt.Errorf("%w: %w", ErrUnsupportedAlg, err)
	case strings.Contains(msg, "verify signature"):
		return fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	case strings.Contains(msg, "malformed"):
		return fmt.Errorf("%w: %w", ErrMalformedToken, err)
	default:
		return err
	}
}
