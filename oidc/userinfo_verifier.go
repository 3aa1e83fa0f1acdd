// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"fmt"

	josejwt "github.com/go-jose/go-jose/v4/jwt"
)

// verifyUserInfo verifies a signed userinfo response.  Its iss and aud are
// only checked when present.  See:
// https://openid.net/specs/openid-connect-core-1_0.html#UserInfoResponse
func (v tokenVerifier) verifyUserInfo(ctx context.Context, token string) (map[string]interface{}, error) {
	const op = "UserInfoVerifier.Verify"
	if token == "" {
		return nil, invalidToken(op, fmt.Errorf("userinfo response is empty: %w", ErrMalformedToken))
	}
	payload, _, err := v.verifySignature(ctx, token)
	if err != nil {
		return nil, invalidToken(op, err)
	}
	claims, std, err := parseClaims(payload)
	if err != nil {
		return nil, invalidToken(op, err)
	}
	if _, ok := claimString(claims, "sub"); !ok {
		return nil, invalidToken(op, fmt.Errorf("%q: %w", "sub", ErrMissingClaim))
	}
	expected := josejwt.Expected{Time: v.timeNow()}
	if std.Issuer != "" {
		expected.Issuer = v.client.issuer.metadata.Issuer
	}
	if len(std.Audience) > 0 {
		expected.AnyAudience = josejwt.Audience{v.client.metadata.ClientID}
	}
	if err := std.ValidateWithLeeway(expected, v.leeway); err != nil {
		return nil, invalidToken(op, classifyJOSEClaimsError(err))
	}
	return claims, nil
}
