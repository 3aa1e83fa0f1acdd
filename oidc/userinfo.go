// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// UserInfoService retrieves claims from the provider's userinfo endpoint.
// See: https://openid.net/specs/openid-connect-core-1_0.html#UserInfo
type UserInfoService struct {
	service
	verifiers TokenVerifierBuilder
}

// NewUserInfoService creates a UserInfoService.
//
// Supported options:
//   - WithHTTPClient
//   - WithLogger
//   - WithNow
//   - WithUserInfoVerifierBuilder
func NewUserInfoService(opt ...Option) *UserInfoService {
	opts := getServiceOpts(opt...)
	return &UserInfoService{
		service:   newService(opts),
		verifiers: opts.withUserInfoVerifierBuilder,
	}
}

// UserInfo returns the claims of the end-user the TokenSet's access token was
// issued for.  A signed (application/jwt) response is verified.  When the
// TokenSet carries verified id_token claims, the userinfo sub must equal the
// id_token sub.
func (s *UserInfoService) UserInfo(ctx context.Context, c *Client, ts *TokenSet) (map[string]interface{}, error) {
	const op = "UserInfoService.UserInfo"
	switch {
	case c == nil:
		return nil, fmt.Errorf("%s: client is nil: %w", op, ErrNilParameter)
	case ts == nil:
		return nil, fmt.Errorf("%s: token set is nil: %w", op, ErrNilParameter)
	case ts.AccessToken() == "":
		return nil, fmt.Errorf("%s: access token is empty: %w", op, ErrInvalidParameter)
	}
	endpoint, err := resolveEndpoint(c, "userinfo_endpoint")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to create request: %w: %w", op, ErrRuntime, err)
	}
	tokenType := ts.TokenType()
	if tokenType == "" || strings.EqualFold(tokenType, "bearer") {
		tokenType = "Bearer"
	}
	req.Header.Set("Authorization", tokenType+" "+string(ts.AccessToken()))
	req.Header.Set("Accept", "application/json, application/jwt")

	resp, err := s.do(c, req, "userinfo_endpoint")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var claims map[string]interface{}
	if resp.StatusCode == http.StatusOK && isJWTResponse(resp) {
		defer resp.Body.Close()
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
		if err != nil {
			return nil, fmt.Errorf("%s: unable to read response body: %w: %w", op, ErrTransport, err)
		}
		v, err := s.verifiers.Build(c)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if claims, err = v.Verify(ctx, strings.TrimSpace(string(body))); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	} else if claims, err = ParseMetadataResponse(resp, http.StatusOK); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if want, ok := claimString(ts.claims, "sub"); ok {
		if got, _ := claimString(claims, "sub"); got != want {
			return nil, invalidToken(op, ErrInvalidSubject)
		}
	}
	return claims, nil
}
