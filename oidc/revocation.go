// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/google/go-querystring/query"
)

// RevocationService revokes tokens at the provider's revocation endpoint.
// See: https://www.rfc-editor.org/rfc/rfc7009
type RevocationService struct {
	service
}

// NewRevocationService creates a RevocationService.
//
// Supported options:
//   - WithHTTPClient
//   - WithLogger
func NewRevocationService(opt ...Option) *RevocationService {
	return &RevocationService{service: newService(getServiceOpts(opt...))}
}

// Revoke the token.  Any 200 response is a success, whatever its body.  The
// client authenticates with its revocation_endpoint_auth_method.
//
// Supported options:
//   - WithTokenTypeHint
//   - WithParams
func (s *RevocationService) Revoke(ctx context.Context, c *Client, token string, opt ...Option) error {
	const op = "RevocationService.Revoke"
	switch {
	case c == nil:
		return fmt.Errorf("%s: client is nil: %w", op, ErrNilParameter)
	case token == "":
		return fmt.Errorf("%s: token is empty: %w", op, ErrInvalidParameter)
	}
	opts := getTokenRequestOpts(opt...)
	body, err := query.Values(tokenRequest{Token: token, TokenTypeHint: opts.withTokenTypeHint})
	if err != nil {
		return fmt.Errorf("%s: %w: %w", op, ErrRuntime, err)
	}
	for k, v := range opts.withParams {
		if _, reserved := body[k]; !reserved {
			body.Set(k, v)
		}
	}
	resp, err := s.postForm(ctx, c, "revocation_endpoint", body)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if resp.StatusCode == http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseSize))
		resp.Body.Close()
		return nil
	}
	// ParseMetadataResponse returns the oauth2 or remote error
	_, err = ParseMetadataResponse(resp, http.StatusOK)
	return fmt.Errorf("%s: %w", op, err)
}
