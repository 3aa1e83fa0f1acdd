// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/go-querystring/query"
)

// IntrospectionService queries the provider's token introspection endpoint.
// See: https://www.rfc-editor.org/rfc/rfc7662
type IntrospectionService struct {
	service
}

// NewIntrospectionService creates an IntrospectionService.
//
// Supported options:
//   - WithHTTPClient
//   - WithLogger
func NewIntrospectionService(opt ...Option) *IntrospectionService {
	return &IntrospectionService{service: newService(getServiceOpts(opt...))}
}

type tokenRequest struct {
	Token         string `url:"token"`
	TokenTypeHint string `url:"token_type_hint,omitempty"`
}

// Introspect returns the provider's introspection response for the token.
// The client authenticates with its introspection_endpoint_auth_method.
//
// Supported options:
//   - WithTokenTypeHint
//   - WithParams
func (s *IntrospectionService) Introspect(ctx context.Context, c *Client, token string, opt ...Option) (map[string]interface{}, error) {
	const op = "IntrospectionService.Introspect"
	switch {
	case c == nil:
		return nil, fmt.Errorf("%s: client is nil: %w", op, ErrNilParameter)
	case token == "":
		return nil, fmt.Errorf("%s: token is empty: %w", op, ErrInvalidParameter)
	}
	opts := getTokenRequestOpts(opt...)
	body, err := query.Values(tokenRequest{Token: token, TokenTypeHint: opts.withTokenTypeHint})
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrRuntime, err)
	}
	for k, v := range opts.withParams {
		if _, reserved := body[k]; !reserved {
			body.Set(k, v)
		}
	}
	resp, err := s.postForm(ctx, c, "introspection_endpoint", body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	data, err := ParseMetadataResponse(resp, http.StatusOK)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return data, nil
}
