// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package callback

import (
	"context"
	"fmt"
	"net/http"

	"github.com/hashicorp/cap-rp/oidc"
)

// Implicit creates an oidc implicit flow callback handler which uses a
// SessionReader to read the oidc.AuthSession via the response's "state"
// parameter as a key for the lookup.  The response must carry an id_token,
// which is verified against the session's nonce, and must not carry a code.
//
// The SuccessResponseFunc is used to create a response when callback is
// successful. The ErrorResponseFunc is to create a response when the callback
// fails.
//
// The options are passed to oidc.AuthorizationService.Callback, so
// oidc.WithMaxAge is supported.
func Implicit(ctx context.Context, s *oidc.AuthorizationService, c *oidc.Client, sr SessionReader, sFn SuccessResponseFunc, eFn ErrorResponseFunc, opt ...oidc.Option) (http.HandlerFunc, error) {
	const op = "callback.Implicit"
	if err := validateHandlerParams(s, c, sr, sFn, eFn); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	check := func(params map[string]interface{}) error {
		if idt, _ := params["id_token"].(string); idt == "" {
			return fmt.Errorf("%w: %w", oidc.ErrInvalidToken, oidc.ErrMissingIDToken)
		}
		if code, _ := params["code"].(string); code != "" {
			return fmt.Errorf("unexpected code in implicit flow response: %w", oidc.ErrInvalidParameter)
		}
		return nil
	}
	return newHandler(ctx, op, s, c, sr, sFn, eFn, check, opt...), nil
}
