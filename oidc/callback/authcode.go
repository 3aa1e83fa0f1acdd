// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package callback

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/hashicorp/cap-rp/oidc"
)

// maxBodySize bounds the form_post bodies a callback reads.
const maxBodySize = 1 << 20

// AuthCode creates an oidc authorization code callback handler which uses a
// SessionReader to read the oidc.AuthSession via the response's "state"
// parameter as a key for the lookup.  The code is exchanged at the token
// endpoint and every returned id_token is verified against the session.
//
// The SuccessResponseFunc is used to create a response when callback is
// successful. The ErrorResponseFunc is to create a response when the callback
// fails.
//
// The options are passed to oidc.AuthorizationService.Callback, so
// oidc.WithRedirectURI and oidc.WithMaxAge are supported.
func AuthCode(ctx context.Context, s *oidc.AuthorizationService, c *oidc.Client, sr SessionReader, sFn SuccessResponseFunc, eFn ErrorResponseFunc, opt ...oidc.Option) (http.HandlerFunc, error) {
	const op = "callback.AuthCode"
	if err := validateHandlerParams(s, c, sr, sFn, eFn); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return newHandler(ctx, op, s, c, sr, sFn, eFn, nil, opt...), nil
}

func validateHandlerParams(s *oidc.AuthorizationService, c *oidc.Client, sr SessionReader, sFn SuccessResponseFunc, eFn ErrorResponseFunc) error {
	switch {
	case s == nil:
		return fmt.Errorf("authorization service is nil: %w", oidc.ErrNilParameter)
	case c == nil:
		return fmt.Errorf("client is nil: %w", oidc.ErrNilParameter)
	case sr == nil:
		return fmt.Errorf("session reader is nil: %w", oidc.ErrNilParameter)
	case sFn == nil:
		return fmt.Errorf("success response func is nil: %w", oidc.ErrNilParameter)
	case eFn == nil:
		return fmt.Errorf("error response func is nil: %w", oidc.ErrNilParameter)
	}
	return nil
}

// checkParamsFunc is an additional check of the authorization response
// params before the session is read.
type checkParamsFunc func(params map[string]interface{}) error

func newHandler(ctx context.Context, op string, s *oidc.AuthorizationService, c *oidc.Client, sr SessionReader, sFn SuccessResponseFunc, eFn ErrorResponseFunc, check checkParamsFunc, opt ...oidc.Option) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		reqState, err := responseState(req)
		if err != nil {
			eFn("", nil, fmt.Errorf("%s: %w", op, err), w, req)
			return
		}

		params, err := s.CallbackParams(ctx, req, c)
		if err != nil {
			if authErr := authenErrorResponse(err); authErr != nil {
				eFn(reqState, authErr, nil, w, req)
				return
			}
			eFn(reqState, nil, fmt.Errorf("%s: %w", op, err), w, req)
			return
		}
		// a JWT secured response carries the state in its claims
		if st, ok := params["state"].(string); ok {
			reqState = st
		}

		if check != nil {
			if err := check(params); err != nil {
				eFn(reqState, nil, fmt.Errorf("%s: %w", op, err), w, req)
				return
			}
		}

		sess, err := sr.Read(ctx, reqState)
		if err != nil {
			eFn(reqState, nil, fmt.Errorf("%s: unable to read auth session: %w", op, err), w, req)
			return
		}
		if sess == nil {
			// could have expired or it could be invalid... no way to known for sure
			eFn(reqState, nil, fmt.Errorf("%s: auth session not found: %w", op, oidc.ErrNotFound), w, req)
			return
		}

		ts, err := s.Callback(ctx, c, params, append(opt, oidc.WithAuthSession(sess))...)
		if err != nil {
			if authErr := authenErrorResponse(err); authErr != nil {
				eFn(reqState, authErr, err, w, req)
				return
			}
			eFn(reqState, nil, fmt.Errorf("%s: %w", op, err), w, req)
			return
		}
		sFn(reqState, ts, w, req)
	}
}

// responseState returns the state of the authorization response from the
// POST body, the fragment or the query.  A POST body is read and restored so
// it can be read again.
func responseState(req *http.Request) (string, error) {
	var raw string
	switch {
	case req.Method == http.MethodPost && req.Body != nil:
		body, err := io.ReadAll(io.LimitReader(req.Body, maxBodySize))
		if err != nil {
			return "", fmt.Errorf("unable to read request body: %w: %w", oidc.ErrInvalidParameter, err)
		}
		_ = req.Body.Close()
		req.Body = io.NopCloser(bytes.NewReader(body))
		raw = string(body)
	case req.URL.Fragment != "":
		raw = req.URL.Fragment
	default:
		raw = req.URL.RawQuery
	}
	values, err := url.ParseQuery(raw)
	if err != nil {
		return "", fmt.Errorf("unable to parse response params: %w: %w", oidc.ErrInvalidParameter, err)
	}
	return values.Get("state"), nil
}
