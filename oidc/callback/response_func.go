// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package callback

import (
	"errors"
	"net/http"

	"github.com/hashicorp/cap-rp/oidc"
)

// SuccessResponseFunc is used by Callbacks to create a http response when the
// callback is successful.
//
// The function state parameter will contain the state that was returned as
// part of a successful oidc authentication response. The oidc.TokenSet is the
// verified result of the callback.  The function should use the
// http.ResponseWriter to send back whatever content (headers, html, JSON,
// etc) it wishes to the client that originated the oidc flow.
type SuccessResponseFunc func(state string, ts *oidc.TokenSet, w http.ResponseWriter, req *http.Request)

// ErrorResponseFunc is used by Callbacks to create a http response when the
// callback fails.
//
// The function receives the state returned as part of the oidc authentication
// response.  It also gets parameters for the oidc authentication error
// response and/or the callback error raised while processing the request.
type ErrorResponseFunc func(state string, respErr *AuthenErrorResponse, e error, w http.ResponseWriter, req *http.Request)

// AuthenErrorResponse represents Oauth2 error responses.  See:
// https://openid.net/specs/openid-connect-core-1_0.html#AuthError
type AuthenErrorResponse struct {
	Error       string
	Description string
	Uri         string
}

// authenErrorResponse returns the AuthenErrorResponse for err when it's an
// error response from the provider.
func authenErrorResponse(err error) *AuthenErrorResponse {
	var oauthErr *oidc.OAuth2Error
	if !errors.As(err, &oauthErr) {
		return nil
	}
	return &AuthenErrorResponse{
		Error:       oauthErr.Code,
		Description: oauthErr.Description,
		Uri:         oauthErr.URI,
	}
}
