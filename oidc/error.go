// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// invalid argument errors: the caller supplied malformed or incomplete
	// input.

	ErrInvalidParameter      = errors.New("invalid parameter")
	ErrNilParameter          = errors.New("nil parameter")
	ErrMissingNonce          = errors.New("nonce MUST be provided for implicit and hybrid flows")
	ErrMissingRedirectURI    = errors.New("unable to determine the redirect_uri")
	ErrUnsupportedAuthMethod = errors.New("unsupported auth method")
	ErrInvalidCACert         = errors.New("invalid CA certificate")
	ErrIDGeneratorFailed     = errors.New("id generation failed")

	// runtime errors: an internal precondition was violated.

	ErrRuntime               = errors.New("runtime error")
	ErrMissingCode           = errors.New("unable to fetch token without a code")
	ErrMissingEndpoint       = errors.New("unable to retrieve the endpoint")
	ErrInvalidCallbackMethod = errors.New("invalid callback method")
	ErrInvalidMetadata       = errors.New("invalid metadata content")
	ErrTransport             = errors.New("unable to send request")
	ErrNotFound              = errors.New("not found")

	// ErrOAuth2 is matched by every *OAuth2Error and ErrRemote by every
	// *RemoteError.

	ErrOAuth2 = errors.New("oauth2 error")
	ErrRemote = errors.New("remote error")

	// verification errors: every verification failure wraps ErrInvalidToken
	// plus one of the more specific causes below.

	ErrInvalidToken     = errors.New("invalid token provided")
	ErrMissingIDToken   = errors.New("id_token is missing")
	ErrMalformedToken   = errors.New("malformed token")
	ErrInvalidSignature = errors.New("invalid signature")
	ErrUnsupportedAlg   = errors.New("unexpected JWT alg")
	ErrInvalidIssuer    = errors.New("invalid issuer")
	ErrInvalidAudience  = errors.New("bad audience")
	ErrInvalidAZP       = errors.New("invalid authorized party")
	ErrExpiredToken     = errors.New("token is expired")
	ErrMissingClaim     = errors.New("missing mandatory claim")
	ErrInvalidNonce     = errors.New("nonce mismatch")
	ErrInvalidState     = errors.New("state mismatch")
	ErrInvalidAtHash    = errors.New("at_hash mismatch")
	ErrInvalidCHash     = errors.New("c_hash mismatch")
	ErrInvalidSHash     = errors.New("s_hash mismatch")
	ErrInvalidAuthTime  = errors.New("too much time has elapsed since the last end-user authentication")
	ErrInvalidSubject   = errors.New("userinfo sub mismatch")
)

// OAuth2Error is an error response returned by the provider.  See:
// https://www.rfc-editor.org/rfc/rfc6749#section-5.2 and
// https://openid.net/specs/openid-connect-core-1_0.html#AuthError
type OAuth2Error struct {
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
	URI         string `json:"error_uri,omitempty"`
}

// Error returns "description (error)" when there's a description and just
// the error code otherwise.
func (e *OAuth2Error) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("%s (%s)", e.Description, e.Code)
	}
	return e.Code
}

// Is supports errors.Is(err, ErrOAuth2)
func (e *OAuth2Error) Is(target error) bool {
	return target == ErrOAuth2
}

// NewOAuth2ErrorFromParams returns an *OAuth2Error when the params represent an
// oauth2 error object (an "error" key is present), otherwise it returns nil.
func NewOAuth2ErrorFromParams(params map[string]interface{}) *OAuth2Error {
	code, ok := params["error"]
	if !ok {
		return nil
	}
	return &OAuth2Error{
		Code:        stringValue(code),
		Description: stringValue(params["error_description"]),
		URI:         stringValue(params["error_uri"]),
	}
}

// RemoteError is returned when the provider answers with an unexpected
// http status that doesn't carry a recognizable oauth2 error body.
type RemoteError struct {
	StatusCode int
	Reason     string
	Body       string
}

// Error implements the error interface.
func (e *RemoteError) Error() string {
	reason := e.Reason
	if reason == "" {
		reason = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("remote error: %d %s", e.StatusCode, reason)
}

// Is supports errors.Is(err, ErrRemote)
func (e *RemoteError) Is(target error) bool {
	return target == ErrRemote
}

// ErrorKind classifies errors returned by this package.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindInvalidArgument
	KindRuntime
	KindOAuth2
	KindRemote
	KindVerification
)

// String returns the kind's name.
func (k ErrorKind) String() string {
	switch k {
	case KindInvalidArgument:
		return "invalid argument"
	case KindRuntime:
		return "runtime"
	case KindOAuth2:
		return "oauth2"
	case KindRemote:
		return "remote"
	case KindVerification:
		return "verification"
	default:
		return "unknown"
	}
}

var (
	invalidArgumentErrs = []error{
		ErrInvalidParameter,
		ErrNilParameter,
		ErrMissingNonce,
		ErrMissingRedirectURI,
		ErrUnsupportedAuthMethod,
		ErrInvalidCACert,
	}
	runtimeErrs = []error{
		ErrRuntime,
		ErrMissingCode,
		ErrMissingEndpoint,
		ErrInvalidCallbackMethod,
		ErrInvalidMetadata,
		ErrTransport,
		ErrNotFound,
		ErrIDGeneratorFailed,
	}
)

// Kind returns the ErrorKind of err.  Verification and provider errors take
// precedence over argument and runtime errors since they may wrap them.
func Kind(err error) ErrorKind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrInvalidToken):
		return KindVerification
	case errors.Is(err, ErrOAuth2):
		return KindOAuth2
	case errors.Is(err, ErrRemote):
		return KindRemote
	}
	for _, e := range invalidArgumentErrs {
		if errors.Is(err, e) {
			return KindInvalidArgument
		}
	}
	for _, e := range runtimeErrs {
		if errors.Is(err, e) {
			return KindRuntime
		}
	}
	return KindUnknown
}

// invalidToken wraps a verification cause so it matches both ErrInvalidToken
// and the cause.
func invalidToken(op string, cause error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrInvalidToken, cause)
}
