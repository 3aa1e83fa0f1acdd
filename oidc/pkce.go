// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"errors"
	"fmt"

	"golang.org/x/oauth2"
)

// ErrUnsupportedChallengeMethod is returned for any code challenge method
// other than S256.
var ErrUnsupportedChallengeMethod = errors.New("unsupported PKCE challenge method")

// ChallengeMethod represents PKCE code challenge methods as defined by RFC
// 7636.
type ChallengeMethod string

const (
	// S256 is the SHA-256 PKCE code challenge method.  The plain method is not
	// supported.  See: https://tools.ietf.org/html/rfc7636#section-4.3
	S256 ChallengeMethod = "S256"
)

// NewCodeVerifier returns a new high-entropy PKCE code_verifier.
func NewCodeVerifier() string {
	return oauth2.GenerateVerifier()
}

// CreateCodeChallenge creates a PKCE code_challenge from the verifier.
func CreateCodeChallenge(method ChallengeMethod, verifier string) (string, error) {
	const op = "CreateCodeChallenge"
	if verifier == "" {
		return "", fmt.Errorf("%s: code verifier is empty: %w", op, ErrInvalidParameter)
	}
	switch method {
	case S256:
		return oauth2.S256ChallengeFromVerifier(verifier), nil
	default:
		return "", fmt.Errorf("%s: %q: %w", op, method, ErrUnsupportedChallengeMethod)
	}
}
