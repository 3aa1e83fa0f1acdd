// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"encoding/json"
	"fmt"
)

// AuthSession is the record of one authorization attempt the caller must
// persist (typically in a cookie) across the redirect round trip and supply
// back when the callback is processed.  An empty value means the parameter
// was not used for the attempt.
//
// The state and nonce read back from an AuthSession are the only values used
// to check the callback's state and the id_token's nonce.  Values found in the
// callback itself are never trusted for that purpose.
type AuthSession struct {
	State        string `json:"state,omitempty"`
	Nonce        string `json:"nonce,omitempty"`
	CodeVerifier string `json:"code_verifier,omitempty"`
}

// NewAuthSession creates an AuthSession with a newly generated state and
// nonce.
//
// Supported options:
//   - WithPKCE
func NewAuthSession(opt ...Option) (*AuthSession, error) {
	const op = "NewAuthSession"
	opts := getAuthSessionOpts(opt...)
	state, err := NewID(WithPrefix("st"))
	if err != nil {
		return nil, fmt.Errorf("%s: unable to generate a state: %w", op, err)
	}
	nonce, err := NewID(WithPrefix("n"))
	if err != nil {
		return nil, fmt.Errorf("%s: unable to generate a nonce: %w", op, err)
	}
	s := &AuthSession{
		State: state,
		Nonce: nonce,
	}
	if opts.withPKCE {
		s.CodeVerifier = NewCodeVerifier()
	}
	return s, nil
}

// AuthSessionFromJSON restores an AuthSession previously serialized with
// json.Marshal.
func AuthSessionFromJSON(data []byte) (*AuthSession, error) {
	const op = "AuthSessionFromJSON"
	if len(data) == 0 {
		return nil, fmt.Errorf("%s: data is empty: %w", op, ErrInvalidParameter)
	}
	var s AuthSession
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%s: unable to unmarshal auth session: %w: %w", op, ErrInvalidParameter, err)
	}
	return &s, nil
}

// CodeChallenge returns the S256 code_challenge for the session's
// code_verifier, or an empty string when the session doesn't use PKCE.
func (s *AuthSession) CodeChallenge() string {
	if s == nil || s.CodeVerifier == "" {
		return ""
	}
	c, _ := CreateCodeChallenge(S256, s.CodeVerifier)
	return c
}

// authSessionOptions is the set of available options for NewAuthSession
type authSessionOptions struct {
	withPKCE bool
}

func authSessionDefaults() authSessionOptions {
	return authSessionOptions{}
}

func getAuthSessionOpts(opt ...Option) authSessionOptions {
	opts := authSessionDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithPKCE generates a PKCE code_verifier for the AuthSession.
//
// Valid for: NewAuthSession
func WithPKCE() Option {
	return func(o interface{}) {
		if o, ok := o.(*authSessionOptions); ok {
			o.withPKCE = true
		}
	}
}
