// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"time"

	"github.com/hashicorp/go-hclog"
)

// Option defines a common functional options type which can be used in a
// variadic parameter pattern.
type Option func(interface{})

// ApplyOpts takes a pointer to the options struct as a set of default options
// and applies the slice of opts as overrides.
func ApplyOpts(opts interface{}, opt ...Option) {
	for _, o := range opt {
		if o == nil { // ignore any nil Options
			continue
		}
		o(opts)
	}
}

// WithNow provides an optional func for determining what the current time it
// is, for: AuthSession, IDTokenVerifierBuilder, ResponseVerifierBuilder,
// UserInfoVerifierBuilder, TokenSet creation in AuthorizationService.
func WithNow(now func() time.Time) Option {
	return func(o interface{}) {
		if now == nil {
			return
		}
		switch v := o.(type) {
		case *verifierOptions:
			v.withNowFunc = now
		case *serviceOptions:
			v.withNowFunc = now
		}
	}
}

// WithLogger provides an optional logger for: AuthorizationService,
// IntrospectionService, RevocationService, UserInfoService and DiscoverIssuer.
func WithLogger(l hclog.Logger) Option {
	return func(o interface{}) {
		if l == nil {
			return
		}
		switch v := o.(type) {
		case *serviceOptions:
			v.withLogger = l
		case *issuerOptions:
			v.withLogger = l
		}
	}
}

// WithHTTPClient provides an optional http client for: AuthorizationService
// (and the other services), Client, and DiscoverIssuer.  A Client's own
// http client takes precedence over a service's.
func WithHTTPClient(c HTTPClient) Option {
	return func(o interface{}) {
		if c == nil {
			return
		}
		switch v := o.(type) {
		case *serviceOptions:
			v.withHTTPClient = c
		case *clientOptions:
			v.withHTTPClient = c
		case *issuerOptions:
			v.withHTTPClient = c
		}
	}
}

// WithRedirectURI provides an optional redirect_uri for: AuthRequest
// construction via NewAuthRequestFromClient, AuthorizationService.Callback,
// and AuthorizationService.FetchToken.
func WithRedirectURI(uri string) Option {
	return func(o interface{}) {
		switch v := o.(type) {
		case *authRequestOptions:
			v.withRedirectURI = uri
		case *callbackOptions:
			v.withRedirectURI = uri
		}
	}
}

// WithMaxAge provides an optional max_age (in seconds) for: AuthRequest
// construction (the max_age request param) and AuthorizationService.Callback /
// FetchToken (the expected auth_time window when verifying the id_token).
func WithMaxAge(seconds uint) Option {
	return func(o interface{}) {
		switch v := o.(type) {
		case *authRequestOptions:
			v.withMaxAge = &seconds
		case *callbackOptions:
			v.withMaxAge = &seconds
		}
	}
}

// WithAuthSession provides the AuthSession that was created (and stored by
// the caller) before redirecting the user agent.  Supported by:
// NewAuthRequestFromClient (state, nonce and code_challenge come from the
// session) and AuthorizationService.Callback / FetchToken (expected state,
// nonce and the PKCE code_verifier come from the session).
func WithAuthSession(s *AuthSession) Option {
	return func(o interface{}) {
		switch v := o.(type) {
		case *authRequestOptions:
			v.withAuthSession = s
		case *callbackOptions:
			v.withAuthSession = s
		}
	}
}

// WithTokenTypeHint provides an optional token_type_hint for:
// IntrospectionService.Introspect and RevocationService.Revoke.
func WithTokenTypeHint(hint string) Option {
	return func(o interface{}) {
		if v, ok := o.(*tokenRequestOptions); ok {
			v.withTokenTypeHint = hint
		}
	}
}

// WithParams provides optional additional params for:
// IntrospectionService.Introspect and RevocationService.Revoke.
func WithParams(params map[string]string) Option {
	return func(o interface{}) {
		if v, ok := o.(*tokenRequestOptions); ok {
			v.withParams = params
		}
	}
}

// tokenRequestOptions is the set of available options for the introspection
// and revocation requests.
type tokenRequestOptions struct {
	withTokenTypeHint string
	withParams        map[string]string
}

func tokenRequestDefaults() tokenRequestOptions {
	return tokenRequestOptions{}
}

func getTokenRequestOpts(opt ...Option) tokenRequestOptions {
	opts := tokenRequestDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}
