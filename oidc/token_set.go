// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"reflect"
	"time"

	"golang.org/x/oauth2"
)

// tokenSetAttributes is the allow-list of attributes a TokenSet keeps from
// authorization responses and token endpoint responses.
var tokenSetAttributes = []string{
	"code",
	"state",
	"token_type",
	"access_token",
	"id_token",
	"refresh_token",
	"expires_in",
	"code_verifier",
}

// TokenSet is an immutable value which represents the result of an
// authorization response or a token endpoint response.  Attributes hold
// the raw (allow-listed) response values, Claims hold the verified claims and
// are only populated by a verification step.
type TokenSet struct {
	attributes map[string]interface{}
	claims     map[string]interface{}
	createdAt  time.Time
}

// NewTokenSet creates a TokenSet from response attributes.  Attributes which
// are not part of the allow-list (code, state, token_type, access_token,
// id_token, refresh_token, expires_in, code_verifier) are dropped.
func NewTokenSet(attributes map[string]interface{}) *TokenSet {
	return newTokenSet(attributes, time.Now())
}

func newTokenSet(attributes map[string]interface{}, now time.Time) *TokenSet {
	attrs := make(map[string]interface{}, len(tokenSetAttributes))
	for _, k := range tokenSetAttributes {
		if v, ok := attributes[k]; ok && v != nil {
			attrs[k] = v
		}
	}
	return &TokenSet{
		attributes: attrs,
		claims:     map[string]interface{}{},
		createdAt:  now,
	}
}

// WithClaims returns a new TokenSet with the same attributes and the provided
// verified claims.
func (t *TokenSet) WithClaims(claims map[string]interface{}) *TokenSet {
	attrs := make(map[string]interface{}, len(t.attributes))
	for k, v := range t.attributes {
		attrs[k] = v
	}
	cp := make(map[string]interface{}, len(claims))
	for k, v := range claims {
		cp[k] = v
	}
	return &TokenSet{
		attributes: attrs,
		claims:     cp,
		createdAt:  t.createdAt,
	}
}

// Attributes returns a copy of the TokenSet's raw attributes.
func (t *TokenSet) Attributes() map[string]interface{} {
	cp := make(map[string]interface{}, len(t.attributes))
	for k, v := range t.attributes {
		cp[k] = v
	}
	return cp
}

// Claims returns a copy of the verified claims, which is empty until a
// verification step populated it.
func (t *TokenSet) Claims() map[string]interface{} {
	cp := make(map[string]interface{}, len(t.claims))
	for k, v := range t.claims {
		cp[k] = v
	}
	return cp
}

// Code returns the authorization code.
func (t *TokenSet) Code() string { return stringValue(t.attributes["code"]) }

// State returns the state.
func (t *TokenSet) State() string { return stringValue(t.attributes["state"]) }

// TokenType returns the token_type.
func (t *TokenSet) TokenType() string { return stringValue(t.attributes["token_type"]) }

// CodeVerifier returns the PKCE code_verifier.
func (t *TokenSet) CodeVerifier() string { return stringValue(t.attributes["code_verifier"]) }

// AccessToken returns the access_token.
func (t *TokenSet) AccessToken() AccessToken {
	return AccessToken(stringValue(t.attributes["access_token"]))
}

// IDToken returns the id_token.
func (t *TokenSet) IDToken() IDToken {
	return IDToken(stringValue(t.attributes["id_token"]))
}

// RefreshToken returns the refresh_token.
func (t *TokenSet) RefreshToken() RefreshToken {
	return RefreshToken(stringValue(t.attributes["refresh_token"]))
}

// ExpiresIn returns the expires_in attribute in seconds.  Providers send it as
// a JSON number or as a numeric string; ok is false when it's missing or
// unparsable.
func (t *TokenSet) ExpiresIn() (seconds int64, ok bool) {
	v, found := t.attributes["expires_in"]
	if !found {
		return 0, false
	}
	return int64Value(v)
}

// Expiry returns the access_token expiry based on expires_in and when the
// TokenSet was created.  The zero time is returned when there's no
// expires_in.
func (t *TokenSet) Expiry() time.Time {
	s, ok := t.ExpiresIn()
	if !ok {
		return time.Time{}
	}
	return t.createdAt.Add(time.Duration(s) * time.Second)
}

// OAuth2Token converts the TokenSet to an *oauth2.Token, so it can be used
// with an oauth2.TokenSource or oauth2 http client.  The id_token is available
// via the token's Extra("id_token").
func (t *TokenSet) OAuth2Token() *oauth2.Token {
	tk := &oauth2.Token{
		AccessToken:  string(t.AccessToken()),
		TokenType:    t.TokenType(),
		RefreshToken: string(t.RefreshToken()),
		Expiry:       t.Expiry(),
	}
	if s, ok := t.ExpiresIn(); ok {
		tk.ExpiresIn = s
	}
	if idt := t.IDToken(); idt != "" {
		tk = tk.WithExtra(map[string]interface{}{"id_token": string(idt)})
	}
	return tk
}

// StaticTokenSource returns a TokenSource which always returns the
// TokenSet's oauth2 token.
func (t *TokenSet) StaticTokenSource() oauth2.TokenSource {
	return oauth2.StaticTokenSource(t.OAuth2Token())
}

// Equal reports whether both TokenSets have the same attributes and claims.
func (t *TokenSet) Equal(other *TokenSet) bool {
	if t == nil || other == nil {
		return t == other
	}
	return reflect.DeepEqual(t.attributes, other.attributes) && reflect.DeepEqual(t.claims, other.claims)
}
