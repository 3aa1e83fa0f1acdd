// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/hashicorp/go-multierror"
)

// ClientSecret is an oauth client Secret.
type ClientSecret string

// RedactedClientSecret is the redacted string or json for an oauth client secret.
const RedactedClientSecret = "[REDACTED: client secret]"

// String will redact the client secret.
func (t ClientSecret) String() string {
	return RedactedClientSecret
}

// MarshalJSON will redact the client secret.
func (t ClientSecret) MarshalJSON() ([]byte, error) {
	return json.Marshal(RedactedClientSecret)
}

const (
	defaultResponseType            = "code"
	defaultTokenEndpointAuthMethod = "client_secret_basic"
	defaultSignedResponseAlg       = string(RS256)
)

// ClientMetadata is the registered (or statically configured) metadata of a
// relying party.  See:
// https://openid.net/specs/openid-connect-registration-1_0.html#ClientMetadata
//
// Extra holds any provider specific metadata, which is reachable via Get and
// Has along with the recognized fields.
type ClientMetadata struct {
	ClientID     string       `json:"client_id" yaml:"client_id"`
	ClientSecret ClientSecret `json:"client_secret,omitempty" yaml:"client_secret,omitempty"`

	RedirectURIs  []string `json:"redirect_uris,omitempty" yaml:"redirect_uris,omitempty"`
	ResponseTypes []string `json:"response_types,omitempty" yaml:"response_types,omitempty"`
	GrantTypes    []string `json:"grant_types,omitempty" yaml:"grant_types,omitempty"`

	TokenEndpointAuthMethod         string `json:"token_endpoint_auth_method,omitempty" yaml:"token_endpoint_auth_method,omitempty"`
	TokenEndpointAuthSigningAlg     string `json:"token_endpoint_auth_signing_alg,omitempty" yaml:"token_endpoint_auth_signing_alg,omitempty"`
	IntrospectionEndpointAuthMethod string `json:"introspection_endpoint_auth_method,omitempty" yaml:"introspection_endpoint_auth_method,omitempty"`
	RevocationEndpointAuthMethod    string `json:"revocation_endpoint_auth_method,omitempty" yaml:"revocation_endpoint_auth_method,omitempty"`

	IDTokenSignedResponseAlg       string `json:"id_token_signed_response_alg,omitempty" yaml:"id_token_signed_response_alg,omitempty"`
	AuthorizationSignedResponseAlg string `json:"authorization_signed_response_alg,omitempty" yaml:"authorization_signed_response_alg,omitempty"`
	UserinfoSignedResponseAlg      string `json:"userinfo_signed_response_alg,omitempty" yaml:"userinfo_signed_response_alg,omitempty"`

	TLSClientCertificateBoundAccessTokens bool `json:"tls_client_certificate_bound_access_tokens,omitempty" yaml:"tls_client_certificate_bound_access_tokens,omitempty"`

	PostLogoutRedirectURIs []string `json:"post_logout_redirect_uris,omitempty" yaml:"post_logout_redirect_uris,omitempty"`

	Extra map[string]interface{} `json:"-" yaml:"extra,omitempty"`
}

// withDefaults returns a copy of the metadata with the registration defaults
// applied.
func (m *ClientMetadata) withDefaults() *ClientMetadata {
	cp := *m
	cp.RedirectURIs = append([]string(nil), m.RedirectURIs...)
	cp.ResponseTypes = append([]string(nil), m.ResponseTypes...)
	cp.GrantTypes = append([]string(nil), m.GrantTypes...)
	cp.PostLogoutRedirectURIs = append([]string(nil), m.PostLogoutRedirectURIs...)
	if len(m.Extra) > 0 {
		cp.Extra = make(map[string]interface{}, len(m.Extra))
		for k, v := range m.Extra {
			cp.Extra[k] = v
		}
	}
	if len(cp.ResponseTypes) == 0 {
		cp.ResponseTypes = []string{defaultResponseType}
	}
	if cp.TokenEndpointAuthMethod == "" {
		cp.TokenEndpointAuthMethod = defaultTokenEndpointAuthMethod
	}
	if cp.IntrospectionEndpointAuthMethod == "" {
		cp.IntrospectionEndpointAuthMethod = cp.TokenEndpointAuthMethod
	}
	if cp.RevocationEndpointAuthMethod == "" {
		cp.RevocationEndpointAuthMethod = cp.TokenEndpointAuthMethod
	}
	if cp.IDTokenSignedResponseAlg == "" {
		cp.IDTokenSignedResponseAlg = defaultSignedResponseAlg
	}
	if cp.AuthorizationSignedResponseAlg == "" {
		cp.AuthorizationSignedResponseAlg = defaultSignedResponseAlg
	}
	return &cp
}

// Validate the client metadata.  All problems found are returned together.
func (m *ClientMetadata) Validate() error {
	const op = "ClientMetadata.Validate"
	if m == nil {
		return fmt.Errorf("%s: client metadata is nil: %w", op, ErrNilParameter)
	}
	var result *multierror.Error
	if m.ClientID == "" {
		result = multierror.Append(result, fmt.Errorf("client_id is empty: %w", ErrInvalidParameter))
	}
	for _, u := range m.RedirectURIs {
		if _, err := url.Parse(u); err != nil {
			result = multierror.Append(result, fmt.Errorf("redirect_uri %q is invalid: %w: %w", u, ErrInvalidParameter, err))
		}
	}
	for _, method := range []string{m.TokenEndpointAuthMethod, m.IntrospectionEndpointAuthMethod, m.RevocationEndpointAuthMethod} {
		if method != "" && !isBuiltinAuthMethod(method) {
			result = multierror.Append(result, fmt.Errorf("auth method %q: %w", method, ErrUnsupportedAuthMethod))
		}
	}
	for _, alg := range []string{m.IDTokenSignedResponseAlg, m.AuthorizationSignedResponseAlg, m.UserinfoSignedResponseAlg} {
		if alg != "" && !isSupportedAlg(alg) {
			result = multierror.Append(result, fmt.Errorf("unsupported signing alg %q: %w", alg, ErrInvalidParameter))
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Get returns the metadata value for the registration parameter name key.
func (m *ClientMetadata) Get(key string) (interface{}, bool) {
	var v interface{}
	switch key {
	case "client_id":
		v = m.ClientID
	case "client_secret":
		v = m.ClientSecret
	case "redirect_uris":
		v = m.RedirectURIs
	case "response_types":
		v = m.ResponseTypes
	case "grant_types":
		v = m.GrantTypes
	case "token_endpoint_auth_method":
		v = m.TokenEndpointAuthMethod
	case "token_endpoint_auth_signing_alg":
		v = m.TokenEndpointAuthSigningAlg
	case "introspection_endpoint_auth_method":
		v = m.IntrospectionEndpointAuthMethod
	case "revocation_endpoint_auth_method":
		v = m.RevocationEndpointAuthMethod
	case "id_token_signed_response_alg":
		v = m.IDTokenSignedResponseAlg
	case "authorization_signed_response_alg":
		v = m.AuthorizationSignedResponseAlg
	case "userinfo_signed_response_alg":
		v = m.UserinfoSignedResponseAlg
	case "tls_client_certificate_bound_access_tokens":
		return m.TLSClientCertificateBoundAccessTokens, true
	case "post_logout_redirect_uris":
		v = m.PostLogoutRedirectURIs
	default:
		ev, ok := m.Extra[key]
		return ev, ok
	}
	return v, !isZeroValue(v)
}

// Has reports whether the metadata has a value for key.
func (m *ClientMetadata) Has(key string) bool {
	_, ok := m.Get(key)
	return ok
}

// authMethodFor returns the auth method configured for an endpoint key like
// "token_endpoint".
func (m *ClientMetadata) authMethodFor(endpointKey string) string {
	if v, ok := m.Get(endpointKey + "_auth_method"); ok {
		return stringValue(v)
	}
	return m.TokenEndpointAuthMethod
}

func isZeroValue(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case ClientSecret:
		return t == ""
	case []string:
		return len(t) == 0
	default:
		return false
	}
}
