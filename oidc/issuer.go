// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"

	"github.com/hashicorp/cap-rp/jwt"
)

// IssuerMetadata is the provider metadata returned by discovery (or statically
// configured).  See:
// https://openid.net/specs/openid-connect-discovery-1_0.html#ProviderMetadata
//
// Extra holds any metadata which isn't a recognized field and is reachable
// via Get and Has along with the recognized fields.
type IssuerMetadata struct {
	Issuer                             string `json:"issuer" yaml:"issuer"`
	AuthorizationEndpoint              string `json:"authorization_endpoint,omitempty" yaml:"authorization_endpoint,omitempty"`
	TokenEndpoint                      string `json:"token_endpoint,omitempty" yaml:"token_endpoint,omitempty"`
	UserinfoEndpoint                   string `json:"userinfo_endpoint,omitempty" yaml:"userinfo_endpoint,omitempty"`
	JWKSURI                            string `json:"jwks_uri,omitempty" yaml:"jwks_uri,omitempty"`
	IntrospectionEndpoint              string `json:"introspection_endpoint,omitempty" yaml:"introspection_endpoint,omitempty"`
	RevocationEndpoint                 string `json:"revocation_endpoint,omitempty" yaml:"revocation_endpoint,omitempty"`
	EndSessionEndpoint                 string `json:"end_session_endpoint,omitempty" yaml:"end_session_endpoint,omitempty"`
	PushedAuthorizationRequestEndpoint string `json:"pushed_authorization_request_endpoint,omitempty" yaml:"pushed_authorization_request_endpoint,omitempty"`

	// MTLSEndpointAliases are the endpoints a client using mutual TLS must use
	// instead of the plain ones.  See:
	// https://www.rfc-editor.org/rfc/rfc8705#section-5
	MTLSEndpointAliases map[string]string `json:"mtls_endpoint_aliases,omitempty" yaml:"mtls_endpoint_aliases,omitempty"`

	ScopesSupported                   []string `json:"scopes_supported,omitempty" yaml:"scopes_supported,omitempty"`
	ResponseTypesSupported            []string `json:"response_types_supported,omitempty" yaml:"response_types_supported,omitempty"`
	ResponseModesSupported            []string `json:"response_modes_supported,omitempty" yaml:"response_modes_supported,omitempty"`
	GrantTypesSupported               []string `json:"grant_types_supported,omitempty" yaml:"grant_types_supported,omitempty"`
	IDTokenSigningAlgValuesSupported  []string `json:"id_token_signing_alg_values_supported,omitempty" yaml:"id_token_signing_alg_values_supported,omitempty"`
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported,omitempty" yaml:"token_endpoint_auth_methods_supported,omitempty"`
	CodeChallengeMethodsSupported     []string `json:"code_challenge_methods_supported,omitempty" yaml:"code_challenge_methods_supported,omitempty"`
	ClaimsSupported                   []string `json:"claims_supported,omitempty" yaml:"claims_supported,omitempty"`

	Extra map[string]interface{} `json:"-" yaml:"extra,omitempty"`
}

// UnmarshalJSON unmarshals the recognized fields and keeps every other key
// in Extra.
func (m *IssuerMetadata) UnmarshalJSON(data []byte) error {
	type plain IssuerMetadata
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*m = IssuerMetadata(p)
	m.Extra = nil
	for k, v := range raw {
		if isIssuerField(k) {
			continue
		}
		if m.Extra == nil {
			m.Extra = map[string]interface{}{}
		}
		m.Extra[k] = v
	}
	return nil
}

// Validate the issuer metadata.  All problems found are returned together.
func (m *IssuerMetadata) Validate() error {
	const op = "IssuerMetadata.Validate"
	if m == nil {
		return fmt.Errorf("%s: issuer metadata is nil: %w", op, ErrNilParameter)
	}
	var result *multierror.Error
	if m.Issuer == "" {
		result = multierror.Append(result, fmt.Errorf("issuer is empty: %w", ErrInvalidParameter))
	}
	for _, k := range issuerEndpointKeys {
		v, _ := m.Get(k)
		s := stringValue(v)
		if s == "" {
			continue
		}
		if _, err := url.Parse(s); err != nil {
			result = multierror.Append(result, fmt.Errorf("%s %q is invalid: %w: %w", k, s, ErrInvalidParameter, err))
		}
	}
	for _, alg := range m.IDTokenSigningAlgValuesSupported {
		if alg != "none" && !isSupportedAlg(alg) {
			result = multierror.Append(result, fmt.Errorf("unsupported signing alg %q: %w", alg, ErrInvalidParameter))
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Get returns the metadata value for the provider metadata name key.
func (m *IssuerMetadata) Get(key string) (interface{}, bool) {
	var v interface{}
	switch key {
	case "issuer":
		v = m.Issuer
	case "authorization_endpoint":
		v = m.AuthorizationEndpoint
	case "token_endpoint":
		v = m.TokenEndpoint
	case "userinfo_endpoint":
		v = m.UserinfoEndpoint
	case "jwks_uri":
		v = m.JWKSURI
	case "introspection_endpoint":
		v = m.IntrospectionEndpoint
	case "revocation_endpoint":
		v = m.RevocationEndpoint
	case "end_session_endpoint":
		v = m.EndSessionEndpoint
	case "pushed_authorization_request_endpoint":
		v = m.PushedAuthorizationRequestEndpoint
	case "mtls_endpoint_aliases":
		if len(m.MTLSEndpointAliases) == 0 {
			return nil, false
		}
		return m.MTLSEndpointAliases, true
	case "scopes_supported":
		v = m.ScopesSupported
	case "response_types_supported":
		v = m.ResponseTypesSupported
	case "response_modes_supported":
		v = m.ResponseModesSupported
	case "grant_types_supported":
		v = m.GrantTypesSupported
	case "id_token_signing_alg_values_supported":
		v = m.IDTokenSigningAlgValuesSupported
	case "token_endpoint_auth_methods_supported":
		v = m.TokenEndpointAuthMethodsSupported
	case "code_challenge_methods_supported":
		v = m.CodeChallengeMethodsSupported
	case "claims_supported":
		v = m.ClaimsSupported
	default:
		ev, ok := m.Extra[key]
		return ev, ok
	}
	return v, !isZeroValue(v)
}

// Has reports whether the metadata has a value for key.
func (m *IssuerMetadata) Has(key string) bool {
	_, ok := m.Get(key)
	return ok
}

var issuerEndpointKeys = []string{
	"authorization_endpoint",
	"token_endpoint",
	"userinfo_endpoint",
	"jwks_uri",
	"introspection_endpoint",
	"revocation_endpoint",
	"end_session_endpoint",
	"pushed_authorization_request_endpoint",
}

func isIssuerField(key string) bool {
	switch key {
	case "extra":
		return false
	case "issuer", "mtls_endpoint_aliases", "scopes_supported", "response_types_supported",
		"response_modes_supported", "grant_types_supported", "id_token_signing_alg_values_supported",
		"token_endpoint_auth_methods_supported", "code_challenge_methods_supported", "claims_supported":
		return true
	}
	for _, k := range issuerEndpointKeys {
		if k == key {
			return true
		}
	}
	return false
}

// Issuer is an OIDC provider as seen by the relying party: its metadata and
// the KeySet which verifies the signatures of the JWTs it issues.  An Issuer
// is read only once created and may be shared by any number of Clients.
type Issuer struct {
	metadata *IssuerMetadata
	keySet   jwt.KeySet
}

// NewIssuer creates an Issuer from static metadata and a KeySet.
func NewIssuer(md *IssuerMetadata, keySet jwt.KeySet) (*Issuer, error) {
	const op = "NewIssuer"
	if err := md.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if keySet == nil {
		return nil, fmt.Errorf("%s: key set is nil: %w", op, ErrNilParameter)
	}
	cp := *md
	return &Issuer{
		metadata: &cp,
		keySet:   keySet,
	}, nil
}

// DiscoverIssuer retrieves the provider's metadata using OIDC discovery and
// creates an Issuer whose KeySet fetches the provider's JWKS (refreshing it
// when the provider rotates its keys).
//
// Supported options:
//   - WithHTTPClient (an *http.Client is used for both discovery and the JWKS)
//   - WithLogger
func DiscoverIssuer(ctx context.Context, issuerURL string, opt ...Option) (*Issuer, error) {
	const op = "DiscoverIssuer"
	if issuerURL == "" {
		return nil, fmt.Errorf("%s: issuer url is empty: %w", op, ErrInvalidParameter)
	}
	opts := getIssuerOpts(opt...)
	if hc, ok := opts.withHTTPClient.(*http.Client); ok {
		ctx = oidc.ClientContext(ctx, hc)
	}
	opts.withLogger.Debug("discovering issuer", "issuer", issuerURL)

	provider, err := oidc.NewProvider(ctx, issuerURL)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to discover issuer: %w: %w", op, ErrTransport, err)
	}
	var md IssuerMetadata
	if err := provider.Claims(&md); err != nil {
		return nil, fmt.Errorf("%s: unable to read issuer metadata: %w: %w", op, ErrInvalidMetadata, err)
	}
	if md.JWKSURI == "" {
		return nil, fmt.Errorf("%s: jwks_uri is missing: %w", op, ErrInvalidMetadata)
	}
	// the key set outlives this call, so it must not be canceled with ctx
	keySet := oidc.NewRemoteKeySet(context.WithoutCancel(ctx), md.JWKSURI)
	iss, err := NewIssuer(&md, keySet)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrInvalidMetadata, err)
	}
	opts.withLogger.Debug("discovered issuer", "issuer", md.Issuer, "jwks_uri", md.JWKSURI)
	return iss, nil
}

// Metadata returns the issuer's metadata.  It must be treated as read only.
func (i *Issuer) Metadata() *IssuerMetadata { return i.metadata }

// KeySet returns the issuer's KeySet.
func (i *Issuer) KeySet() jwt.KeySet { return i.keySet }

// issuerOptions is the set of available options for DiscoverIssuer
type issuerOptions struct {
	withLogger     hclog.Logger
	withHTTPClient HTTPClient
}

func issuerDefaults() issuerOptions {
	return issuerOptions{
		withLogger: hclog.NewNullLogger(),
	}
}

func getIssuerOpts(opt ...Option) issuerOptions {
	opts := issuerDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}
