// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"fmt"
	"net/http"

	"github.com/go-jose/go-jose/v4"
)

// HTTPClient sends http requests.  It's satisfied by *http.Client.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client is a relying party registered with an Issuer: its metadata, the
// Issuer, the factory for its auth methods, its optional private JWKS (for
// private_key_jwt) and an optional http client of its own.  A Client is read
// only once created and is safe for concurrent use.
type Client struct {
	metadata    *ClientMetadata
	issuer      *Issuer
	authMethods AuthMethodFactory
	jwks        *jose.JSONWebKeySet
	httpClient  HTTPClient
}

// NewClient creates a Client.  The metadata is validated and the
// registration defaults are applied (response_types: [code],
// token_endpoint_auth_method: client_secret_basic, RS256 for signed
// responses).
//
// Supported options:
//   - WithAuthMethodFactory
//   - WithJWKS
//   - WithHTTPClient
func NewClient(issuer *Issuer, md *ClientMetadata, opt ...Option) (*Client, error) {
	const op = "NewClient"
	if issuer == nil {
		return nil, fmt.Errorf("%s: issuer is nil: %w", op, ErrNilParameter)
	}
	if err := md.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	opts := getClientOpts(opt...)
	if opts.withJWKS != nil {
		for _, k := range opts.withJWKS.Keys {
			if !k.Valid() {
				return nil, fmt.Errorf("%s: invalid jwk %q: %w", op, k.KeyID, ErrInvalidParameter)
			}
		}
	}
	return &Client{
		metadata:    md.withDefaults(),
		issuer:      issuer,
		authMethods: opts.withAuthMethodFactory,
		jwks:        opts.withJWKS,
		httpClient:  opts.withHTTPClient,
	}, nil
}

// Metadata returns the client's metadata with its defaults applied.  It must
// be treated as read only.
func (c *Client) Metadata() *ClientMetadata { return c.metadata }

// Issuer returns the client's Issuer.
func (c *Client) Issuer() *Issuer { return c.issuer }

// AuthMethodFactory returns the factory used to create the client's auth
// methods.
func (c *Client) AuthMethodFactory() AuthMethodFactory { return c.authMethods }

// JWKS returns the client's private JWKS, or nil.
func (c *Client) JWKS() *jose.JSONWebKeySet { return c.jwks }

// HTTPClient returns the client's own http client, or nil when the services'
// http client should be used.
func (c *Client) HTTPClient() HTTPClient { return c.httpClient }

// signingKey returns the first private key of the client's JWKS which can sign
// with alg.  An empty alg matches the first private signing key.
func (c *Client) signingKey(alg string) (*jose.JSONWebKey, bool) {
	if c.jwks == nil {
		return nil, false
	}
	for i := range c.jwks.Keys {
		k := &c.jwks.Keys[i]
		if k.IsPublic() || (k.Use != "" && k.Use != "sig") {
			continue
		}
		if alg == "" || k.Algorithm == "" || k.Algorithm == alg {
			return k, true
		}
	}
	return nil, false
}

// clientOptions is the set of available options for NewClient
type clientOptions struct {
	withAuthMethodFactory AuthMethodFactory
	withJWKS              *jose.JSONWebKeySet
	withHTTPClient        HTTPClient
}

func clientDefaults() clientOptions {
	return clientOptions{
		withAuthMethodFactory: NewAuthMethodFactory(),
	}
}

func getClientOpts(opt ...Option) clientOptions {
	opts := clientDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithAuthMethodFactory provides an optional AuthMethodFactory for NewClient.
// The default supports every built-in auth method.
func WithAuthMethodFactory(f AuthMethodFactory) Option {
	return func(o interface{}) {
		if o, ok := o.(*clientOptions); ok && f != nil {
			o.withAuthMethodFactory = f
		}
	}
}

// WithJWKS provides the client's private JWKS for NewClient.  Its private
// signing keys are used by the private_key_jwt auth method.
func WithJWKS(jwks *jose.JSONWebKeySet) Option {
	return func(o interface{}) {
		if o, ok := o.(*clientOptions); ok {
			o.withJWKS = jwks
		}
	}
}
