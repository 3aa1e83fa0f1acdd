// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/hashicorp/cap-rp/oidc/clientassertion"
)

// Client authentication methods.  See:
// https://openid.net/specs/openid-connect-core-1_0.html#ClientAuthentication
// and https://www.rfc-editor.org/rfc/rfc8705#section-2
const (
	AuthMethodNone                    = "none"
	AuthMethodClientSecretBasic       = "client_secret_basic"
	AuthMethodClientSecretPost        = "client_secret_post"
	AuthMethodClientSecretJWT         = "client_secret_jwt"
	AuthMethodPrivateKeyJWT           = "private_key_jwt"
	AuthMethodTLSClientAuth           = "tls_client_auth"
	AuthMethodSelfSignedTLSClientAuth = "self_signed_tls_client_auth"
)

// AuthMethod authenticates a client on a request to the token, introspection
// or revocation endpoint.
type AuthMethod interface {
	// Name is the registered name of the method.
	Name() string

	// CreateRequest returns a clone of req carrying the form encoded body
	// (with the method's client authentication params added) and any header
	// the method needs.  req and body are not modified.
	CreateRequest(req *http.Request, c *Client, body url.Values) (*http.Request, error)
}

// AuthMethodFactory creates the AuthMethod for a registered method name.
type AuthMethodFactory interface {
	Create(name string) (AuthMethod, error)
}

// NewAuthMethodFactory returns a factory supporting the given methods.  With
// no methods, every built-in method is supported.
func NewAuthMethodFactory(methods ...AuthMethod) AuthMethodFactory {
	if len(methods) == 0 {
		methods = builtinAuthMethods()
	}
	f := authMethodFactory{}
	for _, m := range methods {
		f[m.Name()] = m
	}
	return f
}

type authMethodFactory map[string]AuthMethod

// Create the AuthMethod registered with name.
func (f authMethodFactory) Create(name string) (AuthMethod, error) {
	const op = "AuthMethodFactory.Create"
	m, ok := f[name]
	if !ok {
		return nil, fmt.Errorf("%s: %q: %w", op, name, ErrUnsupportedAuthMethod)
	}
	return m, nil
}

func builtinAuthMethods() []AuthMethod {
	return []AuthMethod{
		noneAuth{},
		clientSecretBasic{},
		clientSecretPost{},
		clientSecretJWT{},
		privateKeyJWT{},
		tlsClientAuth{name: AuthMethodTLSClientAuth},
		tlsClientAuth{name: AuthMethodSelfSignedTLSClientAuth},
	}
}

func isBuiltinAuthMethod(name string) bool {
	switch name {
	case AuthMethodNone, AuthMethodClientSecretBasic, AuthMethodClientSecretPost,
		AuthMethodClientSecretJWT, AuthMethodPrivateKeyJWT,
		AuthMethodTLSClientAuth, AuthMethodSelfSignedTLSClientAuth:
		return true
	default:
		return false
	}
}

// formRequest clones req with body as its form encoded body.
func formRequest(req *http.Request, body url.Values) *http.Request {
	encoded := body.Encode()
	r := req.Clone(req.Context())
	r.Body = io.NopCloser(strings.NewReader(encoded))
	r.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader([]byte(encoded))), nil
	}
	r.ContentLength = int64(len(encoded))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return r
}

func copyValues(v url.Values) url.Values {
	cp := make(url.Values, len(v))
	for k, vv := range v {
		cp[k] = append([]string(nil), vv...)
	}
	return cp
}

func checkAuthRequest(op string, req *http.Request, c *Client) error {
	if req == nil {
		return fmt.Errorf("%s: request is nil: %w", op, ErrNilParameter)
	}
	if c == nil {
		return fmt.Errorf("%s: client is nil: %w", op, ErrNilParameter)
	}
	return nil
}

type noneAuth struct{}

func (noneAuth) Name() string { return AuthMethodNone }

func (noneAuth) CreateRequest(req *http.Request, c *Client, body url.Values) (*http.Request, error) {
	const op = "none.CreateRequest"
	if err := checkAuthRequest(op, req, c); err != nil {
		return nil, err
	}
	b := copyValues(body)
	b.Set("client_id", c.metadata.ClientID)
	return formRequest(req, b), nil
}

type clientSecretBasic struct{}

func (clientSecretBasic) Name() string { return AuthMethodClientSecretBasic }

func (clientSecretBasic) CreateRequest(req *http.Request, c *Client, body url.Values) (*http.Request, error) {
	const op = "client_secret_basic.CreateRequest"
	if err := checkAuthRequest(op, req, c); err != nil {
		return nil, err
	}
	if c.metadata.ClientSecret == "" {
		return nil, fmt.Errorf("%s: client_secret is required: %w", op, ErrInvalidParameter)
	}
	r := formRequest(req, copyValues(body))
	// client id and secret are form url encoded before being used as the
	// basic auth credentials, see: https://www.rfc-editor.org/rfc/rfc6749#section-2.3.1
	r.SetBasicAuth(url.QueryEscape(c.metadata.ClientID), url.QueryEscape(string(c.metadata.ClientSecret)))
	return r, nil
}

type clientSecretPost struct{}

func (clientSecretPost) Name() string { return AuthMethodClientSecretPost }

func (clientSecretPost) CreateRequest(req *http.Request, c *Client, body url.Values) (*http.Request, error) {
	const op = "client_secret_post.CreateRequest"
	if err := checkAuthRequest(op, req, c); err != nil {
		return nil, err
	}
	if c.metadata.ClientSecret == "" {
		return nil, fmt.Errorf("%s: client_secret is required: %w", op, ErrInvalidParameter)
	}
	b := copyValues(body)
	b.Set("client_id", c.metadata.ClientID)
	b.Set("client_secret", string(c.metadata.ClientSecret))
	return formRequest(req, b), nil
}

type clientSecretJWT struct{}

func (clientSecretJWT) Name() string { return AuthMethodClientSecretJWT }

func (clientSecretJWT) CreateRequest(req *http.Request, c *Client, body url.Values) (*http.Request, error) {
	const op = "client_secret_jwt.CreateRequest"
	if err := checkAuthRequest(op, req, c); err != nil {
		return nil, err
	}
	if c.metadata.ClientSecret == "" {
		return nil, fmt.Errorf("%s: client_secret is required: %w", op, ErrInvalidParameter)
	}
	alg := c.metadata.TokenEndpointAuthSigningAlg
	if alg == "" {
		alg = string(HS256)
	}
	j, err := clientassertion.NewJWT(
		c.metadata.ClientID,
		[]string{c.issuer.metadata.Issuer},
		clientassertion.WithClientSecret(string(c.metadata.ClientSecret), clientassertion.HSAlgorithm(alg)),
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrInvalidParameter, err)
	}
	return assertionRequest(op, req, c, body, j)
}

type privateKeyJWT struct{}

func (privateKeyJWT) Name() string { return AuthMethodPrivateKeyJWT }

func (privateKeyJWT) CreateRequest(req *http.Request, c *Client, body url.Values) (*http.Request, error) {
	const op = "private_key_jwt.CreateRequest"
	if err := checkAuthRequest(op, req, c); err != nil {
		return nil, err
	}
	key, ok := c.signingKey(c.metadata.TokenEndpointAuthSigningAlg)
	if !ok {
		return nil, fmt.Errorf("%s: a private signing key is required: %w", op, ErrInvalidParameter)
	}
	alg := c.metadata.TokenEndpointAuthSigningAlg
	if alg == "" {
		alg = key.Algorithm
	}
	if alg == "" {
		alg = string(RS256)
	}
	j, err := clientassertion.NewJWT(
		c.metadata.ClientID,
		[]string{c.issuer.metadata.Issuer},
		clientassertion.WithKey(key, clientassertion.KeyAlgorithm(alg)),
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrInvalidParameter, err)
	}
	return assertionRequest(op, req, c, body, j)
}

func assertionRequest(op string, req *http.Request, c *Client, body url.Values, j *clientassertion.JWT) (*http.Request, error) {
	assertion, err := j.Serialize()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	b := copyValues(body)
	b.Set("client_id", c.metadata.ClientID)
	b.Set("client_assertion_type", clientassertion.JWTTypeParam)
	b.Set("client_assertion", assertion)
	return formRequest(req, b), nil
}

// tlsClientAuth only identifies the client in the body: the client
// certificate is presented by the http client's TLS config.
type tlsClientAuth struct {
	name string
}

func (m tlsClientAuth) Name() string { return m.name }

func (m tlsClientAuth) CreateRequest(req *http.Request, c *Client, body url.Values) (*http.Request, error) {
	op := m.name + ".CreateRequest"
	if err := checkAuthRequest(op, req, c); err != nil {
		return nil, err
	}
	b := copyValues(body)
	b.Set("client_id", c.metadata.ClientID)
	return formRequest(req, b), nil
}
