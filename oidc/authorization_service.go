// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/google/go-querystring/query"
)

// AuthorizationService is the relying party's protocol engine: it builds
// authorization request URLs, parses callbacks, verifies id_tokens and JWT
// secured authorization responses, and exchanges codes and refresh tokens
// at the token endpoint.
//
// An AuthorizationService holds no per request state and is safe for
// concurrent use.  It never retries a request and never caches keys: every
// signature is verified by the Issuer's KeySet.
type AuthorizationService struct {
	service
	idTokenVerifiers  TokenVerifierBuilder
	responseVerifiers TokenVerifierBuilder
}

// NewAuthorizationService creates an AuthorizationService.
//
// Supported options:
//   - WithHTTPClient (default: a pooled go-cleanhttp client)
//   - WithLogger
//   - WithNow
//   - WithIDTokenVerifierBuilder
//   - WithResponseVerifierBuilder
func NewAuthorizationService(opt ...Option) *AuthorizationService {
	opts := getServiceOpts(opt...)
	return &AuthorizationService{
		service:           newService(opts),
		idTokenVerifiers:  opts.withIDTokenVerifierBuilder,
		responseVerifiers: opts.withResponseVerifierBuilder,
	}
}

// AuthorizationURL returns the URL of the authorization request the user agent
// must be redirected to.  The params are merged over the client's defaults
// (client_id, scope=openid, the first registered response_type and
// redirect_uri) and a nil param removes a default.  Any query already part of
// the issuer's authorization_endpoint is kept, with params taking precedence.
//
// A nonce is required for every response_type other than "code".
func (s *AuthorizationService) AuthorizationURL(c *Client, params map[string]interface{}) (string, error) {
	const op = "AuthorizationService.AuthorizationURL"
	if c == nil {
		return "", fmt.Errorf("%s: client is nil: %w", op, ErrNilParameter)
	}
	merged := map[string]interface{}{
		"client_id":     c.metadata.ClientID,
		"scope":         DefaultScope,
		"response_type": c.metadata.ResponseTypes[0],
	}
	if len(c.metadata.RedirectURIs) > 0 {
		merged["redirect_uri"] = c.metadata.RedirectURIs[0]
	}
	for k, v := range params {
		merged[k] = v
	}
	merged = copyParams(merged)

	if stringValue(merged["response_type"]) != "code" && stringValue(merged["nonce"]) == "" {
		return "", fmt.Errorf("%s: %w: %w", op, ErrInvalidParameter, ErrMissingNonce)
	}
	return buildURL(op, c, "authorization_endpoint", merged)
}

// EndSessionURL returns the URL of an RP-initiated logout request.  The
// params are merged over the client's defaults (client_id and the first
// registered post_logout_redirect_uri).  See:
// https://openid.net/specs/openid-connect-rpinitiated-1_0.html#RPLogout
func (s *AuthorizationService) EndSessionURL(c *Client, params map[string]interface{}) (string, error) {
	const op = "AuthorizationService.EndSessionURL"
	if c == nil {
		return "", fmt.Errorf("%s: client is nil: %w", op, ErrNilParameter)
	}
	merged := map[string]interface{}{
		"client_id": c.metadata.ClientID,
	}
	if len(c.metadata.PostLogoutRedirectURIs) > 0 {
		merged["post_logout_redirect_uri"] = c.metadata.PostLogoutRedirectURIs[0]
	}
	for k, v := range params {
		merged[k] = v
	}
	return buildURL(op, c, "end_session_endpoint", copyParams(merged))
}

// buildURL appends params to the query of the issuer endpoint named key.
func buildURL(op string, c *Client, key string, params map[string]interface{}) (string, error) {
	v, _ := c.issuer.metadata.Get(key)
	endpoint, _ := v.(string)
	if endpoint == "" {
		return "", fmt.Errorf("%s: %q: %w", op, key, ErrMissingEndpoint)
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("%s: %q is invalid: %w: %w", op, key, ErrInvalidMetadata, err)
	}
	q := u.Query()
	for k, v := range params {
		s, err := paramString(k, v)
		if err != nil {
			return "", fmt.Errorf("%s: %w", op, err)
		}
		q.Set(k, s)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// CallbackParams extracts the authorization response params from the
// callback request: the form encoded body of a POST (response_mode=form_post),
// otherwise the fragment of a GET when it has one, otherwise the query of a
// GET.  Any other method fails with ErrInvalidCallbackMethod.  The params are
// then processed by ProcessResponseParams.
//
// The fragment of a request is never sent by a user agent, so a fragment
// response only reaches a server when it's relayed (by a page script, for
// instance) as the request URL's fragment.
func (s *AuthorizationService) CallbackParams(ctx context.Context, req *http.Request, c *Client) (map[string]interface{}, error) {
	const op = "AuthorizationService.CallbackParams"
	if req == nil {
		return nil, fmt.Errorf("%s: request is nil: %w", op, ErrNilParameter)
	}
	var raw string
	switch req.Method {
	case http.MethodPost:
		if req.Body == nil {
			break
		}
		body, err := io.ReadAll(io.LimitReader(req.Body, maxResponseSize))
		if err != nil {
			return nil, fmt.Errorf("%s: unable to read body: %w: %w", op, ErrInvalidParameter, err)
		}
		raw = string(body)
	case http.MethodGet:
		raw = req.URL.RawQuery
		if req.URL.Fragment != "" {
			raw = req.URL.Fragment
		}
	default:
		return nil, fmt.Errorf("%s: %q: %w", op, req.Method, ErrInvalidCallbackMethod)
	}
	params, err := parseFormParams(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return s.ProcessResponseParams(ctx, c, params)
}

// ProcessResponseParams unpacks a JWT secured authorization response (a
// "response" param) after verifying it, and returns an *OAuth2Error when the
// params are an oauth2 error object.
func (s *AuthorizationService) ProcessResponseParams(ctx context.Context, c *Client, params map[string]interface{}) (map[string]interface{}, error) {
	const op = "AuthorizationService.ProcessResponseParams"
	if response, ok := params["response"].(string); ok && response != "" {
		if c == nil {
			return nil, fmt.Errorf("%s: client is nil: %w", op, ErrNilParameter)
		}
		v, err := s.responseVerifiers.Build(c)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		claims, err := v.Verify(ctx, response)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		params = claims
	}
	if oauthErr := NewOAuth2ErrorFromParams(params); oauthErr != nil {
		s.logger.Warn("provider returned an error", "error", oauthErr.Code, "error_description", oauthErr.Description)
		return nil, fmt.Errorf("%s: %w", op, oauthErr)
	}
	return params, nil
}

// Callback processes authorization response params (typically returned by
// CallbackParams) and returns a TokenSet.  An id_token in the params is
// verified first, bound to the AuthSession's nonce and state, to the code and
// to the access_token.  Without a code the TokenSet is returned as is
// (implicit flow); with a code, the token is fetched with FetchToken.
//
// The AuthSession's state, when it has one, must equal the response's state.
//
// Supported options:
//   - WithAuthSession
//   - WithRedirectURI
//   - WithMaxAge
func (s *AuthorizationService) Callback(ctx context.Context, c *Client, params map[string]interface{}, opt ...Option) (*TokenSet, error) {
	const op = "AuthorizationService.Callback"
	if c == nil {
		return nil, fmt.Errorf("%s: client is nil: %w", op, ErrNilParameter)
	}
	opts := getCallbackOpts(opt...)
	ts := newTokenSet(params, s.now())

	if sess := opts.withAuthSession; sess != nil && sess.State != "" && ts.State() != sess.State {
		return nil, invalidToken(op, ErrInvalidState)
	}
	if ts.IDToken() != "" {
		v, err := s.idTokenVerifier(c, opts)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		claims, err := v.
			WithCode(ts.Code()).
			WithAccessToken(string(ts.AccessToken())).
			Verify(ctx, string(ts.IDToken()))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		ts = ts.WithClaims(claims)
	}
	if ts.Code() == "" {
		return ts, nil
	}
	return s.FetchToken(ctx, c, ts, opt...)
}

// FetchToken exchanges the TokenSet's code at the token endpoint
// (grant_type=authorization_code).  The redirect_uri is the WithRedirectURI
// option or the client's first registered one.  The AuthSession's
// code_verifier is sent when it has one, and a returned id_token is verified
// bound to the AuthSession's nonce and state and to the access_token.
//
// Supported options:
//   - WithAuthSession
//   - WithRedirectURI
//   - WithMaxAge
func (s *AuthorizationService) FetchToken(ctx context.Context, c *Client, ts *TokenSet, opt ...Option) (*TokenSet, error) {
	const op = "AuthorizationService.FetchToken"
	switch {
	case c == nil:
		return nil, fmt.Errorf("%s: client is nil: %w", op, ErrNilParameter)
	case ts == nil:
		return nil, fmt.Errorf("%s: token set is nil: %w", op, ErrNilParameter)
	case ts.Code() == "":
		return nil, fmt.Errorf("%s: %w", op, ErrMissingCode)
	}
	opts := getCallbackOpts(opt...)
	redirectURI := opts.withRedirectURI
	if redirectURI == "" && len(c.metadata.RedirectURIs) > 0 {
		redirectURI = c.metadata.RedirectURIs[0]
	}
	if redirectURI == "" {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrInvalidParameter, ErrMissingRedirectURI)
	}
	req := codeGrantRequest{
		GrantType:   "authorization_code",
		Code:        ts.Code(),
		RedirectURI: redirectURI,
	}
	if opts.withAuthSession != nil {
		req.CodeVerifier = opts.withAuthSession.CodeVerifier
	}
	body, err := query.Values(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrRuntime, err)
	}
	result, err := s.grant(ctx, c, body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if result.IDToken() == "" {
		// keep what was verified from the authorization response
		return result.WithClaims(ts.Claims()), nil
	}
	v, err := s.idTokenVerifier(c, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	claims, err := v.WithAccessToken(string(result.AccessToken())).Verify(ctx, string(result.IDToken()))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result.WithClaims(claims), nil
}

// Grant sends a token request with the params (which must include a
// grant_type) to the token endpoint and returns the resulting TokenSet.  An
// id_token in the response isn't verified.
func (s *AuthorizationService) Grant(ctx context.Context, c *Client, params map[string]string) (*TokenSet, error) {
	const op = "AuthorizationService.Grant"
	if c == nil {
		return nil, fmt.Errorf("%s: client is nil: %w", op, ErrNilParameter)
	}
	if params["grant_type"] == "" {
		return nil, fmt.Errorf("%s: grant_type is missing: %w", op, ErrInvalidParameter)
	}
	body := url.Values{}
	for k, v := range params {
		body.Set(k, v)
	}
	ts, err := s.grant(ctx, c, body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return ts, nil
}

// Refresh exchanges the refresh token at the token endpoint
// (grant_type=refresh_token), along with any additional params.  A returned
// id_token is verified bound to the returned access_token only: a refresh
// isn't a redirect flow and has no nonce or state.
func (s *AuthorizationService) Refresh(ctx context.Context, c *Client, refreshToken RefreshToken, params map[string]string) (*TokenSet, error) {
	const op = "AuthorizationService.Refresh"
	switch {
	case c == nil:
		return nil, fmt.Errorf("%s: client is nil: %w", op, ErrNilParameter)
	case refreshToken == "":
		return nil, fmt.Errorf("%s: refresh token is empty: %w", op, ErrInvalidParameter)
	}
	body, err := query.Values(refreshGrantRequest{
		GrantType:    "refresh_token",
		RefreshToken: string(refreshToken),
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrRuntime, err)
	}
	for k, v := range params {
		if _, reserved := body[k]; reserved {
			continue
		}
		body.Set(k, v)
	}
	ts, err := s.grant(ctx, c, body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if ts.IDToken() == "" {
		return ts, nil
	}
	v, err := s.idTokenVerifiers.Build(c)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	claims, err := v.WithAccessToken(string(ts.AccessToken())).Verify(ctx, string(ts.IDToken()))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return ts.WithClaims(claims), nil
}

// ResolveEndpoint returns the issuer endpoint for the metadata key (like
// "token_endpoint"), preferring the issuer's mtls alias for a client which
// authenticates with mutual TLS.
func (s *AuthorizationService) ResolveEndpoint(c *Client, key string) (string, error) {
	return resolveEndpoint(c, key)
}

func (s *AuthorizationService) grant(ctx context.Context, c *Client, body url.Values) (*TokenSet, error) {
	const op = "grant"
	s.logger.Debug("token request", "grant_type", body.Get("grant_type"), "client_id", c.metadata.ClientID)
	resp, err := s.postForm(ctx, c, "token_endpoint", body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	data, err := ParseMetadataResponse(resp, http.StatusOK)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	data, err = s.ProcessResponseParams(ctx, c, data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return newTokenSet(data, s.now()), nil
}

// idTokenVerifier builds the id_token verifier bound to the AuthSession and
// max age of the options.
func (s *AuthorizationService) idTokenVerifier(c *Client, opts callbackOptions) (TokenVerifier, error) {
	v, err := s.idTokenVerifiers.Build(c)
	if err != nil {
		return nil, err
	}
	if sess := opts.withAuthSession; sess != nil {
		v = v.WithNonce(sess.Nonce).WithState(sess.State)
	}
	if opts.withMaxAge != nil {
		v = v.WithMaxAge(*opts.withMaxAge)
	}
	return v, nil
}

type codeGrantRequest struct {
	GrantType    string `url:"grant_type"`
	Code         string `url:"code"`
	RedirectURI  string `url:"redirect_uri"`
	CodeVerifier string `url:"code_verifier,omitempty"`
}

type refreshGrantRequest struct {
	GrantType    string `url:"grant_type"`
	RefreshToken string `url:"refresh_token"`
}

// callbackOptions is the set of available options for
// AuthorizationService.Callback and FetchToken
type callbackOptions struct {
	withRedirectURI string
	withAuthSession *AuthSession
	withMaxAge      *uint
}

func callbackDefaults() callbackOptions {
	return callbackOptions{}
}

func getCallbackOpts(opt ...Option) callbackOptions {
	opts := callbackDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}
