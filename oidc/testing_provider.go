// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"bytes"
	"encoding/json"
	"encoding/pem"
	"io"
	"log"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"
	josejwt "github.com/go-jose/go-jose/v4/jwt"
	"github.com/stretchr/testify/require"

	"github.com/hashicorp/cap-rp/jwt"
	"github.com/hashicorp/cap-rp/oidc/internal/strutils"
)

// TestProvider is a local TLS server that plays the provider side of the
// flows this package implements, which makes writing tests much easier.
// It serves discovery, a JWKS, an authorization endpoint, a token endpoint
// (authorization_code and refresh_token grants), userinfo (JSON or signed),
// introspection, revocation and end session.  Every JWT it issues is signed
// with ES256.
type TestProvider struct {
	httpServer *httptest.Server
	caCert     string

	mu                   sync.Mutex
	t                    *testing.T
	clientID             string
	clientSecret         string
	allowedRedirectURIs  []string
	expectedAuthCode     string
	expectedAuthNonce    string
	expectedCodeVerifier string
	replySubject         string
	replyUserinfo        map[string]interface{}
	signedUserinfo       bool
	customClaims         map[string]interface{}
	customAudience       string
	omitIDToken          bool
	accessToken          string
	refreshToken         string
	tokenError           *OAuth2Error
	tokenErrorStatus     int
	tokenRequests        []url.Values
	revoked              []string

	keyID           string
	privateKey      jose.JSONWebKey
	ecdsaPublicKey  string
	ecdsaPrivateKey string
}

// StartTestProvider creates and starts a disposable TestProvider which is
// stopped by the test's cleanup.
//
// Supported options:
//   - WithTestPort
func StartTestProvider(t *testing.T, opt ...Option) *TestProvider {
	t.Helper()
	require := require.New(t)
	opts := getTestProviderOpts(opt...)

	p := &TestProvider{
		t:                   t,
		allowedRedirectURIs: []string{"https://example.com/callback"},
		replySubject:        "alice@example.com",
		replyUserinfo: map[string]interface{}{
			"color":       "red",
			"temperature": "76",
			"flavor":      "umami",
		},
		accessToken:  "test-access-token",
		refreshToken: "test-refresh-token",
		keyID:        "test-key",
	}
	p.ecdsaPublicKey, p.ecdsaPrivateKey = TestGenerateKeys(t)
	p.privateKey = jose.JSONWebKey{
		Key:       TestParseECPrivateKey(t, p.ecdsaPrivateKey),
		KeyID:     p.keyID,
		Algorithm: string(ES256),
		Use:       "sig",
	}

	p.httpServer = httptest.NewUnstartedServer(p)
	if opts.withPort != 0 {
		l, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(opts.withPort)))
		require.NoError(err)
		p.httpServer.Listener = l
	}
	p.httpServer.Config.ErrorLog = log.New(io.Discard, "", 0)
	p.httpServer.StartTLS()
	t.Cleanup(p.httpServer.Close)

	var buf bytes.Buffer
	err := pem.Encode(&buf, &pem.Block{Type: "CERTIFICATE", Bytes: p.httpServer.Certificate().Raw})
	require.NoError(err)
	p.caCert = buf.String()
	return p
}

// Stop stops the running TestProvider.
func (p *TestProvider) Stop() {
	p.httpServer.Close()
}

// SetClientCreds is for configuring the client information required for the
// OIDC workflows.
func (p *TestProvider) SetClientCreds(clientID, clientSecret string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clientID = clientID
	p.clientSecret = clientSecret
}

// SetExpectedAuthCode configures the auth code to return from /auth and the
// allowed auth code for /token.
func (p *TestProvider) SetExpectedAuthCode(code string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.expectedAuthCode = code
}

// SetExpectedAuthNonce configures the nonce value required for /auth and
// returned in the id_tokens issued by /token.
func (p *TestProvider) SetExpectedAuthNonce(nonce string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.expectedAuthNonce = nonce
}

// SetExpectedCodeVerifier configures the PKCE code_verifier /token requires.
func (p *TestProvider) SetExpectedCodeVerifier(verifier string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.expectedCodeVerifier = verifier
}

// SetAllowedRedirectURIs allows you to configure the allowed redirect URIs
// for the OIDC workflow.  If not configured "https://example.com/callback" is
// used.
func (p *TestProvider) SetAllowedRedirectURIs(uris []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.allowedRedirectURIs = uris
}

// SetCustomClaims lets you set claims to return in the id_tokens issued by
// /token.
func (p *TestProvider) SetCustomClaims(customClaims map[string]interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.customClaims = customClaims
}

// SetCustomAudience configures what audience value to embed in the id_tokens
// issued by /token.
func (p *TestProvider) SetCustomAudience(customAudience string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.customAudience = customAudience
}

// SetUserInfoReply sets the claims returned by /userinfo (along with sub).
func (p *TestProvider) SetUserInfoReply(claims map[string]interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.replyUserinfo = claims
}

// SetSignedUserInfo makes /userinfo return a signed application/jwt response.
func (p *TestProvider) SetSignedUserInfo(signed bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.signedUserinfo = signed
}

// SetTokenError makes /token reply with the oauth2 error and status (400
// when status is 0).  A nil error restores normal replies.
func (p *TestProvider) SetTokenError(status int, e *OAuth2Error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tokenError = e
	p.tokenErrorStatus = status
}

// OmitIDTokens makes /token omit the id_token from its responses.
func (p *TestProvider) OmitIDTokens() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.omitIDToken = true
}

// AccessToken returns the access_token issued by /token.
func (p *TestProvider) AccessToken() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.accessToken
}

// RefreshToken returns the refresh_token issued by /token and accepted by its
// refresh_token grant.
func (p *TestProvider) RefreshToken() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.refreshToken
}

// TokenRequests returns the form bodies of every request /token received.
func (p *TestProvider) TokenRequests() []url.Values {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]url.Values(nil), p.tokenRequests...)
}

// Revoked returns the tokens revoked with /revoke.
func (p *TestProvider) Revoked() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.revoked...)
}

// Addr returns the current base URL for the test provider's running
// webserver, which is also its issuer identifier.
func (p *TestProvider) Addr() string { return p.httpServer.URL }

// CACert returns the pem-encoded CA certificate used by the test provider's
// HTTPS server.
func (p *TestProvider) CACert() string { return p.caCert }

// HTTPClient returns an http client which trusts the test provider's
// certificate.
func (p *TestProvider) HTTPClient() *http.Client { return p.httpServer.Client() }

// SigningKeys returns the test provider's pem-encoded keys used to sign JWTs.
func (p *TestProvider) SigningKeys() (pub, priv string) {
	return p.ecdsaPublicKey, p.ecdsaPrivateKey
}

// JWKS returns the test provider's public JWKS.
func (p *TestProvider) JWKS() *jose.JSONWebKeySet {
	return &jose.JSONWebKeySet{Keys: []jose.JSONWebKey{p.privateKey.Public()}}
}

// Metadata returns the test provider's issuer metadata.
func (p *TestProvider) Metadata() *IssuerMetadata {
	addr := p.Addr()
	return &IssuerMetadata{
		Issuer:                            addr,
		AuthorizationEndpoint:             addr + "/auth",
		TokenEndpoint:                     addr + "/token",
		UserinfoEndpoint:                  addr + "/userinfo",
		JWKSURI:                           addr + "/certs",
		IntrospectionEndpoint:             addr + "/introspect",
		RevocationEndpoint:                addr + "/revoke",
		EndSessionEndpoint:                addr + "/logout",
		ScopesSupported:                   []string{"openid", "email", "profile"},
		ResponseTypesSupported:            []string{"code", "id_token", "code id_token"},
		ResponseModesSupported:            []string{"query", "fragment", "form_post", "jwt"},
		GrantTypesSupported:               []string{"authorization_code", "refresh_token"},
		IDTokenSigningAlgValuesSupported:  []string{string(ES256)},
		TokenEndpointAuthMethodsSupported: []string{AuthMethodClientSecretBasic, AuthMethodClientSecretPost, AuthMethodPrivateKeyJWT},
		CodeChallengeMethodsSupported:     []string{string(S256)},
	}
}

// Issuer returns an Issuer for the test provider which verifies signatures
// with the provider's keys, without any discovery request.
func (p *TestProvider) Issuer() *Issuer {
	p.t.Helper()
	ks, err := jwt.NewJOSEKeySet(p.JWKS())
	require.NoError(p.t, err)
	iss, err := NewIssuer(p.Metadata(), ks)
	require.NoError(p.t, err)
	return iss
}

// ClientMetadata returns the metadata of a client registered with the test
// provider, using the provider's client creds and first allowed redirect_uri.
func (p *TestProvider) ClientMetadata() *ClientMetadata {
	p.mu.Lock()
	defer p.mu.Unlock()
	return &ClientMetadata{
		ClientID:                       p.clientID,
		ClientSecret:                   ClientSecret(p.clientSecret),
		RedirectURIs:                   append([]string(nil), p.allowedRedirectURIs...),
		IDTokenSignedResponseAlg:       string(ES256),
		AuthorizationSignedResponseAlg: string(ES256),
	}
}

// Client returns a Client registered with the test provider which uses the
// provider's http client.
func (p *TestProvider) Client(opt ...Option) *Client {
	p.t.Helper()
	opt = append([]Option{WithHTTPClient(p.HTTPClient())}, opt...)
	c, err := NewClient(p.Issuer(), p.ClientMetadata(), opt...)
	require.NoError(p.t, err)
	return c
}

// SignJWT signs the claims with the provider's key.
func (p *TestProvider) SignJWT(claims map[string]interface{}) string {
	p.t.Helper()
	return TestSignJWTWithKey(p.t, jose.SigningKey{Algorithm: jose.ES256, Key: p.privateKey.Key}, p.keyID, josejwt.Claims{}, claims)
}

// IDToken returns an id_token issued by the provider for the client with
// sub, iat, exp and auth_time set.  The extra claims are added and a nil
// extra claim removes a claim.
func (p *TestProvider) IDToken(extra map[string]interface{}) string {
	p.t.Helper()
	p.mu.Lock()
	claims := p.idTokenClaims()
	p.mu.Unlock()
	for k, v := range extra {
		if v == nil {
			delete(claims, k)
			continue
		}
		claims[k] = v
	}
	return p.SignJWT(claims)
}

// idTokenClaims must be called with the lock held.
func (p *TestProvider) idTokenClaims() map[string]interface{} {
	now := time.Now()
	aud := p.clientID
	if p.customAudience != "" {
		aud = p.customAudience
	}
	claims := map[string]interface{}{
		"iss":       p.Addr(),
		"sub":       p.replySubject,
		"aud":       aud,
		"iat":       now.Unix(),
		"nbf":       now.Add(-5 * time.Second).Unix(),
		"exp":       now.Add(time.Minute).Unix(),
		"auth_time": now.Unix(),
	}
	if p.expectedAuthNonce != "" {
		claims["nonce"] = p.expectedAuthNonce
	}
	for k, v := range p.customClaims {
		claims[k] = v
	}
	return claims
}

func (p *TestProvider) writeJSON(w http.ResponseWriter, status int, out interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(out)
}

func (p *TestProvider) writeAuthErrorResponse(w http.ResponseWriter, req *http.Request, errorCode, errorMessage string) {
	qv := req.URL.Query()
	v := url.Values{}
	v.Set("state", qv.Get("state"))
	v.Set("error", errorCode)
	if errorMessage != "" {
		v.Set("error_description", errorMessage)
	}
	http.Redirect(w, req, qv.Get("redirect_uri")+"?"+v.Encode(), http.StatusFound)
}

func (p *TestProvider) writeTokenErrorResponse(w http.ResponseWriter, statusCode int, errorCode, errorMessage string) {
	p.writeJSON(w, statusCode, &OAuth2Error{Code: errorCode, Description: errorMessage})
}

// ServeHTTP implements the test provider's http.Handler.
func (p *TestProvider) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch req.URL.Path {
	case "/.well-known/openid-configuration":
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		p.writeJSON(w, http.StatusOK, p.Metadata())

	case "/auth":
		p.handleAuth(w, req)

	case "/certs":
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		p.writeJSON(w, http.StatusOK, p.JWKS())

	case "/token":
		p.handleToken(w, req)

	case "/userinfo":
		p.handleUserInfo(w, req)

	case "/introspect":
		if req.Method != http.MethodPost || !p.clientAuthenticated(req) {
			p.writeTokenErrorResponse(w, http.StatusUnauthorized, "invalid_client", "client authentication failed")
			return
		}
		token := req.PostForm.Get("token")
		active := (token == p.accessToken || token == p.refreshToken) && !strutils.StrListContains(p.revoked, token)
		reply := map[string]interface{}{"active": active}
		if active {
			reply["sub"] = p.replySubject
			reply["client_id"] = p.clientID
			reply["token_type"] = req.PostForm.Get("token_type_hint")
		}
		p.writeJSON(w, http.StatusOK, reply)

	case "/revoke":
		if req.Method != http.MethodPost || !p.clientAuthenticated(req) {
			p.writeTokenErrorResponse(w, http.StatusUnauthorized, "invalid_client", "client authentication failed")
			return
		}
		p.revoked = append(p.revoked, req.PostForm.Get("token"))
		w.WriteHeader(http.StatusOK)

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (p *TestProvider) handleAuth(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	qv := req.URL.Query()
	switch {
	case !strutils.StrListContains(p.allowedRedirectURIs, qv.Get("redirect_uri")):
		w.WriteHeader(http.StatusBadRequest)
		return
	case qv.Get("response_type") != "code":
		p.writeAuthErrorResponse(w, req, "unsupported_response_type", "")
		return
	case !strutils.StrListContains(strutils.SpaceDelimited(qv.Get("scope")), "openid"):
		p.writeAuthErrorResponse(w, req, "invalid_scope", "")
		return
	case p.expectedAuthCode == "":
		p.writeAuthErrorResponse(w, req, "access_denied", "")
		return
	case p.expectedAuthNonce != "" && p.expectedAuthNonce != qv.Get("nonce"):
		p.writeAuthErrorResponse(w, req, "access_denied", "unexpected nonce")
		return
	case qv.Get("state") == "":
		p.writeAuthErrorResponse(w, req, "invalid_request", "missing state parameter")
		return
	}
	v := url.Values{}
	v.Set("state", qv.Get("state"))
	v.Set("code", p.expectedAuthCode)
	http.Redirect(w, req, qv.Get("redirect_uri")+"?"+v.Encode(), http.StatusFound)
}

func (p *TestProvider) handleToken(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := req.ParseForm(); err != nil {
		p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	p.tokenRequests = append(p.tokenRequests, req.PostForm)
	if p.tokenError != nil {
		status := p.tokenErrorStatus
		if status == 0 {
			status = http.StatusBadRequest
		}
		p.writeTokenErrorResponse(w, status, p.tokenError.Code, p.tokenError.Description)
		return
	}
	if !p.clientAuthenticated(req) {
		p.writeTokenErrorResponse(w, http.StatusUnauthorized, "invalid_client", "client authentication failed")
		return
	}
	switch req.PostForm.Get("grant_type") {
	case "authorization_code":
		switch {
		case !strutils.StrListContains(p.allowedRedirectURIs, req.PostForm.Get("redirect_uri")):
			p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_request", "redirect_uri is not allowed")
			return
		case req.PostForm.Get("code") != p.expectedAuthCode:
			p.writeTokenErrorResponse(w, http.StatusUnauthorized, "invalid_grant", "unexpected auth code")
			return
		case p.expectedCodeVerifier != "" && req.PostForm.Get("code_verifier") != p.expectedCodeVerifier:
			p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_grant", "invalid code_verifier")
			return
		}
	case "refresh_token":
		if req.PostForm.Get("refresh_token") != p.refreshToken || strutils.StrListContains(p.revoked, p.refreshToken) {
			p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_grant", "unexpected refresh token")
			return
		}
	default:
		p.writeTokenErrorResponse(w, http.StatusBadRequest, "unsupported_grant_type", "bad grant_type")
		return
	}

	reply := map[string]interface{}{
		"access_token":  p.accessToken,
		"token_type":    "Bearer",
		"expires_in":    3600,
		"refresh_token": p.refreshToken,
	}
	if !p.omitIDToken {
		claims := p.idTokenClaims()
		if atHash, err := leftHalfHash(string(ES256), p.accessToken); err == nil {
			claims["at_hash"] = atHash
		}
		if req.PostForm.Get("grant_type") == "refresh_token" {
			delete(claims, "nonce")
		}
		reply["id_token"] = TestSignJWTWithKey(p.t, jose.SigningKey{Algorithm: jose.ES256, Key: p.privateKey.Key}, p.keyID, josejwt.Claims{}, claims)
	}
	p.writeJSON(w, http.StatusOK, reply)
}

func (p *TestProvider) handleUserInfo(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if req.Header.Get("Authorization") != "Bearer "+p.accessToken {
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
		p.writeTokenErrorResponse(w, http.StatusUnauthorized, "invalid_token", "")
		return
	}
	claims := map[string]interface{}{"sub": p.replySubject}
	for k, v := range p.replyUserinfo {
		claims[k] = v
	}
	if !p.signedUserinfo {
		p.writeJSON(w, http.StatusOK, claims)
		return
	}
	claims["iss"] = p.Addr()
	claims["aud"] = p.clientID
	w.Header().Set("Content-Type", "application/jwt")
	_, _ = w.Write([]byte(TestSignJWTWithKey(p.t, jose.SigningKey{Algorithm: jose.ES256, Key: p.privateKey.Key}, p.keyID, josejwt.Claims{}, claims)))
}

// clientAuthenticated checks client_secret_basic, client_secret_post and
// (without verifying the assertion) private_key_jwt / client_secret_jwt.
// It must be called with the lock held.
func (p *TestProvider) clientAuthenticated(req *http.Request) bool {
	if err := req.ParseForm(); err != nil {
		return false
	}
	if id, secret, ok := req.BasicAuth(); ok {
		id, _ = url.QueryUnescape(id)
		secret, _ = url.QueryUnescape(secret)
		return id == p.clientID && secret == p.clientSecret
	}
	if req.PostForm.Get("client_id") != p.clientID {
		return false
	}
	if assertion := req.PostForm.Get("client_assertion"); assertion != "" {
		return strings.Count(assertion, ".") == 2
	}
	return req.PostForm.Get("client_secret") == p.clientSecret
}

// testProviderOptions is the set of available options for StartTestProvider
type testProviderOptions struct {
	withPort int
}

func testProviderDefaults() testProviderOptions {
	return testProviderOptions{}
}

func getTestProviderOpts(opt ...Option) testProviderOptions {
	opts := testProviderDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithTestPort provides an optional port for the test provider.
//
// Valid for: StartTestProvider
func WithTestPort(port int) Option {
	return func(o interface{}) {
		if o, ok := o.(*testProviderOptions); ok {
			o.withPort = port
		}
	}
}
