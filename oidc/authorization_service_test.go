// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashicorp/cap-rp/jwt"
)

// testStaticClient returns a client of an issuer whose endpoints are served
// by srv.  Its key set is the test provider's.
func testStaticClient(t *testing.T, tp *TestProvider, md *IssuerMetadata, cm *ClientMetadata) *Client {
	t.Helper()
	require := require.New(t)
	ks, err := jwt.NewJOSEKeySet(tp.JWKS())
	require.NoError(err)
	iss, err := NewIssuer(md, ks)
	require.NoError(err)
	c, err := NewClient(iss, cm)
	require.NoError(err)
	return c
}

func TestAuthorizationService_AuthorizationURL(t *testing.T) {
	t.Parallel()
	tp := StartTestProvider(t)
	tp.SetClientCreds("test-client-id", "test-client-secret")
	c := tp.Client()
	s := NewAuthorizationService()

	tests := []struct {
		name      string
		c         *Client
		params    map[string]interface{}
		wantQuery url.Values
		wantErr   bool
		wantIsErr error
	}{
		{
			name: "code-without-nonce",
			c:    c,
			wantQuery: url.Values{
				"client_id":     {"test-client-id"},
				"redirect_uri":  {"https://example.com/callback"},
				"response_type": {"code"},
				"scope":         {"openid"},
			},
		},
		{
			name:      "id_token-without-nonce",
			c:         c,
			params:    map[string]interface{}{"response_type": "id_token"},
			wantErr:   true,
			wantIsErr: ErrMissingNonce,
		},
		{
			name:      "hybrid-without-nonce",
			c:         c,
			params:    map[string]interface{}{"response_type": "code id_token"},
			wantErr:   true,
			wantIsErr: ErrMissingNonce,
		},
		{
			name:      "token-without-nonce",
			c:         c,
			params:    map[string]interface{}{"response_type": "code token"},
			wantErr:   true,
			wantIsErr: ErrMissingNonce,
		},
		{
			name:   "implicit-with-nonce",
			c:      c,
			params: map[string]interface{}{"response_type": "id_token", "nonce": "n", "state": "st"},
			wantQuery: url.Values{
				"client_id":     {"test-client-id"},
				"redirect_uri":  {"https://example.com/callback"},
				"response_type": {"id_token"},
				"scope":         {"openid"},
				"nonce":         {"n"},
				"state":         {"st"},
			},
		},
		{
			name:   "nil-removes-default",
			c:      c,
			params: map[string]interface{}{"redirect_uri": nil, "max_age": uint(30), "prompt": []string{"login", "consent"}},
			wantQuery: url.Values{
				"client_id":     {"test-client-id"},
				"response_type": {"code"},
				"scope":         {"openid"},
				"max_age":       {"30"},
				"prompt":        {"login consent"},
			},
		},
		{
			name:      "unsupported-value",
			c:         c,
			params:    map[string]interface{}{"foo": struct{}{}},
			wantErr:   true,
			wantIsErr: ErrInvalidParameter,
		},
		{
			name:      "nil-client",
			wantErr:   true,
			wantIsErr: ErrNilParameter,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			got, err := s.AuthorizationURL(tt.c, tt.params)
			if tt.wantErr {
				require.Error(err)
				assert.ErrorIs(err, tt.wantIsErr)
				assert.Equal(KindInvalidArgument, Kind(err))
				return
			}
			require.NoError(err)
			u, err := url.Parse(got)
			require.NoError(err)
			assert.Equal(tp.Addr()+"/auth", u.Scheme+"://"+u.Host+u.Path)
			assert.Equal(tt.wantQuery, u.Query())
		})
	}
}

func TestAuthorizationService_AuthorizationURL_endpointQuery(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	tp := StartTestProvider(t)
	md := tp.Metadata()
	md.AuthorizationEndpoint = md.AuthorizationEndpoint + "?tenant=acme&scope=ignored"
	c := testStaticClient(t, tp, md, &ClientMetadata{ClientID: "client", RedirectURIs: []string{"https://example.com/cb"}})

	got, err := NewAuthorizationService().AuthorizationURL(c, map[string]interface{}{"state": "st"})
	require.NoError(err)
	u, err := url.Parse(got)
	require.NoError(err)
	assert.Equal("acme", u.Query().Get("tenant"))
	assert.Equal("openid", u.Query().Get("scope"))
	assert.Equal("st", u.Query().Get("state"))
}

func TestAuthorizationService_EndSessionURL(t *testing.T) {
	t.Parallel()
	tp := StartTestProvider(t)
	s := NewAuthorizationService()

	t.Run("defaults", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		c := testStaticClient(t, tp, tp.Metadata(), &ClientMetadata{
			ClientID:               "client",
			PostLogoutRedirectURIs: []string{"https://example.com/bye"},
		})
		got, err := s.EndSessionURL(c, map[string]interface{}{"id_token_hint": IDToken("raw.id.token")})
		require.NoError(err)
		u, err := url.Parse(got)
		require.NoError(err)
		assert.Equal("/logout", u.Path)
		assert.Equal(url.Values{
			"client_id":                {"client"},
			"post_logout_redirect_uri": {"https://example.com/bye"},
			"id_token_hint":            {"raw.id.token"},
		}, u.Query())
	})
	t.Run("missing-endpoint", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		md := tp.Metadata()
		md.EndSessionEndpoint = ""
		c := testStaticClient(t, tp, md, &ClientMetadata{ClientID: "client"})
		_, err := s.EndSessionURL(c, nil)
		require.Error(err)
		assert.ErrorIs(err, ErrMissingEndpoint)
		assert.Equal(KindRuntime, Kind(err))
	})
}

func TestAuthorizationService_CallbackParams(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewAuthorizationService()
	want := map[string]interface{}{"foo": "bar", "foo2": "bar2"}

	newReq := func(method, target, body string) *http.Request {
		r := httptest.NewRequest(method, target, strings.NewReader(body))
		if method == http.MethodPost {
			r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
		return r
	}
	fragment := func() *http.Request {
		r := newReq(http.MethodGet, "https://example.com/cb", "")
		r.URL.Fragment = "foo=bar&foo2=bar2"
		return r
	}

	tests := []struct {
		name      string
		req       *http.Request
		want      map[string]interface{}
		wantErr   bool
		wantIsErr error
	}{
		{"post", newReq(http.MethodPost, "https://example.com/cb", "foo=bar&foo2=bar2"), want, false, nil},
		{"get-query", newReq(http.MethodGet, "https://example.com/cb?foo=bar&foo2=bar2", ""), want, false, nil},
		{"get-fragment", fragment(), want, false, nil},
		{"put", newReq(http.MethodPut, "https://example.com/cb", "foo=bar"), nil, true, ErrInvalidCallbackMethod},
		{"nil-request", nil, nil, true, ErrNilParameter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			got, err := s.CallbackParams(ctx, tt.req, nil)
			if tt.wantErr {
				require.Error(err)
				assert.ErrorIs(err, tt.wantIsErr)
				return
			}
			require.NoError(err)
			assert.Equal(tt.want, got)
		})
	}
	t.Run("put-is-runtime", func(t *testing.T) {
		assert := assert.New(t)
		_, err := s.CallbackParams(ctx, newReq(http.MethodPut, "https://example.com/cb", ""), nil)
		assert.Equal(KindRuntime, Kind(err))
		assert.Contains(err.Error(), "invalid callback method")
	})
}

func TestAuthorizationService_ProcessResponseParams(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewAuthorizationService()

	t.Run("access-denied", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		_, err := s.ProcessResponseParams(ctx, nil, map[string]interface{}{"error": "access_denied"})
		require.Error(err)
		var oauthErr *OAuth2Error
		require.True(errors.As(err, &oauthErr))
		assert.Equal("access_denied", oauthErr.Code)
		assert.Equal(KindOAuth2, Kind(err))
	})
	t.Run("description", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		_, err := s.ProcessResponseParams(ctx, nil, map[string]interface{}{"error": "e", "error_description": "d"})
		require.Error(err)
		var oauthErr *OAuth2Error
		require.True(errors.As(err, &oauthErr))
		assert.Equal("d (e)", oauthErr.Error())
	})
	t.Run("success", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		params := map[string]interface{}{"code": "abc", "state": "st"}
		got, err := s.ProcessResponseParams(ctx, nil, params)
		require.NoError(err)
		assert.Equal(params, got)
	})
}

func TestAuthorizationService_ProcessResponseParams_jwt(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	tp := StartTestProvider(t)
	tp.SetClientCreds("test-client-id", "test-client-secret")
	c := tp.Client()
	s := NewAuthorizationService()
	exp := time.Now().Add(time.Minute).Unix()

	tests := []struct {
		name      string
		claims    map[string]interface{}
		wantCode  string
		wantErr   bool
		wantIsErr error
	}{
		{
			name:     "valid",
			claims:   map[string]interface{}{"iss": tp.Addr(), "aud": "test-client-id", "exp": exp, "code": "abc", "state": "st"},
			wantCode: "abc",
		},
		{
			name:      "error-response",
			claims:    map[string]interface{}{"iss": tp.Addr(), "aud": "test-client-id", "exp": exp, "error": "access_denied"},
			wantErr:   true,
			wantIsErr: ErrOAuth2,
		},
		{
			name:      "wrong-audience",
			claims:    map[string]interface{}{"iss": tp.Addr(), "aud": "someone-else", "exp": exp, "code": "abc"},
			wantErr:   true,
			wantIsErr: ErrInvalidAudience,
		},
		{
			name:      "wrong-issuer",
			claims:    map[string]interface{}{"iss": "https://evil.example.com", "aud": "test-client-id", "exp": exp, "code": "abc"},
			wantErr:   true,
			wantIsErr: ErrInvalidIssuer,
		},
		{
			name:      "expired",
			claims:    map[string]interface{}{"iss": tp.Addr(), "aud": "test-client-id", "exp": time.Now().Add(-time.Hour).Unix(), "code": "abc"},
			wantErr:   true,
			wantIsErr: ErrExpiredToken,
		},
		{
			name:      "missing-exp",
			claims:    map[string]interface{}{"iss": tp.Addr(), "aud": "test-client-id", "code": "abc"},
			wantErr:   true,
			wantIsErr: ErrMissingClaim,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			got, err := s.ProcessResponseParams(ctx, c, map[string]interface{}{"response": tp.SignJWT(tt.claims)})
			if tt.wantErr {
				require.Error(err)
				assert.ErrorIs(err, tt.wantIsErr)
				return
			}
			require.NoError(err)
			assert.Equal(tt.wantCode, got["code"])
		})
	}
}

func TestAuthorizationService_Grant(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	tp := StartTestProvider(t)

	var gotBody url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		gotBody = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"access_token":"AT","token_type":"Bearer"}`)
	}))
	t.Cleanup(srv.Close)

	md := &IssuerMetadata{Issuer: "https://op.example.com", TokenEndpoint: srv.URL + "/token"}
	c := testStaticClient(t, tp, md, &ClientMetadata{ClientID: "client", ClientSecret: "secret"})
	s := NewAuthorizationService()

	t.Run("success", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		ts, err := s.Grant(ctx, c, map[string]string{"grant_type": "client_credentials", "scope": "api"})
		require.NoError(err)
		assert.Equal(AccessToken("AT"), ts.AccessToken())
		assert.Equal("Bearer", ts.TokenType())
		assert.Empty(ts.Claims())
		assert.Equal("client_credentials", gotBody.Get("grant_type"))
		assert.Equal("api", gotBody.Get("scope"))
	})
	t.Run("missing-grant-type", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		_, err := s.Grant(ctx, c, map[string]string{"scope": "api"})
		require.Error(err)
		assert.ErrorIs(err, ErrInvalidParameter)
	})
	t.Run("nil-client", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		_, err := s.Grant(ctx, nil, map[string]string{"grant_type": "client_credentials"})
		require.Error(err)
		assert.ErrorIs(err, ErrNilParameter)
	})
}

func TestAuthorizationService_Grant_errors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	tp := StartTestProvider(t)

	tests := []struct {
		name     string
		status   int
		body     string
		wantKind ErrorKind
		wantIs   error
	}{
		{"oauth2-error", http.StatusBadRequest, `{"error":"invalid_grant","error_description":"bad code"}`, KindOAuth2, ErrOAuth2},
		{"oauth2-error-with-200", http.StatusOK, `{"error":"invalid_grant"}`, KindOAuth2, ErrOAuth2},
		{"remote-error", http.StatusBadGateway, `<html>bad gateway</html>`, KindRemote, ErrRemote},
		{"not-an-object", http.StatusOK, `["AT"]`, KindInvalidArgument, ErrInvalidMetadata},
		{"not-json", http.StatusOK, `AT`, KindInvalidArgument, ErrInvalidMetadata},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()
			md := &IssuerMetadata{Issuer: "https://op.example.com", TokenEndpoint: srv.URL}
			c := testStaticClient(t, tp, md, &ClientMetadata{ClientID: "client", ClientSecret: "secret"})

			_, err := NewAuthorizationService().Grant(ctx, c, map[string]string{"grant_type": "client_credentials"})
			require.Error(err)
			assert.ErrorIs(err, tt.wantIs)
			assert.Equal(tt.wantKind, Kind(err))
		})
	}
	t.Run("transport", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		srv := httptest.NewServer(http.NotFoundHandler())
		srv.Close()
		md := &IssuerMetadata{Issuer: "https://op.example.com", TokenEndpoint: srv.URL}
		c := testStaticClient(t, tp, md, &ClientMetadata{ClientID: "client", ClientSecret: "secret"})
		_, err := NewAuthorizationService().Grant(ctx, c, map[string]string{"grant_type": "client_credentials"})
		require.Error(err)
		assert.ErrorIs(err, ErrTransport)
		assert.Equal(KindRuntime, Kind(err))
	})
	t.Run("missing-endpoint", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		md := &IssuerMetadata{Issuer: "https://op.example.com"}
		c := testStaticClient(t, tp, md, &ClientMetadata{ClientID: "client"})
		_, err := NewAuthorizationService().Grant(ctx, c, map[string]string{"grant_type": "client_credentials"})
		require.Error(err)
		assert.ErrorIs(err, ErrMissingEndpoint)
	})
}

func TestAuthorizationService_Callback(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	setup := func(t *testing.T) (*TestProvider, *Client, *AuthSession) {
		t.Helper()
		tp := StartTestProvider(t)
		tp.SetClientCreds("test-client-id", "test-client-secret")
		sess, err := NewAuthSession()
		require.NoError(t, err)
		tp.SetExpectedAuthNonce(sess.Nonce)
		tp.SetExpectedAuthCode("test-code")
		return tp, tp.Client(), sess
	}

	t.Run("authorization-code", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp, c, sess := setup(t)
		s := NewAuthorizationService()
		params := map[string]interface{}{"code": "test-code", "state": sess.State}
		ts, err := s.Callback(ctx, c, params, WithAuthSession(sess))
		require.NoError(err)
		assert.Equal(AccessToken(tp.AccessToken()), ts.AccessToken())
		assert.Equal(RefreshToken(tp.RefreshToken()), ts.RefreshToken())
		assert.NotEmpty(ts.IDToken())
		assert.Equal("alice@example.com", ts.Claims()["sub"])
		assert.Equal(sess.Nonce, ts.Claims()["nonce"])
		assert.False(ts.Expiry().IsZero())

		reqs := tp.TokenRequests()
		require.Len(reqs, 1)
		assert.Equal("authorization_code", reqs[0].Get("grant_type"))
		assert.Equal("test-code", reqs[0].Get("code"))
		assert.Equal("https://example.com/callback", reqs[0].Get("redirect_uri"))
		assert.Empty(reqs[0].Get("code_verifier"))
	})
	t.Run("pkce", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp, c, _ := setup(t)
		sess, err := NewAuthSession(WithPKCE())
		require.NoError(err)
		tp.SetExpectedAuthNonce(sess.Nonce)
		tp.SetExpectedCodeVerifier(sess.CodeVerifier)

		ts, err := NewAuthorizationService().Callback(ctx, c, map[string]interface{}{"code": "test-code", "state": sess.State}, WithAuthSession(sess))
		require.NoError(err)
		assert.NotEmpty(ts.AccessToken())
		reqs := tp.TokenRequests()
		require.Len(reqs, 1)
		assert.Equal(sess.CodeVerifier, reqs[0].Get("code_verifier"))
	})
	t.Run("state-mismatch", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp, c, sess := setup(t)
		_, err := NewAuthorizationService().Callback(ctx, c, map[string]interface{}{"code": "test-code", "state": "forged"}, WithAuthSession(sess))
		require.Error(err)
		assert.ErrorIs(err, ErrInvalidState)
		assert.Equal(KindVerification, Kind(err))
		assert.Empty(tp.TokenRequests())
	})
	t.Run("implicit-no-token-request", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp, c, sess := setup(t)
		idt := tp.IDToken(nil)
		ts, err := NewAuthorizationService().Callback(ctx, c, map[string]interface{}{"id_token": idt, "state": sess.State}, WithAuthSession(sess))
		require.NoError(err)
		assert.Equal(IDToken(idt), ts.IDToken())
		assert.Equal("alice@example.com", ts.Claims()["sub"])
		assert.Empty(tp.TokenRequests())
	})
	t.Run("nonce-mismatch", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp, c, sess := setup(t)
		idt := tp.IDToken(map[string]interface{}{"nonce": "not-the-session-nonce"})
		ts, err := NewAuthorizationService().Callback(ctx, c, map[string]interface{}{"id_token": idt, "state": sess.State}, WithAuthSession(sess))
		require.Error(err)
		assert.Nil(ts)
		assert.ErrorIs(err, ErrInvalidNonce)
		assert.ErrorIs(err, ErrInvalidToken)
		assert.Equal(KindVerification, Kind(err))
	})
	t.Run("hybrid-c_hash", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp, c, sess := setup(t)
		cHash, err := leftHalfHash(string(ES256), "test-code")
		require.NoError(err)
		idt := tp.IDToken(map[string]interface{}{"c_hash": cHash})
		ts, err := NewAuthorizationService().Callback(ctx, c, map[string]interface{}{"code": "test-code", "id_token": idt, "state": sess.State}, WithAuthSession(sess))
		require.NoError(err)
		assert.Equal(AccessToken(tp.AccessToken()), ts.AccessToken())
		assert.Len(tp.TokenRequests(), 1)
	})
	t.Run("hybrid-bad-c_hash", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp, c, sess := setup(t)
		idt := tp.IDToken(map[string]interface{}{"c_hash": "bogus"})
		_, err := NewAuthorizationService().Callback(ctx, c, map[string]interface{}{"code": "test-code", "id_token": idt, "state": sess.State}, WithAuthSession(sess))
		require.Error(err)
		assert.ErrorIs(err, ErrInvalidCHash)
		assert.Empty(tp.TokenRequests())
	})
	t.Run("max-age", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp, c, sess := setup(t)
		idt := tp.IDToken(map[string]interface{}{"auth_time": time.Now().Add(-time.Hour).Unix()})
		_, err := NewAuthorizationService().Callback(ctx, c, map[string]interface{}{"id_token": idt, "state": sess.State}, WithAuthSession(sess), WithMaxAge(60))
		require.Error(err)
		assert.ErrorIs(err, ErrInvalidAuthTime)
	})
	t.Run("token-error", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp, c, sess := setup(t)
		tp.SetTokenError(http.StatusBadRequest, &OAuth2Error{Code: "invalid_grant", Description: "code reused"})
		_, err := NewAuthorizationService().Callback(ctx, c, map[string]interface{}{"code": "test-code", "state": sess.State}, WithAuthSession(sess))
		require.Error(err)
		var oauthErr *OAuth2Error
		require.True(errors.As(err, &oauthErr))
		assert.Equal("invalid_grant", oauthErr.Code)
		assert.Equal("code reused (invalid_grant)", oauthErr.Error())
	})
	t.Run("nil-client", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		_, err := NewAuthorizationService().Callback(ctx, nil, map[string]interface{}{"code": "x"})
		require.Error(err)
		assert.ErrorIs(err, ErrNilParameter)
	})
}

func TestAuthorizationService_FetchToken(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	tp := StartTestProvider(t)
	tp.SetClientCreds("test-client-id", "test-client-secret")
	tp.SetExpectedAuthCode("test-code")
	tp.SetAllowedRedirectURIs([]string{"https://example.com/callback", "https://example.com/other"})
	c := tp.Client()
	s := NewAuthorizationService()

	t.Run("missing-code", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		_, err := s.FetchToken(ctx, c, NewTokenSet(map[string]interface{}{"state": "st"}))
		require.Error(err)
		assert.ErrorIs(err, ErrMissingCode)
		assert.Equal(KindRuntime, Kind(err))
	})
	t.Run("redirect-uri-option", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		ts, err := s.FetchToken(ctx, c, NewTokenSet(map[string]interface{}{"code": "test-code"}), WithRedirectURI("https://example.com/other"))
		require.NoError(err)
		assert.NotEmpty(ts.AccessToken())
		reqs := tp.TokenRequests()
		assert.Equal("https://example.com/other", reqs[len(reqs)-1].Get("redirect_uri"))
	})
	t.Run("no-redirect-uri", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		bare := testStaticClient(t, tp, tp.Metadata(), &ClientMetadata{ClientID: "test-client-id"})
		_, err := s.FetchToken(ctx, bare, NewTokenSet(map[string]interface{}{"code": "test-code"}))
		require.Error(err)
		assert.ErrorIs(err, ErrMissingRedirectURI)
	})
	t.Run("keeps-authorization-response-claims", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := StartTestProvider(t)
		tp.SetClientCreds("test-client-id", "test-client-secret")
		tp.SetExpectedAuthCode("test-code")
		tp.OmitIDTokens()
		c := tp.Client()
		in := NewTokenSet(map[string]interface{}{"code": "test-code"}).WithClaims(map[string]interface{}{"sub": "bob"})
		ts, err := s.FetchToken(ctx, c, in)
		require.NoError(err)
		assert.Empty(ts.IDToken())
		assert.Equal("bob", ts.Claims()["sub"])
	})
}

func TestAuthorizationService_Refresh(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	tp := StartTestProvider(t)
	tp.SetClientCreds("test-client-id", "test-client-secret")
	tp.SetExpectedAuthNonce("ignored-on-refresh")
	c := tp.Client()
	s := NewAuthorizationService()

	t.Run("success", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		ts, err := s.Refresh(ctx, c, RefreshToken(tp.RefreshToken()), map[string]string{"scope": "openid", "grant_type": "password"})
		require.NoError(err)
		assert.Equal(AccessToken(tp.AccessToken()), ts.AccessToken())
		assert.Equal("alice@example.com", ts.Claims()["sub"])
		reqs := tp.TokenRequests()
		last := reqs[len(reqs)-1]
		assert.Equal("refresh_token", last.Get("grant_type"))
		assert.Equal(tp.RefreshToken(), last.Get("refresh_token"))
		assert.Equal("openid", last.Get("scope"))
	})
	t.Run("bad-refresh-token", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		_, err := s.Refresh(ctx, c, RefreshToken("nope"), nil)
		require.Error(err)
		assert.Equal(KindOAuth2, Kind(err))
	})
	t.Run("empty-refresh-token", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		_, err := s.Refresh(ctx, c, "", nil)
		require.Error(err)
		assert.ErrorIs(err, ErrInvalidParameter)
	})
}

func TestAuthorizationService_ResolveEndpoint(t *testing.T) {
	t.Parallel()
	tp := StartTestProvider(t)
	md := tp.Metadata()
	md.MTLSEndpointAliases = map[string]string{"token_endpoint": "https://mtls.example.com/token"}
	s := NewAuthorizationService()

	tests := []struct {
		name    string
		cm      *ClientMetadata
		key     string
		want    string
		wantErr error
	}{
		{"client-secret", &ClientMetadata{ClientID: "c", ClientSecret: "s"}, "token_endpoint", md.TokenEndpoint, nil},
		{"tls-client-auth", &ClientMetadata{ClientID: "c", TokenEndpointAuthMethod: AuthMethodTLSClientAuth}, "token_endpoint", "https://mtls.example.com/token", nil},
		{"self-signed-tls", &ClientMetadata{ClientID: "c", TokenEndpointAuthMethod: AuthMethodSelfSignedTLSClientAuth}, "token_endpoint", "https://mtls.example.com/token", nil},
		{"bound-tokens", &ClientMetadata{ClientID: "c", ClientSecret: "s", TLSClientCertificateBoundAccessTokens: true}, "token_endpoint", "https://mtls.example.com/token", nil},
		{"no-alias", &ClientMetadata{ClientID: "c", TokenEndpointAuthMethod: AuthMethodTLSClientAuth}, "userinfo_endpoint", md.UserinfoEndpoint, nil},
		{"unknown", &ClientMetadata{ClientID: "c"}, "device_authorization_endpoint", "", ErrMissingEndpoint},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			c := testStaticClient(t, tp, md, tt.cm)
			got, err := s.ResolveEndpoint(c, tt.key)
			if tt.wantErr != nil {
				require.Error(err)
				assert.ErrorIs(err, tt.wantErr)
				return
			}
			require.NoError(err)
			assert.Equal(tt.want, got)
		})
	}
}

func TestParseMetadataResponse(t *testing.T) {
	t.Parallel()
	newResp := func(status int, body string) *http.Response {
		rec := httptest.NewRecorder()
		rec.WriteHeader(status)
		_, _ = rec.WriteString(body)
		return rec.Result()
	}
	tests := []struct {
		name     string
		resp     *http.Response
		expected int
		want     map[string]interface{}
		wantIs   error
		wantKind ErrorKind
	}{
		{"ok", newResp(http.StatusOK, `{"a":"b"}`), http.StatusOK, map[string]interface{}{"a": "b"}, nil, KindUnknown},
		{"any-2xx", newResp(http.StatusCreated, `{"a":"b"}`), 0, map[string]interface{}{"a": "b"}, nil, KindUnknown},
		{"unexpected-status", newResp(http.StatusCreated, `{"a":"b"}`), http.StatusOK, nil, ErrRemote, KindRemote},
		{"oauth2-error", newResp(http.StatusUnauthorized, `{"error":"invalid_client"}`), http.StatusOK, nil, ErrOAuth2, KindOAuth2},
		{"array", newResp(http.StatusOK, `[1,2]`), http.StatusOK, nil, ErrInvalidMetadata, KindInvalidArgument},
		{"null", newResp(http.StatusOK, `null`), http.StatusOK, nil, ErrInvalidMetadata, KindInvalidArgument},
		{"nil-response", nil, http.StatusOK, nil, ErrNilParameter, KindInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			got, err := ParseMetadataResponse(tt.resp, tt.expected)
			if tt.wantIs != nil {
				require.Error(err)
				assert.ErrorIs(err, tt.wantIs)
				assert.Equal(tt.wantKind, Kind(err))
				return
			}
			require.NoError(err)
			assert.Equal(tt.want, got)
		})
	}
	t.Run("remote-error-details", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		_, err := ParseMetadataResponse(newResp(http.StatusServiceUnavailable, "down"), 0)
		require.Error(err)
		var remote *RemoteError
		require.True(errors.As(err, &remote))
		assert.Equal(http.StatusServiceUnavailable, remote.StatusCode)
		assert.Equal("down", remote.Body)
	})
}
