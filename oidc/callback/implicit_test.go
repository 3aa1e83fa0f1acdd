// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package callback

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashicorp/cap-rp/oidc"
)

func TestImplicit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	_, c, svc, sess := testSetup(t)

	_, err := Implicit(ctx, svc, c, nil, testSuccessFn, testFailFn)
	require.Error(t, err)
	assert.ErrorIs(t, err, oidc.ErrNilParameter)

	h, err := Implicit(ctx, svc, c, &SingleSessionReader{Session: sess}, testSuccessFn, testFailFn)
	require.NoError(t, err)
	assert.NotNil(t, h)
}

func Test_ImplicitResponses(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	tp, c, svc, sess := testSetup(t)
	h, err := Implicit(ctx, svc, c, &SingleSessionReader{Session: sess}, testSuccessFn, testFailFn)
	require.NoError(t, err)

	formPost := func(v url.Values) *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/callback", strings.NewReader(v.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req
	}
	fragment := func(v url.Values) *http.Request {
		req := httptest.NewRequest(http.MethodGet, "/callback", nil)
		req.URL.Fragment = v.Encode()
		return req
	}

	tests := []struct {
		name         string
		req          *http.Request
		wantStatus   int
		wantError    string
		wantContains string
	}{
		{
			name:       "form-post",
			req:        formPost(url.Values{"id_token": {tp.IDToken(nil)}, "state": {sess.State}}),
			wantStatus: http.StatusOK,
		},
		{
			name:       "fragment",
			req:        fragment(url.Values{"id_token": {tp.IDToken(nil)}, "state": {sess.State}}),
			wantStatus: http.StatusOK,
		},
		{
			name:         "missing-id-token",
			req:          formPost(url.Values{"state": {sess.State}}),
			wantStatus:   http.StatusInternalServerError,
			wantError:    "internal-callback-error",
			wantContains: "id_token is missing",
		},
		{
			name:         "code",
			req:          formPost(url.Values{"id_token": {tp.IDToken(nil)}, "code": {"valid-code"}, "state": {sess.State}}),
			wantStatus:   http.StatusInternalServerError,
			wantError:    "internal-callback-error",
			wantContains: "unexpected code",
		},
		{
			name:         "bad-nonce",
			req:          formPost(url.Values{"id_token": {tp.IDToken(map[string]interface{}{"nonce": "bad"})}, "state": {sess.State}}),
			wantStatus:   http.StatusInternalServerError,
			wantError:    "internal-callback-error",
			wantContains: "nonce mismatch",
		},
		{
			name:       "provider-error",
			req:        fragment(url.Values{"error": {"login_required"}, "state": {sess.State}}),
			wantStatus: http.StatusUnauthorized,
			wantError:  "login_required",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert := assert.New(t)
			w := httptest.NewRecorder()
			h(w, tt.req)
			assert.Equal(tt.wantStatus, w.Code)
			if tt.wantStatus == http.StatusOK {
				var claims map[string]interface{}
				testDecode(t, w.Body.Bytes(), &claims)
				assert.Equal("alice@example.com", claims["sub"])
				return
			}
			var got AuthenErrorResponse
			testDecode(t, w.Body.Bytes(), &got)
			assert.Equal(tt.wantError, got.Error)
			if tt.wantContains != "" {
				assert.Contains(got.Description, tt.wantContains)
			}
		})
	}
	assert.Empty(t, tp.TokenRequests())
}
