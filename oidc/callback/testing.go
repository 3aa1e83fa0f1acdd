// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package callback

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hashicorp/cap-rp/oidc"
)

// testSuccessFn is a test SuccessResponseFunc which replies with the verified
// claims.
func testSuccessFn(_ string, ts *oidc.TokenSet, w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(ts.Claims())
}

// testFailFn is a test ErrorResponseFunc
func testFailFn(_ string, r *AuthenErrorResponse, e error, w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch {
	case r != nil:
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(r)
	case e != nil:
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(&AuthenErrorResponse{
			Error:       "internal-callback-error",
			Description: e.Error(),
		})
	default:
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(&AuthenErrorResponse{Error: "unknown-callback-error"})
	}
}

// testSetup starts a TestProvider with a registered client and returns it
// with a client, an authorization service and a PKCE session the provider
// expects.
func testSetup(t *testing.T) (*oidc.TestProvider, *oidc.Client, *oidc.AuthorizationService, *oidc.AuthSession) {
	t.Helper()
	require := require.New(t)
	tp := oidc.StartTestProvider(t)
	tp.SetClientCreds("test-client-id", "test-client-secret")
	tp.SetExpectedAuthCode("valid-code")

	sess, err := oidc.NewAuthSession(oidc.WithPKCE())
	require.NoError(err)
	tp.SetExpectedAuthNonce(sess.Nonce)
	tp.SetExpectedCodeVerifier(sess.CodeVerifier)

	svc := oidc.NewAuthorizationService(oidc.WithHTTPClient(tp.HTTPClient()))
	return tp, tp.Client(), svc, sess
}

// testDecode decodes a json reply of a test response func.
func testDecode(t *testing.T, body []byte, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(body, v))
}
