// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssuerMetadata_UnmarshalJSON(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	raw := `{
		"issuer": "https://op.example.com",
		"token_endpoint": "https://op.example.com/token",
		"mtls_endpoint_aliases": {"token_endpoint": "https://mtls.op.example.com/token"},
		"scopes_supported": ["openid", "email"],
		"frontchannel_logout_supported": true,
		"backchannel_logout_supported": false
	}`
	var md IssuerMetadata
	require.NoError(json.Unmarshal([]byte(raw), &md))
	assert.Equal("https://op.example.com", md.Issuer)
	assert.Equal("https://mtls.op.example.com/token", md.MTLSEndpointAliases["token_endpoint"])
	assert.Equal(map[string]interface{}{
		"frontchannel_logout_supported": true,
		"backchannel_logout_supported":  false,
	}, md.Extra)

	v, ok := md.Get("token_endpoint")
	assert.True(ok)
	assert.Equal("https://op.example.com/token", v)
	assert.True(md.Has("frontchannel_logout_supported"))
	assert.True(md.Has("scopes_supported"))
	assert.False(md.Has("userinfo_endpoint"))
	assert.False(md.Has("not_a_thing"))
}

func TestIssuerMetadata_Validate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		md      *IssuerMetadata
		wantErr error
	}{
		{"valid", &IssuerMetadata{Issuer: "https://op.example.com", TokenEndpoint: "https://op.example.com/token"}, nil},
		{"nil", nil, ErrNilParameter},
		{"missing-issuer", &IssuerMetadata{TokenEndpoint: "https://op.example.com/token"}, ErrInvalidParameter},
		{"bad-endpoint", &IssuerMetadata{Issuer: "https://op.example.com", TokenEndpoint: "://nope"}, ErrInvalidParameter},
		{"bad-alg", &IssuerMetadata{Issuer: "https://op.example.com", IDTokenSigningAlgValuesSupported: []string{"XX999"}}, ErrInvalidParameter},
		{"none-alg-listed", &IssuerMetadata{Issuer: "https://op.example.com", IDTokenSigningAlgValuesSupported: []string{"none", "RS256"}}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert := assert.New(t)
			err := tt.md.Validate()
			if tt.wantErr == nil {
				assert.NoError(err)
				return
			}
			assert.ErrorIs(err, tt.wantErr)
		})
	}
}

func TestNewIssuer(t *testing.T) {
	t.Parallel()
	tp := StartTestProvider(t)
	t.Run("copies-metadata", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		md := tp.Metadata()
		iss, err := NewIssuer(md, tp.Issuer().KeySet())
		require.NoError(err)
		md.TokenEndpoint = "https://changed.example.com"
		assert.Equal(tp.Addr()+"/token", iss.Metadata().TokenEndpoint)
	})
	t.Run("nil-key-set", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		_, err := NewIssuer(tp.Metadata(), nil)
		require.Error(err)
		assert.ErrorIs(err, ErrNilParameter)
	})
}

func TestDiscoverIssuer(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	tp := StartTestProvider(t)
	tp.SetClientCreds("test-client-id", "test-client-secret")

	t.Run("discovered", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		iss, err := DiscoverIssuer(ctx, tp.Addr(), WithHTTPClient(tp.HTTPClient()))
		require.NoError(err)
		assert.Equal(tp.Metadata(), iss.Metadata())

		// the discovered key set verifies the provider's id_tokens
		c, err := NewClient(iss, tp.ClientMetadata(), WithHTTPClient(tp.HTTPClient()))
		require.NoError(err)
		idt := tp.IDToken(nil)
		ts, err := NewAuthorizationService().Callback(ctx, c, map[string]interface{}{"id_token": idt})
		require.NoError(err)
		assert.Equal("alice@example.com", ts.Claims()["sub"])
	})
	t.Run("untrusted-tls", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		_, err := DiscoverIssuer(ctx, tp.Addr())
		require.Error(err)
		assert.ErrorIs(err, ErrTransport)
	})
	t.Run("empty-url", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		_, err := DiscoverIssuer(ctx, "")
		require.Error(err)
		assert.ErrorIs(err, ErrInvalidParameter)
	})
}

func TestNewClient(t *testing.T) {
	t.Parallel()
	tp := StartTestProvider(t)
	iss := tp.Issuer()

	tests := []struct {
		name    string
		iss     *Issuer
		md      *ClientMetadata
		wantErr error
	}{
		{"valid", iss, &ClientMetadata{ClientID: "client"}, nil},
		{"nil-issuer", nil, &ClientMetadata{ClientID: "client"}, ErrNilParameter},
		{"nil-metadata", iss, nil, ErrNilParameter},
		{"missing-client-id", iss, &ClientMetadata{}, ErrInvalidParameter},
		{"unsupported-auth-method", iss, &ClientMetadata{ClientID: "client", TokenEndpointAuthMethod: "magic"}, ErrUnsupportedAuthMethod},
		{"unsupported-alg", iss, &ClientMetadata{ClientID: "client", IDTokenSignedResponseAlg: "none"}, ErrInvalidParameter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			c, err := NewClient(tt.iss, tt.md)
			if tt.wantErr != nil {
				require.Error(err)
				assert.ErrorIs(err, tt.wantErr)
				return
			}
			require.NoError(err)
			md := c.Metadata()
			assert.Equal([]string{"code"}, md.ResponseTypes)
			assert.Equal(AuthMethodClientSecretBasic, md.TokenEndpointAuthMethod)
			assert.Equal(AuthMethodClientSecretBasic, md.IntrospectionEndpointAuthMethod)
			assert.Equal(AuthMethodClientSecretBasic, md.RevocationEndpointAuthMethod)
			assert.Equal(string(RS256), md.IDTokenSignedResponseAlg)
			assert.Equal(iss, c.Issuer())
			assert.Nil(c.HTTPClient())
			assert.Nil(c.JWKS())
			assert.Empty(tt.md.ResponseTypes)
		})
	}
}

func TestClientMetadata_Get(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	md := &ClientMetadata{
		ClientID:                              "client",
		ClientSecret:                          "secret",
		TLSClientCertificateBoundAccessTokens: false,
		Extra:                                 map[string]interface{}{"software_id": "cap"},
	}
	v, ok := md.Get("client_secret")
	assert.True(ok)
	assert.Equal(ClientSecret("secret"), v)
	assert.Equal(RedactedClientSecret, v.(ClientSecret).String())
	assert.True(md.Has("software_id"))
	assert.False(md.Has("redirect_uris"))
	assert.True(md.Has("tls_client_certificate_bound_access_tokens"))
	assert.Equal(AuthMethodClientSecretBasic, md.withDefaults().authMethodFor("revocation_endpoint"))

	b, err := json.Marshal(md)
	assert.NoError(err)
	assert.NotContains(string(b), `"secret"`)
}
