// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

/*
Package oidc is an OpenID Connect and OAuth 2.0 relying party.  It supports
the Authorization Code, Implicit and Hybrid flows of OpenID Connect Core 1.0,
PKCE (RFC 7636), JWT secured authorization responses (JARM), the
client_secret_basic, client_secret_post, client_secret_jwt, private_key_jwt,
tls_client_auth and self_signed_tls_client_auth client authentication
methods, UserInfo, token introspection (RFC 7662) and token revocation
(RFC 7009).

An Issuer (DiscoverIssuer or NewIssuer) and a Client (NewClient) describe the
provider and the relying party.  An AuthSession keeps the state, nonce and
code_verifier of an authentication between the authorization request and its
callback.  The AuthorizationService builds authorization urls, processes
callbacks and talks to the token endpoint; every returned TokenSet carries
the verified claims of its id_token.

Errors wrap the package's sentinel errors and can be classified with Kind.

Example:

	iss, _ := oidc.DiscoverIssuer(ctx, "https://your-issuer.com/")
	c, _ := oidc.NewClient(iss, &oidc.ClientMetadata{ClientID: "id", ClientSecret: "secret"})
	sess, _ := oidc.NewAuthSession(oidc.WithPKCE())
	req, _ := oidc.NewAuthRequestFromClient(c, oidc.WithAuthSession(sess))
	svc := oidc.NewAuthorizationService()
	authURL, _ := svc.AuthorizationURL(c, req.Params())

	// ... and in the redirect_uri handler
	params, _ := svc.CallbackParams(ctx, req, c)
	ts, _ := svc.Callback(ctx, c, params, oidc.WithAuthSession(sess))
*/
package oidc
