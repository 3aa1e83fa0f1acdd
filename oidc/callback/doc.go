// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

/*
Package callback is a package that provides callbacks (in the form of
http.HandlerFunc) for handling OIDC provider responses to authentication
requests.

Both handlers read the authorization response with
oidc.AuthorizationService.CallbackParams, so form_post (POST body), fragment
and query response modes are supported, as are JWT secured authorization
responses.  The AuthSession created for the request is looked up by the
response's state with a SessionReader, then the response is processed by
oidc.AuthorizationService.Callback.

Example:

	sess, _ := oidc.NewAuthSession(oidc.WithPKCE())
	h, err := callback.AuthCode(ctx, svc, client, &callback.SingleSessionReader{Session: sess}, successFn, errorFn)
	if err != nil {
		// handle error
	}
	http.HandleFunc("/callback", h)
*/
package callback
