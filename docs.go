// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package rp is the root of a collection of packages for building OpenID
// Connect and OAuth 2.0 relying parties: the oidc package (authorization
// requests, callbacks, token requests, verification of the returned tokens,
// userinfo, introspection and revocation), the jwt package (key sets for
// verifying JWT signatures) and the oidc/callback package (http handlers for
// provider responses).
package rp
