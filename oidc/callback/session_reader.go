// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package callback

import (
	"context"
	"fmt"

	"github.com/hashicorp/cap-rp/oidc"
)

// SessionReader defines an interface for finding and reading the
// oidc.AuthSession created for an authentication request.
//
// Implementations must be concurrently safe, since the reader will likely be
// used within a concurrent http.Handler
type SessionReader interface {
	// Read an existing AuthSession entry.  The returned session's State must
	// match the state used to look it up. Implementations must be
	// concurrently safe, which likely means returning a copy.
	Read(ctx context.Context, state string) (*oidc.AuthSession, error)
}

// SingleSessionReader implements the SessionReader interface for a single
// session.  It is concurrently safe.
type SingleSessionReader struct {
	Session *oidc.AuthSession
}

// Read will return a copy of its session if the state matches its
// Session.State, otherwise it returns an error of oidc.ErrNotFound.
func (sr *SingleSessionReader) Read(_ context.Context, state string) (*oidc.AuthSession, error) {
	const op = "SingleSessionReader.Read"
	if sr.Session == nil || sr.Session.State != state {
		return nil, fmt.Errorf("%s: %w", op, oidc.ErrNotFound)
	}
	cp := *sr.Session
	return &cp, nil
}
