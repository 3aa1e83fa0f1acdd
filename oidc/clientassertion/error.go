// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package clientassertion

import "errors"

var (
	// configuration errors, returned by NewJWT and the options

	ErrMissingClientID    = errors.New("missing client ID")
	ErrMissingAudience    = errors.New("missing audience")
	ErrMissingAlgorithm   = errors.New("missing signing algorithm")
	ErrMissingKeyOrSecret = errors.New("missing private key or client secret")
	ErrBothKeyAndSecret   = errors.New("both private key and client secret provided")
	ErrInvalidLifetime    = errors.New("lifetime must be greater than zero")

	// key and algorithm errors

	ErrUnsupportedAlgorithm = errors.New("unsupported algorithm")
	ErrUnsupportedKey       = errors.New("unsupported private key")
	ErrInvalidSecretLength  = errors.New("invalid secret length for algorithm")
	ErrNilPrivateKey        = errors.New("nil private key")

	// signing errors, returned by Serialize

	ErrSigning = errors.New("unable to sign client assertion")
)
