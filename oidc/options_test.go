// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
)

func TestApplyOpts(t *testing.T) {
	// Let's make sure we don't panic on nil options
	anonymousOpts := struct {
		Names []string
	}{
		nil,
	}
	ApplyOpts(anonymousOpts, nil)
}

func Test_serviceOptions(t *testing.T) {
	t.Parallel()
	t.Run("defaults", func(t *testing.T) {
		assert := assert.New(t)
		opts := getServiceOpts()
		assert.NotNil(opts.withHTTPClient)
		assert.NotNil(opts.withLogger)
		assert.NotNil(opts.withNowFunc)
		assert.NotNil(opts.withIDTokenVerifierBuilder)
		assert.NotNil(opts.withResponseVerifierBuilder)
		assert.NotNil(opts.withUserInfoVerifierBuilder)
	})
	t.Run("overrides", func(t *testing.T) {
		assert := assert.New(t)
		fixed := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
		logger := hclog.New(&hclog.LoggerOptions{Name: "test"})
		opts := getServiceOpts(
			WithNow(func() time.Time { return fixed }),
			WithLogger(logger),
			WithHTTPClient(nil),
		)
		assert.Equal(fixed, opts.withNowFunc())
		assert.Equal(logger, opts.withLogger)
		assert.NotNil(opts.withHTTPClient)
	})
}

func Test_callbackOptions(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	sess := &AuthSession{State: "st", Nonce: "n"}
	opts := getCallbackOpts(WithRedirectURI("https://example.com/cb"), WithAuthSession(sess), WithMaxAge(60))
	assert.Equal("https://example.com/cb", opts.withRedirectURI)
	assert.Equal(sess, opts.withAuthSession)
	if assert.NotNil(opts.withMaxAge) {
		assert.Equal(uint(60), *opts.withMaxAge)
	}
	assert.Equal(callbackDefaults(), getCallbackOpts())
}
