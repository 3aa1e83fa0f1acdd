// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-jose/go-jose/v4"

	"github.com/hashicorp/cap-rp/jwt"
)

// TokenVerifier verifies a JWT issued by the provider of a Client and returns
// its verified claims.  TokenVerifiers are immutable: every With method returns
// a new TokenVerifier, leaving the receiver unchanged.
type TokenVerifier interface {
	// WithNonce returns a verifier which requires the token's nonce claim to
	// equal nonce.  An empty nonce disables the check.
	WithNonce(nonce string) TokenVerifier

	// WithState returns a verifier which checks the token's s_hash claim (when
	// present) against state.
	WithState(state string) TokenVerifier

	// WithCode returns a verifier which checks the token's c_hash claim (when
	// present) against code.
	WithCode(code string) TokenVerifier

	// WithMaxAge returns a verifier which requires an auth_time claim no
	// older than seconds.
	WithMaxAge(seconds uint) TokenVerifier

	// WithAccessToken returns a verifier which checks the token's at_hash
	// claim (when present) against accessToken.
	WithAccessToken(accessToken string) TokenVerifier

	// Verify the token and return its claims.  Every failure wraps
	// ErrInvalidToken along with its specific cause.
	Verify(ctx context.Context, token string) (map[string]interface{}, error)
}

// TokenVerifierBuilder builds the TokenVerifier for a Client.
type TokenVerifierBuilder interface {
	Build(c *Client) (TokenVerifier, error)
}

type verifierKind int

const (
	idTokenVerifierKind verifierKind = iota
	responseVerifierKind
	userInfoVerifierKind
)

func (k verifierKind) String() string {
	switch k {
	case idTokenVerifierKind:
		return "id_token"
	case responseVerifierKind:
		return "response"
	case userInfoVerifierKind:
		return "userinfo"
	default:
		return "unknown"
	}
}

// expectations are the values a token is bound to.
type expectations struct {
	nonce       string
	state       string
	code        string
	accessToken string
	maxAge      *uint
}

type tokenVerifier struct {
	kind        verifierKind
	client      *Client
	expectedAlg string
	now         func() time.Time
	leeway      time.Duration
	expect      expectations
}

var _ TokenVerifier = tokenVerifier{}

func (v tokenVerifier) WithNonce(nonce string) TokenVerifier {
	v.expect.nonce = nonce
	return v
}

func (v tokenVerifier) WithState(state string) TokenVerifier {
	v.expect.state = state
	return v
}

func (v tokenVerifier) WithCode(code string) TokenVerifier {
	v.expect.code = code
	return v
}

func (v tokenVerifier) WithMaxAge(seconds uint) TokenVerifier {
	v.expect.maxAge = &seconds
	return v
}

func (v tokenVerifier) WithAccessToken(accessToken string) TokenVerifier {
	v.expect.accessToken = accessToken
	return v
}

// Verify the token according to the kind of the verifier.
func (v tokenVerifier) Verify(ctx context.Context, token string) (map[string]interface{}, error) {
	switch v.kind {
	case idTokenVerifierKind:
		return v.verifyIDToken(ctx, token)
	case responseVerifierKind:
		return v.verifyResponse(ctx, token)
	case userInfoVerifierKind:
		return v.verifyUserInfo(ctx, token)
	default:
		return nil, fmt.Errorf("tokenVerifier.Verify: unknown verifier kind %d: %w", v.kind, ErrRuntime)
	}
}

// keySet returns the KeySet for alg: the issuer's for asymmetric algs and one
// backed by the client secret for HMAC algs.
func (v tokenVerifier) keySet(alg string) (jwt.KeySet, error) {
	if !isHMACAlg(alg) {
		return v.client.issuer.keySet, nil
	}
	if v.client.metadata.ClientSecret == "" {
		return nil, fmt.Errorf("%s requires a client_secret: %w", alg, ErrInvalidParameter)
	}
	return hmacKeySet{secret: []byte(v.client.metadata.ClientSecret)}, nil
}

// headerAlg parses the token's JOSE header and checks its alg against the
// expected one.  An empty expected alg accepts any supported asymmetric alg.
func (v tokenVerifier) headerAlg(token string) (string, error) {
	jws, err := jose.ParseSigned(token, joseAlgs())
	if err != nil {
		if strings.Contains(err.Error(), "unexpected signature algorithm") {
			return "", fmt.Errorf("%w: %w", ErrUnsupportedAlg, err)
		}
		return "", fmt.Errorf("%w: %w", ErrMalformedToken, err)
	}
	if len(jws.Signatures) != 1 {
		return "", fmt.Errorf("expected one signature, got %d: %w", len(jws.Signatures), ErrMalformedToken)
	}
	alg := jws.Signatures[0].Header.Algorithm
	switch {
	case v.expectedAlg != "" && alg != v.expectedAlg:
		return "", fmt.Errorf("expected %q, got %q: %w", v.expectedAlg, alg, ErrUnsupportedAlg)
	case v.expectedAlg == "" && isHMACAlg(alg):
		return "", fmt.Errorf("%q is not allowed: %w", alg, ErrUnsupportedAlg)
	}
	return alg, nil
}

// verifySignature checks the token's alg and signature and returns its
// payload.
func (v tokenVerifier) verifySignature(ctx context.Context, token string) ([]byte, string, error) {
	alg, err := v.headerAlg(token)
	if err != nil {
		return nil, "", err
	}
	ks, err := v.keySet(alg)
	if err != nil {
		return nil, "", err
	}
	payload, err := ks.VerifySignature(ctx, token)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}
	return payload, alg, nil
}

func (v tokenVerifier) timeNow() time.Time {
	if v.now != nil {
		return v.now()
	}
	return time.Now()
}

// verifierBuilder builds tokenVerifiers of one kind.
type verifierBuilder struct {
	kind verifierKind
	opts verifierOptions
}

// NewIDTokenVerifierBuilder returns the builder of id_token verifiers.  The
// id_token's alg must equal the client's id_token_signed_response_alg.
//
// Supported options:
//   - WithNow
//   - WithLeeway
func NewIDTokenVerifierBuilder(opt ...Option) TokenVerifierBuilder {
	return verifierBuilder{kind: idTokenVerifierKind, opts: getVerifierOpts(opt...)}
}

// NewResponseVerifierBuilder returns the builder of JWT secured authorization
// response (JARM) verifiers.  The response's alg must equal the client's
// authorization_signed_response_alg.
//
// Supported options:
//   - WithNow
//   - WithLeeway
func NewResponseVerifierBuilder(opt ...Option) TokenVerifierBuilder {
	return verifierBuilder{kind: responseVerifierKind, opts: getVerifierOpts(opt...)}
}

// NewUserInfoVerifierBuilder returns the builder of signed userinfo response
// verifiers.  The response's alg must equal the client's
// userinfo_signed_response_alg when it's registered.
//
// Supported options:
//   - WithNow
//   - WithLeeway
func NewUserInfoVerifierBuilder(opt ...Option) TokenVerifierBuilder {
	return verifierBuilder{kind: userInfoVerifierKind, opts: getVerifierOpts(opt...)}
}

// Build the verifier for the client.
func (b verifierBuilder) Build(c *Client) (TokenVerifier, error) {
	op := fmt.Sprintf("%sVerifierBuilder.Build", b.kind)
	if c == nil {
		return nil, fmt.Errorf("%s: client is nil: %w", op, ErrNilParameter)
	}
	var alg string
	switch b.kind {
	case idTokenVerifierKind:
		alg = c.metadata.IDTokenSignedResponseAlg
	case responseVerifierKind:
		alg = c.metadata.AuthorizationSignedResponseAlg
	case userInfoVerifierKind:
		alg = c.metadata.UserinfoSignedResponseAlg
	}
	if alg != "" && !isSupportedAlg(alg) {
		return nil, fmt.Errorf("%s: %q: %w", op, alg, ErrUnsupportedAlg)
	}
	return tokenVerifier{
		kind:        b.kind,
		client:      c,
		expectedAlg: alg,
		now:         b.opts.withNowFunc,
		leeway:      b.opts.withLeeway,
	}, nil
}

// verifierOptions is the set of available options for the verifier builders
type verifierOptions struct {
	withNowFunc func() time.Time
	withLeeway  time.Duration
}

func verifierDefaults() verifierOptions {
	return verifierOptions{
		withNowFunc: time.Now,
	}
}

func getVerifierOpts(opt ...Option) verifierOptions {
	opts := verifierDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithLeeway provides an optional clock skew allowance when checking the
// time based claims (exp, iat, auth_time) of a token.
//
// Valid for: NewIDTokenVerifierBuilder, NewResponseVerifierBuilder and
// NewUserInfoVerifierBuilder
func WithLeeway(d time.Duration) Option {
	return func(o interface{}) {
		if o, ok := o.(*verifierOptions); ok && d >= 0 {
			o.withLeeway = d
		}
	}
}

// hmacKeySet verifies HMAC signed JWTs with the client secret.
type hmacKeySet struct {
	secret []byte
}

func (ks hmacKeySet) VerifySignature(_ context.Context, token string) ([]byte, error) {
	jws, err := jose.ParseSigned(token, []jose.SignatureAlgorithm{jose.HS256, jose.HS384, jose.HS512})
	if err != nil {
		return nil, fmt.Errorf("malformed jwt: %w", err)
	}
	return jws.Verify(ks.secret)
}

func isHMACAlg(alg string) bool {
	switch Alg(alg) {
	case HS256, HS384, HS512:
		return true
	default:
		return false
	}
}

func joseAlgs() []jose.SignatureAlgorithm {
	algs := make([]jose.SignatureAlgorithm, 0, len(supportedAlgorithms))
	for a := range supportedAlgorithms {
		algs = append(algs, jose.SignatureAlgorithm(a))
	}
	return algs
}

// claimString returns the string claim key, and whether it's present.
func claimString(claims map[string]interface{}, key string) (string, bool) {
	v, ok := claims[key]
	if !ok || v == nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// claimAudience returns the aud claim, which is either a string or an array
// of strings.
func claimAudience(claims map[string]interface{}) []string {
	switch aud := claims["aud"].(type) {
	case string:
		return []string{aud}
	case []interface{}:
		out := make([]string, 0, len(aud))
		for _, a := range aud {
			if s, ok := a.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return aud
	default:
		return nil
	}
}

func claimTime(claims map[string]interface{}, key string) (time.Time, bool) {
	v, ok := claims[key]
	if !ok {
		return time.Time{}, false
	}
	secs, ok := int64Value(v)
	if !ok {
		return time.Time{}, false
	}
	return time.Unix(secs, 0), true
}

// checkHash compares a left half hash claim (at_hash, c_hash, s_hash) with
// the hash of value.
func checkHash(claims map[string]interface{}, claim, alg, value string, mismatch error) error {
	got, ok := claimString(claims, claim)
	if !ok || value == "" {
		return nil
	}
	want, err := leftHalfHash(alg, value)
	if err != nil {
		return err
	}
	if got != want {
		return mismatch
	}
	return nil
}
