// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"fmt"
	"reflect"
	"strings"

	"golang.org/x/text/language"

	"github.com/hashicorp/cap-rp/oidc/internal/strutils"
)

// Defaults of an AuthRequest.
const (
	DefaultScope        = "openid"
	DefaultResponseType = "code"
	DefaultResponseMode = "query"
)

// Display values.  See:
// https://openid.net/specs/openid-connect-core-1_0.html#AuthRequest
type Display string

const (
	Page  Display = "page"
	Popup Display = "popup"
	Touch Display = "touch"
	WAP   Display = "wap"
)

// Prompt values.  See:
// https://openid.net/specs/openid-connect-core-1_0.html#AuthRequest
type Prompt string

const (
	None          Prompt = "none"
	Login         Prompt = "login"
	Consent       Prompt = "consent"
	SelectAccount Prompt = "select_account"
)

// AuthRequest is an immutable authorization request: an open set of params
// which always has a client_id and a redirect_uri, and defaults to
// scope=openid, response_type=code and response_mode=query.
type AuthRequest struct {
	params map[string]interface{}
}

// NewAuthRequest creates an AuthRequest from params.  It fails with
// ErrInvalidParameter when client_id or redirect_uri is missing.  Nil params
// are dropped.
func NewAuthRequest(params map[string]interface{}) (*AuthRequest, error) {
	const op = "NewAuthRequest"
	p := map[string]interface{}{
		"scope":         DefaultScope,
		"response_type": DefaultResponseType,
		"response_mode": DefaultResponseMode,
	}
	for k, v := range params {
		p[k] = v
	}
	r := &AuthRequest{params: copyParams(p)}
	if err := r.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return r, nil
}

func (r *AuthRequest) validate() error {
	for _, k := range []string{"client_id", "redirect_uri"} {
		if stringValue(r.params[k]) == "" {
			return fmt.Errorf("%s is missing: %w", k, ErrInvalidParameter)
		}
	}
	return nil
}

// WithParams returns a new AuthRequest with extra merged over the request's
// params.  The receiver is unchanged.  A nil value removes a param, and
// removing client_id or redirect_uri fails with ErrInvalidParameter.
func (r *AuthRequest) WithParams(extra map[string]interface{}) (*AuthRequest, error) {
	const op = "AuthRequest.WithParams"
	p := make(map[string]interface{}, len(r.params)+len(extra))
	for k, v := range r.params {
		p[k] = v
	}
	for k, v := range extra {
		p[k] = v
	}
	n := &AuthRequest{params: copyParams(p)}
	if err := n.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}

// Params returns a copy of the request's params, which can be passed to
// AuthorizationService.AuthorizationURL.
func (r *AuthRequest) Params() map[string]interface{} {
	return copyParams(r.params)
}

// Equal reports whether both requests have the same params.
func (r *AuthRequest) Equal(other *AuthRequest) bool {
	if r == nil || other == nil {
		return r == other
	}
	return reflect.DeepEqual(r.params, other.params)
}

// Get returns the param key.
func (r *AuthRequest) Get(key string) (interface{}, bool) {
	v, ok := r.params[key]
	return v, ok
}

func (r *AuthRequest) str(key string) string { return stringValue(r.params[key]) }

// ClientID returns the client_id.
func (r *AuthRequest) ClientID() string { return r.str("client_id") }

// RedirectURI returns the redirect_uri.
func (r *AuthRequest) RedirectURI() string { return r.str("redirect_uri") }

// Scope returns the space delimited scope.
func (r *AuthRequest) Scope() string { return r.str("scope") }

// ResponseType returns the response_type.
func (r *AuthRequest) ResponseType() string { return r.str("response_type") }

// ResponseMode returns the response_mode.
func (r *AuthRequest) ResponseMode() string { return r.str("response_mode") }

// State returns the state.
func (r *AuthRequest) State() string { return r.str("state") }

// Nonce returns the nonce.
func (r *AuthRequest) Nonce() string { return r.str("nonce") }

// Display returns the display.
func (r *AuthRequest) Display() string { return r.str("display") }

// Prompt returns the space delimited prompt.
func (r *AuthRequest) Prompt() string { return r.str("prompt") }

// MaxAge returns the max_age in seconds, and whether it's set.
func (r *AuthRequest) MaxAge() (int, bool) {
	v, ok := r.params["max_age"]
	if !ok {
		return 0, false
	}
	i, ok := int64Value(v)
	return int(i), ok
}

// UILocales returns the space delimited ui_locales.
func (r *AuthRequest) UILocales() string { return r.str("ui_locales") }

// IDTokenHint returns the id_token_hint.
func (r *AuthRequest) IDTokenHint() string { return r.str("id_token_hint") }

// LoginHint returns the login_hint.
func (r *AuthRequest) LoginHint() string { return r.str("login_hint") }

// ACRValues returns the space delimited acr_values.
func (r *AuthRequest) ACRValues() string { return r.str("acr_values") }

// Request returns the request object (a JWT).
func (r *AuthRequest) Request() string { return r.str("request") }

// CodeChallenge returns the PKCE code_challenge.
func (r *AuthRequest) CodeChallenge() string { return r.str("code_challenge") }

// CodeChallengeMethod returns the PKCE code_challenge_method.
func (r *AuthRequest) CodeChallengeMethod() string { return r.str("code_challenge_method") }

// NewAuthRequestFromClient creates an AuthRequest for the client: its
// client_id, first registered redirect_uri and response_type, plus the
// options.
//
// Supported options:
//   - WithAuthSession (state, nonce and the S256 code_challenge)
//   - WithState, WithNonce (override the AuthSession's)
//   - WithRedirectURI
//   - WithScopes ("openid" is always requested)
//   - WithResponseType, WithResponseMode
//   - WithPrompts, WithDisplay, WithMaxAge
//   - WithUILocales, WithClaimsLocales
//   - WithLoginHint, WithIDTokenHint, WithACRValues
//   - WithClaims
func NewAuthRequestFromClient(c *Client, opt ...Option) (*AuthRequest, error) {
	const op = "NewAuthRequestFromClient"
	if c == nil {
		return nil, fmt.Errorf("%s: client is nil: %w", op, ErrNilParameter)
	}
	opts := getAuthRequestOpts(opt...)
	p := map[string]interface{}{
		"client_id":     c.metadata.ClientID,
		"response_type": c.metadata.ResponseTypes[0],
	}
	if len(c.metadata.RedirectURIs) > 0 {
		p["redirect_uri"] = c.metadata.RedirectURIs[0]
	}
	if opts.withRedirectURI != "" {
		p["redirect_uri"] = opts.withRedirectURI
	}
	if opts.withResponseType != "" {
		p["response_type"] = opts.withResponseType
	}
	if opts.withResponseMode != "" {
		p["response_mode"] = opts.withResponseMode
	}
	scopes := strutils.RemoveDuplicatesStable(append([]string{DefaultScope}, opts.withScopes...), false)
	p["scope"] = strings.Join(scopes, " ")

	if sess := opts.withAuthSession; sess != nil {
		setNonEmpty(p, "state", sess.State)
		setNonEmpty(p, "nonce", sess.Nonce)
		if challenge := sess.CodeChallenge(); challenge != "" {
			p["code_challenge"] = challenge
			p["code_challenge_method"] = string(S256)
		}
	}
	setNonEmpty(p, "state", opts.withState)
	setNonEmpty(p, "nonce", opts.withNonce)
	setNonEmpty(p, "display", string(opts.withDisplay))
	setNonEmpty(p, "login_hint", opts.withLoginHint)
	setNonEmpty(p, "id_token_hint", string(opts.withIDTokenHint))
	if len(opts.withPrompts) > 0 {
		prompts := make([]string, 0, len(opts.withPrompts))
		for _, pr := range opts.withPrompts {
			prompts = append(prompts, string(pr))
		}
		prompts = strutils.RemoveDuplicatesStable(prompts, false)
		if strutils.StrListContains(prompts, string(None)) && len(prompts) > 1 {
			return nil, fmt.Errorf("%s: prompts (%s) includes %q with other values: %w", op, prompts, None, ErrInvalidParameter)
		}
		p["prompt"] = strings.Join(prompts, " ")
	}
	if opts.withMaxAge != nil {
		p["max_age"] = *opts.withMaxAge
	}
	if len(opts.withUILocales) > 0 {
		p["ui_locales"] = localesString(opts.withUILocales)
	}
	if len(opts.withClaimsLocales) > 0 {
		p["claims_locales"] = localesString(opts.withClaimsLocales)
	}
	if len(opts.withACRValues) > 0 {
		p["acr_values"] = strings.Join(opts.withACRValues, " ")
	}
	if len(opts.withClaims) > 0 {
		p["claims"] = opts.withClaims
	}
	r, err := NewAuthRequest(p)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return r, nil
}

func setNonEmpty(p map[string]interface{}, key, v string) {
	if v != "" {
		p[key] = v
	}
}

func localesString(tags []language.Tag) string {
	s := make([]string, 0, len(tags))
	for _, t := range tags {
		s = append(s, t.String())
	}
	return strings.Join(s, " ")
}

// authRequestOptions is the set of available options for
// NewAuthRequestFromClient
type authRequestOptions struct {
	withAuthSession   *AuthSession
	withState         string
	withNonce         string
	withRedirectURI   string
	withScopes        []string
	withResponseType  string
	withResponseMode  string
	withPrompts       []Prompt
	withDisplay       Display
	withMaxAge        *uint
	withUILocales     []language.Tag
	withClaimsLocales []language.Tag
	withLoginHint     string
	withIDTokenHint   IDToken
	withACRValues     []string
	withClaims        map[string]interface{}
}

func authRequestDefaults() authRequestOptions {
	return authRequestOptions{}
}

func getAuthRequestOpts(opt ...Option) authRequestOptions {
	opts := authRequestDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithState provides an optional state for NewAuthRequestFromClient.
func WithState(state string) Option {
	return func(o interface{}) {
		if o, ok := o.(*authRequestOptions); ok {
			o.withState = state
		}
	}
}

// WithNonce provides an optional nonce for NewAuthRequestFromClient.
func WithNonce(nonce string) Option {
	return func(o interface{}) {
		if o, ok := o.(*authRequestOptions); ok {
			o.withNonce = nonce
		}
	}
}

// WithScopes provides optional scopes for NewAuthRequestFromClient, in
// addition to "openid".
func WithScopes(scopes ...string) Option {
	return func(o interface{}) {
		if o, ok := o.(*authRequestOptions); ok {
			o.withScopes = append(o.withScopes, scopes...)
		}
	}
}

// WithResponseType provides an optional response_type for
// NewAuthRequestFromClient, overriding the client's first registered one.
func WithResponseType(responseType string) Option {
	return func(o interface{}) {
		if o, ok := o.(*authRequestOptions); ok {
			o.withResponseType = responseType
		}
	}
}

// WithResponseMode provides an optional response_mode (query, fragment,
// form_post, jwt, query.jwt, fragment.jwt or form_post.jwt) for
// NewAuthRequestFromClient.
func WithResponseMode(mode string) Option {
	return func(o interface{}) {
		if o, ok := o.(*authRequestOptions); ok {
			o.withResponseMode = mode
		}
	}
}

// WithPrompts provides optional prompts for NewAuthRequestFromClient.  None
// can't be combined with any other prompt.
func WithPrompts(prompts ...Prompt) Option {
	return func(o interface{}) {
		if o, ok := o.(*authRequestOptions); ok {
			o.withPrompts = append(o.withPrompts, prompts...)
		}
	}
}

// WithDisplay provides an optional display for NewAuthRequestFromClient.
func WithDisplay(d Display) Option {
	return func(o interface{}) {
		if o, ok := o.(*authRequestOptions); ok {
			o.withDisplay = d
		}
	}
}

// WithUILocales provides optional ui_locales for NewAuthRequestFromClient.
func WithUILocales(locales ...language.Tag) Option {
	return func(o interface{}) {
		if o, ok := o.(*authRequestOptions); ok {
			o.withUILocales = append(o.withUILocales, locales...)
		}
	}
}

// WithClaimsLocales provides optional claims_locales for
// NewAuthRequestFromClient.
func WithClaimsLocales(locales ...language.Tag) Option {
	return func(o interface{}) {
		if o, ok := o.(*authRequestOptions); ok {
			o.withClaimsLocales = append(o.withClaimsLocales, locales...)
		}
	}
}

// WithLoginHint provides an optional login_hint for NewAuthRequestFromClient.
func WithLoginHint(hint string) Option {
	return func(o interface{}) {
		if o, ok := o.(*authRequestOptions); ok {
			o.withLoginHint = hint
		}
	}
}

// WithIDTokenHint provides an optional id_token_hint for
// NewAuthRequestFromClient.
func WithIDTokenHint(t IDToken) Option {
	return func(o interface{}) {
		if o, ok := o.(*authRequestOptions); ok {
			o.withIDTokenHint = t
		}
	}
}

// WithACRValues provides optional acr_values for NewAuthRequestFromClient.
func WithACRValues(values ...string) Option {
	return func(o interface{}) {
		if o, ok := o.(*authRequestOptions); ok {
			o.withACRValues = append(o.withACRValues, values...)
		}
	}
}

// WithClaims provides an optional claims request for
// NewAuthRequestFromClient.  It's JSON encoded in the authorization URL.  See:
// https://openid.net/specs/openid-connect-core-1_0.html#ClaimsParameter
func WithClaims(claims map[string]interface{}) Option {
	return func(o interface{}) {
		if o, ok := o.(*authRequestOptions); ok {
			o.withClaims = claims
		}
	}
}
