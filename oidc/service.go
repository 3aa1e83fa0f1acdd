// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-hclog"
)

// maxResponseSize limits how much of a provider response is read.
const maxResponseSize = 1 << 20

// service holds what every service needs to talk to a provider.  It's
// read only once created.
type service struct {
	httpClient HTTPClient
	logger     hclog.Logger
	now        func() time.Time
}

func newService(opts serviceOptions) service {
	return service{
		httpClient: opts.withHTTPClient,
		logger:     opts.withLogger,
		now:        opts.withNowFunc,
	}
}

// clientFor returns the client's own http client when it has one, and the
// service's otherwise.
func (s service) clientFor(c *Client) HTTPClient {
	if c.httpClient != nil {
		return c.httpClient
	}
	return s.httpClient
}

// postForm sends body to the endpoint named endpointKey, authenticated by the
// client's auth method for that endpoint.  No retry is ever attempted.
func (s service) postForm(ctx context.Context, c *Client, endpointKey string, body url.Values) (*http.Response, error) {
	const op = "postForm"
	endpoint, err := resolveEndpoint(c, endpointKey)
	if err != nil {
		return nil, err
	}
	methodName := c.metadata.authMethodFor(endpointKey)
	method, err := c.authMethods.Create(methodName)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrInvalidParameter, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to create request: %w: %w", op, ErrRuntime, err)
	}
	req.Header.Set("Accept", "application/json")
	req, err = method.CreateRequest(req, c, body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return s.do(c, req, endpointKey)
}

// do sends the request with the client's http client.
func (s service) do(c *Client, req *http.Request, endpointKey string) (*http.Response, error) {
	const op = "do"
	start := s.now()
	resp, err := s.clientFor(c).Do(req)
	if err != nil {
		s.logger.Debug("request failed", "endpoint", endpointKey, "url", req.URL.Redacted(), "error", err)
		return nil, fmt.Errorf("%s: %s: %w: %w", op, endpointKey, ErrTransport, err)
	}
	s.logger.Debug("request sent", "endpoint", endpointKey, "url", req.URL.Redacted(), "status", resp.StatusCode, "elapsed", s.now().Sub(start))
	return resp, nil
}

// resolveEndpoint returns the issuer endpoint for the metadata key (like
// "token_endpoint").  A client authenticating with mutual TLS, or using
// certificate bound access tokens, uses the issuer's mtls alias when there's
// one.  See: https://www.rfc-editor.org/rfc/rfc8705#section-5
func resolveEndpoint(c *Client, key string) (string, error) {
	const op = "resolveEndpoint"
	if c == nil {
		return "", fmt.Errorf("%s: client is nil: %w", op, ErrNilParameter)
	}
	md := c.issuer.metadata
	method := c.metadata.authMethodFor(key)
	if strings.Contains(method, AuthMethodTLSClientAuth) || c.metadata.TLSClientCertificateBoundAccessTokens {
		if alias := md.MTLSEndpointAliases[key]; alias != "" {
			return alias, nil
		}
	}
	v, _ := md.Get(key)
	endpoint, ok := v.(string)
	if !ok || endpoint == "" {
		return "", fmt.Errorf("%s: %q: %w", op, key, ErrMissingEndpoint)
	}
	return endpoint, nil
}

// ParseMetadataResponse reads a JSON object from the provider's response and
// closes its body.  When expectedStatus is 0 any 2xx status is accepted.
//
// A response with an unexpected status returns an *OAuth2Error when its body
// is an oauth2 error object and a *RemoteError otherwise.  A body which isn't
// a JSON object returns an error matching both ErrInvalidParameter and
// ErrInvalidMetadata.
func ParseMetadataResponse(resp *http.Response, expectedStatus int) (map[string]interface{}, error) {
	const op = "ParseMetadataResponse"
	if resp == nil {
		return nil, fmt.Errorf("%s: response is nil: %w", op, ErrNilParameter)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%s: unable to read response body: %w: %w", op, ErrTransport, err)
	}
	if !statusOK(resp.StatusCode, expectedStatus) {
		var params map[string]interface{}
		if json.Unmarshal(body, &params) == nil {
			if oauthErr := NewOAuth2ErrorFromParams(params); oauthErr != nil {
				return nil, fmt.Errorf("%s: %w", op, oauthErr)
			}
		}
		return nil, fmt.Errorf("%s: %w", op, newRemoteError(resp, body))
	}
	var params map[string]interface{}
	if err := json.Unmarshal(body, &params); err != nil || params == nil {
		if err == nil {
			err = errors.New("body is not a JSON object")
		}
		return nil, fmt.Errorf("%s: %w: %w: %w", op, ErrInvalidParameter, ErrInvalidMetadata, err)
	}
	return params, nil
}

func statusOK(status, expected int) bool {
	if expected != 0 {
		return status == expected
	}
	return status >= 200 && status < 300
}

func newRemoteError(resp *http.Response, body []byte) *RemoteError {
	reason := http.StatusText(resp.StatusCode)
	if _, r, ok := strings.Cut(resp.Status, " "); ok && r != "" {
		reason = r
	}
	return &RemoteError{
		StatusCode: resp.StatusCode,
		Reason:     reason,
		Body:       string(body),
	}
}

// isJWTResponse reports whether the response content type is application/jwt.
func isJWTResponse(resp *http.Response) bool {
	mt, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	return err == nil && mt == "application/jwt"
}

// serviceOptions is the set of available options for AuthorizationService,
// IntrospectionService, RevocationService and UserInfoService.
type serviceOptions struct {
	withHTTPClient              HTTPClient
	withLogger                  hclog.Logger
	withNowFunc                 func() time.Time
	withIDTokenVerifierBuilder  TokenVerifierBuilder
	withResponseVerifierBuilder TokenVerifierBuilder
	withUserInfoVerifierBuilder TokenVerifierBuilder
}

func serviceDefaults() serviceOptions {
	return serviceOptions{
		withLogger:  hclog.NewNullLogger(),
		withNowFunc: time.Now,
	}
}

func getServiceOpts(opt ...Option) serviceOptions {
	opts := serviceDefaults()
	ApplyOpts(&opts, opt...)
	if opts.withHTTPClient == nil {
		opts.withHTTPClient = cleanhttp.DefaultPooledClient()
	}
	if opts.withIDTokenVerifierBuilder == nil {
		opts.withIDTokenVerifierBuilder = NewIDTokenVerifierBuilder(WithNow(opts.withNowFunc))
	}
	if opts.withResponseVerifierBuilder == nil {
		opts.withResponseVerifierBuilder = NewResponseVerifierBuilder(WithNow(opts.withNowFunc))
	}
	if opts.withUserInfoVerifierBuilder == nil {
		opts.withUserInfoVerifierBuilder = NewUserInfoVerifierBuilder(WithNow(opts.withNowFunc))
	}
	return opts
}

// WithIDTokenVerifierBuilder provides an optional id_token verifier builder
// for AuthorizationService.
func WithIDTokenVerifierBuilder(b TokenVerifierBuilder) Option {
	return func(o interface{}) {
		if o, ok := o.(*serviceOptions); ok && b != nil {
			o.withIDTokenVerifierBuilder = b
		}
	}
}

// WithResponseVerifierBuilder provides an optional JWT secured authorization
// response verifier builder for AuthorizationService.
func WithResponseVerifierBuilder(b TokenVerifierBuilder) Option {
	return func(o interface{}) {
		if o, ok := o.(*serviceOptions); ok && b != nil {
			o.withResponseVerifierBuilder = b
		}
	}
}

// WithUserInfoVerifierBuilder provides an optional signed userinfo response
// verifier builder for UserInfoService.
func WithUserInfoVerifierBuilder(b TokenVerifierBuilder) Option {
	return func(o interface{}) {
		if o, ok := o.(*serviceOptions); ok && b != nil {
			o.withUserInfoVerifierBuilder = b
		}
	}
}
