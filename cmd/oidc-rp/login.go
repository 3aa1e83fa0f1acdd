// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/exec"
	"runtime"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/hashicorp/cap-rp/oidc"
	"github.com/hashicorp/cap-rp/oidc/callback"
)

func newLoginCmd(a *app) *cobra.Command {
	var (
		maxAge    int
		noBrowser bool
		userInfo  bool
	)
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in with the authorization code flow and print the verified tokens",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.login(cmd, maxAge, !noBrowser, userInfo)
		},
	}
	cmd.Flags().IntVar(&maxAge, "max-age", -1, "max age of the user authentication in seconds")
	cmd.Flags().BoolVar(&noBrowser, "no-browser", false, "only print the authorization url")
	cmd.Flags().BoolVar(&userInfo, "userinfo", false, "also print the userinfo claims")
	return cmd
}

// loginResult is what the callback handler hands back to the login command.
type loginResult struct {
	ts  *oidc.TokenSet
	err error
}

func (a *app) login(cmd *cobra.Command, maxAge int, openBrowser, userInfo bool) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), a.cfg.Timeout)
	defer cancel()

	var sessOpts []oidc.Option
	if a.cfg.PKCE {
		sessOpts = append(sessOpts, oidc.WithPKCE())
	}
	sess, err := oidc.NewAuthSession(sessOpts...)
	if err != nil {
		return err
	}
	reqOpts := []oidc.Option{
		oidc.WithAuthSession(sess),
		oidc.WithRedirectURI(a.cfg.redirectURI()),
		oidc.WithScopes(a.cfg.Scopes...),
	}
	cbOpts := []oidc.Option{oidc.WithRedirectURI(a.cfg.redirectURI())}
	if maxAge >= 0 {
		reqOpts = append(reqOpts, oidc.WithMaxAge(uint(maxAge)))
		cbOpts = append(cbOpts, oidc.WithMaxAge(uint(maxAge)))
	}
	authReq, err := oidc.NewAuthRequestFromClient(a.client, reqOpts...)
	if err != nil {
		return err
	}

	svc := oidc.NewAuthorizationService(oidc.WithLogger(a.logger), oidc.WithHTTPClient(a.client.HTTPClient()))
	authURL, err := svc.AuthorizationURL(a.client, authReq.Params())
	if err != nil {
		return err
	}

	resultCh := make(chan loginResult, 1)
	successFn := func(_ string, ts *oidc.TokenSet, w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(successHTML))
		resultCh <- loginResult{ts: ts}
	}
	errorFn := func(_ string, r *callback.AuthenErrorResponse, e error, w http.ResponseWriter, _ *http.Request) {
		switch {
		case r != nil:
			e = fmt.Errorf("provider returned an error: %s: %s", r.Error, r.Description)
			w.WriteHeader(http.StatusUnauthorized)
		case e == nil:
			e = errors.New("unknown error from callback")
			w.WriteHeader(http.StatusInternalServerError)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
		_, _ = w.Write([]byte(e.Error()))
		resultCh <- loginResult{err: e}
	}
	handler, err := callback.AuthCode(ctx, svc, a.client, &callback.SingleSessionReader{Session: sess}, successFn, errorFn, cbOpts...)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", handler)
	listener, err := net.Listen("tcp", net.JoinHostPort("localhost", strconv.Itoa(a.cfg.Port)))
	if err != nil {
		return err
	}
	srv := &http.Server{Handler: mux}
	defer srv.Close()
	srvCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvCh <- err
		}
	}()

	fmt.Fprintf(cmd.ErrOrStderr(), "Complete the login via your OIDC provider at:\n\n    %s\n\n", authURL)
	if openBrowser {
		if err := openURL(authURL); err != nil {
			a.logger.Warn("unable to open a browser, visit the url manually", "error", err)
		}
	}

	var res loginResult
	select {
	case err := <-srvCh:
		return fmt.Errorf("callback server failed: %w", err)
	case <-ctx.Done():
		return fmt.Errorf("timed out waiting for the callback: %w", ctx.Err())
	case res = <-resultCh:
	}
	if res.err != nil {
		return res.err
	}

	out := map[string]interface{}{
		"access_token":  string(res.ts.AccessToken()),
		"refresh_token": string(res.ts.RefreshToken()),
		"id_token":      string(res.ts.IDToken()),
		"expiry":        res.ts.Expiry(),
		"claims":        res.ts.Claims(),
	}
	if userInfo {
		claims, err := oidc.NewUserInfoService(oidc.WithLogger(a.logger)).UserInfo(ctx, a.client, res.ts)
		if err != nil {
			return err
		}
		out["userinfo"] = claims
	}
	return printJSON(cmd.OutOrStdout(), out)
}

// openURL opens the url in the user's default browser.
func openURL(url string) error {
	var name string
	var args []string
	switch runtime.GOOS {
	case "darwin":
		name = "open"
	case "windows":
		name, args = "rundll32", []string{"url.dll,FileProtocolHandler"}
	default:
		name = "xdg-open"
	}
	return exec.Command(name, append(args, url)...).Start()
}

const successHTML = `
<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><title>Login successful</title></head>
<body>
  <h1>Signed in via your OIDC provider</h1>
  <p>You can close this window and return to the CLI.</p>
</body>
</html>
`
