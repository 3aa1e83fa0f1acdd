// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hashicorp/cap-rp/oidc"
)

func newRefreshCmd(a *app) *cobra.Command {
	var refreshToken string
	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Exchange a refresh token for new tokens",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if refreshToken == "" {
				return errors.New("--refresh-token is required")
			}
			svc := oidc.NewAuthorizationService(oidc.WithLogger(a.logger), oidc.WithHTTPClient(a.client.HTTPClient()))
			ts, err := svc.Refresh(cmd.Context(), a.client, oidc.RefreshToken(refreshToken), nil)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]interface{}{
				"access_token":  string(ts.AccessToken()),
				"refresh_token": string(ts.RefreshToken()),
				"id_token":      string(ts.IDToken()),
				"expiry":        ts.Expiry(),
				"claims":        ts.Claims(),
			})
		},
	}
	cmd.Flags().StringVar(&refreshToken, "refresh-token", "", "the refresh token")
	return cmd
}

func newIntrospectCmd(a *app) *cobra.Command {
	var token, hint string
	cmd := &cobra.Command{
		Use:   "introspect",
		Short: "Introspect a token (RFC 7662)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc := oidc.NewIntrospectionService(oidc.WithLogger(a.logger), oidc.WithHTTPClient(a.client.HTTPClient()))
			reply, err := svc.Introspect(cmd.Context(), a.client, token, oidc.WithTokenTypeHint(hint))
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), reply)
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "the token to introspect")
	cmd.Flags().StringVar(&hint, "token-type-hint", "", "access_token or refresh_token")
	return cmd
}

func newRevokeCmd(a *app) *cobra.Command {
	var token, hint string
	cmd := &cobra.Command{
		Use:   "revoke",
		Short: "Revoke a token (RFC 7009)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc := oidc.NewRevocationService(oidc.WithLogger(a.logger), oidc.WithHTTPClient(a.client.HTTPClient()))
			if err := svc.Revoke(cmd.Context(), a.client, token, oidc.WithTokenTypeHint(hint)); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "revoked")
			return nil
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "the token to revoke")
	cmd.Flags().StringVar(&hint, "token-type-hint", "", "access_token or refresh_token")
	return cmd
}
