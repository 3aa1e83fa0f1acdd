// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// oidc-rp is a relying party for trying out an OIDC provider: it logs in with
// the authorization code flow on a loopback callback, and refreshes,
// introspects and revokes tokens.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"

	"github.com/hashicorp/cap-rp/oidc"
	sdkhttp "github.com/hashicorp/cap-rp/sdk/http"
)

// app is the state shared by every command, set up before a command runs.
type app struct {
	cfgPath  string
	logLevel string

	cfg    *config
	logger hclog.Logger
	client *oidc.Client
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "oidc-rp",
		Short:         "An OpenID Connect relying party",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd.Context(), cmd.ErrOrStderr())
		},
	}
	root.PersistentFlags().StringVarP(&a.cfgPath, "config", "c", "rp.yaml", "path of the relying party config file")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")

	root.AddCommand(
		newLoginCmd(a),
		newRefreshCmd(a),
		newIntrospectCmd(a),
		newRevokeCmd(a),
	)
	return root
}

// setup loads the config, then discovers the issuer and creates the client.
func (a *app) setup(ctx context.Context, logOut io.Writer) error {
	a.logger = hclog.New(&hclog.LoggerOptions{
		Name:   "oidc-rp",
		Level:  hclog.LevelFromString(a.logLevel),
		Output: logOut,
	})
	cfg, err := loadConfig(a.cfgPath)
	if err != nil {
		return err
	}
	a.cfg = cfg

	ca, err := cfg.caCert()
	if err != nil {
		return err
	}
	hc, err := sdkhttp.NewClient(ca)
	if err != nil {
		return fmt.Errorf("unable to create http client: %w", err)
	}
	iss, err := oidc.DiscoverIssuer(ctx, cfg.Issuer, oidc.WithHTTPClient(hc), oidc.WithLogger(a.logger))
	if err != nil {
		return err
	}
	clientOpts := []oidc.Option{oidc.WithHTTPClient(hc)}
	jwks, err := cfg.jwks()
	if err != nil {
		return err
	}
	if jwks != nil {
		clientOpts = append(clientOpts, oidc.WithJWKS(jwks))
	}
	a.client, err = oidc.NewClient(iss, &cfg.Client, clientOpts...)
	if err != nil {
		return err
	}
	a.logger.Debug("client ready", "issuer", iss.Metadata().Issuer, "client_id", cfg.Client.ClientID)
	return nil
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "    ")
	return enc.Encode(v)
}
