// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/hashicorp/cap-rp/oidc"
)

// envClientSecret overrides the client_secret of the config file.
const envClientSecret = "OIDC_CLIENT_SECRET"

// config is the relying party's configuration file.
type config struct {
	Issuer string `yaml:"issuer" validate:"required,url"`
	// CACertFile is an optional PEM file with the CA that signed the
	// provider's certificate.
	CACertFile string `yaml:"ca_cert_file" validate:"omitempty,file"`
	// JWKSFile is an optional JSON Web Key Set with the client's private
	// keys, required by private_key_jwt.
	JWKSFile string `yaml:"jwks_file" validate:"omitempty,file"`

	Client oidc.ClientMetadata `yaml:"client"`
	Scopes []string            `yaml:"scopes" validate:"dive,required"`

	// Port of the loopback server receiving the callback.
	Port    int           `yaml:"port" validate:"min=0,max=65535"`
	Timeout time.Duration `yaml:"timeout" validate:"min=0"`
	PKCE    bool          `yaml:"pkce"`
}

func configDefaults() config {
	return config{
		Port:    8400,
		Timeout: 2 * time.Minute,
		PKCE:    true,
	}
}

// loadConfig reads and validates the config file at path.
func loadConfig(path string) (*config, error) {
	const op = "loadConfig"
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return parseConfig(data)
}

func parseConfig(data []byte) (*config, error) {
	const op = "parseConfig"
	cfg := configDefaults()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%s: unable to parse config: %w", op, err)
	}
	if s := os.Getenv(envClientSecret); s != "" {
		cfg.Client.ClientSecret = oidc.ClientSecret(s)
	}
	if cfg.Port == 0 {
		cfg.Port = configDefaults().Port
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = configDefaults().Timeout
	}
	if len(cfg.Client.RedirectURIs) == 0 {
		cfg.Client.RedirectURIs = []string{cfg.redirectURI()}
	}
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("%s: invalid config: %w", op, err)
	}
	if err := cfg.Client.Validate(); err != nil {
		return nil, fmt.Errorf("%s: invalid client: %w", op, err)
	}
	return &cfg, nil
}

// redirectURI is the loopback callback of the login command.
func (c *config) redirectURI() string {
	return fmt.Sprintf("http://localhost:%d/callback", c.Port)
}

func (c *config) caCert() (string, error) {
	if c.CACertFile == "" {
		return "", nil
	}
	b, err := os.ReadFile(c.CACertFile)
	if err != nil {
		return "", fmt.Errorf("unable to read ca_cert_file: %w", err)
	}
	return string(b), nil
}

// jwks returns the client's private keys, or nil when there's no jwks_file.
func (c *config) jwks() (*jose.JSONWebKeySet, error) {
	if c.JWKSFile == "" {
		return nil, nil
	}
	b, err := os.ReadFile(c.JWKSFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read jwks_file: %w", err)
	}
	var ks jose.JSONWebKeySet
	if err := json.Unmarshal(b, &ks); err != nil {
		return nil, fmt.Errorf("unable to parse jwks_file: %w", err)
	}
	return &ks, nil
}
