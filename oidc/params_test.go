// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_paramString(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		key     string
		v       interface{}
		want    string
		wantErr bool
	}{
		{"string", "state", "st", "st", false},
		{"bool", "x", true, "true", false},
		{"int", "max_age", 30, "30", false},
		{"uint", "max_age", uint(30), "30", false},
		{"float", "max_age", float64(30), "30", false},
		{"json-number", "max_age", json.Number("30"), "30", false},
		{"slice", "scope", []string{"openid", "email"}, "openid email", false},
		{"id-token", "id_token_hint", IDToken("raw"), "raw", false},
		{"claims-map", "claims", map[string]interface{}{"userinfo": nil}, `{"userinfo":null}`, false},
		{"map-not-claims", "other", map[string]interface{}{}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			got, err := paramString(tt.key, tt.v)
			if tt.wantErr {
				require.Error(err)
				assert.ErrorIs(err, ErrInvalidParameter)
				return
			}
			require.NoError(err)
			assert.Equal(tt.want, got)
		})
	}
}

func Test_parseFormParams(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	got, err := parseFormParams("a=1&b=2&a=3&c=")
	require.NoError(err)
	assert.Equal(map[string]interface{}{"a": "1", "b": "2", "c": ""}, got)

	_, err = parseFormParams("a=%zz")
	require.Error(err)
	assert.ErrorIs(err, ErrInvalidParameter)
}

func Test_copyParams(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	in := map[string]interface{}{"a": "1", "b": nil}
	got := copyParams(in)
	assert.Equal(map[string]interface{}{"a": "1"}, got)
	got["a"] = "2"
	assert.Equal("1", in["a"])
}
