// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// stringValue returns v as a string, or "" when v is nil.
func stringValue(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		s, _ := paramString("", v)
		return s
	}
}

// paramString converts a param value to its url encoded form.  Non-string
// scalars are formatted, string slices are space delimited, and structured
// values are only allowed for the "claims" param, which is JSON encoded.
func paramString(key string, v interface{}) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case bool:
		return strconv.FormatBool(t), nil
	case int:
		return strconv.Itoa(t), nil
	case int32:
		return strconv.FormatInt(int64(t), 10), nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	case uint:
		return strconv.FormatUint(uint64(t), 10), nil
	case uint32:
		return strconv.FormatUint(uint64(t), 10), nil
	case uint64:
		return strconv.FormatUint(t, 10), nil
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32), nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case json.Number:
		return t.String(), nil
	case IDToken:
		return string(t), nil
	case AccessToken:
		return string(t), nil
	case RefreshToken:
		return string(t), nil
	case ClientSecret:
		return string(t), nil
	case []string:
		if key == "claims" {
			break
		}
		return strings.Join(t, " "), nil
	case fmt.Stringer:
		return t.String(), nil
	}
	if key != "claims" {
		return "", fmt.Errorf("unsupported value type %T for param %q: %w", v, key, ErrInvalidParameter)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("unable to encode claims param: %w: %w", ErrInvalidParameter, err)
	}
	return string(b), nil
}

// copyParams returns a shallow copy of params, dropping nil values.
func copyParams(params map[string]interface{}) map[string]interface{} {
	cp := make(map[string]interface{}, len(params))
	for k, v := range params {
		if v == nil {
			continue
		}
		cp[k] = v
	}
	return cp
}

// valuesToParams converts form values into params, keeping the first value
// of each key.
func valuesToParams(values url.Values) map[string]interface{} {
	params := make(map[string]interface{}, len(values))
	for k, v := range values {
		if len(v) == 0 {
			continue
		}
		params[k] = v[0]
	}
	return params
}

// parseFormParams parses a form encoded string (a body, query or fragment)
// into params.
func parseFormParams(s string) (map[string]interface{}, error) {
	values, err := url.ParseQuery(s)
	if err != nil {
		return nil, fmt.Errorf("unable to parse form encoded params: %w: %w", ErrInvalidParameter, err)
	}
	return valuesToParams(values), nil
}

// int64Value converts a JSON number (float64 or json.Number), an integer or
// a numeric string into an int64.
func int64Value(v interface{}) (int64, bool) {
	switch t := v.(type) {
	case int:
		return int64(t), true
	case int64:
		return t, true
	case int32:
		return int64(t), true
	case uint:
		return int64(t), true
	case float64:
		return int64(t), true
	case json.Number:
		i, err := t.Int64()
		if err != nil {
			f, err := t.Float64()
			if err != nil {
				return 0, false
			}
			return int64(f), true
		}
		return i, true
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		if err != nil {
			return 0, false
		}
		return i, true
	default:
		return 0, false
	}
}
