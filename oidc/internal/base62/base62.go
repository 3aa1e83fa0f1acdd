// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package base62 provides utilities for working with base62 strings.
// base62 strings will only contain characters: 0-9, a-z, A-Z
package base62

import (
	"fmt"

	"github.com/hashicorp/go-uuid"
)

const (
	charset = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
	csLen   = byte(len(charset))

	// maxByte is the largest byte value that doesn't bias the modulo of csLen
	maxByte = 255 - (256 % int(csLen))
)

// Random generates a random string using base-62 characters.
// Resulting entropy is ~5.95 bits/character.
func Random(length int) (string, error) {
	if length < 1 {
		return "", fmt.Errorf("base62.Random: length must be greater than zero")
	}
	out := make([]byte, 0, length)
	for len(out) < length {
		// request a few extra bytes since some will be rejected to avoid
		// modulo bias
		buf, err := uuid.GenerateRandomBytes(length + length/4 + 1)
		if err != nil {
			return "", fmt.Errorf("base62.Random: %w", err)
		}
		for _, b := range buf {
			if int(b) > maxByte {
				continue
			}
			out = append(out, charset[b%csLen])
			if len(out) == length {
				break
			}
		}
	}
	return string(out), nil
}
