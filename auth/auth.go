// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// HeaderAdminKey carries the admin key on catalog changes.
const HeaderAdminKey = "X-Admin-Key"

var ErrInvalidAdminKey = errors.New("invalid admin key")

// GenerateAdminKey creates a random key suitable for ADMIN_KEY.
func GenerateAdminKey() (string, error) {
	b := make([]byte, 24) // 192 bits
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate admin key: %w", err)
	}
	return strings.TrimRight(base64.URLEncoding.EncodeToString(b), "="), nil
}

// ValidateAdminKey compares the provided key with the configured one in
// constant time. Both are hashed first so their lengths leak nothing.
func ValidateAdminKey(provided, expected string) error {
	if provided == "" {
		return ErrInvalidAdminKey
	}
	p := sha256.Sum256([]byte(provided))
	e := sha256.Sum256([]byte(expected))
	if !hmac.Equal(p[:], e[:]) {
		return ErrInvalidAdminKey
	}
	return nil
}
