// Stratus - Multi-Account AWS Resource Inventory Aggregation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stratus

package auth

import (
	"crypto/subtle"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const bcryptCost = 12

// AdminChecker verifies the configured admin credentials at login. The
// password is bcrypt-hashed once at startup so the plaintext is not kept
// resident and each check pays one bcrypt comparison.
type AdminChecker struct {
	username     string
	passwordHash []byte
}

// NewAdminChecker hashes the configured admin password. Short passwords
// are rejected outright rather than silently accepted.
func NewAdminChecker(username, password string) (*AdminChecker, error) {
	if username == "" {
		return nil, fmt.Errorf("admin username is required")
	}
	if len(password) < 8 {
		return nil, fmt.Errorf("admin password must be at least 8 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash admin password: %w", err)
	}

	return &AdminChecker{username: username, passwordHash: hash}, nil
}

// Check reports whether the presented credentials match. Username and
// password comparisons both run to completion so failures take the same
// time regardless of which field was wrong.
func (c *AdminChecker) Check(username, password string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(c.username)) == 1
	passOK := bcrypt.CompareHashAndPassword(c.passwordHash, []byte(password)) == nil
	return userOK && passOK
}
