// Ravenbridge - Fleet Telematics Bridge and Geographic Visualization
// Copyright 2026 Travis Gray (travisgrayraven)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/travisgrayraven/ravenbridge

package auth

import (
	"crypto/subtle"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// CredentialChecker verifies operator username/password pairs against
// a stored bcrypt hash.
type CredentialChecker struct {
	username     string
	passwordHash []byte
}

// NewCredentialChecker creates a checker against a pre-hashed password.
// Deployments generate the hash out of band so the plaintext never
// appears in configuration.
func NewCredentialChecker(username, passwordHash string) (*CredentialChecker, error) {
	if username == "" {
		return nil, fmt.Errorf("username is required")
	}
	if passwordHash == "" {
		return nil, fmt.Errorf("password hash is required")
	}
	return &CredentialChecker{
		username:     username,
		passwordHash: []byte(passwordHash),
	}, nil
}

// NewCredentialCheckerFromPassword hashes the given plaintext password.
// Intended for development setups where no pre-hashed value exists.
func NewCredentialCheckerFromPassword(username, password string) (*CredentialChecker, error) {
	if len(password) < 8 {
		return nil, fmt.Errorf("password must be at least 8 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), 12)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	return NewCredentialChecker(username, string(hash))
}

// Check reports whether the credentials are valid. Both comparisons
// always run so the response time does not reveal which field was
// wrong.
func (c *CredentialChecker) Check(username, password string) bool {
	usernameMatch := subtle.ConstantTimeCompare([]byte(username), []byte(c.username)) == 1
	passwordMatch := bcrypt.CompareHashAndPassword(c.passwordHash, []byte(password)) == nil
	return usernameMatch && passwordMatch
}
