/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// APIKeyPrefix starts every generated key.
const APIKeyPrefix = "jn_"

const apiKeyRandomBytes = 24

// ErrAPIKeyInvalid is returned when no configured key matches.
var ErrAPIKeyInvalid = errors.New("api key invalid")

// APIKey is one configured key. Only its bcrypt hash is kept.
type APIKey struct {
	Name string
	Role string
	hash []byte
}

// Keyring validates API keys against configured hashes.
type Keyring struct {
	keys []APIKey
}

// GenerateAPIKey returns a new plaintext key and its bcrypt hash.
func GenerateAPIKey() (plaintext, hash string, err error) {
	buf := make([]byte, apiKeyRandomBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", err
	}
	plaintext = APIKeyPrefix + hex.EncodeToString(buf)
	h, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return "", "", err
	}
	return plaintext, string(h), nil
}

// ParseKeyring reads comma separated name:role:hash entries.
func ParseKeyring(raw string) (*Keyring, error) {
	kr := &Keyring{}
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, ":", 3)
		if len(parts) != 3 {
			return nil, fmt.Errorf("api key entry %q: want name:role:hash", entry)
		}
		name, role, hash := parts[0], parts[1], parts[2]
		if role != RoleAdmin && role != RoleViewer {
			return nil, fmt.Errorf("api key %s: unknown role %q", name, role)
		}
		if _, err := bcrypt.Cost([]byte(hash)); err != nil {
			return nil, fmt.Errorf("api key %s: %w", name, err)
		}
		kr.keys = append(kr.keys, APIKey{Name: name, Role: role, hash: []byte(hash)})
	}
	return kr, nil
}

// Len returns the number of configured keys.
func (kr *Keyring) Len() int {
	if kr == nil {
		return 0
	}
	return len(kr.keys)
}

// Validate returns the claims of the key matching plaintext.
func (kr *Keyring) Validate(plaintext string) (*Claims, error) {
	if kr == nil || !strings.HasPrefix(plaintext, APIKeyPrefix) {
		return nil, ErrAPIKeyInvalid
	}
	for _, k := range kr.keys {
		if bcrypt.CompareHashAndPassword(k.hash, []byte(plaintext)) == nil {
			claims := &Claims{Roles: []string{k.Role}}
			claims.Subject = "apikey:" + k.Name
			return claims, nil
		}
	}
	return nil, ErrAPIKeyInvalid
}
