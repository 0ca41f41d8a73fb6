// Package dataencryption orchestrates content-at-rest encryption for saved
// records, grounded on the teacher's internal/dataencryption/service.go
// provider-selection shape. Simplified to a single active provider (no
// comma-separated provider list, no MSEH-header-based routing across
// providers), since Memoric only ever encrypts with whatever
// Config.Encryption.Provider names at a given time.
package dataencryption

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/memoric/memoric/internal/config"
	"github.com/memoric/memoric/internal/registry/encrypt"
)

// Service encrypts/decrypts record Content through a single selected
// provider, storing envelopes as base64 text so they round-trip through the
// same string column plaintext used.
type Service struct {
	provider encrypt.Provider
}

// New selects the provider named by cfg.Encryption.Provider, defaulting to
// "plain" when unset.
func New(ctx context.Context, cfg *config.Config) (*Service, error) {
	name := cfg.Encryption.Provider
	if name == "" {
		name = "plain"
	}
	plugin, err := encrypt.Select(name)
	if err != nil {
		return nil, fmt.Errorf("dataencryption: %w", err)
	}
	provider, err := plugin.Loader(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("dataencryption: loading provider %q: %w", name, err)
	}
	return &Service{provider: provider}, nil
}

// IsPlain reports whether the active provider is the no-op "plain" provider.
func (s *Service) IsPlain() bool {
	return s == nil || s.provider == nil || s.provider.ID() == "plain"
}

// Encrypt seals plaintext and returns a base64-encoded envelope suitable for
// storing directly in the Content column.
func (s *Service) Encrypt(plaintext string) (string, error) {
	if s.IsPlain() {
		return plaintext, nil
	}
	envelope, err := s.provider.Encrypt([]byte(plaintext))
	if err != nil {
		return "", fmt.Errorf("dataencryption: encrypt: %w", err)
	}
	return base64.StdEncoding.EncodeToString(envelope), nil
}

// Decrypt reverses Encrypt. A stored value that fails base64 decoding is
// treated as legacy plaintext written before encryption was enabled, rather
// than as an error, so enabling encryption on an existing deployment doesn't
// break reads of previously-saved records.
func (s *Service) Decrypt(stored string) (string, error) {
	if s.IsPlain() {
		return stored, nil
	}
	envelope, err := base64.StdEncoding.DecodeString(stored)
	if err != nil {
		return stored, nil
	}
	plain, err := s.provider.Decrypt(envelope)
	if err != nil {
		return "", fmt.Errorf("dataencryption: decrypt: %w", err)
	}
	return string(plain), nil
}
