// Package encrypt is the SPI registry for pluggable content-at-rest
// encryption providers, grounded on the teacher's own
// internal/registry/encrypt/plugin.go (same Plugin/Register/Select shape),
// reduced to the single-shot byte encrypt/decrypt this core needs — no
// streaming, no attachment-signing-key derivation, since Memoric has no
// attachment surface to sign URLs for.
package encrypt

import (
	"context"
	"fmt"

	"github.com/memoric/memoric/internal/config"
)

// Provider is the SPI every encryption provider implements.
type Provider interface {
	// ID returns the provider identifier ("plain", "kms", "vault").
	ID() string

	// Encrypt returns an opaque envelope for plaintext. The "plain"
	// provider returns plaintext unchanged.
	Encrypt(plaintext []byte) ([]byte, error)

	// Decrypt reverses Encrypt.
	Decrypt(envelope []byte) ([]byte, error)
}

// Plugin bundles a provider name with its loader function.
type Plugin struct {
	Name   string
	Loader func(ctx context.Context, cfg *config.Config) (Provider, error)
}

var plugins []Plugin

// Register adds an encryption provider plugin.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered provider names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the Plugin for the given name.
func Select(name string) (Plugin, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p, nil
		}
	}
	return Plugin{}, fmt.Errorf("unknown encryption provider %q; registered: %v", name, Names())
}
