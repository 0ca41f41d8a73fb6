// Package vault registers the "vault" content encryption provider backed by
// HashiCorp Vault's Transit secrets engine, grounded on the teacher's
// internal/plugin/encrypt/vault/vault.go client construction
// (vaultapi.NewClient(vaultapi.DefaultConfig())). Unlike kms, Transit
// encrypts and decrypts each payload server-side, so there is no local data
// key to cache.
package vault

import (
	"context"
	"encoding/base64"
	"fmt"

	vaultapi "github.com/hashicorp/vault/api"

	"github.com/memoric/memoric/internal/config"
	"github.com/memoric/memoric/internal/registry/encrypt"
)

func init() {
	encrypt.Register(encrypt.Plugin{
		Name: "vault",
		Loader: func(_ context.Context, cfg *config.Config) (encrypt.Provider, error) {
			if cfg.Encryption.VaultTransitKey == "" {
				return nil, fmt.Errorf("vault provider: Encryption.VaultTransitKey is required")
			}
			client, err := vaultapi.NewClient(vaultapi.DefaultConfig())
			if err != nil {
				return nil, fmt.Errorf("vault provider: new client: %w", err)
			}
			return &Provider{client: client, key: cfg.Encryption.VaultTransitKey}, nil
		},
	})
}

// Provider calls Vault Transit's encrypt/decrypt endpoints directly; Transit
// returns/accepts its own "vault:v1:..." ciphertext token, which this
// provider stores verbatim as the envelope.
type Provider struct {
	client *vaultapi.Client
	key    string
}

func (p *Provider) ID() string { return "vault" }

func (p *Provider) Encrypt(plaintext []byte) ([]byte, error) {
	secret, err := p.client.Logical().Write(fmt.Sprintf("transit/encrypt/%s", p.key), map[string]any{
		"plaintext": base64.StdEncoding.EncodeToString(plaintext),
	})
	if err != nil {
		return nil, fmt.Errorf("vault: transit encrypt: %w", err)
	}
	token, ok := secret.Data["ciphertext"].(string)
	if !ok {
		return nil, fmt.Errorf("vault: transit encrypt: missing ciphertext in response")
	}
	return []byte(token), nil
}

func (p *Provider) Decrypt(envelope []byte) ([]byte, error) {
	secret, err := p.client.Logical().Write(fmt.Sprintf("transit/decrypt/%s", p.key), map[string]any{
		"ciphertext": string(envelope),
	})
	if err != nil {
		return nil, fmt.Errorf("vault: transit decrypt: %w", err)
	}
	encoded, ok := secret.Data["plaintext"].(string)
	if !ok {
		return nil, fmt.Errorf("vault: transit decrypt: missing plaintext in response")
	}
	plain, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("vault: decoding plaintext: %w", err)
	}
	return plain, nil
}
