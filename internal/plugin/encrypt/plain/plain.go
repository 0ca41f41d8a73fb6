// Package plain registers the "plain" no-op encryption provider, grounded
// on the teacher's internal/plugin/encrypt/plain/plain.go. It is the
// default provider, so Content is stored unchanged until an operator
// configures a real one.
package plain

import (
	"context"

	"github.com/memoric/memoric/internal/config"
	"github.com/memoric/memoric/internal/registry/encrypt"
)

func init() {
	encrypt.Register(encrypt.Plugin{
		Name: "plain",
		Loader: func(_ context.Context, _ *config.Config) (encrypt.Provider, error) {
			return provider{}, nil
		},
	})
}

type provider struct{}

func (provider) ID() string { return "plain" }

func (provider) Encrypt(plaintext []byte) ([]byte, error) { return plaintext, nil }

func (provider) Decrypt(envelope []byte) ([]byte, error) { return envelope, nil }
