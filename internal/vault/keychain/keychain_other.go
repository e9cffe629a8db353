//go:build !darwin

package keychain

import (
	"context"
	"errors"

	"github.com/benaskins/tessera/internal/vault"
)

// Source is inert outside macOS: it enumerates no backends, so a
// configured keychain source simply contributes nothing to the vault.
type Source struct{}

// New creates a Keychain source. The arguments are accepted for
// configuration compatibility and ignored on this platform.
func New(service string, fallbacks ...string) *Source {
	return &Source{}
}

func (s *Source) Enumerate(ctx context.Context) ([]vault.Backend, error) {
	return nil, nil
}

func (s *Source) Fetch(ctx context.Context, b vault.Backend) ([]vault.Entry, error) {
	return nil, errors.New("keychain unavailable on this platform")
}

func (s *Source) Store(ctx context.Context, b vault.Backend, label, blob string) (string, error) {
	return "", errors.New("keychain unavailable on this platform")
}

func (s *Source) Delete(ctx context.Context, b vault.Backend, ref string) error {
	return errors.New("keychain unavailable on this platform")
}
