//go:build darwin

package keychain

import (
	"context"
	"errors"
	"fmt"
	"strings"

	gokeychain "github.com/keybase/go-keychain"

	"github.com/benaskins/tessera/internal/vault"
)

// Source serves one Keychain-backed backend. Writes go to the primary
// service; reads also walk the fallback services.
type Source struct {
	service   string
	fallbacks []string
}

// New creates a Keychain source. An empty service selects DefaultService.
func New(service string, fallbacks ...string) *Source {
	if service == "" {
		service = DefaultService
	}
	return &Source{service: service, fallbacks: fallbacks}
}

// Enumerate lists the single Keychain backend.
func (s *Source) Enumerate(ctx context.Context) ([]vault.Backend, error) {
	return []vault.Backend{{
		Source:    "keychain:" + s.service,
		Handler:   vault.SecretsService,
		Encrypted: true,
	}}, nil
}

// Fetch returns every item of the primary service and the fallbacks.
func (s *Source) Fetch(ctx context.Context, b vault.Backend) ([]vault.Entry, error) {
	var entries []vault.Entry
	for _, service := range append([]string{s.service}, s.fallbacks...) {
		accounts, err := gokeychain.GetGenericPasswordAccounts(service)
		if err != nil {
			if errors.Is(err, gokeychain.ErrorItemNotFound) {
				continue
			}
			return nil, fmt.Errorf("keychain list %q: %w", service, err)
		}
		for _, account := range accounts {
			data, err := gokeychain.GetGenericPassword(service, account, "", "")
			if err != nil || len(data) == 0 {
				continue
			}
			entries = append(entries, vault.Entry{
				Label: account,
				Blob:  string(data),
				Ref:   service + refSeparator + account,
			})
		}
	}
	return entries, nil
}

// Store writes an item into the primary service. Update is delete + add.
func (s *Source) Store(ctx context.Context, b vault.Backend, label, blob string) (string, error) {
	ref := s.service + refSeparator + label
	_ = s.Delete(ctx, b, ref)

	item := gokeychain.NewGenericPassword(
		s.service,
		label,
		fmt.Sprintf("tessera: %s", label),
		[]byte(blob),
		"",
	)
	item.SetSynchronizable(gokeychain.SynchronizableNo)
	item.SetAccessible(gokeychain.AccessibleWhenUnlockedThisDeviceOnly)

	if err := gokeychain.AddItem(item); err != nil {
		return "", fmt.Errorf("keychain add %q: %w", label, err)
	}
	return ref, nil
}

// Delete removes the item named by the handle.
func (s *Source) Delete(ctx context.Context, b vault.Backend, ref string) error {
	service, account, ok := strings.Cut(ref, refSeparator)
	if !ok {
		return fmt.Errorf("malformed keychain ref %q", ref)
	}
	err := gokeychain.DeleteGenericPasswordItem(service, account)
	if err != nil && !errors.Is(err, gokeychain.ErrorItemNotFound) {
		return fmt.Errorf("keychain delete %q: %w", account, err)
	}
	return nil
}
