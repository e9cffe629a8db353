package vault

import (
	"context"
	"fmt"
	"strings"

	"github.com/benaskins/tessera/internal/audit"
	"github.com/benaskins/tessera/internal/otpauth"
	"github.com/benaskins/tessera/internal/secret"
)

// Fetch resolves every TOTP entry of one backend. Items whose blob cannot
// be unwrapped are skipped with a warning rather than failing the whole
// backend.
func (v *Vault) Fetch(ctx context.Context, b Backend) ([]Stored, error) {
	if b.src == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, b.Source)
	}
	entries, err := b.src.Fetch(ctx, b)
	if err != nil {
		return nil, fmt.Errorf("fetching from %s: %w", b.Source, err)
	}
	out := make([]Stored, 0, len(entries))
	for _, e := range entries {
		rec, err := UnwrapBlob(e.Blob, e.Label)
		if err != nil {
			v.logger.Warn("skipping undecodable item",
				"backend", b.Source, "label", e.Label, "error", err)
			continue
		}
		label := e.Label
		if label == "" {
			label = rec.Label()
		}
		out = append(out, Stored{Record: rec, Label: label, Backend: b, Ref: e.Ref})
		v.auditLog(audit.ActionSecretRead, label, b.Source, v.actor, nil)
	}
	return out, nil
}

// FetchAll resolves the entries of every backend in order. A backend that
// fails to fetch is skipped so one locked or unreachable store does not
// hide the rest.
func (v *Vault) FetchAll(ctx context.Context) ([]Stored, error) {
	backends, err := v.Backends(ctx, false)
	if err != nil {
		return nil, err
	}
	var all []Stored
	for _, b := range backends {
		items, err := v.Fetch(ctx, b)
		if err != nil {
			v.logger.Warn("backend fetch failed", "backend", b.Source, "error", err)
			continue
		}
		all = append(all, items...)
	}
	return all, nil
}

// Find returns the backend that should hold the record: the first backend
// already holding the same account, else the first encrypted backend, else
// ErrNoBackend.
func (v *Vault) Find(ctx context.Context, rec secret.Record) (Backend, error) {
	backends, err := v.Backends(ctx, false)
	if err != nil {
		return Backend{}, err
	}
	for _, b := range backends {
		items, err := v.Fetch(ctx, b)
		if err != nil {
			v.logger.Warn("backend fetch failed", "backend", b.Source, "error", err)
			continue
		}
		for _, item := range items {
			if secret.SameAccount(item.Record, rec) {
				return b, nil
			}
		}
	}
	for _, b := range backends {
		if b.Encrypted {
			return b, nil
		}
	}
	return Backend{}, fmt.Errorf("%w: %s", ErrNoBackend, rec.Label())
}

// UnwrapBlob turns one stored blob into a record. A blob is either an
// otpauth URL or a bare base32 key; for bare keys, service and user are
// recovered from the entry label.
func UnwrapBlob(blob, label string) (secret.Record, error) {
	blob = strings.TrimSpace(blob)
	if strings.HasPrefix(blob, otpauth.Scheme+"://") {
		rec, err := otpauth.Unwrap(blob)
		if err != nil {
			return secret.Record{}, err
		}
		if rec.Service == "" && rec.User == "" {
			rec.User, rec.Service = secret.ParseLabel(label)
		}
		return rec, nil
	}
	raw, err := secret.DecodeKey(blob)
	if err != nil {
		return secret.Record{}, err
	}
	rec := secret.Record{Secret: secret.EncodeKey(raw)}
	rec.User, rec.Service = secret.ParseLabel(label)
	return rec, nil
}
