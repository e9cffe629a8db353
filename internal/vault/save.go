package vault

import (
	"bytes"
	"context"
	"fmt"

	"github.com/benaskins/tessera/internal/audit"
	"github.com/benaskins/tessera/internal/otpauth"
	"github.com/benaskins/tessera/internal/secret"
)

// SaveOption adjusts a single save.
type SaveOption func(*saveOptions)

type saveOptions struct {
	backend Backend
	label   string
}

// ToBackend pins the save to a specific backend instead of resolving one.
func ToBackend(b Backend) SaveOption {
	return func(o *saveOptions) { o.backend = b }
}

// WithLabel overrides the label derived from the record.
func WithLabel(label string) SaveOption {
	return func(o *saveOptions) { o.label = label }
}

// Save persists a record. Without an explicit backend the target is
// resolved with Find, so re-saving an account lands where it already
// lives. Schema-tagged backends store the record as an otpauth URL and
// then eliminate stale copies of the same key; generic backends update
// their host/user entry in place.
func (v *Vault) Save(ctx context.Context, rec secret.Record, opts ...SaveOption) error {
	if _, err := secret.DecodeKey(rec.Secret); err != nil {
		return err
	}
	var o saveOptions
	for _, opt := range opts {
		opt(&o)
	}

	b := o.backend
	if b.src == nil {
		found, err := v.Find(ctx, rec)
		if err != nil {
			return err
		}
		b = found
	}
	label := o.label
	if label == "" {
		label = rec.Label()
	}

	blob := otpauth.Wrap(rec)
	ref, err := b.src.Store(ctx, b, label, blob)
	if err != nil {
		v.auditLog(audit.ActionSecretWrite, label, b.Source, v.actor, err)
		return fmt.Errorf("storing %q in %s: %w", label, b.Source, err)
	}
	v.auditLog(audit.ActionSecretWrite, label, b.Source, v.actor, nil)
	v.logger.Info("secret saved", "label", label, "backend", b.Source)

	if b.Handler == SecretsService && v.dedup {
		v.dedupAfterSave(ctx, b, rec, ref)
	}
	return nil
}

// dedupAfterSave removes sibling items whose key material equals the
// record just written. Item stores that honor replace semantics make this
// a no-op; stores that quietly create a second copy get cleaned up here.
// The scan is best-effort: a failure leaves extra copies behind but never
// fails the save that triggered it.
func (v *Vault) dedupAfterSave(ctx context.Context, b Backend, rec secret.Record, keepRef string) {
	newKey, err := secret.DecodeKey(rec.Secret)
	if err != nil {
		return
	}
	entries, err := b.src.Fetch(ctx, b)
	if err != nil {
		v.logger.Warn("dedup scan failed", "backend", b.Source, "error", err)
		return
	}
	for _, e := range entries {
		if e.Ref == keepRef {
			continue
		}
		dup, err := UnwrapBlob(e.Blob, e.Label)
		if err != nil {
			continue
		}
		dupKey, err := secret.DecodeKey(dup.Secret)
		if err != nil || !bytes.Equal(dupKey, newKey) {
			continue
		}
		if err := b.src.Delete(ctx, b, e.Ref); err != nil {
			v.logger.Warn("dedup delete failed",
				"backend", b.Source, "label", e.Label, "error", err)
			continue
		}
		v.auditLog(audit.ActionSecretDelete, e.Label, b.Source, "dedup", nil)
		v.logger.Info("duplicate removed", "label", e.Label, "backend", b.Source)
	}
}
