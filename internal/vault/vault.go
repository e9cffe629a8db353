// Package vault resolves TOTP secrets across every configured storage
// backend: freedesktop Secret Service collections, the macOS keychain,
// netrc-style credential files and in-memory stores for tests.
//
// A Source is one storage transport. Enumerating all sources yields the
// flat, ordered list of backends that the lookup, save and dedup logic
// walks. Backend order is configuration order, and the first match wins
// everywhere a single backend must be chosen.
package vault

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/benaskins/tessera/internal/audit"
	"github.com/benaskins/tessera/internal/secret"
)

var (
	// ErrNoBackend is returned when no backend holds the account and no
	// encrypted backend exists to adopt it.
	ErrNoBackend = errors.New("no suitable backend for secret")
	// ErrNoSaver is returned by a source that cannot persist the entry it
	// was handed, such as an encrypted file without a writer.
	ErrNoSaver = errors.New("backend cannot save this entry")
	// ErrUnknownBackend is returned when a Backend value did not come from
	// this vault's enumeration.
	ErrUnknownBackend = errors.New("backend does not belong to this vault")
	// ErrExportFormat is returned for an unrecognized export format name.
	ErrExportFormat = errors.New("unsupported export format")
)

// Handler tells the vault how to treat a backend's entries.
type Handler int

const (
	// SecretsService marks schema-tagged item stores: freedesktop Secret
	// Service collections and the macOS keychain. Entries are stored as
	// otpauth URLs and saves run duplicate elimination.
	SecretsService Handler = iota
	// Generic marks create-or-update credential stores such as netrc
	// files. Entries live under a host/user pair and saves never dedup.
	Generic
)

func (h Handler) String() string {
	switch h {
	case SecretsService:
		return "secrets-service"
	case Generic:
		return "generic"
	}
	return fmt.Sprintf("handler(%d)", int(h))
}

// Backend is one place secrets live. The fields are read-only facts
// established at enumeration time; nothing later mutates them.
type Backend struct {
	// Source identifies the backend for display and configuration: a
	// collection path, a keychain service name or a file path.
	Source string
	// Handler selects the save and dedup treatment.
	Handler Handler
	// Encrypted reports whether the backend protects its contents at
	// rest. Only encrypted backends adopt new secrets by default.
	Encrypted bool

	src Source
}

// Entry is one raw stored item as a transport sees it: a display label, an
// opaque secret blob and a transport-scoped handle for deletes.
type Entry struct {
	Label string
	Blob  string
	Ref   string
}

// Source is a storage transport serving one or more backends.
type Source interface {
	// Enumerate lists the backends this source serves, in configuration
	// order.
	Enumerate(ctx context.Context) ([]Backend, error)
	// Fetch returns every TOTP entry the backend holds.
	Fetch(ctx context.Context, b Backend) ([]Entry, error)
	// Store persists a blob under a label and returns the handle of the
	// created or updated item.
	Store(ctx context.Context, b Backend, label, blob string) (string, error)
	// Delete removes the item with the given handle.
	Delete(ctx context.Context, b Backend, ref string) error
}

// Stored is a resolved record together with where it was found.
type Stored struct {
	Record  secret.Record
	Label   string
	Backend Backend
	Ref     string
}

// Vault coordinates lookup, save and dedup across all configured sources.
type Vault struct {
	mu       sync.Mutex
	sources  []Source
	backends []Backend
	loaded   bool

	dedup   bool
	logger  *slog.Logger
	auditor *audit.Logger
	actor   string
}

// Option configures a Vault.
type Option func(*Vault)

// WithDedup toggles duplicate elimination after saves. It defaults to on.
func WithDedup(on bool) Option {
	return func(v *Vault) { v.dedup = on }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(v *Vault) { v.logger = logger }
}

// WithAudit attaches an audit trail. Audit writes are best-effort; a
// failed write never blocks the operation it describes.
func WithAudit(auditor *audit.Logger) Option {
	return func(v *Vault) { v.auditor = auditor }
}

// WithActor names the caller in audit entries. It defaults to "cli".
func WithActor(actor string) Option {
	return func(v *Vault) { v.actor = actor }
}

// New creates a vault over the given sources.
func New(sources []Source, opts ...Option) *Vault {
	v := &Vault{
		sources: sources,
		dedup:   true,
		logger:  slog.With("component", "vault"),
		actor:   "cli",
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Backends returns the configured backends in enumeration order. The list
// is cached after the first call; Refresh or SetSources invalidates it.
// With encryptedOnly set, plaintext backends are filtered out.
func (v *Vault) Backends(ctx context.Context, encryptedOnly bool) ([]Backend, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.ensureBackends(ctx); err != nil {
		return nil, err
	}
	out := make([]Backend, 0, len(v.backends))
	for _, b := range v.backends {
		if encryptedOnly && !b.Encrypted {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

// ensureBackends fills the backend cache. Callers hold v.mu. A source that
// fails to enumerate is skipped so one dead transport does not hide the
// rest.
func (v *Vault) ensureBackends(ctx context.Context) error {
	if v.loaded {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	var all []Backend
	for _, src := range v.sources {
		backends, err := src.Enumerate(ctx)
		if err != nil {
			v.logger.Warn("backend enumeration failed", "error", err)
			continue
		}
		for _, b := range backends {
			b.src = src
			all = append(all, b)
		}
	}
	v.backends = all
	v.loaded = true
	return nil
}

// Refresh discards the cached backend list so the next call re-enumerates.
func (v *Vault) Refresh() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.backends = nil
	v.loaded = false
}

// SetSources replaces the source set and discards the backend cache.
func (v *Vault) SetSources(sources []Source) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.sources = sources
	v.backends = nil
	v.loaded = false
}

// AuditEvent records a caller-side action against a stored entry, such
// as token generation, in the vault's audit trail.
func (v *Vault) AuditEvent(action audit.Action, label, backend string) {
	v.auditLog(action, label, backend, v.actor, nil)
}

// auditLog records an audit entry if a trail is attached.
func (v *Vault) auditLog(action audit.Action, label, backend, actor string, err error) {
	if v.auditor == nil {
		return
	}
	entry := audit.Entry{
		Action:  action,
		Label:   label,
		Backend: backend,
		Actor:   actor,
	}
	if err != nil {
		entry.Error = err.Error()
	}
	// Audit logging is best-effort; a failure to log never blocks the
	// operation it describes.
	v.auditor.Log(entry)
}
