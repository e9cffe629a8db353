// Package secretservice implements the freedesktop.org Secret Service
// vault source over the D-Bus session bus. It talks to whatever daemon
// holds org.freedesktop.secrets (gnome-keyring, KWallet, keepassxc).
//
// TOTP items are tagged with the xdg:schema attribute, by default
// "org.freedesktop.Secret.TOTP". Extra schemas can be searched as
// read-through fallbacks for items written by other authenticator tools.
// Secrets travel over the bus in a plain session; transport encryption is
// the bus's concern, at-rest encryption the daemon's.
package secretservice

import (
	"context"
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"

	"github.com/benaskins/tessera/internal/vault"
)

// DefaultSchema tags items written by this package.
const DefaultSchema = "org.freedesktop.Secret.TOTP"

const (
	busName  = "org.freedesktop.secrets"
	basePath = dbus.ObjectPath("/org/freedesktop/secrets")

	serviceIface    = "org.freedesktop.Secret.Service"
	collectionIface = "org.freedesktop.Secret.Collection"
	itemIface       = "org.freedesktop.Secret.Item"

	attrSchema  = "xdg:schema"
	attrAccount = "account"

	// noObject is what the API returns in place of an object path when
	// there is none, e.g. no prompt needed.
	noObject = dbus.ObjectPath("/")
)

// secretStruct mirrors the Secret structure (oayays) of the wire API.
type secretStruct struct {
	Session     dbus.ObjectPath
	Parameters  []byte
	Value       []byte
	ContentType string
}

// Source serves one collection as one backend.
type Source struct {
	schema    string
	fallbacks []string
	// collection is a name under /org/freedesktop/secrets/collection/,
	// or empty for the default alias.
	collection string

	mu      sync.Mutex
	conn    *dbus.Conn
	session dbus.ObjectPath
}

// Option configures a Source.
type Option func(*Source)

// WithSchema overrides the schema written to new items.
func WithSchema(schema string) Option {
	return func(s *Source) { s.schema = schema }
}

// WithFallbackSchemas adds schemas searched during fetches.
func WithFallbackSchemas(schemas ...string) Option {
	return func(s *Source) { s.fallbacks = append(s.fallbacks, schemas...) }
}

// WithCollection selects a named collection instead of the default alias.
func WithCollection(name string) Option {
	return func(s *Source) {
		if name == "default" {
			name = ""
		}
		s.collection = name
	}
}

// New creates a Secret Service source.
func New(opts ...Option) *Source {
	s := &Source{schema: DefaultSchema}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// connect opens the shared session bus and a plain secrets session. Both
// are cached for the life of the source.
func (s *Source) connect(ctx context.Context) (*dbus.Conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		return s.conn, nil
	}
	conn, err := dbus.SessionBus()
	if err != nil {
		return nil, fmt.Errorf("connecting to session bus: %w", err)
	}
	var output dbus.Variant
	var session dbus.ObjectPath
	err = conn.Object(busName, basePath).
		CallWithContext(ctx, serviceIface+".OpenSession", 0, "plain", dbus.MakeVariant("")).
		Store(&output, &session)
	if err != nil {
		return nil, fmt.Errorf("opening secrets session: %w", err)
	}
	s.conn, s.session = conn, session
	return conn, nil
}

// collectionPath resolves the configured collection to an object path.
func (s *Source) collectionPath(ctx context.Context, conn *dbus.Conn) (dbus.ObjectPath, error) {
	if s.collection != "" {
		return basePath + dbus.ObjectPath("/collection/"+s.collection), nil
	}
	var path dbus.ObjectPath
	err := conn.Object(busName, basePath).
		CallWithContext(ctx, serviceIface+".ReadAlias", 0, "default").
		Store(&path)
	if err != nil {
		return "", fmt.Errorf("resolving default collection: %w", err)
	}
	if path == noObject {
		return "", fmt.Errorf("no default collection on this bus")
	}
	return path, nil
}

// Enumerate lists the single collection backend. A bus that cannot be
// reached surfaces here, so a headless host degrades to the other sources.
func (s *Source) Enumerate(ctx context.Context) ([]vault.Backend, error) {
	conn, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}
	path, err := s.collectionPath(ctx, conn)
	if err != nil {
		return nil, err
	}
	return []vault.Backend{{
		Source:    string(path),
		Handler:   vault.SecretsService,
		Encrypted: true,
	}}, nil
}

// unlock asks the service to unlock an object, ignoring any prompt it
// would take to finish the job. Callers re-check the lock state.
func (s *Source) unlock(ctx context.Context, conn *dbus.Conn, path dbus.ObjectPath) {
	var unlocked []dbus.ObjectPath
	var prompt dbus.ObjectPath
	conn.Object(busName, basePath).
		CallWithContext(ctx, serviceIface+".Unlock", 0, []dbus.ObjectPath{path}).
		Store(&unlocked, &prompt)
}

// ensureUnlocked unlocks the collection if possible and reports whether
// its items are readable.
func (s *Source) ensureUnlocked(ctx context.Context, conn *dbus.Conn, collection dbus.ObjectPath) error {
	obj := conn.Object(busName, collection)
	locked, err := obj.GetProperty(collectionIface + ".Locked")
	if err != nil {
		return fmt.Errorf("reading lock state of %s: %w", collection, err)
	}
	if isLocked, _ := locked.Value().(bool); !isLocked {
		return nil
	}
	s.unlock(ctx, conn, collection)
	locked, err = obj.GetProperty(collectionIface + ".Locked")
	if err != nil {
		return fmt.Errorf("reading lock state of %s: %w", collection, err)
	}
	if isLocked, _ := locked.Value().(bool); isLocked {
		return fmt.Errorf("collection %s is locked", collection)
	}
	return nil
}

// Fetch returns every TOTP item of the collection, searching the primary
// schema and then each fallback. Items that cannot be read are skipped.
func (s *Source) Fetch(ctx context.Context, b vault.Backend) ([]vault.Entry, error) {
	conn, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}
	collection := dbus.ObjectPath(b.Source)
	if err := s.ensureUnlocked(ctx, conn, collection); err != nil {
		return nil, err
	}

	var entries []vault.Entry
	seen := make(map[dbus.ObjectPath]bool)
	for _, schema := range append([]string{s.schema}, s.fallbacks...) {
		var items []dbus.ObjectPath
		err := conn.Object(busName, collection).
			CallWithContext(ctx, collectionIface+".SearchItems", 0, map[string]string{attrSchema: schema}).
			Store(&items)
		if err != nil {
			return nil, fmt.Errorf("searching %s for schema %s: %w", collection, schema, err)
		}
		for _, item := range items {
			if seen[item] {
				continue
			}
			seen[item] = true
			entry, err := s.readItem(ctx, conn, item)
			if err != nil {
				continue
			}
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

func (s *Source) readItem(ctx context.Context, conn *dbus.Conn, item dbus.ObjectPath) (vault.Entry, error) {
	obj := conn.Object(busName, item)
	label := ""
	if v, err := obj.GetProperty(itemIface + ".Label"); err == nil {
		label, _ = v.Value().(string)
	}
	var sec secretStruct
	err := obj.CallWithContext(ctx, itemIface+".GetSecret", 0, s.session).Store(&sec)
	if err != nil {
		return vault.Entry{}, fmt.Errorf("reading secret of %s: %w", item, err)
	}
	return vault.Entry{
		Label: label,
		Blob:  string(sec.Value),
		Ref:   string(item),
	}, nil
}

// Store creates or replaces the item for the label. Replacement is keyed
// on the schema and account attributes, so distinct accounts never
// collapse into one item.
func (s *Source) Store(ctx context.Context, b vault.Backend, label, blob string) (string, error) {
	conn, err := s.connect(ctx)
	if err != nil {
		return "", err
	}
	collection := dbus.ObjectPath(b.Source)
	if err := s.ensureUnlocked(ctx, conn, collection); err != nil {
		return "", err
	}

	props := map[string]dbus.Variant{
		itemIface + ".Label": dbus.MakeVariant(label),
		itemIface + ".Attributes": dbus.MakeVariant(map[string]string{
			attrSchema:  s.schema,
			attrAccount: label,
		}),
	}
	sec := secretStruct{
		Session:     s.session,
		Value:       []byte(blob),
		ContentType: "text/plain",
	}

	var item, prompt dbus.ObjectPath
	err = conn.Object(busName, collection).
		CallWithContext(ctx, collectionIface+".CreateItem", 0, props, sec, true).
		Store(&item, &prompt)
	if err != nil {
		return "", fmt.Errorf("creating item in %s: %w", collection, err)
	}
	if item == noObject {
		return "", fmt.Errorf("creating item in %s needs an interactive prompt", collection)
	}
	return string(item), nil
}

// Delete removes the item at the handle's object path.
func (s *Source) Delete(ctx context.Context, b vault.Backend, ref string) error {
	conn, err := s.connect(ctx)
	if err != nil {
		return err
	}
	var prompt dbus.ObjectPath
	err = conn.Object(busName, dbus.ObjectPath(ref)).
		CallWithContext(ctx, itemIface+".Delete", 0).
		Store(&prompt)
	if err != nil {
		return fmt.Errorf("deleting %s: %w", ref, err)
	}
	if prompt != noObject {
		return fmt.Errorf("deleting %s needs an interactive prompt", ref)
	}
	return nil
}
