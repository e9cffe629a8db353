// Package netrc implements the generic credential-file source: netrc or
// authinfo style files holding TOTP keys in their password field, marked
// by the reserved port value "totp".
//
//	machine github login bob password GEZDGNBV... port totp
//
// Files with a .gpg or .asc extension are treated as encrypted: they are
// readable through an injected decrypt hook and never written, since this
// package does not do cryptography of its own.
package netrc

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/benaskins/tessera/internal/secret"
	"github.com/benaskins/tessera/internal/vault"
)

// Marker is the sentinel port value that flags a netrc entry as a TOTP
// secret rather than an ordinary credential.
const Marker = "totp"

// DecryptFunc reads and decrypts an encrypted credential file.
type DecryptFunc func(path string) ([]byte, error)

// Source serves one backend per configured file path.
type Source struct {
	paths   []string
	decrypt DecryptFunc
}

// Option configures a Source.
type Option func(*Source)

// WithDecrypt installs the hook used to read .gpg and .asc files.
func WithDecrypt(fn DecryptFunc) Option {
	return func(s *Source) { s.decrypt = fn }
}

// New creates a source over the given credential files. A path that does
// not exist yet is still a valid backend; saving to it creates the file.
func New(paths []string, opts ...Option) *Source {
	s := &Source{paths: paths}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Enumerate lists one backend per file, in configuration order.
func (s *Source) Enumerate(ctx context.Context) ([]vault.Backend, error) {
	backends := make([]vault.Backend, 0, len(s.paths))
	for _, path := range s.paths {
		backends = append(backends, vault.Backend{
			Source:    path,
			Handler:   vault.Generic,
			Encrypted: encryptedExtension(path),
		})
	}
	return backends, nil
}

// Fetch parses the file and returns its TOTP entries. A missing file is an
// empty backend, not an error.
func (s *Source) Fetch(ctx context.Context, b vault.Backend) ([]vault.Entry, error) {
	data, err := s.read(b)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var entries []vault.Entry
	for _, e := range parse(string(data)) {
		if e.port != Marker || e.password == "" {
			continue
		}
		label := entryLabel(e)
		if label == "" {
			continue
		}
		entries = append(entries, vault.Entry{Label: label, Blob: e.password, Ref: label})
	}
	return entries, nil
}

// Store creates or updates the entry for the label's host and user. Only
// the matching line is rewritten; every other line of the file survives
// byte for byte. Encrypted files have no writer.
func (s *Source) Store(ctx context.Context, b vault.Backend, label, blob string) (string, error) {
	if b.Encrypted {
		return "", fmt.Errorf("%s: encrypted file: %w", b.Source, vault.ErrNoSaver)
	}
	login, machine := secret.ParseLabel(label)
	if machine == "" {
		return "", fmt.Errorf("%s: no host in label %q: %w", b.Source, label, vault.ErrNoSaver)
	}

	lines, err := readLines(b.Source)
	if err != nil {
		return "", err
	}
	newLine := formatLine(machine, login, blob)
	replaced := false
	for i, line := range lines {
		e, ok := parseManagedLine(line)
		if ok && e.machine == machine && e.login == login {
			lines[i] = newLine
			replaced = true
			break
		}
	}
	if !replaced {
		// A hand-written entry for this account that spans several lines
		// is readable but not rewritable here; appending a second copy
		// would leave two keys for one account, with the stale one
		// enumerating first.
		if unmanagedEntryExists(lines, machine, login) {
			return "", fmt.Errorf("%s: entry for %q spans multiple lines: %w", b.Source, label, vault.ErrNoSaver)
		}
		lines = append(lines, newLine)
	}
	if err := writeLines(b.Source, lines); err != nil {
		return "", err
	}
	return entryLabel(entry{machine: machine, login: login}), nil
}

// Delete removes the entry whose label matches ref. Entries that span
// several hand-written lines are readable but cannot be rewritten here.
func (s *Source) Delete(ctx context.Context, b vault.Backend, ref string) error {
	if b.Encrypted {
		return fmt.Errorf("%s: encrypted file: %w", b.Source, vault.ErrNoSaver)
	}
	login, machine := secret.ParseLabel(ref)
	lines, err := readLines(b.Source)
	if err != nil {
		return err
	}
	kept := lines[:0]
	found := false
	for _, line := range lines {
		e, ok := parseManagedLine(line)
		if ok && e.machine == machine && e.login == login {
			found = true
			continue
		}
		kept = append(kept, line)
	}
	if !found {
		return fmt.Errorf("no single-line entry %q in %s", ref, b.Source)
	}
	return writeLines(b.Source, kept)
}

func (s *Source) read(b vault.Backend) ([]byte, error) {
	if !b.Encrypted {
		return os.ReadFile(b.Source)
	}
	if s.decrypt == nil {
		return nil, fmt.Errorf("%s: no decrypt hook configured", b.Source)
	}
	if _, err := os.Stat(b.Source); err != nil {
		return nil, err
	}
	return s.decrypt(b.Source)
}

func encryptedExtension(path string) bool {
	switch filepath.Ext(path) {
	case ".gpg", ".asc":
		return true
	}
	return false
}

// entry is one parsed netrc record.
type entry struct {
	machine  string
	login    string
	password string
	port     string
}

func entryLabel(e entry) string {
	switch {
	case e.machine != "" && e.login != "":
		return e.login + "@" + e.machine
	case e.machine != "":
		return e.machine
	}
	return e.login
}

// parse walks the whole file as a netrc token stream. Newlines are
// ordinary whitespace, so hand-written entries may span lines. The macdef
// extension is not supported; these files carry tool-managed TOTP entries.
func parse(content string) []entry {
	tokens := strings.Fields(content)
	var entries []entry
	var current *entry
	flush := func() {
		if current != nil {
			entries = append(entries, *current)
		}
		current = nil
	}
	for i := 0; i < len(tokens); i++ {
		switch tokens[i] {
		case "machine":
			flush()
			current = &entry{}
			if i+1 < len(tokens) {
				i++
				current.machine = tokens[i]
			}
		case "default":
			flush()
			current = &entry{}
		case "login", "password", "port", "account":
			if current == nil || i+1 >= len(tokens) {
				continue
			}
			key := tokens[i]
			i++
			switch key {
			case "login":
				current.login = tokens[i]
			case "password":
				current.password = tokens[i]
			case "port":
				current.port = tokens[i]
			}
		}
	}
	flush()
	return entries
}

// unmanagedEntryExists reports whether a TOTP entry for the machine and
// login exists somewhere in the file. Callers run it after the managed
// single-line scan came up empty, so a hit means the entry is in a form
// this package must not rewrite.
func unmanagedEntryExists(lines []string, machine, login string) bool {
	for _, e := range parse(strings.Join(lines, "\n")) {
		if e.machine == machine && e.login == login && e.port == Marker {
			return true
		}
	}
	return false
}

// parseManagedLine reports whether a single line is a complete TOTP entry
// this package may rewrite.
func parseManagedLine(line string) (entry, bool) {
	parsed := parse(line)
	if len(parsed) != 1 {
		return entry{}, false
	}
	e := parsed[0]
	if e.machine == "" || e.password == "" || e.port != Marker {
		return entry{}, false
	}
	return e, true
}

func formatLine(machine, login, blob string) string {
	var sb strings.Builder
	sb.WriteString("machine ")
	sb.WriteString(machine)
	if login != "" {
		sb.WriteString(" login ")
		sb.WriteString(login)
	}
	sb.WriteString(" password ")
	sb.WriteString(blob)
	sb.WriteString(" port ")
	sb.WriteString(Marker)
	return sb.String()
}

func readLines(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	text := strings.TrimRight(string(data), "\n")
	if text == "" {
		return nil, nil
	}
	return strings.Split(text, "\n"), nil
}

// writeLines replaces the file atomically via a same-directory temp file.
func writeLines(path string, lines []string) error {
	var content string
	if len(lines) > 0 {
		content = strings.Join(lines, "\n") + "\n"
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
