// Package config loads tessera configuration from
// ~/.config/tessera/config.yaml, applies TESSERA_* environment
// overrides, and builds the vault sources the file describes.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/benaskins/tessera/internal/vault"
	"github.com/benaskins/tessera/internal/vault/keychain"
	"github.com/benaskins/tessera/internal/vault/memory"
	"github.com/benaskins/tessera/internal/vault/netrc"
	"github.com/benaskins/tessera/internal/vault/secretservice"
)

// ErrUnknownSource reports a source stanza whose type names no known
// transport.
var ErrUnknownSource = errors.New("unknown source type")

// SourceConfig is one entry of the sources list. Type selects the
// transport; the remaining fields only apply to some types.
type SourceConfig struct {
	// Type is one of "secretservice", "keychain", "netrc" or "memory".
	Type string `yaml:"type"`
	// Collection names a Secret Service collection. "default" or empty
	// selects the session default collection.
	Collection string `yaml:"collection,omitempty"`
	// Service overrides the Keychain service attribute for new items.
	Service string `yaml:"service,omitempty"`
	// Fallbacks lists extra Keychain services searched read-only.
	Fallbacks []string `yaml:"fallbacks,omitempty"`
	// Path locates a netrc credential file. A leading ~ expands to the
	// user's home directory.
	Path string `yaml:"path,omitempty"`
}

// SchemaConfig controls the xdg:schema attribute on Secret Service items.
type SchemaConfig struct {
	// Primary is written to new items and searched first.
	Primary string `yaml:"primary,omitempty"`
	// Fallbacks are extra schemas searched when reading, so entries
	// written by other authenticator tools stay visible.
	Fallbacks []string `yaml:"fallbacks,omitempty"`
}

// Config holds persistent tessera configuration.
type Config struct {
	Sources   []SourceConfig `yaml:"sources,omitempty"`
	Schemas   SchemaConfig   `yaml:"schemas,omitempty"`
	Dedup     *bool          `yaml:"dedup,omitempty"`
	URLLength int            `yaml:"url_length,omitempty"`
	Audit     *bool          `yaml:"audit,omitempty"`
	AuditPath string         `yaml:"audit_path,omitempty"`
}

// overrides are environment knobs layered over the file. Pointer fields
// stay nil when the variable is unset, so absence is distinguishable
// from an explicit false.
type overrides struct {
	Dedup     *bool  `env:"TESSERA_DEDUP"`
	URLLength int    `env:"TESSERA_URL_LENGTH"`
	Audit     *bool  `env:"TESSERA_AUDIT"`
	AuditPath string `env:"TESSERA_AUDIT_PATH"`
}

// DefaultDir returns the tessera configuration directory, normally
// ~/.config/tessera.
func DefaultDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "tessera")
}

// DefaultPath returns the default config file path.
func DefaultPath() string {
	dir := DefaultDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "config.yaml")
}

// ResolvePath picks the config file to load: an explicit flag value wins,
// then $TESSERA_CONFIG, then DefaultPath.
func ResolvePath(flag string) string {
	if flag != "" {
		return flag
	}
	if p := os.Getenv("TESSERA_CONFIG"); p != "" {
		return p
	}
	return DefaultPath()
}

// Load reads a YAML config file from path and applies environment
// overrides. If the file does not exist, it returns an empty Config and
// no error. An empty or all-comment file also returns an empty Config
// with no error.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	var o overrides
	if err := env.Parse(&o); err != nil {
		return nil, err
	}
	if o.Dedup != nil {
		cfg.Dedup = o.Dedup
	}
	if o.URLLength > 0 {
		cfg.URLLength = o.URLLength
	}
	if o.Audit != nil {
		cfg.Audit = o.Audit
	}
	if o.AuditPath != "" {
		cfg.AuditPath = o.AuditPath
	}
	return cfg, nil
}

// DedupEnabled reports whether duplicate elimination runs after saves.
// It defaults to on.
func (c *Config) DedupEnabled() bool {
	return c.Dedup == nil || *c.Dedup
}

// AuditEnabled reports whether operations are appended to the audit log.
// It defaults to on.
func (c *Config) AuditEnabled() bool {
	return c.Audit == nil || *c.Audit
}

// AuditLogPath returns the audit log location, normally
// ~/.config/tessera/audit.log.
func (c *Config) AuditLogPath() string {
	if c.AuditPath != "" {
		return expandHome(c.AuditPath)
	}
	dir := DefaultDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "audit.log")
}

// BuildSources constructs the vault sources described by the config, in
// order. With no sources configured it falls back to the platform secret
// store plus the conventional credential files in the user's home
// directory. The decrypt hook is handed to netrc sources for .gpg and
// .asc files; it may be nil.
func (c *Config) BuildSources(decrypt netrc.DecryptFunc) ([]vault.Source, error) {
	configs := c.Sources
	if len(configs) == 0 {
		configs = defaultSources()
	}

	sources := make([]vault.Source, 0, len(configs))
	for _, sc := range configs {
		switch sc.Type {
		case "secretservice":
			var opts []secretservice.Option
			if c.Schemas.Primary != "" {
				opts = append(opts, secretservice.WithSchema(c.Schemas.Primary))
			}
			if len(c.Schemas.Fallbacks) > 0 {
				opts = append(opts, secretservice.WithFallbackSchemas(c.Schemas.Fallbacks...))
			}
			if sc.Collection != "" {
				opts = append(opts, secretservice.WithCollection(sc.Collection))
			}
			sources = append(sources, secretservice.New(opts...))
		case "keychain":
			sources = append(sources, keychain.New(sc.Service, sc.Fallbacks...))
		case "netrc":
			if sc.Path == "" {
				return nil, fmt.Errorf("netrc source: path is required")
			}
			sources = append(sources, netrc.New([]string{expandHome(sc.Path)}, netrc.WithDecrypt(decrypt)))
		case "memory":
			sources = append(sources, memory.New())
		default:
			return nil, fmt.Errorf("%w: %q", ErrUnknownSource, sc.Type)
		}
	}
	return sources, nil
}

// defaultSources is the zero-config source list: the platform secret
// store first, then the credential files auth-source style tools keep in
// the home directory.
func defaultSources() []SourceConfig {
	store := SourceConfig{Type: "secretservice"}
	if runtime.GOOS == "darwin" {
		store = SourceConfig{Type: "keychain"}
	}
	return []SourceConfig{
		store,
		{Type: "netrc", Path: "~/.authinfo"},
		{Type: "netrc", Path: "~/.authinfo.gpg"},
		{Type: "netrc", Path: "~/.netrc"},
	}
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
