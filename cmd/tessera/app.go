package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/benaskins/tessera/internal/audit"
	"github.com/benaskins/tessera/internal/config"
	"github.com/benaskins/tessera/internal/vault"
)

// openVault builds the vault from configuration. The returned close
// function flushes the audit trail; defer it before using the vault.
func openVault(actor string) (*vault.Vault, *config.Config, func(), error) {
	cfg, err := config.Load(config.ResolvePath(configFlag))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("loading config: %w", err)
	}
	sources, err := cfg.BuildSources(gpgDecrypt)
	if err != nil {
		return nil, nil, nil, err
	}

	opts := []vault.Option{vault.WithDedup(cfg.DedupEnabled())}
	if actor != "" {
		opts = append(opts, vault.WithActor(actor))
	}

	closeFn := func() {}
	if cfg.AuditEnabled() {
		logger, err := openAudit(cfg)
		switch {
		case err != nil:
			slog.Warn("audit log unavailable", "error", err)
		case logger != nil:
			opts = append(opts, vault.WithAudit(logger))
			closeFn = func() { logger.Close() }
		}
	}

	return vault.New(sources, opts...), cfg, closeFn, nil
}

func openAudit(cfg *config.Config) (*audit.Logger, error) {
	path := cfg.AuditLogPath()
	if path == "" {
		return nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, err
	}
	return audit.NewLogger(path)
}

// gpgDecrypt reads an encrypted credential file through gpg. Agent and
// pinentry setup are gpg's business; tessera only consumes the plaintext.
func gpgDecrypt(path string) ([]byte, error) {
	cmd := exec.Command("gpg", "--quiet", "--batch", "--decrypt", path)
	output, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return nil, fmt.Errorf("gpg: exit code %d: %s", exitErr.ExitCode(), strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, err
	}
	return output, nil
}

// matchStored picks the entry whose label matches arg: an exact label
// first, then a unique substring.
func matchStored(stored []vault.Stored, arg string) (vault.Stored, error) {
	for _, s := range stored {
		if s.Label == arg {
			return s, nil
		}
	}
	var matches []vault.Stored
	for _, s := range stored {
		if strings.Contains(s.Label, arg) {
			matches = append(matches, s)
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return vault.Stored{}, fmt.Errorf("no secret matches %q", arg)
	}
	labels := make([]string, len(matches))
	for i, s := range matches {
		labels[i] = s.Label
	}
	return vault.Stored{}, fmt.Errorf("%q is ambiguous: %s", arg, strings.Join(labels, ", "))
}
