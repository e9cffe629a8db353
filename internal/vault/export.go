package vault

import (
	"fmt"
	"strings"

	"github.com/benaskins/tessera/internal/migration"
	"github.com/benaskins/tessera/internal/otpauth"
	"github.com/benaskins/tessera/internal/secret"
)

// Format names an export URL scheme.
type Format string

const (
	// FormatOTPAuth exports one otpauth:// URL per record.
	FormatOTPAuth Format = "otpauth"
	// FormatMigration exports chunked otpauth-migration:// URLs.
	FormatMigration Format = "otpauth-migration"
)

// ExportOptions tunes ExportURLs. The zero value exports single-record
// otpauth URLs.
type ExportOptions struct {
	Format Format
	// URLLength bounds each migration chunk URL. Zero means the
	// format's default.
	URLLength int
}

// ExportURLs serializes records into transferable URLs.
func ExportURLs(records []secret.Record, opts ExportOptions) ([]string, error) {
	switch opts.Format {
	case "", FormatOTPAuth:
		urls := make([]string, len(records))
		for i, rec := range records {
			urls[i] = otpauth.Wrap(rec)
		}
		return urls, nil
	case FormatMigration:
		return migration.Encode(records, migration.EncodeOptions{URLLength: opts.URLLength})
	}
	return nil, fmt.Errorf("%w: %q", ErrExportFormat, opts.Format)
}

// DecodeText extracts every otpauth and otpauth-migration URL from free
// text, the shape QR decoders and export files produce, and decodes them
// in order. Surrounding prose is ignored; a recognized URL that fails to
// decode is an error.
func DecodeText(text string) ([]secret.Record, error) {
	var records []secret.Record
	for _, token := range strings.Fields(text) {
		token = strings.Trim(token, `"'<>,`)
		switch {
		case strings.HasPrefix(token, otpauth.Scheme+"://"):
			rec, err := otpauth.Unwrap(token)
			if err != nil {
				return records, err
			}
			records = append(records, rec)
		case strings.HasPrefix(token, migration.Scheme+"://"):
			chunk, err := migration.DecodeURL(token)
			if err != nil {
				return records, err
			}
			records = append(records, chunk...)
		}
	}
	return records, nil
}
