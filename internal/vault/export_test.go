package vault_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/benaskins/tessera/internal/migration"
	"github.com/benaskins/tessera/internal/secret"
	"github.com/benaskins/tessera/internal/vault"
)

func TestExportURLsOTPAuth(t *testing.T) {
	records := []secret.Record{record("github", "bob"), record("gitlab", "alice")}
	urls, err := vault.ExportURLs(records, vault.ExportOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(urls) != 2 {
		t.Fatalf("got %d urls, want one per record", len(urls))
	}
	for i, u := range urls {
		if !strings.HasPrefix(u, "otpauth://totp/") {
			t.Errorf("url %d = %q, want otpauth form", i, u)
		}
	}
}

func TestExportURLsMigration(t *testing.T) {
	records := []secret.Record{record("github", "bob"), record("gitlab", "alice")}
	urls, err := vault.ExportURLs(records, vault.ExportOptions{Format: vault.FormatMigration})
	if err != nil {
		t.Fatal(err)
	}
	if len(urls) != 1 {
		t.Fatalf("got %d urls, want a single chunk", len(urls))
	}
	decoded, err := migration.DecodeURL(urls[0])
	if err != nil {
		t.Fatal(err)
	}
	if len(decoded) != 2 {
		t.Errorf("chunk decodes to %d records, want 2", len(decoded))
	}
}

func TestExportURLsUnknownFormat(t *testing.T) {
	_, err := vault.ExportURLs(nil, vault.ExportOptions{Format: "csv"})
	if !errors.Is(err, vault.ErrExportFormat) {
		t.Errorf("err = %v, want ErrExportFormat", err)
	}
}

func TestDecodeTextMixed(t *testing.T) {
	single := record("github", "bob")
	bulk := []secret.Record{record("gitlab", "alice"), record("bitbucket", "carol")}

	migrationURLs, err := vault.ExportURLs(bulk, vault.ExportOptions{Format: vault.FormatMigration})
	if err != nil {
		t.Fatal(err)
	}
	otpURLs, err := vault.ExportURLs([]secret.Record{single}, vault.ExportOptions{})
	if err != nil {
		t.Fatal(err)
	}

	text := "QR-Code: " + otpURLs[0] + "\nsome unrelated prose\n" + migrationURLs[0] + "\n"

	records, err := vault.DecodeText(text)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 3 {
		t.Fatalf("got %d records, want 3", len(records))
	}
	if records[0] != single {
		t.Errorf("first record = %+v, want %+v", records[0], single)
	}
	if records[1] != bulk[0] || records[2] != bulk[1] {
		t.Errorf("bulk records = %+v, want %+v", records[1:], bulk)
	}
}

func TestDecodeTextMalformedURL(t *testing.T) {
	_, err := vault.DecodeText("otpauth-migration://offline?data=!!!")
	if err == nil {
		t.Error("malformed migration URL decoded without error")
	}
}

func TestDecodeTextEmpty(t *testing.T) {
	records, err := vault.DecodeText("nothing here at all")
	if err != nil || len(records) != 0 {
		t.Errorf("got (%v, %v), want no records and no error", records, err)
	}
}
