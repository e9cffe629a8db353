package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/benaskins/tessera/internal/vault"
	"github.com/spf13/cobra"
)

var importCmd = &cobra.Command{
	Use:   "import <file|-|url>",
	Short: "Import secrets from otpauth and otpauth-migration URLs",
	Long:  "Read text carrying otpauth:// or otpauth-migration:// URLs and save every record it holds. The argument is a file, \"-\" for stdin, or a URL pasted directly: whatever your QR decoder printed.",
	Args:  cobra.ExactArgs(1),
	RunE:  runImport,
}

func init() {
	importCmd.Flags().Bool("dry-run", false, "decode and list records without saving")
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	text, err := importText(args[0])
	if err != nil {
		return err
	}
	records, err := vault.DecodeText(text)
	if err != nil {
		return fmt.Errorf("decoding input: %w", err)
	}
	if len(records) == 0 {
		return fmt.Errorf("no otpauth or otpauth-migration URLs in input")
	}

	if dryRun {
		for _, rec := range records {
			fmt.Printf("would save %s\n", rec.Label())
		}
		return nil
	}

	v, _, closeVault, err := openVault("import")
	if err != nil {
		return err
	}
	defer closeVault()

	ctx := cmd.Context()
	var failed int
	for _, rec := range records {
		err := v.Save(ctx, rec)
		switch {
		case errors.Is(err, vault.ErrNoSaver), errors.Is(err, vault.ErrNoBackend):
			// Nowhere writable for this record. The secret is still in the
			// import text, so report and move on without failing the run.
			fmt.Fprintf(os.Stderr, "%s: %v\n", rec.Label(), err)
		case err != nil:
			fmt.Fprintf(os.Stderr, "%s: %v\n", rec.Label(), err)
			failed++
		default:
			fmt.Printf("Saved %s\n", rec.Label())
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d records failed", failed, len(records))
	}
	return nil
}

// importText reads the import payload: "-" is stdin, a recognized URL is
// taken literally, anything else is a file path.
func importText(arg string) (string, error) {
	switch {
	case arg == "-":
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return string(b), nil
	case strings.HasPrefix(arg, "otpauth://"), strings.HasPrefix(arg, "otpauth-migration://"):
		return arg, nil
	}
	b, err := os.ReadFile(arg)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
