package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/benaskins/tessera/internal/qr"
	"github.com/benaskins/tessera/internal/secret"
	"github.com/benaskins/tessera/internal/vault"
	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:   "export [label...]",
	Short: "Export secrets as transferable URLs",
	Long:  "Print stored secrets as otpauth:// URLs (default) or chunked otpauth-migration:// URLs. With label arguments only the matching records export.",
	RunE:  runExport,
}

func init() {
	exportCmd.Flags().String("format", string(vault.FormatOTPAuth), "otpauth or otpauth-migration")
	exportCmd.Flags().Int("limit", 0, "migration URL length limit (default 1536)")
	exportCmd.Flags().String("qr-dir", "", "also write one PNG QR code per URL into this directory")
	exportCmd.Flags().Int("qr-size", 0, "QR image edge length in pixels (default 256)")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	limit, _ := cmd.Flags().GetInt("limit")
	qrDir, _ := cmd.Flags().GetString("qr-dir")
	qrSize, _ := cmd.Flags().GetInt("qr-size")

	v, cfg, closeVault, err := openVault("cli")
	if err != nil {
		return err
	}
	defer closeVault()

	stored, err := v.FetchAll(cmd.Context())
	if err != nil {
		return err
	}

	var records []secret.Record
	if len(args) == 0 {
		for _, s := range stored {
			records = append(records, s.Record)
		}
	} else {
		for _, arg := range args {
			match, err := matchStored(stored, arg)
			if err != nil {
				return err
			}
			records = append(records, match.Record)
		}
	}
	if len(records) == 0 {
		return fmt.Errorf("nothing to export")
	}

	if limit == 0 {
		limit = cfg.URLLength
	}
	urls, err := vault.ExportURLs(records, vault.ExportOptions{
		Format:    vault.Format(format),
		URLLength: limit,
	})
	if err != nil {
		return err
	}

	for _, u := range urls {
		fmt.Println(u)
	}

	if qrDir != "" {
		if err := os.MkdirAll(qrDir, 0700); err != nil {
			return err
		}
		for i, u := range urls {
			path := filepath.Join(qrDir, fmt.Sprintf("tessera-%02d.png", i+1))
			if err := qr.WriteFile(u, qrSize, path); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "wrote %s\n", path)
		}
	}
	return nil
}
