package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "tessera",
	Short: "TOTP secrets in your desktop keyring",
	Long:  "Generate, store, import and export RFC 6238 one-time password secrets across the Secret Service, the macOS Keychain and netrc-style credential files.",
}

var configFlag string

func init() {
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "config file (default ~/.config/tessera/config.yaml, or $TESSERA_CONFIG)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
