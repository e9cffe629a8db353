package main

import (
	"fmt"
	"time"

	"github.com/benaskins/tessera/internal/audit"
	"github.com/benaskins/tessera/internal/totp"
	"github.com/spf13/cobra"
)

var codeCmd = &cobra.Command{
	Use:   "code <label>",
	Short: "Print the current token for a stored secret",
	Long:  "Look up a secret by label (exact match, then unique substring) and print its one-time password.",
	Args:  cobra.ExactArgs(1),
	RunE:  runCode,
}

func init() {
	codeCmd.Flags().Bool("ttl", false, "also print remaining validity in seconds")
	codeCmd.Flags().Int("digits", 0, "override the stored token width")
	codeCmd.Flags().Int("period", 0, "override the time step in seconds")
	codeCmd.Flags().Int("offset", 0, "shift the clock backwards by this many seconds")
	rootCmd.AddCommand(codeCmd)
}

func runCode(cmd *cobra.Command, args []string) error {
	showTTL, _ := cmd.Flags().GetBool("ttl")
	digits, _ := cmd.Flags().GetInt("digits")
	period, _ := cmd.Flags().GetInt("period")
	offset, _ := cmd.Flags().GetInt("offset")

	v, _, closeVault, err := openVault("cli")
	if err != nil {
		return err
	}
	defer closeVault()

	stored, err := v.FetchAll(cmd.Context())
	if err != nil {
		return err
	}
	match, err := matchStored(stored, args[0])
	if err != nil {
		return err
	}

	cfg := totp.Config{
		Secret: match.Record.Secret,
		Digits: match.Record.Digits,
		Period: time.Duration(period) * time.Second,
		Offset: time.Duration(offset) * time.Second,
	}
	if digits > 0 {
		cfg.Digits = digits
	}
	code, err := cfg.Code()
	if err != nil {
		return err
	}

	v.AuditEvent(audit.ActionTokenGenerate, match.Label, match.Backend.Source)

	if showTTL {
		fmt.Printf("%s\t%ds\n", code.Token, int(code.TTL/time.Second))
	} else {
		fmt.Println(code.Token)
	}
	return nil
}
