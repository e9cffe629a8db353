package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/benaskins/tessera/internal/secret"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var addCmd = &cobra.Command{
	Use:   "add [user@]service",
	Short: "Store a new TOTP secret",
	Long:  "Store a secret under a user@service label. The base32 key is read from stdin and never echoed; piping it in works too.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAdd,
}

func init() {
	addCmd.Flags().String("service", "", "service the secret belongs to")
	addCmd.Flags().String("user", "", "account name at the service")
	addCmd.Flags().Int("digits", 0, "token width: 6, 8 or 10")
	rootCmd.AddCommand(addCmd)
}

func runAdd(cmd *cobra.Command, args []string) error {
	service, _ := cmd.Flags().GetString("service")
	user, _ := cmd.Flags().GetString("user")
	digits, _ := cmd.Flags().GetInt("digits")

	if len(args) == 1 {
		if service != "" || user != "" {
			return fmt.Errorf("give either a label argument or --service/--user, not both")
		}
		user, service = secret.ParseLabel(args[0])
	}
	if service == "" {
		return fmt.Errorf("a service name is required")
	}

	value, err := readSecret()
	if err != nil {
		return err
	}
	key, err := secret.DecodeKey(value)
	if err != nil {
		return err
	}

	v, _, closeVault, err := openVault("cli")
	if err != nil {
		return err
	}
	defer closeVault()

	rec := secret.Record{
		Service: service,
		User:    user,
		Secret:  secret.EncodeKey(key),
		Digits:  digits,
	}
	if err := v.Save(cmd.Context(), rec); err != nil {
		return err
	}
	fmt.Printf("Secret %q stored\n", rec.Label())
	return nil
}

// readSecret reads the key from a terminal without echoing it; piped
// stdin is read straight through.
func readSecret() (string, error) {
	if term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Print("Enter base32 secret: ")
		b, err := term.ReadPassword(int(os.Stdin.Fd()))
		if err != nil {
			return "", fmt.Errorf("reading secret: %w", err)
		}
		fmt.Println()
		return string(b), nil
	}
	b, err := os.ReadFile("/dev/stdin")
	if err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	return strings.TrimRight(string(b), "\n"), nil
}
