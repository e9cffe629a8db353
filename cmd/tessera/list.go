package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/benaskins/tessera/internal/totp"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Short:   "List stored secrets across all backends",
	Aliases: []string{"ls"},
	RunE: func(cmd *cobra.Command, args []string) error {
		v, _, closeVault, err := openVault("cli")
		if err != nil {
			return err
		}
		defer closeVault()

		stored, err := v.FetchAll(cmd.Context())
		if err != nil {
			return err
		}
		if len(stored) == 0 {
			fmt.Println("No secrets stored")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "LABEL\tSERVICE\tUSER\tDIGITS\tBACKEND")
		for _, s := range stored {
			service := s.Record.Service
			if service == "" {
				service = "-"
			}
			user := s.Record.User
			if user == "" {
				user = "-"
			}
			digits := s.Record.Digits
			if digits == 0 {
				digits = totp.DefaultDigits
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", s.Label, service, user, digits, s.Backend.Source)
		}
		w.Flush()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}
