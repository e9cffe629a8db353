package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var backendsCmd = &cobra.Command{
	Use:   "backends",
	Short: "List configured secret backends",
	RunE: func(cmd *cobra.Command, args []string) error {
		encryptedOnly, _ := cmd.Flags().GetBool("encrypted")

		v, _, closeVault, err := openVault("cli")
		if err != nil {
			return err
		}
		defer closeVault()

		backends, err := v.Backends(cmd.Context(), encryptedOnly)
		if err != nil {
			return err
		}
		if len(backends) == 0 {
			fmt.Println("No backends configured")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "BACKEND\tHANDLER\tENCRYPTED")
		for _, b := range backends {
			fmt.Fprintf(w, "%s\t%s\t%t\n", b.Source, b.Handler, b.Encrypted)
		}
		w.Flush()
		return nil
	},
}

func init() {
	backendsCmd.Flags().Bool("encrypted", false, "only show encrypted backends")
	rootCmd.AddCommand(backendsCmd)
}
