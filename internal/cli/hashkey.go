package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"emailtracker/internal/auth"
)

// NewHashKeyCommand prints the bcrypt hash to put in auth.client_key_hash or auth.admin_key_hash.
func NewHashKeyCommand(_ *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "hash-key <key>",
		Short: "Hash a client key for the server config",
		Args:  cobra.ExactArgs(1),
		// needs no config or store
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := auth.HashKey(args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), hash)
			return err
		},
	}
}
