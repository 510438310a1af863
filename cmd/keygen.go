package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/parley-chat/parley/internal/vault"
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a credential encryption key",
	Long: `Generate a random 256-bit key, base64 encoded, suitable for the
ENCRYPTION_KEY environment variable. Store it in a secret manager; losing
the key makes every stored provider credential unreadable.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := vault.GenerateKey()
		if err != nil {
			return fmt.Errorf("generating key: %w", err)
		}
		fmt.Println(key)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(keygenCmd)
}
