package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"
)

func newAuthCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage filed API keys",
	}
	cmd.AddCommand(newAuthNewKeyCommand())
	return cmd
}

func newAuthNewKeyCommand() *cobra.Command {
	var count int
	cmd := &cobra.Command{
		Use:   "newkey",
		Short: "Generate a random API key for the read/write/admin slots",
		Example: `
  # One key per access tier
  FILED_READ_KEY=$(filed auth newkey)
  FILED_WRITE_KEY=$(filed auth newkey)
  FILED_ADMIN_KEY=$(filed auth newkey)
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if count < 1 {
				return fmt.Errorf("--count must be >= 1")
			}
			for i := 0; i < count; i++ {
				key, err := generateKey()
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), key)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&count, "count", 1, "number of keys to generate")
	return cmd
}

// generateKey returns 32 bytes of CSPRNG entropy as lowercase hex.
func generateKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
