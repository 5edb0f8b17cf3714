package cli

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"
)

func newKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "key",
		Aliases: []string{"apikey"},
		Short:   "Generate server secrets",
		Long: `Generate the static API key and JWT signing secret used by the server.

Per-account session keys are created through the API (POST /api/v1/auth/api-keys).`,
	}

	cmd.AddCommand(newKeyGenerateCmd())

	return cmd
}

// ---------- key generate ----------

func newKeyGenerateCmd() *cobra.Command {
	var (
		size   int
		secret bool
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a random static API key",
		Example: `  tenantly key generate            # value for auth.api_key
  tenantly key generate --jwt-secret  # value for auth.jwt_secret`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if size < 16 {
				return fmt.Errorf("--bytes must be at least 16")
			}
			value, err := randomHex(size)
			if err != nil {
				return err
			}
			setting := "auth.api_key (TENANTLY_AUTH_API_KEY)"
			if secret {
				setting = "auth.jwt_secret (TENANTLY_AUTH_JWT_SECRET)"
			}
			fmt.Fprintln(cmd.OutOrStdout(), value)
			fmt.Fprintf(cmd.ErrOrStderr(), "\nSet it as %s. It is not stored anywhere.\n", setting)
			return nil
		},
	}

	cmd.Flags().IntVar(&size, "bytes", 32, "Number of random bytes")
	cmd.Flags().BoolVar(&secret, "jwt-secret", false, "Label the output as a JWT signing secret")

	return cmd
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate random key: %w", err)
	}
	return hex.EncodeToString(b), nil
}
