package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"petlink/cmd/security/token"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a bearer token for local testing",
	Long: `Issue an HS256 bearer token signed with PETLINK_JWT_SECRET.

Examples:
  petlink token --user 42
  petlink token --user 42 --email rex@example.com --ttl 1h`,
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetInt64("user")
		email, _ := cmd.Flags().GetString("email")
		ttl, _ := cmd.Flags().GetDuration("ttl")

		raw, err := issueToken(userID, email, ttl)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), raw)
		return nil
	},
}

func init() {
	tokenCmd.Flags().Int64("user", 0, "user id to embed in the token (required)")
	tokenCmd.Flags().String("email", "", "optional email claim")
	tokenCmd.Flags().Duration("ttl", token.DefaultTTL, "token lifetime")
}

func issueToken(userID int64, email string, ttl time.Duration) (string, error) {
	if userID <= 0 {
		return "", fmt.Errorf("--user must be a positive id")
	}
	secret, err := token.SecretFromEnv(token.MinSecretBytes)
	if err != nil {
		return "", fmt.Errorf("%s: %w", token.SecretEnvKey, err)
	}
	iss, err := token.NewIssuer(secret)
	if err != nil {
		return "", err
	}
	return iss.Issue(userID, email, ttl)
}
