package commands

import (
	"time"

	"github.com/spf13/cobra"

	"sentinel-core/internal/api"
)

var (
	tokenOperator string
	tokenTTL      time.Duration

	tokenCmd = &cobra.Command{
		Use:   "token",
		Short: "Mint an operator token for the admin API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			tok, exp, err := api.GenerateToken(tokenOperator, cfg.JWTSecret, tokenTTL)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"operator":  tokenOperator,
				"token":     tok,
				"expiresAt": exp,
			})
		},
	}
)

func init() {
	tokenCmd.Flags().StringVar(&tokenOperator, "operator", "operator", "operator name embedded in the token")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 12*time.Hour, "token lifetime")
}
