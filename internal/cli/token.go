package cli

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"live-quiz-service/internal/auth"
	"live-quiz-service/internal/config"
)

// NewTokenCmd mints a signed token for local hosts and participants.
func NewTokenCmd(configPath *string) *cobra.Command {
	var (
		subject string
		name    string
		role    string
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a development access token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if subject == "" {
				subject = uuid.NewString()
			}
			tokens := auth.NewService(cfg.Auth.Secret, cfg.Auth.Issuer, config.Duration(cfg.Auth.TokenTTL, defaultTokenTTL))
			tok, err := tokens.Issue(subject, name, role)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "sub", "", "subject id (random when empty)")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&role, "role", auth.RoleParticipant, "host or participant")
	return cmd
}
