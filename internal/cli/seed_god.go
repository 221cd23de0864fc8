package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sandeepkv93/credential-session-core/internal/di"
	"github.com/sandeepkv93/credential-session-core/internal/security"
)

func newSeedGodCommand(opts *options) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "seed-god",
		Short: "Create the god account if it does not exist",
		Long:  "Creates the god account from --email/--password, falling back to GOD_EMAIL and GOD_PASSWORD. A random password is generated and printed once when none is given.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withCore(cmd.Context(), func(core *di.Core) error {
				if email == "" {
					email = core.Config.GodEmail
				}
				if password == "" {
					password = core.Config.GodPassword
				}
				generated := false
				if password == "" {
					policy := security.PasswordPolicy{MinLength: core.Config.PasswordMinLength, RequireSpecial: core.Config.PasswordRequireSpecial}
					pw, err := policy.GeneratePassword()
					if err != nil {
						return err
					}
					password, generated = pw, true
				}
				return runTask(cmd.Context(), opts.out, opts.ci, "seed-god", func(ctx context.Context) ([]string, error) {
					user, created, err := core.Accounts.SeedGod(ctx, email, password)
					if err != nil {
						return nil, err
					}
					details := []string{fmt.Sprintf("user_id=%d email=%s", user.ID, user.Email)}
					if !created {
						return append(details, "already exists; password unchanged"), nil
					}
					if generated {
						details = append(details, "generated password="+password)
					}
					return details, nil
				})
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "god account email (default GOD_EMAIL)")
	cmd.Flags().StringVar(&password, "password", "", "god account password (default GOD_PASSWORD)")
	return cmd
}
