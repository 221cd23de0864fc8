package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/sandeepkv93/credential-session-core/internal/di"
	"github.com/sandeepkv93/credential-session-core/internal/repository"
)

func newMigrateCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withCore(cmd.Context(), func(core *di.Core) error {
				return runTask(cmd.Context(), opts.out, opts.ci, "migrate", func(ctx context.Context) ([]string, error) {
					if err := repository.Migrate(ctx, core.DB); err != nil {
						return nil, err
					}
					return []string{"driver=" + core.Config.DatabaseDriver}, nil
				})
			})
		},
	}
}
