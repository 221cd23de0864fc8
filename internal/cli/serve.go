package cli

import (
	"github.com/spf13/cobra"

	"github.com/sandeepkv93/credential-session-core/internal/di"
	"github.com/sandeepkv93/credential-session-core/internal/repository"
)

func newServeCommand(opts *options) *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if migrate {
				if err := opts.withCore(ctx, func(core *di.Core) error {
					return repository.Migrate(ctx, core.DB)
				}); err != nil {
					return err
				}
			}
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			application, cleanup, err := di.InitializeApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer cleanup()
			return application.Run(ctx)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply schema migrations before serving")
	return cmd
}
