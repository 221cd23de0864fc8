package cli

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"github.com/sandeepkv93/credential-session-core/internal/config"
	"github.com/sandeepkv93/credential-session-core/internal/di"
)

type options struct {
	envFile string
	ci      bool
	out     io.Writer
}

func NewRootCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:           "authcore",
		Short:         "Credential issuance and session lifecycle service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			opts.out = cmd.OutOrStdout()
		},
	}
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "optional dotenv file loaded before the environment")
	cmd.PersistentFlags().BoolVar(&opts.ci, "ci", false, "non-interactive machine-readable output")
	cmd.AddCommand(
		newServeCommand(opts),
		newMigrateCommand(opts),
		newSeedGodCommand(opts),
		newSessionsCommand(opts),
	)
	return cmd
}

func (o *options) loadConfig() (*config.Config, error) {
	return config.Load(o.envFile)
}

// withCore builds the service graph without HTTP and tears it down after fn.
func (o *options) withCore(ctx context.Context, fn func(*di.Core) error) error {
	cfg, err := o.loadConfig()
	if err != nil {
		return err
	}
	core, cleanup, err := di.InitializeCore(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()
	return fn(core)
}
