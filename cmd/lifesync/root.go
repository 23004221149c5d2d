package main

import (
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"lifesync/internal/config"
	"lifesync/internal/logger"
)

type rootOptions struct {
	configPath string
	envOnly    bool

	cfg config.Config
	log *zap.Logger
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "lifesync",
		Short:         "Sync personal SaaS data into a Postgres warehouse",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return opts.load()
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			if opts.log != nil {
				_ = opts.log.Sync()
			}
		},
	}

	defPath := os.Getenv("LS_CONFIG")
	if defPath == "" {
		defPath = "config/config.yaml"
	}
	envOnlyRaw := os.Getenv("LS_ENV_ONLY")
	defEnvOnly := strings.EqualFold(envOnlyRaw, "true") || envOnlyRaw == "1"

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", defPath, "config file (LS_CONFIG)")
	cmd.PersistentFlags().BoolVar(&opts.envOnly, "env-only", defEnvOnly, "read configuration from LS_* variables only")

	cmd.AddCommand(newRunCmd(opts), newServeCmd(opts), newMigrateCmd(opts))
	return cmd
}

func (o *rootOptions) load() error {
	cfg, err := config.Load(o.configPath, o.envOnly)
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		return err
	}
	o.cfg = cfg
	o.log = log
	return nil
}
