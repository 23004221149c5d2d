package main

import (
	"github.com/spf13/cobra"
)

func newMigrateCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create metadata and warehouse tables",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), root.cfg, root.log)
			if err != nil {
				return err
			}
			defer a.Close()
			names := a.sync.Available()
			if err := a.sync.EnsureTables(cmd.Context(), names); err != nil {
				return err
			}
			root.log.Sugar().Infof("migrated metadata tables and warehouse tables of %d services", len(names))
			return nil
		},
	}
}
