package main

import (
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/odvcencio/gitcore/pkg/repo"
)

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or edit repository settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withRepo(cmd, func(r *repo.Repo) error {
				// Print the file as stored, not the flag-overridden copy.
				cfg, err := repo.ReadConfig(r.GitDir)
				if err != nil {
					return err
				}
				return toml.NewEncoder(cmd.OutOrStdout()).Encode(cfg)
			})
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "set-user <name> <email>",
		Short: "Store the commit identity",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withRepo(cmd, func(r *repo.Repo) error {
				if err := r.SetUser(args[0], args[1]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "user set to %s <%s>\n", args[0], args[1])
				return nil
			})
		},
	})
	return cmd
}
