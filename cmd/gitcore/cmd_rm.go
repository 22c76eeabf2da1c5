package main

import (
	"github.com/spf13/cobra"

	"github.com/odvcencio/gitcore/pkg/repo"
)

func newRmCmd(a *app) *cobra.Command {
	var cached bool

	cmd := &cobra.Command{
		Use:   "rm <paths...>",
		Short: "Remove files from the index and the working tree",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := absPaths(args)
			if err != nil {
				return err
			}
			return a.withRepo(cmd, func(r *repo.Repo) error {
				return r.Remove(cmd.Context(), paths, cached)
			})
		},
	}

	cmd.Flags().BoolVar(&cached, "cached", false, "only unstage; keep the working files")
	return cmd
}
