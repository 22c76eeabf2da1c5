package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/odvcencio/gitcore/pkg/repo"
)

func newReflogCmd(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "reflog [ref]",
		Short: "Show the history of a ref",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref := "HEAD"
			if len(args) == 1 {
				ref = args[0]
			}
			return a.withRepo(cmd, func(r *repo.Repo) error {
				entries, err := r.Reflog(ref, limit)
				if err != nil {
					return err
				}
				for i, e := range entries {
					fmt.Fprintf(cmd.OutOrStdout(), "%s %s@{%d}: %s\n", e.New.Short(), ref, i, e.Message)
				}
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "max-count", "n", 0, "limit the number of entries shown")
	return cmd
}
