package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/odvcencio/gitcore/pkg/repo"
)

func newMergeBaseCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "merge-base <a> <b>",
		Short: "Print the best common ancestor of two commits",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withRepo(cmd, func(r *repo.Repo) error {
				x, err := r.ResolveRef(args[0])
				if err != nil {
					return err
				}
				y, err := r.ResolveRef(args[1])
				if err != nil {
					return err
				}
				base, err := r.MergeBase(cmd.Context(), x, y)
				if err != nil {
					return err
				}
				if base.IsZero() {
					return fmt.Errorf("no common ancestor of %s and %s", args[0], args[1])
				}
				fmt.Fprintln(cmd.OutOrStdout(), base)
				return nil
			})
		},
	}
}
