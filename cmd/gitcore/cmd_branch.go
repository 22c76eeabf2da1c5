package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/odvcencio/gitcore/pkg/repo"
)

func newBranchCmd(a *app) *cobra.Command {
	var deleteBranch string

	cmd := &cobra.Command{
		Use:   "branch [name [start]]",
		Short: "List, create, or delete branches",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withRepo(cmd, func(r *repo.Repo) error {
				out := cmd.OutOrStdout()

				if deleteBranch != "" {
					if err := r.DeleteBranch(cmd.Context(), deleteBranch); err != nil {
						return err
					}
					fmt.Fprintf(out, "deleted branch '%s'\n", deleteBranch)
					return nil
				}

				if len(args) > 0 {
					start := "HEAD"
					if len(args) == 2 {
						start = args[1]
					}
					target, err := r.ResolveRef(start)
					if err != nil {
						return fmt.Errorf("cannot resolve %s: %w", start, err)
					}
					return r.CreateBranch(cmd.Context(), args[0], target)
				}

				branches, err := r.ListBranches()
				if err != nil {
					return err
				}
				current, _ := r.CurrentBranch()
				for _, b := range branches {
					if b == current {
						fmt.Fprintf(out, "* %s\n", b)
					} else {
						fmt.Fprintf(out, "  %s\n", b)
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&deleteBranch, "delete", "d", "", "delete the named branch")
	return cmd
}
