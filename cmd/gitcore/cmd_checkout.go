package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/odvcencio/gitcore/pkg/checkout"
	"github.com/odvcencio/gitcore/pkg/repo"
)

func newCheckoutCmd(a *app) *cobra.Command {
	var (
		force    bool
		progress bool
	)

	cmd := &cobra.Command{
		Use:   "checkout <branch|revision>",
		Short: "Switch the working tree to a branch or commit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var opts []repo.Option
			if progress {
				opts = append(opts, repo.WithProgress(func(path string, done, total int) {
					fmt.Fprintf(cmd.ErrOrStderr(), "\rupdating files: %d/%d", done, total)
					if done == total {
						fmt.Fprintln(cmd.ErrOrStderr())
					}
				}))
			}

			return a.withRepo(cmd, func(r *repo.Repo) error {
				res, err := r.Checkout(cmd.Context(), args[0], !force)
				if err != nil {
					return err
				}
				printCheckoutResult(cmd, res)
				fmt.Fprintf(cmd.OutOrStdout(), "switched to %s\n", args[0])
				return nil
			}, opts...)
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "switch even when local changes conflict; conflicting paths keep their local state")
	cmd.Flags().BoolVar(&progress, "progress", false, "report progress on stderr")
	return cmd
}

func printCheckoutResult(cmd *cobra.Command, res *checkout.Result) {
	if res == nil {
		return
	}
	out := cmd.OutOrStdout()
	for _, p := range res.Conflicts {
		fmt.Fprintf(out, "kept local changes: %s\n", p)
	}
	if n := len(res.Updated) + len(res.Deleted); n > 0 {
		fmt.Fprintf(out, "%d updated, %d deleted\n", len(res.Updated), len(res.Deleted))
	}
}
