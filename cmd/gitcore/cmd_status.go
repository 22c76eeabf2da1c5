package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/odvcencio/gitcore/pkg/repo"
)

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show working tree status in short format",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withRepo(cmd, func(r *repo.Repo) error {
				out := cmd.OutOrStdout()

				label := "HEAD (detached)"
				if branch, err := r.CurrentBranch(); err != nil {
					return err
				} else if branch != "" {
					label = branch
				}
				head, err := r.Head()
				if err != nil {
					return err
				}
				if head.IsZero() {
					fmt.Fprintf(out, "## %s (no commits yet)\n", label)
				} else {
					fmt.Fprintf(out, "## %s\n", label)
				}

				entries, err := r.Status(cmd.Context())
				if err != nil {
					return err
				}
				for _, e := range entries {
					fmt.Fprintln(out, e.String())
				}
				return nil
			})
		},
	}
}
