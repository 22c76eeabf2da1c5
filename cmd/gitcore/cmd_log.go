package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/odvcencio/gitcore/pkg/object"
	"github.com/odvcencio/gitcore/pkg/repo"
)

func newLogCmd(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "log [revision]",
		Short: "Show first-parent commit history",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withRepo(cmd, func(r *repo.Repo) error {
				start, err := r.Head()
				if err != nil {
					return err
				}
				if len(args) == 1 {
					if start, err = r.ResolveRef(args[0]); err != nil {
						return err
					}
				}
				if start.IsZero() {
					return fmt.Errorf("no commits yet")
				}

				entries, err := r.Log(start, limit)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for i, e := range entries {
					if i > 0 {
						fmt.Fprintln(out)
					}
					printCommit(cmd, e.Hash, e.Commit)
				}
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "max-count", "n", 0, "limit the number of commits shown")
	return cmd
}

func printCommit(cmd *cobra.Command, h object.Hash, c *object.CommitObj) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "commit %s\n", h)
	if len(c.Parents) > 1 {
		fmt.Fprint(out, "Merge:")
		for _, p := range c.Parents {
			fmt.Fprintf(out, " %s", p.Short())
		}
		fmt.Fprintln(out)
	}
	fmt.Fprintf(out, "Author: %s\n", c.Author.Ident())
	fmt.Fprintf(out, "Date:   %s\n\n", c.Author.When.Format("Mon Jan 2 15:04:05 2006 -0700"))
	fmt.Fprintf(out, "    %s\n", firstLine(c.Message))
}
