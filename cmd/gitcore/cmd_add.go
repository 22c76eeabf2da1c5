package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/odvcencio/gitcore/pkg/repo"
)

func newAddCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "add <paths...>",
		Short: "Stage files for the next commit",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := absPaths(args)
			if err != nil {
				return err
			}
			return a.withRepo(cmd, func(r *repo.Repo) error {
				return r.Add(cmd.Context(), paths)
			})
		},
	}
}

// absPaths makes command-line paths absolute so they are taken relative to
// the current directory rather than the repository root.
func absPaths(args []string) ([]string, error) {
	out := make([]string, 0, len(args))
	for _, p := range args {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("resolve %q: %w", p, err)
		}
		out = append(out, abs)
	}
	return out, nil
}
