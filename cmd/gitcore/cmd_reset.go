package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/odvcencio/gitcore/pkg/repo"
)

func newResetCmd(a *app) *cobra.Command {
	var soft, mixed, hard bool

	cmd := &cobra.Command{
		Use:   "reset [--soft|--mixed|--hard] [revision] [-- paths...]",
		Short: "Move HEAD, or unstage paths",
		RunE: func(cmd *cobra.Command, args []string) error {
			revArgs, paths := args, []string(nil)
			if dash := cmd.ArgsLenAtDash(); dash >= 0 {
				revArgs, paths = args[:dash], args[dash:]
			}
			if len(revArgs) > 1 {
				return fmt.Errorf("reset: expected at most one revision, got %d", len(revArgs))
			}

			mode := repo.ResetMixed
			n := 0
			for _, m := range []struct {
				set  bool
				mode repo.ResetMode
			}{{soft, repo.ResetSoft}, {mixed, repo.ResetMixed}, {hard, repo.ResetHard}} {
				if m.set {
					mode = m.mode
					n++
				}
			}
			if n > 1 {
				return fmt.Errorf("reset: --soft, --mixed and --hard are mutually exclusive")
			}

			return a.withRepo(cmd, func(r *repo.Repo) error {
				if len(paths) > 0 {
					if len(revArgs) > 0 || n > 0 {
						return fmt.Errorf("reset: paths can only be reset to HEAD without a mode")
					}
					abs, err := absPaths(paths)
					if err != nil {
						return err
					}
					return r.ResetPaths(cmd.Context(), abs)
				}

				rev := "HEAD"
				if len(revArgs) == 1 {
					rev = revArgs[0]
				}
				target, err := r.ResolveRef(rev)
				if err != nil {
					return fmt.Errorf("cannot resolve %s: %w", rev, err)
				}
				res, err := r.Reset(cmd.Context(), target, mode)
				if err != nil {
					return err
				}
				printCheckoutResult(cmd, res)
				fmt.Fprintf(cmd.OutOrStdout(), "HEAD is now at %s\n", target.Short())
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&soft, "soft", false, "move HEAD only")
	cmd.Flags().BoolVar(&mixed, "mixed", false, "move HEAD and reset the index (default)")
	cmd.Flags().BoolVar(&hard, "hard", false, "move HEAD and reset the index and working tree")
	return cmd
}
