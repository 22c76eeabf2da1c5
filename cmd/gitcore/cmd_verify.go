package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/odvcencio/gitcore/pkg/repo"
)

func newVerifyCmd(a *app) *cobra.Command {
	var commit string

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check object integrity and ref connectivity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withRepo(cmd, func(r *repo.Repo) error {
				out := cmd.OutOrStdout()

				if commit != "" {
					h, err := r.ResolveRef(commit)
					if err != nil {
						return err
					}
					fingerprint, err := r.VerifyCommit(h)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "good signature on %s from %s\n", h.Short(), fingerprint)
					return nil
				}

				report, err := r.Verify(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "loose objects: %d\n", report.Objects.LooseObjects)
				fmt.Fprintf(out, "packs: %d (%d objects)\n", report.Objects.PackFiles, report.Objects.PackObjects)
				fmt.Fprintf(out, "reachable: %d\n", report.Reachable)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&commit, "commit", "", "verify the SSH signature of a commit instead")
	return cmd
}
