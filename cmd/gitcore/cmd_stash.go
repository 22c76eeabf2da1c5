package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/odvcencio/gitcore/pkg/repo"
)

func newStashCmd(a *app) *cobra.Command {
	var message string

	push := func(cmd *cobra.Command, args []string) error {
		return a.withRepo(cmd, func(r *repo.Repo) error {
			h, err := r.StashCreate(cmd.Context(), message)
			if err != nil {
				return err
			}
			if h.IsZero() {
				fmt.Fprintln(cmd.OutOrStdout(), "no local changes to save")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved working directory and index state as %s\n", h.Short())
			return nil
		})
	}

	cmd := &cobra.Command{
		Use:   "stash",
		Short: "Save local changes and reset to HEAD",
		Args:  cobra.NoArgs,
		RunE:  push,
	}
	cmd.Flags().StringVarP(&message, "message", "m", "", "stash message")

	pushCmd := &cobra.Command{
		Use:   "push",
		Short: "Save local changes and reset to HEAD",
		Args:  cobra.NoArgs,
		RunE:  push,
	}
	pushCmd.Flags().StringVarP(&message, "message", "m", "", "stash message")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List stash entries, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withRepo(cmd, func(r *repo.Repo) error {
				entries, err := r.StashList()
				if err != nil {
					return err
				}
				for i, e := range entries {
					fmt.Fprintf(cmd.OutOrStdout(), "stash@{%d}: %s\n", i, e.Message)
				}
				return nil
			})
		},
	}

	var restoreIndex bool
	applyCmd := &cobra.Command{
		Use:   "apply [n]",
		Short: "Restore a stash entry onto the working tree",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n := 0
			if len(args) == 1 {
				var err error
				if n, err = strconv.Atoi(args[0]); err != nil {
					return fmt.Errorf("stash index %q: %w", args[0], err)
				}
			}
			return a.withRepo(cmd, func(r *repo.Repo) error {
				res, err := r.StashApply(cmd.Context(), n, restoreIndex)
				if err != nil {
					return err
				}
				printCheckoutResult(cmd, res)
				return nil
			})
		},
	}
	applyCmd.Flags().BoolVar(&restoreIndex, "index", false, "also restore the staged changes")

	cmd.AddCommand(pushCmd, listCmd, applyCmd)
	return cmd
}
