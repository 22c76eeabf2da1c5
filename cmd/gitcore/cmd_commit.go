package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/odvcencio/gitcore/pkg/repo"
)

func newCommitCmd(a *app) *cobra.Command {
	var (
		message    string
		allowEmpty bool
		sign       bool
	)

	cmd := &cobra.Command{
		Use:   "commit",
		Short: "Record the staged changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if message == "" {
				return fmt.Errorf("commit message is required (-m)")
			}

			return a.withRepo(cmd, func(r *repo.Repo) error {
				opts := repo.CommitOptions{Message: message, AllowEmpty: allowEmpty}
				if sign {
					signer, keyPath, err := repo.NewSSHSigner(r.Config.User.SigningKey)
					if err != nil {
						return err
					}
					a.logger(cmd).Debug("signing commit", "key", keyPath)
					opts.Signer = signer
				}

				h, err := r.Commit(cmd.Context(), opts)
				if errors.Is(err, repo.ErrNothingToCommit) {
					fmt.Fprintln(cmd.OutOrStdout(), "nothing to commit")
					return nil
				}
				if err != nil {
					return err
				}

				branch, _ := r.CurrentBranch()
				if branch == "" {
					branch = "detached HEAD"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "[%s %s] %s\n", branch, h.Short(), firstLine(message))
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&message, "message", "m", "", "commit message")
	cmd.Flags().BoolVar(&allowEmpty, "allow-empty", false, "record a commit whose tree matches its parent")
	cmd.Flags().BoolVarP(&sign, "sign", "S", false, "sign the commit with an SSH key (--signing-key or user.signing_key)")
	return cmd
}

func firstLine(msg string) string {
	line, _, _ := strings.Cut(strings.TrimLeft(msg, "\n"), "\n")
	return line
}
