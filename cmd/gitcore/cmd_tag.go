package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/odvcencio/gitcore/pkg/object"
	"github.com/odvcencio/gitcore/pkg/repo"
)

func newTagCmd(a *app) *cobra.Command {
	var (
		annotate  bool
		message   string
		force     bool
		deleteTag bool
	)

	cmd := &cobra.Command{
		Use:   "tag [name [revision]]",
		Short: "List, create, or delete tags",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withRepo(cmd, func(r *repo.Repo) error {
				out := cmd.OutOrStdout()

				if len(args) == 0 {
					tags, err := r.ListTags()
					if err != nil {
						return err
					}
					for _, t := range tags {
						fmt.Fprintf(out, "%s %s\n", t.Target.Short(), t.Name)
					}
					return nil
				}

				name := args[0]
				if deleteTag {
					if err := r.DeleteTag(cmd.Context(), name); err != nil {
						return err
					}
					fmt.Fprintf(out, "deleted tag '%s'\n", name)
					return nil
				}

				rev := "HEAD"
				if len(args) == 2 {
					rev = args[1]
				}
				target, err := r.ResolveRef(rev)
				if err != nil {
					return fmt.Errorf("cannot resolve %s: %w", rev, err)
				}

				if annotate || message != "" {
					_, err := r.CreateAnnotatedTag(cmd.Context(), name, target, object.Signature{}, message, force)
					return err
				}
				return r.CreateTag(cmd.Context(), name, target, force)
			})
		},
	}

	cmd.Flags().BoolVarP(&annotate, "annotate", "a", false, "create an annotated tag object")
	cmd.Flags().StringVarP(&message, "message", "m", "", "tag message (implies -a)")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "replace an existing tag")
	cmd.Flags().BoolVarP(&deleteTag, "delete", "d", false, "delete the named tag")
	return cmd
}
