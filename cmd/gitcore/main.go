package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/odvcencio/gitcore/pkg/repo"
)

const version = "gitcore 0.1.0-dev"

// app carries settings shared by every subcommand. Values come from
// persistent flags, then GITCORE_* environment variables.
type app struct {
	v *viper.Viper
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:           "gitcore",
		Short:         "Git-compatible repository storage and working tree tools",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.BoolP("verbose", "v", false, "log debug events to stderr")
	flags.String("user-name", "", "commit identity name (overrides repository config)")
	flags.String("user-email", "", "commit identity email (overrides repository config)")
	flags.String("signing-key", "", "SSH private key used by commit --sign")

	a.v.BindPFlag("verbose", flags.Lookup("verbose"))
	a.v.BindPFlag("user_name", flags.Lookup("user-name"))
	a.v.BindPFlag("user_email", flags.Lookup("user-email"))
	a.v.BindPFlag("signing_key", flags.Lookup("signing-key"))
	a.v.SetEnvPrefix("GITCORE")
	a.v.AutomaticEnv()

	root.AddCommand(newVersionCmd())
	root.AddCommand(newInitCmd(a))
	root.AddCommand(newConfigCmd(a))
	root.AddCommand(newAddCmd(a))
	root.AddCommand(newRmCmd(a))
	root.AddCommand(newStatusCmd(a))
	root.AddCommand(newCommitCmd(a))
	root.AddCommand(newLogCmd(a))
	root.AddCommand(newBranchCmd(a))
	root.AddCommand(newCheckoutCmd(a))
	root.AddCommand(newTagCmd(a))
	root.AddCommand(newResetCmd(a))
	root.AddCommand(newReflogCmd(a))
	root.AddCommand(newStashCmd(a))
	root.AddCommand(newMergeBaseCmd(a))
	root.AddCommand(newVerifyCmd(a))

	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}

// logger writes text records to the command's stderr; --verbose lowers
// the level to debug.
func (a *app) logger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelWarn
	if a.v.GetBool("verbose") {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}

// openRepo opens the repository containing the working directory and
// applies identity overrides from flags or environment.
func (a *app) openRepo(cmd *cobra.Command, opts ...repo.Option) (*repo.Repo, error) {
	opts = append([]repo.Option{
		repo.WithLogger(a.logger(cmd)),
		repo.WithUser(a.v.GetString("user_name"), a.v.GetString("user_email")),
	}, opts...)
	r, err := repo.Open(".", opts...)
	if err != nil {
		return nil, err
	}
	if key := a.v.GetString("signing_key"); key != "" {
		r.Config.User.SigningKey = key
	}
	return r, nil
}

// withRepo opens the repository, runs fn, and closes it.
func (a *app) withRepo(cmd *cobra.Command, fn func(r *repo.Repo) error, opts ...repo.Option) error {
	r, err := a.openRepo(cmd, opts...)
	if err != nil {
		return err
	}
	defer r.Close()
	return fn(r)
}
