package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// rootOptions holds the global flags; they override the environment.
type rootOptions struct {
	cfg *config

	repo     string
	rulesDir string
	debug    bool
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "verdict",
		Short: "verdict - fact driven decision engine",
		Long: `verdict evaluates named rule-sets against facts, resolves conflicting
matches and dispatches the actions attached to the matched rules.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			opts.cfg = loadConfig()
			if cmd.Flags().Changed("repo") {
				opts.cfg.Repo = opts.repo
			}
			if cmd.Flags().Changed("rules-dir") {
				opts.cfg.RulesDir = opts.rulesDir
			}
			if cmd.Flags().Changed("debug") {
				opts.cfg.Debug = opts.debug
			}
			if !validRepo(opts.cfg.Repo) {
				return fmt.Errorf("invalid repo %q: must be one of %v", opts.cfg.Repo, repoKinds)
			}

			level := slog.LevelInfo
			if opts.cfg.Debug {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.repo, "repo", repoMemory, fmt.Sprintf("rule-set repo (%v)", repoKinds))
	cmd.PersistentFlags().StringVar(&opts.rulesDir, "rules-dir", "rules", "rule-set directory of the disk repo")
	cmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "debug logging")

	cmd.AddCommand(newEvalCommand(opts))
	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newRulesCommand(opts))

	cmd.SetErr(os.Stderr)
	return cmd
}
