package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/moonwalker/verdict/pkg/cloudflare/r2"
	"github.com/moonwalker/verdict/pkg/rules/engine"
	"github.com/moonwalker/verdict/pkg/rules/eventsource"
)

func newRulesCommand(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage the rule-sets of the repo",
	}

	cmd.AddCommand(newRulesListCommand(root))
	cmd.AddCommand(newRulesExportCommand(root))
	cmd.AddCommand(newRulesImportCommand(root))
	cmd.AddCommand(newRulesReloadCommand(root))
	cmd.AddCommand(newRulesArchiveCommand(root))

	return cmd
}

// withRegistry opens the configured repo, loads it into a registry and
// hands both to fn.
func withRegistry(cfg *config, fn func(reg *engine.Registry, b *backend) error) error {
	b, err := openBackend(cfg, cfg.stream())
	if err != nil {
		return err
	}
	defer b.repo.Close()

	reg := engine.New(engine.WithRepo(b.repo))
	defer reg.Close()

	if err := reg.LoadAll(); err != nil {
		return err
	}
	return fn(reg, b)
}

func newRulesListCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the rule-sets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRegistry(root.cfg, func(reg *engine.Registry, b *backend) error {
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "NAME\tRULES\tVERSION")
				for _, name := range reg.GetEngineNames() {
					info, err := reg.GetEngineInfo(name)
					if err != nil {
						return err
					}
					fmt.Fprintf(w, "%s\t%d\t%d\n", info.Name, info.RulesCount, info.Version)
				}
				return w.Flush()
			})
		},
	}
}

func newRulesExportCommand(root *rootOptions) *cobra.Command {
	var format, output string

	cmd := &cobra.Command{
		Use:   "export <ruleset>",
		Short: "Export a rule-set as JSON or YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRegistry(root.cfg, func(reg *engine.Registry, b *backend) error {
				data, err := reg.ExportRules(args[0], format)
				if err != nil {
					return err
				}
				if output == "" {
					_, err = cmd.OutOrStdout().Write(data)
					return err
				}
				return os.WriteFile(output, data, 0o644)
			})
		},
	}

	cmd.Flags().StringVar(&format, "format", "json", "output format (json|yaml)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to this file instead of stdout")

	return cmd
}

func newRulesImportCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Validate a rule-set file and store it in the repo",
		Long: `Validate a rule-set file (JSON or YAML) and store it in the repo.

A file that fails validation changes nothing.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			return withRegistry(root.cfg, func(reg *engine.Registry, b *backend) error {
				name, err := reg.ImportRules(args[0], data)
				if err != nil {
					return err
				}
				info, err := reg.GetEngineInfo(name)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "imported %s: %d rules into %s\n", name, info.RulesCount, b.repo.Name())
				return nil
			})
		},
	}
}

func newRulesReloadCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reload [ruleset]",
		Short: "Ask running servers to reload one or every rule-set",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stream := root.cfg.stream()
			if stream == nil {
				return fmt.Errorf("NATS_URL is required to reach running servers")
			}
			defer stream.Close()

			name := ""
			if len(args) == 1 {
				name = args[0]
			}

			src := eventsource.NewNatsCommandSource(stream)
			defer src.Close()
			if err := src.TriggerReload(name); err != nil {
				return err
			}

			if name == "" {
				name = "all rule-sets"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "reload requested for %s\n", name)
			return nil
		},
	}
}

func newRulesArchiveCommand(root *rootOptions) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "archive [ruleset...]",
		Short: "Upload a timestamped export of rule-sets to the R2 archive bucket",
		Long: `Upload a timestamped export of the named rule-sets, or of every
rule-set when none is named, to the bucket set by CFL_R2_BUCKET_NAME.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !root.cfg.Archive.Enabled() {
				return fmt.Errorf("CFL_R2_BUCKET_NAME is required to archive rule-sets")
			}
			archive, err := r2.New(cmd.Context(), root.cfg.Archive)
			if err != nil {
				return err
			}

			return withRegistry(root.cfg, func(reg *engine.Registry, b *backend) error {
				names := args
				if len(names) == 0 {
					names = reg.GetEngineNames()
				}
				at := time.Now()
				for _, name := range names {
					data, err := reg.ExportRules(name, format)
					if err != nil {
						return err
					}
					u, err := archive.ArchiveRuleSet(cmd.Context(), name, format, data, at)
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "archived %s to %s\n", name, u)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&format, "format", "json", "archive format (json|yaml)")

	return cmd
}
