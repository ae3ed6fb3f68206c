package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"EthnoCards/internal/app"
	"EthnoCards/internal/config"
)

const namesEnv = "LATINS"

type runner func(cmd *cobra.Command, a *app.Application, args []string) error

func newRootCmd(cfg config.Config, logger *slog.Logger) *cobra.Command {
	root := &cobra.Command{
		Use:           "ethnocards",
		Short:         "Enrich plant names into bilingual cards and post them in rotation",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// withApp opens the application for one command and closes it afterwards.
	withApp := func(run runner) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			a, err := app.New(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer func() {
				if err := a.Close(); err != nil {
					logger.Error("close application", "error", err)
				}
			}()
			return run(cmd, a, args)
		}
	}

	root.AddCommand(
		newEnrichCmd(withApp),
		newPostCmd(withApp),
		newServeCmd(withApp),
		newCandidatesCmd(withApp),
		newCardsCmd(withApp),
	)
	return root
}

type appWrapper func(runner) func(*cobra.Command, []string) error

func newEnrichCmd(withApp appWrapper) *cobra.Command {
	var names []string
	cmd := &cobra.Command{
		Use:   "enrich",
		Short: "Run one enrichment pass over new candidates or explicit names",
		Long: `Without --names, locks up to pipeline.candidatesLimit new candidates and
turns each into a card. With --names (or the LATINS environment variable,
comma separated) the given names are processed and candidates are untouched.`,
		RunE: withApp(func(cmd *cobra.Command, a *app.Application, _ []string) error {
			if len(names) == 0 {
				names = splitNames(os.Getenv(namesEnv))
			}
			sum, err := a.Enrich(cmd.Context(), names)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), sum)
		}),
	}
	cmd.Flags().StringSliceVar(&names, "names", nil, "Latin names to process instead of candidates")
	return cmd
}

func newPostCmd(withApp appWrapper) *cobra.Command {
	return &cobra.Command{
		Use:   "post",
		Short: "Post one eligible card to every enabled channel",
		RunE: withApp(func(cmd *cobra.Command, a *app.Application, _ []string) error {
			return printJSON(cmd.OutOrStdout(), map[string]any{"ok": true, "results": a.Post(cmd.Context())})
		}),
	}
}

func newServeCmd(withApp appWrapper) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP triggers and run the configured recurring jobs",
		RunE: withApp(func(cmd *cobra.Command, a *app.Application, _ []string) error {
			return a.Serve(cmd.Context())
		}),
	}
}

func newCandidatesCmd(withApp appWrapper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "candidates",
		Short: "Manage the candidate queue",
	}

	add := &cobra.Command{
		Use:   "add <latin>...",
		Short: "Add names as new candidates",
		Args:  cobra.MinimumNArgs(1),
		RunE: withApp(func(cmd *cobra.Command, a *app.Application, args []string) error {
			var names []string
			for _, arg := range args {
				names = append(names, splitNames(arg)...)
			}
			sum, err := a.Lifecycle().Add(cmd.Context(), names)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), sum)
		}),
	}

	var apply bool
	reconcile := &cobra.Command{
		Use:   "reconcile",
		Short: "Mark candidates whose card already exists as hasCard (dry run by default)",
		RunE: withApp(func(cmd *cobra.Command, a *app.Application, _ []string) error {
			report, err := a.Inventory().Reconcile(cmd.Context(), apply)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), report)
		}),
	}
	reconcile.Flags().BoolVar(&apply, "apply", false, "Write the changes")

	var olderThan time.Duration
	release := &cobra.Command{
		Use:   "release-stale",
		Short: "Unlock candidates whose lock is older than --older-than",
		RunE: withApp(func(cmd *cobra.Command, a *app.Application, _ []string) error {
			if olderThan <= 0 {
				return fmt.Errorf("--older-than must be positive")
			}
			n, err := a.Lifecycle().ReleaseStale(cmd.Context(), olderThan)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{"released": n})
		}),
	}
	release.Flags().DurationVar(&olderThan, "older-than", time.Hour, "Lock age after which a candidate is released")

	cmd.AddCommand(add, reconcile, release)
	return cmd
}

func newCardsCmd(withApp appWrapper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cards",
		Short: "Inspect and bulk-edit cards",
	}

	setCooldown := &cobra.Command{
		Use:   "set-cooldown <days>",
		Short: "Set cooldownDays on every card",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, a *app.Application, args []string) error {
			days, err := strconv.Atoi(args[0])
			if err != nil || days < 0 {
				return fmt.Errorf("days must be a non-negative integer, got %q", args[0])
			}
			n, err := a.Cards().SetCooldown(cmd.Context(), days)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{"updated": n, "cooldownDays": days})
		}),
	}

	count := &cobra.Command{
		Use:   "count",
		Short: "Count cards and how many are eligible right now",
		RunE: withApp(func(cmd *cobra.Command, a *app.Application, _ []string) error {
			stats, err := a.Inventory().Stats(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), stats)
		}),
	}

	cmd.AddCommand(setCooldown, count)
	return cmd
}

func splitNames(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if s := strings.TrimSpace(part); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
