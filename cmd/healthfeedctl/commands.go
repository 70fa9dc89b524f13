package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"healthfeed/internal/app"
	"healthfeed/internal/config"
	"healthfeed/internal/core"
	"healthfeed/internal/logger"
	"healthfeed/internal/reminder"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// env is filled by the root command's PersistentPreRunE.
type env struct {
	cfg     *config.Config
	logger  *zap.Logger
	verbose bool
}

func newRootCmd() *cobra.Command {
	e := &env{}
	root := &cobra.Command{
		Use:           "healthfeedctl",
		Short:         "Operate the healthfeed backend: feeds, reminders, schema",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			level := cfg.Log.Level
			if e.verbose {
				level = "debug"
			}
			zl, err := logger.New(level, "console", "healthfeedctl")
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			e.cfg, e.logger = cfg, zl
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if e.logger != nil {
				_ = e.logger.Sync()
			}
		},
	}
	root.PersistentFlags().BoolVarP(&e.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		newGenerateCmd(e),
		newRefreshAllCmd(e),
		newRemindCmd(e),
		newMigrateCmd(e),
	)
	return root
}

// withApp builds the app for one command run and closes it afterwards.
func (e *env) withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	a, err := app.New(ctx, e.cfg, e.logger)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func newGenerateCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "generate <user-id> [lang]",
		Short: "Generate today's feed for one user",
		Long: `Runs the full feed pipeline for one user: profile and vitals lookup, rule
seeding, LLM generation and storage.  Without a language the profile
language is used.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := e.cfg.RequireLLM(); err != nil {
				return err
			}
			lang := ""
			if len(args) == 2 {
				lang = args[1]
			}
			return e.withApp(cmd, func(ctx context.Context, a *app.App) error {
				count, err := a.Orchestrator.RefreshUser(ctx, args[0], lang)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"user_id": args[0],
					"count":   count,
					"message": "refreshed",
				})
			})
		},
	}
}

func newRefreshAllCmd(e *env) *cobra.Command {
	var limit, offset int
	cmd := &cobra.Command{
		Use:   "refresh-all",
		Short: "Regenerate feeds for a page of users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 1 || limit > core.MaxBatchLimit {
				return fmt.Errorf("--limit must be between 1 and %d", core.MaxBatchLimit)
			}
			if offset < 0 {
				return fmt.Errorf("--offset must be non-negative")
			}
			if err := e.cfg.RequireLLM(); err != nil {
				return err
			}
			return e.withApp(cmd, func(ctx context.Context, a *app.App) error {
				return printJSON(cmd.OutOrStdout(), a.Orchestrator.RefreshAll(ctx, offset, limit))
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", core.DefaultBatchLimit, "users per page (1-1000)")
	cmd.Flags().IntVar(&offset, "offset", 0, "first user index")
	return cmd
}

func newRemindCmd(e *env) *cobra.Command {
	remind := &cobra.Command{
		Use:   "remind",
		Short: "Send SMS reminders",
	}

	vitals := &cobra.Command{
		Use:   "vitals",
		Short: "Remind every patient with a phone number to log today's vitals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.withApp(cmd, func(ctx context.Context, a *app.App) error {
				report, err := a.Reminders.SendDailyVitals(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), report)
			})
		},
	}

	var window int
	appts := &cobra.Command{
		Use:   "appointments",
		Short: "Remind patients of appointments starting within the window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if window < reminder.MinWindow || window > reminder.MaxWindow {
				return reminder.ErrInvalidWindow
			}
			return e.withApp(cmd, func(ctx context.Context, a *app.App) error {
				report, err := a.Reminders.SendAppointments(ctx, window)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), report)
			})
		},
	}
	appts.Flags().IntVar(&window, "window-minutes", reminder.DefaultWindow, "look-ahead window (1-180)")

	remind.AddCommand(vitals, appts)
	return remind
}

func newMigrateCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.withApp(cmd, func(ctx context.Context, a *app.App) error {
				if err := a.Migrate(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "schema applied")
				return nil
			})
		},
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
