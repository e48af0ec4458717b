// Package main - точка входа пакетной сверки производных полей студентов.
//
// reconcile обходит всех студентов тремя этапами: паузы и статус подписки,
// серии практик, уровень и фаза. В режиме --dry-run печатается отчёт без
// записей, в режиме --apply расхождения исправляются.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mentoria/practice-hub/config"
	"github.com/mentoria/practice-hub/internal/application/reconcile"
)

var (
	flagDryRun   bool
	flagApply    bool
	flagConfig   string
	flagWorkers  int
	flagResume   bool
	flagStudents []string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "reconcile",
		Short:        "Reconcile derived student fields: pauses, streaks, level and phase",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE:         runReconcile,
	}

	f := cmd.Flags()
	f.BoolVar(&flagDryRun, "dry-run", false, "report differences without writing")
	f.BoolVar(&flagApply, "apply", false, "write corrections")
	f.StringVar(&flagConfig, "config", "", "optional TOML config file")
	f.IntVar(&flagWorkers, "workers", 1, "students processed in parallel (default from RECONCILE_WORKERS)")
	f.BoolVar(&flagResume, "resume", false, "continue phases from saved checkpoints (needs Redis)")
	f.StringArrayVar(&flagStudents, "student", nil, "restrict the run to a student id (repeatable)")

	cmd.MarkFlagsMutuallyExclusive("dry-run", "apply")
	cmd.MarkFlagsOneRequired("dry-run", "apply")

	return cmd
}

// runReconcile собирает зависимости, выполняет прогон и печатает отчёт.
// Ошибки отдельных студентов не меняют код выхода.
func runReconcile(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := setupLogger(cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub, err := buildApp(ctx, cfg, log)
	if err != nil {
		log.Error("setup failed", "error", err)
		return err
	}
	defer hub.Close()

	workers := cfg.Reconcile.Workers
	if cmd.Flags().Changed("workers") {
		workers = flagWorkers
	}
	if flagResume && hub.checkpoints == nil {
		log.Warn("--resume ignored: checkpoints need Redis")
	}

	report, err := hub.driver.Run(ctx, reconcile.Options{
		DryRun:     flagDryRun,
		Workers:    workers,
		Resume:     flagResume,
		StudentIDs: flagStudents,
	})
	if report != nil {
		printReport(cmd.OutOrStdout(), report)
	}
	if err != nil {
		log.Error("reconciliation failed", "error", err)
		return err
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// OUTPUT
// ══════════════════════════════════════════════════════════════════════════════

// printReport печатает строку итога на этап, а в dry-run ещё и расхождения.
func printReport(w io.Writer, r *reconcile.Report) {
	mode := "apply"
	if r.DryRun {
		mode = "dry-run"
	}
	fmt.Fprintf(w, "run %s (%s)\n", r.RunID, mode)

	for _, p := range r.Phases() {
		fmt.Fprintln(w, p.Report.Summary(p.Phase))
		if !r.DryRun {
			continue
		}
		for _, d := range p.Report.Diffs {
			fmt.Fprintf(w, "  %s %s: %s -> %s\n", d.StudentID, d.Field, d.From, d.To)
		}
		if p.Report.DiffsTruncated > 0 {
			fmt.Fprintf(w, "  ... %d more\n", p.Report.DiffsTruncated)
		}
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// LOGGING
// ══════════════════════════════════════════════════════════════════════════════

// setupLogger настраивает структурированный логгер.
func setupLogger(cfg *config.Config) *slog.Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: parseLevel(cfg.Observability.LogLevel),
	}
	if cfg.App.Debug {
		opts.Level = slog.LevelDebug
	}

	format := cfg.Observability.LogFormat
	if format == "" {
		format = "text"
		if cfg.IsProduction() {
			format = "json"
		}
	}

	// Логи идут в stderr, отчёт в stdout.
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	log := slog.New(handler).With("app", cfg.App.Name, "env", string(cfg.App.Environment))
	slog.SetDefault(log)

	return log
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
