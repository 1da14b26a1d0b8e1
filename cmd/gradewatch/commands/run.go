package commands

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"gradewatch/internal/bot"
	"gradewatch/internal/chrono"
	"gradewatch/internal/pipeline"
	"gradewatch/internal/serviceutil"
	"gradewatch/internal/telemetry"

	"github.com/spf13/cobra"
)

var noBot bool

func init() {
	runCmd.Flags().BoolVar(&noBot, "no-bot", false, "Only run the scheduled checks, do not answer Telegram commands.")
	rootCmd.AddCommand(runCmd)
}

func runScheduled(ctx context.Context, p *pipeline.Pipeline) {
	report, err := p.RunCycle(ctx)
	if errors.Is(err, pipeline.ErrCycleInProgress) {
		slog.Info("skipping check, the previous one is still running")
		return
	}
	if err != nil {
		slog.Warn("check failed", "err", err)
		return
	}
	slog.Info(
		"check done",
		"strategy", report.Strategy,
		"records", report.Snapshot.Len(),
		"events", len(report.Events),
		"saved", report.Saved,
	)
}

var runCmd = &cobra.Command{
	Use:   "run [--no-bot]",
	Short: "Checks the grades on a schedule and answers Telegram commands until interrupted.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		if cfg.Telemetry.Enabled() {
			t, err := telemetry.Setup(ctx, "gradewatch", cfg.Telemetry)
			if err != nil {
				serviceutil.Fatal("failed to setup telemetry", err)
			}
			defer t.Shutdown(context.Background())
			telemetry.InstrumentPerfStats(ctx, time.Second*30)
		}

		a, err := newApp(ctx)
		if err != nil {
			serviceutil.Fatal("failed to initialize", err)
		}
		defer a.Close()

		cron := chrono.NewStandardCron(a.tel)
		err = cron.Cron(cfg.Schedule, func() {
			runScheduled(ctx, a.pipeline)
		})
		if err != nil {
			serviceutil.Fatal("invalid schedule", err)
		}
		cron.Start()
		defer cron.Stop()

		first := time.AfterFunc(cfg.FirstCheck(), func() {
			runScheduled(ctx, a.pipeline)
		})
		defer first.Stop()

		if !noBot {
			opts := bot.Options{}
			if a.journal != nil {
				opts.History = a.journal
			}
			b := bot.NewBot(a.telegram, cfg.Telegram.ChatID, a.store, a.pipeline, a.tel, opts)
			go b.Run(ctx)
		}

		slog.Info("watching grades", "schedule", cfg.Schedule, "cache", cfg.Cache, "first_check", cfg.FirstCheck())
		<-ctx.Done()
	},
}
