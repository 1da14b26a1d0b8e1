package commands

import (
	"context"
	"database/sql"
	"fmt"

	"gradewatch/internal/cache"
	"gradewatch/internal/chrono"
	"gradewatch/internal/history"
	"gradewatch/internal/notify"
	"gradewatch/internal/pipeline"
	"gradewatch/internal/portal"
	"gradewatch/internal/telegram"
	"gradewatch/internal/telemetry"
)

// app holds the components shared by the commands that run cycles.
type app struct {
	tel      telemetry.API
	time     chrono.TimeAPI
	store    cache.FileStore
	telegram telegram.Client
	journal  *history.Journal
	pipeline *pipeline.Pipeline

	db *sql.DB
}

func (a app) Close() {
	if a.db != nil {
		a.db.Close()
	}
}

func openJournal(ctx context.Context) (*history.Journal, *sql.DB, error) {
	if !cfg.History.Enabled() {
		return nil, nil, nil
	}
	db, err := cfg.History.OpenDB()
	if err != nil {
		return nil, nil, fmt.Errorf("open history: %w", err)
	}
	journal, err := history.NewJournal(ctx, db)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return &journal, db, nil
}

func newApp(ctx context.Context) (app, error) {
	err := cfg.ValidateMonitoring()
	if err != nil {
		return app{}, err
	}

	tel := telemetry.SlogAPI{}
	a := app{
		tel:   tel,
		time:  chrono.NewStandardTime(),
		store: cache.NewFileStore(cfg.Cache, tel),
		telegram: telegram.NewClient(telegram.Options{
			Token:   cfg.Telegram.Token,
			BaseURL: cfg.Telegram.BaseURL,
		}, tel),
	}

	client, err := portal.NewClient(cfg.Portal.Options(), tel)
	if err != nil {
		return app{}, err
	}

	sinks := notify.Multi{notify.NewTelegramSink(a.telegram, cfg.Telegram.ChatID)}
	if cfg.Email.Enabled() {
		sinks = append(sinks, notify.NewEmailSink(cfg.Email))
	}

	opts := pipeline.Options{}
	a.journal, a.db, err = openJournal(ctx)
	if err != nil {
		return app{}, err
	}
	if a.journal != nil {
		opts.Journal = a.journal
	}

	a.pipeline = pipeline.NewPipeline(client, a.store, sinks, a.time, tel, opts)
	return a, nil
}
