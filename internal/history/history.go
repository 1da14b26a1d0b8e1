// Package history keeps a journal of every change that was notified.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"gradewatch/internal/assert"
	"gradewatch/internal/chrono"
	"gradewatch/internal/diff"
)

// Entry is a journaled change.
type Entry struct {
	ID int64
	At time.Time
	diff.Event
}

type Journal struct {
	db *sql.DB
}

// NewJournal creates the journal tables if they do not exist yet.
func NewJournal(ctx context.Context, db *sql.DB) (Journal, error) {
	assert.NotNil(db, "db")

	_, err := db.ExecContext(ctx, Schema)
	if err != nil {
		return Journal{}, fmt.Errorf("create journal schema: %w", err)
	}
	return Journal{db: db}, nil
}

func (j Journal) Close() error {
	return j.db.Close()
}

// Record appends events, all or nothing.
func (j Journal) Record(ctx context.Context, at time.Time, events []diff.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `insert into event (
		notified_at, category, unit, subject, label, old_grade, new_grade, coefficient
	) values (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, ev := range events {
		_, err = stmt.ExecContext(
			ctx,
			at.Unix(),
			string(ev.Category),
			ev.Unit,
			ev.Subject,
			ev.Label,
			ev.OldGrade,
			ev.NewGrade,
			ev.Coefficient,
		)
		if err != nil {
			return fmt.Errorf("insert %q: %w", ev.Subject, err)
		}
	}
	return tx.Commit()
}

// Recent returns at most limit entries, newest first.
func (j Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx, `select
		id, notified_at, category, unit, subject, label, old_grade, new_grade, coefficient
	from event
	order by notified_at desc, id desc
	limit ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var at int64
		var category string
		err := rows.Scan(
			&e.ID,
			&at,
			&category,
			&e.Unit,
			&e.Subject,
			&e.Label,
			&e.OldGrade,
			&e.NewGrade,
			&e.Coefficient,
		)
		if err != nil {
			return nil, err
		}
		e.At = time.Unix(at, 0).In(chrono.Paris())
		e.Category = diff.Category(category)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
