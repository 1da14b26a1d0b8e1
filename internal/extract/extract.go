// Package extract reads the grade records out of the portal's grade tables.
//
// The portal changed its table layout several times, so extraction is an
// ordered list of strategies: the first one producing at least one record wins
// and the others are never consulted, which keeps records of incompatible
// layouts from being mixed in one snapshot.
package extract

import (
	"regexp"
	"strings"

	"gradewatch/internal/grades"
)

// UnitPrefix starts the single-cell row announcing a teaching unit.
const UnitPrefix = "UE-"

const (
	StrategyNested   = "nested-table"
	StrategyFlat     = "flat-table"
	StrategyLabel    = "label-coefficient"
	StrategyFreeText = "free-text"
)

// Strategy turns a document into a snapshot, an empty snapshot means the
// layout was not recognized.
type Strategy struct {
	Name    string
	Extract func(doc Document) grades.Snapshot
}

// Strategies is the default strategy list in priority order.
var Strategies = []Strategy{
	{Name: StrategyNested, Extract: nestedTables},
	{Name: StrategyFlat, Extract: flatTables},
	{Name: StrategyLabel, Extract: labelCoefficient},
	{Name: StrategyFreeText, Extract: freeText},
}

type Result struct {
	Snapshot grades.Snapshot
	// Strategy is the name of the winning strategy, "" when none produced a record.
	Strategy string
}

func (r Result) Empty() bool {
	return r.Strategy == ""
}

// Extract runs the default strategies.
func Extract(doc Document) Result {
	return Run(doc, Strategies)
}

// Run tries strategies in order and returns the first non-empty snapshot.
func Run(doc Document, strategies []Strategy) Result {
	if doc == nil {
		return Result{Snapshot: grades.Snapshot{Kind: grades.KindFlat}}
	}
	for _, s := range strategies {
		snap := s.Extract(doc)
		if !snap.Empty() {
			return Result{Snapshot: snap, Strategy: s.Name}
		}
	}
	return Result{Snapshot: grades.Snapshot{Kind: grades.KindFlat}}
}

var averageLabel = regexp.MustCompile(`(?i)moyenne|average`)

// nestedTables reads every row of every table found inside a table cell, at
// any depth. Rows of the top-level tables themselves are page layout.
func nestedTables(doc Document) grades.Snapshot {
	b := grades.NewBuilder()
	var visit func(t Table, nested bool)
	visit = func(t Table, nested bool) {
		for _, row := range t.Rows() {
			if nested {
				nestedRow(b, row)
			}
			for i := 0; i < row.CellCount(); i++ {
				for _, sub := range row.NestedTables(i) {
					visit(sub, true)
				}
			}
		}
	}
	for _, t := range doc.Tables() {
		visit(t, false)
	}
	return b.Snapshot()
}

func nestedRow(b *grades.Builder, row Row) {
	switch n := row.CellCount(); {
	case n >= 3:
		b.Put(grades.NewRecord(row.CellText(1), row.CellText(2), ""))
	case n == 1:
		text := strings.TrimSpace(row.CellText(0))
		if strings.HasPrefix(text, UnitPrefix) {
			b.OpenUnit(text)
		}
	case n == 2:
		if b.InUnit() && averageLabel.MatchString(row.CellText(0)) {
			b.SetAverage(row.CellText(1))
		}
	}
}

func flatTables(doc Document) grades.Snapshot {
	b := grades.NewBuilder()
	walkRows(doc, func(row Row) {
		if row.CellCount() < 3 {
			return
		}
		b.Put(grades.NewRecord(row.CellText(1), row.CellText(2), ""))
	})
	return b.Snapshot()
}

// "<label> - (<coef>)" optionally followed by a "(<qualifier>)" group.
var labelWithCoefficient = regexp.MustCompile(`^(.*?)\s*[-–—:]\s*\(\s*(\d+(?:[.,]\d+)?)\s*\)\s*(?:\([^()]*\)\s*)?$`)

func labelCoefficient(doc Document) grades.Snapshot {
	b := grades.NewBuilder()
	walkRows(doc, func(row Row) {
		n := row.CellCount()
		if n < 2 {
			return
		}
		label := row.CellText(0)
		groups := labelWithCoefficient.FindStringSubmatch(label)
		if groups == nil {
			return
		}
		grade := row.CellText(n - 1)
		if strings.TrimSpace(grade) == "" && n > 2 {
			grade = row.CellText(n - 2)
		}
		b.Put(grades.NewRecord(label, grade, groups[2]))
	})
	return b.Snapshot()
}

// "Electronique - (3) 14,5" in running text: a capitalized phrase, the
// coefficient, an optional qualifier and a grade token on the same line.
var freeTextRecord = regexp.MustCompile(
	`(\p{Lu}[\p{L}\p{M}\d'’ .]*?[\p{L}\d])\s*[-–—]\s*\(\s*(\d+(?:[.,]\d+)?)\s*\)(?:\s*\([^()\n]*\))?[ \t:|]*(\d{1,2}(?:[.,]\d{1,3})?|[A-F][+-]?|-)(?:[ \t]|$)`,
)

func freeText(doc Document) grades.Snapshot {
	b := grades.NewBuilder()
	for _, line := range strings.Split(doc.Text(), "\n") {
		for _, m := range freeTextRecord.FindAllStringSubmatch(line, -1) {
			b.Put(grades.NewRecord(m[1], m[3], m[2]))
		}
	}
	return b.Snapshot()
}
