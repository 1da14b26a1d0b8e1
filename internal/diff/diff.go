// Package diff classifies what changed between two snapshots.
package diff

import (
	"strings"

	"gradewatch/internal/grades"
)

type Category string

const (
	// Published is a grade that appeared where there was none (or only a sentinel).
	Published Category = "published"
	// Updated is a published grade that was replaced by a different one.
	Updated Category = "updated"
)

// Event is a single change, Unit is empty when the new snapshot is flat.
type Event struct {
	Category    Category
	Unit        string
	Subject     string
	Label       string
	OldGrade    string
	NewGrade    string
	Coefficient string
}

type unitKey struct {
	unit    string
	subject string
}

// index finds the old record matching a new one.
type index struct {
	byUnit bool
	units  map[unitKey]grades.Record
	names  map[string]grades.Record
}

func newIndex(old grades.Snapshot, byUnit bool) index {
	idx := index{byUnit: byUnit}
	if byUnit {
		idx.units = make(map[unitKey]grades.Record)
	} else {
		idx.names = make(map[string]grades.Record)
	}
	for _, e := range old.Entries() {
		if byUnit {
			idx.units[unitKey{unit: e.Unit, subject: e.Name}] = e.Record
			continue
		}
		// a name owned by several units resolves to the last one
		idx.names[e.Name] = e.Record
	}
	return idx
}

func (idx index) lookup(e grades.Entry) (grades.Record, bool) {
	if idx.byUnit {
		r, ok := idx.units[unitKey{unit: e.Unit, subject: e.Name}]
		return r, ok
	}
	r, ok := idx.names[e.Name]
	return r, ok
}

// Compute lists the changes from old to current, in the iteration order of current.
// Records are matched by (unit, subject) when both snapshots are unit-structured
// and by subject name otherwise.
func Compute(old, current grades.Snapshot) []Event {
	idx := newIndex(old, old.Kind == grades.KindUnits && current.Kind == grades.KindUnits)

	var events []Event
	for _, e := range current.Entries() {
		if e.Pending() {
			continue
		}

		prev, found := idx.lookup(e)
		category := Published
		switch {
		case !found || prev.Pending():
		case grades.SameGrade(prev.Grade, e.Grade):
			continue
		default:
			category = Updated
		}

		ev := Event{
			Category:    category,
			Unit:        e.Unit,
			Subject:     e.Name,
			Label:       e.Label,
			NewGrade:    strings.TrimSpace(e.Grade),
			Coefficient: e.Coefficient,
		}
		if found {
			ev.OldGrade = strings.TrimSpace(prev.Grade)
		}
		events = append(events, ev)
	}
	return events
}

// Count returns the number of events of each category.
func Count(events []Event) (published, updated int) {
	for _, ev := range events {
		switch ev.Category {
		case Published:
			published++
		case Updated:
			updated++
		}
	}
	return published, updated
}
