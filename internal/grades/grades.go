// Package grades holds the records extracted from the portal and the snapshot
// that one extraction pass produces.
package grades

import (
	"strings"
)

const (
	// DefaultCoefficient is used when the source does not state a coefficient.
	DefaultCoefficient = "1"
	// NoAverage is the unit average until the portal publishes one.
	NoAverage = "-"
	// UngroupedUnit collects subjects met before any unit header in a unit-structured pass.
	UngroupedUnit = "Autres"
)

var pendingMarkers = map[string]struct{}{
	"":           {},
	"-":          {},
	"—":          {},
	"–":          {},
	"pending":    {},
	"attente":    {},
	"en attente": {},
	"n/a":        {},
}

// IsPending reports whether grade is a "not yet published" sentinel.
func IsPending(grade string) bool {
	key := strings.ToLower(strings.Join(strings.Fields(grade), " "))
	_, ok := pendingMarkers[key]
	return ok
}

// SameGrade compares two grades, every sentinel is equal to every other sentinel.
func SameGrade(a, b string) bool {
	if IsPending(a) || IsPending(b) {
		return IsPending(a) && IsPending(b)
	}
	return strings.TrimSpace(a) == strings.TrimSpace(b)
}

var headerTokens = map[string]struct{}{
	"matière":  {},
	"matiere":  {},
	"matières": {},
	"matieres": {},
	"subject":  {},
	"subjects": {},
}

// IsHeader reports whether name is the column header of the subject column.
func IsHeader(name string) bool {
	_, ok := headerTokens[strings.ToLower(strings.TrimSpace(name))]
	return ok
}

// Record is a single graded subject.
type Record struct {
	// Label is the cell text as captured, before any cleanup.
	Label       string
	Name        string
	Grade       string
	Coefficient string
}

func (r Record) Pending() bool {
	return IsPending(r.Grade)
}

// Unit is a teaching unit (UE) and the subjects it groups.
type Unit struct {
	Code     string
	Average  string
	Subjects []Record
}

// Subject returns the subject of the unit with the given name.
func (u Unit) Subject(name string) (Record, bool) {
	for _, s := range u.Subjects {
		if s.Name == name {
			return s, true
		}
	}
	return Record{}, false
}

func (u *Unit) put(r Record) {
	for i, s := range u.Subjects {
		if s.Name == r.Name {
			u.Subjects[i] = r
			return
		}
	}
	u.Subjects = append(u.Subjects, r)
}

type Kind int

const (
	KindFlat Kind = iota
	KindUnits
)

func (k Kind) String() string {
	if k == KindUnits {
		return "units"
	}
	return "flat"
}

// Snapshot is the complete set of records of one pass, either flat (Records)
// or grouped by teaching unit (Units) depending on Kind.
type Snapshot struct {
	Kind    Kind
	Records []Record
	Units   []Unit
}

// Entry is a record together with the code of the unit owning it, Unit is empty
// for flat snapshots.
type Entry struct {
	Unit string
	Record
}

// Entries lists every record in insertion order.
func (s Snapshot) Entries() []Entry {
	var out []Entry
	if s.Kind == KindUnits {
		for _, u := range s.Units {
			for _, r := range u.Subjects {
				out = append(out, Entry{Unit: u.Code, Record: r})
			}
		}
		return out
	}
	for _, r := range s.Records {
		out = append(out, Entry{Record: r})
	}
	return out
}

func (s Snapshot) Len() int {
	if s.Kind == KindUnits {
		n := 0
		for _, u := range s.Units {
			n += len(u.Subjects)
		}
		return n
	}
	return len(s.Records)
}

func (s Snapshot) Empty() bool {
	return s.Len() == 0
}

// Available counts the records that carry a published grade.
func (s Snapshot) Available() int {
	n := 0
	for _, e := range s.Entries() {
		if !e.Pending() {
			n++
		}
	}
	return n
}

// Unit returns the unit with the given code.
func (s Snapshot) Unit(code string) (Unit, bool) {
	for _, u := range s.Units {
		if u.Code == code {
			return u, true
		}
	}
	return Unit{}, false
}

// Equal compares two snapshots including order, labels and sentinel spelling.
func (s Snapshot) Equal(other Snapshot) bool {
	if s.Kind != other.Kind {
		return false
	}
	if s.Kind == KindFlat {
		return equalRecords(s.Records, other.Records)
	}
	if len(s.Units) != len(other.Units) {
		return false
	}
	for i, u := range s.Units {
		o := other.Units[i]
		if u.Code != o.Code || u.Average != o.Average || !equalRecords(u.Subjects, o.Subjects) {
			return false
		}
	}
	return true
}

func equalRecords(a, b []Record) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
