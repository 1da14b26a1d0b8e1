package grades

import (
	"strings"

	"gradewatch/internal/normalize"
)

// NewRecord builds a record out of a raw label, the name and coefficient are
// derived from the label, hint is used when the label carries no coefficient.
func NewRecord(label, grade, hint string) Record {
	label = strings.Join(strings.Fields(label), " ")
	name, coef, found := normalize.Split(label)
	if !found && strings.TrimSpace(hint) != "" {
		coef = strings.TrimSpace(hint)
	}
	return Record{
		Label:       label,
		Name:        name,
		Grade:       strings.TrimSpace(grade),
		Coefficient: coef,
	}
}

// Builder assembles the snapshot of one extraction pass. Records put after a
// unit was opened belong to that unit, a pass that opens no unit stays flat.
type Builder struct {
	flat    []Record
	units   []Unit
	current int
}

func NewBuilder() *Builder {
	return &Builder{current: -1}
}

// OpenUnit starts (or resumes, when the code was already seen) a unit context.
func (b *Builder) OpenUnit(code string) {
	code = strings.TrimSpace(code)
	for i, u := range b.units {
		if u.Code == code {
			b.current = i
			return
		}
	}
	b.units = append(b.units, Unit{Code: code, Average: NoAverage})
	b.current = len(b.units) - 1
}

// InUnit reports whether a unit context is open.
func (b *Builder) InUnit() bool {
	return b.current >= 0
}

// SetAverage sets the average of the open unit, it is a no-op outside of one.
func (b *Builder) SetAverage(average string) {
	average = strings.TrimSpace(average)
	if b.current < 0 || average == "" {
		return
	}
	b.units[b.current].Average = average
}

// Put adds r, discarding header rows and nameless records. A later record with
// the same name replaces the earlier one in place. It reports whether r was kept.
func (b *Builder) Put(r Record) bool {
	if strings.TrimSpace(r.Name) == "" || IsHeader(r.Name) || IsHeader(r.Label) {
		return false
	}
	if b.current >= 0 {
		b.units[b.current].put(r)
		return true
	}
	for i, f := range b.flat {
		if f.Name == r.Name {
			b.flat[i] = r
			return true
		}
	}
	b.flat = append(b.flat, r)
	return true
}

// Snapshot returns a fresh snapshot. Units without subjects are dropped, and the
// pass stays flat when none is left.
func (b *Builder) Snapshot() Snapshot {
	var units []Unit
	for _, u := range b.units {
		if len(u.Subjects) == 0 {
			continue
		}
		u.Subjects = append([]Record(nil), u.Subjects...)
		units = append(units, u)
	}
	if len(units) == 0 {
		return Snapshot{Kind: KindFlat, Records: append([]Record(nil), b.flat...)}
	}

	if len(b.flat) > 0 {
		units = append([]Unit{{
			Code:     UngroupedUnit,
			Average:  NoAverage,
			Subjects: append([]Record(nil), b.flat...),
		}}, units...)
	}
	return Snapshot{Kind: KindUnits, Units: units}
}
