// Package format renders changes and snapshots as Telegram (legacy Markdown) messages.
package format

import (
	"fmt"
	"strings"

	"gradewatch/internal/diff"
	"gradewatch/internal/grades"
)

const divider = "━━━━━━━━━━━━━━━━━━━━"

const maxPendingName = 25

var markdownEscaper = strings.NewReplacer(
	`_`, `\_`,
	`*`, `\*`,
	"`", "\\`",
	`[`, `\[`,
)

// Escape escapes the characters legacy Markdown treats as entity delimiters.
func Escape(s string) string {
	return markdownEscaper.Replace(s)
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}

func header(b *strings.Builder, title string) {
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(divider)
	b.WriteString("\n\n")
}

// Changes renders the events of one cycle, an empty slice renders as "".
func Changes(events []diff.Event) string {
	if len(events) == 0 {
		return ""
	}

	b := &strings.Builder{}
	header(b, "🎉 *NOUVELLES NOTES !*")
	for _, ev := range events {
		name := Escape(ev.Subject)
		switch ev.Category {
		case diff.Updated:
			fmt.Fprintf(b, "🔄 *%s*\n", name)
			fmt.Fprintf(b, "      Note: %s → *%s* │ Coef: %s\n", Escape(ev.OldGrade), Escape(ev.NewGrade), ev.Coefficient)
		default:
			fmt.Fprintf(b, "📚 *%s*\n", name)
			fmt.Fprintf(b, "      Note: *%s* │ Coef: %s\n", Escape(ev.NewGrade), ev.Coefficient)
		}
		if ev.Unit != "" && ev.Unit != grades.UngroupedUnit {
			fmt.Fprintf(b, "      UE: %s\n", Escape(ev.Unit))
		}
		b.WriteString("\n")
	}

	published, updated := diff.Count(events)
	b.WriteString(divider)
	b.WriteString("\n")
	fmt.Fprintf(b, "📈 %d nouvelle(s), %d modifiée(s)", published, updated)
	return b.String()
}

func writeAvailable(b *strings.Builder, r grades.Record) {
	fmt.Fprintf(b, "📚 %s\n      Note: %s │ Coef: %s\n", Escape(r.Name), Escape(r.Grade), r.Coefficient)
}

// writeRecords lists the available records first, then the pending ones.
func writeRecords(b *strings.Builder, records []grades.Record) {
	var pending []string
	for _, r := range records {
		if r.Pending() {
			pending = append(pending, r.Name)
			continue
		}
		writeAvailable(b, r)
	}
	for _, name := range pending {
		fmt.Fprintf(b, "⏳ %s\n", Escape(name))
	}
}

// Listing renders the whole snapshot, grouped by unit when it has units.
func Listing(s grades.Snapshot) string {
	if s.Empty() {
		return "❌ Aucune note enregistrée."
	}

	b := &strings.Builder{}
	header(b, "📊 *VOS NOTES*")

	if s.Kind == grades.KindUnits {
		for _, u := range s.Units {
			fmt.Fprintf(b, "*%s*", Escape(u.Code))
			if !grades.IsPending(u.Average) {
				fmt.Fprintf(b, " (moyenne %s/20)", Escape(u.Average))
			}
			b.WriteString("\n")
			writeRecords(b, u.Subjects)
			b.WriteString("\n")
		}
	} else {
		writeRecords(b, s.Records)
		b.WriteString("\n")
	}

	available := s.Available()
	b.WriteString(divider)
	b.WriteString("\n")
	fmt.Fprintf(b, "⏳ En attente: %d matières\n", s.Len()-available)
	b.WriteString(divider)
	b.WriteString("\n")
	fmt.Fprintf(b, "📈 %d/%d notes disponibles", available, s.Len())
	return b.String()
}

// Pending lists the subjects that have no published grade yet.
func Pending(s grades.Snapshot) string {
	if s.Empty() {
		return "❌ Aucune donnée."
	}

	var pending []grades.Record
	for _, e := range s.Entries() {
		if e.Pending() {
			pending = append(pending, e.Record)
		}
	}
	if len(pending) == 0 {
		return "✅ Toutes les notes sont disponibles !"
	}

	b := &strings.Builder{}
	header(b, "⏳ *NOTES EN ATTENTE*")
	for _, r := range pending {
		fmt.Fprintf(b, "• %s (coef %s)\n", Escape(truncate(r.Name, maxPendingName)), r.Coefficient)
	}
	fmt.Fprintf(b, "\n📊 *%d* matières en attente", len(pending))
	return b.String()
}

// Units lists the teaching units with their published average and subjects.
func Units(s grades.Snapshot) string {
	if s.Empty() {
		return "❌ Aucune donnée."
	}
	if s.Kind != grades.KindUnits {
		return "❌ Aucune UE trouvée, les notes ne sont pas regroupées par UE."
	}

	b := &strings.Builder{}
	header(b, "📚 *Liste des UE*")
	for _, u := range s.Units {
		fmt.Fprintf(b, "*%s*\n", Escape(u.Code))
		fmt.Fprintf(b, "Moyenne UE : %s/20\n", Escape(u.Average))
		for _, r := range u.Subjects {
			grade := r.Grade
			if r.Pending() {
				grade = "⏳"
			}
			fmt.Fprintf(b, "  • %s : %s\n", Escape(r.Name), Escape(grade))
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// Subject renders a single record, for lookups of one subject.
func Subject(e grades.Entry) string {
	b := &strings.Builder{}
	fmt.Fprintf(b, "📚 *%s*\n", Escape(e.Name))
	if e.Unit != "" {
		fmt.Fprintf(b, "UE: %s\n", Escape(e.Unit))
	}
	grade := e.Grade
	if e.Pending() {
		grade = "en attente"
	}
	fmt.Fprintf(b, "Note: *%s* │ Coef: %s", Escape(grade), e.Coefficient)
	return b.String()
}
