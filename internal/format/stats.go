package format

import (
	"fmt"
	"strconv"
	"strings"

	"gradewatch/internal/grades"
)

// Average is the coefficient-weighted mean of the numeric grades of a unit.
type Average struct {
	Unit  string
	Value float64
	Count int
}

// ParseGrade reads a numeric grade, "14,5" and "14.5/20" are both accepted.
func ParseGrade(grade string) (float64, bool) {
	grade = strings.TrimSpace(grade)
	grade = strings.TrimSuffix(grade, "/20")
	grade = strings.ReplaceAll(strings.TrimSpace(grade), ",", ".")
	v, err := strconv.ParseFloat(grade, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func parseCoefficient(coef string) float64 {
	v, ok := ParseGrade(coef)
	if !ok || v <= 0 {
		return 1
	}
	return v
}

// Averages computes the per-unit averages of the available numeric grades, in
// unit order. Records of a flat snapshot are all counted under "Autres".
func Averages(s grades.Snapshot) []Average {
	type acc struct {
		sum, weight float64
		count       int
	}
	var order []string
	sums := map[string]*acc{}

	for _, e := range s.Entries() {
		if e.Pending() {
			continue
		}
		v, ok := ParseGrade(e.Grade)
		if !ok {
			continue
		}
		unit := e.Unit
		if unit == "" {
			unit = grades.UngroupedUnit
		}
		a, ok := sums[unit]
		if !ok {
			a = &acc{}
			sums[unit] = a
			order = append(order, unit)
		}
		w := parseCoefficient(e.Coefficient)
		a.sum += v * w
		a.weight += w
		a.count++
	}

	out := make([]Average, 0, len(order))
	for _, unit := range order {
		a := sums[unit]
		out = append(out, Average{
			Unit:  unit,
			Value: a.sum / a.weight,
			Count: a.count,
		})
	}
	return out
}

// Stats renders the per-unit averages.
func Stats(s grades.Snapshot) string {
	if s.Empty() {
		return "❌ Aucune donnée."
	}

	b := &strings.Builder{}
	header(b, "📈 *MOYENNES PAR UE*")
	averages := Averages(s)
	if len(averages) == 0 {
		b.WriteString("Aucune note disponible pour calculer les moyennes.")
		return b.String()
	}
	for _, a := range averages {
		fmt.Fprintf(b, "• %s : *%.2f/20* (%d notes)\n", Escape(a.Unit), a.Value, a.Count)
	}
	return strings.TrimRight(b.String(), "\n")
}
