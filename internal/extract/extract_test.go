package extract

import (
	"strings"
	"testing"

	"gradewatch/internal/grades"

	"github.com/stretchr/testify/require"
)

type fakeCell struct {
	text   string
	nested []fakeTable
}

type fakeRow []fakeCell

type fakeTable []fakeRow

type fakeDoc struct {
	tables []fakeTable
	text   string
}

func (d fakeDoc) Tables() []Table {
	out := make([]Table, len(d.tables))
	for i, t := range d.tables {
		out[i] = t
	}
	return out
}

func (d fakeDoc) Text() string { return d.text }

func (t fakeTable) Rows() []Row {
	out := make([]Row, len(t))
	for i, r := range t {
		out[i] = r
	}
	return out
}

func (r fakeRow) CellCount() int { return len(r) }

func (r fakeRow) CellText(i int) string {
	if i < 0 || i >= len(r) {
		return ""
	}
	return r[i].text
}

func (r fakeRow) NestedTables(i int) []Table {
	if i < 0 || i >= len(r) {
		return nil
	}
	out := make([]Table, len(r[i].nested))
	for j, t := range r[i].nested {
		out[j] = t
	}
	return out
}

func cells(texts ...string) fakeRow {
	row := make(fakeRow, len(texts))
	for i, t := range texts {
		row[i] = fakeCell{text: t}
	}
	return row
}

func holder(tables ...fakeTable) fakeRow {
	return fakeRow{{text: "", nested: tables}}
}

func TestNestedStrategyWithUnits(t *testing.T) {
	doc := fakeDoc{tables: []fakeTable{{
		holder(fakeTable{
			cells("UE-GEC-01 Mathématiques"),
			cells("Code", "Matière", "Note"),
			cells("MA1", "GEC-MA-01-Analyse - (3)", "12"),
			cells("MA2", "GEC-MA-02-Algèbre linéaire - (2)", "-"),
			cells("Moyenne UE", "12,00"),
		}),
		holder(fakeTable{
			cells("UE-GEC-02 Physique"),
			cells("PH1", "GEC-PH-01-Thermodynamique - (2)", "9,5"),
			cells("", ""),
		}),
	}}}

	res := Extract(doc)
	require.Equal(t, StrategyNested, res.Strategy)
	require.Equal(t, grades.KindUnits, res.Snapshot.Kind)
	require.Len(t, res.Snapshot.Units, 2)

	ue1 := res.Snapshot.Units[0]
	require.Equal(t, "UE-GEC-01 Mathématiques", ue1.Code)
	require.Equal(t, "12,00", ue1.Average)
	require.Len(t, ue1.Subjects, 2)
	require.Equal(t, "Analyse", ue1.Subjects[0].Name)
	require.Equal(t, "3", ue1.Subjects[0].Coefficient)
	require.Equal(t, "Algèbre linéaire", ue1.Subjects[1].Name)
	require.True(t, ue1.Subjects[1].Pending())

	ue2 := res.Snapshot.Units[1]
	require.Equal(t, grades.NoAverage, ue2.Average)
	require.Equal(t, "9,5", ue2.Subjects[0].Grade)
}

func TestNestedStrategyFlatWithoutUnits(t *testing.T) {
	doc := fakeDoc{tables: []fakeTable{{
		holder(fakeTable{
			cells("1", "STM-GE-01-Electronique - (3)", "14,5"),
			cells("2", "Stage-STI1 : stage en ingénierie-GE2", "-"),
		}),
	}}}

	res := Extract(doc)
	require.Equal(t, StrategyNested, res.Strategy)
	require.Equal(t, grades.KindFlat, res.Snapshot.Kind)
	require.Equal(t, "Electronique", res.Snapshot.Records[0].Name)
	require.Equal(t, "stage en ingénierie-GE2", res.Snapshot.Records[1].Name)
}

func TestNestedStrategyReadsDeeperTables(t *testing.T) {
	inner := fakeTable{
		cells("1", "GE-01-Electronique - (3)", "14,5"),
	}
	layout := fakeTable{
		holder(inner),
	}
	doc := fakeDoc{tables: []fakeTable{{holder(layout)}}}

	res := Extract(doc)
	require.Equal(t, StrategyNested, res.Strategy)
	require.Equal(t, 1, res.Snapshot.Len())
	require.Equal(t, "Electronique", res.Snapshot.Records[0].Name)
}

func TestNestedStrategyGradeCellWithDetailTable(t *testing.T) {
	detail := fakeTable{cells("détail")}
	doc := fakeDoc{tables: []fakeTable{{
		holder(fakeTable{
			cells("UE-GEC-01"),
			cells("STM-01", "STM-GE-01-Analyse - (3)", "12"),
			fakeRow{
				{text: "STM-02"},
				{text: "STM-GE-02-Physique - (2)"},
				{text: "14", nested: []fakeTable{detail}},
			},
		}),
	}}}

	res := Extract(doc)
	require.Equal(t, StrategyNested, res.Strategy)
	require.Equal(t, grades.KindUnits, res.Snapshot.Kind)
	require.Len(t, res.Snapshot.Units, 1)

	physique, ok := res.Snapshot.Units[0].Subject("Physique")
	require.True(t, ok)
	require.Equal(t, "14", physique.Grade)
	require.Equal(t, "2", physique.Coefficient)
	require.Equal(t, 2, res.Snapshot.Len())
}

func TestNestedStrategyWinsOverOthers(t *testing.T) {
	doc := fakeDoc{
		tables: []fakeTable{{
			cells("x", "Flat-Only - (2)", "10"),
			holder(fakeTable{
				cells("1", "GE-01-Electronique - (3)", "14,5"),
			}),
		}},
		text: "Mécanique - (2) 15",
	}

	res := Extract(doc)
	require.Equal(t, StrategyNested, res.Strategy)
	require.Equal(t, 1, res.Snapshot.Len())
	require.Equal(t, "Electronique", res.Snapshot.Records[0].Name)
}

func TestFlatStrategy(t *testing.T) {
	doc := fakeDoc{tables: []fakeTable{{
		cells("Code", "Matière", "Note"),
		cells("GE1", "GE-01-Electronique - (3)", "14,5"),
		cells("GE2", "GE-02-Automatique - (2)", ""),
		cells("GE1", "GE-01-Electronique - (3)", "15"),
		cells("short", "row"),
	}}}

	res := Extract(doc)
	require.Equal(t, StrategyFlat, res.Strategy)
	require.Equal(t, grades.KindFlat, res.Snapshot.Kind)
	require.Len(t, res.Snapshot.Records, 2)
	require.Equal(t, "15", res.Snapshot.Records[0].Grade)
	require.True(t, res.Snapshot.Records[1].Pending())
}

func TestLabelCoefficientStrategy(t *testing.T) {
	doc := fakeDoc{tables: []fakeTable{{
		cells("GE-01-Electronique - (3)", "14,5"),
		// the flat strategy sees an empty label here and drops the row
		cells("GE-02-Automatique - (1,5) (TP)", "", "12", ""),
		cells("Sans coefficient", "10"),
	}}}

	res := Extract(doc)
	require.Equal(t, StrategyLabel, res.Strategy)
	require.Len(t, res.Snapshot.Records, 2)

	first := res.Snapshot.Records[0]
	require.Equal(t, "Electronique", first.Name)
	require.Equal(t, "GE-01-Electronique - (3)", first.Label)
	require.Equal(t, "3", first.Coefficient)
	require.Equal(t, "14,5", first.Grade)

	second := res.Snapshot.Records[1]
	require.Equal(t, "Automatique", second.Name)
	require.Equal(t, "GE-02-Automatique - (1,5) (TP)", second.Label)
	require.Equal(t, "1,5", second.Coefficient)
	require.Equal(t, "12", second.Grade)
}

func TestFreeTextStrategy(t *testing.T) {
	doc := fakeDoc{text: strings.Join([]string{
		"Relevé de notes",
		"Electronique - (3) 14,5",
		"Analyse numérique - (1,5) (TD) : -",
		"Anglais - (2) B+ Physique - (2) 11",
	}, "\n")}

	res := Extract(doc)
	require.Equal(t, StrategyFreeText, res.Strategy)

	got := map[string]grades.Record{}
	for _, r := range res.Snapshot.Records {
		got[r.Name] = r
	}
	require.Len(t, got, 4)
	require.Equal(t, "14,5", got["Electronique"].Grade)
	require.Equal(t, "3", got["Electronique"].Coefficient)
	require.True(t, got["Analyse numérique"].Pending())
	require.Equal(t, "1,5", got["Analyse numérique"].Coefficient)
	require.Equal(t, "B+", got["Anglais"].Grade)
	require.Equal(t, "11", got["Physique"].Grade)
}

func TestExtractEmpty(t *testing.T) {
	res := Extract(fakeDoc{text: "Aucune note"})
	require.True(t, res.Empty())
	require.True(t, res.Snapshot.Empty())

	res = Extract(nil)
	require.True(t, res.Empty())
}

func TestRunRespectsPriority(t *testing.T) {
	calls := []string{}
	strategy := func(name string, snap grades.Snapshot) Strategy {
		return Strategy{Name: name, Extract: func(Document) grades.Snapshot {
			calls = append(calls, name)
			return snap
		}}
	}
	found := grades.Snapshot{Records: []grades.Record{grades.NewRecord("Analyse", "12", "")}}

	res := Run(fakeDoc{}, []Strategy{
		strategy("first", grades.Snapshot{}),
		strategy("second", found),
		strategy("third", found),
	})
	require.Equal(t, "second", res.Strategy)
	require.Equal(t, []string{"first", "second"}, calls)
}
