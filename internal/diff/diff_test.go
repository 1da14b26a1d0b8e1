package diff

import (
	"testing"

	"gradewatch/internal/grades"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func rec(name, grade, coef string) grades.Record {
	return grades.Record{Label: name, Name: name, Grade: grade, Coefficient: coef}
}

func flat(records ...grades.Record) grades.Snapshot {
	return grades.Snapshot{Kind: grades.KindFlat, Records: records}
}

func units(us ...grades.Unit) grades.Snapshot {
	return grades.Snapshot{Kind: grades.KindUnits, Units: us}
}

func unit(code string, records ...grades.Record) grades.Unit {
	return grades.Unit{Code: code, Average: grades.NoAverage, Subjects: records}
}

func TestComputeIdempotent(t *testing.T) {
	for _, snap := range []grades.Snapshot{
		{},
		flat(rec("Electronique", "14,5", "3"), rec("Anglais", "-", "1")),
		units(
			unit("UE-GEC-01", rec("Analyse", "12", "2"), rec("Algèbre", "", "1")),
			unit("UE-LANG", rec("Analyse", "8", "1")),
		),
	} {
		require.Empty(t, Compute(snap, snap))
	}
}

func TestComputePublished(t *testing.T) {
	old := flat(rec("Electronique", "-", "3"), rec("Physique", "en attente", "2"))
	current := flat(
		rec("Electronique", "14,5", "3"),
		rec("Physique", "11", "2"),
		rec("Chimie", "9", "1"),
	)

	expected := []Event{
		{Category: Published, Subject: "Electronique", Label: "Electronique", OldGrade: "-", NewGrade: "14,5", Coefficient: "3"},
		{Category: Published, Subject: "Physique", Label: "Physique", OldGrade: "en attente", NewGrade: "11", Coefficient: "2"},
		{Category: Published, Subject: "Chimie", Label: "Chimie", NewGrade: "9", Coefficient: "1"},
	}
	if diff := cmp.Diff(expected, Compute(old, current)); diff != "" {
		t.Fatal(diff)
	}
}

func TestComputeUpdated(t *testing.T) {
	old := flat(rec("Electronique", "12", "3"), rec("Anglais", "15", "1"))
	current := flat(rec("Electronique", "13", "3"), rec("Anglais", "15", "1"))

	events := Compute(old, current)
	require.Len(t, events, 1)
	require.Equal(t, Updated, events[0].Category)
	require.Equal(t, "12", events[0].OldGrade)
	require.Equal(t, "13", events[0].NewGrade)
}

func TestComputeIgnoresSentinels(t *testing.T) {
	old := flat(rec("Electronique", "12", "3"), rec("Anglais", "", "1"))
	current := flat(rec("Electronique", "-", "3"), rec("Anglais", "pending", "1"), rec("Chimie", "N/A", "1"))

	require.Empty(t, Compute(old, current))
}

func TestComputeFromEmptyBaseline(t *testing.T) {
	current := units(unit("UE-1", rec("Analyse", "12", "1"), rec("Optique", "-", "1"), rec("Mécanique", "8", "2")))

	events := Compute(grades.Snapshot{}, current)
	require.Len(t, events, 2)
	for _, ev := range events {
		require.Equal(t, Published, ev.Category)
		require.Equal(t, "UE-1", ev.Unit)
	}
	require.Equal(t, "Analyse", events[0].Subject)
	require.Equal(t, "Mécanique", events[1].Subject)
}

func TestComputeUnitsKeyedByUnit(t *testing.T) {
	old := units(
		unit("UE-1", rec("Projet", "10", "1")),
		unit("UE-2", rec("Projet", "-", "1")),
	)
	current := units(
		unit("UE-1", rec("Projet", "10", "1")),
		unit("UE-2", rec("Projet", "16", "1")),
	)

	expected := []Event{
		{Category: Published, Unit: "UE-2", Subject: "Projet", Label: "Projet", OldGrade: "-", NewGrade: "16", Coefficient: "1"},
	}
	if diff := cmp.Diff(expected, Compute(old, current)); diff != "" {
		t.Fatal(diff)
	}
}

func TestComputeMixedShapesMatchByName(t *testing.T) {
	old := flat(rec("Analyse", "12", "2"), rec("Optique", "-", "1"))
	current := units(unit("UE-1", rec("Analyse", "12", "2"), rec("Optique", "14", "1")))

	events := Compute(old, current)
	require.Len(t, events, 1)
	require.Equal(t, "Optique", events[0].Subject)
	require.Equal(t, Published, events[0].Category)
}

// With name-only matching, the later unit owns a duplicated name.
func TestComputeDuplicateNameLaterUnitWins(t *testing.T) {
	old := units(
		unit("UE-1", rec("Projet", "10", "1")),
		unit("UE-2", rec("Projet", "-", "1")),
	)
	current := flat(rec("Projet", "10", "1"))

	events := Compute(old, current)
	require.Len(t, events, 1)
	require.Equal(t, Published, events[0].Category)
	require.Equal(t, "-", events[0].OldGrade)
}

func TestComputeKeepsNewOrder(t *testing.T) {
	old := flat(rec("A", "1", "1"), rec("B", "1", "1"), rec("C", "1", "1"))
	current := flat(rec("C", "2", "1"), rec("A", "2", "1"), rec("B", "2", "1"))

	var names []string
	for _, ev := range Compute(old, current) {
		names = append(names, ev.Subject)
	}
	require.Equal(t, []string{"C", "A", "B"}, names)
}

func TestCount(t *testing.T) {
	published, updated := Count([]Event{
		{Category: Published},
		{Category: Updated},
		{Category: Published},
	})
	require.Equal(t, 2, published)
	require.Equal(t, 1, updated)
}
