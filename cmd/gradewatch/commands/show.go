package commands

import (
	"fmt"

	"gradewatch/internal/cache"
	"gradewatch/internal/format"
	"gradewatch/internal/grades"
	"gradewatch/internal/telemetry"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(showCmd)
}

func printSnapshot(snap grades.Snapshot) {
	t := newTable(table.Row{"UE", "Subject", "Grade", "Coef", "Label"})
	for _, e := range snap.Entries() {
		grade := e.Grade
		if e.Pending() {
			grade = "⏳"
		}
		t.AppendRow(table.Row{e.Unit, e.Name, grade, e.Coefficient, e.Label})
	}
	t.AppendFooter(table.Row{"", "", fmt.Sprintf("%d/%d", snap.Available(), snap.Len()), "", ""})
	t.Render()

	averages := format.Averages(snap)
	if len(averages) == 0 {
		return
	}
	avg := newTable(table.Row{"UE", "Average", "Grades"})
	for _, a := range averages {
		avg.AppendRow(table.Row{a.Unit, fmt.Sprintf("%.2f", a.Value), a.Count})
	}
	avg.Render()
}

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Prints the cached grades.",
	Run: func(cmd *cobra.Command, args []string) {
		snap := cache.NewFileStore(cfg.Cache, telemetry.SlogAPI{}).Load(cmd.Context())
		if snap.Empty() {
			fmt.Printf("no grades cached in %s\n", cfg.Cache)
			return
		}
		printSnapshot(snap)
	},
}
