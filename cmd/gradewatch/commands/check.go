package commands

import (
	"fmt"

	"gradewatch/internal/diff"
	"gradewatch/internal/serviceutil"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(checkCmd)
}

func printEvents(events []diff.Event) {
	t := newTable(table.Row{"Change", "UE", "Subject", "Coef", "Old", "New"})
	for _, ev := range events {
		t.AppendRow(table.Row{ev.Category, ev.Unit, ev.Subject, ev.Coefficient, ev.OldGrade, ev.NewGrade})
	}
	t.Render()
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Runs a single check: fetches the grades, notifies the changes and updates the cache.",
	Run: func(cmd *cobra.Command, args []string) {
		a, err := newApp(cmd.Context())
		if err != nil {
			serviceutil.Fatal("failed to initialize", err)
		}
		defer a.Close()

		report, err := a.pipeline.RunCycle(cmd.Context())
		if err != nil {
			serviceutil.Fatal("check failed", err)
		}
		if report.Strategy == "" {
			fmt.Println("no grades found on the page, the cache was left untouched")
			return
		}

		fmt.Printf("%d records (%s), %d changes\n", report.Snapshot.Len(), report.Strategy, len(report.Events))
		if len(report.Events) > 0 {
			printEvents(report.Events)
		}
	},
}
