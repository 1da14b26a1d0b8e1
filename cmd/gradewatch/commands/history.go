package commands

import (
	"fmt"

	"gradewatch/internal/serviceutil"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var historyLimit int

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "The number of entries to print.")
	rootCmd.AddCommand(historyCmd)
}

var historyCmd = &cobra.Command{
	Use:   "history [-n <limit>]",
	Short: "Prints the latest notified changes.",
	Run: func(cmd *cobra.Command, args []string) {
		journal, db, err := openJournal(cmd.Context())
		if err != nil {
			serviceutil.Fatal("failed to open history", err)
		}
		if journal == nil {
			fmt.Println("history is disabled, set history.file in the configuration")
			return
		}
		defer db.Close()

		entries, err := journal.Recent(cmd.Context(), historyLimit)
		if err != nil {
			serviceutil.Fatal("failed to read history", err)
		}

		t := newTable(table.Row{"Date", "Change", "UE", "Subject", "Old", "New"})
		for _, e := range entries {
			t.AppendRow(table.Row{e.At.Format("2006-01-02 15:04"), e.Category, e.Unit, e.Subject, e.OldGrade, e.NewGrade})
		}
		t.Render()
	},
}
