package commands

import (
	"fmt"
	"os"

	"gradewatch/internal/cache"
	"gradewatch/internal/extract"
	"gradewatch/internal/htmlsource"
	"gradewatch/internal/serviceutil"

	"github.com/spf13/cobra"
)

var extractJson bool

func init() {
	extractCmd.Flags().BoolVar(&extractJson, "json", false, "Print the snapshot in the cache file format.")
	rootCmd.AddCommand(extractCmd)
}

var extractCmd = &cobra.Command{
	Use:   "extract <page.html> [--json]",
	Short: "Extracts the grades of a saved grades page, without touching the cache.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		f, err := os.Open(args[0])
		if err != nil {
			serviceutil.Fatal("failed to open page", err)
		}
		defer f.Close()

		doc, err := htmlsource.Parse(f)
		if err != nil {
			serviceutil.Fatal("failed to parse page", err)
		}

		result := extract.Extract(doc)
		if result.Empty() {
			fmt.Fprintln(os.Stderr, "no strategy recognized the page")
			os.Exit(1)
		}
		if extractJson {
			os.Stdout.Write(cache.Encode(result.Snapshot))
			return
		}

		fmt.Printf("strategy: %s (%s)\n", result.Strategy, result.Snapshot.Kind)
		printSnapshot(result.Snapshot)
	},
}
