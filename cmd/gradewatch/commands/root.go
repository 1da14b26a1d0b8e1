package commands

import (
	"context"
	"fmt"
	"os"

	"gradewatch/internal/config"
	"gradewatch/internal/telemetry"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	configPath string
	envPath    string
	verbose    bool

	cfg config.Config
)

var rootCmd = &cobra.Command{
	Use:   "gradewatch",
	Short: "gradewatch watches the INSA extranet for new grades and reports them on Telegram.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath, envPath)
		if err != nil {
			return err
		}
		cfg = loaded
		telemetry.InitSlog(verbose || cfg.Verbose)
		return nil
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.json5", "The configuration file, <name>.local.json5 overrides it.")
	rootCmd.PersistentFlags().StringVar(&envPath, "env", ".env", "An optional .env file.")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logs.")
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newTable(header table.Row) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(header)
	t.SetStyle(table.StyleRounded)
	return t
}
