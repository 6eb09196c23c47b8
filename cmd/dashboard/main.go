// Command dashboard serves the data-visualization dashboard over HTTP and
// previews its pages in the terminal.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "dashboard",
		Short: "Category pie, precipitation forecast and bio dashboard",
		Long: `dashboard serves a small data-visualization site: a category pie chart
read from CSV, a 14-day precipitation forecast from Open-Meteo (with demo data
when the API is unavailable) and a bio page.

Configuration is read from config/{ENV_NAME}.yaml (default dev).`,
		SilenceUsage: true,
	}
	root.AddCommand(newServeCmd())
	root.AddCommand(newPieCmd())
	root.AddCommand(newForecastCmd())
	root.AddCommand(newBioCmd())
	return root
}
