// Command tabula manages the schema of the clinic database: it applies and
// reverts versioned migrations and generates tables and migration files from
// the mapped models.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/stokaro/tabula/cmd/generate"
	"github.com/stokaro/tabula/cmd/migrate"
	"github.com/stokaro/tabula/config"
)

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "tabula",
		Short: "Schema migrations and table generation for the clinic database",
		Long: `tabula applies, reverts and inspects versioned SQL migrations and generates
CREATE TABLE statements and migration files from the clinic models.

Connection settings come from flags, TABULA_* environment variables
(e.g. TABULA_DATABASE_URL) or a config file given with --config.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	config.RegisterFlags(rootCmd.PersistentFlags())
	load := config.NewLoader(rootCmd.PersistentFlags())

	rootCmd.AddCommand(migrate.NewMigrateCommand(load))
	rootCmd.AddCommand(generate.NewGenerateCommand(load))
	return rootCmd
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
