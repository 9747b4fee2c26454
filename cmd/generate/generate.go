package generate

import (
	"fmt"
	"strings"

	"github.com/go-extras/cobraflags"
	"github.com/spf13/cobra"

	"github.com/stokaro/tabula/config"
	"github.com/stokaro/tabula/core/platform"
	"github.com/stokaro/tabula/core/schemagen"
	"github.com/stokaro/tabula/dbschema"
	"github.com/stokaro/tabula/examples/medical"
	"github.com/stokaro/tabula/migration/generator"
)

// Schema generation flags
const (
	dialectFlag = "dialect"
)

// Migration generation flags
const (
	nameFlag      = "name"
	outputDirFlag = "output-dir"
	modelsFlag    = "models-dialect"
)

// NewGenerateCommand creates the generate command. load supplies the
// connection settings for the tables subcommand.
func NewGenerateCommand(load config.Loader) *cobra.Command {
	generateCmd := &cobra.Command{
		Use:   "generate [schema|tables|migration]",
		Short: "Generate schema from the clinic models or create migration files",
		Long: `Generate database schema from the clinic models or create migration files.

Available subcommands:
  schema     - Print CREATE TABLE statements of the models
  tables     - Create the tables of the models in the configured database
  migration  - Generate migration files, empty or creating the model tables

Examples:
  tabula generate schema                                  # All dialects
  tabula generate schema --dialect sqlite                 # One dialect
  tabula generate tables --db-url sqlite:clinic.db
  tabula generate migration --name add_allergies          # Empty migration files
  tabula generate migration --name init --models-dialect postgres`,
	}

	generateCmd.AddCommand(newSchemaCommand())
	generateCmd.AddCommand(newTablesCommand(load))
	generateCmd.AddCommand(newMigrationCommand())
	return generateCmd
}

func newSchemaCommand() *cobra.Command {
	flags := map[string]cobraflags.Flag{
		dialectFlag: &cobraflags.StringFlag{
			Name:  dialectFlag,
			Value: "",
			Usage: "Database dialect (postgres, mysql, mariadb, sqlite). If empty, generates for postgres, mysql and sqlite",
		},
	}

	schemaCmd := &cobra.Command{
		Use:   "schema",
		Short: "Print CREATE TABLE statements of the clinic models",
		Long: `Print the CREATE TABLE statements of the clinic models in foreign key
dependency order, for the given dialect or for every supported one.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return schemaCommand(cmd, flags[dialectFlag].GetString())
		},
	}

	cobraflags.RegisterMap(schemaCmd, flags)
	return schemaCmd
}

func schemaCommand(cmd *cobra.Command, dialect string) error {
	dialects := []string{platform.Postgres, platform.MySQL, platform.SQLite}
	if dialect != "" {
		d := platform.NormalizeDialect(dialect)
		if d == "" {
			return fmt.Errorf("unsupported dialect: %s", dialect)
		}
		dialects = []string{d}
	}

	out := cmd.OutOrStdout()
	models := medical.Models()
	for _, d := range dialects {
		gen := schemagen.NewGenerator(d).WithLogger(config.DefaultOptions().NewLogger(cmd.ErrOrStderr()))
		statements, err := gen.Statements(models)
		if err != nil {
			return fmt.Errorf("error generating schema: %w", err)
		}

		fmt.Fprintf(out, "=== %s SCHEMA ===\n", strings.ToUpper(d))
		fmt.Fprintln(out)
		for i, statement := range statements {
			fmt.Fprintf(out, "-- Table %d/%d\n", i+1, len(statements))
			fmt.Fprintln(out, statement)
			fmt.Fprintln(out)
		}
	}
	return nil
}

func newTablesCommand(load config.Loader) *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "Create the tables of the clinic models in the configured database",
		Long: `Create the tables of the clinic models with CREATE TABLE IF NOT EXISTS,
referenced tables first. Existing tables are left untouched.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts, err := load()
			if err != nil {
				return fmt.Errorf("error loading configuration: %w", err)
			}
			if err := opts.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			conn, err := dbschema.ConnectToDatabaseContext(cmd.Context(), opts.DatabaseURL, opts.ConnectOptions()...)
			if err != nil {
				return fmt.Errorf("error connecting to database: %w", err)
			}
			defer conn.Close()

			gen := schemagen.NewGenerator(conn.Dialect()).WithLogger(opts.NewLogger(cmd.ErrOrStderr()))
			if err := gen.Apply(cmd.Context(), conn, medical.Models()); err != nil {
				return fmt.Errorf("error creating tables: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Created %d tables\n", len(medical.Models()))
			return nil
		},
	}
}

func newMigrationCommand() *cobra.Command {
	flags := map[string]cobraflags.Flag{
		nameFlag: &cobraflags.StringFlag{
			Name:  nameFlag,
			Value: "",
			Usage: "Name for the migration (required)",
		},
		outputDirFlag: &cobraflags.StringFlag{
			Name:  outputDirFlag,
			Value: "./migrations",
			Usage: "Directory where migration files will be saved",
		},
		modelsFlag: &cobraflags.StringFlag{
			Name:  modelsFlag,
			Value: "",
			Usage: "When set, the migration creates the clinic model tables for this dialect instead of being empty",
		},
	}

	migrationCmd := &cobra.Command{
		Use:   "migration",
		Short: "Generate migration files",
		Long: `Generate up and down migration files with timestamp versions.

Without --models-dialect the files only carry a header, to be filled in by hand
with custom SQL operations or data migrations. With it, the up file creates the
tables of the clinic models and the down file drops them.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return migrationCommand(cmd,
				flags[nameFlag].GetString(),
				flags[outputDirFlag].GetString(),
				flags[modelsFlag].GetString())
		},
	}

	cobraflags.RegisterMap(migrationCmd, flags)
	return migrationCmd
}

func migrationCommand(cmd *cobra.Command, migrationName, outputDir, modelsDialect string) error {
	if migrationName == "" {
		return fmt.Errorf("migration name is required (use --name flag)")
	}

	out := cmd.OutOrStdout()
	opts := generator.GenerateMigrationOptions{
		MigrationName: migrationName,
		OutputDir:     outputDir,
		Logger:        config.DefaultOptions().NewLogger(cmd.ErrOrStderr()),
	}

	var (
		files *generator.MigrationFiles
		err   error
	)
	if modelsDialect == "" {
		fmt.Fprintf(out, "Generating empty migration: %s\n", migrationName)
		files, err = generator.GenerateEmptyMigration(opts)
	} else {
		opts.Dialect = platform.NormalizeDialect(modelsDialect)
		if opts.Dialect == "" {
			return fmt.Errorf("unsupported dialect: %s", modelsDialect)
		}
		opts.Models = medical.Models()
		fmt.Fprintf(out, "Generating %s migration from models: %s\n", opts.Dialect, migrationName)
		files, err = generator.GenerateMigration(opts)
	}
	if err != nil {
		return fmt.Errorf("error generating migration files: %w", err)
	}

	fmt.Fprintf(out, "Output directory: %s\n", outputDir)
	fmt.Fprintln(out, "Generated migration files:")
	fmt.Fprintf(out, "  UP:   %s\n", files.UpFile)
	fmt.Fprintf(out, "  DOWN: %s\n", files.DownFile)
	fmt.Fprintf(out, "  Version: %s\n", files.Version)
	return nil
}
