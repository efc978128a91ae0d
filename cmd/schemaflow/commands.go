package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gorm.io/gorm/logger"

	"github.com/thebtf/schemaflow/internal/accounts"
	"github.com/thebtf/schemaflow/internal/config"
	"github.com/thebtf/schemaflow/internal/db/dialect"
	gormstore "github.com/thebtf/schemaflow/internal/db/gorm"
	"github.com/thebtf/schemaflow/internal/migrate"
)

// exitOutOfDate is returned by check when the schema needs migrating.
const exitOutOfDate = 2

type options struct {
	driver   string
	dsn      string
	logLevel string
}

func newRootCommand() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "schemaflow",
		Short:         "Bring a database schema in line with the declared data model",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.driver, "driver", "", "database backend: postgres, mysql or sqlite")
	root.PersistentFlags().StringVar(&opts.dsn, "dsn", "", "database DSN; for sqlite a file path")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "supported log levels are trace, debug, info, warn and error")

	root.AddCommand(
		newMigrateCommand(opts),
		newCheckCommand(opts),
		newStatusCommand(opts),
	)
	return root
}

func newMigrateCommand(opts *options) *cobra.Command {
	var tables []string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create missing tables and apply pending version steps",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := opts.open()
			if err != nil {
				return err
			}
			defer env.close()

			var report *migrate.Report
			if len(tables) > 0 {
				report, err = env.engine.Upgrade(cmd.Context(), tables...)
			} else {
				report, err = env.engine.UpgradeAll(cmd.Context())
			}
			if report != nil {
				printReport(cmd.OutOrStdout(), report)
			}
			return err
		},
	}
	cmd.Flags().StringSliceVar(&tables, "table", nil, "only migrate these tables and their dependencies")
	return cmd
}

func newCheckCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Exit non-zero if any table is behind its declared version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := opts.open()
			if err != nil {
				return err
			}
			defer env.close()

			err = env.engine.CheckAll(cmd.Context())
			var stale *migrate.OutOfDateError
			if errors.As(err, &stale) {
				fmt.Fprintf(cmd.ErrOrStderr(), "schema out of date, run migrate first:\n  %s\n", strings.Join(stale.Tables, "\n  "))
				return &exitError{err: err, code: exitOutOfDate}
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
			return nil
		},
	}
}

func newStatusCommand(opts *options) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show declared and stored versions of every managed table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := opts.open()
			if err != nil {
				return err
			}
			defer env.close()

			tables, err := env.engine.Status(cmd.Context())
			if err != nil {
				return err
			}
			health := env.store.HealthCheck(cmd.Context())

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(struct {
					Health *gormstore.HealthInfo `json:"health"`
					Tables []migrate.TableStatus `json:"tables"`
				}{health, tables})
			}
			printStatus(cmd.OutOrStdout(), health, tables)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print status as JSON")
	return cmd
}

type environment struct {
	store  *gormstore.Store
	engine *migrate.Engine
}

func (e *environment) close() {
	if err := e.store.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close database")
	}
}

// open resolves the configuration, connects and builds the engine for the
// account model.
func (o *options) open() (*environment, error) {
	cfg := *config.Get()
	if o.driver != "" {
		cfg.Driver = o.driver
	}
	if o.dsn != "" {
		cfg.DSN = o.dsn
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("log level %q: %w", cfg.LogLevel, err)
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Driver == dialect.SQLite && cfg.DSN == config.DBPath() {
		if err := config.EnsureDataDir(); err != nil {
			return nil, err
		}
	}

	store, err := gormstore.NewStore(gormstore.Config{
		Driver:   cfg.Driver,
		DSN:      cfg.DSN,
		MaxConns: cfg.MaxConns,
		LogLevel: gormLogLevel(level),
	})
	if err != nil {
		return nil, err
	}

	catalog := migrate.NewCatalog()
	if err := accounts.Register(catalog); err != nil {
		_ = store.Close()
		return nil, err
	}

	versions := gormstore.NewSchemaStore(store.Dialect(), cfg.SchemaTable)
	return &environment{
		store:  store,
		engine: migrate.NewEngine(store, versions, catalog, log.Logger),
	}, nil
}

// gormLogLevel only lets GORM log statements when tracing.
func gormLogLevel(level zerolog.Level) logger.LogLevel {
	switch {
	case level <= zerolog.TraceLevel:
		return logger.Info
	case level <= zerolog.WarnLevel:
		return logger.Warn
	default:
		return logger.Error
	}
}

func printReport(w io.Writer, report *migrate.Report) {
	if !report.Changed() {
		fmt.Fprintln(w, "nothing to do")
		return
	}
	for _, name := range report.Created {
		fmt.Fprintf(w, "created  %s\n", name)
	}
	for _, step := range report.Steps {
		fmt.Fprintf(w, "upgraded %s %d -> %d\n", step.Table, step.From, step.To)
	}
	fmt.Fprintf(w, "run %s took %s\n", report.RunID, report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond))
}

func printStatus(w io.Writer, health *gormstore.HealthInfo, tables []migrate.TableStatus) {
	fmt.Fprintf(w, "database: %s (%s, %s)\n", health.Status, health.Dialect, health.QueryLatency)
	if health.Error != "" {
		fmt.Fprintf(w, "  error: %s\n", health.Error)
	}
	fmt.Fprintf(w, "%-24s %8s %8s  %s\n", "TABLE", "DECLARED", "STORED", "STATE")
	for _, t := range tables {
		stored := "-"
		if t.Recorded {
			stored = strconv.Itoa(t.Stored)
		}
		fmt.Fprintf(w, "%-24s %8d %8s  %s\n", t.Table, t.Declared, stored, tableState(t))
	}
}

func tableState(t migrate.TableStatus) string {
	switch {
	case t.UpToDate:
		return "ok"
	case !t.Exists && !t.Recorded:
		return "missing"
	case !t.Exists:
		return "missing (recorded)"
	case !t.Recorded:
		return "untracked"
	case t.Stored > t.Declared:
		return "ahead"
	default:
		return "pending"
	}
}
