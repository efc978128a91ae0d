package migrate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/thebtf/schemaflow/internal/db"
	"github.com/thebtf/schemaflow/internal/db/dialect"
)

// metadataVersion is the declared version of the version-store table.
const metadataVersion = 1

// Engine applies a Catalog to a database. Runs are sequential; two engines
// migrating the same database at once are not supported.
type Engine struct {
	sessions  db.SessionFactory
	store     db.VersionStore
	catalog   *Catalog
	dialect   dialect.Dialect
	rebuilder *TableRebuilder
	metadata  *VersionedTable
	log       zerolog.Logger
}

// NewEngine creates an Engine for catalog over sessions, recording versions
// in store.
func NewEngine(sessions db.SessionFactory, store db.VersionStore, catalog *Catalog, log zerolog.Logger) *Engine {
	log = log.With().Str("component", "migrate").Str("dialect", sessions.Dialect().Name()).Logger()
	return &Engine{
		sessions:  sessions,
		store:     store,
		catalog:   catalog,
		dialect:   sessions.Dialect(),
		rebuilder: NewTableRebuilder(sessions.Dialect(), log),
		metadata:  NewVersionedTable(store.Definition(), metadataVersion),
		log:       log,
	}
}

// Transition is one committed change to a table's version.
type Transition struct {
	Table string `json:"table"`
	From  int    `json:"from"`
	To    int    `json:"to"`
}

// Report summarizes a migration run.
type Report struct {
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	RunID      string       `json:"run_id"`
	Created    []string     `json:"created,omitempty"`
	Steps      []Transition `json:"steps,omitempty"`
}

// Changed reports whether the run created or upgraded anything.
func (r *Report) Changed() bool {
	return len(r.Created) > 0 || len(r.Steps) > 0
}

// TableStatus describes one managed table.
type TableStatus struct {
	Table    string `json:"table"`
	Declared int    `json:"declared"`
	Stored   int    `json:"stored"`
	Recorded bool   `json:"recorded"`
	Exists   bool   `json:"exists"`
	UpToDate bool   `json:"up_to_date"`
}

// UpgradeAll brings every catalog table to its declared version. The
// version-store table is handled first, then tables in dependency order.
// The first failure stops the run; tables already committed stay migrated.
// The returned report covers the work done up to that point.
func (e *Engine) UpgradeAll(ctx context.Context) (*Report, error) {
	return e.run(ctx, nil)
}

// Upgrade brings the named tables and everything they reference to their
// declared versions.
func (e *Engine) Upgrade(ctx context.Context, names ...string) (*Report, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: no table named", ErrUnknownTable)
	}
	return e.run(ctx, names)
}

func (e *Engine) run(ctx context.Context, names []string) (*Report, error) {
	report := &Report{RunID: uuid.NewString(), StartedAt: time.Now()}
	log := e.log.With().Str("run_id", report.RunID).Logger()
	defer func() { report.FinishedAt = time.Now() }()

	if _, clash := e.catalog.Table(e.store.Table()); clash {
		return report, fmt.Errorf("%w: %s is reserved for schema versions", ErrDuplicateTable, e.store.Table())
	}
	if err := e.catalog.Validate(); err != nil {
		return report, err
	}
	order, err := e.catalog.DependencyOrder(names...)
	if err != nil {
		return report, err
	}

	log.Info().Int("tables", len(order)).Msg("Starting migration run")

	if err := e.upgradeTable(ctx, log, e.metadata, report); err != nil {
		return report, err
	}
	for _, name := range order {
		t, _ := e.catalog.Table(name)
		if err := e.upgradeTable(ctx, log, t, report); err != nil {
			return report, err
		}
	}

	log.Info().
		Int("created", len(report.Created)).
		Int("steps", len(report.Steps)).
		Msg("Migration run complete")
	return report, nil
}

func (e *Engine) upgradeTable(ctx context.Context, log zerolog.Logger, t *VersionedTable, report *Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	name := t.Name()
	if !e.sessions.HasTable(ctx, name) {
		return e.create(ctx, log, t, report)
	}

	stored, ok, err := e.store.GetVersion(e.sessions.Session(ctx), name)
	if err != nil {
		return fmt.Errorf("read version of %s: %w", name, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrUntrackedTable, name)
	}

	switch {
	case stored == t.Version:
		log.Debug().Str("table", name).Int("version", stored).Msg("Table up to date")
		return nil
	case stored > t.Version:
		log.Warn().
			Str("table", name).
			Int("stored", stored).
			Int("declared", t.Version).
			Msg("Stored version is ahead of the declared model, leaving it alone")
		return nil
	}

	for from := stored; from < t.Version; from++ {
		if err := e.applyStep(ctx, log, t, from, report); err != nil {
			return err
		}
	}
	return nil
}

// create materializes the declared definition, runs the post-create hook
// and records the declared version in one transaction.
func (e *Engine) create(ctx context.Context, log zerolog.Logger, t *VersionedTable, report *Report) error {
	name := t.Name()
	err := e.sessions.Session(ctx).Transaction(func(tx *gorm.DB) error {
		stmts, err := e.dialect.CreateTable(t.Definition)
		if err != nil {
			return err
		}
		for _, stmt := range stmts {
			if err := tx.Exec(stmt).Error; err != nil {
				return err
			}
		}
		if hook, ok := t.step(0); ok {
			if err := hook(newUpgrader(tx, e.dialect, e.rebuilder, t.Definition, log)); err != nil {
				return err
			}
		}
		return e.store.SetVersion(tx, name, t.Version)
	})
	if err != nil {
		return &StepError{Table: name, From: 0, To: t.Version, Create: true, Err: err}
	}

	report.Created = append(report.Created, name)
	log.Info().Str("table", name).Int("version", t.Version).Msg("Created table")
	return nil
}

func (e *Engine) applyStep(ctx context.Context, log zerolog.Logger, t *VersionedTable, from int, report *Report) error {
	name := t.Name()
	to := from + 1

	fn, ok := t.step(from)
	if !ok || from < 1 {
		return &StepError{
			Table: name, From: from, To: to,
			Err: fmt.Errorf("%w: no step %d -> %d", ErrMissingUpgradeStep, from, to),
		}
	}

	guard, guarded := e.dialect.(dialect.RebuildGuard)

	start := time.Now()
	step := func(session *gorm.DB) error {
		return session.Transaction(func(tx *gorm.DB) error {
			if err := fn(newUpgrader(tx, e.dialect, e.rebuilder, t.Definition, log)); err != nil {
				return err
			}
			if guarded {
				if err := guard.VerifyStep(tx); err != nil {
					return err
				}
			}
			return e.store.SetVersion(tx, name, to)
		})
	}

	var err error
	if guarded {
		err = guard.GuardStep(e.sessions.Session(ctx), step)
	} else {
		err = step(e.sessions.Session(ctx))
	}
	if err != nil {
		log.Error().Err(err).Str("table", name).Int("from", from).Int("to", to).Msg("Version step failed")
		return &StepError{Table: name, From: from, To: to, Err: err}
	}

	report.Steps = append(report.Steps, Transition{Table: name, From: from, To: to})
	log.Info().
		Str("table", name).
		Int("from", from).
		Int("to", to).
		Dur("duration", time.Since(start)).
		Msg("Applied version step")
	return nil
}

// CheckAll reports every table, including the version-store table, whose
// stored version differs from the declared one. It never changes anything.
// A nil error means the schema is current; otherwise the error is an
// *OutOfDateError or a failure to read the store.
func (e *Engine) CheckAll(ctx context.Context) error {
	session := e.sessions.Session(ctx)

	var stale []string
	for _, t := range append([]*VersionedTable{e.metadata}, e.catalog.Tables()...) {
		ok, err := e.store.IsUpToDate(session, t.Name(), t.Version)
		if err != nil {
			return fmt.Errorf("check %s: %w", t.Name(), err)
		}
		if !ok {
			stale = append(stale, t.Name())
		}
	}
	if len(stale) > 0 {
		e.log.Warn().Strs("tables", stale).Msg("Schema out of date")
		return &OutOfDateError{Tables: stale}
	}
	return nil
}

// Status describes the version-store table and every catalog table in
// registration order.
func (e *Engine) Status(ctx context.Context) ([]TableStatus, error) {
	session := e.sessions.Session(ctx)

	versions, err := e.store.Versions(session)
	if err != nil && !errors.Is(err, db.ErrStoreUnavailable) {
		return nil, err
	}

	tables := append([]*VersionedTable{e.metadata}, e.catalog.Tables()...)
	out := make([]TableStatus, 0, len(tables))
	for _, t := range tables {
		stored, recorded := versions[t.Name()]
		s := TableStatus{
			Table:    t.Name(),
			Declared: t.Version,
			Stored:   stored,
			Recorded: recorded,
			Exists:   e.sessions.HasTable(ctx, t.Name()),
		}
		s.UpToDate = s.Exists && s.Recorded && s.Stored == s.Declared
		out = append(out, s)
	}
	return out, nil
}
