package migrate

import (
	"fmt"
	"slices"

	"go.uber.org/multierr"
)

// Catalog is the set of versioned tables an application declares. It is
// built once at startup and handed to the Engine.
type Catalog struct {
	tables map[string]*VersionedTable
	order  []string
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{tables: make(map[string]*VersionedTable)}
}

// Register validates and adds tables. Nothing is added if any table is
// invalid or already registered; all problems are reported together.
func (c *Catalog) Register(tables ...*VersionedTable) error {
	var errs error
	seen := make(map[string]bool, len(tables))
	for _, t := range tables {
		if err := t.Validate(); err != nil {
			errs = multierr.Append(errs, err)
		}
		if _, dup := c.tables[t.Name()]; dup || seen[t.Name()] {
			errs = multierr.Append(errs, fmt.Errorf("%w: %s", ErrDuplicateTable, t.Name()))
		}
		seen[t.Name()] = true
	}
	if errs != nil {
		return errs
	}

	for _, t := range tables {
		c.tables[t.Name()] = t
		c.order = append(c.order, t.Name())
	}
	return nil
}

// MustRegister is Register for package-level model declarations.
func (c *Catalog) MustRegister(tables ...*VersionedTable) {
	if err := c.Register(tables...); err != nil {
		panic(err)
	}
}

// Table returns the table registered under name.
func (c *Catalog) Table(name string) (*VersionedTable, bool) {
	t, ok := c.tables[name]
	return t, ok
}

// Tables returns all tables in registration order.
func (c *Catalog) Tables() []*VersionedTable {
	out := make([]*VersionedTable, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.tables[name])
	}
	return out
}

// Validate checks cross-table consistency: every foreign key target must
// be registered and the dependency graph must be acyclic.
func (c *Catalog) Validate() error {
	var errs error
	for _, name := range c.order {
		for _, dep := range c.tables[name].Definition.Dependencies() {
			if _, ok := c.tables[dep]; !ok {
				errs = multierr.Append(errs, fmt.Errorf("%w: %s references %s", ErrUnknownTable, name, dep))
			}
		}
	}
	if errs != nil {
		return errs
	}
	_, err := c.DependencyOrder()
	return err
}

// DependencyOrder returns names and, transitively, every table they
// reference, ordered so that each table follows the tables it depends on.
// With no names, all registered tables are ordered. Registration order
// breaks ties.
func (c *Catalog) DependencyOrder(names ...string) ([]string, error) {
	if len(names) == 0 {
		names = c.order
	}

	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(c.tables))
	var (
		order []string
		path  []string
	)

	var visit func(name string) error
	visit = func(name string) error {
		switch state[name] {
		case done:
			return nil
		case visiting:
			start := slices.Index(path, name)
			cycle := append(slices.Clone(path[start:]), name)
			return &CycleError{Path: cycle}
		}

		t, ok := c.tables[name]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownTable, name)
		}

		state[name] = visiting
		path = append(path, name)
		for _, dep := range t.Definition.Dependencies() {
			if err := visit(dep); err != nil {
				return err
			}
		}
		path = path[:len(path)-1]
		state[name] = done
		order = append(order, name)
		return nil
	}

	for _, name := range names {
		if err := visit(name); err != nil {
			return nil, err
		}
	}
	return order, nil
}
