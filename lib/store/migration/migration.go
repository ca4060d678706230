// Package migration brings the relational schema to the latest revision before the service accepts traffic. An
// empty store is bootstrapped with an initial script; a live schema drifting from the declared models gets a new
// script generated from the difference. Scripts follow the golang-migrate layout (NNNNNN_title.up.sql and
// NNNNNN_title.down.sql) and are applied through golang-migrate. Down scripts are written but never applied.
package migration

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// Errors returned.
var (
	ErrUnreachable  = errors.New("migration: store not reachable")
	ErrHeadMismatch = errors.New("migration: current revision is not head")
)

// Script titles.
const (
	InitialTitle = "initial_migration"
	AutoTitle    = "auto_migration"
)

// Manager owns the migration lifecycle of one store.
type Manager struct {
	dir      string
	table    string
	declared Schema
	catalog  Catalog
	open     Opener
	probe    func(ctx context.Context) error
	timeout  time.Duration
	interval time.Duration
	log      zerolog.Logger
	counter  prometheus.Counter
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option { return func(m *Manager) { m.log = l } }

// WithWait sets the connectivity wait timeout and the interval between probes.
func WithWait(timeout, interval time.Duration) Option {
	return func(m *Manager) { m.timeout, m.interval = timeout, interval }
}

// WithDSN probes connectivity opening a fresh connection to dsn instead of going through the catalog.
func WithDSN(dsn string) Option {
	return func(m *Manager) { m.probe = func(ctx context.Context) error { return ping(ctx, dsn) } }
}

// WithCounter counts generated scripts.
func WithCounter(c prometheus.Counter) Option { return func(m *Manager) { m.counter = c } }

// New returns a manager for the scripts in dir, the version table named table and the declared models.
func New(dir, table string, declared Schema, catalog Catalog, open Opener, opts ...Option) *Manager {
	m := &Manager{
		dir:      dir,
		table:    table,
		declared: declared,
		catalog:  catalog,
		open:     open,
		timeout:  30 * time.Second,
		interval: time.Second,
		log:      zerolog.Nop(),
	}
	m.probe = catalog.Ping

	for _, o := range opts {
		o(m)
	}

	return m
}

// IsEmpty returns true if the store has no tables.
func (m *Manager) IsEmpty(ctx context.Context) (bool, error) {
	n, err := m.catalog.TableCount(ctx)
	if err != nil {
		return false, err
	}

	return n == 0, nil
}

// Changes returns the differences between the declared models and the live schema.
func (m *Manager) Changes(ctx context.Context) ([]Change, error) {
	live, err := m.catalog.Schema(ctx, m.table)
	if err != nil {
		return nil, err
	}

	return Diff(m.declared, live), nil
}

// HasDrift returns true if the live schema differs from the declared models.
func (m *Manager) HasDrift(ctx context.Context) (bool, error) {
	changes, err := m.Changes(ctx)
	if err != nil {
		return false, err
	}

	for _, c := range changes {
		m.log.Debug().Str("change", c.String()).Msg("model drift")
	}

	return len(changes) > 0, nil
}

// CurrentRevision returns the revision recorded in the store, false when none is.
func (m *Manager) CurrentRevision(_ context.Context) (uint, bool, error) {
	r, err := m.open()
	if err != nil {
		return 0, false, err
	}
	defer r.Close()

	return r.Version()
}

// HeadRevision returns the latest revision found in the script directory, false when there are no scripts.
func (m *Manager) HeadRevision() (uint, bool, error) {
	versions, err := scripts(m.dir)
	if err != nil {
		return 0, false, err
	}

	var head uint
	for _, v := range versions {
		if v > head {
			head = v
		}
	}

	return head, len(versions) > 0, nil
}

// EnsureVersionTable creates the version table when missing and seeds it with the head revision if it is empty. A
// populated table is never touched. The table has golang-migrate's layout (version bigint, dirty boolean).
func (m *Manager) EnsureVersionTable(ctx context.Context) (bool, error) {
	head, _, err := m.HeadRevision()
	if err != nil {
		return false, err
	}

	seeded, err := m.catalog.EnsureVersionTable(ctx, m.table, head)
	if err != nil {
		return false, fmt.Errorf("migration: %w", err)
	}

	if seeded {
		m.log.Info().Uint("revision", head).Msg("version table seeded")
	}

	return seeded, nil
}

// WaitUntilReachable probes the store every interval until it answers or timeout elapses.
func (m *Manager) WaitUntilReachable(ctx context.Context) bool {
	return waitFor(ctx, m.probe, m.timeout, m.interval, m.log)
}

// BootstrapOrUpdate brings the store to the head revision, generating a new script first if there are no
// scripts, the store is empty or the models drifted.
func (m *Manager) BootstrapOrUpdate(ctx context.Context) error {
	if !m.WaitUntilReachable(ctx) {
		m.log.Error().Dur("timeout", m.timeout).Msg("database connection timeout")

		return ErrUnreachable
	}

	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return fmt.Errorf("migration: creating %s: %w", m.dir, err)
	}

	head, found, err := m.HeadRevision()
	if err != nil {
		return fmt.Errorf("migration: reading scripts: %w", err)
	}
	// measure drift against the head schema
	if found {
		if err = m.up(); err != nil {
			return err
		}
	}

	empty, err := m.IsEmpty(ctx)
	if err != nil {
		return fmt.Errorf("migration: %w", err)
	}

	changes, err := m.Changes(ctx)
	if err != nil {
		return fmt.Errorf("migration: %w", err)
	}

	if !found || empty || len(changes) > 0 {
		title := AutoTitle

		switch {
		case !found:
			title = InitialTitle
			m.log.Info().Msg("no migrations found, creating initial migration")
		case empty:
			m.log.Info().Msg("empty database detected, creating migration")
		default:
			m.log.Info().Int("changes", len(changes)).Msg("detected model changes, creating new migration")
		}

		if head, err = m.generate(head+1, title, changes); err != nil {
			return err
		}
	} else {
		m.log.Info().Msg("no model changes detected")
	}

	m.log.Info().Msg("applying migrations")

	if err = m.up(); err != nil {
		return err
	}

	current, ok, err := m.CurrentRevision(ctx)
	if err != nil {
		return fmt.Errorf("migration: reading current revision: %w", err)
	}

	if !ok || current != head {
		return fmt.Errorf("%w: current %d, head %d", ErrHeadMismatch, current, head)
	}

	m.log.Info().Uint("revision", current).Msg("migrations applied")

	return nil
}

func (m *Manager) up() error {
	r, err := m.open()
	if err != nil {
		return err
	}
	defer r.Close()

	if err = r.Up(); err != nil {
		return fmt.Errorf("migration: applying scripts: %w", err)
	}

	return nil
}

func (m *Manager) generate(version uint, title string, changes []Change) (uint, error) {
	up, down := Script(changes)
	base := filepath.Join(m.dir, fmt.Sprintf("%06d_%s", version, title))

	if err := os.WriteFile(base+".up.sql", []byte(up), 0o644); err != nil {
		return 0, fmt.Errorf("migration: writing script: %w", err)
	}

	if err := os.WriteFile(base+".down.sql", []byte(down), 0o644); err != nil {
		return 0, fmt.Errorf("migration: writing script: %w", err)
	}

	if m.counter != nil {
		m.counter.Inc()
	}

	m.log.Info().Str("script", filepath.Base(base)).Msg("migration created")

	return version, nil
}

// WaitUntilReachable opens a fresh connection to dsn and runs SELECT 1 every interval until it succeeds or timeout
// elapses.
func WaitUntilReachable(ctx context.Context, dsn string, timeout, interval time.Duration, log zerolog.Logger) bool {
	return waitFor(ctx, func(ctx context.Context) error { return ping(ctx, dsn) }, timeout, interval, log)
}

func waitFor(ctx context.Context, probe func(context.Context) error, timeout, interval time.Duration,
	log zerolog.Logger) bool {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	log.Info().Dur("timeout", timeout).Msg("waiting for database connection")

	for {
		err := probe(ctx)
		if err == nil {
			log.Info().Msg("database connection established")

			return true
		}

		log.Warn().Err(err).Msg("connection test failed")

		select {
		case <-ctx.Done():
			return false
		case <-time.After(interval):
		}
	}
}

func ping(ctx context.Context, dsn string) error {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	_, err = db.ExecContext(ctx, "SELECT 1")

	return err
}
