package migration

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres" // registers the postgres:// driver
	"github.com/golang-migrate/migrate/v4/source"
	_ "github.com/golang-migrate/migrate/v4/source/file" // registers the file:// source
)

// Runner applies migration scripts.
type Runner interface {
	// Up applies every pending script. Having nothing to apply is not an error.
	Up() error
	// Version returns the recorded revision, false when there is none.
	Version() (uint, bool, error)
	Close() error
}

// Opener returns a Runner reading the scripts present in the directory at call time.
type Opener func() (Runner, error)

type migrateRunner struct {
	m *migrate.Migrate
}

// MigrateOpener returns an Opener backed by golang-migrate for the scripts in dir and the database at url (see
// db.Config.MigrationURL).
func MigrateOpener(dir, url string) Opener {
	return func() (Runner, error) {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return nil, err
		}

		m, err := migrate.New("file://"+filepath.ToSlash(abs), url)
		if err != nil {
			return nil, fmt.Errorf("opening migrations: %w", err)
		}

		return &migrateRunner{m: m}, nil
	}
}

func (r *migrateRunner) Up() error {
	if err := r.m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}

	return nil
}

func (r *migrateRunner) Version() (uint, bool, error) {
	v, dirty, err := r.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}

	if err != nil {
		return 0, false, err
	}

	if dirty {
		return v, true, fmt.Errorf("revision %d is dirty", v)
	}

	return v, true, nil
}

func (r *migrateRunner) Close() error {
	srcErr, dbErr := r.m.Close()
	if srcErr != nil {
		return srcErr
	}

	return dbErr
}

// scripts returns the versions of the up scripts found in dir, which may not exist.
func scripts(dir string) ([]uint, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	var versions []uint

	for _, e := range entries {
		if e.IsDir() {
			continue
		}

		m, err := source.Parse(e.Name())
		if err != nil || m.Direction != source.Up {
			continue
		}

		versions = append(versions, m.Version)
	}

	return versions, nil
}
