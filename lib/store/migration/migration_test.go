package migration

import (
	"context"
	"errors"
	"os"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var models = Schema{
	{Name: "users", Columns: []Column{
		{Name: "id", Type: "BIGINT", PrimaryKey: true},
		{Name: "username", Type: "TEXT", Nullable: true, Unique: true},
	}},
	{Name: "addresses", Columns: []Column{
		{Name: "id", Type: "BIGSERIAL", PrimaryKey: true},
		{Name: "user_id", Type: "BIGINT", References: "users(id)", OnDelete: "CASCADE"},
		{Name: "sol_address", Type: "TEXT"},
	}},
}

// fakeStore keeps the live schema and the recorded revision. Applying scripts makes the live schema match the
// declared one.
type fakeStore struct {
	mu       sync.Mutex
	dir      string
	declared Schema
	live     Schema
	version  uint
	recorded bool
	pingErr  error
	noRecord bool
	ups      int
	versions map[string]uint
}

func (f *fakeStore) Ping(context.Context) error { return f.pingErr }

func (f *fakeStore) TableCount(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.live), nil
}

func (f *fakeStore) Schema(context.Context, string) (Schema, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.live, nil
}

func (f *fakeStore) EnsureVersionTable(_ context.Context, table string, version uint) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.versions == nil {
		f.versions = map[string]uint{}
	}

	if _, ok := f.versions[table]; ok {
		return false, nil
	}

	f.versions[table] = version

	return true, nil
}

func (f *fakeStore) open() (Runner, error) { return f, nil }

func (f *fakeStore) Up() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.ups++

	versions, err := scripts(f.dir)
	if err != nil {
		return err
	}

	for _, v := range versions {
		if v > f.version && !f.noRecord {
			f.version, f.recorded = v, true
			f.live = f.declared
		}
	}

	return nil
}

func (f *fakeStore) Version() (uint, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.version, f.recorded, nil
}

func (f *fakeStore) Close() error { return nil }

func newManager(t *testing.T, f *fakeStore, opts ...Option) *Manager {
	t.Helper()

	if f.dir == "" {
		f.dir = t.TempDir()
	}

	opts = append([]Option{WithWait(100*time.Millisecond, 10*time.Millisecond)}, opts...)

	return New(f.dir, "schema_migrations", f.declared, f, f.open, opts...)
}

func files(t *testing.T, dir string) []string {
	t.Helper()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)

	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}

	sort.Strings(names)

	return names
}

func TestBootstrapEmptyStore(t *testing.T) {
	f := &fakeStore{declared: models}
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "generated"})
	m := newManager(t, f, WithCounter(counter))

	empty, err := m.IsEmpty(context.Background())
	require.NoError(t, err)
	assert.True(t, empty)

	require.NoError(t, m.BootstrapOrUpdate(context.Background()))

	current, ok, err := m.CurrentRevision(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	head, found, err := m.HeadRevision()
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, head, current)
	assert.Equal(t, uint(1), head)
	assert.Equal(t, []string{"000001_initial_migration.down.sql", "000001_initial_migration.up.sql"}, files(t, f.dir))
	assert.Equal(t, 1.0, testutil.ToFloat64(counter))

	up, err := os.ReadFile(f.dir + "/000001_initial_migration.up.sql")
	require.NoError(t, err)
	assert.Contains(t, string(up), `CREATE TABLE IF NOT EXISTS "users"`)
	assert.Less(t, strings.Index(string(up), `"users"`), strings.Index(string(up), `"addresses"`))
}

func TestBootstrapTwice(t *testing.T) {
	f := &fakeStore{declared: models}
	m := newManager(t, f)

	require.NoError(t, m.BootstrapOrUpdate(context.Background()))
	require.NoError(t, m.BootstrapOrUpdate(context.Background()))

	assert.Len(t, files(t, f.dir), 2)

	drift, err := m.HasDrift(context.Background())
	require.NoError(t, err)
	assert.False(t, drift)
}

func TestBootstrapDrift(t *testing.T) {
	f := &fakeStore{declared: models}
	require.NoError(t, newManager(t, f).BootstrapOrUpdate(context.Background()))

	// a new column is declared
	users := Table{Name: "users", Columns: append(append([]Column{}, models[0].Columns...),
		Column{Name: "balance", Type: "DOUBLE PRECISION", Default: "0"})}
	f.declared = Schema{users, models[1]}
	m := newManager(t, f)

	drift, err := m.HasDrift(context.Background())
	require.NoError(t, err)
	assert.True(t, drift)

	require.NoError(t, m.BootstrapOrUpdate(context.Background()))

	current, _, err := m.CurrentRevision(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint(2), current)

	up, err := os.ReadFile(f.dir + "/000002_auto_migration.up.sql")
	require.NoError(t, err)
	assert.Equal(t, "ALTER TABLE \"users\" ADD COLUMN \"balance\" DOUBLE PRECISION NOT NULL DEFAULT 0;\n", string(up))
}

func TestBootstrapAppliesExistingScriptsFirst(t *testing.T) {
	f := &fakeStore{declared: models}
	dir := t.TempDir()
	f.dir = dir
	require.NoError(t, os.WriteFile(dir+"/000001_initial_migration.up.sql", []byte("SELECT 1;"), 0o644))
	require.NoError(t, os.WriteFile(dir+"/000001_initial_migration.down.sql", []byte("SELECT 1;"), 0o644))

	m := newManager(t, f)
	require.NoError(t, m.BootstrapOrUpdate(context.Background()))

	// the existing script brought the schema to head, nothing generated
	assert.Len(t, files(t, dir), 2)
	assert.Equal(t, 2, f.ups)
}

func TestBootstrapUnreachable(t *testing.T) {
	f := &fakeStore{declared: models, pingErr: errors.New("connection refused")}
	m := newManager(t, f)

	err := m.BootstrapOrUpdate(context.Background())
	assert.ErrorIs(t, err, ErrUnreachable)
	assert.Empty(t, files(t, f.dir))
}

func TestBootstrapHeadMismatch(t *testing.T) {
	f := &fakeStore{declared: models, noRecord: true}
	m := newManager(t, f)

	assert.ErrorIs(t, m.BootstrapOrUpdate(context.Background()), ErrHeadMismatch)
}

func TestHeadRevisionMissingDir(t *testing.T) {
	f := &fakeStore{declared: models, dir: t.TempDir() + "/missing"}
	m := newManager(t, f)

	head, found, err := m.HeadRevision()
	require.NoError(t, err)
	assert.False(t, found)
	assert.Zero(t, head)
}

func TestEnsureVersionTable(t *testing.T) {
	f := &fakeStore{declared: models}
	m := newManager(t, f)
	require.NoError(t, os.WriteFile(f.dir+"/000003_x.up.sql", []byte("SELECT 1;"), 0o644))

	seeded, err := m.EnsureVersionTable(context.Background())
	require.NoError(t, err)
	assert.True(t, seeded)
	assert.Equal(t, uint(3), f.versions["schema_migrations"])

	// a populated table is left alone
	require.NoError(t, os.WriteFile(f.dir+"/000004_y.up.sql", []byte("SELECT 1;"), 0o644))
	seeded, err = m.EnsureVersionTable(context.Background())
	require.NoError(t, err)
	assert.False(t, seeded)
	assert.Equal(t, uint(3), f.versions["schema_migrations"])
}

func TestWaitFor(t *testing.T) {
	var calls int
	probe := func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("not yet")
		}

		return nil
	}

	m := newManager(t, &fakeStore{})
	assert.True(t, waitFor(context.Background(), probe, time.Second, time.Millisecond, m.log))
	assert.Equal(t, 3, calls)

	never := func(context.Context) error { return errors.New("down") }
	assert.False(t, waitFor(context.Background(), never, 20*time.Millisecond, 5*time.Millisecond, m.log))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, waitFor(ctx, never, time.Second, 5*time.Millisecond, m.log))
}
