// Package catalog keeps a sqlite index of the records a session has paged
// to disk, so a later load can find them without scanning directories.
package catalog

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/chazu/rollgrid/pkg/grid"
	"github.com/chazu/rollgrid/pkg/monitoring"
	"github.com/chazu/rollgrid/pkg/pxm"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNoSession is returned when records are written before a session is
// started or selected.
var ErrNoSession = errors.New("catalog: no active session")

var _ pxm.Recorder = (*Catalog)(nil)

// Catalog is a migrated sqlite database of sessions and their records.
type Catalog struct {
	db      *sql.DB
	session string
}

// Entry is one catalogued record.
type Entry struct {
	Path   string
	Kind   pxm.Kind
	Slot   grid.Index3
	Global grid.Index3
}

// Open opens (creating if needed) the catalog at path and applies any
// pending migrations.
func Open(path string) (*Catalog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("catalog: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Catalog{db: db}, nil
}

func migrateUp(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("catalog: migrations source: %w", err)
	}
	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("catalog: failed to create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("catalog: failed to create migrate instance: %w", err)
	}
	m.Log = &migrateLogger{}
	// m is not closed: closing it would close db.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("catalog: migration up failed: %w", err)
	}
	return nil
}

type migrateLogger struct{}

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	monitoring.Debugf("[migrate] "+format, v...)
}

func (l *migrateLogger) Verbose() bool { return false }

// Close closes the database.
func (c *Catalog) Close() error {
	return c.db.Close()
}

// NewSession registers a new session for a window of the given geometry
// and makes it the active one.
func (c *Catalog) NewSession(dims grid.Dims, res int) (string, error) {
	id := uuid.NewString()
	_, err := c.db.Exec(
		`INSERT INTO sessions (session_id, dims_w, dims_h, dims_d, res) VALUES (?, ?, ?, ?, ?)`,
		id, dims.W, dims.H, dims.D, res)
	if err != nil {
		return "", fmt.Errorf("catalog: new session: %w", err)
	}
	c.session = id
	return id, nil
}

// UseSession makes an existing session the active one and returns its
// window geometry.
func (c *Catalog) UseSession(id string) (grid.Dims, int, error) {
	var d grid.Dims
	var res int
	err := c.db.QueryRow(
		`SELECT dims_w, dims_h, dims_d, res FROM sessions WHERE session_id = ?`, id,
	).Scan(&d.W, &d.H, &d.D, &res)
	if errors.Is(err, sql.ErrNoRows) {
		return d, 0, fmt.Errorf("catalog: unknown session %s", id)
	}
	if err != nil {
		return d, 0, fmt.Errorf("catalog: use session: %w", err)
	}
	c.session = id
	return d, res, nil
}

// Session returns the active session id, or "" when none is active.
func (c *Catalog) Session() string { return c.session }

// RecordBlock stores rec under the active session. Rewriting a path
// replaces its previous entry.
func (c *Catalog) RecordBlock(rec pxm.Record) error {
	if c.session == "" {
		return ErrNoSession
	}
	_, err := c.db.Exec(`
		INSERT INTO records (session_id, path, kind, slot_x, slot_y, slot_z, global_x, global_y, global_z)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (session_id, path) DO UPDATE SET
			kind = excluded.kind,
			slot_x = excluded.slot_x, slot_y = excluded.slot_y, slot_z = excluded.slot_z,
			global_x = excluded.global_x, global_y = excluded.global_y, global_z = excluded.global_z,
			saved_at = CURRENT_TIMESTAMP`,
		c.session, rec.Path, string(rec.Kind),
		rec.Slot.X, rec.Slot.Y, rec.Slot.Z,
		rec.Global.X, rec.Global.Y, rec.Global.Z)
	if err != nil {
		return fmt.Errorf("catalog: record %s: %w", rec.Path, err)
	}
	return nil
}

// Entries returns every record of session, ordered by path. An empty
// kind matches all kinds.
func (c *Catalog) Entries(session string, kind pxm.Kind) ([]Entry, error) {
	rows, err := c.db.Query(`
		SELECT path, kind, slot_x, slot_y, slot_z, global_x, global_y, global_z
		FROM records
		WHERE session_id = ? AND (? = '' OR kind = ?)
		ORDER BY path`, session, string(kind), string(kind))
	if err != nil {
		return nil, fmt.Errorf("catalog: entries: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var k string
		if err := rows.Scan(&e.Path, &k, &e.Slot.X, &e.Slot.Y, &e.Slot.Z, &e.Global.X, &e.Global.Y, &e.Global.Z); err != nil {
			return nil, fmt.Errorf("catalog: scan entry: %w", err)
		}
		e.Kind = pxm.Kind(k)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Files returns the base names of the block records of session, ready to
// pass to pxm.LoadWindow.
func (c *Catalog) Files(session string) ([]string, error) {
	entries, err := c.Entries(session, pxm.KindBlock)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, filepath.Base(e.Path))
	}
	return out, nil
}

// Count returns the number of records of session.
func (c *Catalog) Count(session string) (int, error) {
	var n int
	if err := c.db.QueryRow(`SELECT COUNT(*) FROM records WHERE session_id = ?`, session).Scan(&n); err != nil {
		return 0, fmt.Errorf("catalog: count: %w", err)
	}
	return n, nil
}
