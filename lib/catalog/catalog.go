// Package catalog exports loaded runs into a SQLite database so they can be
// queried alongside other runs.
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/phil-mansfield/impact/lib/data"
	g_error "github.com/phil-mansfield/impact/lib/error"
)

// DefaultName is the database file written by the export mode.
const DefaultName = "impact.db"

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    dir TEXT NOT NULL,
    variant TEXT NOT NULL CHECK(variant IN ('standard', 'rfq')),
    bunch_count INTEGER NOT NULL,
    slice_count INTEGER NOT NULL,
    particle_count INTEGER NOT NULL,
    cell_count INTEGER NOT NULL,
    end_slices INTEGER NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS bunch_names (
    run_id TEXT NOT NULL,
    bunch INTEGER NOT NULL,
    name TEXT NOT NULL,
    PRIMARY KEY (run_id, bunch),
    FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS bunch_steps (
    run_id TEXT NOT NULL,
    idx INTEGER NOT NULL,
    step INTEGER NOT NULL,
    t REAL NOT NULL,
    z REAL NOT NULL,
    bunch_flag INTEGER NOT NULL,
    PRIMARY KEY (run_id, idx),
    FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS bunch_counts (
    run_id TEXT NOT NULL,
    idx INTEGER NOT NULL,
    bunch INTEGER NOT NULL,
    particles INTEGER NOT NULL,
    PRIMARY KEY (run_id, idx, bunch),
    FOREIGN KEY (run_id, idx) REFERENCES bunch_steps(run_id, idx)
        ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS phase_particles (
    run_id TEXT NOT NULL,
    location INTEGER NOT NULL,
    bunch INTEGER NOT NULL,
    idx INTEGER NOT NULL,
    x REAL, px REAL, y REAL, py REAL, z REAL, pz REAL,
    PRIMARY KEY (run_id, location, bunch, idx),
    FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_phase_table
    ON phase_particles(run_id, location, bunch);

CREATE TABLE IF NOT EXISTS end_particles (
    run_id TEXT NOT NULL,
    bunch INTEGER NOT NULL,
    idx INTEGER NOT NULL,
    x REAL, xp REAL, y REAL, yp REAL, phi REAL, w REAL,
    PRIMARY KEY (run_id, bunch, idx),
    FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
);
`

// Catalog is a SQLite database of exported runs.
type Catalog struct {
	*sql.DB
}

// Open opens or creates the catalog at dataSourceName and makes sure every
// table exists.
func Open(dataSourceName string) (*Catalog, error) {
	db, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	// PRAGMAs are per connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create catalog tables: %w", err)
	}

	return &Catalog{db}, nil
}

// Run is one row of the runs table.
type Run struct {
	ID, Name, Dir, Variant string
	BunchCount             int
	SliceCount             int
	ParticleCount          int
	CellCount              int
	EndSlices              bool
	CreatedAt              time.Time
}

// RowCounts gives the number of rows a run has in each particle table.
type RowCounts struct {
	BunchSteps, BunchCounts, PhaseParticles, EndParticles int
}

// Export writes a loaded run to the catalog in a single transaction and
// returns its new ID.
func (c *Catalog) Export(ctx context.Context, d *data.Data, name string) (string, error) {
	if d == nil || !d.Loaded() {
		return "", g_error.InvalidArgumentf("only a loaded run can be exported")
	}

	tx, err := c.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin export: %w", err)
	}
	defer tx.Rollback()

	id := uuid.NewString()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, name, dir, variant, bunch_count, slice_count,
			particle_count, cell_count, end_slices, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, id, name, d.Layout().Dir, d.Variant().String(), d.BunchCount(),
		d.SliceCount(), d.ParticleCount(), d.CellCount(), d.HasEndSlices(),
		time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}

	steps := []func(context.Context, *sql.Tx, string, *data.Data) error{
		exportNames, exportSteps, exportPhase, exportEnd,
	}
	for _, step := range steps {
		if err := step(ctx, tx, id, d); err != nil {
			return "", err
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit export: %w", err)
	}
	return id, nil
}

func exportNames(ctx context.Context, tx *sql.Tx, id string, d *data.Data) error {
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO bunch_names (run_id, bunch, name) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare bunch names: %w", err)
	}
	defer stmt.Close()

	for i, name := range d.BunchNames() {
		if _, err := stmt.ExecContext(ctx, id, i+1, name); err != nil {
			return fmt.Errorf("failed to insert bunch name: %w", err)
		}
	}
	return nil
}

func exportSteps(ctx context.Context, tx *sql.Tx, id string, d *data.Data) error {
	steps, err := tx.PrepareContext(ctx, `
		INSERT INTO bunch_steps (run_id, idx, step, t, z, bunch_flag)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare bunch steps: %w", err)
	}
	defer steps.Close()

	counts, err := tx.PrepareContext(ctx, `
		INSERT INTO bunch_counts (run_id, idx, bunch, particles)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare bunch counts: %w", err)
	}
	defer counts.Close()

	for i, r := range d.BunchTable().Records {
		_, err := steps.ExecContext(ctx, id, i, r.Step, r.T, r.Z, r.BunchFlag)
		if err != nil {
			return fmt.Errorf("failed to insert step %d: %w", r.Step, err)
		}
		for k, n := range r.Counts {
			if _, err := counts.ExecContext(ctx, id, i, k+1, n); err != nil {
				return fmt.Errorf("failed to insert bunch count: %w", err)
			}
		}
	}
	return nil
}

func exportPhase(ctx context.Context, tx *sql.Tx, id string, d *data.Data) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO phase_particles (run_id, location, bunch, idx,
			x, px, y, py, z, pz)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare phase particles: %w", err)
	}
	defer stmt.Close()

	for _, loc := range d.Locations() {
		for bunch := 1; bunch <= d.BunchCount(); bunch++ {
			t, err := d.PhaseTable(loc, bunch)
			if err != nil {
				// Missing BPM files leave holes in the location list.
				continue
			}
			for i, p := range t.Particles {
				_, err := stmt.ExecContext(ctx, id, loc, bunch, i,
					p.X, p.Px, p.Y, p.Py, p.Z, p.Pz)
				if err != nil {
					return fmt.Errorf("failed to insert %s row %d: %w",
						t.Name(), i, err)
				}
			}
		}
	}
	return nil
}

func exportEnd(ctx context.Context, tx *sql.Tx, id string, d *data.Data) error {
	if !d.HasEndSlices() {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO end_particles (run_id, bunch, idx, x, xp, y, yp, phi, w)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare end particles: %w", err)
	}
	defer stmt.Close()

	for bunch := 1; bunch <= d.BunchCount(); bunch++ {
		t, err := d.EndTable(bunch)
		if err != nil {
			return err
		}
		for i, p := range t.Particles {
			_, err := stmt.ExecContext(ctx, id, bunch, i,
				p.X, p.Xp, p.Y, p.Yp, p.Phi, p.W)
			if err != nil {
				return fmt.Errorf("failed to insert %s row %d: %w",
					t.Name(), i, err)
			}
		}
	}
	return nil
}

// ListRuns returns every exported run, oldest first.
func (c *Catalog) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := c.QueryContext(ctx, `
		SELECT id, name, dir, variant, bunch_count, slice_count,
			particle_count, cell_count, end_slices, created_at
		FROM runs
		ORDER BY created_at ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		var r Run
		err := rows.Scan(&r.ID, &r.Name, &r.Dir, &r.Variant, &r.BunchCount,
			&r.SliceCount, &r.ParticleCount, &r.CellCount, &r.EndSlices,
			&r.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetRun returns the run with the given ID.
func (c *Catalog) GetRun(ctx context.Context, id string) (*Run, error) {
	var r Run
	err := c.QueryRowContext(ctx, `
		SELECT id, name, dir, variant, bunch_count, slice_count,
			particle_count, cell_count, end_slices, created_at
		FROM runs
		WHERE id = ?
	`, id).Scan(&r.ID, &r.Name, &r.Dir, &r.Variant, &r.BunchCount,
		&r.SliceCount, &r.ParticleCount, &r.CellCount, &r.EndSlices,
		&r.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, g_error.NotFoundf("no run has the ID %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return &r, nil
}

// Counts returns the number of rows the run id has in each particle table.
func (c *Catalog) Counts(ctx context.Context, id string) (*RowCounts, error) {
	if _, err := c.GetRun(ctx, id); err != nil {
		return nil, err
	}

	out := &RowCounts{}
	targets := []struct {
		table string
		n     *int
	}{
		{"bunch_steps", &out.BunchSteps},
		{"bunch_counts", &out.BunchCounts},
		{"phase_particles", &out.PhaseParticles},
		{"end_particles", &out.EndParticles},
	}
	for _, tg := range targets {
		query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE run_id = ?",
			tg.table)
		if err := c.QueryRowContext(ctx, query, id).Scan(tg.n); err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", tg.table, err)
		}
	}
	return out, nil
}

// DeleteRun removes a run and all of its particles.
func (c *Catalog) DeleteRun(ctx context.Context, id string) error {
	res, err := c.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return g_error.NotFoundf("no run has the ID %s", id)
	}
	return nil
}
