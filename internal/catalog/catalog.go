// Package catalog stores station headers in a SQLite database so runs can
// be queried after the fact.
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	_ "modernc.org/sqlite"

	"example.com/oclfilt/internal/ocl"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id     TEXT PRIMARY KEY,
	input      TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS stations (
	run_id        TEXT NOT NULL REFERENCES runs(run_id),
	idx           INTEGER NOT NULL,
	station_id    INTEGER NOT NULL,
	stream_offset INTEGER NOT NULL,
	bytes         INTEGER NOT NULL,
	country       INTEGER NOT NULL,
	cruise        INTEGER NOT NULL,
	year          INTEGER NOT NULL,
	month         INTEGER NOT NULL,
	day           INTEGER NOT NULL,
	time          REAL,
	lat           REAL,
	lon           REAL,
	levels        INTEGER NOT NULL,
	kind          TEXT NOT NULL,
	bottom_depth  REAL,
	bottom_source TEXT NOT NULL,
	truncated     INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (run_id, idx)
);
CREATE TABLE IF NOT EXISTS station_variables (
	run_id     TEXT NOT NULL,
	idx        INTEGER NOT NULL,
	position   INTEGER NOT NULL,
	code       INTEGER NOT NULL,
	error_flag INTEGER NOT NULL,
	PRIMARY KEY (run_id, idx, position)
);
CREATE INDEX IF NOT EXISTS station_variables_code ON station_variables(code);
`

// Catalog is an open station database.
type Catalog struct {
	db *sql.DB
}

// Open opens or creates the database at path and applies the schema.
func Open(path string) (*Catalog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &Catalog{db: db}, nil
}

func (c *Catalog) Close() error {
	return c.db.Close()
}

// Batch inserts the stations of one run inside a single transaction.
type Batch struct {
	ctx      context.Context
	tx       *sql.Tx
	runID    string
	station  *sql.Stmt
	variable *sql.Stmt
	count    int64
}

// BeginRun registers a run and returns a batch for its stations.
func (c *Catalog) BeginRun(ctx context.Context, runID, input string) (*Batch, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO runs (run_id, input, created_at) VALUES (?, ?, ?)`,
		runID, input, time.Now().UTC().Format(time.RFC3339)); err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to insert run: %w", err)
	}
	station, err := tx.PrepareContext(ctx, `
		INSERT INTO stations (run_id, idx, station_id, stream_offset, bytes, country, cruise,
			year, month, day, time, lat, lon, levels, kind, bottom_depth, bottom_source, truncated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	variable, err := tx.PrepareContext(ctx, `
		INSERT INTO station_variables (run_id, idx, position, code, error_flag) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		station.Close()
		tx.Rollback()
		return nil, err
	}
	return &Batch{ctx: ctx, tx: tx, runID: runID, station: station, variable: variable}, nil
}

// WriteStation inserts the header of st and its variable columns.
func (b *Batch) WriteStation(st *ocl.Station) error {
	var bottom any
	if st.Bottom.Known() {
		bottom = st.Bottom.Value
	}
	truncated := 0
	if st.Truncated {
		truncated = 1
	}
	if _, err := b.station.ExecContext(b.ctx,
		b.runID, st.Index, st.StationID, st.Offset, st.RecordLength, st.CountryCode, st.CruiseNumber,
		st.Year, st.Month, st.Day, nullable(st.Time), nullable(st.Latitude), nullable(st.Longitude),
		st.LevelCount, st.Kind.String(), bottom, st.Bottom.Source.String(), truncated); err != nil {
		return fmt.Errorf("failed to insert station %d: %w", st.Index, err)
	}
	for i, v := range st.Variables {
		if _, err := b.variable.ExecContext(b.ctx, b.runID, st.Index, i, v.Code, v.ErrorFlag); err != nil {
			return fmt.Errorf("failed to insert station %d variable %d: %w", st.Index, v.Code, err)
		}
	}
	b.count++
	return nil
}

// Count returns the number of stations written so far.
func (b *Batch) Count() int64 {
	return b.count
}

func (b *Batch) Commit() error {
	b.station.Close()
	b.variable.Close()
	return b.tx.Commit()
}

func (b *Batch) Rollback() error {
	b.station.Close()
	b.variable.Close()
	return b.tx.Rollback()
}

func nullable(v float64) any {
	if math.IsNaN(v) {
		return nil
	}
	return v
}

// StationRow is a stored station header.
type StationRow struct {
	Index        int64
	StationID    int64
	Year         int64
	Month        int64
	Latitude     float64
	Longitude    float64
	Levels       int64
	BottomDepth  float64
	BottomSource string
	Variables    []int64
}

// Stations returns the stations of a run in stream order. When code is
// positive only stations carrying that variable are returned.
func (c *Catalog) Stations(ctx context.Context, runID string, code int64) ([]StationRow, error) {
	query := `
		SELECT s.idx, s.station_id, s.year, s.month, s.lat, s.lon, s.levels, s.bottom_depth, s.bottom_source
		FROM stations s
		WHERE s.run_id = ?`
	args := []any{runID}
	if code > 0 {
		query += ` AND EXISTS (SELECT 1 FROM station_variables v WHERE v.run_id = s.run_id AND v.idx = s.idx AND v.code = ?)`
		args = append(args, code)
	}
	query += ` ORDER BY s.idx`

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query stations: %w", err)
	}
	defer rows.Close()

	var out []StationRow
	for rows.Next() {
		var r StationRow
		var lat, lon, bottom sql.NullFloat64
		if err := rows.Scan(&r.Index, &r.StationID, &r.Year, &r.Month, &lat, &lon, &r.Levels, &bottom, &r.BottomSource); err != nil {
			return nil, fmt.Errorf("failed to scan station row: %w", err)
		}
		r.Latitude, r.Longitude, r.BottomDepth = orNaN(lat), orNaN(lon), orNaN(bottom)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		codes, err := c.variables(ctx, runID, out[i].Index)
		if err != nil {
			return nil, err
		}
		out[i].Variables = codes
	}
	return out, nil
}

func (c *Catalog) variables(ctx context.Context, runID string, idx int64) ([]int64, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT code FROM station_variables WHERE run_id = ? AND idx = ? ORDER BY position`, runID, idx)
	if err != nil {
		return nil, fmt.Errorf("failed to query variables: %w", err)
	}
	defer rows.Close()
	var codes []int64
	for rows.Next() {
		var code int64
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}
	return codes, rows.Err()
}

// SourceCounts returns the number of stations per bottom depth source.
func (c *Catalog) SourceCounts(ctx context.Context, runID string) (map[string]int64, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT bottom_source, COUNT(*) FROM stations WHERE run_id = ? GROUP BY bottom_source`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query sources: %w", err)
	}
	defer rows.Close()
	out := map[string]int64{}
	for rows.Next() {
		var source string
		var n int64
		if err := rows.Scan(&source, &n); err != nil {
			return nil, err
		}
		out[source] = n
	}
	return out, rows.Err()
}

func orNaN(v sql.NullFloat64) float64 {
	if v.Valid {
		return v.Float64
	}
	return math.NaN()
}
