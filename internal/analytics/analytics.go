// Package analytics keeps a SQLite history of benchmark reports so runs
// can be compared over time.
package analytics

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/studiowebux/benchkit/internal/config"
	"github.com/studiowebux/benchkit/internal/report"
)

// statsTTL bounds how long aggregated stats are served from memory
const statsTTL = 30 * time.Second

// Entry is one stored report
type Entry struct {
	ID        int64
	Timestamp time.Time
	Report    report.Report
}

// Stats aggregates every stored run of one workload and parameter set
type Stats struct {
	Workload      string
	Params        string
	Runs          int
	TotalFailures int
	AvgMean       time.Duration
	BestP50       time.Duration
	WorstP99      time.Duration
	LastRun       time.Time
}

// Manager stores reports in a SQLite database
type Manager struct {
	db    *sql.DB
	cache *statsCache
}

// NewManager opens or creates the history database at dbPath
func NewManager(dbPath string) (*Manager, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, config.DirPermissions); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to history database: %w", err)
	}

	m := &Manager{db: db, cache: newStatsCache(statsTTL)}
	if err := m.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return m, nil
}

func (m *Manager) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL UNIQUE,
		workload TEXT NOT NULL,
		params TEXT NOT NULL,
		count INTEGER NOT NULL,
		successes INTEGER NOT NULL,
		failures INTEGER NOT NULL,
		mean_ns INTEGER NOT NULL,
		stddev_ns INTEGER NOT NULL,
		min_ns INTEGER NOT NULL,
		max_ns INTEGER NOT NULL,
		p50_ns INTEGER NOT NULL,
		p95_ns INTEGER NOT NULL,
		p99_ns INTEGER NOT NULL,
		throughput REAL NOT NULL,
		bytes_per_op REAL,
		allocs_per_op REAL,
		timed_out INTEGER NOT NULL DEFAULT 0,
		recorded_at INTEGER NOT NULL -- unix nanoseconds
	);

	CREATE INDEX IF NOT EXISTS idx_runs_workload ON runs(workload, params);
	CREATE INDEX IF NOT EXISTS idx_runs_recorded_at ON runs(recorded_at);
	`

	_, err := m.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize history schema: %w", err)
	}

	return nil
}

// Save stores reports produced by one invocation, all stamped with at
func (m *Manager) Save(reports []report.Report, at time.Time) error {
	tx, err := m.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to save reports: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO runs (run_id, workload, params, count, successes, failures, mean_ns, stddev_ns, min_ns, max_ns, p50_ns, p95_ns, p99_ns, throughput, bytes_per_op, allocs_per_op, timed_out, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to save reports: %w", err)
	}
	defer stmt.Close()

	for _, r := range reports {
		var bytesPerOp, allocsPerOp sql.NullFloat64
		if r.Alloc != nil {
			bytesPerOp = sql.NullFloat64{Float64: r.Alloc.BytesPerOp, Valid: true}
			allocsPerOp = sql.NullFloat64{Float64: r.Alloc.AllocsPerOp, Valid: true}
		}

		_, err := stmt.Exec(
			r.RunID,
			r.Workload,
			r.Params,
			r.Count,
			r.Successes,
			r.Failures,
			int64(r.Mean),
			int64(r.StdDev),
			int64(r.Min),
			int64(r.Max),
			int64(r.P50),
			int64(r.P95),
			int64(r.P99),
			r.Throughput,
			bytesPerOp,
			allocsPerOp,
			r.TimedOut,
			at.UnixNano(),
		)
		if err != nil {
			return fmt.Errorf("failed to save report %s: %w", r.Name(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to save reports: %w", err)
	}
	m.cache.invalidate()
	return nil
}

const selectEntries = `
	SELECT id, run_id, workload, params, count, successes, failures, mean_ns, stddev_ns, min_ns, max_ns, p50_ns, p95_ns, p99_ns, throughput, bytes_per_op, allocs_per_op, timed_out, recorded_at
	FROM runs
`

// LoadForWorkload returns the most recent runs of one workload, newest first
func (m *Manager) LoadForWorkload(workload string, limit int) ([]Entry, error) {
	rows, err := m.db.Query(selectEntries+`
		WHERE workload = ?
		ORDER BY recorded_at DESC, id DESC
		LIMIT ?
	`, workload, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load history for workload: %w", err)
	}
	defer rows.Close()

	return m.scanEntries(rows)
}

// LoadAll returns the most recent runs, newest first
func (m *Manager) LoadAll(limit int) ([]Entry, error) {
	rows, err := m.db.Query(selectEntries+`
		ORDER BY recorded_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	defer rows.Close()

	return m.scanEntries(rows)
}

func (m *Manager) scanEntries(rows *sql.Rows) ([]Entry, error) {
	var entries []Entry

	for rows.Next() {
		var e Entry
		var mean, stddev, minNs, maxNs, p50, p95, p99 int64
		var bytesPerOp, allocsPerOp sql.NullFloat64
		var recordedAt int64

		r := &e.Report
		err := rows.Scan(
			&e.ID,
			&r.RunID,
			&r.Workload,
			&r.Params,
			&r.Count,
			&r.Successes,
			&r.Failures,
			&mean,
			&stddev,
			&minNs,
			&maxNs,
			&p50,
			&p95,
			&p99,
			&r.Throughput,
			&bytesPerOp,
			&allocsPerOp,
			&r.TimedOut,
			&recordedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}

		r.Mean = time.Duration(mean)
		r.StdDev = time.Duration(stddev)
		r.Min = time.Duration(minNs)
		r.Max = time.Duration(maxNs)
		r.P50 = time.Duration(p50)
		r.P95 = time.Duration(p95)
		r.P99 = time.Duration(p99)
		if bytesPerOp.Valid {
			r.Alloc = &report.AllocStats{BytesPerOp: bytesPerOp.Float64, AllocsPerOp: allocsPerOp.Float64}
		}

		e.Timestamp = time.Unix(0, recordedAt)
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// GetStats aggregates stored runs per workload and parameter set. An empty
// workload aggregates everything.
func (m *Manager) GetStats(workload string) ([]Stats, error) {
	if stats, ok := m.cache.get(workload); ok {
		return stats, nil
	}

	rows, err := m.db.Query(`
		SELECT
			workload,
			params,
			COUNT(*) AS runs,
			SUM(failures) AS total_failures,
			AVG(mean_ns) AS avg_mean,
			MIN(p50_ns) AS best_p50,
			MAX(p99_ns) AS worst_p99,
			MAX(recorded_at) AS last_run
		FROM runs
		WHERE workload = ? OR ? = ''
		GROUP BY workload, params
		ORDER BY workload, params
	`, workload, workload)
	if err != nil {
		return nil, fmt.Errorf("failed to get history stats: %w", err)
	}
	defer rows.Close()

	var statsList []Stats
	for rows.Next() {
		var s Stats
		var avgMean float64
		var bestP50, worstP99 int64
		var lastRun int64

		err := rows.Scan(
			&s.Workload,
			&s.Params,
			&s.Runs,
			&s.TotalFailures,
			&avgMean,
			&bestP50,
			&worstP99,
			&lastRun,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stats: %w", err)
		}

		s.AvgMean = time.Duration(avgMean)
		s.BestP50 = time.Duration(bestP50)
		s.WorstP99 = time.Duration(worstP99)
		s.LastRun = time.Unix(0, lastRun)

		statsList = append(statsList, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	m.cache.set(workload, statsList)
	return statsList, nil
}

// Clear deletes every stored run
func (m *Manager) Clear() error {
	_, err := m.db.Exec("DELETE FROM runs")
	if err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}
	m.cache.invalidate()
	return nil
}

// ClearForWorkload deletes the stored runs of one workload
func (m *Manager) ClearForWorkload(workload string) error {
	_, err := m.db.Exec("DELETE FROM runs WHERE workload = ?", workload)
	if err != nil {
		return fmt.Errorf("failed to clear history for workload: %w", err)
	}
	m.cache.invalidate()
	return nil
}

func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
