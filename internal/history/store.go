// Package history persists batch reports in a DuckDB database.
package history

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/marcboeker/go-duckdb"
	"github.com/soa-checker/backend/internal/compliance"
	"github.com/soa-checker/backend/internal/soa"
	"go.uber.org/zap"
)

// Options tunes the DuckDB connection.
type Options struct {
	Threads     int
	MemoryLimit string
	Logger      *zap.Logger
}

// ReportInfo is the listing form of a stored report.
type ReportInfo struct {
	ID        string             `json:"id"`
	Device    string             `json:"device"`
	CreatedAt time.Time          `json:"createdAt"`
	Summary   compliance.Summary `json:"summary"`
}

// Store keeps reports in two tables: one row per report and one row per scenario result.
type Store struct {
	db   *sql.DB
	path string
	log  *zap.Logger

	// guards Save and Delete
	writeMu sync.Mutex
}

var schema = []string{`
CREATE TABLE IF NOT EXISTS reports (
	id         VARCHAR PRIMARY KEY,
	device     VARCHAR NOT NULL,
	created_at TIMESTAMP NOT NULL,
	total      INTEGER NOT NULL,
	passed     INTEGER NOT NULL,
	failed     INTEGER NOT NULL,
	errored    INTEGER NOT NULL
)`, `
CREATE TABLE IF NOT EXISTS scenario_results (
	report_id   VARCHAR NOT NULL,
	idx         INTEGER NOT NULL,
	tmaxfrac    DOUBLE,
	compliant   BOOLEAN NOT NULL,
	test_values VARCHAR NOT NULL,
	violations  VARCHAR NOT NULL,
	error       VARCHAR
)`}

// Open opens or creates the database at path. An empty path opens an in-memory database.
func Open(path string, opts Options) (*Store, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	pragmas := []string{"PRAGMA enable_progress_bar=false"}
	if opts.Threads > 0 {
		pragmas = append(pragmas, fmt.Sprintf("PRAGMA threads=%d", opts.Threads))
	}
	if opts.MemoryLimit != "" {
		pragmas = append(pragmas, fmt.Sprintf("PRAGMA memory_limit='%s'", opts.MemoryLimit))
	}

	connector, err := duckdb.NewConnector(path, func(execer driver.ExecerContext) error {
		for _, pragma := range pragmas {
			if _, err := execer.ExecContext(context.Background(), pragma, nil); err != nil {
				return fmt.Errorf("%s: %w", pragma, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create DuckDB connector: %w", err)
	}

	db := sql.OpenDB(connector)
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create tables: %w", err)
		}
	}

	log.Info("report history opened", zap.String("path", path))
	return &Store{db: db, path: path, log: log}, nil
}

// Save stores a report and all of its scenario results.
func (s *Store) Save(ctx context.Context, report *compliance.Report) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	_, err = conn.ExecContext(ctx,
		`INSERT INTO reports (id, device, created_at, total, passed, failed, errored) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		report.ID, report.Device, report.CreatedAt.UTC(),
		report.Summary.Total, report.Summary.Passed, report.Summary.Failed, report.Summary.Errored)
	if err != nil {
		return fmt.Errorf("insert report %s: %w", report.ID, err)
	}

	err = conn.Raw(func(driverConn interface{}) error {
		dConn, ok := driverConn.(*duckdb.Conn)
		if !ok {
			return fmt.Errorf("failed to cast to duckdb.Conn")
		}
		appender, err := duckdb.NewAppenderFromConn(dConn, "", "scenario_results")
		if err != nil {
			return fmt.Errorf("failed to create appender: %w", err)
		}
		defer appender.Close()

		for _, r := range report.Results {
			values, err := json.Marshal(r.TestValues)
			if err != nil {
				return err
			}
			violations, err := json.Marshal(r.Violations)
			if err != nil {
				return err
			}
			var tmaxfrac driver.Value
			if r.Tmaxfrac != nil {
				tmaxfrac = *r.Tmaxfrac
			}
			var errText driver.Value
			if r.Error != "" {
				errText = r.Error
			}
			if err := appender.AppendRow(report.ID, int32(r.Index), tmaxfrac, r.Compliant,
				string(values), string(violations), errText); err != nil {
				return fmt.Errorf("failed to append result %d: %w", r.Index, err)
			}
		}
		return appender.Flush()
	})
	if err != nil {
		// closing the appender flushes the rows appended before the failure
		for _, stmt := range []string{
			`DELETE FROM scenario_results WHERE report_id = ?`,
			`DELETE FROM reports WHERE id = ?`,
		} {
			if _, derr := conn.ExecContext(ctx, stmt, report.ID); derr != nil {
				s.log.Warn("failed to roll back report", zap.String("id", report.ID), zap.Error(derr))
			}
		}
		return fmt.Errorf("appender error: %w", err)
	}

	s.log.Debug("report saved",
		zap.String("id", report.ID),
		zap.String("device", report.Device),
		zap.Int("results", len(report.Results)))
	return nil
}

// Get loads a full report.
func (s *Store) Get(ctx context.Context, id string) (*compliance.Report, error) {
	report := &compliance.Report{ID: id}
	err := s.db.QueryRowContext(ctx,
		`SELECT device, created_at, total, passed, failed, errored FROM reports WHERE id = ?`, id).
		Scan(&report.Device, &report.CreatedAt,
			&report.Summary.Total, &report.Summary.Passed, &report.Summary.Failed, &report.Summary.Errored)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("report %s: %w", id, soa.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query report %s: %w", id, err)
	}
	report.CreatedAt = report.CreatedAt.UTC()

	rows, err := s.db.QueryContext(ctx,
		`SELECT idx, tmaxfrac, compliant, test_values, violations, error
		 FROM scenario_results WHERE report_id = ? ORDER BY idx`, id)
	if err != nil {
		return nil, fmt.Errorf("query results of %s: %w", id, err)
	}
	defer rows.Close()

	report.Results = make([]compliance.ScenarioResult, 0, report.Summary.Total)
	for rows.Next() {
		var (
			r          compliance.ScenarioResult
			idx        int32
			tmaxfrac   sql.NullFloat64
			values     string
			violations string
			errText    sql.NullString
		)
		if err := rows.Scan(&idx, &tmaxfrac, &r.Compliant, &values, &violations, &errText); err != nil {
			return nil, err
		}
		r.Index = int(idx)
		if tmaxfrac.Valid {
			t := tmaxfrac.Float64
			r.Tmaxfrac = &t
		}
		if err := json.Unmarshal([]byte(values), &r.TestValues); err != nil {
			return nil, fmt.Errorf("decode test values of %s/%d: %w", id, idx, err)
		}
		if err := json.Unmarshal([]byte(violations), &r.Violations); err != nil {
			return nil, fmt.Errorf("decode violations of %s/%d: %w", id, idx, err)
		}
		r.Error = errText.String
		report.Results = append(report.Results, r)
	}
	return report, rows.Err()
}

// List returns stored reports newest first, optionally filtered by device. limit <= 0 means
// no limit.
func (s *Store) List(ctx context.Context, device string, limit int) ([]ReportInfo, error) {
	query := `SELECT id, device, created_at, total, passed, failed, errored FROM reports`
	var args []interface{}
	if device != "" {
		query += ` WHERE device = ?`
		args = append(args, device)
	}
	query += ` ORDER BY created_at DESC, id`
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	out := []ReportInfo{}
	for rows.Next() {
		var info ReportInfo
		if err := rows.Scan(&info.ID, &info.Device, &info.CreatedAt,
			&info.Summary.Total, &info.Summary.Passed, &info.Summary.Failed, &info.Summary.Errored); err != nil {
			return nil, err
		}
		info.CreatedAt = info.CreatedAt.UTC()
		out = append(out, info)
	}
	return out, rows.Err()
}

// Delete removes a report and its results.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM reports WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete report %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("report %s: %w", id, soa.ErrNotFound)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM scenario_results WHERE report_id = ?`, id); err != nil {
		return fmt.Errorf("delete results of %s: %w", id, err)
	}
	return nil
}

// Close closes the database. The file is kept.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
