package export

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"github.com/golang/glog"

	"github.com/hb9tf/vnasweep/vna"
)

const (
	sqlRowCountInfo = 100

	// Supported database/sql driver names.
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

var createTableTmpl = map[string]string{
	DriverSQLite: `CREATE TABLE IF NOT EXISTS sweep (
		ID          INTEGER NOT NULL PRIMARY KEY AUTOINCREMENT,
		RunID       TEXT NOT NULL,
		Identifier  TEXT NOT NULL,
		Source      TEXT NOT NULL,
		Trace       TEXT NOT NULL,
		State       INTEGER,
		FreqGHz     REAL,
		Value       REAL,
		Captured    INTEGER
	);`,
	DriverPostgres: `CREATE TABLE IF NOT EXISTS sweep (
		ID          BIGSERIAL PRIMARY KEY,
		RunID       TEXT NOT NULL,
		Identifier  TEXT NOT NULL,
		Source      TEXT NOT NULL,
		Trace       TEXT NOT NULL,
		State       INTEGER,
		FreqGHz     DOUBLE PRECISION,
		Value       DOUBLE PRECISION,
		Captured    BIGINT
	);`,
	DriverMySQL: `CREATE TABLE IF NOT EXISTS sweep (
		ID          BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
		RunID       VARCHAR(64) NOT NULL,
		Identifier  VARCHAR(255) NOT NULL,
		Source      VARCHAR(64) NOT NULL,
		Trace       VARCHAR(255) NOT NULL,
		State       INTEGER,
		FreqGHz     DOUBLE,
		Value       DOUBLE,
		Captured    BIGINT
	);`,
}

const insertRowTmpl = `INSERT INTO sweep (
		RunID,
		Identifier,
		Source,
		Trace,
		State,
		FreqGHz,
		Value,
		Captured
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?);`

// Rebind rewrites ? placeholders for drivers that number them.
func Rebind(driver, query string) string {
	if driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// SQL mirrors rows into a "sweep" table, one record per frequency point.
type SQL struct {
	DB     *sql.DB
	Driver string

	once      sync.Once
	createErr error

	mu     sync.Mutex
	counts map[string]int
}

func (s *SQL) createTableIfNotExists(ctx context.Context) error {
	s.once.Do(func() {
		tmpl, ok := createTableTmpl[s.Driver]
		if !ok {
			s.createErr = fmt.Errorf("unsupported SQL driver %q", s.Driver)
			return
		}
		if _, err := s.DB.ExecContext(ctx, tmpl); err != nil {
			s.createErr = fmt.Errorf("unable to create table: %s", err)
		}
	})
	return s.createErr
}

func (s *SQL) Write(ctx context.Context, row *vna.Row) error {
	if err := s.createTableIfNotExists(ctx); err != nil {
		return err
	}
	err := s.insertRow(ctx, row)
	s.count(err)
	if err != nil {
		return fmt.Errorf("storing state %d of %s in %s DB: %s", row.State, row.Trace, s.Driver, err)
	}
	return nil
}

func (s *SQL) count(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.counts == nil {
		s.counts = map[string]int{
			"error":   0,
			"success": 0,
			"total":   0,
		}
	}
	s.counts["total"] += 1
	if err != nil {
		s.counts["error"] += 1
	} else {
		s.counts["success"] += 1
	}
	if s.counts["total"]%sqlRowCountInfo == 0 {
		glog.Infof("Row export counts: %+v\n", s.counts)
	}
}

func (s *SQL) insertRow(ctx context.Context, row *vna.Row) error {
	if len(row.Freqs) != len(row.Values) {
		return fmt.Errorf("%d frequencies for %d values", len(row.Freqs), len(row.Values))
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	statement, err := tx.PrepareContext(ctx, Rebind(s.Driver, insertRowTmpl))
	if err != nil {
		tx.Rollback()
		return err
	}
	defer statement.Close()
	captured := row.Captured.UnixMilli()
	for i, f := range row.Freqs {
		if _, err := statement.ExecContext(ctx, row.RunID, row.Identifier, row.Source, row.Trace, row.State, f, row.Values[i], captured); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (s *SQL) Close() error {
	return s.DB.Close()
}
