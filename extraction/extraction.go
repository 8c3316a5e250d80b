// Package extraction reads mirrored sweeps back out of a SQL database.
package extraction

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/hb9tf/vnasweep/export"
	"github.com/hb9tf/vnasweep/vna"
)

const (
	// getRunsTmpl lists every run with its trace and state counts.
	getRunsTmpl = `SELECT
		RunID,
		MIN(Identifier),
		MIN(Source),
		COUNT(DISTINCT Trace),
		COUNT(DISTINCT State),
		MIN(Captured),
		MAX(Captured)
	FROM
		sweep
	GROUP BY RunID
	ORDER BY MIN(Captured) DESC;`
	// getTraceTmpl returns one trace of a run ordered the way it was
	// captured. Captured breaks ties for states swept more than once.
	getTraceTmpl = `SELECT
		State,
		Captured,
		FreqGHz,
		Value
	FROM
		sweep
	WHERE
		RunID = ?
		AND Trace = ?
	ORDER BY
		Captured ASC,
		State ASC,
		FreqGHz ASC;`
)

// Run summarizes one mirrored sweep.
type Run struct {
	RunID      string    `json:"runID"`
	Identifier string    `json:"identifier"`
	Source     string    `json:"source"`
	Traces     int       `json:"traces"`
	States     int       `json:"states"`
	First      time.Time `json:"first"`
	Last       time.Time `json:"last"`
}

// StateRow is one state's values of a trace.
type StateRow struct {
	State  int       `json:"state"`
	Values []float64 `json:"values"`
}

// Trace is a trace rebuilt in the layout of a trace file.
type Trace struct {
	Freqs []float64  `json:"freqs"`
	Rows  []StateRow `json:"rows"`
}

func GetRuns(ctx context.Context, db *sql.DB, driver string) ([]Run, error) {
	rows, err := db.QueryContext(ctx, export.Rebind(driver, getRunsTmpl))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var first, last int64
		if err := rows.Scan(&r.RunID, &r.Identifier, &r.Source, &r.Traces, &r.States, &first, &last); err != nil {
			return nil, err
		}
		r.First, r.Last = time.UnixMilli(first).UTC(), time.UnixMilli(last).UTC()
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetTrace rebuilds one trace of a run. Every captured row becomes one
// StateRow; the header comes from the first row.
func GetTrace(ctx context.Context, db *sql.DB, driver, runID, trace string) (*Trace, error) {
	rows, err := db.QueryContext(ctx, export.Rebind(driver, getTraceTmpl), runID, trace)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	t := &Trace{}
	var cur *StateRow
	var curCaptured int64
	for rows.Next() {
		var state int
		var captured int64
		var freq, value float64
		if err := rows.Scan(&state, &captured, &freq, &value); err != nil {
			return nil, err
		}
		if cur == nil || state != cur.State || captured != curCaptured {
			t.Rows = append(t.Rows, StateRow{State: state})
			cur = &t.Rows[len(t.Rows)-1]
			curCaptured = captured
		}
		cur.Values = append(cur.Values, value)
		if len(t.Rows) == 1 {
			t.Freqs = append(t.Freqs, freq)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(t.Rows) == 0 {
		return nil, fmt.Errorf("no rows for trace %q of run %q", trace, runID)
	}
	return t, nil
}

// WriteCSV renders t exactly like a trace file written during the sweep.
func (t *Trace) WriteCSV(w io.Writer) error {
	var b strings.Builder
	b.WriteString(",")
	for _, f := range t.Freqs {
		b.WriteString(vna.FormatGHz(f) + ",")
	}
	b.WriteString("\n")
	for _, r := range t.Rows {
		b.WriteString(strconv.Itoa(r.State) + ",")
		for _, v := range r.Values {
			b.WriteString(vna.FormatGHz(v) + ",")
		}
		b.WriteString("\n")
	}
	_, err := io.WriteString(w, b.String())
	return err
}
