package extraction

import (
	"context"
	"regexp"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestGetRuns(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("GROUP BY RunID").WillReturnRows(
		sqlmock.NewRows([]string{"RunID", "Identifier", "Source", "Traces", "States", "First", "Last"}).
			AddRow("run-2", "station-a", "keysight", 2, 128, int64(1700000100000), int64(1700000200000)).
			AddRow("run-1", "station-a", "rohde", 1, 4, int64(1700000000000), int64(1700000001000)))

	runs, err := GetRuns(context.Background(), db, "sqlite3")
	if err != nil {
		t.Fatalf("GetRuns: %v", err)
	}
	if len(runs) != 2 || runs[0].RunID != "run-2" || runs[0].States != 128 || runs[1].Source != "rohde" {
		t.Fatalf("unexpected runs %+v", runs)
	}
	if got := runs[1].Last.Sub(runs[1].First); got.Seconds() != 1 {
		t.Fatalf("expected 1s between first and last capture, got %s", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGetTraceWriteCSV(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("RunID = $1")).
		WithArgs("run-1", "S11").
		WillReturnRows(sqlmock.NewRows([]string{"State", "Captured", "FreqGHz", "Value"}).
			AddRow(5, int64(1), 10.0, 1.0).
			AddRow(5, int64(1), 11.0, 2.0).
			AddRow(5, int64(1), 12.0, 3.0).
			AddRow(7, int64(2), 10.0, 1.5).
			AddRow(7, int64(2), 11.0, 2.5).
			AddRow(7, int64(2), 12.0, 3.5))

	tr, err := GetTrace(context.Background(), db, "postgres", "run-1", "S11")
	if err != nil {
		t.Fatalf("GetTrace: %v", err)
	}
	var b strings.Builder
	if err := tr.WriteCSV(&b); err != nil {
		t.Fatal(err)
	}
	if want := ",10.0,11.0,12.0,\n5,1.0,2.0,3.0,\n7,1.5,2.5,3.5,\n"; b.String() != want {
		t.Fatalf("csv = %q, want %q", b.String(), want)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGetTraceRepeatedState(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("FROM").WillReturnRows(sqlmock.NewRows([]string{"State", "Captured", "FreqGHz", "Value"}).
		AddRow(3, int64(1), 10.0, 1.0).
		AddRow(3, int64(2), 10.0, 1.1))

	tr, err := GetTrace(context.Background(), db, "sqlite3", "run-1", "S21")
	if err != nil {
		t.Fatalf("GetTrace: %v", err)
	}
	if len(tr.Rows) != 2 || len(tr.Freqs) != 1 {
		t.Fatalf("expected two captures of state 3 on one frequency, got %+v", tr)
	}
}

func TestGetTraceMissing(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("FROM").WillReturnRows(sqlmock.NewRows([]string{"State", "Captured", "FreqGHz", "Value"}))
	if _, err := GetTrace(context.Background(), db, "sqlite3", "nope", "S21"); err == nil {
		t.Fatal("expected error for unknown trace")
	}
}
