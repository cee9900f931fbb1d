package storage

import (
	"context"
	"database/sql"
	"strings"
	"testing"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, _, err := NewSQLiteDB(":memory:")
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestNewSQLiteDB_CreatesTables(t *testing.T) {
	db := newTestDB(t)

	tables := []string{"documents", "email_deliveries", "schema_migrations"}
	for _, table := range tables {
		var name string
		err := db.QueryRowContext(context.Background(), "SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found: %v", table, err)
		}
	}
}

func TestNewSQLiteDB_MigrationVersion(t *testing.T) {
	db := newTestDB(t)

	var version int
	err := db.QueryRowContext(context.Background(), "SELECT MAX(version) FROM schema_migrations").Scan(&version)
	if err != nil {
		t.Fatalf("querying version: %v", err)
	}
	if version != len(migrations) {
		t.Errorf("expected version %d, got %d", len(migrations), version)
	}
}

func TestNewSQLiteDB_FreshDBFlag(t *testing.T) {
	db, fresh, err := NewSQLiteDB(":memory:")
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	defer db.Close()

	if !fresh {
		t.Error("expected freshDB=true for new database")
	}
}

func TestNewSQLiteDB_ReopenIsNotFresh(t *testing.T) {
	path := t.TempDir() + "/nested/bookwell.db"

	db, fresh, err := NewSQLiteDB(path)
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	if !fresh {
		t.Error("expected first open to be fresh")
	}
	_ = db.Close()

	db, fresh, err = NewSQLiteDB(path)
	if err != nil {
		t.Fatalf("reopening database: %v", err)
	}
	defer db.Close()
	if fresh {
		t.Error("expected reopened database not to be fresh")
	}
}

func TestQueryToSQL(t *testing.T) {
	q := From(CollectionBookings).
		Where("professionalId", OpEqual, "p1").
		Where("status", OpIn, []string{"pending", "confirmed"}).
		Order(OrderByCreateTime, true).
		Take(10)

	stmt, args, err := q.toSQL()
	if err != nil {
		t.Fatalf("toSQL: %v", err)
	}
	for _, want := range []string{
		"json_extract(data, '$.professionalId') = ?",
		"json_extract(data, '$.status') IN (?,?)",
		"ORDER BY created_at DESC, seq DESC",
		"LIMIT ?",
	} {
		if !strings.Contains(stmt, want) {
			t.Errorf("statement %q missing %q", stmt, want)
		}
	}
	if len(args) != 5 {
		t.Errorf("expected 5 args, got %d: %v", len(args), args)
	}
}

func TestQueryToSQL_Aliases(t *testing.T) {
	q := From(CollectionBookings).
		Match(Filter{Field: "status", Op: OpEqual, Value: "confirmed", FoldCase: true}).
		WhereAny([]string{"date", "bookingDate"}, OpEqual, "2025-11-26")

	stmt, args, err := q.toSQL()
	if err != nil {
		t.Fatalf("toSQL: %v", err)
	}
	for _, want := range []string{
		"lower(trim(json_extract(data, '$.status'))) = lower(trim(?))",
		"COALESCE(NULLIF(trim(json_extract(data, '$.date')), ''), NULLIF(trim(json_extract(data, '$.bookingDate')), '')) = ?",
	} {
		if !strings.Contains(stmt, want) {
			t.Errorf("statement %q missing %q", stmt, want)
		}
	}
	if len(args) != 3 {
		t.Errorf("expected 3 args, got %d: %v", len(args), args)
	}
}

func TestQueryToSQL_EmptyInMatchesNothing(t *testing.T) {
	stmt, _, err := From(CollectionUsers).Where("id", OpIn, []string{}).toSQL()
	if err != nil {
		t.Fatalf("toSQL: %v", err)
	}
	if !strings.Contains(stmt, " AND 0") {
		t.Errorf("expected empty in-set to match nothing, got %q", stmt)
	}
}

func TestQueryValidate_RejectsInjection(t *testing.T) {
	cases := []Query{
		From(CollectionUsers).Where("name') OR 1=1 --", OpEqual, "x"),
		From(CollectionUsers).Where("name", Op(">"), "x"),
		From(CollectionUsers).Order("created at", false),
		{},
	}
	for _, q := range cases {
		if err := q.Validate(); err == nil {
			t.Errorf("expected validation error for %+v", q)
		}
	}
}

func TestBindValue(t *testing.T) {
	type status string

	if got := bindValue(true); got != int64(1) {
		t.Errorf("bindValue(true) = %v", got)
	}
	if got := bindValue(false); got != int64(0) {
		t.Errorf("bindValue(false) = %v", got)
	}
	if got := bindValue(status("confirmed")); got != "confirmed" {
		t.Errorf("bindValue(named string) = %#v", got)
	}
}
