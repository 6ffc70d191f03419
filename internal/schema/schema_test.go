package schema

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/LaxmiNarayana31/ChatWithDB/internal/db"
)

func newSQLMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })
	return sqlDB, mock
}

func assertSQLMock(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}

func TestCapturePostgres(t *testing.T) {
	sqlDB, mock := newSQLMock(t)
	database := db.NewDatabase(sqlDB, db.ConnectionConfig{DatabaseType: db.DatabaseTypePostgreSQL})

	mock.ExpectQuery(`FROM information_schema\.columns`).WillReturnRows(
		sqlmock.NewRows([]string{"table_name", "column_name", "column_type", "is_nullable"}).
			AddRow("orders", "id", "integer", "NO").
			AddRow("orders", "customer_id", "integer", "YES").
			AddRow("customers", "id", "integer", "NO").
			AddRow("customers", "email", "character varying(255)", "YES"))
	mock.ExpectQuery(`constraint_type = 'PRIMARY KEY'`).WillReturnRows(
		sqlmock.NewRows([]string{"table_name", "column_name"}).
			AddRow("customers", "id").
			AddRow("orders", "id"))
	mock.ExpectQuery(`referential_constraints`).WillReturnRows(
		sqlmock.NewRows([]string{"constraint_name", "table_name", "column_name", "ref_table", "ref_column"}).
			AddRow("orders_customer_fk", "orders", "customer_id", "customers", "id"))

	catalog, err := Capture(context.Background(), database, Options{})
	if err != nil {
		t.Fatalf("Capture() error = %v", err)
	}
	if got := strings.Join(catalog.TableNames(), ","); got != "customers,orders" {
		t.Fatalf("tables = %s", got)
	}

	want := "CREATE TABLE customers (\n" +
		"\tid INTEGER NOT NULL, \n" +
		"\temail CHARACTER VARYING(255), \n" +
		"\tPRIMARY KEY (id)\n" +
		")\n\n" +
		"CREATE TABLE orders (\n" +
		"\tid INTEGER NOT NULL, \n" +
		"\tcustomer_id INTEGER, \n" +
		"\tPRIMARY KEY (id), \n" +
		"\tFOREIGN KEY(customer_id) REFERENCES customers (id)\n" +
		")"
	if got := catalog.Render(); got != want {
		t.Fatalf("Render() =\n%s\nwant\n%s", got, want)
	}
	assertSQLMock(t, mock)
}

func TestCaptureMySQLWithFilterAndSamples(t *testing.T) {
	sqlDB, mock := newSQLMock(t)
	database := db.NewDatabase(sqlDB, db.ConnectionConfig{DatabaseType: db.DatabaseTypeMySQL})

	mock.ExpectQuery(`information_schema\.COLUMNS`).WillReturnRows(
		sqlmock.NewRows([]string{"TABLE_NAME", "COLUMN_NAME", "COLUMN_TYPE", "IS_NULLABLE"}).
			AddRow("customers", "id", "int", "NO").
			AddRow("customers", "name", "varchar(64)", "YES").
			AddRow("audit_log", "id", "bigint", "NO"))
	mock.ExpectQuery(`CONSTRAINT_NAME = 'PRIMARY'`).WillReturnRows(
		sqlmock.NewRows([]string{"TABLE_NAME", "COLUMN_NAME"}).AddRow("customers", "id"))
	mock.ExpectQuery(`REFERENCED_TABLE_NAME IS NOT NULL`).WillReturnRows(
		sqlmock.NewRows([]string{"CONSTRAINT_NAME", "TABLE_NAME", "COLUMN_NAME", "REFERENCED_TABLE_NAME", "REFERENCED_COLUMN_NAME"}))
	mock.ExpectQuery("SELECT \\* FROM `customers` LIMIT 2").WillReturnRows(
		sqlmock.NewRows([]string{"id", "name"}).
			AddRow(int64(1), "Ada").
			AddRow(int64(2), nil))

	catalog, err := Capture(context.Background(), database, Options{
		IncludeTables: []string{"Customers"},
		SampleRows:    2,
	})
	if err != nil {
		t.Fatalf("Capture() error = %v", err)
	}
	if len(catalog.Tables) != 1 {
		t.Fatalf("expected only the included table, got %v", catalog.TableNames())
	}

	rendered := catalog.Render()
	wantSample := "/*\n2 rows from customers table:\nid\tname\n1\tAda\n2\tNULL\n*/"
	if !strings.HasSuffix(rendered, wantSample) {
		t.Fatalf("Render() =\n%s", rendered)
	}
	if !strings.Contains(rendered, "\tname VARCHAR(64), \n") {
		t.Fatalf("column line missing:\n%s", rendered)
	}
	assertSQLMock(t, mock)
}

func TestCaptureSQLite(t *testing.T) {
	sqlDB, mock := newSQLMock(t)
	database := db.NewDatabase(sqlDB, db.ConnectionConfig{DatabaseType: db.DatabaseTypeSQLite})

	mock.ExpectQuery(`FROM sqlite_master`).WillReturnRows(
		sqlmock.NewRows([]string{"name"}).AddRow("line items"))
	mock.ExpectQuery(`PRAGMA table_info\("line items"\)`).WillReturnRows(
		sqlmock.NewRows([]string{"cid", "name", "type", "notnull", "dflt_value", "pk"}).
			AddRow(int64(0), "sku", "text", int64(1), nil, int64(2)).
			AddRow(int64(1), "order_id", "integer", int64(1), nil, int64(1)).
			AddRow(int64(2), "qty", "integer", int64(0), nil, int64(0)))
	mock.ExpectQuery(`PRAGMA foreign_key_list\("line items"\)`).WillReturnRows(
		sqlmock.NewRows([]string{"id", "seq", "table", "from", "to", "on_update", "on_delete", "match"}).
			AddRow(int64(0), int64(0), "orders", "order_id", "id", "NO ACTION", "CASCADE", "NONE"))

	catalog, err := Capture(context.Background(), database, Options{})
	if err != nil {
		t.Fatalf("Capture() error = %v", err)
	}

	table, ok := catalog.Table("LINE ITEMS")
	if !ok {
		t.Fatal("table not captured")
	}
	if strings.Join(table.PrimaryKey, ",") != "order_id,sku" {
		t.Fatalf("primary key = %v", table.PrimaryKey)
	}
	if len(table.ForeignKeys) != 1 || table.ForeignKeys[0].RefTable != "orders" {
		t.Fatalf("foreign keys = %+v", table.ForeignKeys)
	}

	rendered := catalog.Render()
	if !strings.HasPrefix(rendered, `CREATE TABLE "line items" (`) {
		t.Fatalf("expected quoted table name:\n%s", rendered)
	}
	if !strings.Contains(rendered, "\tqty INTEGER, \n") {
		t.Fatalf("nullable column rendered wrong:\n%s", rendered)
	}
	assertSQLMock(t, mock)
}

func TestCaptureFailsOnCatalogError(t *testing.T) {
	sqlDB, mock := newSQLMock(t)
	database := db.NewDatabase(sqlDB, db.ConnectionConfig{DatabaseType: db.DatabaseTypeOracle})

	mock.ExpectQuery(`FROM user_tab_columns`).WillReturnError(errors.New("ORA-00942: table or view does not exist"))

	if _, err := Capture(context.Background(), database, Options{}); err == nil {
		t.Fatal("expected error")
	}
	assertSQLMock(t, mock)
}

func TestCaptureUnsupportedType(t *testing.T) {
	sqlDB, _ := newSQLMock(t)
	database := db.NewDatabase(sqlDB, db.ConnectionConfig{DatabaseType: "CASSANDRA"})

	_, err := Capture(context.Background(), database, Options{})
	if !errors.Is(err, db.ErrUnsupportedDatabase) {
		t.Fatalf("expected ErrUnsupportedDatabase, got %v", err)
	}
}

func TestDialectQuoting(t *testing.T) {
	tests := []struct {
		dbType db.DatabaseType
		name   string
		want   string
	}{
		{db.DatabaseTypePostgreSQL, `we"ird`, `"we""ird"`},
		{db.DatabaseTypeMySQL, "order", "`order`"},
		{db.DatabaseTypeMSSQL, "a]b", "[a]]b]"},
		{db.DatabaseTypeOracle, "EMP", `"EMP"`},
	}
	for _, tt := range tests {
		d, err := dialectFor(tt.dbType)
		if err != nil {
			t.Fatalf("dialectFor(%s) error = %v", tt.dbType, err)
		}
		if got := d.quote(tt.name); got != tt.want {
			t.Errorf("quote(%s, %q) = %q, want %q", tt.dbType, tt.name, got, tt.want)
		}
	}
}

func TestRenderTruncatesSamplesOnRuneBoundary(t *testing.T) {
	long := strings.Repeat("a", 99) + "é"
	catalog := &Catalog{
		DBType: db.DatabaseTypePostgreSQL,
		Tables: []Table{{
			Name:    "notes",
			Columns: []Column{{Name: "body", Type: "text", Nullable: true}},
			Sample: &db.ResultSet{
				Columns:  []db.Column{{Name: "body", Type: db.ValueTypeText}},
				Rows:     []db.Row{{Values: []db.Value{db.NewTextValue(long)}}},
				RowCount: 1,
			},
		}},
	}

	rendered := catalog.Render()
	if !utf8.ValidString(rendered) {
		t.Fatalf("Render() produced invalid UTF-8: %q", rendered)
	}
	if !strings.Contains(rendered, "\n"+strings.Repeat("a", 99)+"\n*/") {
		t.Fatalf("Render() =\n%s", rendered)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"abcdef", 3, "abc"},
		{"aé", 2, "a"},
		{"日本語", 4, "日"},
		{"日本語", 6, "日本"},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.max); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}
