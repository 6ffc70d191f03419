package schema

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/lib/pq"

	"github.com/LaxmiNarayana31/ChatWithDB/internal/db"
)

type dialect interface {
	introspect(ctx context.Context, q Querier) ([]Table, error)
	sampleQuery(table string, n int) string
	quote(name string) string
}

func dialectFor(t db.DatabaseType) (dialect, error) {
	switch t {
	case db.DatabaseTypePostgreSQL:
		return postgresDialect, nil
	case db.DatabaseTypeDuckDB:
		return duckdbDialect, nil
	case db.DatabaseTypeMySQL:
		return mysqlDialect, nil
	case db.DatabaseTypeMSSQL:
		return mssqlDialect, nil
	case db.DatabaseTypeOracle:
		return oracleDialect, nil
	case db.DatabaseTypeSQLite:
		return sqliteDialect{}, nil
	}
	return nil, fmt.Errorf("%w: %s", db.ErrUnsupportedDatabase, t)
}

// catalogDialect introspects vendors that expose their catalog through three
// flat queries: columns, primary key columns and foreign key column pairs.
type catalogDialect struct {
	columnsSQL     string
	primaryKeysSQL string
	foreignKeysSQL string
	quoteFn        func(string) string
	limitFn        func(quotedTable string, n int) string
}

func (d catalogDialect) quote(name string) string {
	return d.quoteFn(name)
}

func (d catalogDialect) sampleQuery(table string, n int) string {
	return d.limitFn(d.quote(table), n)
}

func (d catalogDialect) introspect(ctx context.Context, q Querier) ([]Table, error) {
	b := newTableBuilder()

	cols, err := q.Query(ctx, d.columnsSQL)
	if err != nil {
		return nil, fmt.Errorf("list columns: %w", err)
	}
	for _, row := range cols.Rows {
		if len(row.Values) < 4 {
			continue
		}
		nullable := strings.ToUpper(text(row.Values[3]))
		b.addColumn(text(row.Values[0]), Column{
			Name:     text(row.Values[1]),
			Type:     strings.ToUpper(text(row.Values[2])),
			Nullable: nullable == "YES" || nullable == "Y",
		})
	}

	pks, err := q.Query(ctx, d.primaryKeysSQL)
	if err != nil {
		return nil, fmt.Errorf("list primary keys: %w", err)
	}
	for _, row := range pks.Rows {
		if len(row.Values) >= 2 {
			b.addPrimaryKey(text(row.Values[0]), text(row.Values[1]))
		}
	}

	fks, err := q.Query(ctx, d.foreignKeysSQL)
	if err != nil {
		return nil, fmt.Errorf("list foreign keys: %w", err)
	}
	for _, row := range fks.Rows {
		if len(row.Values) >= 5 {
			b.addForeignKey(text(row.Values[0]), text(row.Values[1]), text(row.Values[2]),
				text(row.Values[3]), text(row.Values[4]))
		}
	}

	return b.build(), nil
}

func limitClause(quotedTable string, n int) string {
	return fmt.Sprintf("SELECT * FROM %s LIMIT %d", quotedTable, n)
}

const ansiColumnsSQL = `SELECT c.table_name, c.column_name,
	CASE WHEN c.character_maximum_length IS NOT NULL
		THEN c.data_type || '(' || CAST(c.character_maximum_length AS VARCHAR) || ')'
		ELSE c.data_type END AS column_type,
	c.is_nullable
FROM information_schema.columns c
JOIN information_schema.tables t
	ON t.table_schema = c.table_schema AND t.table_name = c.table_name
WHERE c.table_schema = current_schema() AND t.table_type = 'BASE TABLE'
ORDER BY c.table_name, c.ordinal_position`

const ansiPrimaryKeysSQL = `SELECT tc.table_name, kcu.column_name
FROM information_schema.table_constraints tc
JOIN information_schema.key_column_usage kcu
	ON kcu.constraint_schema = tc.constraint_schema
	AND kcu.constraint_name = tc.constraint_name
	AND kcu.table_name = tc.table_name
WHERE tc.constraint_type = 'PRIMARY KEY' AND tc.table_schema = current_schema()
ORDER BY tc.table_name, kcu.ordinal_position`

const ansiForeignKeysSQL = `SELECT kcu.constraint_name, kcu.table_name, kcu.column_name,
	ref.table_name AS ref_table, ref.column_name AS ref_column
FROM information_schema.referential_constraints rc
JOIN information_schema.key_column_usage kcu
	ON kcu.constraint_schema = rc.constraint_schema AND kcu.constraint_name = rc.constraint_name
JOIN information_schema.key_column_usage ref
	ON ref.constraint_schema = rc.unique_constraint_schema
	AND ref.constraint_name = rc.unique_constraint_name
	AND ref.ordinal_position = kcu.position_in_unique_constraint
WHERE kcu.table_schema = current_schema()
ORDER BY kcu.table_name, kcu.constraint_name, kcu.ordinal_position`

var postgresDialect = catalogDialect{
	columnsSQL:     ansiColumnsSQL,
	primaryKeysSQL: ansiPrimaryKeysSQL,
	foreignKeysSQL: ansiForeignKeysSQL,
	quoteFn:        pq.QuoteIdentifier,
	limitFn:        limitClause,
}

var duckdbDialect = catalogDialect{
	columnsSQL:     ansiColumnsSQL,
	primaryKeysSQL: ansiPrimaryKeysSQL,
	foreignKeysSQL: ansiForeignKeysSQL,
	quoteFn:        pq.QuoteIdentifier,
	limitFn:        limitClause,
}

var mysqlDialect = catalogDialect{
	columnsSQL: `SELECT c.TABLE_NAME, c.COLUMN_NAME, c.COLUMN_TYPE, c.IS_NULLABLE
FROM information_schema.COLUMNS c
JOIN information_schema.TABLES t
	ON t.TABLE_SCHEMA = c.TABLE_SCHEMA AND t.TABLE_NAME = c.TABLE_NAME
WHERE c.TABLE_SCHEMA = DATABASE() AND t.TABLE_TYPE = 'BASE TABLE'
ORDER BY c.TABLE_NAME, c.ORDINAL_POSITION`,
	primaryKeysSQL: `SELECT TABLE_NAME, COLUMN_NAME
FROM information_schema.KEY_COLUMN_USAGE
WHERE TABLE_SCHEMA = DATABASE() AND CONSTRAINT_NAME = 'PRIMARY'
ORDER BY TABLE_NAME, ORDINAL_POSITION`,
	foreignKeysSQL: `SELECT CONSTRAINT_NAME, TABLE_NAME, COLUMN_NAME, REFERENCED_TABLE_NAME, REFERENCED_COLUMN_NAME
FROM information_schema.KEY_COLUMN_USAGE
WHERE TABLE_SCHEMA = DATABASE() AND REFERENCED_TABLE_NAME IS NOT NULL
ORDER BY TABLE_NAME, CONSTRAINT_NAME, ORDINAL_POSITION`,
	quoteFn: func(name string) string {
		return "`" + strings.ReplaceAll(name, "`", "``") + "`"
	},
	limitFn: limitClause,
}

var mssqlDialect = catalogDialect{
	columnsSQL: `SELECT c.TABLE_NAME, c.COLUMN_NAME,
	c.DATA_TYPE + CASE
		WHEN c.CHARACTER_MAXIMUM_LENGTH = -1 THEN '(max)'
		WHEN c.CHARACTER_MAXIMUM_LENGTH IS NOT NULL THEN '(' + CAST(c.CHARACTER_MAXIMUM_LENGTH AS VARCHAR(10)) + ')'
		ELSE '' END AS COLUMN_TYPE,
	c.IS_NULLABLE
FROM INFORMATION_SCHEMA.COLUMNS c
JOIN INFORMATION_SCHEMA.TABLES t
	ON t.TABLE_SCHEMA = c.TABLE_SCHEMA AND t.TABLE_NAME = c.TABLE_NAME
WHERE c.TABLE_SCHEMA = SCHEMA_NAME() AND t.TABLE_TYPE = 'BASE TABLE'
ORDER BY c.TABLE_NAME, c.ORDINAL_POSITION`,
	primaryKeysSQL: `SELECT tc.TABLE_NAME, kcu.COLUMN_NAME
FROM INFORMATION_SCHEMA.TABLE_CONSTRAINTS tc
JOIN INFORMATION_SCHEMA.KEY_COLUMN_USAGE kcu
	ON kcu.CONSTRAINT_SCHEMA = tc.CONSTRAINT_SCHEMA AND kcu.CONSTRAINT_NAME = tc.CONSTRAINT_NAME
WHERE tc.CONSTRAINT_TYPE = 'PRIMARY KEY' AND tc.TABLE_SCHEMA = SCHEMA_NAME()
ORDER BY tc.TABLE_NAME, kcu.ORDINAL_POSITION`,
	foreignKeysSQL: `SELECT kcu.CONSTRAINT_NAME, kcu.TABLE_NAME, kcu.COLUMN_NAME, ref.TABLE_NAME, ref.COLUMN_NAME
FROM INFORMATION_SCHEMA.REFERENTIAL_CONSTRAINTS rc
JOIN INFORMATION_SCHEMA.KEY_COLUMN_USAGE kcu
	ON kcu.CONSTRAINT_SCHEMA = rc.CONSTRAINT_SCHEMA AND kcu.CONSTRAINT_NAME = rc.CONSTRAINT_NAME
JOIN INFORMATION_SCHEMA.KEY_COLUMN_USAGE ref
	ON ref.CONSTRAINT_SCHEMA = rc.UNIQUE_CONSTRAINT_SCHEMA
	AND ref.CONSTRAINT_NAME = rc.UNIQUE_CONSTRAINT_NAME
	AND ref.ORDINAL_POSITION = kcu.ORDINAL_POSITION
WHERE kcu.TABLE_SCHEMA = SCHEMA_NAME()
ORDER BY kcu.TABLE_NAME, kcu.CONSTRAINT_NAME, kcu.ORDINAL_POSITION`,
	quoteFn: func(name string) string {
		return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
	},
	limitFn: func(quotedTable string, n int) string {
		return fmt.Sprintf("SELECT TOP %d * FROM %s", n, quotedTable)
	},
}

var oracleDialect = catalogDialect{
	columnsSQL: `SELECT c.table_name, c.column_name,
	CASE WHEN c.data_type IN ('VARCHAR2', 'NVARCHAR2', 'CHAR', 'NCHAR', 'RAW')
		THEN c.data_type || '(' || c.char_length || ')'
		ELSE c.data_type END AS column_type,
	c.nullable
FROM user_tab_columns c
JOIN user_tables t ON t.table_name = c.table_name
ORDER BY c.table_name, c.column_id`,
	primaryKeysSQL: `SELECT c.table_name, cc.column_name
FROM user_constraints c
JOIN user_cons_columns cc ON cc.constraint_name = c.constraint_name
WHERE c.constraint_type = 'P'
ORDER BY c.table_name, cc.position`,
	foreignKeysSQL: `SELECT c.constraint_name, c.table_name, cc.column_name, rc.table_name, rcc.column_name
FROM user_constraints c
JOIN user_cons_columns cc ON cc.constraint_name = c.constraint_name
JOIN user_constraints rc ON rc.constraint_name = c.r_constraint_name
JOIN user_cons_columns rcc ON rcc.constraint_name = rc.constraint_name AND rcc.position = cc.position
WHERE c.constraint_type = 'R'
ORDER BY c.table_name, c.constraint_name, cc.position`,
	quoteFn: pq.QuoteIdentifier,
	limitFn: func(quotedTable string, n int) string {
		return fmt.Sprintf("SELECT * FROM %s FETCH FIRST %d ROWS ONLY", quotedTable, n)
	},
}

// sqliteDialect walks sqlite_master and asks the PRAGMAs for each table.
type sqliteDialect struct{}

func (sqliteDialect) quote(name string) string {
	return pq.QuoteIdentifier(name)
}

func (d sqliteDialect) sampleQuery(table string, n int) string {
	return limitClause(d.quote(table), n)
}

func (d sqliteDialect) introspect(ctx context.Context, q Querier) ([]Table, error) {
	names, err := q.Query(ctx, `SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}

	b := newTableBuilder()
	for _, row := range names.Rows {
		name := text(row.Values[0])
		b.table(name)

		info, err := q.Query(ctx, fmt.Sprintf("PRAGMA table_info(%s)", d.quote(name)))
		if err != nil {
			return nil, fmt.Errorf("table info %s: %w", name, err)
		}
		type pkCol struct {
			pos  int64
			name string
		}
		var pk []pkCol
		// cid, name, type, notnull, dflt_value, pk
		for _, col := range info.Rows {
			if len(col.Values) < 6 {
				continue
			}
			notNull, _ := col.Values[3].AsInt64()
			b.addColumn(name, Column{
				Name:     text(col.Values[1]),
				Type:     strings.ToUpper(text(col.Values[2])),
				Nullable: notNull == 0,
			})
			if pos, _ := col.Values[5].AsInt64(); pos > 0 {
				pk = append(pk, pkCol{pos: pos, name: text(col.Values[1])})
			}
		}
		sort.Slice(pk, func(i, j int) bool { return pk[i].pos < pk[j].pos })
		for _, c := range pk {
			b.addPrimaryKey(name, c.name)
		}

		fks, err := q.Query(ctx, fmt.Sprintf("PRAGMA foreign_key_list(%s)", d.quote(name)))
		if err != nil {
			return nil, fmt.Errorf("foreign keys %s: %w", name, err)
		}
		// id, seq, table, from, to, on_update, on_delete, match
		for _, fk := range fks.Rows {
			if len(fk.Values) < 5 {
				continue
			}
			b.addForeignKey(fmt.Sprintf("fk_%s", text(fk.Values[0])), name,
				text(fk.Values[3]), text(fk.Values[2]), text(fk.Values[4]))
		}
	}
	return b.build(), nil
}
