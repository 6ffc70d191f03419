// Package schema captures a database's table structure and renders it as the
// CREATE TABLE text handed to the SQL generation prompt.
package schema

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/LaxmiNarayana31/ChatWithDB/internal/db"
)

// Querier is the part of db.Database the introspection needs
type Querier interface {
	Query(ctx context.Context, query string, args ...interface{}) (*db.ResultSet, error)
	QueryLimit(ctx context.Context, maxRows int, query string, args ...interface{}) (*db.ResultSet, error)
	Type() db.DatabaseType
}

// Column describes a table column
type Column struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
}

// ForeignKey describes a reference from Columns to RefTable.RefColumns
type ForeignKey struct {
	Name       string   `json:"name,omitempty"`
	Columns    []string `json:"columns"`
	RefTable   string   `json:"ref_table"`
	RefColumns []string `json:"ref_columns"`
}

// Table is one captured base table
type Table struct {
	Name        string        `json:"name"`
	Columns     []Column      `json:"columns"`
	PrimaryKey  []string      `json:"primary_key,omitempty"`
	ForeignKeys []ForeignKey  `json:"foreign_keys,omitempty"`
	Sample      *db.ResultSet `json:"-"`
}

// Catalog is the captured schema of one database
type Catalog struct {
	DBType db.DatabaseType `json:"db_type"`
	Tables []Table         `json:"tables"`
}

// Options controls what Capture collects
type Options struct {
	// IncludeTables limits the capture to these tables, matched case-insensitively.
	IncludeTables []string
	// SampleRows appends that many example rows per table. Zero disables samples.
	SampleRows int
	Logger     *slog.Logger
}

// Capture introspects every base table visible to the connection.
func Capture(ctx context.Context, q Querier, opts Options) (*Catalog, error) {
	d, err := dialectFor(q.Type())
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	tables, err := d.introspect(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("introspect %s schema: %w", q.Type(), err)
	}
	tables = filterTables(tables, opts.IncludeTables)
	sort.Slice(tables, func(i, j int) bool { return tables[i].Name < tables[j].Name })

	if opts.SampleRows > 0 {
		for i := range tables {
			sample, err := q.QueryLimit(ctx, opts.SampleRows, d.sampleQuery(tables[i].Name, opts.SampleRows))
			if err != nil {
				logger.Warn("sample rows unavailable", "table", tables[i].Name, "error", err)
				continue
			}
			tables[i].Sample = sample
		}
	}

	return &Catalog{DBType: q.Type(), Tables: tables}, nil
}

func filterTables(tables []Table, include []string) []Table {
	if len(include) == 0 {
		return tables
	}
	wanted := make(map[string]struct{}, len(include))
	for _, name := range include {
		wanted[strings.ToLower(strings.TrimSpace(name))] = struct{}{}
	}
	kept := tables[:0]
	for _, t := range tables {
		if _, ok := wanted[strings.ToLower(t.Name)]; ok {
			kept = append(kept, t)
		}
	}
	return kept
}

// TableNames returns the captured table names in order
func (c *Catalog) TableNames() []string {
	names := make([]string, len(c.Tables))
	for i, t := range c.Tables {
		names[i] = t.Name
	}
	return names
}

// Table looks a table up by name, case-insensitively
func (c *Catalog) Table(name string) (*Table, bool) {
	for i := range c.Tables {
		if strings.EqualFold(c.Tables[i].Name, name) {
			return &c.Tables[i], true
		}
	}
	return nil, false
}

// tableBuilder assembles tables from flat catalog rows, keeping first-seen order.
type tableBuilder struct {
	order  []string
	tables map[string]*Table
	fks    map[string]map[string]int
}

func newTableBuilder() *tableBuilder {
	return &tableBuilder{
		tables: make(map[string]*Table),
		fks:    make(map[string]map[string]int),
	}
}

func (b *tableBuilder) table(name string) *Table {
	t, ok := b.tables[name]
	if !ok {
		t = &Table{Name: name}
		b.tables[name] = t
		b.order = append(b.order, name)
	}
	return t
}

func (b *tableBuilder) addColumn(table string, col Column) {
	t := b.table(table)
	t.Columns = append(t.Columns, col)
}

func (b *tableBuilder) addPrimaryKey(table, column string) {
	if t, ok := b.tables[table]; ok {
		t.PrimaryKey = append(t.PrimaryKey, column)
	}
}

func (b *tableBuilder) addForeignKey(name, table, column, refTable, refColumn string) {
	t, ok := b.tables[table]
	if !ok {
		return
	}
	byName := b.fks[table]
	if byName == nil {
		byName = make(map[string]int)
		b.fks[table] = byName
	}
	idx, ok := byName[name]
	if !ok {
		t.ForeignKeys = append(t.ForeignKeys, ForeignKey{Name: name, RefTable: refTable})
		idx = len(t.ForeignKeys) - 1
		byName[name] = idx
	}
	fk := &t.ForeignKeys[idx]
	fk.Columns = append(fk.Columns, column)
	fk.RefColumns = append(fk.RefColumns, refColumn)
}

func (b *tableBuilder) build() []Table {
	tables := make([]Table, 0, len(b.order))
	for _, name := range b.order {
		tables = append(tables, *b.tables[name])
	}
	return tables
}

func text(v db.Value) string {
	if v.IsNull() {
		return ""
	}
	if s, ok := v.AsString(); ok {
		return s
	}
	return v.String()
}
