package schema

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

var plainIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Render returns the table info text for the prompt: one CREATE TABLE block per
// table followed by its sample rows, tables separated by a blank line.
func (c *Catalog) Render() string {
	quote := func(name string) string { return name }
	if d, err := dialectFor(c.DBType); err == nil {
		quote = func(name string) string {
			if plainIdentifier.MatchString(name) {
				return name
			}
			return d.quote(name)
		}
	}

	sections := make([]string, 0, len(c.Tables))
	for _, t := range c.Tables {
		sections = append(sections, renderTable(t, quote))
	}
	return strings.Join(sections, "\n\n")
}

func renderTable(t Table, quote func(string) string) string {
	var sb strings.Builder
	sb.WriteString("CREATE TABLE ")
	sb.WriteString(quote(t.Name))
	sb.WriteString(" (\n")

	lines := make([]string, 0, len(t.Columns)+1+len(t.ForeignKeys))
	for _, col := range t.Columns {
		line := "\t" + quote(col.Name) + " " + col.Type
		if !col.Nullable {
			line += " NOT NULL"
		}
		lines = append(lines, line)
	}
	if len(t.PrimaryKey) > 0 {
		lines = append(lines, "\tPRIMARY KEY ("+joinQuoted(t.PrimaryKey, quote)+")")
	}
	for _, fk := range t.ForeignKeys {
		lines = append(lines, "\tFOREIGN KEY("+joinQuoted(fk.Columns, quote)+") REFERENCES "+
			quote(fk.RefTable)+" ("+joinQuoted(fk.RefColumns, quote)+")")
	}
	sb.WriteString(strings.Join(lines, ", \n"))
	sb.WriteString("\n)")

	if t.Sample != nil {
		sb.WriteString("\n\n/*\n")
		sb.WriteString(strconv.Itoa(len(t.Sample.Rows)))
		sb.WriteString(" rows from ")
		sb.WriteString(t.Name)
		sb.WriteString(" table:\n")
		sb.WriteString(strings.Join(t.Sample.ColumnNames(), "\t"))
		for _, row := range t.Sample.Rows {
			cells := make([]string, len(row.Values))
			for i, v := range row.Values {
				cells[i] = truncate(v.String(), 100)
			}
			sb.WriteString("\n")
			sb.WriteString(strings.Join(cells, "\t"))
		}
		sb.WriteString("\n*/")
	}
	return sb.String()
}

func joinQuoted(names []string, quote func(string) string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = quote(n)
	}
	return strings.Join(quoted, ", ")
}

// truncate cuts s to at most max bytes without splitting a rune
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}
