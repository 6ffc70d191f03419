package web

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LaxmiNarayana31/ChatWithDB/internal/db"
)

func newPages(t *testing.T) *Pages {
	t.Helper()
	p, err := NewPages()
	require.NoError(t, err)
	return p
}

func TestMarkdownDropsRawHTML(t *testing.T) {
	p := newPages(t)
	out, err := p.Markdown("## Orders\n\n| id | total |\n|---|---|\n| 1 | 9.5 |\n\n<script>alert(1)</script>")
	require.NoError(t, err)

	html := string(out)
	assert.Contains(t, html, "<h2>Orders</h2>")
	assert.Contains(t, html, "<table>")
	assert.NotContains(t, html, "<script>")
}

func TestRenderConnect(t *testing.T) {
	p := newPages(t)
	var buf bytes.Buffer
	err := p.Render(&buf, PageConnect, ConnectView{
		Status:    &Status{Kind: "error", Message: "Connection failed"},
		DBOptions: DBOptions(db.SupportedTypes, db.DatabaseTypePostgreSQL),
		Host:      "db.local",
	})
	require.NoError(t, err)

	page := buf.String()
	assert.Contains(t, page, "Connection failed")
	assert.Contains(t, page, `action="/connect"`)
	assert.Contains(t, page, `<option value="POSTGRESQL" data-port="5432" selected>`)
	for _, label := range []string{"MYSQL", "MSSQL", "ORACLE", "SQLITE", "DUCKDB"} {
		assert.Contains(t, page, ">"+label+"</option>")
	}
	assert.Contains(t, page, `value="db.local"`)
	assert.NotContains(t, page, "http-equiv")
}

func TestRenderChatHidesSQLUntilToggled(t *testing.T) {
	p := newPages(t)
	summary, err := p.Markdown("**3** customers")
	require.NoError(t, err)
	view := ChatView{
		Database: "shop",
		DBType:   "MYSQL",
		Tables:   []string{"customers", "orders"},
		Question: "how many customers?",
		Summary:  summary,
		SQL:      "SELECT COUNT(*) FROM customers WHERE name <> ''",
	}

	var hidden bytes.Buffer
	require.NoError(t, p.Render(&hidden, PageChat, view))
	assert.Contains(t, hidden.String(), "<strong>3</strong> customers")
	assert.Contains(t, hidden.String(), "Show SQL")
	assert.NotContains(t, hidden.String(), "SELECT COUNT")
	assert.Contains(t, hidden.String(), "2 tables")

	view.ShowSQL = true
	var shown bytes.Buffer
	require.NoError(t, p.Render(&shown, PageChat, view))
	assert.Contains(t, shown.String(), "Hide SQL")
	assert.Contains(t, shown.String(), "SELECT COUNT(*) FROM customers WHERE name &lt;&gt; &#39;&#39;")
}

func TestRenderChatWithoutSQL(t *testing.T) {
	p := newPages(t)
	var buf bytes.Buffer
	require.NoError(t, p.Render(&buf, PageChat, ChatView{Database: "shop", DBType: "SQLITE"}))
	assert.NotContains(t, buf.String(), "toggle-sql")
}

func TestRenderExpired(t *testing.T) {
	p := newPages(t)
	var buf bytes.Buffer
	require.NoError(t, p.Render(&buf, PageExpired, ExpiredView{Seconds: ExpiryCountdown, Redirect: "/"}))
	page := buf.String()
	assert.Contains(t, page, `http-equiv="refresh"`)
	assert.Contains(t, page, "10;url=/")
	assert.True(t, strings.Contains(page, "Session expired! Please reconnect to your database."))
}

func TestDBOptions(t *testing.T) {
	opts := DBOptions(db.SupportedTypes, "")
	require.Len(t, opts, 6)
	for _, o := range opts {
		assert.False(t, o.Selected)
	}
	assert.Equal(t, DBOption{Value: "MSSQL", Label: "MSSQL", DefaultPort: "1433"}, opts[2])
	assert.Empty(t, opts[4].DefaultPort)
	assert.True(t, DBOptions(db.SupportedTypes, db.DatabaseTypeDuckDB)[5].Selected)

	servers := DBOptions([]db.DatabaseType{db.DatabaseTypeMySQL, db.DatabaseTypeOracle}, db.DatabaseTypeOracle)
	require.Len(t, servers, 2)
	assert.True(t, servers[1].Selected)
	assert.Equal(t, "1521", servers[1].DefaultPort)
}
