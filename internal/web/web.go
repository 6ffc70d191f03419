// Package web renders the two server side screens: the connect form and the
// chat page, plus the expiry notice shown when a schema dump is gone.
package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"strconv"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"

	"github.com/LaxmiNarayana31/ChatWithDB/internal/db"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	PageConnect = "connect.html"
	PageChat    = "chat.html"
	PageExpired = "expired.html"
)

// ExpiryCountdown is how long the expiry notice waits before sending the
// browser back to the connect form
const ExpiryCountdown = 10

// Pages holds the parsed templates and the markdown renderer
type Pages struct {
	templates *template.Template
	markdown  goldmark.Markdown
}

// NewPages parses the embedded templates
func NewPages() (*Pages, error) {
	tmpl, err := template.New("").ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return &Pages{
		templates: tmpl,
		// Raw HTML in model output is dropped, not passed through.
		markdown: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(html.WithHardWraps()),
		),
	}, nil
}

// Render executes one page template
func (p *Pages) Render(w io.Writer, page string, data interface{}) error {
	return p.templates.ExecuteTemplate(w, page, data)
}

// Markdown converts a model summary to HTML
func (p *Pages) Markdown(src string) (template.HTML, error) {
	var buf bytes.Buffer
	if err := p.markdown.Convert([]byte(src), &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return template.HTML(buf.String()), nil
}

// DBOption is one entry of the database type select
type DBOption struct {
	Value       string
	Label       string
	DefaultPort string
	Selected    bool
}

// DBOptions builds the engine dropdown for types, in the given order
func DBOptions(types []db.DatabaseType, selected db.DatabaseType) []DBOption {
	options := make([]DBOption, 0, len(types))
	for _, t := range types {
		opt := DBOption{Value: string(t), Label: string(t), Selected: t == selected}
		if port := t.DefaultPort(); port > 0 {
			opt.DefaultPort = strconv.Itoa(port)
		}
		options = append(options, opt)
	}
	return options
}

// Status is the coloured line above a page
type Status struct {
	Kind    string
	Message string
}

// ConnectView feeds connect.html
type ConnectView struct {
	Status    *Status
	DBOptions []DBOption
	Host      string
	User      string
	Port      string
	Database  string
}

// ChatView feeds chat.html
type ChatView struct {
	Status   *Status
	Database string
	DBType   string
	Tables   []string

	Question string
	Summary  template.HTML
	SQL      string
	ShowSQL  bool
}

// ExpiredView feeds expired.html
type ExpiredView struct {
	Seconds  int
	Redirect string
}
