// Package prompts renders the two LLM prompts of the pipeline: SQL generation
// and result summarization.
package prompts

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"
)

// PreviewLimit is how many result rows the summary prompt shows
const PreviewLimit = 5

// SchemaHeader separates the SQL prompt from the schema text
const SchemaHeader = "\n\n**Database Schema:**\n"

//go:embed templates/*.tmpl
var templateFS embed.FS

var templates = template.Must(template.New("prompts").ParseFS(templateFS, "templates/*.tmpl"))

// SQLInput holds the variables of the SQL generation prompt
type SQLInput struct {
	Question     string
	DatabaseType string
	DatabaseName string
}

// SummaryInput holds the variables of the summary prompt. PreviewRows is the
// already serialized preview.
type SummaryInput struct {
	Question     string
	SQL          string
	TotalResults int
	Truncated    bool
	PreviewRows  string
	PreviewLimit int
}

// SQLPrompt renders the SQL generation instructions for a question
func SQLPrompt(in SQLInput) (string, error) {
	return render("sql.tmpl", in)
}

// SQLPromptWithSchema appends the captured schema to the SQL prompt
func SQLPromptWithSchema(in SQLInput, schema string) (string, error) {
	prompt, err := SQLPrompt(in)
	if err != nil {
		return "", err
	}
	return prompt + SchemaHeader + schema, nil
}

// SummaryPrompt renders the markdown summary instructions
func SummaryPrompt(in SummaryInput) (string, error) {
	if in.PreviewLimit <= 0 {
		in.PreviewLimit = PreviewLimit
	}
	if strings.TrimSpace(in.PreviewRows) == "" {
		in.PreviewRows = "[]"
	}
	return render("summary.tmpl", in)
}

func render(name string, data interface{}) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}
