// Package render turns backend responses into medium-independent view
// models. Renderers in this package write those models as HTML fragments or
// plain text.
package render

import (
	"math"
	"strconv"

	"github.com/seanblong/codelens/pkg/models"
)

type Level string

const (
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelDanger  Level = "danger"
)

// CoverageLevel grades a docstring coverage percentage.
func CoverageLevel(coverage float64) Level {
	switch {
	case coverage >= 80:
		return LevelSuccess
	case coverage >= 50:
		return LevelWarning
	default:
		return LevelDanger
	}
}

const (
	TabSummary       = "summary"
	TabComplexity    = "complexity"
	TabDocumentation = "documentation"
)

// Row is one file in a tab. When Error is set, Cells is empty and the row
// spans the whole table.
type Row struct {
	File  string
	Cells []string
	Error string
	Level Level
}

type Tab struct {
	ID      string
	Title   string
	Columns []string
	Rows    []Row
}

type AnalysisView struct {
	Tabs []Tab
}

// Tab returns the tab with the given id.
func (v AnalysisView) Tab(id string) (Tab, bool) {
	for _, t := range v.Tabs {
		if t.ID == id {
			return t, true
		}
	}
	return Tab{}, false
}

// BuildAnalysis maps an analysis response to the summary, complexity and
// documentation tabs. Files keep response order; absent sections render as
// zeros.
func BuildAnalysis(resp *models.AnalysisResponse) AnalysisView {
	summary := Tab{ID: TabSummary, Title: "Summary", Columns: []string{"File", "Lines", "Code", "Functions", "Imports"}}
	complexity := Tab{ID: TabComplexity, Title: "Complexity", Columns: []string{"File", "If", "For", "While", "Try", "Max nesting"}}
	docs := Tab{ID: TabDocumentation, Title: "Documentation", Columns: []string{"File", "Documented functions", "Undocumented functions", "Documented classes", "Undocumented classes", "Coverage"}}

	if resp != nil {
		for _, f := range resp.Files {
			if f.Report.Error != "" {
				row := Row{File: f.Path, Error: f.Report.Error, Level: LevelDanger}
				summary.Rows = append(summary.Rows, row)
				complexity.Rows = append(complexity.Rows, row)
				docs.Rows = append(docs.Rows, row)
				continue
			}
			summary.Rows = append(summary.Rows, summaryRow(f))
			complexity.Rows = append(complexity.Rows, complexityRow(f))
			docs.Rows = append(docs.Rows, documentationRow(f))
		}
	}

	return AnalysisView{Tabs: []Tab{summary, complexity, docs}}
}

func summaryRow(f models.FileEntry) Row {
	var b models.BasicMetrics
	if f.Report.BasicMetrics != nil {
		b = *f.Report.BasicMetrics
	}
	imports := 0
	if f.Report.ImportsAnalysis != nil {
		imports = f.Report.ImportsAnalysis.TotalImports
	}
	return Row{File: f.Path, Cells: itoa(b.TotalLines, b.CodeLines, len(f.Report.Functions), imports)}
}

func complexityRow(f models.FileEntry) Row {
	var c models.ComplexityMetrics
	if f.Report.ComplexityMetrics != nil {
		c = *f.Report.ComplexityMetrics
	}
	return Row{File: f.Path, Cells: itoa(c.IfStatements, c.ForLoops, c.WhileLoops, c.TryExcept, c.NestedDepth)}
}

func documentationRow(f models.FileEntry) Row {
	var d models.DocumentationMetrics
	if f.Report.DocumentationMetrics != nil {
		d = *f.Report.DocumentationMetrics
	}
	cells := itoa(d.DocumentedFunctions, d.UndocumentedFunctions, d.DocumentedClasses, d.UndocumentedClasses)
	cells = append(cells, FormatPercent(d.DocstringCoverage))
	return Row{File: f.Path, Cells: cells, Level: CoverageLevel(d.DocstringCoverage)}
}

// FormatPercent prints a percentage with at most two decimals.
func FormatPercent(v float64) string {
	return strconv.FormatFloat(math.Round(v*100)/100, 'f', -1, 64) + "%"
}

func itoa(vs ...int) []string {
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = strconv.Itoa(v)
	}
	return out
}

type ChangelogView struct {
	Text string
}

func BuildChangelog(resp *models.ChangelogResponse) ChangelogView {
	if resp == nil {
		return ChangelogView{}
	}
	return ChangelogView{Text: resp.Changelog}
}

type Message struct {
	Role    models.Role
	Label   string
	Content string
}

type TranscriptView struct {
	Messages []Message
}

func BuildTranscript(msgs []models.ChatMessage) TranscriptView {
	out := TranscriptView{Messages: make([]Message, 0, len(msgs))}
	for _, m := range msgs {
		out.Messages = append(out.Messages, BuildMessage(m))
	}
	return out
}

func BuildMessage(m models.ChatMessage) Message {
	return Message{Role: m.Role, Label: roleLabel(m.Role), Content: m.Content}
}

func roleLabel(r models.Role) string {
	switch r {
	case models.RoleUser:
		return "You"
	case models.RoleAssistant:
		return "Assistant"
	default:
		return "System"
	}
}

type UploadItem struct {
	Filename   string
	Lines      int
	Complexity int
}

type UploadView struct {
	Items []UploadItem
}

// BuildUpload yields one item per result, in response order.
func BuildUpload(results []models.UploadResult) UploadView {
	out := UploadView{Items: make([]UploadItem, 0, len(results))}
	for _, r := range results {
		out.Items = append(out.Items, UploadItem{Filename: r.Filename, Lines: r.Lines, Complexity: r.Complexity})
	}
	return out
}

type ErrorView struct {
	Message string
}

// BuildError flattens any failure into the inline banner text.
func BuildError(err error) ErrorView {
	if err == nil {
		return ErrorView{Message: "Error: unknown error"}
	}
	return ErrorView{Message: "Error: " + err.Error()}
}
