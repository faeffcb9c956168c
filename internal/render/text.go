package render

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
)

// Renderer writes view models to one output medium.
type Renderer interface {
	Analysis(w io.Writer, v AnalysisView) error
	Changelog(w io.Writer, v ChangelogView) error
	Transcript(w io.Writer, v TranscriptView) error
	Upload(w io.Writer, v UploadView) error
	Error(w io.Writer, v ErrorView) error
}

var (
	_ Renderer = (*HTMLRenderer)(nil)
	_ Renderer = (*TextRenderer)(nil)
)

// TextRenderer writes aligned plain-text tables for terminals.
type TextRenderer struct{}

func NewTextRenderer() *TextRenderer { return &TextRenderer{} }

func (TextRenderer) Analysis(w io.Writer, v AnalysisView) error {
	for i, t := range v.Tabs {
		if i > 0 {
			if _, err := fmt.Fprintln(w); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(w, "== %s ==\n", t.Title); err != nil {
			return err
		}
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, strings.Join(t.Columns, "\t"))
		for _, r := range t.Rows {
			if r.Error != "" {
				fmt.Fprintf(tw, "%s\tError: %s\n", r.File, r.Error)
				continue
			}
			fmt.Fprintf(tw, "%s\t%s\n", r.File, strings.Join(r.Cells, "\t"))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	return nil
}

func (TextRenderer) Changelog(w io.Writer, v ChangelogView) error {
	_, err := fmt.Fprintf(w, "== Changelog ==\n%s\n", v.Text)
	return err
}

func (TextRenderer) Transcript(w io.Writer, v TranscriptView) error {
	for _, m := range v.Messages {
		if _, err := fmt.Fprintf(w, "%s: %s\n", m.Label, m.Content); err != nil {
			return err
		}
	}
	return nil
}

func (TextRenderer) Upload(w io.Writer, v UploadView) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "File\tLines\tComplexity")
	for _, it := range v.Items {
		fmt.Fprintf(tw, "%s\t%d\t%d\n", it.Filename, it.Lines, it.Complexity)
	}
	return tw.Flush()
}

func (TextRenderer) Error(w io.Writer, v ErrorView) error {
	_, err := fmt.Fprintln(w, v.Message)
	return err
}
