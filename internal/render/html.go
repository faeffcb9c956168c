package render

import (
	"html/template"
	"io"
)

const fragmentTemplates = `
{{define "analysis"}}<h3>Analysis Results</h3>
<ul class="nav nav-tabs" role="tablist">
{{- range $i, $t := .Tabs}}
  <li class="nav-item" role="presentation"><button class="nav-link{{if eq $i 0}} active{{end}}" data-bs-toggle="tab" data-bs-target="#tab-{{$t.ID}}" type="button" role="tab">{{$t.Title}}</button></li>
{{- end}}
</ul>
<div class="tab-content">
{{- range $i, $t := .Tabs}}
<div class="tab-pane fade{{if eq $i 0}} show active{{end}}" id="tab-{{$t.ID}}" role="tabpanel">
<table class="table table-sm">
<thead><tr>{{range $t.Columns}}<th>{{.}}</th>{{end}}</tr></thead>
<tbody>
{{- range $t.Rows}}
{{- if .Error}}
<tr class="table-danger"><td>{{.File}}</td><td colspan="{{sub (len $t.Columns) 1}}">Error: {{.Error}}</td></tr>
{{- else}}
<tr><td>{{.File}}</td>{{$row := .}}{{range $j, $c := .Cells}}{{if and $row.Level (last $j $row.Cells)}}<td><span class="badge bg-{{$row.Level}}">{{$c}}</span></td>{{else}}<td>{{$c}}</td>{{end}}{{end}}</tr>
{{- end}}
{{- end}}
</tbody>
</table>
</div>
{{- end}}
</div>
{{end}}

{{define "changelog"}}<h3>Changelog</h3><pre>{{.Text}}</pre>
{{end}}

{{define "message"}}<div class="chat-message chat-{{.Role}}"><strong>{{.Label}}:</strong> {{.Content}}</div>{{end}}

{{define "transcript"}}<div class="chat-transcript">
{{- range .Messages}}
{{template "message" .}}
{{- end}}
</div>
{{end}}

{{define "upload"}}<div class="upload-results">
{{- range .Items}}
<div class="card mb-2"><div class="card-body"><h5 class="card-title">{{.Filename}}</h5><p class="card-text">Lines: {{.Lines}} | Complexity: {{.Complexity}}</p></div></div>
{{- end}}
</div>
{{end}}

{{define "error"}}<div class="alert alert-danger">{{.Message}}</div>
{{end}}
`

// HTMLRenderer writes view models as Bootstrap-flavoured fragments. All
// backend-supplied text is escaped.
type HTMLRenderer struct {
	tmpl *template.Template
}

func NewHTMLRenderer() *HTMLRenderer {
	funcs := template.FuncMap{
		"sub":  func(a, b int) int { return a - b },
		"last": func(i int, s []string) bool { return i == len(s)-1 },
	}
	return &HTMLRenderer{tmpl: template.Must(template.New("fragments").Funcs(funcs).Parse(fragmentTemplates))}
}

func (r *HTMLRenderer) Analysis(w io.Writer, v AnalysisView) error {
	return r.tmpl.ExecuteTemplate(w, "analysis", v)
}

func (r *HTMLRenderer) Changelog(w io.Writer, v ChangelogView) error {
	return r.tmpl.ExecuteTemplate(w, "changelog", v)
}

func (r *HTMLRenderer) Transcript(w io.Writer, v TranscriptView) error {
	return r.tmpl.ExecuteTemplate(w, "transcript", v)
}

// Message renders one transcript entry, as pushed over the event stream.
func (r *HTMLRenderer) Message(w io.Writer, m Message) error {
	return r.tmpl.ExecuteTemplate(w, "message", m)
}

func (r *HTMLRenderer) Upload(w io.Writer, v UploadView) error {
	return r.tmpl.ExecuteTemplate(w, "upload", v)
}

func (r *HTMLRenderer) Error(w io.Writer, v ErrorView) error {
	return r.tmpl.ExecuteTemplate(w, "error", v)
}
