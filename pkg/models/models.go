package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

type BasicMetrics struct {
	TotalLines   int `json:"total_lines"`
	EmptyLines   int `json:"empty_lines"`
	CommentLines int `json:"comment_lines"`
	CodeLines    int `json:"code_lines"`
}

type Function struct {
	Name         string `json:"name"`
	Args         int    `json:"args"`
	Defaults     int    `json:"defaults"`
	HasDocstring bool   `json:"has_docstring"`
	Decorators   int    `json:"decorators"`
	LineNumber   int    `json:"line_number"`
}

type ImportsAnalysis struct {
	StandardLib  []string `json:"standard_lib"`
	ThirdParty   []string `json:"third_party"`
	Local        []string `json:"local"`
	TotalImports int      `json:"total_imports"`
}

type ComplexityMetrics struct {
	IfStatements int `json:"if_statements"`
	ForLoops     int `json:"for_loops"`
	WhileLoops   int `json:"while_loops"`
	TryExcept    int `json:"try_except"`
	NestedDepth  int `json:"nested_depth"`
}

type DocumentationMetrics struct {
	DocumentedFunctions   int     `json:"documented_functions"`
	UndocumentedFunctions int     `json:"undocumented_functions"`
	DocumentedClasses     int     `json:"documented_classes"`
	UndocumentedClasses   int     `json:"undocumented_classes"`
	DocstringCoverage     float64 `json:"docstring_coverage"`
}

type LineLength struct {
	Max    int     `json:"max"`
	Avg    float64 `json:"avg"`
	Over80 int     `json:"over_80"`
}

type Indentation struct {
	Spaces int `json:"spaces"`
	Tabs   int `json:"tabs"`
}

type CodeStyle struct {
	LineLength         LineLength  `json:"line_length"`
	Indentation        Indentation `json:"indentation"`
	TrailingWhitespace int         `json:"trailing_whitespace"`
}

// FileReport is the per-file metrics record returned by /analyze. Every
// section is optional; a non-empty Error means the backend could not analyze
// the file.
type FileReport struct {
	BasicMetrics         *BasicMetrics         `json:"basic_metrics,omitempty"`
	Functions            []Function            `json:"functions,omitempty"`
	ImportsAnalysis      *ImportsAnalysis      `json:"imports_analysis,omitempty"`
	ComplexityMetrics    *ComplexityMetrics    `json:"complexity_metrics,omitempty"`
	DocumentationMetrics *DocumentationMetrics `json:"documentation_metrics,omitempty"`
	CodeStyle            *CodeStyle            `json:"code_style,omitempty"`
	Error                string                `json:"error,omitempty"`
}

type FileEntry struct {
	Path   string
	Report FileReport
}

// AnalysisResponse keeps the files in the order the backend sent them.
type AnalysisResponse struct {
	Files []FileEntry
}

// Len returns the number of analyzed files.
func (a *AnalysisResponse) Len() int {
	if a == nil {
		return 0
	}
	return len(a.Files)
}

// UnmarshalJSON decodes a path->record object, preserving key order. The
// legacy {"files": {...}} envelope is accepted as well, and legacy record
// fields are folded into the current sections.
func (a *AnalysisResponse) UnmarshalJSON(b []byte) error {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(b, &envelope); err != nil {
		return err
	}
	if inner, ok := envelope["files"]; ok && len(envelope) == 1 && isObjectOfObjects(inner) {
		b = inner
	}

	dec := json.NewDecoder(bytes.NewReader(b))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("analysis response: expected object, got %v", tok)
	}

	files := make([]FileEntry, 0, len(envelope))
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		path, ok := tok.(string)
		if !ok {
			return fmt.Errorf("analysis response: expected key, got %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("analysis response: file %q: %w", path, err)
		}
		var rep FileReport
		if err := json.Unmarshal(raw, &rep); err != nil {
			return fmt.Errorf("analysis response: file %q: %w", path, err)
		}
		if err := foldLegacy(raw, &rep); err != nil {
			return fmt.Errorf("analysis response: file %q: %w", path, err)
		}
		files = append(files, FileEntry{Path: path, Report: rep})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	a.Files = files
	return nil
}

// MarshalJSON writes the files back as an object in their original order.
func (a AnalysisResponse) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range a.Files {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(f.Path)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(f.Report)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// legacyRecord is the flat per-file shape of older backends.
type legacyRecord struct {
	LineCount  *int `json:"line_count"`
	EmptyLines *int `json:"empty_lines"`
	Imports    *int `json:"imports"`
}

// foldLegacy fills sections the record lacks from its legacy fields. Legacy
// records carry no comment count, so code lines are the non-empty lines.
func foldLegacy(raw json.RawMessage, rep *FileReport) error {
	var old legacyRecord
	if err := json.Unmarshal(raw, &old); err != nil {
		return err
	}
	if rep.BasicMetrics == nil && old.LineCount != nil {
		bm := &BasicMetrics{TotalLines: *old.LineCount}
		if old.EmptyLines != nil {
			bm.EmptyLines = *old.EmptyLines
		}
		bm.CodeLines = max(bm.TotalLines-bm.EmptyLines, 0)
		rep.BasicMetrics = bm
	}
	if rep.ImportsAnalysis == nil && old.Imports != nil {
		rep.ImportsAnalysis = &ImportsAnalysis{TotalImports: *old.Imports}
	}
	return nil
}

func isObjectOfObjects(raw json.RawMessage) bool {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return false
	}
	for _, v := range m {
		v = bytes.TrimSpace(v)
		if len(v) == 0 || v[0] != '{' {
			return false
		}
	}
	return true
}

type RepoRequest struct {
	RepoPath string `json:"repo_path"`
}

type ChangelogResponse struct {
	Changelog string `json:"changelog"`
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

type ChatMessage struct {
	Seq     uint64 `json:"seq"`
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

type ChatRequest struct {
	Message string            `json:"message"`
	Context *AnalysisResponse `json:"context"`
}

type ChatResponse struct {
	Response string `json:"response"`
	Status   string `json:"status,omitempty"`
}

type UploadResult struct {
	Filename   string `json:"filename"`
	Lines      int    `json:"lines"`
	Complexity int    `json:"complexity"`
}
