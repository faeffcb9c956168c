package assistant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/seanblong/codelens/pkg/models"
)

func newTestOpenAIClient(baseURL string) *OpenAIClient {
	return NewOpenAIClient(&ClientConfig{
		APIKey:    "sk-proj-test",
		ProjectID: "proj-1",
		BaseURL:   baseURL,
	})
}

func TestNewOpenAIClient_Defaults(t *testing.T) {
	c := NewOpenAIClient(&ClientConfig{APIKey: "k"})
	if c.config.Model != "gpt-4o-mini" {
		t.Errorf("Expected default model gpt-4o-mini, got %q", c.config.Model)
	}
	if c.config.BaseURL != openAIBaseURL {
		t.Errorf("Expected default base URL, got %q", c.config.BaseURL)
	}
	if c.http.Timeout != 30*time.Second {
		t.Errorf("Expected timeout 30s, got %v", c.http.Timeout)
	}

	c = NewOpenAIClient(&ClientConfig{APIKey: "k", Model: "gpt-4.1"})
	if c.config.Model != "gpt-4.1" {
		t.Errorf("Expected explicit model to be kept, got %q", c.config.Model)
	}
}

func TestOpenAIClient_Reply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("Unexpected path %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-proj-test" {
			t.Errorf("Unexpected Authorization header %q", got)
		}
		if got := r.Header.Get("OpenAI-Project"); got != "proj-1" {
			t.Errorf("Unexpected OpenAI-Project header %q", got)
		}

		var body struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if body.Model != "gpt-4o-mini" {
			t.Errorf("Unexpected model %q", body.Model)
		}
		if len(body.Messages) != 2 || body.Messages[0].Role != "system" || body.Messages[1].Role != "user" {
			t.Fatalf("Unexpected messages: %+v", body.Messages)
		}
		if !strings.Contains(body.Messages[1].Content, "- main.py:") || !strings.HasSuffix(body.Messages[1].Content, "what is slow?") {
			t.Errorf("Expected user prompt with digest and question, got %q", body.Messages[1].Content)
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"  The loop in main.py.  "}}]}`))
	}))
	defer srv.Close()

	analysis := &models.AnalysisResponse{Files: []models.FileEntry{{Path: "main.py"}}}
	got, err := newTestOpenAIClient(srv.URL).Reply(context.Background(), "what is slow?", analysis)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got != "The loop in main.py." {
		t.Errorf("Unexpected reply %q", got)
	}
}

func TestOpenAIClient_ReplyErrors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantSubstr string
	}{
		{"api error message", 401, `{"error":{"message":"Incorrect API key provided"}}`, "Incorrect API key provided"},
		{"bare status", 503, ``, "503"},
		{"no choices", 200, `{"choices":[]}`, "no choices"},
		{"invalid json", 200, `{"choices":`, "unexpected EOF"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := newTestOpenAIClient(srv.URL).Reply(context.Background(), "hi", nil)
			if err == nil {
				t.Fatal("Expected error")
			}
			if !strings.Contains(err.Error(), tt.wantSubstr) {
				t.Errorf("Expected error containing %q, got %v", tt.wantSubstr, err)
			}
		})
	}
}

func TestOpenAIClient_ReplyWithoutAPIKey(t *testing.T) {
	c := NewOpenAIClient(&ClientConfig{})
	if _, err := c.Reply(context.Background(), "hi", nil); err == nil {
		t.Fatal("Expected error without API key")
	}
}

func TestOpenAIClient_SetHeaders(t *testing.T) {
	tests := []struct {
		name        string
		apiKey      string
		projectID   string
		wantProject string
	}{
		{"project key with project", "sk-proj-abc", "p1", "p1"},
		{"project key without project", "sk-proj-abc", "", ""},
		{"legacy key ignores project", "sk-abc", "p1", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewOpenAIClient(&ClientConfig{APIKey: tt.apiKey, ProjectID: tt.projectID})
			req := httptest.NewRequest(http.MethodPost, "/", nil)
			c.setHeaders(req)
			if got := req.Header.Get("OpenAI-Project"); got != tt.wantProject {
				t.Errorf("Expected OpenAI-Project %q, got %q", tt.wantProject, got)
			}
			if got := req.Header.Get("Content-Type"); got != "application/json" {
				t.Errorf("Expected JSON content type, got %q", got)
			}
		})
	}
}
