package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/seanblong/codelens/internal/backend"
	"github.com/seanblong/codelens/pkg/models"
)

// Client answers a chat message, optionally grounded on the most recent
// analysis.
type Client interface {
	Reply(ctx context.Context, message string, analysis *models.AnalysisResponse) (string, error)
}

// Provider is enumeration of supported assistant providers
type Provider string

const (
	ProviderBackend  Provider = "backend"
	ProviderOpenAI   Provider = "openai"
	ProviderVertexAI Provider = "vertexai"
	ProviderStub     Provider = "stub"
)

// ClientConfig holds configuration for assistant clients
type ClientConfig struct {
	Provider  Provider
	APIKey    string
	Model     string
	ProjectID string
	Location  string
	// BaseURL overrides the provider endpoint; empty means the public API.
	BaseURL string
	// Backend serves ProviderBackend.
	Backend backend.Client
}

// ParseProvider accepts the provider names used in configuration.
func ParseProvider(s string) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "backend":
		return ProviderBackend, nil
	case "openai":
		return ProviderOpenAI, nil
	case "vertexai", "google":
		return ProviderVertexAI, nil
	case "stub":
		return ProviderStub, nil
	default:
		return "", fmt.Errorf("unsupported provider: %s", s)
	}
}

// NewClient creates a new assistant client based on configuration
func NewClient(ctx context.Context, config *ClientConfig) (Client, error) {
	if config == nil {
		return nil, errors.New("client config is required")
	}

	switch config.Provider {
	case ProviderBackend:
		if config.Backend == nil {
			return nil, errors.New("backend provider requires a backend client")
		}
		return NewBackendClient(config.Backend), nil
	case ProviderOpenAI:
		return NewOpenAIClient(config), nil
	case ProviderVertexAI:
		return NewVertexAIClient(ctx, config)
	case ProviderStub:
		return NewStubClient(), nil
	default:
		return nil, errors.New("unsupported provider: " + string(config.Provider))
	}
}

// BackendClient relays messages to the analysis backend's chat endpoint.
type BackendClient struct {
	backend backend.Client
}

func NewBackendClient(b backend.Client) *BackendClient {
	return &BackendClient{backend: b}
}

func (c *BackendClient) Reply(ctx context.Context, message string, analysis *models.AnalysisResponse) (string, error) {
	resp, err := c.backend.Chat(ctx, message, analysis)
	if err != nil {
		return "", err
	}
	return resp.Response, nil
}

// StubClient acknowledges messages without calling any model.
type StubClient struct{}

func NewStubClient() *StubClient {
	return &StubClient{}
}

func (s *StubClient) Reply(ctx context.Context, message string, analysis *models.AnalysisResponse) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if analysis != nil {
		return fmt.Sprintf("Received your message about %d files", analysis.Len()), nil
	}
	return "Received your message", nil
}

const systemPrompt = "You are a code analysis assistant. Answer questions about the analyzed repository " +
	"for quality, bugs, and improvements. Be concise and reference files by path."

// maxContext bounds the analysis digest sent to hosted models.
const maxContext = 8000

// describeAnalysis renders the analysis as a compact per-file digest for a
// model prompt.
func describeAnalysis(a *models.AnalysisResponse) string {
	if a == nil || len(a.Files) == 0 {
		return "No analysis results are available."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Analysis of %d files:\n", len(a.Files))
	for _, f := range a.Files {
		r := f.Report
		if r.Error != "" {
			fmt.Fprintf(&b, "- %s: error: %s\n", f.Path, r.Error)
			continue
		}
		var lines, imports, branches int
		var coverage float64
		if r.BasicMetrics != nil {
			lines = r.BasicMetrics.TotalLines
		}
		if r.ImportsAnalysis != nil {
			imports = r.ImportsAnalysis.TotalImports
		}
		if r.ComplexityMetrics != nil {
			branches = r.ComplexityMetrics.IfStatements + r.ComplexityMetrics.ForLoops + r.ComplexityMetrics.WhileLoops
		}
		if r.DocumentationMetrics != nil {
			coverage = r.DocumentationMetrics.DocstringCoverage
		}
		fmt.Fprintf(&b, "- %s: %d lines, %d functions, %d imports, %d branches, %.2f%% docstring coverage\n",
			f.Path, lines, len(r.Functions), imports, branches, coverage)
		if b.Len() > maxContext {
			break
		}
	}
	return truncate(b.String(), maxContext)
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func userPrompt(message string, analysis *models.AnalysisResponse) string {
	return describeAnalysis(analysis) + "\n---\n" + message
}
