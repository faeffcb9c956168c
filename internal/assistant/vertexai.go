package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/seanblong/codelens/pkg/models"
	"google.golang.org/genai"
)

type VertexAIClient struct {
	config *ClientConfig
	client *genai.Client
}

// NewVertexAIClient creates a Gemini client. With an API key and no project
// it talks to the Gemini API; otherwise to Vertex AI in the configured
// project and location.
func NewVertexAIClient(ctx context.Context, config *ClientConfig) (*VertexAIClient, error) {
	if config == nil {
		return nil, errors.New("config cannot be nil")
	}

	if config.Model == "" {
		config.Model = "gemini-2.0-flash"
	}

	apiKey := strings.TrimSpace(config.APIKey)
	project := strings.TrimSpace(config.ProjectID)
	if apiKey == "" && project == "" {
		return nil, errors.New("vertexai provider requires an API key or a project ID")
	}

	cc := genai.ClientConfig{}
	if apiKey != "" && project == "" {
		cc.Backend = genai.BackendGeminiAPI
		cc.APIKey = apiKey
	} else {
		cc.Backend = genai.BackendVertexAI
		cc.Project = project
		cc.Location = strings.TrimSpace(config.Location)
		if cc.Location == "" {
			cc.Location = "us-central1"
		}
	}
	if config.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: config.BaseURL}
	}

	client, err := genai.NewClient(ctx, &cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &VertexAIClient{
		config: config,
		client: client,
	}, nil
}

// Reply implements Client using GenerateContent.
func (c *VertexAIClient) Reply(ctx context.Context, message string, analysis *models.AnalysisResponse) (string, error) {
	if c.client == nil {
		return "", errors.New("gemini client not initialized")
	}

	temp := float32(0.2)
	cfg := genai.GenerateContentConfig{
		Temperature:       &temp,
		MaxOutputTokens:   512,
		SystemInstruction: genai.Text(systemPrompt)[0],
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.config.Model, genai.Text(userPrompt(message, analysis)), &cfg)
	if err != nil {
		return "", fmt.Errorf("chat reply failed: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", errors.New("no reply returned")
	}

	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	return strings.TrimSpace(b.String()), nil
}
