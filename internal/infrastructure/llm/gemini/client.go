// Package gemini implements the generation service over the Gemini
// generateContent REST endpoint.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/floraqa/internal/core/domain"
	"github.com/kirillkom/floraqa/internal/infrastructure/resilience"
)

const (
	service        = "gemini"
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	DefaultModel   = "gemini-2.0-flash"
)

type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

type Generator struct {
	cfg        Config
	httpClient *http.Client
	executor   *resilience.Executor
}

// New returns a generator. executor may be nil.
func New(cfg Config, executor *resilience.Executor) *Generator {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Generator{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		executor:   executor,
	}
}

type part struct {
	Text string `json:"text,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type tool struct {
	GoogleSearch *struct{} `json:"google_search,omitempty"`
}

type generationConfig struct {
	Temperature      float64 `json:"temperature"`
	ResponseMimeType string  `json:"responseMimeType"`
}

type generateRequest struct {
	Contents          []content        `json:"contents"`
	SystemInstruction *content         `json:"systemInstruction,omitempty"`
	Tools             []tool           `json:"tools,omitempty"`
	GenerationConfig  generationConfig `json:"generationConfig"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback,omitempty"`
}

func buildRequest(req domain.GenerationRequest) generateRequest {
	body := generateRequest{
		Contents: make([]content, 0, len(req.History)+1),
		GenerationConfig: generationConfig{
			Temperature:      req.Temperature,
			ResponseMimeType: "text/plain",
		},
	}
	for _, turn := range req.History {
		role := "user"
		if turn.Role == domain.RoleAssistant {
			role = "model"
		}
		body.Contents = append(body.Contents, content{Role: role, Parts: []part{{Text: turn.Text}}})
	}
	body.Contents = append(body.Contents, content{Role: "user", Parts: []part{{Text: req.Query}}})

	if strings.TrimSpace(req.SystemInstruction) != "" {
		body.SystemInstruction = &content{Parts: []part{{Text: req.SystemInstruction}}}
	}
	if req.AllowWebSearch {
		body.Tools = []tool{{GoogleSearch: &struct{}{}}}
	}
	return body
}

func (g *Generator) Generate(ctx context.Context, req domain.GenerationRequest) (string, error) {
	if strings.TrimSpace(g.cfg.APIKey) == "" {
		return "", domain.WrapError(domain.ErrConfiguration, "gemini generate", errors.New("api key is empty"))
	}
	body := buildRequest(req)

	var resp generateResponse
	call := func(ctx context.Context) error {
		return g.post(ctx, body, &resp)
	}
	var err error
	if g.executor != nil {
		err = g.executor.Execute(ctx, resilience.DependencyGenerator, service+".generate", call, resilience.ClassifyGeneration)
	} else {
		err = call(ctx)
	}
	if err != nil {
		err = resilience.WrapTemporary("gemini generate", err, resilience.ClassifyGeneration)
		return "", domain.WrapError(domain.ErrGeneration, "gemini generate", err)
	}

	text := responseText(resp)
	if text == "" {
		reason := "no candidates"
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			reason = "blocked: " + resp.PromptFeedback.BlockReason
		} else if len(resp.Candidates) > 0 {
			reason = "finish reason " + resp.Candidates[0].FinishReason
		}
		return "", domain.WrapError(domain.ErrGeneration, "gemini generate", fmt.Errorf("empty response (%s)", reason))
	}
	return text, nil
}

func responseText(resp generateResponse) string {
	if len(resp.Candidates) == 0 {
		return ""
	}
	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	return strings.TrimSpace(b.String())
}

func (g *Generator) post(ctx context.Context, payload generateRequest, out *generateResponse) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal generate request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", g.cfg.BaseURL, g.cfg.Model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", g.cfg.APIKey)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gemini generate request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return resilience.NewStatusError(service, "generate", resp)
	}
	*out = generateResponse{}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode generate response: %w", err)
	}
	return nil
}
