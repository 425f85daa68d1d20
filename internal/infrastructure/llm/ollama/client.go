package ollama

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/talentforge/platform/internal/core/domain"
	"github.com/talentforge/platform/internal/infrastructure/resilience"
)

type Client struct {
	baseURL     string
	genModel    string
	visionModel string
	httpClient  *http.Client
	limiter     *rate.Limiter
	executor    *resilience.Executor
}

// New builds a client for an ollama-compatible endpoint. genModel handles
// text prompts (classification, profile extraction); visionModel handles
// image-to-markdown OCR. requestsPerSecond throttles all model calls so a
// large fan-out cannot starve the model host.
func New(baseURL, genModel, visionModel string, requestsPerSecond float64) *Client {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 4
	}
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		genModel:    genModel,
		visionModel: visionModel,
		httpClient:  &http.Client{Timeout: 120 * time.Second},
		limiter:     rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
	}
}

// WithExecutor routes model calls through the resilience executor so
// transient transport failures retry and repeated failures trip the
// per-operation breaker.
func (c *Client) WithExecutor(executor *resilience.Executor) *Client {
	c.executor = executor
	return c
}

type Classifier struct {
	client *Client
}

func NewClassifier(client *Client) *Classifier {
	return &Classifier{client: client}
}

func (c *Classifier) ClassifyCV(ctx context.Context, textSample string) (domain.CVClassification, error) {
	respText, err := c.client.generateJSON(ctx, buildClassificationPrompt(textSample))
	if err != nil {
		return domain.CVClassification{}, err
	}

	var result domain.CVClassification
	if err := json.Unmarshal([]byte(extractJSONObject(respText)), &result); err != nil {
		return domain.CVClassification{}, fmt.Errorf("parse classification json: %w", err)
	}
	return result, nil
}

type PageReader struct {
	client *Client
}

func NewPageReader(client *Client) *PageReader {
	return &PageReader{client: client}
}

func (p *PageReader) PageToMarkdown(ctx context.Context, png []byte) (string, error) {
	if len(png) == 0 {
		return "", fmt.Errorf("empty page image")
	}
	reqBody := map[string]any{
		"model":  p.client.visionModel,
		"prompt": pageToMarkdownPrompt,
		"images": []string{base64.StdEncoding.EncodeToString(png)},
		"stream": false,
	}
	return p.client.generate(ctx, reqBody)
}

type ProfileExtractor struct {
	client *Client
}

func NewProfileExtractor(client *Client) *ProfileExtractor {
	return &ProfileExtractor{client: client}
}

func (e *ProfileExtractor) ExtractProfile(ctx context.Context, markdown string) (domain.StructuredProfile, error) {
	respText, err := e.client.generateJSON(ctx, buildProfilePrompt(markdown))
	if err != nil {
		return domain.StructuredProfile{}, err
	}

	var result domain.StructuredProfile
	if err := json.Unmarshal([]byte(extractJSONObject(respText)), &result); err != nil {
		return domain.StructuredProfile{}, fmt.Errorf("parse profile json: %w", err)
	}
	return result, nil
}

func (c *Client) generateJSON(ctx context.Context, prompt string) (string, error) {
	reqBody := map[string]any{
		"model":  c.genModel,
		"prompt": prompt,
		"stream": false,
		"format": "json",
	}
	return c.generate(ctx, reqBody)
}

func (c *Client) generate(ctx context.Context, reqBody map[string]any) (string, error) {
	var response struct {
		Response string `json:"response"`
	}

	call := func(callCtx context.Context) error {
		if err := c.limiter.Wait(callCtx); err != nil {
			return fmt.Errorf("model rate limit: %w", err)
		}
		return c.postJSON(callCtx, "/api/generate", reqBody, &response, "generate")
	}

	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, "ollama.generate", call, classifyOllamaError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return "", wrapTemporaryIfNeeded("ollama generate", err)
	}
	return strings.TrimSpace(response.Response), nil
}

func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}
