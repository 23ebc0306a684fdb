package nlp

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/fleetline/pelorus/common/redact"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "gpt-4o-mini"
	defaultTimeout = 30 * time.Second
)

//go:embed result_schema.json
var resultSchemaJSON string

// resultSchema validates the model's JSON output before it is trusted.
// Compiled once at init; the schema is embedded, so a failure here is a
// build defect, not a runtime condition.
var resultSchema = jsonschema.MustCompileString("result_schema.json", resultSchemaJSON)

// Config configures the OpenAI-compatible detection provider.
type Config struct {
	// APIKey is the bearer token used to authenticate against the API.
	APIKey string

	// BaseURL overrides the API endpoint. Useful for local models (Ollama)
	// or any other OpenAI-compatible endpoint. Defaults to the public
	// OpenAI endpoint when empty.
	BaseURL string

	// Model is the chat model to use. Defaults to gpt-4o-mini when empty.
	Model string

	// Timeout is the HTTP request timeout. Defaults to 30 s.
	Timeout time.Duration
}

// openAIProvider implements Provider using the OpenAI chat completions API
// with JSON-mode output.
type openAIProvider struct {
	cfg    Config
	client *http.Client
}

// New returns a Provider backed by the OpenAI (or compatible) chat API.
// The returned provider is safe for concurrent use.
func New(cfg Config) Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	return &openAIProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// --- minimal OpenAI wire types ---

type oaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type oaiRequest struct {
	Model          string       `json:"model"`
	Messages       []oaiMessage `json:"messages"`
	MaxTokens      int          `json:"max_tokens,omitempty"`
	ResponseFormat *oaiFormat   `json:"response_format,omitempty"`
}

type oaiFormat struct {
	Type string `json:"type"` // "json_object"
}

type oaiResponse struct {
	Choices []oaiChoice `json:"choices"`
	Error   *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

type oaiChoice struct {
	Message      oaiMessage `json:"message"`
	FinishReason string     `json:"finish_reason"`
}

// systemPrompt is the instruction set sent as the "system" message.
const systemPrompt = `You are the intent classifier for a vessel-data chatbot.

Your only job is to translate the user's message into a JSON object.
You never answer the question yourself — you only classify it.

RULES (strict — do not deviate):
1. Respond ONLY with valid JSON. No markdown, no code fences, no text outside JSON.
2. The JSON object has exactly these fields:
   - "intent": one of "vessel_info", "recommendations", "unknown"
   - "vessel_ref": the vessel name or numeric identifier mentioned in the
     message, copied verbatim; empty string when none is mentioned
   - "confidence": one of "high", "medium", "low"
3. "vessel_info" covers questions about a single vessel: risk score,
   position, particulars, status.
4. "recommendations" covers requests for the recommendation report of a vessel.
5. When you are not sure, set intent to "unknown" and confidence to "low".`

// Detect classifies one message via the chat completions endpoint.
//
// The model's JSON output is validated against an embedded schema before it
// is unmarshalled; any parse or schema failure is reported as
// ErrMalformedOutput, and a low-confidence classification is downgraded to
// IntentUnknown so callers never have to re-check thresholds.
func (p *openAIProvider) Detect(ctx context.Context, text string) (*Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return &Result{Intent: IntentUnknown, Confidence: ConfidenceLow}, nil
	}

	reqBody := oaiRequest{
		Model: p.cfg.Model,
		Messages: []oaiMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: text},
		},
		MaxTokens:      200,
		ResponseFormat: &oaiFormat{Type: "json_object"},
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("nlp: marshal request: %w", err)
	}

	url := strings.TrimRight(p.cfg.BaseURL, "/") + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("nlp: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("nlp: call model: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("nlp: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		// Upstream error bodies occasionally echo request headers; make sure
		// the key cannot leak into logs via this error.
		detail := redact.String(truncate(string(body), 200), p.cfg.APIKey)
		return nil, fmt.Errorf("nlp: model returned status %d: %s", resp.StatusCode, detail)
	}

	var oai oaiResponse
	if err := json.Unmarshal(body, &oai); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	if oai.Error != nil {
		return nil, fmt.Errorf("nlp: model error: %s", oai.Error.Message)
	}
	if len(oai.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices", ErrMalformedOutput)
	}

	return parseResult(oai.Choices[0].Message.Content)
}

// parseResult validates and decodes the model's JSON content.
func parseResult(content string) (*Result, error) {
	content = strings.TrimSpace(content)

	var doc any
	if err := json.Unmarshal([]byte(content), &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	if err := resultSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}

	var res Result
	if err := json.Unmarshal([]byte(content), &res); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	if res.Confidence == "" {
		res.Confidence = ConfidenceLow
	}

	// Low confidence is downgraded to unknown so the router has a single
	// signal to branch on.
	if res.Confidence == ConfidenceLow {
		res.Intent = IntentUnknown
	}
	return &res, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
