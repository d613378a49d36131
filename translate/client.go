package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ---------------------------------------------------------------------------
// Client
// ---------------------------------------------------------------------------

// Client submits translation batches to one configured provider.
// Each call is a single attempt: retry and backoff policy belong to the
// sync engine, which decides based on the classified error kind.
type Client struct {
	// Provider is the AI provider configuration.
	Provider Provider
	// HTTPClient overrides the default client (tests, custom transports).
	HTTPClient *http.Client
	// Verbose enables request/response debug logging.
	Verbose bool
}

// NewClient returns a Client for the given provider.
func NewClient(prov Provider) *Client {
	return &Client{Provider: prov}
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	timeout := c.Provider.Timeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	return makeHTTPClient(c.Provider.Proxy, timeout)
}

// TranslateBatch submits a key → source-text map and returns the
// key → translated-text map for the keys the provider answered.
// The provider may omit keys; callers must not assume every submitted
// key comes back. Failures carry an ErrorKind via APIError.
func (c *Client) TranslateBatch(ctx context.Context, texts map[string]string, targetLang, ruleSet string) (map[string]string, error) {
	if len(texts) == 0 {
		return map[string]string{}, nil
	}
	if c.Provider.NeedsAPIKey() && c.Provider.APIKey == "" {
		return nil, &APIError{
			Kind:     KindAuth,
			Provider: c.Provider.ID,
			Message:  "no API key configured",
		}
	}

	userPrompt, err := buildUserPrompt(texts, targetLang)
	if err != nil {
		return nil, fmt.Errorf("building prompt: %w", err)
	}

	endpoint, headers, body, err := c.buildRequest(ruleSet, userPrompt)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	if c.Verbose {
		log.Printf("[DEBUG] %s: POST %s (%d texts)", c.Provider.Name, endpoint, len(texts))
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &APIError{
			Kind:     KindUnavailable,
			Provider: c.Provider.ID,
			Message:  err.Error(),
		}
	}
	respBody, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.classifyStatus(resp.StatusCode, respBody)
	}

	text, err := extractResponseText(respBody)
	if err != nil {
		return nil, &APIError{
			Kind:     KindInvalidResponse,
			Provider: c.Provider.ID,
			Message:  err.Error(),
		}
	}

	translations, err := parseTranslationMap(text)
	if err != nil {
		return nil, &APIError{
			Kind:     KindInvalidResponse,
			Provider: c.Provider.ID,
			Message:  err.Error(),
		}
	}

	// Keep only keys that were actually submitted.
	out := make(map[string]string, len(translations))
	for k, v := range translations {
		if _, ok := texts[k]; ok && v != "" {
			out[k] = v
		}
	}
	return out, nil
}

// classifyStatus maps a non-200 HTTP status to a closed error kind.
func (c *Client) classifyStatus(status int, body []byte) error {
	apiErr := &APIError{
		Provider: c.Provider.ID,
		Status:   status,
		Message:  truncate(string(body), 300),
	}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		apiErr.Kind = KindAuth
	case status == http.StatusTooManyRequests:
		apiErr.Kind = KindRateLimit
		apiErr.RetryAfter = parseRetryDelay(body)
	case status >= 500:
		apiErr.Kind = KindUnavailable
	default:
		apiErr.Kind = KindOther
	}
	return apiErr
}

// ---------------------------------------------------------------------------
// Request building (per API format)
// ---------------------------------------------------------------------------

// buildUserPrompt serializes the batch as a JSON object and asks for the
// same keys back. Keys are opaque batch-local indices: field paths are
// never sent to the provider.
func buildUserPrompt(texts map[string]string, targetLang string) (string, error) {
	keys := make([]string, 0, len(texts))
	for k := range texts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("Translate the values of this JSON object to ")
	b.WriteString(targetLang)
	b.WriteString(":\n\n{\n")
	for i, k := range keys {
		kj, _ := json.Marshal(k)
		vj, _ := json.Marshal(texts[k])
		fmt.Fprintf(&b, "  %s: %s", kj, vj)
		if i < len(keys)-1 {
			b.WriteByte(',')
		}
		b.WriteByte('\n')
	}
	b.WriteString("}\n\nReturn ONLY a JSON object with exactly the same keys and translated values.")
	return b.String(), nil
}

func (c *Client) buildRequest(systemPrompt, userPrompt string) (endpoint string, headers map[string]string, body []byte, err error) {
	prov := c.Provider
	headers = map[string]string{"Content-Type": "application/json"}

	switch prov.ID {
	case ProviderGoogle:
		endpoint = fmt.Sprintf("%s/v1beta/models/%s:generateContent",
			strings.TrimSuffix(prov.BaseURL, "/"), prov.Model)
		headers["x-goog-api-key"] = prov.APIKey
		body, err = buildGeminiRequest(systemPrompt, userPrompt, 0.3)
	default:
		// Groq, Custom OpenAI, Ollama and anything else speak the
		// OpenAI chat/completions format.
		endpoint = strings.TrimSuffix(prov.BaseURL, "/") + "/chat/completions"
		if prov.APIKey != "" {
			headers["Authorization"] = "Bearer " + prov.APIKey
		}
		body, err = buildOpenAIChatRequest(prov.Model, systemPrompt, userPrompt, 0.3)
	}
	return endpoint, headers, body, err
}

func buildOpenAIChatRequest(model, systemPrompt, userPrompt string, temperature float64) ([]byte, error) {
	type msg struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	req := struct {
		Model       string  `json:"model"`
		Messages    []msg   `json:"messages"`
		Temperature float64 `json:"temperature"`
		Stream      bool    `json:"stream"`
	}{
		Model: model,
		Messages: []msg{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature: temperature,
		Stream:      false,
	}
	return json.Marshal(req)
}

func buildGeminiRequest(systemPrompt, userPrompt string, temperature float64) ([]byte, error) {
	type part struct {
		Text string `json:"text"`
	}
	type content struct {
		Role  string `json:"role,omitempty"`
		Parts []part `json:"parts"`
	}
	type genConfig struct {
		Temperature float64 `json:"temperature"`
	}
	req := struct {
		Contents          []content `json:"contents"`
		GenerationConfig  genConfig `json:"generationConfig"`
		SystemInstruction *content  `json:"systemInstruction,omitempty"`
	}{
		Contents: []content{
			{Role: "user", Parts: []part{{Text: userPrompt}}},
		},
		GenerationConfig: genConfig{Temperature: temperature},
	}
	if systemPrompt != "" {
		req.SystemInstruction = &content{Parts: []part{{Text: systemPrompt}}}
	}
	return json.Marshal(req)
}

// ---------------------------------------------------------------------------
// Response parsing (multi-format)
// ---------------------------------------------------------------------------

// extractResponseText tries all known response formats and returns the text.
func extractResponseText(body []byte) (string, error) {
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return "", fmt.Errorf("invalid JSON response: %w", err)
	}

	// Check for API error
	if errObj, ok := raw["error"]; ok {
		if errMap, ok := errObj.(map[string]any); ok {
			if msg, ok := errMap["message"].(string); ok {
				return "", fmt.Errorf("API error: %s", msg)
			}
		}
		return "", fmt.Errorf("API error: %v", errObj)
	}

	// 1. OpenAI chat format: choices[0].message.content
	if choices, ok := raw["choices"].([]any); ok && len(choices) > 0 {
		if choice, ok := choices[0].(map[string]any); ok {
			if message, ok := choice["message"].(map[string]any); ok {
				if content, ok := message["content"].(string); ok {
					return content, nil
				}
			}
		}
	}

	// 2. Gemini format: candidates[0].content.parts[0].text
	if candidates, ok := raw["candidates"].([]any); ok && len(candidates) > 0 {
		if candidate, ok := candidates[0].(map[string]any); ok {
			if content, ok := candidate["content"].(map[string]any); ok {
				if parts, ok := content["parts"].([]any); ok && len(parts) > 0 {
					if part, ok := parts[0].(map[string]any); ok {
						if text, ok := part["text"].(string); ok {
							return text, nil
						}
					}
				}
			}
		}
	}

	return "", fmt.Errorf("could not extract text from response: %s", truncate(string(body), 500))
}

// markdownCodeBlock matches a fenced code block wrapping the whole reply.
var markdownCodeBlock = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

// parseTranslationMap parses the model reply into a key → text map.
// Models sometimes wrap the object in markdown fences or prose; the
// outermost braces are located before unmarshaling.
func parseTranslationMap(content string) (map[string]string, error) {
	content = strings.TrimSpace(content)

	if m := markdownCodeBlock.FindStringSubmatch(content); len(m) > 1 {
		content = m[1]
	}

	startIdx := strings.Index(content, "{")
	endIdx := strings.LastIndex(content, "}")
	if startIdx >= 0 && endIdx > startIdx {
		content = content[startIdx : endIdx+1]
	}

	var translations map[string]string
	if err := json.Unmarshal([]byte(content), &translations); err != nil {
		return nil, fmt.Errorf("failed to parse translation response as JSON object: %w\nResponse: %s", err, truncate(content, 300))
	}
	if len(translations) == 0 {
		return nil, fmt.Errorf("got an empty translation object")
	}
	return translations, nil
}

// ---------------------------------------------------------------------------
// Rate limit: parse 429 response for retry delay
// ---------------------------------------------------------------------------

// parseRetryDelay extracts the retry delay from a 429 response body.
// Looks for Google's RetryInfo detail with retryDelay field.
// Returns zero when the provider gave no hint.
func parseRetryDelay(body []byte) time.Duration {
	var errResp struct {
		Error struct {
			Details []struct {
				Type       string `json:"@type"`
				RetryDelay string `json:"retryDelay"`
			} `json:"details"`
		} `json:"error"`
	}

	if err := json.Unmarshal(body, &errResp); err != nil {
		return 0
	}

	for _, detail := range errResp.Error.Details {
		if strings.Contains(detail.Type, "RetryInfo") && detail.RetryDelay != "" {
			// Parse duration like "30s", "45.123s"
			d := strings.TrimSuffix(detail.RetryDelay, "s")
			if secs, err := strconv.ParseFloat(d, 64); err == nil {
				return time.Duration(secs*1000) * time.Millisecond
			}
		}
	}
	return 0
}

// truncate truncates a string to maxLen characters.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
