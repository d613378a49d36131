// Package translate contains tests for the provider client.
package translate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// testClient points an OpenAI-format provider at a local test server.
func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewClient(Provider{
		ID:      ProviderGroq,
		Name:    "test",
		BaseURL: srv.URL,
		APIKey:  "test-key",
		Model:   "test-model",
	})
	c.HTTPClient = srv.Client()
	return c
}

func chatReply(content string) string {
	b, _ := json.Marshal(map[string]any{
		"choices": []any{
			map[string]any{"message": map[string]any{"content": content}},
		},
	})
	return string(b)
}

// ---------------------------------------------------------------------------
// TranslateBatch
// ---------------------------------------------------------------------------

func TestTranslateBatch_Success(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		fmt.Fprint(w, chatReply(`{"0": "privet", "1": "poka"}`))
	})

	got, err := c.TranslateBatch(context.Background(),
		map[string]string{"0": "hello", "1": "bye"}, "ru", "rules")
	if err != nil {
		t.Fatalf("TranslateBatch error: %v", err)
	}
	if got["0"] != "privet" || got["1"] != "poka" {
		t.Errorf("translations = %v", got)
	}
}

func TestTranslateBatch_DropsUnknownAndEmptyKeys(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, chatReply(`{"0": "privet", "1": "", "99": "stray"}`))
	})

	got, err := c.TranslateBatch(context.Background(),
		map[string]string{"0": "hello", "1": "bye"}, "ru", "rules")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got["0"] != "privet" {
		t.Errorf("translations = %v, want only key 0", got)
	}
}

func TestTranslateBatch_EmptyInput(t *testing.T) {
	c := NewClient(Provider{ID: ProviderGroq, APIKey: "k"})
	got, err := c.TranslateBatch(context.Background(), nil, "ru", "rules")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("got %v, want empty map without a network call", got)
	}
}

func TestTranslateBatch_MissingKeyIsAuthError(t *testing.T) {
	c := NewClient(Provider{ID: ProviderGroq, BaseURL: "http://unused"})
	_, err := c.TranslateBatch(context.Background(),
		map[string]string{"0": "hello"}, "ru", "rules")
	if !IsAuth(err) {
		t.Errorf("err = %v, want KindAuth", err)
	}
}

func TestTranslateBatch_StatusClassification(t *testing.T) {
	cases := []struct {
		status int
		want   ErrorKind
	}{
		{http.StatusUnauthorized, KindAuth},
		{http.StatusForbidden, KindAuth},
		{http.StatusTooManyRequests, KindRateLimit},
		{http.StatusInternalServerError, KindUnavailable},
		{http.StatusBadGateway, KindUnavailable},
		{http.StatusBadRequest, KindOther},
	}
	for _, tc := range cases {
		c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		})
		_, err := c.TranslateBatch(context.Background(),
			map[string]string{"0": "hello"}, "ru", "rules")
		if KindOf(err) != tc.want {
			t.Errorf("status %d: kind = %v, want %v", tc.status, KindOf(err), tc.want)
		}
		var apiErr *APIError
		if !errors.As(err, &apiErr) || apiErr.Status != tc.status {
			t.Errorf("status %d: error should carry the HTTP status", tc.status)
		}
	}
}

func TestTranslateBatch_RateLimitCarriesRetryHint(t *testing.T) {
	body := `{"error": {"details": [{"@type": "type.googleapis.com/google.rpc.RetryInfo", "retryDelay": "30s"}]}}`
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, body)
	})
	_, err := c.TranslateBatch(context.Background(),
		map[string]string{"0": "hello"}, "ru", "rules")
	if !IsRateLimit(err) {
		t.Fatalf("err = %v, want rate limit", err)
	}
	if got := RetryAfter(err); got != 30*time.Second {
		t.Errorf("RetryAfter = %v, want 30s", got)
	}
}

func TestTranslateBatch_GarbageBodyIsInvalidResponse(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "not json at all")
	})
	_, err := c.TranslateBatch(context.Background(),
		map[string]string{"0": "hello"}, "ru", "rules")
	if KindOf(err) != KindInvalidResponse {
		t.Errorf("kind = %v, want KindInvalidResponse", KindOf(err))
	}
}

func TestTranslateBatch_ContextCancellation(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		// Drain the body so the server starts its background read and
		// cancels r.Context() when the client disconnects; otherwise
		// srv.Close deadlocks in cleanup.
		io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.TranslateBatch(ctx, map[string]string{"0": "hello"}, "ru", "rules")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want context deadline", err)
	}
}

// ---------------------------------------------------------------------------
// buildUserPrompt
// ---------------------------------------------------------------------------

func TestBuildUserPrompt_SortedKeysAndEscaping(t *testing.T) {
	prompt, err := buildUserPrompt(map[string]string{
		"1": "second \"quoted\" line",
		"0": "first",
	}, "ru")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Index(prompt, `"0"`) > strings.Index(prompt, `"1"`) {
		t.Error("keys should be sorted")
	}
	if !strings.Contains(prompt, `\"quoted\"`) {
		t.Error("values should be JSON-escaped")
	}
	if !strings.Contains(prompt, "exactly the same keys") {
		t.Error("prompt should pin the response contract")
	}
}

// ---------------------------------------------------------------------------
// parseTranslationMap
// ---------------------------------------------------------------------------

func TestParseTranslationMap_PlainObject(t *testing.T) {
	got, err := parseTranslationMap(`{"0": "a", "1": "b"}`)
	if err != nil {
		t.Fatal(err)
	}
	if got["0"] != "a" || got["1"] != "b" {
		t.Errorf("got %v", got)
	}
}

func TestParseTranslationMap_StripsMarkdownFence(t *testing.T) {
	got, err := parseTranslationMap("```json\n{\"0\": \"a\"}\n```")
	if err != nil {
		t.Fatal(err)
	}
	if got["0"] != "a" {
		t.Errorf("got %v", got)
	}
}

func TestParseTranslationMap_ExtractsObjectFromProse(t *testing.T) {
	got, err := parseTranslationMap(`Here is the translation:
{"0": "a"}
Hope this helps!`)
	if err != nil {
		t.Fatal(err)
	}
	if got["0"] != "a" {
		t.Errorf("got %v", got)
	}
}

func TestParseTranslationMap_Invalid(t *testing.T) {
	for _, content := range []string{"", "no braces here", `{"0": 42}`, "{}"} {
		if _, err := parseTranslationMap(content); err == nil {
			t.Errorf("parseTranslationMap(%q) should fail", content)
		}
	}
}

// ---------------------------------------------------------------------------
// parseRetryDelay
// ---------------------------------------------------------------------------

func TestParseRetryDelay(t *testing.T) {
	body := []byte(`{"error": {"details": [
		{"@type": "type.googleapis.com/google.rpc.ErrorInfo"},
		{"@type": "type.googleapis.com/google.rpc.RetryInfo", "retryDelay": "4.5s"}
	]}}`)
	if got := parseRetryDelay(body); got != 4500*time.Millisecond {
		t.Errorf("got %v, want 4.5s", got)
	}
}

func TestParseRetryDelay_NoHint(t *testing.T) {
	for _, body := range []string{"", "{}", `{"error": {"details": []}}`, "garbage"} {
		if got := parseRetryDelay([]byte(body)); got != 0 {
			t.Errorf("parseRetryDelay(%q) = %v, want 0", body, got)
		}
	}
}

// ---------------------------------------------------------------------------
// extractResponseText
// ---------------------------------------------------------------------------

func TestExtractResponseText_Gemini(t *testing.T) {
	body := `{"candidates": [{"content": {"parts": [{"text": "reply"}]}}]}`
	got, err := extractResponseText([]byte(body))
	if err != nil {
		t.Fatal(err)
	}
	if got != "reply" {
		t.Errorf("got %q", got)
	}
}

func TestExtractResponseText_APIErrorObject(t *testing.T) {
	body := `{"error": {"message": "quota exceeded"}}`
	if _, err := extractResponseText([]byte(body)); err == nil {
		t.Error("error body should not be treated as a reply")
	}
}
