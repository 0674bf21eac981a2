package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func completionBody(content string) map[string]any {
	return map[string]any{
		"choices": []any{
			map[string]any{
				"message": map[string]any{
					"content": content,
				},
			},
		},
	}
}

func TestCompleteReturnsContent(t *testing.T) {
	var gotAuth string
	var gotPayload chatCompletionRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotPayload); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if err := json.NewEncoder(w).Encode(completionBody("rainy jazz cafe")); err != nil {
			t.Fatalf("encode response: %v", err)
		}
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"})
	got, err := client.Complete(context.Background(), "pick a concept", "concepts: ...", 0.3)
	if err != nil {
		t.Fatalf("Complete returned error: %v", err)
	}
	if got != "rainy jazz cafe" {
		t.Fatalf("content = %q", got)
	}
	if gotAuth != "Bearer test" {
		t.Fatalf("auth header = %q", gotAuth)
	}
	if gotPayload.Temperature != 0.3 || gotPayload.Model != "demo-model" {
		t.Fatalf("unexpected payload %+v", gotPayload)
	}
	if gotPayload.ResponseFormat != nil {
		t.Fatal("plain completion must not request a response format")
	}
}

func TestCompleteJSONRequestsJSONFormat(t *testing.T) {
	var gotPayload chatCompletionRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&gotPayload); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if err := json.NewEncoder(w).Encode(completionBody(`["q1","q2"]`)); err != nil {
			t.Fatalf("encode response: %v", err)
		}
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"})
	got, err := client.CompleteJSON(context.Background(), "generate queries", "concept: aquarium", 0.7)
	if err != nil {
		t.Fatalf("CompleteJSON returned error: %v", err)
	}
	if got != `["q1","q2"]` {
		t.Fatalf("content = %q", got)
	}
	if gotPayload.ResponseFormat["type"] != jsonResponseType {
		t.Fatalf("response format = %v", gotPayload.ResponseFormat)
	}
}

func TestCompleteRequiresAPIKey(t *testing.T) {
	client := NewClient(Config{Model: "demo"})
	if client.Available() {
		t.Fatal("client without key should not report available")
	}
	if _, err := client.Complete(context.Background(), "sys", "user", 0); err == nil {
		t.Fatal("expected error without api key")
	}
}

func TestRetryOnServerErrorHonorsRetryAfter(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "2")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		if err := json.NewEncoder(w).Encode(completionBody("ok")); err != nil {
			t.Fatalf("encode response: %v", err)
		}
	}))
	defer server.Close()

	var slept []time.Duration
	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo"},
		WithSleeper(func(d time.Duration) { slept = append(slept, d) }))

	got, err := client.Complete(context.Background(), "sys", "user", 0)
	if err != nil {
		t.Fatalf("Complete returned error: %v", err)
	}
	if got != "ok" {
		t.Fatalf("content = %q", got)
	}
	if calls.Load() != 2 {
		t.Fatalf("calls = %d, want 2", calls.Load())
	}
	if len(slept) != 1 || slept[0] != 2*time.Second {
		t.Fatalf("slept = %v, want [2s]", slept)
	}
}

func TestNoRetryOnClientError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "bad", BaseURL: server.URL, Model: "demo"},
		WithSleeper(func(time.Duration) {}))

	if _, err := client.Complete(context.Background(), "sys", "user", 0); err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1", calls.Load())
	}
}

func TestHealthCheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewEncoder(w).Encode(completionBody("```json\n{\"ok\":true}\n```")); err != nil {
			t.Fatalf("encode response: %v", err)
		}
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo"})
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck returned error: %v", err)
	}
}

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr bool
	}{
		{name: "direct array", content: `["a","b"]`},
		{name: "code fence", content: "```json\n[\"a\",\"b\"]\n```"},
		{name: "prose around array", content: "Here you go: [\"a\",\"b\"] enjoy!"},
		{name: "empty", content: "   ", wantErr: true},
		{name: "not json", content: "no structured data here", wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var out []string
			err := DecodeJSON(tc.content, &out)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeJSON: %v", err)
			}
			if len(out) != 2 || out[0] != "a" {
				t.Fatalf("out = %v", out)
			}
		})
	}
}

func TestBackoffDelayDoubles(t *testing.T) {
	client := NewClient(Config{APIKey: "k"}, WithRetryBackoff(time.Second, 10*time.Second))
	if got := client.backoffDelay(1); got != time.Second {
		t.Fatalf("attempt 1 delay = %v", got)
	}
	if got := client.backoffDelay(2); got != 2*time.Second {
		t.Fatalf("attempt 2 delay = %v", got)
	}
	if got := client.backoffDelay(5); got != 10*time.Second {
		t.Fatalf("attempt 5 delay = %v, want cap", got)
	}
}

func TestSummarizeSnippetCollapsesWhitespace(t *testing.T) {
	got := summarizeSnippet("a\nb\t c   d " + strings.Repeat("x", 400))
	if !strings.HasPrefix(got, "a b c d") || !strings.HasSuffix(got, "...") {
		t.Fatalf("snippet = %q", got)
	}
}
