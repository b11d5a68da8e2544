package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/lehigh-university-libraries/lifeindex/internal/providers"
)

func TestExtractText(t *testing.T) {
	var received struct {
		Model    string `json:"model"`
		Messages []struct {
			Content []struct {
				Type     string            `json:"type"`
				Text     string            `json:"text"`
				ImageURL map[string]string `json:"image_url"`
			} `json:"content"`
		} `json:"messages"`
		ResponseFormat map[string]string `json:"response_format"`
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("Expected path /chat/completions, got %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("Expected bearer token, got %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}
		w.Write([]byte(`{"choices":[{"message":{"content":"a mug"}}]}`))
	}))
	defer server.Close()

	o := New("secret", server.URL)
	got, err := o.ExtractText(context.Background(), providers.Config{
		Model:  "gpt-4o",
		Prompt: "describe",
		Images: []providers.Image{{Data: []byte("x"), MIMEType: "image/png"}},
		JSON:   true,
	})
	if err != nil {
		t.Fatalf("ExtractText: %v", err)
	}
	if got != "a mug" {
		t.Errorf("Expected a mug, got %q", got)
	}

	if len(received.Messages) != 1 || len(received.Messages[0].Content) != 2 {
		t.Fatalf("Expected one message with text and image, got %+v", received.Messages)
	}
	content := received.Messages[0].Content
	if content[0].Type != "text" || content[0].Text != "describe" {
		t.Errorf("Expected text part first, got %+v", content[0])
	}
	if !strings.HasPrefix(content[1].ImageURL["url"], "data:image/png;base64,") {
		t.Errorf("Expected png data URL, got %s", content[1].ImageURL["url"])
	}
	if received.ResponseFormat["type"] != "json_object" {
		t.Errorf("Expected json_object response format, got %v", received.ResponseFormat)
	}
}

func TestExtractTextErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer server.Close()

	tests := []struct {
		name   string
		apiKey string
	}{
		{"missing key", ""},
		{"no choices", "secret"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.apiKey, server.URL).ExtractText(context.Background(), providers.Config{}); err == nil {
				t.Error("Expected error")
			}
		})
	}
}
