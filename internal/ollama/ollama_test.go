package ollama

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/lehigh-university-libraries/lifeindex/internal/providers"
)

func TestExtractText(t *testing.T) {
	var received map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("Expected path /api/generate, got %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"response": `{"title":"Mug"}`})
	}))
	defer server.Close()

	o := New(server.URL + "/")
	got, err := o.ExtractText(context.Background(), providers.Config{
		Model:  "llava",
		Prompt: "describe",
		Images: []providers.Image{{Data: []byte("pixels")}},
		JSON:   true,
	})
	if err != nil {
		t.Fatalf("ExtractText: %v", err)
	}
	if got != `{"title":"Mug"}` {
		t.Errorf("Expected response text, got %q", got)
	}

	if received["model"] != "llava" {
		t.Errorf("Expected model llava, got %v", received["model"])
	}
	if received["format"] != "json" {
		t.Errorf("Expected json format, got %v", received["format"])
	}
	images, ok := received["images"].([]interface{})
	if !ok || len(images) != 1 || images[0] != base64.StdEncoding.EncodeToString([]byte("pixels")) {
		t.Errorf("Expected one base64 image, got %v", received["images"])
	}
}

func TestExtractTextNon200(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer server.Close()

	_, err := New(server.URL).ExtractText(context.Background(), providers.Config{Model: "missing"})
	if err == nil || !strings.Contains(err.Error(), "404") {
		t.Errorf("Expected 404 error, got %v", err)
	}
}

func TestNewDefaultsURL(t *testing.T) {
	if got := New("").baseURL; got != DefaultURL {
		t.Errorf("Expected %s, got %s", DefaultURL, got)
	}
}
