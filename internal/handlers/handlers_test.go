package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/lehigh-university-libraries/lifeindex/internal/capture"
	"github.com/lehigh-university-libraries/lifeindex/internal/catalog"
	"github.com/lehigh-university-libraries/lifeindex/internal/cataloging"
	"github.com/lehigh-university-libraries/lifeindex/internal/models"
	"github.com/lehigh-university-libraries/lifeindex/internal/photostore"
)

type stubAssistant struct {
	proposal models.Proposal
	release  chan struct{}
}

func (a stubAssistant) Analyze(ctx context.Context, imagePath string) (models.Proposal, error) {
	if a.release != nil {
		select {
		case <-a.release:
		case <-ctx.Done():
			return models.Proposal{}, ctx.Err()
		}
	}
	return a.proposal, nil
}

func newTestServer(t *testing.T, assistant capture.Assistant) (*httptest.Server, *cataloging.Service) {
	t.Helper()
	store, err := photostore.New(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("photostore.New: %v", err)
	}
	cat, err := catalog.Open(context.Background(), ":memory:", nil)
	if err != nil {
		t.Fatalf("catalog.Open: %v", err)
	}
	t.Cleanup(func() { cat.Close() })

	service := cataloging.NewService(store, cat, assistant, time.Second, nil)
	mux := http.NewServeMux()
	New(service, 1024*1024).Routes(mux)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, service
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func upload(t *testing.T, server *httptest.Server, data []byte) *http.Response {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", "photo.png")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatal(err)
	}
	writer.Close()

	resp, err := http.Post(server.URL+"/api/captures", writer.FormDataContentType(), &body)
	if err != nil {
		t.Fatalf("POST /api/captures: %v", err)
	}
	return resp
}

func doJSON(t *testing.T, method, url string, payload any) *http.Response {
	t.Helper()
	var body bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&body).Encode(payload); err != nil {
			t.Fatal(err)
		}
	}
	req, err := http.NewRequest(method, url, &body)
	if err != nil {
		t.Fatal(err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	return resp
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

type captureBody struct {
	SessionID string       `json:"session_id"`
	State     string       `json:"state"`
	Draft     models.Draft `json:"draft"`
}

type itemBody struct {
	models.Item
	ImageURL string `json:"image_url"`
}

func waitConfirming(t *testing.T, service *cataloging.Service, sessionID string) {
	t.Helper()
	session, ok := service.Sessions().Get(sessionID)
	if !ok {
		t.Fatalf("Session %s not found", sessionID)
	}
	deadline := time.Now().Add(5 * time.Second)
	for session.Workflow.State() != capture.Confirming {
		if time.Now().After(deadline) {
			t.Fatalf("Timed out waiting for confirming, still %s", session.Workflow.State())
		}
		time.Sleep(time.Millisecond)
	}
}

func TestHealthcheck(t *testing.T) {
	server, _ := newTestServer(t, nil)

	resp, err := http.Get(server.URL + "/healthcheck")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}
}

func TestCaptureLifecycle(t *testing.T) {
	server, service := newTestServer(t, stubAssistant{proposal: models.Proposal{
		Title:    "Blue Shirt",
		Category: "Clothes",
		Tags:     []string{"blue"},
	}})

	resp := upload(t, server, pngBytes(t))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d", resp.StatusCode)
	}
	var created captureBody
	decode(t, resp, &created)
	if created.SessionID == "" {
		t.Fatal("Expected a session id")
	}
	waitConfirming(t, service, created.SessionID)

	resp = doJSON(t, "PUT", server.URL+"/api/captures/"+created.SessionID, map[string]any{
		"title":    "Navy Shirt",
		"add_tags": []string{"cotton"},
	})
	var edited captureBody
	decode(t, resp, &edited)
	if edited.State != "confirming" {
		t.Errorf("Expected state confirming, got %s", edited.State)
	}
	if edited.Draft.Title != "Navy Shirt" {
		t.Errorf("Expected title Navy Shirt, got %q", edited.Draft.Title)
	}
	if len(edited.Draft.Tags) != 2 || edited.Draft.Tags[0] != "blue" || edited.Draft.Tags[1] != "cotton" {
		t.Errorf("Expected tags [blue cotton], got %v", edited.Draft.Tags)
	}

	resp = doJSON(t, "POST", server.URL+"/api/captures/"+created.SessionID+"/commit", nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d", resp.StatusCode)
	}
	var item itemBody
	decode(t, resp, &item)
	if item.ID == 0 || item.Title != "Navy Shirt" || item.Category != "Clothes" {
		t.Errorf("Unexpected committed item %+v", item.Item)
	}
	if _, ok := service.Sessions().Get(created.SessionID); ok {
		t.Error("Expected the session to be released after commit")
	}

	imageResp, err := http.Get(server.URL + item.ImageURL)
	if err != nil {
		t.Fatal(err)
	}
	imageResp.Body.Close()
	if imageResp.StatusCode != http.StatusOK {
		t.Errorf("Expected image status 200, got %d", imageResp.StatusCode)
	}
	if got := imageResp.Header.Get("Content-Type"); got != "image/png" {
		t.Errorf("Expected image/png, got %q", got)
	}
}

func TestUploadRejectsNonImage(t *testing.T) {
	server, service := newTestServer(t, nil)

	resp := upload(t, server, []byte("not an image"))
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnsupportedMediaType {
		t.Errorf("Expected status 415, got %d", resp.StatusCode)
	}
	if got := len(service.Sessions().GetAll()); got != 0 {
		t.Errorf("Expected no sessions, got %d", got)
	}
}

func TestUploadTooLarge(t *testing.T) {
	server, _ := newTestServer(t, nil)

	resp := upload(t, server, make([]byte, 1536*1024))
	resp.Body.Close()
	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Errorf("Expected status 413, got %d", resp.StatusCode)
	}
}

func TestCaptureFromURL(t *testing.T) {
	photo := pngBytes(t)
	images := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(photo)
	}))
	defer images.Close()
	server, service := newTestServer(t, nil)

	resp := doJSON(t, "POST", server.URL+"/api/captures", map[string]string{"url": images.URL + "/photo.png"})
	if resp.StatusCode != http.StatusCreated {
		resp.Body.Close()
		t.Fatalf("Expected status 201, got %d", resp.StatusCode)
	}
	var created captureBody
	decode(t, resp, &created)
	waitConfirming(t, service, created.SessionID)

	session, _ := service.Sessions().Get(created.SessionID)
	if !strings.HasSuffix(session.Workflow.Snapshot().Draft.TempImagePath, ".png") {
		t.Errorf("Expected a .png temp capture, got %s", session.Workflow.Snapshot().Draft.TempImagePath)
	}
}

func TestCommitWhileAnalyzingConflicts(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	server, _ := newTestServer(t, stubAssistant{release: release})

	resp := upload(t, server, pngBytes(t))
	var created captureBody
	decode(t, resp, &created)

	resp = doJSON(t, "POST", server.URL+"/api/captures/"+created.SessionID+"/commit", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("Expected status 409, got %d", resp.StatusCode)
	}
}

func TestCaptureDetailErrors(t *testing.T) {
	server, _ := newTestServer(t, nil)

	tests := []struct {
		name   string
		method string
		path   string
		want   int
	}{
		{"unknown session", "GET", "/api/captures/missing", http.StatusNotFound},
		{"unknown commit", "POST", "/api/captures/missing/commit", http.StatusNotFound},
		{"captures method", "PATCH", "/api/captures", http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := doJSON(t, tt.method, server.URL+tt.path, nil)
			resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Errorf("Expected status %d, got %d", tt.want, resp.StatusCode)
			}
		})
	}
}

func TestDeleteCaptureDiscardsSession(t *testing.T) {
	server, service := newTestServer(t, nil)

	resp := upload(t, server, pngBytes(t))
	var created captureBody
	decode(t, resp, &created)

	resp = doJSON(t, "DELETE", server.URL+"/api/captures/"+created.SessionID, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("Expected status 204, got %d", resp.StatusCode)
	}
	if _, ok := service.Sessions().Get(created.SessionID); ok {
		t.Error("Expected session to be removed")
	}
}

func seedItem(t *testing.T, service *cataloging.Service, title, category string, tags ...string) int64 {
	t.Helper()
	id, err := service.Catalog().Insert(context.Background(), models.Item{
		ImageLocation: "/photos/" + strings.ReplaceAll(strings.ToLower(title), " ", "-") + ".jpg",
		Title:         title,
		Category:      category,
		Tags:          tags,
	})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	return id
}

func TestItemsListing(t *testing.T) {
	server, service := newTestServer(t, nil)
	seedItem(t, service, "Blue Shirt", "Clothes", "cotton")
	seedItem(t, service, "Red Shirt", "Clothes")
	seedItem(t, service, "Toaster", "Tools")

	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{"all", "", []string{"Toaster", "Red Shirt", "Blue Shirt"}},
		{"category", "?category=Clothes", []string{"Red Shirt", "Blue Shirt"}},
		{"search", "?q=blue", []string{"Blue Shirt"}},
		{"search tag", "?q=COTTON", []string{"Blue Shirt"}},
		{"both", "?category=Tools&q=shirt", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Get(server.URL + "/api/items" + tt.query)
			if err != nil {
				t.Fatal(err)
			}
			var items []itemBody
			decode(t, resp, &items)
			if len(items) != len(tt.want) {
				t.Fatalf("Expected %d items, got %d", len(tt.want), len(items))
			}
			for i, title := range tt.want {
				if items[i].Title != title {
					t.Errorf("Expected item %d to be %s, got %s", i, title, items[i].Title)
				}
			}
		})
	}
}

func TestCategoriesEndpoint(t *testing.T) {
	server, service := newTestServer(t, nil)
	seedItem(t, service, "Blue Shirt", "Clothes")

	resp, err := http.Get(server.URL + "/api/categories")
	if err != nil {
		t.Fatal(err)
	}
	var counts []struct {
		Category string `json:"category"`
		Count    int    `json:"count"`
	}
	decode(t, resp, &counts)

	found := false
	for _, c := range counts {
		if c.Category == "Clothes" {
			found = true
			if c.Count != 1 {
				t.Errorf("Expected Clothes count 1, got %d", c.Count)
			}
		}
	}
	if !found {
		t.Errorf("Expected Clothes in %v", counts)
	}
}

func TestItemDetail(t *testing.T) {
	server, service := newTestServer(t, nil)
	id := seedItem(t, service, "Blue Shirt", "Clothes", "cotton")
	url := server.URL + "/api/items/" + strconv.FormatInt(id, 10)

	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	var item itemBody
	decode(t, resp, &item)
	if item.Title != "Blue Shirt" {
		t.Errorf("Expected Blue Shirt, got %s", item.Title)
	}
	if item.ImageURL != "/images/blue-shirt.jpg" {
		t.Errorf("Expected /images/blue-shirt.jpg, got %s", item.ImageURL)
	}

	resp = doJSON(t, "PUT", url, map[string]any{"title": "Navy Shirt", "remove_tags": []string{"cotton"}})
	decode(t, resp, &item)
	if item.Title != "Navy Shirt" || len(item.Tags) != 0 {
		t.Errorf("Unexpected edited item %+v", item.Item)
	}

	resp = doJSON(t, "DELETE", url, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("Expected status 204, got %d", resp.StatusCode)
	}

	for _, method := range []string{"GET", "DELETE"} {
		resp = doJSON(t, method, url, nil)
		resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("%s after delete: expected status 404, got %d", method, resp.StatusCode)
		}
	}

	resp = doJSON(t, "PUT", url, map[string]any{"title": "Ghost"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("PUT after delete: expected status 404, got %d", resp.StatusCode)
	}
}

func TestItemDetailBadID(t *testing.T) {
	server, _ := newTestServer(t, nil)

	for _, raw := range []string{"abc", "0", "-3"} {
		resp, err := http.Get(server.URL + "/api/items/" + raw)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("id %q: expected status 400, got %d", raw, resp.StatusCode)
		}
	}
}

func TestImagesRejectsTraversal(t *testing.T) {
	server, service := newTestServer(t, nil)
	handler := New(service, 0)

	req := httptest.NewRequest("GET", "/images/..%2Fsecret", nil)
	req.URL.Path = "/images/../secret"
	rec := httptest.NewRecorder()
	handler.HandleImages(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", rec.Code)
	}

	resp, err := http.Get(server.URL + "/images/missing.jpg")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected status 404 for a missing photo, got %d", resp.StatusCode)
	}
}

func TestImageExtension(t *testing.T) {
	ext, err := imageExtension(pngBytes(t))
	if err != nil {
		t.Fatalf("imageExtension: %v", err)
	}
	if ext != ".png" {
		t.Errorf("Expected .png, got %s", ext)
	}
	if _, err := imageExtension([]byte("plain text")); err == nil {
		t.Error("Expected an error for non-image data")
	}
}
