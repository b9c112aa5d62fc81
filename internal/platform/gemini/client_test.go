package gemini

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/zistudy/zistudy-backend/internal/platform/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("dev")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	return log
}

func newTestClient(t *testing.T, serverURL string) Client {
	t.Helper()
	c, err := NewClient(testLogger(t), Config{
		APIKey:     "test-key",
		Model:      "gemini-2.5-pro",
		Endpoint:   serverURL + "/v1beta",
		Timeout:    5 * time.Second,
		MaxRetries: 0,
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestGenerateJSONReturnsJSONPart(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if key := r.Header.Get("x-goog-api-key"); key != "test-key" {
			t.Errorf("api key header = %q", key)
		}
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{{
				"finishReason": "STOP",
				"content": map[string]any{
					"parts": []map[string]any{{"json": map[string]any{"cards": []any{}}}},
				},
			}},
		})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	defer c.Close()

	out, err := c.GenerateJSON(t.Context(), GenerateJSONInput{
		SystemInstruction: "sys",
		Messages: []Message{{
			Role:  "user",
			Parts: []Part{TextPart{Text: "hello"}},
		}},
	})
	if err != nil {
		t.Fatalf("GenerateJSON: %v", err)
	}
	if _, ok := out["cards"]; !ok {
		t.Fatalf("expected cards key, got %v", out)
	}
	if gotPath != "/v1beta/models/gemini-2.5-pro:generateContent" {
		t.Fatalf("path = %q", gotPath)
	}
	cfg, _ := gotBody["generationConfig"].(map[string]any)
	if cfg["responseMimeType"] != "application/json" {
		t.Fatalf("responseMimeType = %v", cfg["responseMimeType"])
	}
	sys, _ := gotBody["system_instruction"].(map[string]any)
	if sys == nil {
		t.Fatal("missing system_instruction")
	}
}

func TestGenerateJSONParsesTextPart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{{
				"content": map[string]any{
					"parts": []map[string]any{{"text": `{"answer": 42}`}},
				},
			}},
		})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	defer c.Close()

	out, err := c.GenerateJSON(t.Context(), GenerateJSONInput{Messages: []Message{{Role: "user", Parts: []Part{TextPart{Text: "q"}}}}})
	if err != nil {
		t.Fatalf("GenerateJSON: %v", err)
	}
	if out["answer"] != float64(42) {
		t.Fatalf("answer = %v", out["answer"])
	}
}

func TestGenerateJSONRejectsNonObjectText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{{
				"content": map[string]any{
					"parts": []map[string]any{{"text": `[1, 2, 3]`}},
				},
			}},
		})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	defer c.Close()

	_, err := c.GenerateJSON(t.Context(), GenerateJSONInput{Messages: []Message{{Role: "user", Parts: []Part{TextPart{Text: "q"}}}}})
	if err == nil {
		t.Fatal("expected error for array payload")
	}
	if !strings.Contains(err.Error(), "JSON object") {
		t.Fatalf("error = %v", err)
	}
}

func TestGenerateJSONFailureModes(t *testing.T) {
	cases := []struct {
		name    string
		body    map[string]any
		wantSub string
	}{
		{
			name: "blocked prompt",
			body: map[string]any{
				"promptFeedback": map[string]any{"blockReason": "SAFETY"},
			},
			wantSub: "SAFETY",
		},
		{
			name:    "no candidates",
			body:    map[string]any{"candidates": []any{}},
			wantSub: "candidates",
		},
		{
			name: "unfinished candidate",
			body: map[string]any{
				"candidates": []map[string]any{{"finishReason": "MAX_TOKENS"}},
			},
			wantSub: "MAX_TOKENS",
		},
		{
			name: "no usable part",
			body: map[string]any{
				"candidates": []map[string]any{{
					"finishReason": "STOP",
					"content":      map[string]any{"parts": []any{}},
				}},
			},
			wantSub: "JSON payload",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_ = json.NewEncoder(w).Encode(tc.body)
			}))
			defer srv.Close()

			c := newTestClient(t, srv.URL)
			defer c.Close()

			_, err := c.GenerateJSON(t.Context(), GenerateJSONInput{Messages: []Message{{Role: "user", Parts: []Part{TextPart{Text: "q"}}}}})
			if err == nil {
				t.Fatal("expected failure")
			}
			if !strings.Contains(err.Error(), tc.wantSub) {
				t.Fatalf("error %q missing %q", err.Error(), tc.wantSub)
			}
		})
	}
}

func TestGenerateJSONHTTPErrorSummary(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error": {"status": "INVALID_ARGUMENT", "message": "schema rejected"}}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	defer c.Close()

	_, err := c.GenerateJSON(t.Context(), GenerateJSONInput{Messages: []Message{{Role: "user", Parts: []Part{TextPart{Text: "q"}}}}})
	if err == nil {
		t.Fatal("expected HTTP failure")
	}
	ce, ok := err.(*ClientError)
	if !ok {
		t.Fatalf("error type %T", err)
	}
	if ce.HTTPStatusCode() != http.StatusBadRequest {
		t.Fatalf("status = %d", ce.HTTPStatusCode())
	}
	if !strings.Contains(ce.Message, "INVALID_ARGUMENT: schema rejected") {
		t.Fatalf("message = %q", ce.Message)
	}
	if !strings.Contains(ce.Message, "400") {
		t.Fatalf("message missing status code: %q", ce.Message)
	}
}

func TestGenerateJSONRetriesRetryableStatus(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{{
				"content": map[string]any{
					"parts": []map[string]any{{"text": `{"ok": true}`}},
				},
			}},
		})
	}))
	defer srv.Close()

	c, err := NewClient(testLogger(t), Config{
		APIKey:     "test-key",
		Endpoint:   srv.URL + "/v1beta",
		Timeout:    5 * time.Second,
		MaxRetries: 2,
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer c.Close()

	out, err := c.GenerateJSON(t.Context(), GenerateJSONInput{
		Model:    "gemini-2.5-flash",
		Messages: []Message{{Role: "user", Parts: []Part{TextPart{Text: "q"}}}},
	})
	if err != nil {
		t.Fatalf("GenerateJSON: %v", err)
	}
	if out["ok"] != true {
		t.Fatalf("out = %v", out)
	}
	if calls != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}
}

func TestGenerateJSONModelPathPrefix(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{{
				"content": map[string]any{"parts": []map[string]any{{"text": `{}`}}},
			}},
		})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	defer c.Close()

	if _, err := c.GenerateJSON(t.Context(), GenerateJSONInput{
		Model:    "models/custom-model",
		Messages: []Message{{Role: "user", Parts: []Part{TextPart{Text: "q"}}}},
	}); err != nil {
		t.Fatalf("GenerateJSON: %v", err)
	}
	if gotPath != "/v1beta/models/custom-model:generateContent" {
		t.Fatalf("path = %q", gotPath)
	}
}

func TestUploadFileTwoPhase(t *testing.T) {
	payload := []byte("%PDF-1.7 fake body")
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	var startSeen, uploadSeen bool
	mux.HandleFunc("/upload/v1beta/files", func(w http.ResponseWriter, r *http.Request) {
		startSeen = true
		if r.Header.Get("X-Goog-Upload-Protocol") != "resumable" {
			t.Errorf("upload protocol header = %q", r.Header.Get("X-Goog-Upload-Protocol"))
		}
		if r.Header.Get("X-Goog-Upload-Command") != "start" {
			t.Errorf("upload command header = %q", r.Header.Get("X-Goog-Upload-Command"))
		}
		if r.Header.Get("X-Goog-Upload-Header-Content-Type") != "application/pdf" {
			t.Errorf("content type header = %q", r.Header.Get("X-Goog-Upload-Header-Content-Type"))
		}
		var startBody map[string]any
		if err := json.NewDecoder(r.Body).Decode(&startBody); err != nil {
			t.Errorf("start body undecodable: %v", err)
		}
		file, _ := startBody["file"].(map[string]any)
		if file["display_name"] != "case.pdf" {
			t.Errorf("start body = %v", startBody)
		}
		w.Header().Set("x-goog-upload-url", srv.URL+"/upload-session")
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/upload-session", func(w http.ResponseWriter, r *http.Request) {
		uploadSeen = true
		if r.Header.Get("X-Goog-Upload-Command") != "upload, finalize" {
			t.Errorf("finalize command header = %q", r.Header.Get("X-Goog-Upload-Command"))
		}
		if r.Header.Get("X-Goog-Upload-Offset") != "0" {
			t.Errorf("offset header = %q", r.Header.Get("X-Goog-Upload-Offset"))
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != string(payload) {
			t.Errorf("uploaded body mismatch")
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"file": map[string]any{"uri": "files/abc123"},
		})
	})

	c := newTestClient(t, srv.URL)
	defer c.Close()

	uri, err := c.UploadFile(t.Context(), payload, "application/pdf", "case.pdf")
	if err != nil {
		t.Fatalf("UploadFile: %v", err)
	}
	if uri != "files/abc123" {
		t.Fatalf("uri = %q", uri)
	}
	if !startSeen || !uploadSeen {
		t.Fatalf("phases seen: start=%v upload=%v", startSeen, uploadSeen)
	}
}

func TestUploadFileMissingUploadURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	defer c.Close()

	_, err := c.UploadFile(t.Context(), []byte("data"), "application/pdf", "")
	if err == nil {
		t.Fatal("expected failure when upload URL header is missing")
	}
	if !strings.Contains(err.Error(), "upload URL") {
		t.Fatalf("error = %v", err)
	}
}

func TestSummarizeErrorBody(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want string
	}{
		{"status and message", `{"error": {"status": "PERMISSION_DENIED", "message": "bad key"}}`, "PERMISSION_DENIED: bad key"},
		{"message only", `{"message": "oops"}`, "oops"},
		{"list body", `[{"a":1},{"b":2}]`, "Response contained 2 error item(s)"},
		{"plain text", "gateway timeout", "gateway timeout"},
		{"empty", "", "No response body"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := summarizeErrorBody([]byte(tc.raw)); got != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}
}
