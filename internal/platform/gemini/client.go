package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/zistudy/zistudy-backend/internal/platform/envutil"
	"github.com/zistudy/zistudy-backend/internal/platform/httpx"
	"github.com/zistudy/zistudy-backend/internal/platform/logger"
)

// MaxInlineBytes is the largest payload embedded directly into a request
// before callers should prefer the file upload API.
const MaxInlineBytes = 20 * 1024 * 1024

const DefaultEndpoint = "https://generativelanguage.googleapis.com/v1beta"

// ClientError reports a failed or unusable Gemini response.
type ClientError struct {
	StatusCode int
	Message    string
	// Body carries the raw response body for logging; it is never folded
	// into Message verbatim.
	Body string
}

func (e *ClientError) Error() string { return e.Message }

func (e *ClientError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

// Part is one unit of message content on the generateContent wire.
type Part interface {
	partPayload() map[string]any
}

type TextPart struct {
	Text string
}

func (p TextPart) partPayload() map[string]any {
	return map[string]any{"text": p.Text}
}

type InlineDataPart struct {
	MimeType string
	Data     string // base64
}

func (p InlineDataPart) partPayload() map[string]any {
	return map[string]any{
		"inlineData": map[string]any{
			"mimeType": p.MimeType,
			"data":     p.Data,
		},
	}
}

type FilePart struct {
	MimeType string
	FileURI  string
}

func (p FilePart) partPayload() map[string]any {
	return map[string]any{
		"fileData": map[string]any{
			"mimeType": p.MimeType,
			"fileUri":  p.FileURI,
		},
	}
}

// Message is a role-tagged sequence of content parts.
type Message struct {
	Role  string
	Parts []Part
}

// GenerationConfig carries sampling and shape parameters for one call.
type GenerationConfig struct {
	Temperature      *float64
	TopP             *float64
	TopK             *int
	CandidateCount   *int
	MaxOutputTokens  *int
	ResponseMIMEType string
	Extra            map[string]any
}

func (c *GenerationConfig) asPayload() map[string]any {
	payload := map[string]any{}
	if c == nil {
		return payload
	}
	if c.Temperature != nil {
		payload["temperature"] = *c.Temperature
	}
	if c.TopP != nil {
		payload["topP"] = *c.TopP
	}
	if c.TopK != nil {
		payload["topK"] = *c.TopK
	}
	if c.CandidateCount != nil {
		payload["candidateCount"] = *c.CandidateCount
	}
	if c.MaxOutputTokens != nil {
		payload["maxOutputTokens"] = *c.MaxOutputTokens
	}
	if c.ResponseMIMEType != "" {
		payload["responseMimeType"] = c.ResponseMIMEType
	}
	for k, v := range c.Extra {
		payload[k] = v
	}
	return payload
}

// GenerateJSONInput bundles everything for one structured generation call.
type GenerateJSONInput struct {
	SystemInstruction string
	Messages          []Message
	// ResponseSchema may contain $defs/$ref; it is inlined before dispatch
	// because the API rejects references.
	ResponseSchema map[string]any
	Config         *GenerationConfig
	Model          string
}

// Client is the narrow Gemini surface the generation pipeline relies on.
type Client interface {
	DefaultModel() string
	SupportsFileUploads() bool
	GenerateJSON(ctx context.Context, in GenerateJSONInput) (map[string]any, error)
	UploadFile(ctx context.Context, data []byte, mimeType string, displayName string) (string, error)
	Close()
}

type Config struct {
	APIKey     string
	Model      string
	Endpoint   string
	Timeout    time.Duration
	MaxRetries int
}

// ConfigFromEnv reads the client configuration the same way the rest of the
// backend reads env-driven settings.
func ConfigFromEnv() Config {
	return Config{
		APIKey:     envutil.String("GEMINI_API_KEY", ""),
		Model:      envutil.String("GEMINI_MODEL", "gemini-2.5-pro"),
		Endpoint:   envutil.String("GEMINI_ENDPOINT", DefaultEndpoint),
		Timeout:    time.Duration(envutil.Int("GEMINI_TIMEOUT_SECONDS", 60)) * time.Second,
		MaxRetries: envutil.Int("GEMINI_MAX_RETRIES", 2),
	}
}

type client struct {
	log        *logger.Logger
	apiKey     string
	model      string
	endpoint   string
	uploadURL  string
	httpClient *http.Client
	maxRetries int
}

func NewClient(baseLog *logger.Logger, cfg Config) (Client, error) {
	if baseLog == nil {
		return nil, fmt.Errorf("logger required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("missing GEMINI_API_KEY")
	}
	endpoint := strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	parsed, err := url.Parse(endpoint)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid gemini endpoint %q", cfg.Endpoint)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &client{
		log:        baseLog.With("client", "GeminiClient"),
		apiKey:     cfg.APIKey,
		model:      strings.TrimSpace(cfg.Model),
		endpoint:   endpoint,
		uploadURL:  parsed.Scheme + "://" + parsed.Host + "/upload/v1beta/files",
		httpClient: &http.Client{Timeout: timeout},
		maxRetries: maxRetries,
	}, nil
}

func (c *client) DefaultModel() string { return c.model }

func (c *client) SupportsFileUploads() bool { return true }

func (c *client) Close() {
	c.httpClient.CloseIdleConnections()
}

type generateContentResponse struct {
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
	Candidates []struct {
		FinishReason string `json:"finishReason"`
		Content      struct {
			Parts []responsePart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

type responsePart struct {
	Text *string         `json:"text"`
	JSON json.RawMessage `json:"json"`
}

func (c *client) GenerateJSON(ctx context.Context, in GenerateJSONInput) (map[string]any, error) {
	model := strings.TrimSpace(in.Model)
	if model == "" {
		model = c.model
	}
	modelPath := model
	if !strings.HasPrefix(modelPath, "models/") {
		modelPath = "models/" + modelPath
	}
	requestURL := c.endpoint + "/" + modelPath + ":generateContent"

	contents := make([]map[string]any, 0, len(in.Messages))
	for _, message := range in.Messages {
		parts := make([]map[string]any, 0, len(message.Parts))
		for _, part := range message.Parts {
			parts = append(parts, part.partPayload())
		}
		contents = append(contents, map[string]any{
			"role":  message.Role,
			"parts": parts,
		})
	}

	configPayload := in.Config.asPayload()
	if _, ok := configPayload["responseMimeType"]; !ok {
		configPayload["responseMimeType"] = "application/json"
	}
	if len(in.ResponseSchema) > 0 {
		resolved, err := ResolveSchema(in.ResponseSchema)
		if err != nil {
			return nil, err
		}
		configPayload["responseJsonSchema"] = resolved
	}

	body := map[string]any{
		"system_instruction": map[string]any{
			"parts": []map[string]any{{"text": in.SystemInstruction}},
		},
		"contents":         contents,
		"generationConfig": configPayload,
	}

	headers := map[string]string{
		"Content-Type":   "application/json",
		"x-goog-api-key": c.apiKey,
	}
	raw, err := c.doWithRetry(ctx, http.MethodPost, requestURL, headers, jsonBody(body), "Gemini request failed")
	if err != nil {
		var ce *ClientError
		if asClientError(err, &ce) {
			c.log.Error("Gemini request failed",
				"status_code", ce.StatusCode,
				"url", requestURL,
				"model", model,
				"error_summary", ce.Message,
				"error_body", ce.Body,
			)
		}
		return nil, err
	}

	var decoded generateContentResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, &ClientError{Message: "Gemini response was not valid JSON.", Body: string(raw)}
	}
	if decoded.PromptFeedback != nil && decoded.PromptFeedback.BlockReason != "" {
		return nil, &ClientError{Message: fmt.Sprintf("Gemini blocked the request: %s", decoded.PromptFeedback.BlockReason)}
	}
	if len(decoded.Candidates) == 0 {
		return nil, &ClientError{Message: "Gemini response did not contain any candidates."}
	}
	candidate := decoded.Candidates[0]
	if candidate.FinishReason != "" && candidate.FinishReason != "STOP" && candidate.FinishReason != "FINISH" {
		return nil, &ClientError{Message: fmt.Sprintf("Gemini did not finish successfully (finishReason=%s).", candidate.FinishReason)}
	}
	for _, part := range candidate.Content.Parts {
		if len(part.JSON) > 0 {
			payload := map[string]any{}
			if err := json.Unmarshal(part.JSON, &payload); err == nil {
				return payload, nil
			}
		}
		if part.Text != nil {
			return parseTextJSON(*part.Text)
		}
	}
	return nil, &ClientError{Message: "Unable to locate JSON payload in Gemini response."}
}

// UploadFile drives the resumable upload protocol: a start request that must
// answer with an upload URL header, then a single finalizing byte upload.
func (c *client) UploadFile(ctx context.Context, data []byte, mimeType string, displayName string) (string, error) {
	if displayName == "" {
		displayName = "uploaded.pdf"
	}
	startHeaders := map[string]string{
		"Content-Type":                        "application/json",
		"x-goog-api-key":                      c.apiKey,
		"X-Goog-Upload-Protocol":              "resumable",
		"X-Goog-Upload-Command":               "start",
		"X-Goog-Upload-Header-Content-Length": strconv.Itoa(len(data)),
		"X-Goog-Upload-Header-Content-Type":   mimeType,
	}
	startBody := map[string]any{
		"file": map[string]any{"display_name": displayName},
	}
	startResp, err := c.doOnce(ctx, http.MethodPost, c.uploadURL, startHeaders, bytes.NewReader(jsonBody(startBody)))
	if err != nil {
		return "", err
	}
	defer startResp.Body.Close()
	startRaw, _ := io.ReadAll(startResp.Body)
	if startResp.StatusCode < 200 || startResp.StatusCode >= 300 {
		clientErr := newHTTPError("Gemini upload initialisation failed", startResp.StatusCode, startRaw)
		c.log.Error("Gemini upload initialisation failed",
			"status_code", startResp.StatusCode,
			"mime_type", mimeType,
			"display_name", displayName,
			"error_summary", clientErr.Message,
		)
		return "", clientErr
	}
	uploadURL := strings.TrimSpace(startResp.Header.Get("x-goog-upload-url"))
	if uploadURL == "" {
		return "", &ClientError{Message: "Gemini did not provide an upload URL."}
	}

	uploadHeaders := map[string]string{
		"Content-Type":          mimeType,
		"Content-Length":        strconv.Itoa(len(data)),
		"x-goog-api-key":        c.apiKey,
		"X-Goog-Upload-Offset":  "0",
		"X-Goog-Upload-Command": "upload, finalize",
	}
	uploadResp, err := c.doOnce(ctx, http.MethodPost, uploadURL, uploadHeaders, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	defer uploadResp.Body.Close()
	uploadRaw, _ := io.ReadAll(uploadResp.Body)
	if uploadResp.StatusCode < 200 || uploadResp.StatusCode >= 300 {
		clientErr := newHTTPError("Gemini upload failed", uploadResp.StatusCode, uploadRaw)
		c.log.Error("Gemini upload failed",
			"status_code", uploadResp.StatusCode,
			"mime_type", mimeType,
			"display_name", displayName,
			"error_summary", clientErr.Message,
		)
		return "", clientErr
	}

	var uploadInfo struct {
		File struct {
			URI string `json:"uri"`
		} `json:"file"`
	}
	if err := json.Unmarshal(uploadRaw, &uploadInfo); err != nil || uploadInfo.File.URI == "" {
		return "", &ClientError{Message: "Gemini upload response missing file URI.", Body: string(uploadRaw)}
	}
	return uploadInfo.File.URI, nil
}

func (c *client) doOnce(ctx context.Context, method, requestURL string, headers map[string]string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, requestURL, body)
	if err != nil {
		return nil, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return c.httpClient.Do(req)
}

// doWithRetry retries transient transport failures and retryable HTTP
// statuses with capped exponential backoff, honouring Retry-After.
func (c *client) doWithRetry(ctx context.Context, method, requestURL string, headers map[string]string, body []byte, failurePrefix string) ([]byte, error) {
	backoff := 1 * time.Second
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		resp, err := c.doOnce(ctx, method, requestURL, headers, bytes.NewReader(body))
		if err != nil {
			lastErr = err
		} else {
			raw, readErr := io.ReadAll(resp.Body)
			_ = resp.Body.Close()
			if readErr != nil {
				return nil, readErr
			}
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				return raw, nil
			}
			lastErr = newHTTPError(failurePrefix, resp.StatusCode, raw)
			if !httpx.IsRetryableHTTPStatus(resp.StatusCode) {
				return nil, lastErr
			}
			if attempt < c.maxRetries {
				sleepFor := httpx.JitterSleep(httpx.RetryAfterDuration(resp, backoff, 10*time.Second))
				c.log.Warn("Gemini request retrying",
					"url", requestURL,
					"attempt", attempt+1,
					"max_retries", c.maxRetries,
					"sleep", sleepFor.String(),
					"error", lastErr.Error(),
				)
				time.Sleep(sleepFor)
				backoff *= 2
			}
			continue
		}
		if !httpx.IsRetryableError(err) || attempt == c.maxRetries {
			return nil, lastErr
		}
		sleepFor := httpx.JitterSleep(backoff)
		c.log.Warn("Gemini request retrying",
			"url", requestURL,
			"attempt", attempt+1,
			"max_retries", c.maxRetries,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)
		time.Sleep(sleepFor)
		backoff *= 2
	}
	return nil, lastErr
}

func jsonBody(payload any) []byte {
	raw, _ := json.Marshal(payload)
	return raw
}

func parseTextJSON(text string) (map[string]any, error) {
	var parsed any
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return nil, &ClientError{Message: "Gemini response was not valid JSON.", Body: text}
	}
	obj, ok := parsed.(map[string]any)
	if !ok {
		return nil, &ClientError{Message: "Gemini response did not contain a JSON object.", Body: text}
	}
	return obj, nil
}

func newHTTPError(prefix string, statusCode int, raw []byte) *ClientError {
	return &ClientError{
		StatusCode: statusCode,
		Message:    fmt.Sprintf("%s (%d): %s", prefix, statusCode, summarizeErrorBody(raw)),
		Body:       string(raw),
	}
}

// summarizeErrorBody mirrors the error body shapes the API actually returns:
// {"error": {"status": ..., "message": ...}} first, then bare messages, then
// raw text.
func summarizeErrorBody(raw []byte) string {
	trimmed := strings.TrimSpace(string(raw))
	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		if trimmed == "" {
			return "No response body"
		}
		return trimmed
	}
	switch typed := payload.(type) {
	case map[string]any:
		if errObj, ok := typed["error"].(map[string]any); ok {
			var parts []string
			if status, ok := errObj["status"].(string); ok && status != "" {
				parts = append(parts, status)
			} else if code, ok := errObj["code"].(float64); ok {
				parts = append(parts, strconv.Itoa(int(code)))
			}
			if message, ok := errObj["message"].(string); ok && message != "" {
				parts = append(parts, message)
			}
			if len(parts) > 0 {
				return strings.Join(parts, ": ")
			}
			return "Gemini returned an error"
		}
		if message, ok := typed["message"].(string); ok && message != "" {
			return message
		}
	case []any:
		return fmt.Sprintf("Response contained %d error item(s)", len(typed))
	}
	return trimmed
}

func asClientError(err error, target **ClientError) bool {
	ce, ok := err.(*ClientError)
	if !ok {
		return false
	}
	*target = ce
	return true
}
