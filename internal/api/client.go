package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/youruser/mmedit/internal/config"
	"github.com/youruser/mmedit/internal/logging"
	"github.com/youruser/mmedit/internal/mindmap"
	"github.com/youruser/mmedit/internal/sse"
)

var (
	ErrRequestFailed = errors.New("API request failed")
	log              = logging.Get()
)

// Client talks to the documentation editor server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the server at baseURL. Requests carry no
// timeout of their own; callers bound them through the context.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{},
	}
}

// BaseURL returns the server URL without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func filePath(path string) string {
	return "/api/files/" + url.PathEscape(path)
}

// do sends req and returns the response when the status is 2xx. Other
// statuses are turned into ErrRequestFailed carrying the body text.
func (c *Client) do(req *http.Request) (*http.Response, error) {
	log.Debug("HTTP %s %s", req.Method, req.URL)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Error("HTTP request failed: %v", err)
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		log.Error("API error %d: %s", resp.StatusCode, string(body))
		return nil, fmt.Errorf("%w: %d - %s", ErrRequestFailed, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return resp, nil
}

func (c *Client) getJSON(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return json.NewDecoder(resp.Body).Decode(v)
}

func (c *Client) sendJSON(ctx context.Context, method, path string, body any) (*http.Response, error) {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

// GetConfig fetches the mindmap display limits. Any failure falls back to
// config.DefaultMindmap.
func (c *Client) GetConfig(ctx context.Context) config.Mindmap {
	var remote config.Remote
	if err := c.getJSON(ctx, "/api/config", &remote); err != nil {
		log.Warn("Using default mindmap limits: %v", err)
		return config.DefaultMindmap()
	}
	return remote.Mindmap.WithDefaults()
}

// FileInfo describes one editable file.
type FileInfo struct {
	Path   string `json:"path"`
	Name   string `json:"name"`
	Module string `json:"module,omitempty"`
}

type filesResponse struct {
	Files []FileInfo `json:"files"`
}

type fileBody struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// ListFiles returns the editable files in server order.
func (c *Client) ListFiles(ctx context.Context) ([]FileInfo, error) {
	var files filesResponse
	if err := c.getJSON(ctx, "/api/files", &files); err != nil {
		return nil, err
	}
	return files.Files, nil
}

// ReadFile returns the full text of the file at path.
func (c *Client) ReadFile(ctx context.Context, path string) (string, error) {
	var f fileBody
	if err := c.getJSON(ctx, filePath(path), &f); err != nil {
		return "", err
	}
	return f.Content, nil
}

// WriteFile replaces the file at path with content.
func (c *Client) WriteFile(ctx context.Context, path, content string) error {
	resp, err := c.sendJSON(ctx, http.MethodPut, filePath(path), fileBody{Path: path, Content: content})
	if err != nil {
		return err
	}
	io.Copy(io.Discard, resp.Body)
	return resp.Body.Close()
}

// Tree fetches the structured document tree.
func (c *Client) Tree(ctx context.Context) (*mindmap.Tree, error) {
	var tree mindmap.Tree
	if err := c.getJSON(ctx, "/api/tree", &tree); err != nil {
		return nil, err
	}
	return &tree, nil
}

// Status is the availability report of the assist and agent backends.
type Status struct {
	Available bool   `json:"available"`
	Message   string `json:"message,omitempty"`
}

// AIStatus reports whether the assist endpoint can serve requests.
func (c *Client) AIStatus(ctx context.Context) (Status, error) {
	var s Status
	err := c.getJSON(ctx, "/api/ai/status", &s)
	return s, err
}

// AgentStatus reports whether the chat agent can serve requests.
func (c *Client) AgentStatus(ctx context.Context) (Status, error) {
	var s Status
	err := c.getJSON(ctx, "/api/agent/status", &s)
	return s, err
}

// AssistRequest is the body of POST /api/ai/assist/stream.
type AssistRequest struct {
	Content      string `json:"content"`
	Action       string `json:"action"`
	Context      string `json:"context,omitempty"`
	CustomPrompt string `json:"custom_prompt,omitempty"`
}

// AssistRecord is one streamed assist record.
type AssistRecord struct {
	Text  string `json:"text,omitempty"`
	Done  bool   `json:"done,omitempty"`
	Error string `json:"error,omitempty"`
}

// AssistStream posts req and calls fn for each record until the stream ends.
// A non-2xx status is returned before fn is ever called.
func (c *Client) AssistStream(ctx context.Context, req AssistRequest, fn func(AssistRecord) error) error {
	log.Debug("Assist request (action: %s, content: %d bytes)", req.Action, len(req.Content))
	return stream(ctx, c, "/api/ai/assist/stream", req, fn)
}

// ChatRequest is the body of POST /api/agent/chat.
type ChatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
}

// Chat record types.
const (
	ChatText    = "text"
	ChatToolUse = "tool_use"
	ChatResult  = "result"
	ChatMessage = "message"
)

// ChatRecord is one streamed agent record.
type ChatRecord struct {
	Type    string `json:"type,omitempty"`
	Content string `json:"content,omitempty"`
	Tool    string `json:"tool,omitempty"`
	Done    bool   `json:"done,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ChatStream posts req and calls fn for each record until the stream ends.
func (c *Client) ChatStream(ctx context.Context, req ChatRequest, fn func(ChatRecord) error) error {
	log.Debug("Chat request (message: %d bytes)", len(req.Message))
	return stream(ctx, c, "/api/agent/chat", req, fn)
}

func stream[T any](ctx context.Context, c *Client, path string, body any, fn func(T) error) error {
	resp, err := c.sendJSON(ctx, http.MethodPost, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	log.Debug("HTTP response status: %d, reading stream", resp.StatusCode)
	return sse.Consume(ctx, resp.Body, fn)
}
