package daemon

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	amerrors "github.com/Aman-CERP/amanfind/internal/errors"
	"github.com/Aman-CERP/amanfind/internal/search"
)

// JSON-RPC 2.0 method names.
const (
	MethodPing        = "ping"
	MethodStatus      = "status"
	MethodSearch      = "search"
	MethodIndexStatus = "index_status"
)

// Standard JSON-RPC 2.0 error codes.
const (
	ErrCodeParseError     = -32700
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// Daemon-specific error codes.
const (
	ErrCodeSearchFailed = -32001
	ErrCodeStatusFailed = -32002
)

// Request is a JSON-RPC 2.0 request. One request per connection.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      string          `json:"id"`
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
	ID      string          `json:"id"`
}

// Error is a JSON-RPC 2.0 error object. Reason and Suggestion carry the
// engine's structured error so the client can rebuild it.
type Error struct {
	Code       int    `json:"code"`
	Message    string `json:"message"`
	Reason     string `json:"reason,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("daemon error %d: %s", e.Code, e.Message)
}

// Err converts e for callers. Engine errors come back as *AmanError.
func (e *Error) Err() error {
	if e.Reason != "" {
		return amerrors.New(e.Reason, e.Message, nil).WithSuggestion(e.Suggestion)
	}
	return e
}

// NewSuccessResponse encodes result into a response.
func NewSuccessResponse(id string, result any) Response {
	data, err := json.Marshal(result)
	if err != nil {
		return NewErrorResponse(id, ErrCodeInternalError, "failed to encode result")
	}
	return Response{JSONRPC: "2.0", Result: data, ID: id}
}

// NewEngineErrorResponse wraps an engine error, keeping its code.
func NewEngineErrorResponse(id string, code int, err error) Response {
	resp := NewErrorResponse(id, code, err.Error())
	var ae *amerrors.AmanError
	if errors.As(err, &ae) {
		resp.Error.Message = ae.Message
		resp.Error.Reason = ae.Code
		resp.Error.Suggestion = ae.Suggestion
	}
	return resp
}

// NewErrorResponse creates an error response.
func NewErrorResponse(id string, code int, message string) Response {
	return Response{
		JSONRPC: "2.0",
		Error:   &Error{Code: code, Message: message},
		ID:      id,
	}
}

// SearchParams carries a search request over the socket.
type SearchParams struct {
	Container   string   `json:"container,omitempty"`
	Query       string   `json:"query"`
	TopK        int      `json:"top_k,omitempty"`
	SnippetSize int      `json:"snippet_size,omitempty"`
	Extensions  []string `json:"extensions,omitempty"`
	PathPrefix  string   `json:"path_prefix,omitempty"`
}

// Validate checks required fields and clamps negative sizes.
func (p *SearchParams) Validate() error {
	if strings.TrimSpace(p.Query) == "" {
		return amerrors.New(amerrors.ErrCodeQueryEmpty, "query is empty", search.ErrEmptyQuery)
	}
	if p.TopK < 0 {
		p.TopK = 0
	}
	if p.SnippetSize < 0 {
		p.SnippetSize = 0
	}
	return nil
}

// Request converts the params for the searcher.
func (p SearchParams) Request() search.Request {
	return search.Request{
		Container:   p.Container,
		Query:       p.Query,
		TopK:        p.TopK,
		SnippetSize: p.SnippetSize,
		Extensions:  p.Extensions,
		PathPrefix:  p.PathPrefix,
	}
}

// ParamsFromRequest is the inverse of SearchParams.Request. Sessions do
// not cross the socket.
func ParamsFromRequest(req search.Request) SearchParams {
	return SearchParams{
		Container:   req.Container,
		Query:       req.Query,
		TopK:        req.TopK,
		SnippetSize: req.SnippetSize,
		Extensions:  req.Extensions,
		PathPrefix:  req.PathPrefix,
	}
}

// IndexStatusParams names the container to report on.
type IndexStatusParams struct {
	Container string `json:"container,omitempty"`
}

// StatusResult describes the running daemon.
type StatusResult struct {
	Running    bool     `json:"running"`
	PID        int      `json:"pid"`
	Uptime     string   `json:"uptime"`
	Model      string   `json:"model"`
	Dims       int      `json:"dims"`
	Containers []string `json:"containers"`
	Watching   bool     `json:"watching"`
}

// PingResult is the response to a ping.
type PingResult struct {
	Pong bool `json:"pong"`
}
