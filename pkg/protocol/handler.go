package protocol

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"sync"
)

// maxLineSize bounds a single request line on the stdio transport.
const maxLineSize = 8 * 1024 * 1024

// HandlerFunc processes a JSON-RPC request and returns a result or error.
type HandlerFunc func(params json.RawMessage) (any, *Error)

// Handler dispatches JSON-RPC methods. It is safe for concurrent use.
type Handler struct {
	mu      sync.RWMutex
	methods map[string]HandlerFunc
}

// NewHandler creates a Handler with no methods.
func NewHandler() *Handler {
	return &Handler{methods: make(map[string]HandlerFunc)}
}

// Register installs fn for method, replacing any earlier registration.
func (h *Handler) Register(method string, fn HandlerFunc) {
	h.mu.Lock()
	h.methods[method] = fn
	h.mu.Unlock()
}

// Methods returns all registered method names, sorted.
func (h *Handler) Methods() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	names := make([]string, 0, len(h.methods))
	for m := range h.methods {
		names = append(names, m)
	}
	sort.Strings(names)
	return names
}

// Handle dispatches a single request. A panicking method is reported as an
// internal error rather than taking the service down.
func (h *Handler) Handle(req Request) (resp Response) {
	if req.JSONRPC != "2.0" {
		return NewErrorResponse(req.ID, CodeInvalidRequest, "invalid jsonrpc version", nil)
	}
	if req.Method == "" {
		return NewErrorResponse(req.ID, CodeInvalidRequest, "method is required", nil)
	}

	h.mu.RLock()
	fn, ok := h.methods[req.Method]
	h.mu.RUnlock()
	if !ok || fn == nil {
		return NewErrorResponse(req.ID, CodeMethodNotFound, "method not found: "+req.Method, nil)
	}

	defer func() {
		if r := recover(); r != nil {
			resp = NewErrorResponse(req.ID, CodeInternalError, fmt.Sprintf("%s: internal error: %v", req.Method, r), nil)
		}
	}()

	result, rpcErr := fn(req.Params)
	if rpcErr != nil {
		return Response{JSONRPC: "2.0", ID: req.ID, Error: rpcErr}
	}
	return NewResponse(req.ID, result)
}

// HandleRaw decodes one request object and dispatches it.
func (h *Handler) HandleRaw(data []byte) Response {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return NewErrorResponse(nil, CodeParseError, "parse error: "+err.Error(), nil)
	}
	return h.Handle(req)
}

// HandleMessage dispatches a request object or a batch array. It returns
// nil when nothing should be written back: a notification, or a batch made
// only of notifications.
func (h *Handler) HandleMessage(data []byte) any {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '[' {
		var req Request
		if err := json.Unmarshal(data, &req); err != nil {
			return NewErrorResponse(nil, CodeParseError, "parse error: "+err.Error(), nil)
		}
		resp := h.Handle(req)
		if req.ID == nil && resp.Error == nil {
			return nil
		}
		return resp
	}

	var batch []json.RawMessage
	if err := json.Unmarshal(data, &batch); err != nil {
		return NewErrorResponse(nil, CodeParseError, "parse error: "+err.Error(), nil)
	}
	if len(batch) == 0 {
		return NewErrorResponse(nil, CodeInvalidRequest, "empty batch", nil)
	}

	var out []Response
	for _, raw := range batch {
		var req Request
		if err := json.Unmarshal(raw, &req); err != nil {
			out = append(out, NewErrorResponse(nil, CodeInvalidRequest, "invalid request: "+err.Error(), nil))
			continue
		}
		resp := h.Handle(req)
		if req.ID == nil && resp.Error == nil {
			continue
		}
		out = append(out, resp)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Serve reads one message per line from r and writes one response line per
// message that needs an answer, until r is exhausted.
func (h *Handler) Serve(r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	enc := json.NewEncoder(w)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		reply := h.HandleMessage(line)
		if reply == nil {
			continue
		}
		if err := enc.Encode(reply); err != nil {
			return fmt.Errorf("encode response: %w", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read request: %w", err)
	}
	return nil
}

// ParseParams unmarshals params into T. Absent or null params yield T's
// zero value.
func ParseParams[T any](params json.RawMessage) (T, *Error) {
	var p T
	if len(params) == 0 || string(params) == "null" {
		return p, nil
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return p, &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("invalid params: %v", err)}
	}
	return p, nil
}
