package protocol

import (
	"encoding/json"

	"github.com/cgast/tracegen/pkg/testcase"
)

// JSON-RPC 2.0 message types for the stdio service mode.

// Request is a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id,omitempty"` // string or int; nil for notifications
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string `json:"jsonrpc"`
	ID      any    `json:"id,omitempty"`
	Result  any    `json:"result,omitempty"`
	Error   *Error `json:"error,omitempty"`
}

// Error is a JSON-RPC 2.0 error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return e.Message
}

// Standard JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Application-specific error codes.
const (
	CodeNotFound          = -32000
	CodeUnsupportedFormat = -32001
	CodeNotImplemented    = -32002
	CodeStorage           = -32003
	CodePathDenied        = -32004
)

// Method constants for all supported JSON-RPC methods.
const (
	MethodContextCreate   = "context.create"
	MethodContextGet      = "context.get"
	MethodContextBuild    = "context.build"
	MethodContextFeedback = "context.feedback"
	MethodContextList     = "context.list"

	MethodMatrixBuild = "matrix.build"

	MethodExport      = "export"
	MethodFormatsList = "formats.list"
)

// NewResponse creates a successful response.
func NewResponse(id any, result any) Response {
	return Response{
		JSONRPC: "2.0",
		ID:      id,
		Result:  result,
	}
}

// NewErrorResponse creates an error response.
func NewErrorResponse(id any, code int, message string, data any) Response {
	return Response{
		JSONRPC: "2.0",
		ID:      id,
		Error: &Error{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

// ContextCreateParams holds parameters for "context.create".
type ContextCreateParams struct {
	RequirementText string         `json:"requirement_text"`
	Domain          string         `json:"domain"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// ContextCreateResult is the result of "context.create".
type ContextCreateResult struct {
	ContextID string `json:"context_id"`
}

// ContextIDParams holds parameters for "context.get".
type ContextIDParams struct {
	ContextID string `json:"context_id"`
}

// ContextBuildParams holds parameters for "context.build".
type ContextBuildParams struct {
	ContextID string         `json:"context_id"`
	Info      map[string]any `json:"info"`
}

// ContextFeedbackParams holds parameters for "context.feedback".
type ContextFeedbackParams struct {
	ContextID string         `json:"context_id"`
	Feedback  map[string]any `json:"feedback"`
}

// MatrixBuildParams holds parameters for "matrix.build". When ContextID is
// set the matrix is also recorded as an update on that context.
type MatrixBuildParams struct {
	RequirementText string              `json:"requirement_text"`
	TestCases       []testcase.TestCase `json:"test_cases"`
	ContextID       string              `json:"context_id,omitempty"`
}

// ExportParams holds parameters for "export".
type ExportParams struct {
	TestCases   []testcase.TestCase `json:"test_cases"`
	Format      string              `json:"format"`
	Destination string              `json:"destination,omitempty"`
}
