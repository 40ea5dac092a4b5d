package protocol

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlerMethodNotFound(t *testing.T) {
	resp := NewHandler().Handle(Request{JSONRPC: "2.0", ID: 1, Method: "nonexistent"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeMethodNotFound, resp.Error.Code)
}

func TestHandlerInvalidVersion(t *testing.T) {
	resp := NewHandler().Handle(Request{JSONRPC: "1.0", ID: 1, Method: "test"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeInvalidRequest, resp.Error.Code)
}

func TestHandlerSuccessAndError(t *testing.T) {
	h := NewHandler()
	h.Register("echo", func(params json.RawMessage) (any, *Error) {
		return map[string]string{"echo": string(params)}, nil
	})
	h.Register("fail", func(json.RawMessage) (any, *Error) {
		return nil, &Error{Code: CodeNotFound, Message: "missing"}
	})

	resp := h.Handle(Request{JSONRPC: "2.0", ID: 1, Method: "echo", Params: json.RawMessage(`"hello"`)})
	require.Nil(t, resp.Error)
	assert.Equal(t, map[string]string{"echo": `"hello"`}, resp.Result)
	assert.Equal(t, 1, resp.ID)

	resp = h.Handle(Request{JSONRPC: "2.0", ID: "x", Method: "fail"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeNotFound, resp.Error.Code)
	assert.Nil(t, resp.Result)
}

func TestHandleRawParseError(t *testing.T) {
	resp := NewHandler().HandleRaw([]byte("{not json"))
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeParseError, resp.Error.Code)
}

func TestParseParams(t *testing.T) {
	p, perr := ParseParams[ContextIDParams](json.RawMessage(`{"context_id":"ctx_1"}`))
	require.Nil(t, perr)
	assert.Equal(t, "ctx_1", p.ContextID)

	p, perr = ParseParams[ContextIDParams](nil)
	require.Nil(t, perr)
	assert.Empty(t, p.ContextID)

	_, perr = ParseParams[ContextIDParams](json.RawMessage(`{"context_id":7}`))
	require.NotNil(t, perr)
	assert.Equal(t, CodeInvalidParams, perr.Code)
}

func TestMethodsSorted(t *testing.T) {
	h := NewHandler()
	h.Register("b", nil)
	h.Register("a", nil)
	assert.Equal(t, []string{"a", "b"}, h.Methods())
}

func TestServe(t *testing.T) {
	h := NewHandler()
	h.Register("ping", func(json.RawMessage) (any, *Error) { return "pong", nil })

	in := strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"ping"}` + "\n\n" +
		`{"jsonrpc":"2.0","id":2,"method":"missing"}` + "\n")
	var out bytes.Buffer
	require.NoError(t, h.Serve(in, &out))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2, "blank lines are skipped")
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":1,"result":"pong"}`, lines[0])

	var resp Response
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeMethodNotFound, resp.Error.Code)
}

func TestHandlerRecoversPanic(t *testing.T) {
	h := NewHandler()
	h.Register("boom", func(json.RawMessage) (any, *Error) { panic("nil map") })

	resp := h.Handle(Request{JSONRPC: "2.0", ID: 3, Method: "boom"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeInternalError, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "nil map")
	assert.Equal(t, 3, resp.ID)
}

func TestHandleMessageNotification(t *testing.T) {
	calls := 0
	h := NewHandler()
	h.Register("touch", func(json.RawMessage) (any, *Error) { calls++; return "ok", nil })

	assert.Nil(t, h.HandleMessage([]byte(`{"jsonrpc":"2.0","method":"touch"}`)))
	assert.Equal(t, 1, calls)

	// Failed notifications still report the error.
	reply := h.HandleMessage([]byte(`{"jsonrpc":"2.0","method":"missing"}`))
	resp, ok := reply.(Response)
	require.True(t, ok)
	assert.Equal(t, CodeMethodNotFound, resp.Error.Code)
}

func TestHandleMessageBatch(t *testing.T) {
	h := NewHandler()
	h.Register("ping", func(json.RawMessage) (any, *Error) { return "pong", nil })

	reply := h.HandleMessage([]byte(`[
		{"jsonrpc":"2.0","id":1,"method":"ping"},
		{"jsonrpc":"2.0","method":"ping"},
		42,
		{"jsonrpc":"2.0","id":2,"method":"nope"}
	]`))
	resps, ok := reply.([]Response)
	require.True(t, ok)
	require.Len(t, resps, 3)
	assert.Equal(t, "pong", resps[0].Result)
	assert.Equal(t, CodeInvalidRequest, resps[1].Error.Code)
	assert.Equal(t, CodeMethodNotFound, resps[2].Error.Code)

	assert.Nil(t, h.HandleMessage([]byte(`[{"jsonrpc":"2.0","method":"ping"}]`)))

	resp, ok := h.HandleMessage([]byte(`[]`)).(Response)
	require.True(t, ok)
	assert.Equal(t, CodeInvalidRequest, resp.Error.Code)
}

func TestServeBatchLine(t *testing.T) {
	h := NewHandler()
	h.Register("ping", func(json.RawMessage) (any, *Error) { return "pong", nil })

	in := strings.NewReader(`[{"jsonrpc":"2.0","id":1,"method":"ping"},{"jsonrpc":"2.0","id":2,"method":"ping"}]` + "\n" +
		`{"jsonrpc":"2.0","method":"ping"}` + "\n")
	var out bytes.Buffer
	require.NoError(t, h.Serve(in, &out))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 1, "notifications get no reply")
	assert.JSONEq(t, `[{"jsonrpc":"2.0","id":1,"result":"pong"},{"jsonrpc":"2.0","id":2,"result":"pong"}]`, lines[0])
}
