package protocol

import (
	"encoding/json"
	"errors"

	"github.com/cgast/tracegen/internal/sandbox"
	tgctx "github.com/cgast/tracegen/pkg/context"
	"github.com/cgast/tracegen/pkg/events"
	"github.com/cgast/tracegen/pkg/export"
	"github.com/cgast/tracegen/pkg/trace"
)

// Services are the components the JSON-RPC methods operate on. Events may be
// nil.
type Services struct {
	Store    *tgctx.Store
	Exporter *export.Exporter
	Events   events.EventBus
}

// RegisterMethods registers every tracegen method on h.
func RegisterMethods(h *Handler, svc Services) {
	h.Register(MethodContextCreate, func(params json.RawMessage) (any, *Error) {
		p, perr := ParseParams[ContextCreateParams](params)
		if perr != nil {
			return nil, perr
		}
		if p.RequirementText == "" {
			return nil, invalidParams("requirement_text is required")
		}
		id, err := svc.Store.Create(p.RequirementText, p.Domain, p.Metadata)
		if err != nil {
			return nil, ErrorFrom(err)
		}
		return ContextCreateResult{ContextID: id}, nil
	})

	h.Register(MethodContextGet, func(params json.RawMessage) (any, *Error) {
		p, perr := ParseParams[ContextIDParams](params)
		if perr != nil {
			return nil, perr
		}
		if p.ContextID == "" {
			return nil, invalidParams("context_id is required")
		}
		rec, ok, err := svc.Store.Get(p.ContextID)
		if err != nil {
			return nil, ErrorFrom(err)
		}
		if !ok {
			return nil, &Error{Code: CodeNotFound, Message: "context not found: " + p.ContextID}
		}
		return rec, nil
	})

	h.Register(MethodContextBuild, func(params json.RawMessage) (any, *Error) {
		p, perr := ParseParams[ContextBuildParams](params)
		if perr != nil {
			return nil, perr
		}
		if p.ContextID == "" {
			return nil, invalidParams("context_id is required")
		}
		rec, err := svc.Store.Build(p.ContextID, p.Info)
		if err != nil {
			return nil, ErrorFrom(err)
		}
		return rec, nil
	})

	h.Register(MethodContextFeedback, func(params json.RawMessage) (any, *Error) {
		p, perr := ParseParams[ContextFeedbackParams](params)
		if perr != nil {
			return nil, perr
		}
		if p.ContextID == "" {
			return nil, invalidParams("context_id is required")
		}
		rec, err := svc.Store.AddFeedback(p.ContextID, p.Feedback)
		if err != nil {
			return nil, ErrorFrom(err)
		}
		return rec, nil
	})

	h.Register(MethodContextList, func(json.RawMessage) (any, *Error) {
		summaries, err := svc.Store.List()
		if err != nil {
			return nil, ErrorFrom(err)
		}
		return summaries, nil
	})

	h.Register(MethodMatrixBuild, func(params json.RawMessage) (any, *Error) {
		p, perr := ParseParams[MatrixBuildParams](params)
		if perr != nil {
			return nil, perr
		}
		m := trace.Build(p.RequirementText, p.TestCases)
		publishMatrix(svc.Events, m)
		if p.ContextID != "" {
			if _, err := svc.Store.Build(p.ContextID, m.AsInfo()); err != nil {
				return nil, ErrorFrom(err)
			}
		}
		return m, nil
	})

	h.Register(MethodExport, func(params json.RawMessage) (any, *Error) {
		p, perr := ParseParams[ExportParams](params)
		if perr != nil {
			return nil, perr
		}
		result, err := svc.Exporter.Export(p.TestCases, export.Format(p.Format), p.Destination)
		if err != nil {
			return nil, ErrorFrom(err)
		}
		return result, nil
	})

	h.Register(MethodFormatsList, func(json.RawMessage) (any, *Error) {
		return export.Formats(), nil
	})
}

// ErrorFrom maps a domain error to a JSON-RPC error.
func ErrorFrom(err error) *Error {
	code := CodeStorage
	switch {
	case errors.Is(err, tgctx.ErrNotFound):
		code = CodeNotFound
	case errors.Is(err, export.ErrUnsupportedFormat):
		code = CodeUnsupportedFormat
	case errors.Is(err, export.ErrNotImplemented):
		code = CodeNotImplemented
	case errors.Is(err, sandbox.ErrPathDenied), errors.Is(err, sandbox.ErrTooLarge):
		code = CodePathDenied
	}
	return &Error{Code: code, Message: err.Error()}
}

func invalidParams(msg string) *Error {
	return &Error{Code: CodeInvalidParams, Message: "invalid params: " + msg}
}

func publishMatrix(bus events.EventBus, m trace.Matrix) {
	if bus == nil {
		return
	}
	s := m.Summary()
	bus.Publish(events.NewEvent(events.EventMatrixBuilt, events.MatrixData{
		Requirements: s.Requirements,
		Covered:      s.Covered,
	}))
}
