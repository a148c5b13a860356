package protocol

import (
	"github.com/modelcontext/runtime/internal/json"
	"github.com/modelcontext/runtime/internal/jsonrpc2"
)

// NewRequest marshals params and wraps it with method and id into a wire
// Request. Marshal errors propagate to the caller rather than being
// swallowed, since a bad params value is a programmer error worth surfacing.
func NewRequest(id jsonrpc2.ID, method string, params any) (*jsonrpc2.Request, error) {
	raw, err := marshalParams(params)
	if err != nil {
		return nil, err
	}
	return &jsonrpc2.Request{ID: id, Method: method, Params: raw}, nil
}

// NewNotification is NewRequest without a correlation id.
func NewNotification(method string, params any) (*jsonrpc2.Notification, error) {
	raw, err := marshalParams(params)
	if err != nil {
		return nil, err
	}
	return &jsonrpc2.Notification{Method: method, Params: raw}, nil
}

// NewResultResponse wraps a successful result value into a wire Response.
func NewResultResponse(id jsonrpc2.ID, result any) (*jsonrpc2.Response, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	return &jsonrpc2.Response{ID: id, Result: raw}, nil
}

// NewErrorResponse wraps a JSON-RPC error into a wire Response.
func NewErrorResponse(id jsonrpc2.ID, code int, message string, data any) (*jsonrpc2.Response, error) {
	we := &jsonrpc2.WireError{Code: code, Message: message}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		we.Data = raw
	}
	return &jsonrpc2.Response{ID: id, Err: we}, nil
}

func marshalParams(params any) (json.RawMessage, error) {
	if params == nil {
		return nil, nil
	}
	return json.Marshal(params)
}

// DecodeResult unmarshals a successful response's result payload into v.
func DecodeResult(resp *jsonrpc2.Response, v any) error {
	if resp.Err != nil {
		return resp.Err
	}
	if len(resp.Result) == 0 {
		return nil
	}
	return json.Unmarshal(resp.Result, v)
}

// DecodeParams unmarshals an inbound request or notification's params into v.
func DecodeParams(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}
