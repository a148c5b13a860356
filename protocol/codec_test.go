package protocol

import (
	"testing"

	"github.com/modelcontext/runtime/internal/jsonrpc2"
)

func TestNewRequest_EncodesMethodAndParams(t *testing.T) {
	req, err := NewRequest(jsonrpc2.NumberID(1), MethodToolsCall, CallToolParams{Name: "echo"})
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	if req.Method != MethodToolsCall {
		t.Errorf("Method = %q, want %q", req.Method, MethodToolsCall)
	}
	var decoded CallToolParams
	if err := DecodeParams(req.Params, &decoded); err != nil {
		t.Fatalf("decoding params: %v", err)
	}
	if decoded.Name != "echo" {
		t.Errorf("Name = %q, want %q", decoded.Name, "echo")
	}
}

func TestNewRequest_NilParamsEncodesNothing(t *testing.T) {
	req, err := NewRequest(jsonrpc2.NumberID(1), MethodPing, nil)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	if len(req.Params) != 0 {
		t.Errorf("Params = %s, want empty", req.Params)
	}
}

func TestNewNotification(t *testing.T) {
	n, err := NewNotification(NotificationToolsListChanged, nil)
	if err != nil {
		t.Fatalf("NewNotification() error = %v", err)
	}
	if n.Method != NotificationToolsListChanged {
		t.Errorf("Method = %q, want %q", n.Method, NotificationToolsListChanged)
	}
}

func TestNewResultResponse_DecodeResult(t *testing.T) {
	resp, err := NewResultResponse(jsonrpc2.NumberID(5), ListToolsResult{Tools: []Tool{{Name: "echo"}}})
	if err != nil {
		t.Fatalf("NewResultResponse() error = %v", err)
	}
	var result ListToolsResult
	if err := DecodeResult(resp, &result); err != nil {
		t.Fatalf("DecodeResult() error = %v", err)
	}
	if len(result.Tools) != 1 || result.Tools[0].Name != "echo" {
		t.Errorf("result = %+v", result)
	}
}

func TestNewErrorResponse_DecodeResultReturnsWireError(t *testing.T) {
	resp, err := NewErrorResponse(jsonrpc2.NumberID(5), jsonrpc2.CodeInvalidParams, "bad args", nil)
	if err != nil {
		t.Fatalf("NewErrorResponse() error = %v", err)
	}
	var result ListToolsResult
	err = DecodeResult(resp, &result)
	if err == nil {
		t.Fatal("expected DecodeResult to surface the wire error")
	}
	werr, ok := err.(*jsonrpc2.WireError)
	if !ok {
		t.Fatalf("error type = %T, want *jsonrpc2.WireError", err)
	}
	if werr.Code != jsonrpc2.CodeInvalidParams {
		t.Errorf("Code = %d, want %d", werr.Code, jsonrpc2.CodeInvalidParams)
	}
}

func TestNewErrorResponse_WithData(t *testing.T) {
	resp, err := NewErrorResponse(jsonrpc2.StringID("x"), jsonrpc2.CodeInvalidParams, "bad", map[string]string{"field": "name"})
	if err != nil {
		t.Fatalf("NewErrorResponse() error = %v", err)
	}
	if resp.Err.Data == nil {
		t.Fatal("expected Data to be populated")
	}
}

func TestDecodeParams_EmptyIsNoop(t *testing.T) {
	var p CallToolParams
	if err := DecodeParams(nil, &p); err != nil {
		t.Fatalf("DecodeParams(nil) error = %v", err)
	}
}
