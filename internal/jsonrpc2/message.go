package jsonrpc2

import (
	"fmt"

	"github.com/modelcontext/runtime/internal/json"
)

// ID is a JSON-RPC request identifier: either a string or a 64-bit unsigned
// integer. Locally generated IDs always use the Number form; String is kept
// so responses to server-generated or replayed requests round-trip exactly.
type ID struct {
	str      string
	num      uint64
	isString bool
}

// StringID constructs a string-valued ID.
func StringID(s string) ID { return ID{str: s, isString: true} }

// NumberID constructs a numeric ID. The multiplexer always allocates IDs
// through this constructor so correlation survives long-lived sessions
// without wraparound.
func NumberID(n uint64) ID { return ID{num: n} }

// IsString reports whether the ID holds a string value.
func (id ID) IsString() bool { return id.isString }

// String returns the string value; valid only when IsString is true.
func (id ID) String() string { return id.str }

// Number returns the numeric value; valid only when IsString is false.
func (id ID) Number() uint64 { return id.num }

func (id ID) raw() string {
	if id.isString {
		return id.str
	}
	return fmt.Sprintf("%d", id.num)
}

// Key returns a value suitable for use as a map key that uniquely identifies
// this ID across both representations.
func (id ID) Key() any {
	if id.isString {
		return "s:" + id.str
	}
	return id.num
}

func (id ID) MarshalJSON() ([]byte, error) {
	if id.isString {
		return json.Marshal(id.str)
	}
	return json.Marshal(id.num)
}

func (id *ID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*id = ID{str: s, isString: true}
		return nil
	}
	var n uint64
	if err := json.Unmarshal(data, &n); err == nil {
		*id = ID{num: n}
		return nil
	}
	return fmt.Errorf("jsonrpc2: id must be a string or unsigned integer, got %q", string(data))
}

func (id ID) GoString() string { return id.raw() }

// WireError is the JSON-RPC error object carried by a Response.
type WireError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *WireError) Error() string {
	return fmt.Sprintf("jsonrpc2: code %d: %s", e.Code, e.Message)
}

// Standard JSON-RPC 2.0 error codes, used by the codec when it must
// synthesize an error rather than relay one that came from a peer.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Message is the closed sum of the three wire shapes a decoded JSON value
// can take. Exactly one of Request, Notification, Response is non-nil.
type Message struct {
	Request      *Request
	Notification *Notification
	Response     *Response
}

// Request is an inbound or outbound call that expects a Response.
type Request struct {
	ID     ID
	Method string
	Params json.RawMessage
}

// Notification is a one-way call: no ID, no reply expected.
type Notification struct {
	Method string
	Params json.RawMessage
}

// Response carries either a Result or an Err, never both.
type Response struct {
	ID     ID
	Result json.RawMessage
	Err    *WireError
}

type wireMessage struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *ID             `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *WireError      `json:"error,omitempty"`
}

// EncodeMessage serializes m to its wire form, attaching "jsonrpc":"2.0".
func EncodeMessage(m *Message) ([]byte, error) {
	var w wireMessage
	w.JSONRPC = "2.0"
	switch {
	case m.Request != nil:
		id := m.Request.ID
		w.ID = &id
		w.Method = m.Request.Method
		w.Params = m.Request.Params
	case m.Notification != nil:
		w.Method = m.Notification.Method
		w.Params = m.Notification.Params
	case m.Response != nil:
		id := m.Response.ID
		w.ID = &id
		if m.Response.Err != nil {
			w.Error = m.Response.Err
		} else {
			w.Result = m.Response.Result
			if w.Result == nil {
				w.Result = json.RawMessage("null")
			}
		}
	default:
		return nil, fmt.Errorf("jsonrpc2: empty message")
	}
	return json.Marshal(w)
}

// DecodeMessage parses a single JSON-RPC value and classifies it per the
// presence of id/method/result/error, using StrictUnmarshal so a smuggled
// duplicate or mis-cased key is rejected rather than silently shadowed.
func DecodeMessage(data []byte) (*Message, error) {
	var w wireMessage
	if err := StrictUnmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("jsonrpc2: decode: %w", err)
	}

	switch {
	case w.Method != "" && w.ID != nil:
		return &Message{Request: &Request{ID: *w.ID, Method: w.Method, Params: w.Params}}, nil
	case w.Method != "" && w.ID == nil:
		return &Message{Notification: &Notification{Method: w.Method, Params: w.Params}}, nil
	case w.ID != nil && (w.Result != nil || w.Error != nil):
		return &Message{Response: &Response{ID: *w.ID, Result: w.Result, Err: w.Error}}, nil
	default:
		return nil, fmt.Errorf("jsonrpc2: malformed message: neither a request, notification, nor response")
	}
}
