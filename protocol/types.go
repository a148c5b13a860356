package protocol

import (
	"fmt"

	"github.com/modelcontext/runtime/internal/json"
)

// Implementation identifies a client or server by name and version.
type Implementation struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// RootsCapability declares the client's support for the roots capability.
type RootsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

// SamplingCapability is empty on the wire; its presence is the signal.
type SamplingCapability struct{}

// ElicitationCapability declares which elicitation modes the client
// supports. An empty object on the wire means form-only, for backward
// compatibility with clients predating URL-mode elicitation.
type ElicitationCapability struct {
	Form bool `json:"-"`
	URL  bool `json:"-"`
}

func (c ElicitationCapability) MarshalJSON() ([]byte, error) {
	m := map[string]any{}
	if c.Form {
		m["form"] = map[string]any{}
	}
	if c.URL {
		m["url"] = map[string]any{}
	}
	return json.Marshal(m)
}

func (c *ElicitationCapability) UnmarshalJSON(data []byte) error {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	_, hasForm := m["form"]
	_, hasURL := m["url"]
	c.Form = hasForm || len(m) == 0
	c.URL = hasURL
	return nil
}

// ClientCapabilities is advertised by this module during initialize.
type ClientCapabilities struct {
	Roots        *RootsCapability       `json:"roots,omitempty"`
	Sampling     *SamplingCapability    `json:"sampling,omitempty"`
	Elicitation  *ElicitationCapability `json:"elicitation,omitempty"`
	Experimental map[string]any         `json:"experimental,omitempty"`
}

// ServerPromptsCapability, ServerResourcesCapability, ServerToolsCapability,
// and ServerLoggingCapability describe what the peer told us it supports.
type ServerPromptsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

type ServerResourcesCapability struct {
	Subscribe   bool `json:"subscribe,omitempty"`
	ListChanged bool `json:"listChanged,omitempty"`
}

type ServerToolsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

type ServerLoggingCapability struct{}

// ServerCapabilities is what the server declares in InitializeResult.
type ServerCapabilities struct {
	Prompts      *ServerPromptsCapability   `json:"prompts,omitempty"`
	Resources    *ServerResourcesCapability `json:"resources,omitempty"`
	Tools        *ServerToolsCapability     `json:"tools,omitempty"`
	Logging      *ServerLoggingCapability   `json:"logging,omitempty"`
	Experimental map[string]any             `json:"experimental,omitempty"`
}

// InitializeParams is sent by the client to open a session.
type InitializeParams struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ClientCapabilities `json:"capabilities"`
	ClientInfo      Implementation     `json:"clientInfo"`
}

// InitializeResult is the server's reply to initialize.
type InitializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ServerCapabilities `json:"capabilities"`
	ServerInfo      Implementation     `json:"serverInfo"`
	Instructions    string             `json:"instructions,omitempty"`
}

// ToolAnnotations are non-normative hints about a tool's behavior. Clients
// must not treat them as a security boundary: a server can lie.
type ToolAnnotations struct {
	Title           string `json:"title,omitempty"`
	DestructiveHint *bool  `json:"destructiveHint,omitempty"`
	IdempotentHint  *bool  `json:"idempotentHint,omitempty"`
	ReadOnlyHint    *bool  `json:"readOnlyHint,omitempty"`
	OpenWorldHint   *bool  `json:"openWorldHint,omitempty"`
}

// Tool describes one server-exposed tool and the JSON Schema its arguments
// must satisfy.
type Tool struct {
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	InputSchema json.RawMessage  `json:"inputSchema,omitempty"`
	Annotations *ToolAnnotations `json:"annotations,omitempty"`
}

type ListToolsParams struct {
	Cursor string `json:"cursor,omitempty"`
}

type ListToolsResult struct {
	Tools      []Tool `json:"tools"`
	NextCursor string `json:"nextCursor,omitempty"`
}

type CallToolParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

type CallToolResult struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError,omitempty"`
}

func (r *CallToolResult) MarshalJSON() ([]byte, error) {
	content, err := MarshalContentList(r.Content)
	if err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		Content json.RawMessage `json:"content"`
		IsError bool            `json:"isError,omitempty"`
	}{content, r.IsError})
}

func (r *CallToolResult) UnmarshalJSON(data []byte) error {
	var wire struct {
		Content json.RawMessage `json:"content"`
		IsError bool            `json:"isError,omitempty"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	content, err := UnmarshalContentList(wire.Content)
	if err != nil {
		return err
	}
	r.Content = content
	r.IsError = wire.IsError
	return nil
}

// Resource describes a single addressable resource a server can serve.
type Resource struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

type ListResourcesParams struct {
	Cursor string `json:"cursor,omitempty"`
}

type ListResourcesResult struct {
	Resources  []Resource `json:"resources"`
	NextCursor string     `json:"nextCursor,omitempty"`
}

type ReadResourceParams struct {
	URI string `json:"uri"`
}

// ResourceContents is either text or a base64 blob; exactly one of Text or
// Blob is populated, mirroring the wire's `text`/`blob` mutual exclusion.
type ResourceContents struct {
	URI      string `json:"uri"`
	MimeType string `json:"mimeType,omitempty"`
	Text     string `json:"text,omitempty"`
	Blob     string `json:"blob,omitempty"`
}

func (r ResourceContents) IsText() bool { return r.Text != "" || r.Blob == "" }
func (r ResourceContents) IsBlob() bool { return r.Blob != "" }

type ReadResourceResult struct {
	Contents []ResourceContents `json:"contents"`
}

type SubscribeResourceParams struct {
	URI string `json:"uri"`
}

type UnsubscribeResourceParams struct {
	URI string `json:"uri"`
}

type ResourceUpdatedNotification struct {
	URI string `json:"uri"`
}

// ResourceTemplate is an RFC 6570 URI template describing a family of
// resources rather than one fixed URI.
type ResourceTemplate struct {
	URITemplate string `json:"uriTemplate"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

type ListResourceTemplatesParams struct {
	Cursor string `json:"cursor,omitempty"`
}

type ListResourceTemplatesResult struct {
	ResourceTemplates []ResourceTemplate `json:"resourceTemplates"`
	NextCursor        string             `json:"nextCursor,omitempty"`
}

// PromptArgument describes one named argument a prompt template accepts.
type PromptArgument struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required,omitempty"`
}

type Prompt struct {
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Arguments   []PromptArgument `json:"arguments,omitempty"`
}

type ListPromptsParams struct {
	Cursor string `json:"cursor,omitempty"`
}

type ListPromptsResult struct {
	Prompts    []Prompt `json:"prompts"`
	NextCursor string   `json:"nextCursor,omitempty"`
}

type GetPromptParams struct {
	Name      string            `json:"name"`
	Arguments map[string]string `json:"arguments,omitempty"`
}

type PromptMessage struct {
	Role    string  `json:"role"`
	Content Content `json:"content"`
}

func (m *PromptMessage) MarshalJSON() ([]byte, error) {
	c, err := m.Content.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		Role    string          `json:"role"`
		Content json.RawMessage `json:"content"`
	}{m.Role, c})
}

func (m *PromptMessage) UnmarshalJSON(data []byte) error {
	var wire struct {
		Role    string          `json:"role"`
		Content json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	items, err := unmarshalContent(wire.Content)
	if err != nil {
		return err
	}
	if len(items) != 1 {
		return fmt.Errorf("protocol: prompt message content must be a single object, got %d", len(items))
	}
	m.Role = wire.Role
	m.Content = items[0]
	return nil
}

type GetPromptResult struct {
	Description string          `json:"description,omitempty"`
	Messages    []PromptMessage `json:"messages"`
}

// CompleteReference selects what a completion/complete call is completing
// against: a prompt name or a resource template URI.
type CompleteReference struct {
	Type string `json:"type"`
	Name string `json:"name,omitempty"`
	URI  string `json:"uri,omitempty"`
}

type CompleteArgument struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type CompleteParams struct {
	Ref      CompleteReference `json:"ref"`
	Argument CompleteArgument  `json:"argument"`
}

type CompletionInfo struct {
	Values  []string `json:"values"`
	Total   int      `json:"total,omitempty"`
	HasMore bool     `json:"hasMore,omitempty"`
}

type CompleteResult struct {
	Completion CompletionInfo `json:"completion"`
}

// LoggingLevel is an RFC 5424 syslog severity name, lowest-to-highest.
type LoggingLevel string

const (
	LogDebug     LoggingLevel = "debug"
	LogInfo      LoggingLevel = "info"
	LogNotice    LoggingLevel = "notice"
	LogWarning   LoggingLevel = "warning"
	LogError     LoggingLevel = "error"
	LogCritical  LoggingLevel = "critical"
	LogAlert     LoggingLevel = "alert"
	LogEmergency LoggingLevel = "emergency"
)

type SetLoggingLevelParams struct {
	Level LoggingLevel `json:"level"`
}

type LoggingMessageParams struct {
	Level  LoggingLevel    `json:"level"`
	Logger string          `json:"logger,omitempty"`
	Data   json.RawMessage `json:"data"`
}

// ModelHint is a single name-based preference for model selection, weakest
// constraint first in ModelPreferences.Hints.
type ModelHint struct {
	Name string `json:"name,omitempty"`
}

// ModelPreferences lets the server express priorities the client's model
// picker (if any) can use; all fields are advisory.
type ModelPreferences struct {
	Hints                []ModelHint `json:"hints,omitempty"`
	CostPriority         *float64    `json:"costPriority,omitempty"`
	SpeedPriority        *float64    `json:"speedPriority,omitempty"`
	IntelligencePriority *float64    `json:"intelligencePriority,omitempty"`
}

type SamplingMessage struct {
	Role    string  `json:"role"`
	Content Content `json:"content"`
}

func (m *SamplingMessage) MarshalJSON() ([]byte, error) {
	c, err := m.Content.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		Role    string          `json:"role"`
		Content json.RawMessage `json:"content"`
	}{m.Role, c})
}

func (m *SamplingMessage) UnmarshalJSON(data []byte) error {
	var wire struct {
		Role    string          `json:"role"`
		Content json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	items, err := unmarshalContent(wire.Content)
	if err != nil {
		return err
	}
	if len(items) != 1 {
		return fmt.Errorf("protocol: sampling message content must be a single object, got %d", len(items))
	}
	m.Role = wire.Role
	m.Content = items[0]
	return nil
}

type CreateMessageParams struct {
	Messages         []SamplingMessage `json:"messages"`
	ModelPreferences *ModelPreferences `json:"modelPreferences,omitempty"`
	SystemPrompt     string            `json:"systemPrompt,omitempty"`
	IncludeContext   string            `json:"includeContext,omitempty"`
	Temperature      *float64          `json:"temperature,omitempty"`
	MaxTokens        int               `json:"maxTokens"`
	StopSequences    []string          `json:"stopSequences,omitempty"`
}

type CreateMessageResult struct {
	Role       string  `json:"role"`
	Content    Content `json:"content"`
	Model      string  `json:"model"`
	StopReason string  `json:"stopReason,omitempty"`
}

func (r *CreateMessageResult) MarshalJSON() ([]byte, error) {
	c, err := r.Content.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		Role       string          `json:"role"`
		Content    json.RawMessage `json:"content"`
		Model      string          `json:"model"`
		StopReason string          `json:"stopReason,omitempty"`
	}{r.Role, c, r.Model, r.StopReason})
}

func (r *CreateMessageResult) UnmarshalJSON(data []byte) error {
	var wire struct {
		Role       string          `json:"role"`
		Content    json.RawMessage `json:"content"`
		Model      string          `json:"model"`
		StopReason string          `json:"stopReason,omitempty"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	items, err := unmarshalContent(wire.Content)
	if err != nil {
		return err
	}
	if len(items) != 1 {
		return fmt.Errorf("protocol: sampling result content must be a single object, got %d", len(items))
	}
	r.Role = wire.Role
	r.Content = items[0]
	r.Model = wire.Model
	r.StopReason = wire.StopReason
	return nil
}

// ElicitationMode selects whether the server wants in-band form data or is
// directing the user to a URL (SEP-1036). URL mode carries extra client-side
// security obligations; see transport/pathsafety.go and client/handlers.go.
type ElicitationMode string

const (
	ElicitationModeForm ElicitationMode = "form"
	ElicitationModeURL  ElicitationMode = "url"
)

type ElicitParams struct {
	Mode          ElicitationMode `json:"mode,omitempty"`
	Message       string          `json:"message"`
	Schema        json.RawMessage `json:"requestedSchema,omitempty"`
	URL           string          `json:"url,omitempty"`
	ElicitationID string          `json:"elicitationId,omitempty"`
}

// ElicitAction is the user's disposition toward an elicitation request.
type ElicitAction string

const (
	ElicitAccept  ElicitAction = "accept"
	ElicitDecline ElicitAction = "decline"
	ElicitDismiss ElicitAction = "dismiss"
)

type ElicitResult struct {
	Action  ElicitAction    `json:"action"`
	Content json.RawMessage `json:"content,omitempty"`
}

type ElicitationCompleteParams struct {
	ElicitationID string `json:"elicitationId"`
}

// Root is a filesystem or URI root the client exposes to the server.
type Root struct {
	URI  string `json:"uri"`
	Name string `json:"name,omitempty"`
}

type ListRootsResult struct {
	Roots []Root `json:"roots"`
}

type CancelledParams struct {
	RequestID json.RawMessage `json:"requestId"`
	Reason    string          `json:"reason,omitempty"`
}

type ProgressParams struct {
	ProgressToken json.RawMessage `json:"progressToken"`
	Progress      float64         `json:"progress"`
	Total         *float64        `json:"total,omitempty"`
	Message       string          `json:"message,omitempty"`
}

type PingResult struct{}
