package protocol

import (
	"fmt"

	"github.com/modelcontext/runtime/internal/json"
)

// Content is carried inside tool results, prompt messages, and sampling
// messages. It is a closed sum over the five content shapes the protocol
// defines; unmarshalContent rejects any other "type" value.
type Content interface {
	MarshalJSON() ([]byte, error)
	fromWire(*wireContent)
}

// Annotations give hints about intended audience and priority; servers may
// omit them and clients must treat an absent value as "unspecified", not
// "lowest".
type Annotations struct {
	Audience []string `json:"audience,omitempty"`
	Priority *float64 `json:"priority,omitempty"`
}

type TextContent struct {
	Text        string
	Annotations *Annotations
}

func (c *TextContent) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireContent{
		Type:        "text",
		Text:        c.Text,
		Annotations: c.Annotations,
	})
}

func (c *TextContent) fromWire(w *wireContent) {
	c.Text = w.Text
	c.Annotations = w.Annotations
}

type ImageContent struct {
	Data        string // base64-encoded
	MimeType    string
	Annotations *Annotations
}

func (c *ImageContent) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireContent{
		Type:        "image",
		Data:        c.Data,
		MimeType:    c.MimeType,
		Annotations: c.Annotations,
	})
}

func (c *ImageContent) fromWire(w *wireContent) {
	c.Data = w.Data
	c.MimeType = w.MimeType
	c.Annotations = w.Annotations
}

type AudioContent struct {
	Data        string
	MimeType    string
	Annotations *Annotations
}

func (c *AudioContent) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireContent{
		Type:        "audio",
		Data:        c.Data,
		MimeType:    c.MimeType,
		Annotations: c.Annotations,
	})
}

func (c *AudioContent) fromWire(w *wireContent) {
	c.Data = w.Data
	c.MimeType = w.MimeType
	c.Annotations = w.Annotations
}

// ResourceLink is a pointer to a resource the server expects the client to
// dereference with resources/read if it wants the content.
type ResourceLink struct {
	URI         string
	Name        string
	Description string
	MimeType    string
	Annotations *Annotations
}

func (c *ResourceLink) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireContent{
		Type:        "resource_link",
		URI:         c.URI,
		Name:        c.Name,
		Description: c.Description,
		MimeType:    c.MimeType,
		Annotations: c.Annotations,
	})
}

func (c *ResourceLink) fromWire(w *wireContent) {
	c.URI = w.URI
	c.Name = w.Name
	c.Description = w.Description
	c.MimeType = w.MimeType
	c.Annotations = w.Annotations
}

// EmbeddedResource inlines a resource's contents directly, rather than
// linking to it.
type EmbeddedResource struct {
	Resource    *ResourceContents
	Annotations *Annotations
}

func (c *EmbeddedResource) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireContent{
		Type:        "resource",
		Resource:    c.Resource,
		Annotations: c.Annotations,
	})
}

func (c *EmbeddedResource) fromWire(w *wireContent) {
	c.Resource = w.Resource
	c.Annotations = w.Annotations
}

// wireContent is the discriminated-union wire shape for all Content
// variants; Type selects which fields are meaningful.
type wireContent struct {
	Type        string            `json:"type"`
	Text        string            `json:"text,omitempty"`
	MimeType    string            `json:"mimeType,omitempty"`
	Data        string            `json:"data,omitempty"`
	URI         string            `json:"uri,omitempty"`
	Name        string            `json:"name,omitempty"`
	Description string            `json:"description,omitempty"`
	Resource    *ResourceContents `json:"resource,omitempty"`
	Annotations *Annotations      `json:"annotations,omitempty"`
}

// unmarshalContent decodes JSON that is either one content object or an
// array of them, always returning a slice.
func unmarshalContent(raw json.RawMessage) ([]Content, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var wires []*wireContent
	if err := json.Unmarshal(raw, &wires); err == nil {
		return contentsFromWire(wires)
	}
	var wire wireContent
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, err
	}
	c, err := contentFromWire(&wire)
	if err != nil {
		return nil, err
	}
	return []Content{c}, nil
}

func contentsFromWire(wires []*wireContent) ([]Content, error) {
	out := make([]Content, 0, len(wires))
	for _, w := range wires {
		c, err := contentFromWire(w)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func contentFromWire(w *wireContent) (Content, error) {
	if w == nil {
		return nil, fmt.Errorf("protocol: nil content")
	}
	switch w.Type {
	case "text":
		v := new(TextContent)
		v.fromWire(w)
		return v, nil
	case "image":
		v := new(ImageContent)
		v.fromWire(w)
		return v, nil
	case "audio":
		v := new(AudioContent)
		v.fromWire(w)
		return v, nil
	case "resource_link":
		v := new(ResourceLink)
		v.fromWire(w)
		return v, nil
	case "resource":
		v := new(EmbeddedResource)
		v.fromWire(w)
		return v, nil
	default:
		return nil, fmt.Errorf("protocol: unrecognized content type %q", w.Type)
	}
}

// MarshalContentList encodes a Content slice to a JSON array, the shape
// tool results and prompt/sampling messages carry it in.
func MarshalContentList(items []Content) (json.RawMessage, error) {
	if items == nil {
		return json.RawMessage("[]"), nil
	}
	out := make([]json.RawMessage, len(items))
	for i, c := range items {
		b, err := c.MarshalJSON()
		if err != nil {
			return nil, err
		}
		out[i] = b
	}
	return json.Marshal(out)
}

// UnmarshalContentList is the inverse of MarshalContentList, also accepting
// a single bare object for leniency toward older servers.
func UnmarshalContentList(raw json.RawMessage) ([]Content, error) {
	return unmarshalContent(raw)
}
