package protocol

import (
	"testing"

	"github.com/modelcontext/runtime/internal/json"
)

func marshalContent(t *testing.T, c Content) json.RawMessage {
	t.Helper()
	raw, err := c.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON() error = %v", err)
	}
	return raw
}

func TestContent_TextRoundTrip(t *testing.T) {
	want := &TextContent{Text: "hello", Annotations: &Annotations{Audience: []string{"user"}}}
	raw := marshalContent(t, want)

	got, err := unmarshalContent(raw)
	if err != nil {
		t.Fatalf("unmarshalContent() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d items, want 1", len(got))
	}
	tc, ok := got[0].(*TextContent)
	if !ok {
		t.Fatalf("type = %T, want *TextContent", got[0])
	}
	if tc.Text != want.Text {
		t.Errorf("Text = %q, want %q", tc.Text, want.Text)
	}
	if len(tc.Annotations.Audience) != 1 || tc.Annotations.Audience[0] != "user" {
		t.Errorf("Annotations = %+v", tc.Annotations)
	}
}

func TestContent_ImageAndAudioRoundTrip(t *testing.T) {
	img := &ImageContent{Data: "base64data", MimeType: "image/png"}
	raw := marshalContent(t, img)
	got, err := unmarshalContent(raw)
	if err != nil {
		t.Fatalf("unmarshalContent() error = %v", err)
	}
	gotImg, ok := got[0].(*ImageContent)
	if !ok || gotImg.Data != img.Data || gotImg.MimeType != img.MimeType {
		t.Errorf("got = %+v, want %+v", got[0], img)
	}

	audio := &AudioContent{Data: "audiodata", MimeType: "audio/wav"}
	raw = marshalContent(t, audio)
	got, err = unmarshalContent(raw)
	if err != nil {
		t.Fatalf("unmarshalContent() error = %v", err)
	}
	gotAudio, ok := got[0].(*AudioContent)
	if !ok || gotAudio.Data != audio.Data {
		t.Errorf("got = %+v, want %+v", got[0], audio)
	}
}

func TestContent_ResourceLinkAndEmbeddedResourceRoundTrip(t *testing.T) {
	link := &ResourceLink{URI: "file:///a", Name: "a", MimeType: "text/plain"}
	raw := marshalContent(t, link)
	got, err := unmarshalContent(raw)
	if err != nil {
		t.Fatalf("unmarshalContent() error = %v", err)
	}
	gotLink, ok := got[0].(*ResourceLink)
	if !ok || gotLink.URI != link.URI {
		t.Errorf("got = %+v, want %+v", got[0], link)
	}

	embedded := &EmbeddedResource{Resource: &ResourceContents{URI: "file:///b", Text: "body"}}
	raw = marshalContent(t, embedded)
	got, err = unmarshalContent(raw)
	if err != nil {
		t.Fatalf("unmarshalContent() error = %v", err)
	}
	gotEmbedded, ok := got[0].(*EmbeddedResource)
	if !ok || gotEmbedded.Resource == nil || gotEmbedded.Resource.URI != "file:///b" {
		t.Errorf("got = %+v", got[0])
	}
}

func TestContent_UnmarshalArrayOfMixedTypes(t *testing.T) {
	raw := json.RawMessage(`[{"type":"text","text":"hi"},{"type":"image","data":"d","mimeType":"image/png"}]`)
	got, err := unmarshalContent(raw)
	if err != nil {
		t.Fatalf("unmarshalContent() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d items, want 2", len(got))
	}
	if _, ok := got[0].(*TextContent); !ok {
		t.Errorf("got[0] type = %T", got[0])
	}
	if _, ok := got[1].(*ImageContent); !ok {
		t.Errorf("got[1] type = %T", got[1])
	}
}

func TestContent_UnrecognizedTypeErrors(t *testing.T) {
	raw := json.RawMessage(`{"type":"made_up"}`)
	if _, err := unmarshalContent(raw); err == nil {
		t.Fatal("expected an error for an unrecognized content type")
	}
}

func TestContent_UnmarshalEmptyIsNil(t *testing.T) {
	got, err := unmarshalContent(nil)
	if err != nil {
		t.Fatalf("unmarshalContent(nil) error = %v", err)
	}
	if got != nil {
		t.Errorf("got = %+v, want nil", got)
	}
}

func TestCallToolResult_MarshalUnmarshalRoundTrip(t *testing.T) {
	want := &CallToolResult{
		Content: []Content{&TextContent{Text: "ok"}},
		IsError: true,
	}
	raw, err := want.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON() error = %v", err)
	}
	var got CallToolResult
	if err := got.UnmarshalJSON(raw); err != nil {
		t.Fatalf("UnmarshalJSON() error = %v", err)
	}
	if got.IsError != want.IsError || len(got.Content) != 1 {
		t.Fatalf("got = %+v", got)
	}
	if tc, ok := got.Content[0].(*TextContent); !ok || tc.Text != "ok" {
		t.Errorf("Content[0] = %+v", got.Content[0])
	}
}
