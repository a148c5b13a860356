package protocol

import (
	"reflect"
	"testing"
)

func TestExpandResourceTemplate(t *testing.T) {
	got, err := ExpandResourceTemplate("file:///{path}", map[string]string{"path": "a/b.txt"})
	if err != nil {
		t.Fatalf("ExpandResourceTemplate() error = %v", err)
	}
	if want := "file:///a%2Fb.txt"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestExpandResourceTemplate_MultipleVariables(t *testing.T) {
	got, err := ExpandResourceTemplate("repo://{owner}/{repo}/issues/{id}", map[string]string{
		"owner": "acme",
		"repo":  "widgets",
		"id":    "42",
	})
	if err != nil {
		t.Fatalf("ExpandResourceTemplate() error = %v", err)
	}
	if want := "repo://acme/widgets/issues/42"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestExpandResourceTemplate_InvalidTemplate(t *testing.T) {
	if _, err := ExpandResourceTemplate("{unterminated", nil); err == nil {
		t.Fatal("expected an error for a malformed template")
	}
}

func TestTemplateVariables(t *testing.T) {
	got, err := TemplateVariables("repo://{owner}/{repo}/issues/{id}{?owner}")
	if err != nil {
		t.Fatalf("TemplateVariables() error = %v", err)
	}
	want := []string{"owner", "repo", "id"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestTemplateVariables_NoVariables(t *testing.T) {
	got, err := TemplateVariables("file:///static/path")
	if err != nil {
		t.Fatalf("TemplateVariables() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %v, want empty", got)
	}
}
