package llmjudge

import (
	"context"
	"testing"
)

type stubAdapter struct {
	response string
	err      error
}

func (s stubAdapter) Complete(_ context.Context, _ string) (string, error) {
	return s.response, s.err
}

type extractTarget struct {
	Decision string   `json:"decision"`
	Tags     []string `json:"tags"`
}

func TestExtract_PlainJSON(t *testing.T) {
	out, err := Extract[extractTarget](context.Background(), stubAdapter{response: `{"decision":"skip","tags":["a","b"]}`}, "prompt")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if out.Decision != "skip" || len(out.Tags) != 2 {
		t.Errorf("unexpected result: %+v", out)
	}
}

func TestExtract_StripsMarkdownFence(t *testing.T) {
	fenced := "```json\n{\"decision\":\"update\",\"tags\":[]}\n```"
	out, err := Extract[extractTarget](context.Background(), stubAdapter{response: fenced}, "prompt")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if out.Decision != "update" {
		t.Errorf("expected decision update, got %q", out.Decision)
	}
}

func TestExtract_MalformedJSONIsTransient(t *testing.T) {
	_, err := Extract[extractTarget](context.Background(), stubAdapter{response: "not json at all"}, "prompt")
	if err == nil {
		t.Fatal("expected decode error")
	}
}

func TestExtract_AdapterErrorPropagates(t *testing.T) {
	wantErr := NewNoneAdapter()
	_, err := Extract[extractTarget](context.Background(), wantErr, "prompt")
	if err == nil {
		t.Fatal("expected error from disabled adapter")
	}
}
