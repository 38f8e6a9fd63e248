package planner

import (
	"context"
	"errors"
	"strings"
	"testing"
)

// fakeLLM returns scripted responses in order, recording prompts.
type fakeLLM struct {
	responses []string
	err       error
	prompts   []string
}

func (f *fakeLLM) Complete(_ context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	if len(f.responses) == 0 {
		return "", nil
	}
	response := f.responses[0]
	f.responses = f.responses[1:]
	return response, nil
}

func (f *fakeLLM) CompleteJSON(ctx context.Context, prompt string) (string, error) {
	return f.Complete(ctx, prompt)
}

func TestKeywords(t *testing.T) {
	llm := &fakeLLM{responses: []string{`Convex Hull, "C library", geometry`}}
	p := New(llm, nil)

	keywords, err := p.Keywords(context.Background(), "a convex hull library in C", "")
	if err != nil {
		t.Fatalf("Keywords() error = %v", err)
	}
	want := []string{"convex hull", "c library", "geometry"}
	if len(keywords) != len(want) {
		t.Fatalf("Keywords() = %v, want %v", keywords, want)
	}
	for i := range want {
		if keywords[i] != want[i] {
			t.Errorf("keyword[%d] = %q, want %q", i, keywords[i], want[i])
		}
	}
}

func TestKeywordsCapped(t *testing.T) {
	llm := &fakeLLM{responses: []string{"one, two, three, four, five"}}
	p := New(llm, nil)

	keywords, err := p.Keywords(context.Background(), "req", "")
	if err != nil {
		t.Fatalf("Keywords() error = %v", err)
	}
	if len(keywords) != maxKeywords {
		t.Errorf("Keywords() returned %d keywords, want capped at %d", len(keywords), maxKeywords)
	}
}

func TestKeywordsDeduplicated(t *testing.T) {
	llm := &fakeLLM{responses: []string{"sorting, Sorting, quicksort"}}
	p := New(llm, nil)

	keywords, err := p.Keywords(context.Background(), "req", "")
	if err != nil {
		t.Fatalf("Keywords() error = %v", err)
	}
	if len(keywords) != 2 {
		t.Errorf("Keywords() = %v, want duplicates collapsed", keywords)
	}
}

func TestKeywordsHintInPrompt(t *testing.T) {
	llm := &fakeLLM{responses: []string{"a, b"}}
	p := New(llm, nil)

	hint := "previous candidates were GPU-only"
	if _, err := p.Keywords(context.Background(), "req", hint); err != nil {
		t.Fatalf("Keywords() error = %v", err)
	}
	if len(llm.prompts) != 1 || !strings.Contains(llm.prompts[0], hint) {
		t.Errorf("replan hint %q missing from prompt", hint)
	}
}

func TestKeywordsTransportError(t *testing.T) {
	llm := &fakeLLM{err: errors.New("connection refused")}
	p := New(llm, nil)

	if _, err := p.Keywords(context.Background(), "req", ""); !errors.Is(err, ErrPlanning) {
		t.Errorf("Keywords() error = %v, want ErrPlanning", err)
	}
}

func TestKeywordsUnusableOutput(t *testing.T) {
	llm := &fakeLLM{responses: []string{"", ""}}
	p := New(llm, nil)

	_, err := p.Keywords(context.Background(), "req", "")
	if !errors.Is(err, ErrPlanning) {
		t.Fatalf("Keywords() error = %v, want ErrPlanning", err)
	}
	if len(llm.prompts) != outputAttempts {
		t.Errorf("model called %d times, want %d re-prompts", len(llm.prompts), outputAttempts)
	}
}

func TestQueryText(t *testing.T) {
	llm := &fakeLLM{responses: []string{"  A fast convex hull library for CPUs.\n"}}
	p := New(llm, nil)

	text, err := p.QueryText(context.Background(), "req")
	if err != nil {
		t.Fatalf("QueryText() error = %v", err)
	}
	if text != "A fast convex hull library for CPUs." {
		t.Errorf("QueryText() = %q, want trimmed text", text)
	}
}

func TestQueryTextEmpty(t *testing.T) {
	llm := &fakeLLM{responses: []string{"   "}}
	p := New(llm, nil)

	if _, err := p.QueryText(context.Background(), "req"); !errors.Is(err, ErrPlanning) {
		t.Errorf("QueryText() error = %v, want ErrPlanning", err)
	}
}
