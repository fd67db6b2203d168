package agents

import "testing"

func TestExtractJSONDirect(t *testing.T) {
	got, ok := ExtractJSON(`{"priority":"URGENT"}`)
	if !ok {
		t.Fatalf("expected direct parse to succeed")
	}
	if got != `{"priority":"URGENT"}` {
		t.Fatalf("unexpected payload %q", got)
	}
}

func TestExtractJSONFencedJSONBlock(t *testing.T) {
	text := "Here is the result:\n```json\n{\"priority\": \"LATER\"}\n```\nLet me know."
	got, ok := ExtractJSON(text)
	if !ok {
		t.Fatalf("expected fenced block to be extracted")
	}
	if got != `{"priority": "LATER"}` {
		t.Fatalf("unexpected payload %q", got)
	}
}

func TestExtractJSONPlainFence(t *testing.T) {
	text := "```\n{\"a\": 1}\n```"
	got, ok := ExtractJSON(text)
	if !ok || got != `{"a": 1}` {
		t.Fatalf("unexpected result %q ok=%v", got, ok)
	}
}

func TestExtractJSONBraceSubstring(t *testing.T) {
	text := `Sure! The decision is {"priority":"IGNORE","rationale":"noise"} as requested.`
	got, ok := ExtractJSON(text)
	if !ok {
		t.Fatalf("expected brace substring extraction")
	}
	if got != `{"priority":"IGNORE","rationale":"noise"}` {
		t.Fatalf("unexpected payload %q", got)
	}
}

func TestExtractJSONPrefersFenceOverOuterBraces(t *testing.T) {
	text := "prefix {not json\n```json\n{\"x\": true}\n```\nsuffix}"
	got, ok := ExtractJSON(text)
	if !ok || got != `{"x": true}` {
		t.Fatalf("unexpected result %q ok=%v", got, ok)
	}
}

func TestExtractJSONInvalid(t *testing.T) {
	for _, text := range []string{"", "no json here", "{broken", "```\nnot json\n```"} {
		if _, ok := ExtractJSON(text); ok {
			t.Fatalf("expected failure for %q", text)
		}
	}
}
