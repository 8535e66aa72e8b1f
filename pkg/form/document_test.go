package form

import "testing"

func TestMemoryDocumentWriteAndLookup(t *testing.T) {
	doc := NewMemoryDocument()
	doc.AddField("a", "Field A")

	if !doc.Lookup("a") {
		t.Fatalf("expected field a to exist")
	}
	if doc.Lookup("b") {
		t.Fatalf("unexpected field b")
	}
	if doc.Write("b", "x") {
		t.Fatalf("write to unknown field must fail")
	}
	if !doc.Write("a", "hello") {
		t.Fatalf("write to known field must succeed")
	}
	if v, ok := doc.Value("a"); !ok || v != "hello" {
		t.Fatalf("Value(a) = %q, %v", v, ok)
	}
}

func TestMemoryDocumentListeners(t *testing.T) {
	doc := NewMemoryDocument()
	doc.AddField("a", "")

	var gotID FieldID
	var gotValue string
	doc.AddListener(func(id FieldID, value string) {
		gotID = id
		gotValue = value
	})

	doc.Write("a", "v1")
	if gotID != "a" || gotValue != "v1" {
		t.Fatalf("listener not fired: %q %q", gotID, gotValue)
	}
}

func TestMemoryDocumentLabelFallback(t *testing.T) {
	doc := NewMemoryDocument()
	doc.AddField("a", "Field A")
	doc.AddField("raw-id", "")

	if got := doc.Label("a"); got != "Field A" {
		t.Fatalf("Label(a) = %q", got)
	}
	if got := doc.Label("raw-id"); got != "raw-id" {
		t.Fatalf("Label(raw-id) = %q", got)
	}
}

func TestMemoryDocumentHighlight(t *testing.T) {
	doc := NewMemoryDocument()
	doc.AddField("a", "")
	doc.AddField("b", "")

	doc.Highlight("a")
	doc.Highlight("b")
	if got := doc.Highlighted(); got != "b" {
		t.Fatalf("Highlighted = %q, want b", got)
	}
	doc.ClearHighlight()
	if got := doc.Highlighted(); got != "" {
		t.Fatalf("Highlighted after clear = %q", got)
	}
}
