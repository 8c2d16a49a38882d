package fingerprint

import (
	"encoding/json"
	"testing"
)

func raw(items ...string) []json.RawMessage {
	out := make([]json.RawMessage, len(items))
	for i, s := range items {
		out[i] = json.RawMessage(s)
	}
	return out
}

func TestOfDeterministic(t *testing.T) {
	elements := raw(`{"id":"a","type":"rectangle"}`, `{"id":"b","type":"arrow"}`)
	first := Of(elements)
	second := Of(elements)
	if first != second {
		t.Fatalf("Expected identical fingerprints, got %s and %s", first, second)
	}
	if len(first) != 8 {
		t.Errorf("Expected 8 hex digits, got %q", first)
	}
}

func TestOfOrderSensitive(t *testing.T) {
	a := Of(raw(`{"id":"a"}`, `{"id":"b"}`))
	b := Of(raw(`{"id":"b"}`, `{"id":"a"}`))
	if a == b {
		t.Errorf("Expected reordering to change fingerprint, both %s", a)
	}
}

func TestOfDetectsMutation(t *testing.T) {
	before := Of(raw(`{"id":"a","x":10}`))
	after := Of(raw(`{"id":"a","x":11}`))
	if before == after {
		t.Errorf("Expected mutation to change fingerprint, both %s", before)
	}
}

func TestOfIgnoresWhitespace(t *testing.T) {
	compact := Of(raw(`{"id":"a","x":10}`))
	spaced := Of(raw("{ \"id\": \"a\",\n  \"x\": 10 }"))
	if compact != spaced {
		t.Errorf("Expected whitespace to be ignored, got %s and %s", compact, spaced)
	}
}

func TestOfEmpty(t *testing.T) {
	if Of(nil) != Of([]json.RawMessage{}) {
		t.Error("Expected nil and empty element lists to match")
	}
	if Of(nil) == Of(raw(`{"id":"a"}`)) {
		t.Error("Expected empty and non-empty lists to differ")
	}
}

func TestSum32KnownValue(t *testing.T) {
	// FNV-1a 32 of "[]".
	if got := Sum32(nil); got != 0x741638a5 {
		t.Errorf("Sum32(nil) = %#x, want 0x741638a5", got)
	}
}
