// SPDX-License-Identifier: Apache-2.0

package domain

import (
	"encoding/json"
	"testing"
)

func TestNormalizeDocumentObject(t *testing.T) {
	doc := NormalizeDocument(json.RawMessage(`{"level":"high"}`))
	if doc["level"] != "high" {
		t.Fatalf("expected level=high, got %v", doc)
	}
}

func TestNormalizeDocumentEncodedString(t *testing.T) {
	// A string column writer stored the object as encoded text.
	doc := NormalizeDocument(json.RawMessage(`"{\"level\":\"high\"}"`))
	if doc["level"] != "high" {
		t.Fatalf("expected level=high from encoded string, got %v", doc)
	}
}

func TestNormalizeDocumentPlainString(t *testing.T) {
	doc := NormalizeDocument(json.RawMessage(`"high"`))
	if doc["_raw"] != "high" {
		t.Fatalf("expected _raw=high, got %v", doc)
	}
}

func TestNormalizeDocumentEmpty(t *testing.T) {
	if doc := NormalizeDocument(nil); len(doc) != 0 {
		t.Fatalf("expected empty document, got %v", doc)
	}
	if doc := NormalizeDocument(json.RawMessage(`null`)); len(doc) != 0 {
		t.Fatalf("expected empty document for null, got %v", doc)
	}
}

func TestToFloat(t *testing.T) {
	if got := ToFloat("0,75", 0); got != 0.75 {
		t.Fatalf("expected comma decimal to parse, got %v", got)
	}
	if got := ToFloat(true, 0); got != 1.0 {
		t.Fatalf("expected bool true -> 1.0, got %v", got)
	}
	if got := ToFloat(struct{}{}, 0.3); got != 0.3 {
		t.Fatalf("expected fallback, got %v", got)
	}
}

func TestNormalizeConfidence(t *testing.T) {
	if got := NormalizeConfidence(85); got != 0.85 {
		t.Fatalf("expected percentage scaling, got %v", got)
	}
	if got := NormalizeConfidence(0.4); got != 0.4 {
		t.Fatalf("expected passthrough, got %v", got)
	}
	if got := NormalizeConfidence(-2); got != 0.0 {
		t.Fatalf("expected clamp to 0, got %v", got)
	}
}

func TestModuleResultValidate(t *testing.T) {
	r := ModuleResult{
		Module:      "m",
		Version:     "1.0.0",
		Kind:        KindScore,
		Status:      StatusOK,
		Subject:     "user",
		PatternType: "preference",
		Key:         "explain_level",
	}
	if err := r.Validate(); err != nil {
		t.Fatalf("expected valid result, got %v", err)
	}

	r.Subject = "  "
	if err := r.Validate(); err != ErrInvalidResult {
		t.Fatalf("expected ErrInvalidResult for blank subject, got %v", err)
	}

	r.Subject = "user"
	r.Kind = "bogus"
	if err := r.Validate(); err != ErrInvalidResult {
		t.Fatalf("expected ErrInvalidResult for bad kind, got %v", err)
	}
}
