package documents

import (
	"strings"
	"testing"
	"time"
)

func TestNewRequestRejectsEmptyInput(t *testing.T) {
	_, err := NewRequest("   ", "", []DocumentType{TypeReadme})
	if err == nil {
		t.Fatal("expected validation error for empty input text")
	}
	verr, ok := err.(*ValidationError)
	if !ok {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	if verr.Field != "input_text" {
		t.Errorf("expected field input_text, got %s", verr.Field)
	}
}

func TestNewRequestRejectsOversizedInput(t *testing.T) {
	_, err := NewRequest(strings.Repeat("a", MaxInputLength+1), "", []DocumentType{TypeReadme})
	if err == nil {
		t.Fatal("expected validation error for oversized input")
	}
}

func TestNewRequestCountsCharactersNotBytes(t *testing.T) {
	// Multi-byte runes: exactly MaxInputLength characters must pass even
	// though the byte length is three times the cap.
	input := strings.Repeat("日", MaxInputLength)
	if _, err := NewRequest(input, "", []DocumentType{TypeReadme}); err != nil {
		t.Fatalf("input at the character cap should be accepted: %v", err)
	}
	if _, err := NewRequest(input+"日", "", []DocumentType{TypeReadme}); err == nil {
		t.Fatal("expected validation error one character past the cap")
	}
}

func TestNewRequestRejectsEmptyTypeSet(t *testing.T) {
	_, err := NewRequest("a task tracker for small teams", "", nil)
	if err == nil {
		t.Fatal("expected validation error for empty type set")
	}
}

func TestNewRequestRejectsUnknownType(t *testing.T) {
	// One unknown type rejects the whole request; no partial dispatch.
	_, err := NewRequest("a task tracker", "", []DocumentType{TypeReadme, DocumentType("pitch_deck")})
	if err == nil {
		t.Fatal("expected validation error for unknown type")
	}
}

func TestNewRequestCollapsesDuplicates(t *testing.T) {
	req, err := NewRequest("a task tracker", "tracker", []DocumentType{
		TypeReadme, TypePRD, TypeReadme, TypePRD, TypeWhatIsThis,
	})
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}

	want := []DocumentType{TypeReadme, TypePRD, TypeWhatIsThis}
	if len(req.Types) != len(want) {
		t.Fatalf("expected %d distinct types, got %d", len(want), len(req.Types))
	}
	for i, typ := range want {
		if req.Types[i] != typ {
			t.Errorf("position %d: expected %s, got %s", i, typ, req.Types[i])
		}
	}
	if req.ID.String() == "00000000-0000-0000-0000-000000000000" {
		t.Error("request ID not assigned")
	}
}

func TestComputeOverall(t *testing.T) {
	ok := DocumentOutcome{Status: StatusSucceeded}
	failed := DocumentOutcome{Status: StatusFailed}
	timedOut := DocumentOutcome{Status: StatusTimedOut}

	cases := []struct {
		name     string
		outcomes []DocumentOutcome
		want     OverallStatus
	}{
		{"all succeeded", []DocumentOutcome{ok, ok, ok}, AllSucceeded},
		{"single success", []DocumentOutcome{ok}, AllSucceeded},
		{"all failed", []DocumentOutcome{failed, failed}, AllFailed},
		{"all timed out", []DocumentOutcome{timedOut, timedOut}, AllFailed},
		{"mixed success and failure", []DocumentOutcome{ok, failed}, PartialSuccess},
		{"mixed success and timeout", []DocumentOutcome{ok, timedOut, ok}, PartialSuccess},
		{"failure and timeout only", []DocumentOutcome{failed, timedOut}, AllFailed},
	}

	for _, tc := range cases {
		if got := ComputeOverall(tc.outcomes); got != tc.want {
			t.Errorf("%s: expected %s, got %s", tc.name, tc.want, got)
		}
	}
}

func TestRequestIsStamped(t *testing.T) {
	before := time.Now()
	req, err := NewRequest("a task tracker", "", []DocumentType{TypePRD})
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}
	if req.AcceptedAt.Before(before) {
		t.Error("AcceptedAt should be set at acceptance time")
	}
}
