package model

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestResult_DecodeRejectsUnknownStatus(t *testing.T) {
	var r Result
	err := json.Unmarshal([]byte(`{"key":"a","status":"pending"}`), &r)
	if err == nil {
		t.Fatal("expected error for unknown status")
	}
	if !strings.Contains(err.Error(), "pending") {
		t.Errorf("error = %v, want mention of the bad status", err)
	}
}

func TestResult_DecodeRejectsSuccessWithoutPayload(t *testing.T) {
	var r Result
	if err := json.Unmarshal([]byte(`{"key":"a","status":"succeeded"}`), &r); err == nil {
		t.Fatal("expected error for success without payload")
	}
}

func TestResult_FailureKeepsReasonAndAttempts(t *testing.T) {
	in := Result{
		Key:         "Acme_Designer",
		Outcome:     Failure{Reason: "HTTP 500", Attempts: 3},
		CompletedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(data), `"status":"failed"`) {
		t.Errorf("encoded = %s, want failed status tag", data)
	}

	var out Result
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	f, ok := out.Outcome.(Failure)
	if !ok {
		t.Fatalf("outcome = %T, want Failure", out.Outcome)
	}
	if f.Reason != "HTTP 500" || f.Attempts != 3 {
		t.Errorf("failure = %+v", f)
	}
	if out.Succeeded() {
		t.Error("Succeeded() = true for a failure")
	}
}

func TestResult_MarshalWithoutOutcomeFails(t *testing.T) {
	if _, err := json.Marshal(Result{Key: "x"}); err == nil {
		t.Fatal("expected error when outcome is nil")
	}
}

func TestRunReport_Tally(t *testing.T) {
	r := RunReport{Succeeded: 6, Failed: 1, Skipped: 4}
	if got := r.Tally(); got != "6 success / 1 failure / 7 total" {
		t.Errorf("Tally() = %q", got)
	}
}

func TestJob_PostedAtFormats(t *testing.T) {
	cases := map[string]bool{
		"2025-11-03T10:00:00Z": true,
		"2025-11-03T10:00:00":  true,
		"2025-11-03":           true,
		"last week":            false,
		"":                     false,
	}
	for in, want := range cases {
		got := Job{DateCreation: in}.PostedAt() != nil
		if got != want {
			t.Errorf("PostedAt(%q) parsed = %v, want %v", in, got, want)
		}
	}
}
