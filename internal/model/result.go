package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Status is the terminal state recorded for a WorkItem.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Outcome is either Success or Failure.
type Outcome interface {
	Status() Status
}

// Success carries the validated provider payload.
type Success struct {
	Payload json.RawMessage
	Tokens  int
}

func (Success) Status() Status { return StatusSucceeded }

// Failure carries the reason the last attempt failed.
type Failure struct {
	Reason   string
	Attempts int
}

func (Failure) Status() Status { return StatusFailed }

// Result is the terminal record of one WorkItem, keyed by its identity key.
type Result struct {
	Key         string
	Outcome     Outcome
	CompletedAt time.Time
}

// Succeeded reports whether the result holds a Success.
func (r Result) Succeeded() bool {
	_, ok := r.Outcome.(Success)
	return ok
}

// Payload returns the success payload, or nil for failures.
func (r Result) Payload() json.RawMessage {
	if s, ok := r.Outcome.(Success); ok {
		return s.Payload
	}
	return nil
}

type resultJSON struct {
	Key         string          `json:"key"`
	Status      Status          `json:"status"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Tokens      int             `json:"tokens,omitempty"`
	Error       string          `json:"error,omitempty"`
	Attempts    int             `json:"attempts,omitempty"`
	CompletedAt time.Time       `json:"completed_at"`
}

// MarshalJSON encodes the outcome with an explicit status tag.
func (r Result) MarshalJSON() ([]byte, error) {
	out := resultJSON{Key: r.Key, CompletedAt: r.CompletedAt}
	switch o := r.Outcome.(type) {
	case Success:
		out.Status = StatusSucceeded
		out.Payload = o.Payload
		out.Tokens = o.Tokens
	case Failure:
		out.Status = StatusFailed
		out.Error = o.Reason
		out.Attempts = o.Attempts
	default:
		return nil, fmt.Errorf("result %q: missing outcome", r.Key)
	}
	return json.Marshal(out)
}

// UnmarshalJSON validates the status tag and the payload of successes.
func (r *Result) UnmarshalJSON(data []byte) error {
	var in resultJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	switch in.Status {
	case StatusSucceeded:
		if len(in.Payload) == 0 || !json.Valid(in.Payload) {
			return fmt.Errorf("result %q: succeeded without a JSON payload", in.Key)
		}
		r.Outcome = Success{Payload: in.Payload, Tokens: in.Tokens}
	case StatusFailed:
		r.Outcome = Failure{Reason: in.Error, Attempts: in.Attempts}
	case "":
		return errors.New("result: missing status")
	default:
		return fmt.Errorf("result %q: unknown status %q", in.Key, in.Status)
	}
	r.Key = in.Key
	r.CompletedAt = in.CompletedAt
	return nil
}
