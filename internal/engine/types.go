package engine

import (
	"encoding/json"
	"fmt"
)

// APIError is returned when the engine responds with a non-2xx status.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("engine API error (status %d): %s", e.StatusCode, e.Body)
}

// ID is an engine resource identifier. The engine is inconsistent about
// representation: workflow ids arrive as JSON strings, execution ids as
// JSON numbers. Both decode into the canonical string form.
type ID string

// UnmarshalJSON accepts either a JSON string or a JSON number.
func (i *ID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*i = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("engine id is neither string nor number: %s", data)
	}
	*i = ID(n.String())
	return nil
}

// String returns the canonical string form.
func (i ID) String() string { return string(i) }

// ExecutionSummary is one entry of the engine's execution list. The engine
// returns these most-recent-first.
type ExecutionSummary struct {
	ID        ID     `json:"id"`
	Status    string `json:"status,omitempty"`
	StartedAt string `json:"startedAt,omitempty"`
	StoppedAt string `json:"stoppedAt,omitempty"`
}

// ExecutionList is the engine's response to a list-executions call.
type ExecutionList struct {
	Data []ExecutionSummary `json:"data"`
}

// createdResource captures the id field shared by workflow and credential
// creation responses.
type createdResource struct {
	ID ID `json:"id"`
}
