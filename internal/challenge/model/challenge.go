package model

import (
	"encoding/json"
	"time"
)

// TestCase is a single input/output pair a submission is judged
// against. The field names are the wire contract with the execution
// workers, which read `input` and `output` from each case.
type TestCase struct {
	Input  json.RawMessage `json:"input"`
	Output json.RawMessage `json:"output"`
}

// Challenge is a coding problem users submit solutions to.
// Tests are stored as a JSON column and shipped verbatim inside jobs.
type Challenge struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Template    string     `json:"template,omitempty"`
	Tests       []TestCase `json:"tests"`
	Difficulty  string     `json:"difficulty,omitempty"`
	AuthorID    int64      `json:"authorId,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// TestsJSON returns the tests serialized for queue payloads and storage.
func (c *Challenge) TestsJSON() (json.RawMessage, error) {
	return json.Marshal(c.Tests)
}
