package model

import (
	"encoding/json"
	"fmt"
)

// JobMessage is the queue payload handed to execution workers.
// It is self-contained: workers never call back into the API to
// fetch code or tests.
type JobMessage struct {
	SubmissionID string          `json:"submissionId"`
	Code         string          `json:"code"`
	Tests        json.RawMessage `json:"tests"`
}

// Validate checks that the job carries everything a worker needs.
func (m *JobMessage) Validate() error {
	if m.SubmissionID == "" {
		return fmt.Errorf("submissionId is required")
	}
	if m.Code == "" {
		return fmt.Errorf("code is required")
	}
	if len(m.Tests) == 0 {
		return fmt.Errorf("tests are required")
	}
	return nil
}

// VerdictReport is the payload workers publish when a submission has
// been evaluated, or when they want to flag it as in progress.
type VerdictReport struct {
	SubmissionID string  `json:"submissionId"`
	Status       Status  `json:"status"`
	Verdict      Verdict `json:"verdict,omitempty"`
	Output       string  `json:"output,omitempty"`
}

// Validate checks report consistency. Terminal reports must carry a
// verdict for COMPLETED; advisory RUNNING reports carry neither
// verdict nor output requirements.
func (r *VerdictReport) Validate() error {
	if r.SubmissionID == "" {
		return fmt.Errorf("submissionId is required")
	}
	if !r.Status.IsValid() {
		return fmt.Errorf("unknown status %q", r.Status)
	}
	switch r.Status {
	case StatusPending:
		return fmt.Errorf("reports cannot move a submission back to PENDING")
	case StatusCompleted:
		if !r.Verdict.IsValid() {
			return fmt.Errorf("completed report requires a valid verdict, got %q", r.Verdict)
		}
	case StatusFailed:
		if r.Verdict != "" && !r.Verdict.IsValid() {
			return fmt.Errorf("unknown verdict %q", r.Verdict)
		}
	}
	return nil
}
