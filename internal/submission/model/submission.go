package model

import "time"

// Status is the lifecycle state of a submission.
// Transitions only move forward: PENDING -> RUNNING -> COMPLETED/FAILED.
// RUNNING is advisory and may be skipped entirely.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// IsTerminal reports whether the status admits no further transitions.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// IsValid reports whether s is a known status value.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Verdict is the outcome of evaluating a submission against its tests.
// It is only meaningful once the submission reaches a terminal status.
type Verdict string

const (
	VerdictPassed            Verdict = "PASSED"
	VerdictWrongAnswer       Verdict = "WRONG_ANSWER"
	VerdictRuntimeError      Verdict = "RUNTIME_ERROR"
	VerdictTimeLimitExceeded Verdict = "TIME_LIMIT_EXCEEDED"
)

// IsValid reports whether v is a known verdict value.
func (v Verdict) IsValid() bool {
	switch v {
	case VerdictPassed, VerdictWrongAnswer, VerdictRuntimeError, VerdictTimeLimitExceeded:
		return true
	}
	return false
}

// Submission is a single attempt at a challenge. UserID is the opaque
// subject identifier the identity layer hands over; the service never
// interprets it.
type Submission struct {
	ID          string    `json:"id"`
	ChallengeID int64     `json:"challengeId"`
	UserID      string    `json:"userId"`
	Code        string    `json:"code"`
	Status      Status    `json:"status"`
	Verdict     Verdict   `json:"verdict,omitempty"`
	Output      string    `json:"output,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}
