package repository

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"codequest/internal/common/db"
	"codequest/internal/submission/model"
)

// InMemorySubmissionRepository keeps submissions in process memory.
// It mirrors the MySQL repository's semantics, including the
// at-most-once terminal write, and backs tests and local development.
type InMemorySubmissionRepository struct {
	mu          sync.RWMutex
	submissions map[string]*model.Submission
}

// NewInMemorySubmissionRepository creates an empty in-memory repository.
func NewInMemorySubmissionRepository() *InMemorySubmissionRepository {
	return &InMemorySubmissionRepository{
		submissions: make(map[string]*model.Submission),
	}
}

func (r *InMemorySubmissionRepository) Create(_ context.Context, _ db.Transaction, submission *model.Submission) error {
	if submission == nil {
		return errors.New("submission is nil")
	}
	if submission.ID == "" {
		return errors.New("submission id is required")
	}
	if submission.Status == "" {
		submission.Status = model.StatusPending
	}
	if submission.CreatedAt.IsZero() {
		submission.CreatedAt = time.Now()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.submissions[submission.ID]; exists {
		return errors.New("submission already exists")
	}
	clone := *submission
	r.submissions[submission.ID] = &clone
	return nil
}

func (r *InMemorySubmissionRepository) GetByID(_ context.Context, submissionID string) (*model.Submission, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	submission, ok := r.submissions[submissionID]
	if !ok {
		return nil, ErrSubmissionNotFound
	}
	clone := *submission
	return &clone, nil
}

func (r *InMemorySubmissionRepository) ListByChallengeAndUser(_ context.Context, challengeID int64, userID string) ([]*model.Submission, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*model.Submission
	for _, submission := range r.submissions {
		if submission.ChallengeID == challengeID && submission.UserID == userID {
			clone := *submission
			result = append(result, &clone)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID > result[j].ID
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (r *InMemorySubmissionRepository) MarkRunning(_ context.Context, submissionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	submission, ok := r.submissions[submissionID]
	if !ok {
		return nil
	}
	if submission.Status == model.StatusPending {
		submission.Status = model.StatusRunning
	}
	return nil
}

func (r *InMemorySubmissionRepository) CompleteTerminal(_ context.Context, submissionID string, status model.Status, verdict model.Verdict, output string) (bool, error) {
	if !status.IsTerminal() {
		return false, errors.New("status must be terminal")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	submission, ok := r.submissions[submissionID]
	if !ok {
		return false, nil
	}
	if submission.Status.IsTerminal() {
		return false, nil
	}
	submission.Status = status
	submission.Verdict = verdict
	submission.Output = output
	return true, nil
}
