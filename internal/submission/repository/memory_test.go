package repository_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"codequest/internal/submission/model"
	"codequest/internal/submission/repository"
)

func TestInMemoryListOrdering(t *testing.T) {
	t.Parallel()

	repo := repository.NewInMemorySubmissionRepository()
	base := time.Now()
	for i, id := range []string{"old", "mid", "new"} {
		err := repo.Create(context.Background(), nil, &model.Submission{
			ID:          id,
			ChallengeID: 42,
			UserID:      "user-7",
			Code:        "x",
			CreatedAt:   base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("create %s failed: %v", id, err)
		}
	}
	// Different user, must not appear.
	_ = repo.Create(context.Background(), nil, &model.Submission{
		ID: "other", ChallengeID: 42, UserID: "user-8", Code: "x", CreatedAt: base,
	})

	submissions, err := repo.ListByChallengeAndUser(context.Background(), 42, "user-7")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(submissions) != 3 {
		t.Fatalf("expected 3 submissions, got %d", len(submissions))
	}
	for i, want := range []string{"new", "mid", "old"} {
		if submissions[i].ID != want {
			t.Fatalf("position %d: expected %s, got %s", i, want, submissions[i].ID)
		}
	}
}

func TestInMemoryCompleteTerminalAppliesOnce(t *testing.T) {
	t.Parallel()

	repo := repository.NewInMemorySubmissionRepository()
	err := repo.Create(context.Background(), nil, &model.Submission{
		ID: "sub-1", ChallengeID: 42, UserID: "user-7", Code: "x",
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	const writers = 16
	var wg sync.WaitGroup
	applied := make([]bool, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, err := repo.CompleteTerminal(context.Background(), "sub-1", model.StatusCompleted, model.VerdictPassed, "done")
			if err != nil {
				t.Errorf("writer %d failed: %v", i, err)
				return
			}
			applied[i] = ok
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, ok := range applied {
		if ok {
			wins++
		}
	}
	if wins != 1 {
		t.Fatalf("exactly one terminal write must apply, got %d", wins)
	}
}

func TestInMemoryCompleteTerminalRejectsNonTerminal(t *testing.T) {
	t.Parallel()

	repo := repository.NewInMemorySubmissionRepository()
	if _, err := repo.CompleteTerminal(context.Background(), "sub-1", model.StatusRunning, "", ""); err == nil {
		t.Fatalf("non-terminal status must be rejected")
	}
}

func TestInMemoryMarkRunningOnlyFromPending(t *testing.T) {
	t.Parallel()

	repo := repository.NewInMemorySubmissionRepository()
	_ = repo.Create(context.Background(), nil, &model.Submission{
		ID: "sub-1", ChallengeID: 42, UserID: "user-7", Code: "x",
	})

	if _, err := repo.CompleteTerminal(context.Background(), "sub-1", model.StatusFailed, "", "oom"); err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	if err := repo.MarkRunning(context.Background(), "sub-1"); err != nil {
		t.Fatalf("mark running failed: %v", err)
	}
	submission, err := repo.GetByID(context.Background(), "sub-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if submission.Status != model.StatusFailed {
		t.Fatalf("terminal status must not regress, got %s", submission.Status)
	}
}
