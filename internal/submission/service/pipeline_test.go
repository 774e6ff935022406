package service_test

import (
	"context"
	"testing"

	"codequest/internal/common/mq"
	"codequest/internal/submission/model"
	"codequest/internal/submission/repository"
	"codequest/internal/submission/service"
	appErr "codequest/pkg/errors"
)

// Exercises the whole pipeline in-process: intake writes the row and
// publishes the job, a simulated worker report settles it, and a
// replayed report changes nothing.
func TestSubmissionLifecycle(t *testing.T) {
	t.Parallel()

	repo := repository.NewInMemorySubmissionRepository()
	queue := &fakeQueue{}
	svc := newService(t, repo, queue, nil)
	consumer := newConsumer(t, repo)

	submission, err := svc.Submit(context.Background(), service.SubmitInput{
		ChallengeID: 42,
		UserID:      "user-7",
		Code:        "def solution(): return 1",
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if submission.Status != model.StatusPending {
		t.Fatalf("expected PENDING after submit, got %s", submission.Status)
	}
	if len(queue.messages()) != 1 {
		t.Fatalf("expected 1 job on the queue, got %d", len(queue.messages()))
	}

	report := verdictMessage(t, model.VerdictReport{
		SubmissionID: submission.ID,
		Status:       model.StatusCompleted,
		Verdict:      model.VerdictPassed,
		Output:       "2/2 tests passed",
	})
	if err := consumer.HandleVerdictMessage(context.Background(), report); err != nil {
		t.Fatalf("handle verdict failed: %v", err)
	}

	settled, err := svc.GetSubmission(context.Background(), submission.ID)
	if err != nil {
		t.Fatalf("get submission failed: %v", err)
	}
	if settled.Status != model.StatusCompleted || settled.Verdict != model.VerdictPassed {
		t.Fatalf("expected COMPLETED/PASSED, got %s/%s", settled.Status, settled.Verdict)
	}
	if settled.Output != "2/2 tests passed" {
		t.Fatalf("unexpected output: %q", settled.Output)
	}

	// Broker redelivery of the same report must be invisible.
	replay := verdictMessage(t, model.VerdictReport{
		SubmissionID: submission.ID,
		Status:       model.StatusCompleted,
		Verdict:      model.VerdictPassed,
		Output:       "2/2 tests passed",
	})
	if err := consumer.HandleVerdictMessage(context.Background(), replay); err != nil {
		t.Fatalf("replayed report must not error: %v", err)
	}
	after, _ := svc.GetSubmission(context.Background(), submission.ID)
	if *after != *settled {
		t.Fatalf("replay changed the row: %+v vs %+v", after, settled)
	}

	// No PENDING entries remain, so a polling client would stop here.
	submissions, err := svc.ListSubmissions(context.Background(), 42, "user-7")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	for _, s := range submissions {
		if s.Status == model.StatusPending || s.Status == model.StatusRunning {
			t.Fatalf("expected all submissions settled, found %s", s.Status)
		}
	}
}

// Broker drops, submit fails, broker returns, the retried submit gets
// a fresh submission id while the orphan stays visible.
func TestSubmitRecoversAfterBrokerOutage(t *testing.T) {
	t.Parallel()

	repo := repository.NewInMemorySubmissionRepository()
	queue := &fakeQueue{publishErr: mq.ErrBrokerUnavailable}
	svc := newService(t, repo, queue, nil)

	input := service.SubmitInput{
		ChallengeID: 42,
		UserID:      "user-7",
		Code:        "def solution(): return 1",
	}
	if _, err := svc.Submit(context.Background(), input); appErr.GetCode(err) != appErr.ServiceUnavailable {
		t.Fatalf("expected ServiceUnavailable during outage, got %v", err)
	}

	queue.mu.Lock()
	queue.publishErr = nil
	queue.mu.Unlock()

	retried, err := svc.Submit(context.Background(), input)
	if err != nil {
		t.Fatalf("submit after recovery failed: %v", err)
	}

	submissions, err := repo.ListByChallengeAndUser(context.Background(), 42, "user-7")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(submissions) != 2 {
		t.Fatalf("expected orphan plus retried row, got %d", len(submissions))
	}
	if submissions[0].ID == submissions[1].ID {
		t.Fatalf("retried submit must get a distinct id")
	}
	if retried.ID != submissions[0].ID && retried.ID != submissions[1].ID {
		t.Fatalf("retried submission missing from the list")
	}
}
