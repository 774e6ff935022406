package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"codequest/internal/common/mq"
	"codequest/internal/submission/model"
	"codequest/internal/submission/repository"
	appErr "codequest/pkg/errors"
	"codequest/pkg/utils/logger"

	"go.uber.org/zap"
)

// VerdictConsumer applies worker verdict reports to the submission
// store. Delivery is at-least-once, so every handler path must be safe
// to replay: duplicates are logged and swallowed, never failed.
type VerdictConsumer struct {
	submissionRepo repository.SubmissionRepository
	dbTimeout      time.Duration
}

// NewVerdictConsumer creates a verdict consumer.
func NewVerdictConsumer(submissionRepo repository.SubmissionRepository, dbTimeout time.Duration) (*VerdictConsumer, error) {
	if submissionRepo == nil {
		return nil, errors.New("submission repository is required")
	}
	return &VerdictConsumer{
		submissionRepo: submissionRepo,
		dbTimeout:      dbTimeout,
	}, nil
}

// Handler returns the handler to register on the verdict topic.
func (c *VerdictConsumer) Handler() mq.HandlerFunc {
	return func(ctx context.Context, message *mq.Message) error {
		return c.HandleVerdictMessage(ctx, message)
	}
}

// HandleVerdictMessage decodes and applies one verdict report.
// Returning an error requeues the message, so only transient failures
// (database errors) propagate; malformed payloads are dropped after
// logging since redelivery cannot fix them.
func (c *VerdictConsumer) HandleVerdictMessage(ctx context.Context, message *mq.Message) error {
	if message == nil || len(message.Body) == 0 {
		logger.Warn(ctx, "empty verdict message dropped")
		return nil
	}

	var report model.VerdictReport
	if err := json.Unmarshal(message.Body, &report); err != nil {
		logger.Error(ctx, "malformed verdict report dropped",
			zap.String("message_id", message.ID),
			zap.Error(err))
		return nil
	}
	if err := report.Validate(); err != nil {
		logger.Error(ctx, "invalid verdict report dropped",
			zap.String("message_id", message.ID),
			zap.String("submission_id", report.SubmissionID),
			zap.Error(appErr.Wrap(err, appErr.InvalidVerdictReport)))
		return nil
	}

	ctxDB := withTimeout(ctx, c.dbTimeout)
	defer ctxDB.cancel()

	if report.Status == model.StatusRunning {
		if err := c.submissionRepo.MarkRunning(ctxDB.ctx, report.SubmissionID); err != nil {
			return appErr.Wrapf(err, appErr.DatabaseError, "mark submission running failed")
		}
		return nil
	}

	applied, err := c.submissionRepo.CompleteTerminal(ctxDB.ctx, report.SubmissionID, report.Status, report.Verdict, report.Output)
	if err != nil {
		return appErr.Wrapf(err, appErr.DatabaseError, "complete submission failed")
	}
	if !applied {
		logger.Info(ctx, "duplicate verdict report ignored",
			zap.String("submission_id", report.SubmissionID),
			zap.String("status", string(report.Status)),
			zap.String("verdict", string(report.Verdict)),
			zap.Int("code", int(appErr.DuplicateResult)))
		return nil
	}

	logger.Info(ctx, "submission settled",
		zap.String("submission_id", report.SubmissionID),
		zap.String("status", string(report.Status)),
		zap.String("verdict", string(report.Verdict)))
	return nil
}
