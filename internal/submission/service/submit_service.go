package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	challengeModel "codequest/internal/challenge/model"
	challengeRepo "codequest/internal/challenge/repository"
	"codequest/internal/common/cache"
	"codequest/internal/common/mq"
	"codequest/internal/submission/model"
	"codequest/internal/submission/repository"
	appErr "codequest/pkg/errors"
	"codequest/pkg/utils/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	idempotencyKeyPrefix = "submit:idempotency:"
	processingMarker     = "processing"
	defaultMaxCodeBytes  = 64 * 1024
)

// TimeoutConfig holds timeout settings for external calls.
type TimeoutConfig struct {
	DB    time.Duration
	Cache time.Duration
	MQ    time.Duration
}

// Config holds submission service dependencies and settings.
type Config struct {
	SubmissionRepo repository.SubmissionRepository
	ChallengeRepo  challengeRepo.ChallengeRepository
	MQ             mq.MessageQueue
	Cache          cache.Cache

	// JobTopic is the durable topic execution jobs are published to.
	JobTopic       string
	MaxCodeBytes   int
	IdempotencyTTL time.Duration
	Timeouts       TimeoutConfig
}

// SubmitService handles submission intake, persistence and dispatch to
// the execution queue.
type SubmitService struct {
	submissionRepo repository.SubmissionRepository
	challengeRepo  challengeRepo.ChallengeRepository
	mq             mq.MessageQueue
	cache          cache.Cache

	jobTopic       string
	maxCodeBytes   int
	idempotencyTTL time.Duration
	timeouts       TimeoutConfig
}

// SubmitInput describes a submission request. UserID is the caller
// identity the transport layer already authenticated; it is never read
// from the request payload.
type SubmitInput struct {
	ChallengeID    int64
	UserID         string
	Code           string
	IdempotencyKey string
}

// NewSubmitService creates a new submission service.
func NewSubmitService(cfg Config) (*SubmitService, error) {
	if cfg.SubmissionRepo == nil {
		return nil, errors.New("submission repository is required")
	}
	if cfg.ChallengeRepo == nil {
		return nil, errors.New("challenge repository is required")
	}
	if cfg.MQ == nil {
		return nil, errors.New("message queue is required")
	}
	if cfg.JobTopic == "" {
		return nil, errors.New("job topic is required")
	}
	if cfg.MaxCodeBytes <= 0 {
		cfg.MaxCodeBytes = defaultMaxCodeBytes
	}
	return &SubmitService{
		submissionRepo: cfg.SubmissionRepo,
		challengeRepo:  cfg.ChallengeRepo,
		mq:             cfg.MQ,
		cache:          cfg.Cache,
		jobTopic:       cfg.JobTopic,
		maxCodeBytes:   cfg.MaxCodeBytes,
		idempotencyTTL: cfg.IdempotencyTTL,
		timeouts:       cfg.Timeouts,
	}, nil
}

// Submit validates the request, records a PENDING submission and
// publishes the execution job. The row is written before the publish:
// if the broker is down the caller gets a service-unavailable error and
// the PENDING row stays behind, visible to status queries and
// recoverable by a later re-enqueue sweep.
func (s *SubmitService) Submit(ctx context.Context, input SubmitInput) (*model.Submission, error) {
	if err := s.validateInput(input); err != nil {
		return nil, err
	}

	acquired, existingID, err := s.acquireIdempotency(ctx, input.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	if !acquired && existingID != "" {
		return s.GetSubmission(ctx, existingID)
	}

	challenge, err := s.lookupChallenge(ctx, input.ChallengeID)
	if err != nil {
		s.releaseIdempotency(ctx, input.IdempotencyKey, acquired)
		return nil, err
	}
	testsJSON, err := challenge.TestsJSON()
	if err != nil {
		s.releaseIdempotency(ctx, input.IdempotencyKey, acquired)
		return nil, appErr.Wrapf(err, appErr.InternalServerError, "encode challenge tests failed")
	}

	submission := &model.Submission{
		ID:          uuid.NewString(),
		ChallengeID: input.ChallengeID,
		UserID:      input.UserID,
		Code:        input.Code,
		Status:      model.StatusPending,
		CreatedAt:   time.Now(),
	}
	if err := s.createSubmission(ctx, submission); err != nil {
		s.releaseIdempotency(ctx, input.IdempotencyKey, acquired)
		return nil, err
	}

	if err := s.publishJob(ctx, submission, testsJSON); err != nil {
		s.releaseIdempotency(ctx, input.IdempotencyKey, acquired)
		return nil, err
	}

	s.finalizeIdempotency(ctx, input.IdempotencyKey, submission.ID, acquired)
	return submission, nil
}

// GetSubmission returns one submission by id.
func (s *SubmitService) GetSubmission(ctx context.Context, submissionID string) (*model.Submission, error) {
	if strings.TrimSpace(submissionID) == "" {
		return nil, appErr.ValidationError("submission_id", "required")
	}
	ctxDB := withTimeout(ctx, s.timeouts.DB)
	defer ctxDB.cancel()
	submission, err := s.submissionRepo.GetByID(ctxDB.ctx, submissionID)
	if err != nil {
		if errors.Is(err, repository.ErrSubmissionNotFound) {
			return nil, appErr.New(appErr.SubmissionNotFound).WithMessage("submission not found")
		}
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "get submission failed")
	}
	return submission, nil
}

// ListSubmissions returns a user's submissions for a challenge, newest
// first. It is the polling surface: clients poll it until no PENDING or
// RUNNING entries remain.
func (s *SubmitService) ListSubmissions(ctx context.Context, challengeID int64, userID string) ([]*model.Submission, error) {
	if challengeID <= 0 {
		return nil, appErr.ValidationError("challenge_id", "required")
	}
	if strings.TrimSpace(userID) == "" {
		return nil, appErr.ValidationError("user_id", "required")
	}
	ctxDB := withTimeout(ctx, s.timeouts.DB)
	defer ctxDB.cancel()
	submissions, err := s.submissionRepo.ListByChallengeAndUser(ctxDB.ctx, challengeID, userID)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "list submissions failed")
	}
	return submissions, nil
}

func (s *SubmitService) validateInput(input SubmitInput) error {
	if input.ChallengeID <= 0 {
		return appErr.ValidationError("challenge_id", "required")
	}
	if strings.TrimSpace(input.UserID) == "" {
		return appErr.ValidationError("user_id", "required")
	}
	if strings.TrimSpace(input.Code) == "" {
		return appErr.ValidationError("code", "required")
	}
	if len([]byte(input.Code)) > s.maxCodeBytes {
		return appErr.New(appErr.CodeTooLarge).WithMessage("code too large")
	}
	return nil
}

func (s *SubmitService) lookupChallenge(ctx context.Context, challengeID int64) (*challengeModel.Challenge, error) {
	ctxDB := withTimeout(ctx, s.timeouts.DB)
	defer ctxDB.cancel()
	challenge, err := s.challengeRepo.GetByID(ctxDB.ctx, challengeID)
	if err != nil {
		if errors.Is(err, challengeRepo.ErrChallengeNotFound) {
			return nil, appErr.New(appErr.ChallengeNotFound).WithMessage("challenge not found")
		}
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "get challenge failed")
	}
	if len(challenge.Tests) == 0 {
		return nil, appErr.New(appErr.ChallengeTestsEmpty).WithMessage("challenge has no tests")
	}
	return challenge, nil
}

const (
	createAttempts   = 3
	createRetryDelay = 100 * time.Millisecond
)

// createSubmission retries transient store failures a few times before
// escalating. The row must land before the job is published, so giving
// up here aborts the whole submit.
func (s *SubmitService) createSubmission(ctx context.Context, submission *model.Submission) error {
	var lastErr error
	for attempt := 1; attempt <= createAttempts; attempt++ {
		ctxDB := withTimeout(ctx, s.timeouts.DB)
		lastErr = s.submissionRepo.Create(ctxDB.ctx, nil, submission)
		ctxDB.cancel()
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			break
		}
		if attempt < createAttempts {
			logger.Warn(ctx, "create submission failed, retrying",
				zap.Int("attempt", attempt),
				zap.Error(lastErr))
			select {
			case <-ctx.Done():
				return appErr.Wrapf(ctx.Err(), appErr.SubmissionCreateFailed, "create submission canceled")
			case <-time.After(createRetryDelay):
			}
		}
	}
	return appErr.Wrapf(lastErr, appErr.ServiceUnavailable, "create submission failed")
}

func (s *SubmitService) publishJob(ctx context.Context, submission *model.Submission, tests json.RawMessage) error {
	payload := model.JobMessage{
		SubmissionID: submission.ID,
		Code:         submission.Code,
		Tests:        tests,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return appErr.Wrapf(err, appErr.InternalServerError, "encode job message failed")
	}
	message := mq.NewMessage(body)
	message.ID = submission.ID

	ctxMQ := withTimeout(ctx, s.timeouts.MQ)
	defer ctxMQ.cancel()
	if err := s.mq.Publish(ctxMQ.ctx, s.jobTopic, message); err != nil {
		if errors.Is(err, mq.ErrBrokerUnavailable) {
			logger.Warn(ctx, "job publish refused, broker down; submission left pending",
				zap.String("submission_id", submission.ID))
			return appErr.Wrapf(err, appErr.ServiceUnavailable, "execution queue is unavailable")
		}
		return appErr.Wrapf(err, appErr.ServiceUnavailable, "publish job failed")
	}
	return nil
}

func (s *SubmitService) acquireIdempotency(ctx context.Context, key string) (bool, string, error) {
	key = strings.TrimSpace(key)
	if key == "" || s.cache == nil {
		return true, "", nil
	}
	cacheKey := idempotencyKeyPrefix + key
	ctxCache := withTimeout(ctx, s.timeouts.Cache)
	defer ctxCache.cancel()

	existing, err := s.cache.Get(ctxCache.ctx, cacheKey)
	if err != nil {
		return false, "", appErr.Wrapf(err, appErr.CacheError, "read idempotency key failed")
	}
	if existing != "" && existing != processingMarker {
		return false, existing, nil
	}

	ttl := s.idempotencyTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	ok, err := s.cache.SetNX(ctxCache.ctx, cacheKey, processingMarker, ttl)
	if err != nil {
		return false, "", appErr.Wrapf(err, appErr.CacheError, "reserve idempotency key failed")
	}
	if ok {
		return true, "", nil
	}
	existing, err = s.cache.Get(ctxCache.ctx, cacheKey)
	if err != nil {
		return false, "", appErr.Wrapf(err, appErr.CacheError, "read idempotency key failed")
	}
	if existing != "" && existing != processingMarker {
		return false, existing, nil
	}
	return false, "", appErr.New(appErr.SubmitInProgress).WithMessage("submission is already processing")
}

func (s *SubmitService) finalizeIdempotency(ctx context.Context, key, submissionID string, acquired bool) {
	key = strings.TrimSpace(key)
	if !acquired || key == "" || s.cache == nil {
		return
	}
	ttl := s.idempotencyTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	ctxCache := withTimeout(ctx, s.timeouts.Cache)
	defer ctxCache.cancel()
	if err := s.cache.Set(ctxCache.ctx, idempotencyKeyPrefix+key, submissionID, ttl); err != nil {
		logger.Warn(ctx, "update idempotency key failed", zap.Error(err))
	}
}

func (s *SubmitService) releaseIdempotency(ctx context.Context, key string, acquired bool) {
	key = strings.TrimSpace(key)
	if !acquired || key == "" || s.cache == nil {
		return
	}
	ctxCache := withTimeout(ctx, s.timeouts.Cache)
	defer ctxCache.cancel()
	if err := s.cache.Del(ctxCache.ctx, idempotencyKeyPrefix+key); err != nil {
		logger.Warn(ctx, "release idempotency key failed", zap.Error(err))
	}
}

type timeoutCtx struct {
	ctx    context.Context
	cancel context.CancelFunc
}

func withTimeout(ctx context.Context, timeout time.Duration) timeoutCtx {
	if timeout <= 0 {
		return timeoutCtx{ctx: ctx, cancel: func() {}}
	}
	ctxTimeout, cancel := context.WithTimeout(ctx, timeout)
	return timeoutCtx{ctx: ctxTimeout, cancel: cancel}
}
