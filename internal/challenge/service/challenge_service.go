package service

import (
	"context"
	"errors"
	"time"

	"codequest/internal/challenge/model"
	"codequest/internal/challenge/repository"
	appErr "codequest/pkg/errors"
)

// ChallengeService exposes read access to the challenge catalog.
type ChallengeService struct {
	repo      repository.ChallengeRepository
	dbTimeout time.Duration
}

// NewChallengeService creates a new challenge service.
func NewChallengeService(repo repository.ChallengeRepository, dbTimeout time.Duration) (*ChallengeService, error) {
	if repo == nil {
		return nil, errors.New("challenge repository is required")
	}
	return &ChallengeService{repo: repo, dbTimeout: dbTimeout}, nil
}

// GetChallenge returns one challenge by id.
func (s *ChallengeService) GetChallenge(ctx context.Context, challengeID int64) (*model.Challenge, error) {
	if challengeID <= 0 {
		return nil, appErr.ValidationError("challenge_id", "required")
	}
	ctxDB, cancel := s.withTimeout(ctx)
	defer cancel()
	challenge, err := s.repo.GetByID(ctxDB, challengeID)
	if err != nil {
		if errors.Is(err, repository.ErrChallengeNotFound) {
			return nil, appErr.New(appErr.ChallengeNotFound).WithMessage("challenge not found")
		}
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "get challenge failed")
	}
	return challenge, nil
}

// ListChallenges returns a page of challenges, newest first.
func (s *ChallengeService) ListChallenges(ctx context.Context, limit, offset int) ([]*model.Challenge, error) {
	ctxDB, cancel := s.withTimeout(ctx)
	defer cancel()
	challenges, err := s.repo.List(ctxDB, limit, offset)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "list challenges failed")
	}
	return challenges, nil
}

func (s *ChallengeService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.dbTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.dbTimeout)
}
