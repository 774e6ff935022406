package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"codequest/internal/common/cache"
	"codequest/internal/common/db"
	"codequest/internal/submission/model"
)

const (
	defaultSubmissionCacheTTL      = 30 * time.Minute
	defaultSubmissionCacheEmptyTTL = 5 * time.Minute
	submissionCacheKeyPrefix       = "submission:"
)

var ErrSubmissionNotFound = errors.New("submission not found")

// SubmissionRepository defines submission persistence.
type SubmissionRepository interface {
	// Create inserts a new submission row. The caller sets the initial
	// status; new submissions are created PENDING.
	Create(ctx context.Context, tx db.Transaction, submission *model.Submission) error

	// GetByID retrieves a submission by id.
	GetByID(ctx context.Context, submissionID string) (*model.Submission, error)

	// ListByChallengeAndUser returns a user's submissions for a
	// challenge, most recent first.
	ListByChallengeAndUser(ctx context.Context, challengeID int64, userID string) ([]*model.Submission, error)

	// MarkRunning advances a PENDING submission to RUNNING. It is a
	// no-op when the submission has already moved past PENDING.
	MarkRunning(ctx context.Context, submissionID string) error

	// CompleteTerminal records the terminal status, verdict and output
	// for a submission. The write only lands if the submission is not
	// already terminal; applied reports whether this call won.
	CompleteTerminal(ctx context.Context, submissionID string, status model.Status, verdict model.Verdict, output string) (applied bool, err error)
}

// MySQLSubmissionRepository implements SubmissionRepository with MySQL.
type MySQLSubmissionRepository struct {
	db       db.Database
	cache    cache.Cache
	ttl      time.Duration
	emptyTTL time.Duration
}

// NewSubmissionRepository creates a submission repository with defaults.
func NewSubmissionRepository(database db.Database, cacheClient cache.Cache) SubmissionRepository {
	return NewSubmissionRepositoryWithTTL(database, cacheClient, defaultSubmissionCacheTTL, defaultSubmissionCacheEmptyTTL)
}

// NewSubmissionRepositoryWithTTL creates a submission repository with custom TTLs.
func NewSubmissionRepositoryWithTTL(database db.Database, cacheClient cache.Cache, ttl, emptyTTL time.Duration) SubmissionRepository {
	if ttl <= 0 {
		ttl = defaultSubmissionCacheTTL
	}
	if emptyTTL <= 0 {
		emptyTTL = defaultSubmissionCacheEmptyTTL
	}
	return &MySQLSubmissionRepository{
		db:       database,
		cache:    cacheClient,
		ttl:      ttl,
		emptyTTL: emptyTTL,
	}
}

const submissionColumns = "id, challenge_id, user_id, code, status, verdict, output, created_at"

// Create inserts a submission row.
func (r *MySQLSubmissionRepository) Create(ctx context.Context, tx db.Transaction, submission *model.Submission) error {
	if submission == nil {
		return errors.New("submission is nil")
	}
	if submission.ID == "" {
		return errors.New("submission id is required")
	}
	if submission.ChallengeID <= 0 {
		return errors.New("challengeID is required")
	}
	if submission.UserID == "" {
		return errors.New("userID is required")
	}
	if submission.Code == "" {
		return errors.New("code is required")
	}
	if submission.Status == "" {
		submission.Status = model.StatusPending
	}

	query := `
		INSERT INTO submissions
		(id, challenge_id, user_id, code, status)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err := db.GetQuerier(r.db, tx).Exec(
		ctx,
		query,
		submission.ID,
		submission.ChallengeID,
		submission.UserID,
		submission.Code,
		string(submission.Status),
	)
	if err != nil {
		return err
	}
	if r.cache != nil && tx == nil {
		r.setCache(ctx, submission)
	}
	return nil
}

// GetByID retrieves a submission by id through the cache.
func (r *MySQLSubmissionRepository) GetByID(ctx context.Context, submissionID string) (*model.Submission, error) {
	if submissionID == "" {
		return nil, errors.New("submissionID is required")
	}
	if r.cache != nil {
		submission, err := cache.GetWithCached[*model.Submission](
			ctx,
			r.cache,
			submissionCacheKey(submissionID),
			r.ttl,
			r.emptyTTL,
			func(submission *model.Submission) bool { return submission == nil },
			marshalSubmission,
			unmarshalSubmission,
			func(ctx context.Context) (*model.Submission, error) {
				submission, err := r.getByIDFromDB(ctx, submissionID)
				if err != nil {
					if errors.Is(err, ErrSubmissionNotFound) {
						return nil, nil
					}
					return nil, err
				}
				return submission, nil
			},
		)
		if err != nil {
			return nil, err
		}
		if submission == nil {
			return nil, ErrSubmissionNotFound
		}
		return submission, nil
	}
	return r.getByIDFromDB(ctx, submissionID)
}

// ListByChallengeAndUser returns submissions newest-first. The list is
// read straight from the database: it drives status polling, so stale
// cache entries here would delay clients seeing terminal states.
func (r *MySQLSubmissionRepository) ListByChallengeAndUser(ctx context.Context, challengeID int64, userID string) ([]*model.Submission, error) {
	if challengeID <= 0 {
		return nil, errors.New("challengeID is required")
	}
	if userID == "" {
		return nil, errors.New("userID is required")
	}
	query := "SELECT " + submissionColumns + " FROM submissions WHERE challenge_id = ? AND user_id = ? ORDER BY created_at DESC, id DESC"
	rows, err := r.db.Query(ctx, query, challengeID, userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var submissions []*model.Submission
	for rows.Next() {
		submission, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		submissions = append(submissions, submission)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return submissions, nil
}

// MarkRunning advances PENDING to RUNNING. Late RUNNING reports that
// arrive after a terminal write simply match zero rows.
func (r *MySQLSubmissionRepository) MarkRunning(ctx context.Context, submissionID string) error {
	if submissionID == "" {
		return errors.New("submissionID is required")
	}
	query := "UPDATE submissions SET status = ? WHERE id = ? AND status = ?"
	_, err := r.db.Exec(ctx, query, string(model.StatusRunning), submissionID, string(model.StatusPending))
	if err != nil {
		return err
	}
	r.invalidate(ctx, submissionID)
	return nil
}

// CompleteTerminal writes the terminal state exactly once. The guard on
// the current status makes duplicate deliveries lose the race at the
// database rather than in application code.
func (r *MySQLSubmissionRepository) CompleteTerminal(ctx context.Context, submissionID string, status model.Status, verdict model.Verdict, output string) (bool, error) {
	if submissionID == "" {
		return false, errors.New("submissionID is required")
	}
	if !status.IsTerminal() {
		return false, errors.New("status must be terminal")
	}
	query := `
		UPDATE submissions
		SET status = ?, verdict = ?, output = ?
		WHERE id = ? AND status NOT IN (?, ?)
	`
	result, err := r.db.Exec(
		ctx,
		query,
		string(status),
		string(verdict),
		output,
		submissionID,
		string(model.StatusCompleted),
		string(model.StatusFailed),
	)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	r.invalidate(ctx, submissionID)
	return affected > 0, nil
}

func (r *MySQLSubmissionRepository) getByIDFromDB(ctx context.Context, submissionID string) (*model.Submission, error) {
	query := "SELECT " + submissionColumns + " FROM submissions WHERE id = ? LIMIT 1"
	row := r.db.QueryRow(ctx, query, submissionID)
	submission, err := scanSubmission(row)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrSubmissionNotFound
		}
		return nil, err
	}
	return submission, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSubmission(row scanner) (*model.Submission, error) {
	submission := &model.Submission{}
	var verdict, output *string
	if err := row.Scan(
		&submission.ID,
		&submission.ChallengeID,
		&submission.UserID,
		&submission.Code,
		&submission.Status,
		&verdict,
		&output,
		&submission.CreatedAt,
	); err != nil {
		return nil, err
	}
	if verdict != nil {
		submission.Verdict = model.Verdict(*verdict)
	}
	if output != nil {
		submission.Output = *output
	}
	return submission, nil
}

func (r *MySQLSubmissionRepository) setCache(ctx context.Context, submission *model.Submission) {
	if submission == nil || r.cache == nil {
		return
	}
	payload := marshalSubmission(submission)
	if payload == "" {
		return
	}
	_ = r.cache.Set(ctx, submissionCacheKey(submission.ID), payload, cache.JitterTTL(r.ttl))
}

func (r *MySQLSubmissionRepository) invalidate(ctx context.Context, submissionID string) {
	if r.cache == nil {
		return
	}
	_ = r.cache.Del(ctx, submissionCacheKey(submissionID))
}

func submissionCacheKey(submissionID string) string {
	return submissionCacheKeyPrefix + submissionID
}

func marshalSubmission(submission *model.Submission) string {
	if submission == nil {
		return ""
	}
	data, err := json.Marshal(submission)
	if err != nil {
		return ""
	}
	return string(data)
}

func unmarshalSubmission(data string) (*model.Submission, error) {
	if data == "" || data == cache.NullCacheValue {
		return nil, nil
	}
	var submission model.Submission
	if err := json.Unmarshal([]byte(data), &submission); err != nil {
		return nil, err
	}
	return &submission, nil
}
