package repository

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"codequest/internal/challenge/model"
	"codequest/internal/common/cache"
	"codequest/internal/common/db"
)

const (
	defaultChallengeCacheTTL      = 30 * time.Minute
	defaultChallengeCacheEmptyTTL = 5 * time.Minute
	challengeCacheKeyPrefix       = "challenge:"
)

var ErrChallengeNotFound = errors.New("challenge not found")

// ChallengeRepository defines challenge read access.
type ChallengeRepository interface {
	GetByID(ctx context.Context, challengeID int64) (*model.Challenge, error)
	List(ctx context.Context, limit, offset int) ([]*model.Challenge, error)
}

// MySQLChallengeRepository implements ChallengeRepository with MySQL,
// fronted by a cache-aside layer with null caching.
type MySQLChallengeRepository struct {
	db       db.Database
	cache    cache.Cache
	ttl      time.Duration
	emptyTTL time.Duration
}

// NewChallengeRepository creates a challenge repository with default TTLs.
func NewChallengeRepository(database db.Database, cacheClient cache.Cache) ChallengeRepository {
	return NewChallengeRepositoryWithTTL(database, cacheClient, defaultChallengeCacheTTL, defaultChallengeCacheEmptyTTL)
}

// NewChallengeRepositoryWithTTL creates a challenge repository with custom TTLs.
func NewChallengeRepositoryWithTTL(database db.Database, cacheClient cache.Cache, ttl, emptyTTL time.Duration) ChallengeRepository {
	if ttl <= 0 {
		ttl = defaultChallengeCacheTTL
	}
	if emptyTTL <= 0 {
		emptyTTL = defaultChallengeCacheEmptyTTL
	}
	return &MySQLChallengeRepository{
		db:       database,
		cache:    cacheClient,
		ttl:      ttl,
		emptyTTL: emptyTTL,
	}
}

const challengeColumns = "id, title, description, template, tests, difficulty, author_id, created_at"

// GetByID retrieves a challenge by id. Missing challenges are cached as
// null values so hot misses do not hammer the database.
func (r *MySQLChallengeRepository) GetByID(ctx context.Context, challengeID int64) (*model.Challenge, error) {
	if challengeID <= 0 {
		return nil, errors.New("challengeID is required")
	}
	if r.cache != nil {
		challenge, err := cache.GetWithCached[*model.Challenge](
			ctx,
			r.cache,
			challengeCacheKey(challengeID),
			r.ttl,
			r.emptyTTL,
			func(c *model.Challenge) bool { return c == nil },
			marshalChallenge,
			unmarshalChallenge,
			func(ctx context.Context) (*model.Challenge, error) {
				challenge, err := r.getByIDFromDB(ctx, challengeID)
				if err != nil {
					if errors.Is(err, ErrChallengeNotFound) {
						return nil, nil
					}
					return nil, err
				}
				return challenge, nil
			},
		)
		if err != nil {
			return nil, err
		}
		if challenge == nil {
			return nil, ErrChallengeNotFound
		}
		return challenge, nil
	}
	return r.getByIDFromDB(ctx, challengeID)
}

// List returns challenges ordered by creation time, newest first.
func (r *MySQLChallengeRepository) List(ctx context.Context, limit, offset int) ([]*model.Challenge, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	query := "SELECT " + challengeColumns + " FROM challenges ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?"
	rows, err := r.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var challenges []*model.Challenge
	for rows.Next() {
		challenge, err := scanChallenge(rows)
		if err != nil {
			return nil, err
		}
		challenges = append(challenges, challenge)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return challenges, nil
}

func (r *MySQLChallengeRepository) getByIDFromDB(ctx context.Context, challengeID int64) (*model.Challenge, error) {
	query := "SELECT " + challengeColumns + " FROM challenges WHERE id = ? LIMIT 1"
	row := r.db.QueryRow(ctx, query, challengeID)
	challenge, err := scanChallenge(row)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrChallengeNotFound
		}
		return nil, err
	}
	return challenge, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanChallenge(row scanner) (*model.Challenge, error) {
	challenge := &model.Challenge{}
	var template, difficulty *string
	var authorID *int64
	var testsRaw []byte
	if err := row.Scan(
		&challenge.ID,
		&challenge.Title,
		&challenge.Description,
		&template,
		&testsRaw,
		&difficulty,
		&authorID,
		&challenge.CreatedAt,
	); err != nil {
		return nil, err
	}
	if template != nil {
		challenge.Template = *template
	}
	if difficulty != nil {
		challenge.Difficulty = *difficulty
	}
	if authorID != nil {
		challenge.AuthorID = *authorID
	}
	if len(testsRaw) > 0 {
		if err := json.Unmarshal(testsRaw, &challenge.Tests); err != nil {
			return nil, err
		}
	}
	return challenge, nil
}

func challengeCacheKey(challengeID int64) string {
	return challengeCacheKeyPrefix + strconv.FormatInt(challengeID, 10)
}

func marshalChallenge(challenge *model.Challenge) string {
	if challenge == nil {
		return ""
	}
	data, err := json.Marshal(challenge)
	if err != nil {
		return ""
	}
	return string(data)
}

func unmarshalChallenge(data string) (*model.Challenge, error) {
	if data == "" || data == cache.NullCacheValue {
		return nil, nil
	}
	var challenge model.Challenge
	if err := json.Unmarshal([]byte(data), &challenge); err != nil {
		return nil, err
	}
	return &challenge, nil
}
