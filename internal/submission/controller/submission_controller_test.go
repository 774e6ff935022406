package controller_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	challengeModel "codequest/internal/challenge/model"
	challengeRepo "codequest/internal/challenge/repository"
	"codequest/internal/common/http/middleware"
	"codequest/internal/common/mq"
	"codequest/internal/submission/controller"
	"codequest/internal/submission/model"
	"codequest/internal/submission/repository"
	"codequest/internal/submission/service"

	"github.com/gin-gonic/gin"
)

type staticChallengeRepo struct {
	challenge *challengeModel.Challenge
}

func (s *staticChallengeRepo) GetByID(_ context.Context, challengeID int64) (*challengeModel.Challenge, error) {
	if s.challenge != nil && s.challenge.ID == challengeID {
		return s.challenge, nil
	}
	return nil, challengeRepo.ErrChallengeNotFound
}

func (s *staticChallengeRepo) List(context.Context, int, int) ([]*challengeModel.Challenge, error) {
	return []*challengeModel.Challenge{s.challenge}, nil
}

type dropQueue struct{ err error }

func (d *dropQueue) Publish(context.Context, string, *mq.Message) error { return d.err }
func (d *dropQueue) Subscribe(context.Context, string, mq.HandlerFunc) error {
	return nil
}
func (d *dropQueue) SubscribeWithOptions(context.Context, string, mq.HandlerFunc, *mq.SubscribeOptions) error {
	return nil
}
func (d *dropQueue) Start() error               { return nil }
func (d *dropQueue) Stop() error                { return nil }
func (d *dropQueue) Ping(context.Context) error { return nil }
func (d *dropQueue) Close() error               { return nil }

type apiEnvelope struct {
	Code int             `json:"code"`
	Data json.RawMessage `json:"data"`
}

func newRouter(t *testing.T, repo repository.SubmissionRepository, queue mq.MessageQueue) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	svc, err := service.NewSubmitService(service.Config{
		SubmissionRepo: repo,
		ChallengeRepo: &staticChallengeRepo{challenge: &challengeModel.Challenge{
			ID:    42,
			Title: "two sum",
			Tests: []challengeModel.TestCase{
				{Input: json.RawMessage(`[1]`), Output: json.RawMessage(`1`)},
			},
		}},
		MQ:       queue,
		JobTopic: "submissions",
	})
	if err != nil {
		t.Fatalf("new submit service failed: %v", err)
	}

	router := gin.New()
	router.Use(middleware.TraceContextMiddleware())
	ctl := controller.NewSubmissionController(svc)
	router.POST("/api/v1/challenges/:id/submissions", ctl.Create)
	router.GET("/api/v1/challenges/:id/submissions", ctl.List)
	router.GET("/api/v1/submissions/:id", ctl.Get)
	return router
}

func postSubmission(router *gin.Engine, path, userID, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("X-User-Id", userID)
	}
	router.ServeHTTP(rec, req)
	return rec
}

func TestCreateSubmissionEndpoint(t *testing.T) {
	repo := repository.NewInMemorySubmissionRepository()
	router := newRouter(t, repo, &dropQueue{})

	rec := postSubmission(router, "/api/v1/challenges/42/submissions", "user-7",
		`{"code":"def solution(): return 1"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var env apiEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope failed: %v", err)
	}
	var resp controller.SubmissionResponse
	if err := json.Unmarshal(env.Data, &resp); err != nil {
		t.Fatalf("decode submission failed: %v", err)
	}
	if resp.Status != string(model.StatusPending) {
		t.Fatalf("expected PENDING, got %s", resp.Status)
	}
	if resp.ID == "" {
		t.Fatalf("expected submission id")
	}
	if resp.UserID != "user-7" {
		t.Fatalf("expected submission owned by header identity, got %q", resp.UserID)
	}

	// The accepted submission is visible to the polling surface.
	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/challenges/42/submissions", nil)
	req.Header.Set("X-User-Id", "user-7")
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var list struct {
		Data controller.ListResponse `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list failed: %v", err)
	}
	if len(list.Data.Items) != 1 || list.Data.Items[0].ID != resp.ID {
		t.Fatalf("expected the created submission in the list, got %+v", list.Data.Items)
	}
}

func TestSubmissionIdentityComesFromHeader(t *testing.T) {
	repo := repository.NewInMemorySubmissionRepository()
	router := newRouter(t, repo, &dropQueue{})

	// A user_id smuggled into the payload is ignored; the identity
	// handoff is the only source of the caller.
	rec := postSubmission(router, "/api/v1/challenges/42/submissions", "user-7",
		`{"user_id":"someone-else","code":"def solution(): return 1"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	submissions, err := repo.ListByChallengeAndUser(context.Background(), 42, "user-7")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(submissions) != 1 {
		t.Fatalf("expected the submission owned by the header identity, got %d rows", len(submissions))
	}
	if rows, _ := repo.ListByChallengeAndUser(context.Background(), 42, "someone-else"); len(rows) != 0 {
		t.Fatalf("payload identity must never own submissions, got %d rows", len(rows))
	}
}

func TestSubmissionEndpointsRequireIdentity(t *testing.T) {
	repo := repository.NewInMemorySubmissionRepository()
	router := newRouter(t, repo, &dropQueue{})

	rec := postSubmission(router, "/api/v1/challenges/42/submissions", "",
		`{"code":"def solution(): return 1"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without identity header, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/challenges/42/submissions", nil)
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 listing without identity header, got %d", rec.Code)
	}
}

func TestCreateSubmissionBrokerDownReturns503(t *testing.T) {
	repo := repository.NewInMemorySubmissionRepository()
	router := newRouter(t, repo, &dropQueue{err: mq.ErrBrokerUnavailable})

	rec := postSubmission(router, "/api/v1/challenges/42/submissions", "user-7",
		`{"code":"def solution(): return 1"}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d: %s", rec.Code, rec.Body.String())
	}

	// The orphan PENDING row is still listed.
	submissions, err := repo.ListByChallengeAndUser(context.Background(), 42, "user-7")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(submissions) != 1 || submissions[0].Status != model.StatusPending {
		t.Fatalf("expected one PENDING orphan, got %+v", submissions)
	}
}

func TestGetSubmissionEndpoints(t *testing.T) {
	repo := repository.NewInMemorySubmissionRepository()
	router := newRouter(t, repo, &dropQueue{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/submissions/ghost", nil)
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown submission, got %d", rec.Code)
	}

	rec = postSubmission(router, "/api/v1/challenges/999/submissions", "user-7", `{"code":"x"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown challenge, got %d", rec.Code)
	}

	rec = postSubmission(router, "/api/v1/challenges/42/submissions", "user-7", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing code, got %d", rec.Code)
	}
}
