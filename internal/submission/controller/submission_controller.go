package controller

import (
	"strconv"
	"strings"
	"time"

	"codequest/internal/submission/model"
	"codequest/internal/submission/service"
	appErr "codequest/pkg/errors"
	"codequest/pkg/utils/contextkey"
	"codequest/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// SubmissionController handles submission HTTP endpoints.
type SubmissionController struct {
	submitService *service.SubmitService
}

// NewSubmissionController creates a new SubmissionController.
func NewSubmissionController(submitService *service.SubmitService) *SubmissionController {
	return &SubmissionController{submitService: submitService}
}

// callerID returns the authenticated subject the identity layer handed
// over. The gateway validates the token and forwards the subject in
// X-User-Id; the trace middleware moves it into the request context.
// The client payload is never consulted.
func callerID(c *gin.Context) string {
	if userID, ok := c.Request.Context().Value(contextkey.UserID).(string); ok {
		if userID = strings.TrimSpace(userID); userID != "" {
			return userID
		}
	}
	return strings.TrimSpace(c.GetHeader("X-User-Id"))
}

// Create handles POST /challenges/:id/submissions.
func (h *SubmissionController) Create(c *gin.Context) {
	challengeID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || challengeID <= 0 {
		response.BadRequest(c, "Invalid challenge id")
		return
	}

	userID := callerID(c)
	if userID == "" {
		response.Error(c, appErr.New(appErr.Unauthorized).WithMessage("missing caller identity"))
		return
	}

	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}

	submission, err := h.submitService.Submit(c.Request.Context(), service.SubmitInput{
		ChallengeID:    challengeID,
		UserID:         userID,
		Code:           req.Code,
		IdempotencyKey: strings.TrimSpace(c.GetHeader("Idempotency-Key")),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, toSubmissionResponse(submission))
}

// Get handles GET /submissions/:id.
func (h *SubmissionController) Get(c *gin.Context) {
	submissionID := c.Param("id")
	if submissionID == "" {
		response.BadRequest(c, "Invalid submission id")
		return
	}
	submission, err := h.submitService.GetSubmission(c.Request.Context(), submissionID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, toSubmissionResponse(submission))
}

// List handles GET /challenges/:id/submissions. The caller only ever
// lists their own submissions, so the user comes from the identity
// handoff, not the query string. Clients poll this endpoint until no
// submission is still in flight.
func (h *SubmissionController) List(c *gin.Context) {
	challengeID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || challengeID <= 0 {
		response.BadRequest(c, "Invalid challenge id")
		return
	}
	userID := callerID(c)
	if userID == "" {
		response.Error(c, appErr.New(appErr.Unauthorized).WithMessage("missing caller identity"))
		return
	}

	submissions, err := h.submitService.ListSubmissions(c.Request.Context(), challengeID, userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]SubmissionResponse, 0, len(submissions))
	for _, submission := range submissions {
		items = append(items, toSubmissionResponse(submission))
	}
	response.Success(c, ListResponse{Items: items})
}

// SubmitRequest defines the submission payload.
type SubmitRequest struct {
	Code string `json:"code" binding:"required"`
}

// SubmissionResponse is the wire form of a submission.
type SubmissionResponse struct {
	ID          string `json:"id"`
	ChallengeID int64  `json:"challenge_id"`
	UserID      string `json:"user_id"`
	Status      string `json:"status"`
	Verdict     string `json:"verdict,omitempty"`
	Output      string `json:"output,omitempty"`
	CreatedAt   string `json:"created_at"`
}

// ListResponse wraps a submission listing.
type ListResponse struct {
	Items []SubmissionResponse `json:"items"`
}

func toSubmissionResponse(submission *model.Submission) SubmissionResponse {
	return SubmissionResponse{
		ID:          submission.ID,
		ChallengeID: submission.ChallengeID,
		UserID:      submission.UserID,
		Status:      string(submission.Status),
		Verdict:     string(submission.Verdict),
		Output:      submission.Output,
		CreatedAt:   submission.CreatedAt.UTC().Format(time.RFC3339),
	}
}
