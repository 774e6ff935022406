package controller

import (
	"strconv"
	"time"

	"codequest/internal/challenge/model"
	"codequest/internal/challenge/service"
	"codequest/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// ChallengeController handles challenge HTTP endpoints.
type ChallengeController struct {
	challengeService *service.ChallengeService
}

// NewChallengeController creates a new ChallengeController.
func NewChallengeController(challengeService *service.ChallengeService) *ChallengeController {
	return &ChallengeController{challengeService: challengeService}
}

// Get handles GET /challenges/:id.
func (h *ChallengeController) Get(c *gin.Context) {
	challengeID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || challengeID <= 0 {
		response.BadRequest(c, "Invalid challenge id")
		return
	}
	challenge, err := h.challengeService.GetChallenge(c.Request.Context(), challengeID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, toChallengeResponse(challenge, true))
}

// List handles GET /challenges.
func (h *ChallengeController) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	challenges, err := h.challengeService.ListChallenges(c.Request.Context(), limit, offset)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]ChallengeResponse, 0, len(challenges))
	for _, challenge := range challenges {
		items = append(items, toChallengeResponse(challenge, false))
	}
	response.Success(c, ChallengeListResponse{Items: items})
}

// ChallengeResponse is the wire form of a challenge. Tests are never
// exposed over HTTP; they travel only inside execution jobs.
type ChallengeResponse struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Template    string `json:"template,omitempty"`
	Difficulty  string `json:"difficulty,omitempty"`
	CreatedAt   string `json:"created_at"`
}

// ChallengeListResponse wraps a challenge listing.
type ChallengeListResponse struct {
	Items []ChallengeResponse `json:"items"`
}

func toChallengeResponse(challenge *model.Challenge, detail bool) ChallengeResponse {
	resp := ChallengeResponse{
		ID:         challenge.ID,
		Title:      challenge.Title,
		Difficulty: challenge.Difficulty,
		CreatedAt:  challenge.CreatedAt.UTC().Format(time.RFC3339),
	}
	if detail {
		resp.Description = challenge.Description
		resp.Template = challenge.Template
	}
	return resp
}
