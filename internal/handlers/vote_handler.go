package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"unveil/internal/middleware"
	"unveil/internal/models"
	"unveil/internal/services"
	"unveil/internal/utils"
)

type VoteHandler struct {
	Service *services.VoteService
}

func NewVoteHandler(s *services.VoteService) *VoteHandler { return &VoteHandler{Service: s} }

type voteRequest struct {
	Vote  string `json:"vote" binding:"required,vote_choice"`
	Email string `json:"email"`
}

// resolveIdentity: подтверждённый email из токена, иначе IP клиента.
// Email в теле без токена не принимается: голос по email только после верификации.
func resolveIdentity(c *gin.Context, bodyEmail string) (models.VoterIdentity, bool) {
	bodyEmail = utils.NormalizeEmail(bodyEmail)
	if email, ok := middleware.VerifiedEmail(c); ok {
		if bodyEmail != "" && bodyEmail != email {
			badRequest(c, "Email in request does not match verified email")
			return "", false
		}
		return models.EmailIdentity(email), true
	}
	if middleware.TokenInvalid(c) {
		respondError(c, utils.NewError(utils.KindInvalidToken,
			"Invalid or expired verification token. Please verify your email again"),
			gin.H{"requiresVerification": true})
		return "", false
	}
	if bodyEmail != "" {
		respondError(c, utils.NewError(utils.KindInvalidToken,
			"Email verification required. Please verify your email address to vote"),
			gin.H{"requiresVerification": true})
		return "", false
	}
	return models.IPIdentity(c.ClientIP()), true
}

// CastVote godoc
// @Summary  Vote guilty / not_guilty on a case
// @Tags     votes
// @Accept   json
// @Produce  json
// @Param    id   path int         true "case id"
// @Param    body body voteRequest true "vote"
// @Success  200 {object} map[string]interface{}
// @Failure  400,401,404,409 {object} map[string]interface{}
// @Router   /case/{id}/vote [post]
func (h *VoteHandler) CastVote(c *gin.Context) {
	id, ok := parseCaseID(c)
	if !ok {
		return
	}
	var req voteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, bindMessage(err))
		return
	}
	identity, ok := resolveIdentity(c, req.Email)
	if !ok {
		return
	}

	updated, err := h.Service.CastVote(c.Request.Context(), id, req.Vote, identity)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":            true,
		"message":            "Vote cast successfully",
		"caseId":             id,
		"vote":               strings.ToLower(strings.TrimSpace(req.Vote)),
		"verificationMethod": identity.Method(),
		"verdict":            updated.Summary(),
	})
}

func (h *VoteHandler) Verdict(c *gin.Context) {
	id, ok := parseCaseID(c)
	if !ok {
		return
	}
	v, err := h.Service.Verdict(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, gin.H{"id": id})
		return
	}
	c.JSON(http.StatusOK, gin.H{"caseId": id, "verdict": v})
}

func (h *VoteHandler) HasVoted(c *gin.Context) {
	id, ok := parseCaseID(c)
	if !ok {
		return
	}
	identity, ok := resolveIdentity(c, "")
	if !ok {
		return
	}
	voted, err := h.Service.HasVoted(c.Request.Context(), identity, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"caseId": id, "hasVoted": voted, "verificationMethod": identity.Method()})
}

// ResetVotes — только с X-Admin-Key.
func (h *VoteHandler) ResetVotes(c *gin.Context) {
	id, ok := parseCaseID(c)
	if !ok {
		return
	}
	updated, err := h.Service.ResetVotes(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, gin.H{"id": id})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "All votes reset for case",
		"caseId":  id,
		"verdict": updated.Summary(),
	})
}

func (h *VoteHandler) TopVoted(c *gin.Context) {
	page, size := pageQuery(c)
	res, err := h.Service.TopVoted(c.Request.Context(), page, size)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": withVerdicts(res.Results), "pagination": pagination(res)})
}

func (h *VoteHandler) NeedingVotes(c *gin.Context) {
	page, size := pageQuery(c)
	res, err := h.Service.NeedingVotes(c.Request.Context(), page, size)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": withVerdicts(res.Results), "pagination": pagination(res)})
}
