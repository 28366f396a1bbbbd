package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"unveil/internal/middleware"
	"unveil/internal/services"
)

type VerificationHandler struct {
	Service *services.VerificationService
}

func NewVerificationHandler(s *services.VerificationService) *VerificationHandler {
	return &VerificationHandler{Service: s}
}

type emailRequest struct {
	Email string `json:"email" binding:"required"`
}

type verifyRequest struct {
	Email string `json:"email" binding:"required"`
	Code  string `json:"code" binding:"required,sixdigits"`
}

// RequestCode godoc
// @Summary  Send a verification code to an email address
// @Tags     verification
// @Accept   json
// @Produce  json
// @Param    body body emailRequest true "email"
// @Success  200 {object} map[string]interface{}
// @Failure  400,429,503 {object} map[string]interface{}
// @Router   /verification/request [post]
func (h *VerificationHandler) RequestCode(c *gin.Context) {
	var req emailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, bindMessage(err))
		return
	}
	res, err := h.Service.RequestCode(c.Request.Context(), req.Email, c.ClientIP())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"message":   "Verification code sent successfully",
		"email":     res.Email,
		"expiresIn": res.ExpiresIn,
	})
}

// ResendCode godoc
// @Summary  Send a fresh verification code; the previous one stops working
// @Tags     verification
// @Router   /verification/resend [post]
func (h *VerificationHandler) ResendCode(c *gin.Context) {
	var req emailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, bindMessage(err))
		return
	}
	res, err := h.Service.ResendCode(c.Request.Context(), req.Email, c.ClientIP())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"message":   "Verification code resent successfully",
		"email":     res.Email,
		"expiresIn": res.ExpiresIn,
	})
}

// VerifyCode godoc
// @Summary  Exchange a code for a verification token
// @Tags     verification
// @Accept   json
// @Produce  json
// @Param    body body verifyRequest true "email and code"
// @Success  200 {object} map[string]interface{}
// @Failure  400,404,429 {object} map[string]interface{}
// @Router   /verification/verify [post]
func (h *VerificationHandler) VerifyCode(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, bindMessage(err))
		return
	}
	res, err := h.Service.VerifyCode(c.Request.Context(), req.Email, req.Code, c.ClientIP())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"message":   "Email verified successfully",
		"token":     res.Token,
		"email":     res.Email,
		"expiresIn": res.ExpiresIn,
		"expiresAt": res.ExpiresAt,
	})
}

// Status отвечает 200 всегда; без токена или с плохим токеном verified=false.
func (h *VerificationHandler) Status(c *gin.Context) {
	st := h.Service.Status(middleware.BearerToken(c))
	c.JSON(http.StatusOK, st)
}
