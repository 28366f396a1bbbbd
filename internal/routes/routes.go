package routes

import (
	"github.com/gin-gonic/gin"

	"unveil/internal/handlers"
	"unveil/internal/middleware"
)

func SetupRoutes(
	r *gin.Engine,
	tokens middleware.TokenParser,
	adminKey string,
	verificationHandler *handlers.VerificationHandler,
	voteHandler *handlers.VoteHandler,
	caseHandler *handlers.CaseHandler,
	healthHandler *handlers.HealthHandler,
) *gin.Engine {
	handlers.RegisterValidators()

	api := r.Group("/api/v1")
	api.GET("/health", healthHandler.Health)

	// ---- верификация (публично)
	verification := api.Group("/verification")
	{
		verification.POST("/request", verificationHandler.RequestCode)
		verification.POST("/resend", verificationHandler.ResendCode)
		verification.POST("/verify", verificationHandler.VerifyCode)
		verification.GET("/status", verificationHandler.Status)
	}

	// ---- всё остальное: токен необязателен, без него голос считается по IP
	open := api.Group("", middleware.OptionalVerification(tokens))
	admin := middleware.RequireAdminKey(adminKey)

	// CASE
	cases := open.Group("/case")
	{
		cases.POST("/submit", middleware.RequireVerifiedEmail(), caseHandler.Submit)
		cases.GET("/:id", caseHandler.GetByID)
		cases.PUT("/:id", admin, caseHandler.Update)
		cases.DELETE("/:id", admin, caseHandler.Delete)
		cases.GET("/:id/report.pdf", caseHandler.ReportPDF)

		cases.POST("/:id/vote", voteHandler.CastVote)
		cases.GET("/:id/verdict", voteHandler.Verdict)
		cases.GET("/:id/voted", voteHandler.HasVoted)
		cases.POST("/:id/reset-votes", admin, voteHandler.ResetVotes)
	}

	// LISTS
	lists := open.Group("/cases")
	{
		lists.GET("/recent", caseHandler.ListRecent)
		lists.GET("/top-voted", voteHandler.TopVoted)
		lists.GET("/needs-votes", voteHandler.NeedingVotes)
	}

	open.GET("/search", caseHandler.Search)

	return r
}
