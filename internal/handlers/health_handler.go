package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Pinger — всё, что умеет сказать «жив» (хранилище, лимитер).
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	Store    Pinger
	Limiter  Pinger
	MailKind string
}

func NewHealthHandler(store, limiter Pinger, mailKind string) *HealthHandler {
	return &HealthHandler{Store: store, Limiter: limiter, MailKind: mailKind}
}

// Health: 503 только если недоступна база; лимитер даёт статус DEGRADED.
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	checks := gin.H{"email": h.MailKind}
	status, code := "UP", http.StatusOK

	if err := h.Store.Ping(ctx); err != nil {
		checks["database"] = "DOWN"
		status, code = "DOWN", http.StatusServiceUnavailable
	} else {
		checks["database"] = "UP"
	}
	if err := h.Limiter.Ping(ctx); err != nil {
		checks["rateLimiter"] = "DOWN"
		if status == "UP" {
			status = "DEGRADED"
		}
	} else {
		checks["rateLimiter"] = "UP"
	}

	c.JSON(code, gin.H{"status": status, "checks": checks, "timestamp": time.Now().UTC()})
}
