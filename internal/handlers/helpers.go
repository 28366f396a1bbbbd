package handlers

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"unveil/internal/services"
	"unveil/internal/utils"
)

var statusByKind = map[utils.Kind]int{
	utils.KindInvalidInput:    http.StatusBadRequest,
	utils.KindExpired:         http.StatusBadRequest,
	utils.KindInvalidCode:     http.StatusBadRequest,
	utils.KindTooManyAttempts: http.StatusBadRequest,
	utils.KindInvalidToken:    http.StatusUnauthorized,
	utils.KindForbidden:       http.StatusForbidden,
	utils.KindNotFound:        http.StatusNotFound,
	utils.KindDuplicateVote:   http.StatusConflict,
	utils.KindDuplicateCase:   http.StatusConflict,
	utils.KindRateLimited:     http.StatusTooManyRequests,
	utils.KindUnavailable:     http.StatusServiceUnavailable,
	utils.KindInternal:        http.StatusInternalServerError,
}

// respondError отдаёт {"error", "errorType"} и статус по Kind. Текст внутренних
// ошибок только логируется.
func respondError(c *gin.Context, err error, extra ...gin.H) {
	appErr := utils.AsAppError(err)
	status, ok := statusByKind[appErr.Kind]
	if !ok {
		status = http.StatusInternalServerError
	}

	body := gin.H{"error": appErr.Message, "errorType": string(appErr.Kind)}
	switch appErr.Kind {
	case utils.KindRateLimited:
		secs := int(math.Ceil(appErr.RetryAfter.Seconds()))
		if secs < 1 {
			secs = 1
		}
		c.Header("Retry-After", strconv.Itoa(secs))
		body["retryAfter"] = secs
	case utils.KindInvalidCode:
		body["remainingAttempts"] = appErr.Remaining
	}
	for _, h := range extra {
		for k, v := range h {
			body[k] = v
		}
	}

	if status >= http.StatusInternalServerError {
		utils.Logger.WithError(err).Errorf("[http][%s] %s %s", appErr.Kind, c.Request.Method, c.FullPath())
	}
	c.AbortWithStatusJSON(status, body)
}

func badRequest(c *gin.Context, msg string) {
	respondError(c, utils.InvalidInput(msg))
}

// bindMessage превращает ошибки validator в короткий текст для клиента.
func bindMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "invalid request body"
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := lowerFirst(fe.Field())
		switch fe.Tag() {
		case "required":
			parts = append(parts, field+" is required")
		case "vote_choice":
			parts = append(parts, "vote must be 'guilty' or 'not_guilty'")
		case "sixdigits":
			parts = append(parts, field+" must be 6 digits")
		default:
			parts = append(parts, fmt.Sprintf("%s is invalid", field))
		}
	}
	return strings.Join(parts, "; ")
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

func parseCaseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "invalid case id")
		return 0, false
	}
	return id, true
}

// pageQuery читает page/size; некорректные значения превращаются в 0,
// а сервис подставит значения по умолчанию.
func pageQuery(c *gin.Context) (page, size int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ = strconv.Atoi(c.Query("size"))
	return page, size
}

func pagination(p *services.Page) gin.H {
	return gin.H{
		"page":       p.Page,
		"size":       p.Size,
		"total":      p.Total,
		"totalPages": p.TotalPages,
		"hasNext":    p.Page < p.TotalPages,
	}
}
