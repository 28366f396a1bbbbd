package handlers

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"unveil/internal/middleware"
	"unveil/internal/models"
	"unveil/internal/pdf"
	"unveil/internal/services"
	"unveil/internal/utils"
)

type CaseHandler struct {
	Service *services.CaseService
	PDF     pdf.Generator
}

func NewCaseHandler(service *services.CaseService, gen pdf.Generator) *CaseHandler {
	return &CaseHandler{Service: service, PDF: gen}
}

// caseView — дело вместе с вычисленным вердиктом.
type caseView struct {
	*models.Case
	Verdict models.VerdictSummary `json:"verdict"`
}

func withVerdict(c *models.Case) caseView { return caseView{Case: c, Verdict: c.Summary()} }

func withVerdicts(cs []*models.Case) []caseView {
	out := make([]caseView, 0, len(cs))
	for _, c := range cs {
		out = append(out, withVerdict(c))
	}
	return out
}

type caseRequest struct {
	services.CaseInput
	ReporterEmail string `json:"reporterEmail"`
}

// Submit godoc
// @Summary  Report a case (requires a verification token)
// @Tags     cases
// @Accept   json
// @Produce  json
// @Security BearerAuth
// @Success  201 {object} map[string]interface{}
// @Failure  400,401,409,429 {object} map[string]interface{}
// @Router   /case/submit [post]
func (h *CaseHandler) Submit(c *gin.Context) {
	var req caseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, bindMessage(err))
		return
	}
	// Репортёр берётся из токена (входящий reporterEmail только сверяем)
	reporter, _ := middleware.VerifiedEmail(c)
	if req.ReporterEmail != "" && utils.NormalizeEmail(req.ReporterEmail) != reporter {
		badRequest(c, "Reporter email does not match verified email")
		return
	}

	created, err := h.Service.Submit(c.Request.Context(), req.CaseInput, reporter, c.ClientIP())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"message": "Case submitted successfully",
		"case":    withVerdict(created),
	})
}

func (h *CaseHandler) GetByID(c *gin.Context) {
	id, ok := parseCaseID(c)
	if !ok {
		return
	}
	cs, err := h.Service.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, gin.H{"id": id})
		return
	}
	c.JSON(http.StatusOK, withVerdict(cs))
}

func (h *CaseHandler) Update(c *gin.Context) {
	id, ok := parseCaseID(c)
	if !ok {
		return
	}
	var body services.CaseInput
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, bindMessage(err))
		return
	}
	updated, err := h.Service.Update(c.Request.Context(), id, body)
	if err != nil {
		respondError(c, err, gin.H{"id": id})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Case updated successfully",
		"case":    withVerdict(updated),
	})
}

func (h *CaseHandler) Delete(c *gin.Context) {
	id, ok := parseCaseID(c)
	if !ok {
		return
	}
	if err := h.Service.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err, gin.H{"id": id})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Case deleted successfully", "id": id})
}

func (h *CaseHandler) ListRecent(c *gin.Context) {
	page, size := pageQuery(c)
	res, err := h.Service.ListRecent(c.Request.Context(), page, size)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": withVerdicts(res.Results), "pagination": pagination(res)})
}

// Search godoc
// @Summary  Search cases by name, email, phone, company, action or all
// @Tags     cases
// @Produce  json
// @Param    filter query string true  "name|email|phone|company|action|all"
// @Param    value  query string true  "search value"
// @Param    page   query int    false "1-based page"
// @Param    size   query int    false "page size (max 100)"
// @Router   /search [get]
func (h *CaseHandler) Search(c *gin.Context) {
	filter := c.DefaultQuery("filter", "all")
	value := c.Query("value")
	page, size := pageQuery(c)

	res, err := h.Service.Search(c.Request.Context(), filter, value, page, size)
	if err != nil {
		respondError(c, err, gin.H{"filter": filter, "value": value, "supportedFilters": models.SupportedFilters()})
		return
	}
	msg := fmt.Sprintf("No cases found for %s %q", filter, value)
	if res.Total > 0 {
		msg = fmt.Sprintf("Found %d case(s) for %s %q", res.Total, filter, value)
	}
	c.JSON(http.StatusOK, gin.H{
		"filter":     filter,
		"value":      value,
		"results":    withVerdicts(res.Results),
		"pagination": pagination(res),
		"found":      res.Total > 0,
		"message":    msg,
	})
}

// ReportPDF отдаёт досье по делу. PDF собирается в память целиком, чтобы
// ошибка генерации не оборвала уже начатый ответ.
func (h *CaseHandler) ReportPDF(c *gin.Context) {
	id, ok := parseCaseID(c)
	if !ok {
		return
	}
	cs, err := h.Service.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, gin.H{"id": id})
		return
	}
	var buf bytes.Buffer
	if err := h.PDF.CaseDossier(&buf, cs, time.Now()); err != nil {
		respondError(c, utils.Internal(err))
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`inline; filename="case_%d.pdf"`, id))
	c.Data(http.StatusOK, "application/pdf", buf.Bytes())
}
