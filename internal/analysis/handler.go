package analysis

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"adcopysurge/internal/api"
	"adcopysurge/internal/auth"
	"adcopysurge/internal/ledger"
	"adcopysurge/internal/logger"
)

type Handler struct {
	svc Service
}

func NewHandler(svc Service) *Handler {
	return &Handler{svc: svc}
}

// Run godoc
// @Summary      Analyze ad copy
// @Description  Consumes credits for the requested operation kind, runs the analysis, and refunds automatically if the analysis fails.
// @Tags         analyses
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request  body      RunRequest  true  "Ad copy to analyze"
// @Success      200      {object}  RunResponse
// @Failure      400      {object}  api.ErrorResponse
// @Failure      401      {object}  api.ErrorResponse
// @Failure      402      {object}  api.InsufficientCreditsResponse
// @Failure      502      {object}  api.ErrorResponse
// @Failure      503      {object}  api.ErrorResponse
// @Router       /analyses [post]
func (h *Handler) Run(c *gin.Context) {
	raw, ok := auth.GetAccountID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}
	accountID := ledger.AccountID{UUID: raw}
	email, _ := auth.GetAccountEmail(c)

	var req RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.svc.Run(c.Request.Context(), accountID, email, req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// List godoc
// @Summary      List past analyses
// @Description  Returns the caller's analysis history, newest first.
// @Tags         analyses
// @Produce      json
// @Security     BearerAuth
// @Param        limit   query  int  false  "Page size, default 50, max 200"
// @Param        offset  query  int  false  "Offset, default 0"
// @Success      200  {array}   Analysis
// @Failure      401  {object}  api.ErrorResponse
// @Router       /analyses [get]
func (h *Handler) List(c *gin.Context) {
	raw, ok := auth.GetAccountID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	list, err := h.svc.List(c.Request.Context(), ledger.AccountID{UUID: raw}, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, list)
}

func (h *Handler) respondError(c *gin.Context, err error) {
	if ice, ok := ledger.IsInsufficientCredits(err); ok {
		c.JSON(http.StatusPaymentRequired, api.InsufficientCreditsResponse{
			Error:     "insufficient credits",
			Required:  ice.Required,
			Available: ice.Available,
		})
		return
	}

	switch {
	case errors.Is(err, ledger.ErrUnknownKind):
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown operation kind"})
	case errors.Is(err, ledger.ErrAccountNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "credit account not found"})
	case errors.Is(err, ledger.ErrLockTimeout):
		// The deduct did not happen; clients may retry. They should
		// re-check the balance rather than assume either outcome.
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "credit system busy, please retry"})
	case errors.Is(err, ErrAnalyzerUnavailable):
		c.JSON(http.StatusBadGateway, gin.H{"error": "analysis service unavailable, credits were not charged"})
	default:
		logger.WithError(err).Error("analysis request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
