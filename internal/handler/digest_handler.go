package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/house-points-api/internal/models"
	appErrors "github.com/noah-isme/house-points-api/pkg/errors"
	"github.com/noah-isme/house-points-api/pkg/response"
	"github.com/noah-isme/house-points-api/pkg/timeutil"
)

type digestService interface {
	WeeklyDigest(ctx context.Context, periodEnd time.Time) (*models.WeeklyDigest, error)
	SendWeeklyDigest(ctx context.Context, digest *models.WeeklyDigest, recipients []string) []models.DigestDispatch
	CaptureMonthlySnapshot(ctx context.Context, month time.Time) (*models.MonthlySnapshot, error)
	QuarterlyReport(ctx context.Context, quarterStart, quarterEnd time.Time) (*models.QuarterlyReport, error)
}

// DigestHandler exposes the weekly digest and quarterly report.
type DigestHandler struct {
	service    digestService
	recipients []string
	now        func() time.Time
}

// NewDigestHandler constructs the handler. recipients receive the weekly digest on send.
func NewDigestHandler(service digestService, recipients []string) *DigestHandler {
	return &DigestHandler{service: service, recipients: recipients, now: time.Now}
}

// Weekly godoc
// @Summary Weekly digest preview
// @Tags Digest
// @Produce json
// @Param date query string false "Period end (YYYY-MM-DD), defaults to today"
// @Success 200 {object} response.Envelope
// @Router /digests/weekly [get]
func (h *DigestHandler) Weekly(c *gin.Context) {
	digest, ok := h.loadWeekly(c)
	if !ok {
		return
	}
	response.JSON(c, http.StatusOK, digest, nil)
}

// SendWeekly godoc
// @Summary Email the weekly digest to the configured recipients
// @Tags Digest
// @Produce json
// @Param date query string false "Period end (YYYY-MM-DD), defaults to today"
// @Success 200 {object} response.Envelope
// @Router /digests/weekly/send [post]
func (h *DigestHandler) SendWeekly(c *gin.Context) {
	if len(h.recipients) == 0 {
		response.Error(c, appErrors.Clone(appErrors.ErrPreconditionFailed, "no digest recipients configured"))
		return
	}
	digest, ok := h.loadWeekly(c)
	if !ok {
		return
	}
	dispatches := h.service.SendWeeklyDigest(c.Request.Context(), digest, h.recipients)
	response.JSON(c, http.StatusOK, gin.H{"digest": digest, "dispatches": dispatches}, nil)
}

func (h *DigestHandler) loadWeekly(c *gin.Context) (*models.WeeklyDigest, bool) {
	date, err := queryDate(c, "date")
	if err != nil {
		response.Error(c, err)
		return nil, false
	}
	periodEnd := h.now()
	if date != nil {
		periodEnd = *date
	}
	digest, err := h.service.WeeklyDigest(c.Request.Context(), periodEnd)
	if err != nil {
		response.Error(c, err)
		return nil, false
	}
	return digest, true
}

// Quarterly godoc
// @Summary Quarterly report against the latest monthly snapshot
// @Tags Digest
// @Produce json
// @Param start query string false "Quarter start (YYYY-MM-DD)"
// @Param end query string false "Quarter end (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /digests/quarterly [get]
func (h *DigestHandler) Quarterly(c *gin.Context) {
	start, err := queryDate(c, "start")
	if err != nil {
		response.Error(c, err)
		return
	}
	end, err := queryDate(c, "end")
	if err != nil {
		response.Error(c, err)
		return
	}
	now := h.now()
	quarterStart := timeutil.StartOfQuarter(now)
	quarterEnd := timeutil.EndOfQuarter(now)
	if start != nil {
		quarterStart = *start
		quarterEnd = timeutil.EndOfQuarter(*start)
	}
	if end != nil {
		quarterEnd = *end
	}
	report, err := h.service.QuarterlyReport(c.Request.Context(), quarterStart, quarterEnd)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// CaptureSnapshot godoc
// @Summary Capture the monthly metrics snapshot
// @Tags Digest
// @Produce json
// @Param month query string false "Any date in the month (YYYY-MM-DD), defaults to the previous month"
// @Success 201 {object} response.Envelope
// @Router /digests/snapshots/monthly [post]
func (h *DigestHandler) CaptureSnapshot(c *gin.Context) {
	month, err := queryDate(c, "month")
	if err != nil {
		response.Error(c, err)
		return
	}
	target := timeutil.StartOfMonth(h.now()).AddDate(0, -1, 0)
	if month != nil {
		target = *month
	}
	snapshot, err := h.service.CaptureMonthlySnapshot(c.Request.Context(), target)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, snapshot)
}
