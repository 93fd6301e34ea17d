package httpapi

import (
	"net/http"
	"strings"
	"time"

	"patient_recommender/internal/app"
	"patient_recommender/internal/domain/notification"
	"patient_recommender/internal/domain/patient"

	"github.com/gin-gonic/gin"
)

// dateLayout is the day format of history requests.
const dateLayout = "2006-01-02"

// Handler exposes status, manual rounds, roster management and the
// notification read-receipt and history endpoints.
type Handler struct {
	rounds        app.RoundRunner
	roster        *app.RosterService
	notifications *app.NotificationService
}

func NewHandler(rounds app.RoundRunner, roster *app.RosterService, notifications *app.NotificationService) *Handler {
	return &Handler{
		rounds:        rounds,
		roster:        roster,
		notifications: notifications,
	}
}

// Status is the liveness probe.
func (h *Handler) Status(c *gin.Context) {
	success(c, http.StatusOK, gin.H{"status": "ok"})
}

// RunRound triggers one round and waits for it. A round that processed
// patients answers 200 even when some of them failed; the result carries
// the failure count.
func (h *Handler) RunRound(c *gin.Context) {
	kind, err := app.ParseRoundKind(c.Param("kind"))
	if err != nil {
		renderError(c, err)
		return
	}
	result, err := h.rounds.RunRound(c.Request.Context(), kind)
	if err != nil && result.Processed == 0 {
		renderError(c, err)
		return
	}
	success(c, http.StatusOK, result)
}

func (h *Handler) SyncRoster(c *gin.Context) {
	result, err := h.roster.Sync(c.Request.Context())
	if err != nil && result.Seen == 0 {
		renderError(c, err)
		return
	}
	success(c, http.StatusOK, result)
}

type patientView struct {
	Reference        string `json:"reference"`
	OrganizationCode string `json:"organization_code"`
	ParDay           int    `json:"par_day"`
	Active           bool   `json:"status"`
}

func viewPatient(p *patient.Patient) patientView {
	return patientView{
		Reference:        p.Reference,
		OrganizationCode: p.OrganizationCode,
		ParDay:           p.ParDay,
		Active:           p.Active,
	}
}

func (h *Handler) ListPatients(c *gin.Context) {
	patients, err := h.roster.List(c.Request.Context())
	if err != nil {
		renderError(c, err)
		return
	}
	views := make([]patientView, 0, len(patients))
	for _, p := range patients {
		views = append(views, viewPatient(p))
	}
	success(c, http.StatusOK, views)
}

func (h *Handler) Reenroll(c *gin.Context) {
	p, err := h.roster.Reenroll(c.Request.Context(), c.Param("reference"))
	if err != nil {
		renderError(c, err)
		return
	}
	success(c, http.StatusOK, viewPatient(p))
}

type readRequest struct {
	ID string `json:"id" binding:"required"`
}

func (h *Handler) MarkRead(c *gin.Context) {
	var req readRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.ID) == "" {
		failure(c, http.StatusBadRequest, CodeBadRequest, "notification id is required")
		return
	}
	n, err := h.notifications.MarkRead(c.Request.Context(), req.ID)
	if err != nil {
		renderError(c, err)
		return
	}
	success(c, http.StatusOK, n.Project())
}

func (h *Handler) GetNotification(c *gin.Context) {
	n, err := h.notifications.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		renderError(c, err)
		return
	}
	success(c, http.StatusOK, n.Project())
}

type historyRequest struct {
	PatientReference string `json:"patient_reference" binding:"required"`
	StartDate        string `json:"start_date" binding:"required"`
	EndDate          string `json:"end_date" binding:"required"`
}

// History returns the notifications a patient received between two
// days, both inclusive.
func (h *Handler) History(c *gin.Context) {
	var req historyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failure(c, http.StatusBadRequest, CodeBadRequest, "patient_reference, start_date and end_date are required")
		return
	}
	from, err := time.ParseInLocation(dateLayout, req.StartDate, time.Local)
	if err != nil {
		failure(c, http.StatusBadRequest, CodeBadRequest, "start_date must be YYYY-MM-DD")
		return
	}
	to, err := time.ParseInLocation(dateLayout, req.EndDate, time.Local)
	if err != nil {
		failure(c, http.StatusBadRequest, CodeBadRequest, "end_date must be YYYY-MM-DD")
		return
	}

	history, err := h.notifications.History(c.Request.Context(), req.PatientReference, from, to)
	if err != nil {
		renderError(c, err)
		return
	}
	views := make([]notification.Projection, 0, len(history))
	for _, n := range history {
		views = append(views, n.Project())
	}
	success(c, http.StatusOK, views)
}
