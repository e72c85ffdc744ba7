package feedbackhandler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"loophr/internal/domain/feedback"
	"loophr/internal/domain/notifications"
	"loophr/internal/platform/requestctx"
	"loophr/internal/transport/http/api"
	"loophr/internal/transport/http/middleware"
	"loophr/internal/transport/http/shared"
)

func (h *Handler) HandleListCycles(w http.ResponseWriter, r *http.Request) {
	requestID := requestctx.GetRequestID(r.Context())

	cycles, err := h.Service.ListCycles(r.Context())
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "db_error", "failed to list cycles", requestID)
		return
	}
	api.Success(w, cycles, requestID)
}

func (h *Handler) HandleGetCycle(w http.ResponseWriter, r *http.Request) {
	requestID := requestctx.GetRequestID(r.Context())

	cycle, err := h.Service.GetCycle(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, feedback.ErrNotFound) {
		api.Fail(w, http.StatusNotFound, "not_found", "cycle not found", requestID)
		return
	}
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "db_error", "failed to load cycle", requestID)
		return
	}
	api.Success(w, cycle, requestID)
}

type cyclePayload struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Type        string         `json:"type"`
	StartDate   string         `json:"startDate"`
	EndDate     string         `json:"endDate"`
	Status      string         `json:"status"`
	Template    map[string]any `json:"template"`
}

func (h *Handler) HandleCreateCycle(w http.ResponseWriter, r *http.Request) {
	requestID := requestctx.GetRequestID(r.Context())
	user, _ := middleware.GetUser(r.Context())

	var payload cyclePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", requestID)
		return
	}

	v := shared.NewValidator()
	v.Required("name", payload.Name, "name is required")
	startDate, startOK := v.Date("startDate", payload.StartDate)
	endDate, endOK := v.Date("endDate", payload.EndDate)
	if startOK && endOK {
		v.DateOrder("startDate", startDate, "endDate", endDate)
	}
	status := strings.ToLower(strings.TrimSpace(payload.Status))
	if status != "" && !feedback.ValidCycleStatuses[status] {
		v.Add("status", "must be one of planned, active, completed, cancelled")
	}
	cycleType := strings.ToLower(strings.TrimSpace(payload.Type))
	if cycleType != "" && !feedback.ValidCycleTypes[cycleType] {
		v.Add("type", "must be one of quarterly, annual, monthly, custom, 360")
	}
	if v.Reject(w, requestID) {
		return
	}

	cycle, err := h.Service.CreateCycle(r.Context(), feedback.Cycle{
		Name:        strings.TrimSpace(payload.Name),
		Description: payload.Description,
		Type:        cycleType,
		StartDate:   startDate,
		EndDate:     endDate,
		Status:      status,
		Template:    payload.Template,
		CreatedBy:   user.UserID,
	})
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "db_error", "failed to create cycle", requestID)
		return
	}

	h.Audit.Record(r.Context(), user.UserID, "feedback_cycle.create", "feedback_cycle", cycle.ID, cycle.Name)
	api.Created(w, cycle, requestID)
}

type cycleUpdatePayload struct {
	Name        *string        `json:"name"`
	Description *string        `json:"description"`
	Type        *string        `json:"type"`
	StartDate   *string        `json:"startDate"`
	EndDate     *string        `json:"endDate"`
	Status      *string        `json:"status"`
	Template    map[string]any `json:"template"`
}

func (h *Handler) HandleUpdateCycle(w http.ResponseWriter, r *http.Request) {
	requestID := requestctx.GetRequestID(r.Context())
	user, _ := middleware.GetUser(r.Context())
	cycleID := chi.URLParam(r, "id")

	var payload cycleUpdatePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", requestID)
		return
	}

	v := shared.NewValidator()
	input := feedback.CycleUpdate{
		Name:        payload.Name,
		Description: payload.Description,
		Template:    payload.Template,
	}
	if payload.StartDate != nil {
		if parsed, ok := v.Date("startDate", *payload.StartDate); ok {
			input.StartDate = &parsed
		}
	}
	if payload.EndDate != nil {
		if parsed, ok := v.Date("endDate", *payload.EndDate); ok {
			input.EndDate = &parsed
		}
	}
	if payload.Type != nil {
		cycleType := strings.ToLower(strings.TrimSpace(*payload.Type))
		if !feedback.ValidCycleTypes[cycleType] {
			v.Add("type", "must be one of quarterly, annual, monthly, custom, 360")
		}
		input.Type = &cycleType
	}
	if payload.Status != nil {
		status := strings.ToLower(strings.TrimSpace(*payload.Status))
		if !feedback.ValidCycleStatuses[status] {
			v.Add("status", "must be one of planned, active, completed, cancelled")
		}
		input.Status = &status
	}
	if input.StartDate != nil && input.EndDate != nil {
		v.DateOrder("startDate", *input.StartDate, "endDate", *input.EndDate)
	}
	if v.Reject(w, requestID) {
		return
	}

	cycle, err := h.Service.UpdateCycle(r.Context(), cycleID, input)
	if errors.Is(err, feedback.ErrNotFound) {
		api.Fail(w, http.StatusNotFound, "not_found", "cycle not found", requestID)
		return
	}
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "db_error", "failed to update cycle", requestID)
		return
	}

	h.Audit.Record(r.Context(), user.UserID, "feedback_cycle.update", "feedback_cycle", cycleID, "")
	api.Success(w, cycle, requestID)
}

func (h *Handler) HandleDeleteCycle(w http.ResponseWriter, r *http.Request) {
	requestID := requestctx.GetRequestID(r.Context())
	user, _ := middleware.GetUser(r.Context())
	cycleID := chi.URLParam(r, "id")

	err := h.Service.DeleteCycle(r.Context(), cycleID)
	if errors.Is(err, feedback.ErrNotFound) {
		api.Fail(w, http.StatusNotFound, "not_found", "cycle not found", requestID)
		return
	}
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "db_error", "failed to delete cycle", requestID)
		return
	}

	h.Audit.Record(r.Context(), user.UserID, "feedback_cycle.delete", "feedback_cycle", cycleID, "")
	api.Success(w, map[string]string{"status": "deleted"}, requestID)
}

type create360Payload struct {
	RecipientIDs []string `json:"recipientIds"`
	DueDate      string   `json:"dueDate"`
	Message      string   `json:"message"`
	CycleID      string   `json:"cycleId"`
	IsAnonymous  bool     `json:"isAnonymous"`
}

// HandleCreate360 fans one review out to several reviewers. Managers may
// only target their own reports; admins anyone.
func (h *Handler) HandleCreate360(w http.ResponseWriter, r *http.Request) {
	requestID := requestctx.GetRequestID(r.Context())
	user, _ := middleware.GetUser(r.Context())
	subjectID := chi.URLParam(r, "userId")

	var payload create360Payload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", requestID)
		return
	}

	v := shared.NewValidator()
	if len(payload.RecipientIDs) == 0 {
		v.Add("recipientIds", "at least one reviewer is required")
	}
	dueDate, err := shared.ParseDate(strings.TrimSpace(payload.DueDate))
	if err != nil || !dueDate.After(time.Now()) {
		v.Add("dueDate", "must be a future date")
	}
	if v.Reject(w, requestID) {
		return
	}

	if !isAdmin(user) {
		managerOf, err := h.Directory.IsManagerOf(r.Context(), user.UserID, subjectID)
		if err != nil {
			api.Fail(w, http.StatusInternalServerError, "db_error", "failed to check reporting line", requestID)
			return
		}
		if !managerOf && subjectID != user.UserID {
			api.Fail(w, http.StatusForbidden, "forbidden", "can only start 360 reviews for your own reports", requestID)
			return
		}
	}

	requests, err := h.Service.Create360(r.Context(), user.UserID, subjectID, payload.RecipientIDs, dueDate, payload.Message, payload.CycleID, payload.IsAnonymous)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "db_error", "failed to create 360 review", requestID)
		return
	}

	h.notifyAdmins(r, notifications.TypeRequestSubmitted, "360 review awaiting approval",
		"A 360 review with "+strconv.Itoa(len(requests))+" reviewers was submitted")
	h.Audit.Record(r.Context(), user.UserID, "feedback_360.create", "feedback_request", subjectID, "")
	api.Created(w, requests, requestID)
}

// HandleSummary360 aggregates everything submitted about one subject;
// format=pdf streams a printable report instead of JSON.
func (h *Handler) HandleSummary360(w http.ResponseWriter, r *http.Request) {
	requestID := requestctx.GetRequestID(r.Context())
	user, _ := middleware.GetUser(r.Context())
	subjectID := chi.URLParam(r, "userId")

	if !isAdmin(user) && subjectID != user.UserID {
		managerOf, err := h.Directory.IsManagerOf(r.Context(), user.UserID, subjectID)
		if err != nil {
			api.Fail(w, http.StatusInternalServerError, "db_error", "failed to check reporting line", requestID)
			return
		}
		if !managerOf {
			api.Fail(w, http.StatusForbidden, "forbidden", "cannot view this summary", requestID)
			return
		}
	}

	summary, err := h.Service.Summarize360(r.Context(), subjectID, user.UserID, isAdmin(user))
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "db_error", "failed to build summary", requestID)
		return
	}

	if r.URL.Query().Get("format") == "pdf" {
		doc, err := feedback.SummaryPDF(summary)
		if err != nil {
			api.Fail(w, http.StatusInternalServerError, "pdf_error", "failed to render summary", requestID)
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", `attachment; filename="feedback-summary.pdf"`)
		_, _ = w.Write(doc)
		return
	}
	api.Success(w, summary, requestID)
}
