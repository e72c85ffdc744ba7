package kpihandler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"loophr/internal/domain/audit"
	"loophr/internal/domain/auth"
	"loophr/internal/domain/kpi"
	"loophr/internal/domain/notifications"
	"loophr/internal/platform/requestctx"
	"loophr/internal/transport/http/api"
	"loophr/internal/transport/http/middleware"
	"loophr/internal/transport/http/shared"
)

type Handler struct {
	Service  *kpi.Service
	Notifier *notifications.Service
	Audit    *audit.Service
}

func NewHandler(service *kpi.Service, notifier *notifications.Service, auditor *audit.Service) *Handler {
	return &Handler{Service: service, Notifier: notifier, Audit: auditor}
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	requestID := requestctx.GetRequestID(r.Context())
	user, _ := middleware.GetUser(r.Context())
	q := r.URL.Query()

	filter := kpi.Filter{
		UserID:     q.Get("userId"),
		Status:     q.Get("status"),
		CategoryID: q.Get("categoryId"),
		Search:     q.Get("search"),
	}

	// Without team visibility the listing is always scoped to the caller.
	caps := auth.ResolveCapabilities(user.Roles)
	if !caps.ViewTeam {
		filter.UserID = user.UserID
	}

	page := shared.ParsePagination(r, 50, 200)
	result, err := h.Service.List(r.Context(), filter, page.Limit, page.Offset)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "db_error", "failed to list kpis", requestID)
		return
	}

	w.Header().Set("X-Total", strconv.Itoa(result.Total))
	api.Success(w, map[string]any{"kpis": result.KPIs, "total": result.Total}, requestID)
}

func (h *Handler) HandleMyKPIs(w http.ResponseWriter, r *http.Request) {
	requestID := requestctx.GetRequestID(r.Context())
	user, _ := middleware.GetUser(r.Context())

	result, err := h.Service.List(r.Context(), kpi.Filter{
		UserID: user.UserID,
		Status: r.URL.Query().Get("status"),
	}, 200, 0)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "db_error", "failed to list kpis", requestID)
		return
	}
	api.Success(w, result.KPIs, requestID)
}

func (h *Handler) HandleUserKPIs(w http.ResponseWriter, r *http.Request) {
	requestID := requestctx.GetRequestID(r.Context())

	result, err := h.Service.List(r.Context(), kpi.Filter{
		UserID: chi.URLParam(r, "userId"),
		Status: r.URL.Query().Get("status"),
	}, 200, 0)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "db_error", "failed to list kpis", requestID)
		return
	}
	api.Success(w, result.KPIs, requestID)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	requestID := requestctx.GetRequestID(r.Context())

	record, err := h.Service.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, kpi.ErrNotFound) {
		api.Fail(w, http.StatusNotFound, "not_found", "kpi not found", requestID)
		return
	}
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "db_error", "failed to load kpi", requestID)
		return
	}
	api.Success(w, record, requestID)
}

type createKPIRequest struct {
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Type        string       `json:"type"`
	TargetValue float64      `json:"targetValue"`
	Weight      *float64     `json:"weight"`
	StartDate   string       `json:"startDate"`
	EndDate     string       `json:"endDate"`
	Status      string       `json:"status"`
	CategoryID  string       `json:"categoryId"`
	UserID      string       `json:"userId"`
	Metrics     []kpi.Metric `json:"metrics"`
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	requestID := requestctx.GetRequestID(r.Context())
	user, _ := middleware.GetUser(r.Context())

	var payload createKPIRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", requestID)
		return
	}

	targetUser := payload.UserID
	if targetUser == "" {
		targetUser = user.UserID
	}
	caps := auth.ResolveCapabilities(user.Roles)
	if targetUser != user.UserID && !caps.AssignKPIs {
		api.Fail(w, http.StatusForbidden, "forbidden", "cannot assign kpis to other users", requestID)
		return
	}

	kpiType := strings.ToLower(payload.Type)
	if kpiType == "" {
		kpiType = kpi.TypeQuantitative
	}
	status := strings.ToLower(payload.Status)
	if status == "" {
		status = kpi.StatusDraft
	}
	weight := 1.0
	if payload.Weight != nil {
		weight = *payload.Weight
	}

	v := shared.NewValidator()
	v.Required("title", payload.Title, "title is required")
	if !kpi.ValidTypes[kpiType] {
		v.Add("type", "must be quantitative or qualitative")
	}
	if !kpi.ValidStatuses[status] {
		v.Add("status", "must be one of draft, active, completed, cancelled")
	}
	if !kpi.ValidWeight(weight) {
		v.Add("weight", "must be between 0 and 5")
	}
	var startDate, endDate *time.Time
	if payload.StartDate != "" {
		if parsed, ok := v.Date("startDate", payload.StartDate); ok {
			startDate = &parsed
		}
	}
	if payload.EndDate != "" {
		if parsed, ok := v.Date("endDate", payload.EndDate); ok {
			endDate = &parsed
		}
	}
	if startDate != nil && endDate != nil {
		v.DateOrder("startDate", *startDate, "endDate", *endDate)
	}
	if v.Reject(w, requestID) {
		return
	}

	id, err := h.Service.Create(r.Context(), kpi.CreateInput{
		Title:       strings.TrimSpace(payload.Title),
		Description: payload.Description,
		Type:        kpiType,
		TargetValue: payload.TargetValue,
		Weight:      weight,
		StartDate:   startDate,
		EndDate:     endDate,
		Status:      status,
		CategoryID:  payload.CategoryID,
		UserID:      targetUser,
		CreatedBy:   user.UserID,
		Metrics:     payload.Metrics,
	})
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "db_error", "failed to create kpi", requestID)
		return
	}

	created, err := h.Service.Get(r.Context(), id)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "db_error", "failed to load created kpi", requestID)
		return
	}

	if targetUser != user.UserID {
		h.Notifier.Notify(r.Context(), targetUser, notifications.TypeKPIAssigned,
			"New KPI assigned", created.Title)
	}
	h.Audit.Record(r.Context(), user.UserID, "kpi.create", "kpi", id, created.Title)
	api.Created(w, created, requestID)
}

type updateKPIRequest struct {
	Title        *string  `json:"title"`
	Description  *string  `json:"description"`
	TargetValue  *float64 `json:"targetValue"`
	CurrentValue *float64 `json:"currentValue"`
	Weight       *float64 `json:"weight"`
	StartDate    *string  `json:"startDate"`
	EndDate      *string  `json:"endDate"`
	Status       *string  `json:"status"`
	CategoryID   *string  `json:"categoryId"`
}

func (h *Handler) canEdit(record kpi.KPI, user auth.UserContext) bool {
	if record.UserID == user.UserID || record.CreatedBy == user.UserID {
		return true
	}
	return auth.ResolveCapabilities(user.Roles).AssignKPIs
}

func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	requestID := requestctx.GetRequestID(r.Context())
	user, _ := middleware.GetUser(r.Context())
	kpiID := chi.URLParam(r, "id")

	current, err := h.Service.Get(r.Context(), kpiID)
	if errors.Is(err, kpi.ErrNotFound) {
		api.Fail(w, http.StatusNotFound, "not_found", "kpi not found", requestID)
		return
	}
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "db_error", "failed to load kpi", requestID)
		return
	}
	if !h.canEdit(current, user) {
		api.Fail(w, http.StatusForbidden, "forbidden", "cannot edit this kpi", requestID)
		return
	}

	var payload updateKPIRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", requestID)
		return
	}

	v := shared.NewValidator()
	input := kpi.UpdateInput{
		Title:        payload.Title,
		Description:  payload.Description,
		TargetValue:  payload.TargetValue,
		CurrentValue: payload.CurrentValue,
		Status:       payload.Status,
		CategoryID:   payload.CategoryID,
	}
	if payload.Weight != nil {
		if !kpi.ValidWeight(*payload.Weight) {
			v.Add("weight", "must be between 0 and 5")
		}
		input.Weight = payload.Weight
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
	if v.Reject(w, requestID) {
		return
	}

	updated, err := h.Service.Update(r.Context(), kpiID, input)
	if errors.Is(err, kpi.ErrInvalidStatus) {
		api.Fail(w, http.StatusBadRequest, "invalid_status", "status must be one of draft, active, completed, cancelled", requestID)
		return
	}
	if errors.Is(err, kpi.ErrNotFound) {
		api.Fail(w, http.StatusNotFound, "not_found", "kpi not found", requestID)
		return
	}
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "db_error", "failed to update kpi", requestID)
		return
	}

	h.Audit.Record(r.Context(), user.UserID, "kpi.update", "kpi", kpiID, "")
	api.Success(w, updated, requestID)
}

func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	requestID := requestctx.GetRequestID(r.Context())
	user, _ := middleware.GetUser(r.Context())
	kpiID := chi.URLParam(r, "id")

	current, err := h.Service.Get(r.Context(), kpiID)
	if errors.Is(err, kpi.ErrNotFound) {
		api.Fail(w, http.StatusNotFound, "not_found", "kpi not found", requestID)
		return
	}
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "db_error", "failed to load kpi", requestID)
		return
	}
	if !h.canEdit(current, user) {
		api.Fail(w, http.StatusForbidden, "forbidden", "cannot delete this kpi", requestID)
		return
	}

	if err := h.Service.Delete(r.Context(), kpiID); err != nil {
		api.Fail(w, http.StatusInternalServerError, "db_error", "failed to delete kpi", requestID)
		return
	}

	h.Audit.Record(r.Context(), user.UserID, "kpi.delete", "kpi", kpiID, current.Title)
	api.Success(w, map[string]string{"status": "deleted"}, requestID)
}

type progressUpdateRequest struct {
	KPIID string  `json:"kpiId"`
	Value float64 `json:"value"`
	Notes string  `json:"notes"`
}

func (h *Handler) addUpdate(w http.ResponseWriter, r *http.Request, kpiID string, payload progressUpdateRequest) {
	requestID := requestctx.GetRequestID(r.Context())
	user, _ := middleware.GetUser(r.Context())

	current, err := h.Service.Get(r.Context(), kpiID)
	if errors.Is(err, kpi.ErrNotFound) {
		api.Fail(w, http.StatusNotFound, "not_found", "kpi not found", requestID)
		return
	}
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "db_error", "failed to load kpi", requestID)
		return
	}
	if !h.canEdit(current, user) {
		api.Fail(w, http.StatusForbidden, "forbidden", "cannot update this kpi", requestID)
		return
	}

	update, err := h.Service.AddUpdate(r.Context(), kpiID, payload.Value, payload.Notes, user.UserID)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "db_error", "failed to record update", requestID)
		return
	}
	api.Created(w, update, requestID)
}

func (h *Handler) HandleAddUpdate(w http.ResponseWriter, r *http.Request) {
	requestID := requestctx.GetRequestID(r.Context())

	var payload progressUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", requestID)
		return
	}
	h.addUpdate(w, r, chi.URLParam(r, "id"), payload)
}

// HandleAddUpdateByBody is the flat variant where the body names the KPI.
func (h *Handler) HandleAddUpdateByBody(w http.ResponseWriter, r *http.Request) {
	requestID := requestctx.GetRequestID(r.Context())

	var payload progressUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", requestID)
		return
	}
	if strings.TrimSpace(payload.KPIID) == "" {
		shared.FailValidation(w, requestID, []shared.ValidationIssue{{Field: "kpiId", Reason: "kpiId is required"}})
		return
	}
	h.addUpdate(w, r, payload.KPIID, payload)
}

func (h *Handler) HandleListUpdates(w http.ResponseWriter, r *http.Request) {
	requestID := requestctx.GetRequestID(r.Context())

	updates, err := h.Service.ListUpdates(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "db_error", "failed to list updates", requestID)
		return
	}
	api.Success(w, updates, requestID)
}

func (h *Handler) HandleListCategories(w http.ResponseWriter, r *http.Request) {
	requestID := requestctx.GetRequestID(r.Context())

	categories, err := h.Service.ListCategories(r.Context())
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "db_error", "failed to list categories", requestID)
		return
	}
	api.Success(w, categories, requestID)
}

type categoryRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (h *Handler) HandleCreateCategory(w http.ResponseWriter, r *http.Request) {
	requestID := requestctx.GetRequestID(r.Context())
	user, _ := middleware.GetUser(r.Context())

	var payload categoryRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", requestID)
		return
	}

	v := shared.NewValidator()
	v.Required("name", payload.Name, "name is required")
	if v.Reject(w, requestID) {
		return
	}

	id, err := h.Service.CreateCategory(r.Context(), strings.TrimSpace(payload.Name), payload.Description)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "db_error", "failed to create category", requestID)
		return
	}

	h.Audit.Record(r.Context(), user.UserID, "kpi_category.create", "kpi_category", id, payload.Name)
	api.Created(w, map[string]string{"id": id}, requestID)
}

func (h *Handler) HandleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	requestID := requestctx.GetRequestID(r.Context())
	user, _ := middleware.GetUser(r.Context())
	categoryID := chi.URLParam(r, "id")

	var payload categoryRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", requestID)
		return
	}

	v := shared.NewValidator()
	v.Required("name", payload.Name, "name is required")
	if v.Reject(w, requestID) {
		return
	}

	err := h.Service.UpdateCategory(r.Context(), categoryID, strings.TrimSpace(payload.Name), payload.Description)
	if errors.Is(err, kpi.ErrNotFound) {
		api.Fail(w, http.StatusNotFound, "not_found", "category not found", requestID)
		return
	}
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "db_error", "failed to update category", requestID)
		return
	}

	h.Audit.Record(r.Context(), user.UserID, "kpi_category.update", "kpi_category", categoryID, "")
	api.Success(w, map[string]string{"status": "updated"}, requestID)
}

func (h *Handler) HandleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	requestID := requestctx.GetRequestID(r.Context())
	user, _ := middleware.GetUser(r.Context())
	categoryID := chi.URLParam(r, "id")

	err := h.Service.DeleteCategory(r.Context(), categoryID)
	if errors.Is(err, kpi.ErrNotFound) {
		api.Fail(w, http.StatusNotFound, "not_found", "category not found", requestID)
		return
	}
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "db_error", "failed to delete category", requestID)
		return
	}

	h.Audit.Record(r.Context(), user.UserID, "kpi_category.delete", "kpi_category", categoryID, "")
	api.Success(w, map[string]string{"status": "deleted"}, requestID)
}

// HandleAnalyticsSummary rolls up totals for dashboards. Employees get
// their own numbers; team viewers may pass userId to inspect one person.
func (h *Handler) HandleAnalyticsSummary(w http.ResponseWriter, r *http.Request) {
	requestID := requestctx.GetRequestID(r.Context())
	user, _ := middleware.GetUser(r.Context())

	userID := r.URL.Query().Get("userId")
	if !auth.ResolveCapabilities(user.Roles).ViewTeam {
		userID = user.UserID
	}

	summary, err := h.Service.AnalyticsSummary(r.Context(), userID)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "db_error", "failed to build summary", requestID)
		return
	}
	api.Success(w, summary, requestID)
}
