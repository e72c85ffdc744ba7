package feedbackhandler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"loophr/internal/domain/audit"
	"loophr/internal/domain/auth"
	"loophr/internal/domain/directory"
	"loophr/internal/domain/feedback"
	"loophr/internal/domain/notifications"
	"loophr/internal/platform/requestctx"
	"loophr/internal/transport/http/api"
	"loophr/internal/transport/http/middleware"
	"loophr/internal/transport/http/shared"
)

type Handler struct {
	Service   *feedback.Service
	Directory *directory.Store
	Notifier  *notifications.Service
	Audit     *audit.Service
}

func NewHandler(service *feedback.Service, dir *directory.Store, notifier *notifications.Service, auditor *audit.Service) *Handler {
	return &Handler{Service: service, Directory: dir, Notifier: notifier, Audit: auditor}
}

func isAdmin(user auth.UserContext) bool {
	for _, role := range user.Roles {
		if role == auth.RoleAdmin {
			return true
		}
	}
	return false
}

type createRequestPayload struct {
	RecipientID    string `json:"recipientId"`
	Type           string `json:"type"`
	Message        string `json:"message"`
	DueDate        string `json:"dueDate"`
	IsAnonymous    bool   `json:"isAnonymous"`
	CycleID        string `json:"cycleId"`
	SelfAssessment bool   `json:"selfAssessment"`
}

func (h *Handler) HandleCreateRequest(w http.ResponseWriter, r *http.Request) {
	requestID := requestctx.GetRequestID(r.Context())
	user, _ := middleware.GetUser(r.Context())

	var payload createRequestPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", requestID)
		return
	}

	dueDate, err := shared.ParseDate(strings.TrimSpace(payload.DueDate))
	if err != nil {
		shared.FailValidation(w, requestID, []shared.ValidationIssue{{Field: "dueDate", Reason: "must be a valid date in YYYY-MM-DD format"}})
		return
	}

	prepared, fieldErrors := feedback.PrepareRequest(user.UserID, feedback.RequestInput{
		RecipientID:    payload.RecipientID,
		Type:           strings.ToLower(strings.TrimSpace(payload.Type)),
		Message:        payload.Message,
		DueDate:        dueDate,
		IsAnonymous:    payload.IsAnonymous,
		CycleID:        payload.CycleID,
		SelfAssessment: payload.SelfAssessment,
	}, time.Now())
	if fieldErrors != nil {
		issues := make([]shared.ValidationIssue, 0, len(fieldErrors))
		for field, reason := range fieldErrors {
			issues = append(issues, shared.ValidationIssue{Field: field, Reason: reason})
		}
		shared.FailValidation(w, requestID, issues)
		return
	}

	created, err := h.Service.CreateRequest(r.Context(), prepared)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "db_error", "failed to create request", requestID)
		return
	}

	h.notifyAdmins(r, notifications.TypeRequestSubmitted, "Feedback request awaiting approval",
		created.RequesterName+" requested "+created.Type+" feedback")
	h.Audit.Record(r.Context(), user.UserID, "feedback_request.create", "feedback_request", created.ID, created.Type)
	api.Created(w, created, requestID)
}

// notifyAdmins fans a notification out to every admin. Best effort like the
// notifier itself.
func (h *Handler) notifyAdmins(r *http.Request, kind, title, body string) {
	result, err := h.Directory.ListUsers(r.Context(), directory.UserFilter{
		Role:   auth.RoleAdmin,
		Status: directory.UserStatusActive,
	}, 100, 0)
	if err != nil {
		return
	}
	for _, admin := range result.Users {
		h.Notifier.Notify(r.Context(), admin.ID, kind, title, body)
	}
}

func (h *Handler) HandleListRequests(w http.ResponseWriter, r *http.Request) {
	requestID := requestctx.GetRequestID(r.Context())
	user, _ := middleware.GetUser(r.Context())
	q := r.URL.Query()

	filter := feedback.RequestFilter{
		Status:  strings.ToLower(q.Get("status")),
		Type:    strings.ToLower(q.Get("type")),
		CycleID: q.Get("cycleId"),
	}

	// Non-admins only see requests they are a party to. The view parameter
	// picks which side; default is everything involving them as requester.
	if isAdmin(user) {
		filter.RequesterID = q.Get("requesterId")
		filter.RecipientID = q.Get("recipientId")
		filter.SubjectID = q.Get("subjectId")
	} else {
		switch q.Get("view") {
		case "inbox":
			filter.RecipientID = user.UserID
		case "about-me":
			filter.SubjectID = user.UserID
		default:
			filter.RequesterID = user.UserID
		}
	}

	requests, err := h.Service.ListRequests(r.Context(), filter)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "db_error", "failed to list requests", requestID)
		return
	}
	api.Success(w, requests, requestID)
}

// HandleActionableRequests is the recipient's work queue: approved requests
// they still owe feedback on. Expired ones have dropped out by definition.
func (h *Handler) HandleActionableRequests(w http.ResponseWriter, r *http.Request) {
	requestID := requestctx.GetRequestID(r.Context())
	user, _ := middleware.GetUser(r.Context())

	requests, err := h.Service.ListRequests(r.Context(), feedback.RequestFilter{
		RecipientID: user.UserID,
		Status:      feedback.RequestStatusCompleted,
	})
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "db_error", "failed to list requests", requestID)
		return
	}
	api.Success(w, requests, requestID)
}

func (h *Handler) requestVisible(req feedback.Request, user auth.UserContext) bool {
	if isAdmin(user) {
		return true
	}
	return req.RequesterID == user.UserID || req.RecipientID == user.UserID || req.SubjectID == user.UserID
}

func (h *Handler) HandleGetRequest(w http.ResponseWriter, r *http.Request) {
	requestID := requestctx.GetRequestID(r.Context())
	user, _ := middleware.GetUser(r.Context())

	req, err := h.Service.GetRequest(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, feedback.ErrNotFound) {
		api.Fail(w, http.StatusNotFound, "not_found", "request not found", requestID)
		return
	}
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "db_error", "failed to load request", requestID)
		return
	}
	if !h.requestVisible(req, user) {
		api.Fail(w, http.StatusNotFound, "not_found", "request not found", requestID)
		return
	}
	api.Success(w, req, requestID)
}

type updateRequestPayload struct {
	RecipientID *string `json:"recipientId"`
	Type        *string `json:"type"`
	Message     *string `json:"message"`
	DueDate     *string `json:"dueDate"`
	IsAnonymous *bool   `json:"isAnonymous"`
	Status      *string `json:"status"`
}

func (h *Handler) HandleUpdateRequest(w http.ResponseWriter, r *http.Request) {
	requestID := requestctx.GetRequestID(r.Context())
	user, _ := middleware.GetUser(r.Context())

	var payload updateRequestPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", requestID)
		return
	}

	// A status change is the admin decision surface, not a requester edit.
	if payload.Status != nil {
		to := strings.ToLower(strings.TrimSpace(*payload.Status))
		if to != feedback.RequestStatusCompleted && to != feedback.RequestStatusDeclined {
			shared.FailValidation(w, requestID, []shared.ValidationIssue{{Field: "status", Reason: "must be completed or declined"}})
			return
		}
		if !auth.ResolveCapabilities(user.Roles).ApproveRequests {
			api.Fail(w, http.StatusForbidden, "forbidden", "insufficient permissions", requestID)
			return
		}
		h.decide(w, r, to == feedback.RequestStatusCompleted)
		return
	}

	input := feedback.RequestUpdate{
		RecipientID: payload.RecipientID,
		Message:     payload.Message,
		IsAnonymous: payload.IsAnonymous,
	}
	if payload.Type != nil {
		normalized := strings.ToLower(strings.TrimSpace(*payload.Type))
		if !feedback.ValidTypes[normalized] {
			shared.FailValidation(w, requestID, []shared.ValidationIssue{{Field: "type", Reason: "must be one of peer, manager, self, upward, 360"}})
			return
		}
		input.Type = &normalized
	}
	if payload.DueDate != nil {
		parsed, err := shared.ParseDate(strings.TrimSpace(*payload.DueDate))
		if err != nil || !parsed.After(time.Now()) {
			shared.FailValidation(w, requestID, []shared.ValidationIssue{{Field: "dueDate", Reason: "must be a future date"}})
			return
		}
		input.DueDate = &parsed
	}

	updated, err := h.Service.UpdateRequest(r.Context(), chi.URLParam(r, "id"), user.UserID, input)
	switch {
	case errors.Is(err, feedback.ErrNotFound):
		api.Fail(w, http.StatusNotFound, "not_found", "request not found", requestID)
		return
	case errors.Is(err, feedback.ErrForbidden):
		api.Fail(w, http.StatusForbidden, "forbidden", "only the requester may edit a request", requestID)
		return
	case errors.Is(err, feedback.ErrInvalidState):
		api.Fail(w, http.StatusConflict, "invalid_state", "only pending requests can be edited", requestID)
		return
	case err != nil:
		api.Fail(w, http.StatusInternalServerError, "db_error", "failed to update request", requestID)
		return
	}
	api.Success(w, updated, requestID)
}

func (h *Handler) HandleDeleteRequest(w http.ResponseWriter, r *http.Request) {
	requestID := requestctx.GetRequestID(r.Context())
	user, _ := middleware.GetUser(r.Context())
	id := chi.URLParam(r, "id")

	err := h.Service.DeleteRequest(r.Context(), id, user.UserID)
	switch {
	case errors.Is(err, feedback.ErrNotFound):
		api.Fail(w, http.StatusNotFound, "not_found", "request not found", requestID)
		return
	case errors.Is(err, feedback.ErrForbidden):
		api.Fail(w, http.StatusForbidden, "forbidden", "only the requester may withdraw a request", requestID)
		return
	case errors.Is(err, feedback.ErrInvalidState):
		api.Fail(w, http.StatusConflict, "invalid_state", "only pending requests can be withdrawn", requestID)
		return
	case err != nil:
		api.Fail(w, http.StatusInternalServerError, "db_error", "failed to delete request", requestID)
		return
	}

	h.Audit.Record(r.Context(), user.UserID, "feedback_request.withdraw", "feedback_request", id, "")
	api.Success(w, map[string]string{"status": "deleted"}, requestID)
}

func (h *Handler) decide(w http.ResponseWriter, r *http.Request, approve bool) {
	requestID := requestctx.GetRequestID(r.Context())
	user, _ := middleware.GetUser(r.Context())
	id := chi.URLParam(r, "id")

	decided, err := h.Service.Decide(r.Context(), id, user.UserID, approve)
	switch {
	case errors.Is(err, feedback.ErrNotFound):
		api.Fail(w, http.StatusNotFound, "not_found", "request not found", requestID)
		return
	case errors.Is(err, feedback.ErrInvalidState):
		api.Fail(w, http.StatusConflict, "invalid_state", "request has already been decided", requestID)
		return
	case err != nil:
		api.Fail(w, http.StatusInternalServerError, "db_error", "failed to decide request", requestID)
		return
	}

	if approve {
		h.Notifier.Notify(r.Context(), decided.RecipientID, notifications.TypeRequestApproved,
			"Feedback request approved", "You have feedback to give for "+decided.SubjectName)
		h.Audit.Record(r.Context(), user.UserID, "feedback_request.approve", "feedback_request", id, "")
	} else {
		h.Notifier.Notify(r.Context(), decided.RequesterID, notifications.TypeRequestDeclined,
			"Feedback request declined", "Your "+decided.Type+" feedback request was declined")
		h.Audit.Record(r.Context(), user.UserID, "feedback_request.decline", "feedback_request", id, "")
	}
	api.Success(w, decided, requestID)
}

func (h *Handler) HandleApproveRequest(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, true)
}

func (h *Handler) HandleDeclineRequest(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, false)
}

type submitFeedbackPayload struct {
	SubjectID    string         `json:"subjectId"`
	RequestID    string         `json:"requestId"`
	CycleID      string         `json:"cycleId"`
	Type         string         `json:"type"`
	Content      string         `json:"content"`
	Strengths    string         `json:"strengths"`
	Improvements string         `json:"improvements"`
	Ratings      map[string]int `json:"ratings"`
	IsAnonymous  bool           `json:"isAnonymous"`
}

func (h *Handler) HandleSubmitFeedback(w http.ResponseWriter, r *http.Request) {
	requestID := requestctx.GetRequestID(r.Context())
	user, _ := middleware.GetUser(r.Context())

	var payload submitFeedbackPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", requestID)
		return
	}

	feedbackType := strings.ToLower(strings.TrimSpace(payload.Type))
	v := shared.NewValidator()
	v.Required("content", payload.Content, "content is required")
	if payload.RequestID == "" {
		// Free-standing feedback must say who and what kind; request-bound
		// feedback inherits both from the request.
		v.Required("subjectId", payload.SubjectID, "subjectId is required")
		if !feedback.ValidTypes[feedbackType] {
			v.Add("type", "must be one of peer, manager, self, upward, 360")
		}
	}
	if v.Reject(w, requestID) {
		return
	}

	stored, warning, err := h.Service.Submit(r.Context(), feedback.Feedback{
		AuthorID:     user.UserID,
		SubjectID:    payload.SubjectID,
		RequestID:    payload.RequestID,
		CycleID:      payload.CycleID,
		Type:         feedbackType,
		Content:      payload.Content,
		Strengths:    payload.Strengths,
		Improvements: payload.Improvements,
		Ratings:      payload.Ratings,
		IsAnonymous:  payload.IsAnonymous,
	})
	switch {
	case errors.Is(err, feedback.ErrNotFound):
		api.Fail(w, http.StatusNotFound, "not_found", "request not found", requestID)
		return
	case errors.Is(err, feedback.ErrForbidden):
		api.Fail(w, http.StatusForbidden, "forbidden", "only the recipient may answer this request", requestID)
		return
	case errors.Is(err, feedback.ErrInvalidState):
		api.Fail(w, http.StatusConflict, "invalid_state", "request is not awaiting feedback", requestID)
		return
	case err != nil:
		api.Fail(w, http.StatusInternalServerError, "db_error", "failed to submit feedback", requestID)
		return
	}

	h.Notifier.Notify(r.Context(), stored.SubjectID, notifications.TypeFeedbackReceived,
		"New feedback received", "You received new "+stored.Type+" feedback")
	h.Audit.Record(r.Context(), user.UserID, "feedback.submit", "feedback", stored.ID, stored.Type)

	// Ratings and author identity in the echo follow the reader's view.
	stored = feedback.VisibleTo(stored, user.UserID, isAdmin(user))
	if warning != "" {
		api.CreatedWithWarning(w, stored, warning, requestID)
		return
	}
	api.Created(w, stored, requestID)
}

func (h *Handler) HandleListFeedback(w http.ResponseWriter, r *http.Request) {
	requestID := requestctx.GetRequestID(r.Context())
	user, _ := middleware.GetUser(r.Context())
	q := r.URL.Query()

	filter := feedback.FeedbackFilter{
		Type:    strings.ToLower(q.Get("type")),
		CycleID: q.Get("cycleId"),
	}
	if isAdmin(user) {
		filter.SubjectID = q.Get("subjectId")
		filter.AuthorID = q.Get("authorId")
	} else if q.Get("view") == "given" {
		filter.AuthorID = user.UserID
	} else {
		filter.SubjectID = user.UserID
	}

	list, err := h.Service.ListFeedback(r.Context(), filter, user.UserID, isAdmin(user))
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "db_error", "failed to list feedback", requestID)
		return
	}
	api.Success(w, list, requestID)
}

func (h *Handler) HandleGetFeedback(w http.ResponseWriter, r *http.Request) {
	requestID := requestctx.GetRequestID(r.Context())
	user, _ := middleware.GetUser(r.Context())

	record, err := h.Service.GetFeedback(r.Context(), chi.URLParam(r, "id"), user.UserID, isAdmin(user))
	if errors.Is(err, feedback.ErrNotFound) {
		api.Fail(w, http.StatusNotFound, "not_found", "feedback not found", requestID)
		return
	}
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "db_error", "failed to load feedback", requestID)
		return
	}
	if !isAdmin(user) && record.SubjectID != user.UserID && record.AuthorID != user.UserID {
		api.Fail(w, http.StatusNotFound, "not_found", "feedback not found", requestID)
		return
	}
	api.Success(w, record, requestID)
}

type updateFeedbackPayload struct {
	Content      *string        `json:"content"`
	Strengths    *string        `json:"strengths"`
	Improvements *string        `json:"improvements"`
	Ratings      map[string]int `json:"ratings"`
	IsAnonymous  *bool          `json:"isAnonymous"`
}

func (h *Handler) HandleUpdateFeedback(w http.ResponseWriter, r *http.Request) {
	requestID := requestctx.GetRequestID(r.Context())
	user, _ := middleware.GetUser(r.Context())
	id := chi.URLParam(r, "id")

	var payload updateFeedbackPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", requestID)
		return
	}
	if payload.Content != nil && strings.TrimSpace(*payload.Content) == "" {
		shared.FailValidation(w, requestID, []shared.ValidationIssue{{Field: "content", Reason: "content is required"}})
		return
	}

	updated, err := h.Service.UpdateFeedback(r.Context(), id, user.UserID, isAdmin(user), feedback.FeedbackUpdate{
		Content:      payload.Content,
		Strengths:    payload.Strengths,
		Improvements: payload.Improvements,
		Ratings:      payload.Ratings,
		IsAnonymous:  payload.IsAnonymous,
	})
	switch {
	case errors.Is(err, feedback.ErrNotFound):
		api.Fail(w, http.StatusNotFound, "not_found", "feedback not found", requestID)
		return
	case errors.Is(err, feedback.ErrForbidden):
		api.Fail(w, http.StatusForbidden, "forbidden", "only the author or an admin may edit feedback", requestID)
		return
	case err != nil:
		api.Fail(w, http.StatusInternalServerError, "db_error", "failed to update feedback", requestID)
		return
	}

	h.Audit.Record(r.Context(), user.UserID, "feedback.update", "feedback", id, "")
	api.Success(w, updated, requestID)
}

func (h *Handler) HandleAnalyticsSummary(w http.ResponseWriter, r *http.Request) {
	requestID := requestctx.GetRequestID(r.Context())

	summary, err := h.Service.Analytics(r.Context())
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "db_error", "failed to compute analytics", requestID)
		return
	}
	api.Success(w, summary, requestID)
}

func (h *Handler) HandleAcknowledgeFeedback(w http.ResponseWriter, r *http.Request) {
	requestID := requestctx.GetRequestID(r.Context())
	user, _ := middleware.GetUser(r.Context())

	record, err := h.Service.Acknowledge(r.Context(), chi.URLParam(r, "id"), user.UserID)
	switch {
	case errors.Is(err, feedback.ErrNotFound):
		api.Fail(w, http.StatusNotFound, "not_found", "feedback not found", requestID)
		return
	case errors.Is(err, feedback.ErrForbidden):
		api.Fail(w, http.StatusForbidden, "forbidden", "only the subject may acknowledge feedback", requestID)
		return
	case errors.Is(err, feedback.ErrInvalidState):
		api.Fail(w, http.StatusConflict, "invalid_state", "feedback is not awaiting acknowledgement", requestID)
		return
	case err != nil:
		api.Fail(w, http.StatusInternalServerError, "db_error", "failed to acknowledge feedback", requestID)
		return
	}
	api.Success(w, record, requestID)
}

func (h *Handler) HandleDeleteFeedback(w http.ResponseWriter, r *http.Request) {
	requestID := requestctx.GetRequestID(r.Context())
	user, _ := middleware.GetUser(r.Context())
	id := chi.URLParam(r, "id")

	err := h.Service.DeleteFeedback(r.Context(), id, user.UserID, isAdmin(user))
	switch {
	case errors.Is(err, feedback.ErrNotFound):
		api.Fail(w, http.StatusNotFound, "not_found", "feedback not found", requestID)
		return
	case errors.Is(err, feedback.ErrForbidden):
		api.Fail(w, http.StatusForbidden, "forbidden", "only the author or an admin may delete feedback", requestID)
		return
	case err != nil:
		api.Fail(w, http.StatusInternalServerError, "db_error", "failed to delete feedback", requestID)
		return
	}

	h.Audit.Record(r.Context(), user.UserID, "feedback.delete", "feedback", id, "")
	api.Success(w, map[string]string{"status": "deleted"}, requestID)
}
