package directoryhandler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"loophr/internal/domain/audit"
	"loophr/internal/domain/auth"
	"loophr/internal/domain/directory"
	"loophr/internal/platform/requestctx"
	"loophr/internal/transport/http/api"
	"loophr/internal/transport/http/middleware"
	"loophr/internal/transport/http/shared"
)

type Handler struct {
	Store *directory.Store
	Audit *audit.Service
}

func NewHandler(store *directory.Store, auditor *audit.Service) *Handler {
	return &Handler{Store: store, Audit: auditor}
}

func (h *Handler) HandleListUsers(w http.ResponseWriter, r *http.Request) {
	requestID := requestctx.GetRequestID(r.Context())
	q := r.URL.Query()

	filter := directory.UserFilter{
		Role:         strings.ToLower(q.Get("role")),
		DepartmentID: q.Get("departmentId"),
		Status:       q.Get("status"),
		Search:       q.Get("search"),
	}
	page := shared.ParsePagination(r, 50, 200)

	result, err := h.Store.ListUsers(r.Context(), filter, page.Limit, page.Offset)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "db_error", "failed to list users", requestID)
		return
	}

	w.Header().Set("X-Total", strconv.Itoa(result.Total))
	api.Success(w, map[string]any{"users": result.Users, "total": result.Total}, requestID)
}

func (h *Handler) HandleGetUser(w http.ResponseWriter, r *http.Request) {
	requestID := requestctx.GetRequestID(r.Context())

	user, err := h.Store.GetUser(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, directory.ErrNotFound) {
		api.Fail(w, http.StatusNotFound, "not_found", "user not found", requestID)
		return
	}
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "db_error", "failed to load user", requestID)
		return
	}
	api.Success(w, user, requestID)
}

// HandleListManagers backs the recipient picker; anyone authenticated may
// see who can receive manager and upward feedback.
func (h *Handler) HandleListManagers(w http.ResponseWriter, r *http.Request) {
	requestID := requestctx.GetRequestID(r.Context())

	managers, err := h.Store.ListManagers(r.Context(), r.URL.Query().Get("search"))
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "db_error", "failed to list managers", requestID)
		return
	}
	api.Success(w, managers, requestID)
}

func (h *Handler) HandleDepartmentNames(w http.ResponseWriter, r *http.Request) {
	requestID := requestctx.GetRequestID(r.Context())

	names, err := h.Store.DepartmentNamesInUse(r.Context())
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "db_error", "failed to list departments", requestID)
		return
	}
	api.Success(w, names, requestID)
}

func (h *Handler) HandleUsersByDepartment(w http.ResponseWriter, r *http.Request) {
	requestID := requestctx.GetRequestID(r.Context())

	users, err := h.Store.ListUsersByDepartmentName(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "db_error", "failed to list department users", requestID)
		return
	}
	api.Success(w, users, requestID)
}

type createUserRequest struct {
	Name         string   `json:"name"`
	Email        string   `json:"email"`
	Password     string   `json:"password"`
	Roles        []string `json:"roles"`
	DepartmentID string   `json:"departmentId"`
	Position     string   `json:"position"`
	ManagerID    string   `json:"managerId"`
}

func (h *Handler) HandleCreateUser(w http.ResponseWriter, r *http.Request) {
	requestID := requestctx.GetRequestID(r.Context())
	actor, _ := middleware.GetUser(r.Context())

	var payload createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", requestID)
		return
	}

	v := shared.NewValidator()
	v.Required("name", payload.Name, "name is required")
	v.Required("email", payload.Email, "email is required")
	if len(payload.Password) < 8 {
		v.Add("password", "must be at least 8 characters")
	}
	roles := auth.NormalizeRoles(payload.Roles)
	if len(roles) == 0 {
		roles = []string{auth.RoleEmployee}
	}
	if v.Reject(w, requestID) {
		return
	}

	hash, err := auth.HashPassword(payload.Password)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "hash_error", "failed to hash password", requestID)
		return
	}

	id, err := h.Store.CreateUser(r.Context(), directory.CreateUserInput{
		Name:         strings.TrimSpace(payload.Name),
		Email:        strings.ToLower(strings.TrimSpace(payload.Email)),
		PasswordHash: hash,
		Roles:        roles,
		DepartmentID: payload.DepartmentID,
		Position:     payload.Position,
		ManagerID:    payload.ManagerID,
	})
	if errors.Is(err, directory.ErrDuplicateEmail) {
		api.Fail(w, http.StatusConflict, "email_taken", "email already registered", requestID)
		return
	}
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "db_error", "failed to create user", requestID)
		return
	}

	created, err := h.Store.GetUser(r.Context(), id)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "db_error", "failed to load created user", requestID)
		return
	}

	h.Audit.Record(r.Context(), actor.UserID, "user.create", "user", id, created.Email)
	api.Created(w, created, requestID)
}

type updateUserRequest struct {
	Name         *string  `json:"name"`
	Email        *string  `json:"email"`
	Roles        []string `json:"roles"`
	DepartmentID *string  `json:"departmentId"`
	Position     *string  `json:"position"`
	ManagerID    *string  `json:"managerId"`
	Status       *string  `json:"status"`
}

func (h *Handler) HandleUpdateUser(w http.ResponseWriter, r *http.Request) {
	requestID := requestctx.GetRequestID(r.Context())
	actor, _ := middleware.GetUser(r.Context())
	userID := chi.URLParam(r, "id")

	var payload updateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", requestID)
		return
	}

	input := directory.UpdateUserInput{
		Name:         payload.Name,
		Email:        payload.Email,
		DepartmentID: payload.DepartmentID,
		Position:     payload.Position,
		ManagerID:    payload.ManagerID,
	}
	if payload.Roles != nil {
		roles := auth.NormalizeRoles(payload.Roles)
		if len(roles) == 0 {
			api.Fail(w, http.StatusBadRequest, "invalid_roles", "at least one known role is required", requestID)
			return
		}
		input.Roles = roles
	}
	if payload.Status != nil {
		if *payload.Status != directory.UserStatusActive && *payload.Status != directory.UserStatusInactive {
			api.Fail(w, http.StatusBadRequest, "invalid_status", "status must be active or inactive", requestID)
			return
		}
		input.Status = payload.Status
	}

	user, err := h.Store.UpdateUser(r.Context(), userID, input)
	if errors.Is(err, directory.ErrNotFound) {
		api.Fail(w, http.StatusNotFound, "not_found", "user not found", requestID)
		return
	}
	if errors.Is(err, directory.ErrDuplicateEmail) {
		api.Fail(w, http.StatusConflict, "email_taken", "email already registered", requestID)
		return
	}
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "db_error", "failed to update user", requestID)
		return
	}

	h.Audit.Record(r.Context(), actor.UserID, "user.update", "user", userID, "")
	api.Success(w, user, requestID)
}

// HandleDeleteUser soft deletes; the row survives so past feedback and
// KPIs keep their references.
func (h *Handler) HandleDeleteUser(w http.ResponseWriter, r *http.Request) {
	requestID := requestctx.GetRequestID(r.Context())
	actor, _ := middleware.GetUser(r.Context())
	userID := chi.URLParam(r, "id")

	if userID == actor.UserID {
		api.Fail(w, http.StatusBadRequest, "self_delete", "cannot deactivate your own account", requestID)
		return
	}

	err := h.Store.DeactivateUser(r.Context(), userID)
	if errors.Is(err, directory.ErrNotFound) {
		api.Fail(w, http.StatusNotFound, "not_found", "user not found", requestID)
		return
	}
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "db_error", "failed to deactivate user", requestID)
		return
	}

	h.Audit.Record(r.Context(), actor.UserID, "user.deactivate", "user", userID, "")
	api.Success(w, map[string]string{"status": "deactivated"}, requestID)
}

func (h *Handler) HandleListDepartments(w http.ResponseWriter, r *http.Request) {
	requestID := requestctx.GetRequestID(r.Context())

	departments, err := h.Store.ListDepartments(r.Context())
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "db_error", "failed to list departments", requestID)
		return
	}
	api.Success(w, departments, requestID)
}

func (h *Handler) HandleGetDepartment(w http.ResponseWriter, r *http.Request) {
	requestID := requestctx.GetRequestID(r.Context())

	department, err := h.Store.GetDepartment(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, directory.ErrNotFound) {
		api.Fail(w, http.StatusNotFound, "not_found", "department not found", requestID)
		return
	}
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "db_error", "failed to load department", requestID)
		return
	}
	api.Success(w, department, requestID)
}

type departmentRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	ManagerID   string `json:"managerId"`
}

func (h *Handler) HandleCreateDepartment(w http.ResponseWriter, r *http.Request) {
	requestID := requestctx.GetRequestID(r.Context())
	actor, _ := middleware.GetUser(r.Context())

	var payload departmentRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", requestID)
		return
	}

	v := shared.NewValidator()
	v.Required("name", payload.Name, "name is required")
	if v.Reject(w, requestID) {
		return
	}

	id, err := h.Store.CreateDepartment(r.Context(), strings.TrimSpace(payload.Name), payload.Description, payload.ManagerID)
	if errors.Is(err, directory.ErrDuplicateName) {
		api.Fail(w, http.StatusConflict, "name_taken", "department name already exists", requestID)
		return
	}
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "db_error", "failed to create department", requestID)
		return
	}

	department, err := h.Store.GetDepartment(r.Context(), id)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "db_error", "failed to load created department", requestID)
		return
	}

	h.Audit.Record(r.Context(), actor.UserID, "department.create", "department", department.ID, department.Name)
	api.Created(w, department, requestID)
}

func (h *Handler) HandleUpdateDepartment(w http.ResponseWriter, r *http.Request) {
	requestID := requestctx.GetRequestID(r.Context())
	actor, _ := middleware.GetUser(r.Context())
	departmentID := chi.URLParam(r, "id")

	var payload departmentRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", requestID)
		return
	}

	v := shared.NewValidator()
	v.Required("name", payload.Name, "name is required")
	if v.Reject(w, requestID) {
		return
	}

	department, err := h.Store.UpdateDepartment(r.Context(), departmentID, strings.TrimSpace(payload.Name), payload.Description, payload.ManagerID)
	if errors.Is(err, directory.ErrNotFound) {
		api.Fail(w, http.StatusNotFound, "not_found", "department not found", requestID)
		return
	}
	if errors.Is(err, directory.ErrDuplicateName) {
		api.Fail(w, http.StatusConflict, "name_taken", "department name already exists", requestID)
		return
	}
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "db_error", "failed to update department", requestID)
		return
	}

	h.Audit.Record(r.Context(), actor.UserID, "department.update", "department", departmentID, "")
	api.Success(w, department, requestID)
}

func (h *Handler) HandleDeleteDepartment(w http.ResponseWriter, r *http.Request) {
	requestID := requestctx.GetRequestID(r.Context())
	actor, _ := middleware.GetUser(r.Context())
	departmentID := chi.URLParam(r, "id")

	err := h.Store.DeleteDepartment(r.Context(), departmentID)
	if errors.Is(err, directory.ErrNotFound) {
		api.Fail(w, http.StatusNotFound, "not_found", "department not found", requestID)
		return
	}
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "db_error", "failed to delete department", requestID)
		return
	}

	h.Audit.Record(r.Context(), actor.UserID, "department.delete", "department", departmentID, "")
	api.Success(w, map[string]string{"status": "deleted"}, requestID)
}
