package authhandler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"loophr/internal/domain/auth"
	"loophr/internal/domain/directory"
	"loophr/internal/platform/config"
	"loophr/internal/platform/requestctx"
	"loophr/internal/transport/http/api"
	"loophr/internal/transport/http/middleware"
	"loophr/internal/transport/http/shared"
)

type Handler struct {
	Store     *auth.Store
	Directory *directory.Store
	Cfg       config.Config
}

func NewHandler(store *auth.Store, dir *directory.Store, cfg config.Config) *Handler {
	return &Handler{Store: store, Directory: dir, Cfg: cfg}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	UserID       string `json:"userId"`
	RefreshToken string `json:"refreshToken"`
}

func sessionPayload(user auth.AuthUser, token, refreshToken string) map[string]any {
	dashboard, _ := auth.SelectDashboard(user.Roles)
	return map[string]any{
		"token":        token,
		"refreshToken": refreshToken,
		"user": map[string]any{
			"id":           user.ID,
			"name":         user.Name,
			"email":        user.Email,
			"roles":        user.Roles,
			"capabilities": auth.ResolveCapabilities(user.Roles),
			"dashboard":    dashboard,
		},
	}
}

func (h *Handler) issueSession(w http.ResponseWriter, r *http.Request, user auth.AuthUser) (map[string]any, bool) {
	requestID := requestctx.GetRequestID(r.Context())

	refreshToken, err := auth.GenerateRefreshToken()
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "token_error", "failed to issue token", requestID)
		return nil, false
	}
	if err := h.Store.CreateSession(r.Context(), user.ID, auth.HashToken(refreshToken), time.Now().Add(h.Cfg.RefreshTokenTTL)); err != nil {
		api.Fail(w, http.StatusInternalServerError, "session_error", "failed to start session", requestID)
		return nil, false
	}

	token, err := auth.GenerateToken(h.Cfg.JWTSecret, auth.Claims{
		UserID:    user.ID,
		Name:      user.Name,
		Roles:     user.Roles,
		SessionID: auth.HashToken(refreshToken),
	}, h.Cfg.AccessTokenTTL)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "token_error", "failed to issue token", requestID)
		return nil, false
	}
	return sessionPayload(user, token, refreshToken), true
}

func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	requestID := requestctx.GetRequestID(r.Context())

	var payload loginRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", requestID)
		return
	}

	user, err := h.Store.FindActiveUserByEmail(r.Context(), payload.Email)
	if err != nil {
		api.Fail(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials", requestID)
		return
	}
	if err := auth.CheckPassword(user.PasswordHash, payload.Password); err != nil {
		api.Fail(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials", requestID)
		return
	}

	data, ok := h.issueSession(w, r, user)
	if !ok {
		return
	}

	if err := h.Store.UpdateLastLogin(r.Context(), user.ID); err != nil {
		slog.Warn("update last_login failed", "userId", user.ID, "err", err)
	}

	api.Success(w, data, requestID)
}

func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	requestID := requestctx.GetRequestID(r.Context())

	if !h.Cfg.AllowSelfSignup {
		api.Fail(w, http.StatusForbidden, "signup_disabled", "self registration is disabled", requestID)
		return
	}

	var payload registerRequest
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
	if v.Reject(w, requestID) {
		return
	}

	hash, err := auth.HashPassword(payload.Password)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "hash_error", "failed to hash password", requestID)
		return
	}

	// Self registration always lands as a plain employee; elevation is an
	// admin operation.
	id, err := h.Directory.CreateUser(r.Context(), directory.CreateUserInput{
		Name:         strings.TrimSpace(payload.Name),
		Email:        strings.ToLower(strings.TrimSpace(payload.Email)),
		PasswordHash: hash,
		Roles:        []string{auth.RoleEmployee},
	})
	if errors.Is(err, directory.ErrDuplicateEmail) {
		api.Fail(w, http.StatusConflict, "email_taken", "email already registered", requestID)
		return
	}
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "db_error", "failed to create user", requestID)
		return
	}

	created, err := h.Directory.GetUser(r.Context(), id)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "db_error", "failed to load created user", requestID)
		return
	}

	data, ok := h.issueSession(w, r, auth.AuthUser{
		ID:    created.ID,
		Name:  created.Name,
		Email: created.Email,
		Roles: created.Roles,
	})
	if !ok {
		return
	}
	api.Created(w, data, requestID)
}

func (h *Handler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	requestID := requestctx.GetRequestID(r.Context())

	var payload refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", requestID)
		return
	}
	if payload.UserID == "" || payload.RefreshToken == "" {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "userId and refreshToken are required", requestID)
		return
	}

	oldHash := auth.HashToken(payload.RefreshToken)
	valid, err := h.Store.SessionValid(r.Context(), payload.UserID, oldHash)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "db_error", "failed to check session", requestID)
		return
	}
	if !valid {
		api.Fail(w, http.StatusUnauthorized, "invalid_session", "session expired or revoked", requestID)
		return
	}

	user, err := h.Directory.GetUser(r.Context(), payload.UserID)
	if err != nil {
		api.Fail(w, http.StatusUnauthorized, "invalid_session", "session expired or revoked", requestID)
		return
	}

	newRefresh, err := auth.GenerateRefreshToken()
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "token_error", "failed to issue token", requestID)
		return
	}
	newHash := auth.HashToken(newRefresh)
	if err := h.Store.RotateSession(r.Context(), payload.UserID, oldHash, newHash, time.Now().Add(h.Cfg.RefreshTokenTTL)); err != nil {
		api.Fail(w, http.StatusInternalServerError, "session_error", "failed to rotate session", requestID)
		return
	}

	token, err := auth.GenerateToken(h.Cfg.JWTSecret, auth.Claims{
		UserID:    user.ID,
		Name:      user.Name,
		Roles:     user.Roles,
		SessionID: newHash,
	}, h.Cfg.AccessTokenTTL)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "token_error", "failed to issue token", requestID)
		return
	}

	api.Success(w, sessionPayload(auth.AuthUser{
		ID:    user.ID,
		Name:  user.Name,
		Email: user.Email,
		Roles: user.Roles,
	}, token, newRefresh), requestID)
}

func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if user, ok := middleware.GetUser(r.Context()); ok && user.SessionID != "" {
		if err := h.Store.RevokeSession(r.Context(), user.UserID, user.SessionID); err != nil {
			slog.Warn("logout session revoke failed", "userId", user.UserID, "err", err)
		}
	}
	api.Success(w, map[string]string{"status": "logged_out"}, requestctx.GetRequestID(r.Context()))
}

// HandleDashboard resolves which dashboard the caller should land on. An
// empty role set stays unresolved rather than defaulting to the lowest
// privilege view.
func (h *Handler) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	requestID := requestctx.GetRequestID(r.Context())
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestID)
		return
	}

	roles, err := h.Store.UserRoles(r.Context(), user.UserID)
	if err != nil {
		api.Fail(w, http.StatusUnauthorized, "invalid_session", "account is no longer active", requestID)
		return
	}

	dashboard, resolved := auth.SelectDashboard(roles)
	api.Success(w, map[string]any{
		"dashboard":    dashboard,
		"resolved":     resolved,
		"roles":        roles,
		"capabilities": auth.ResolveCapabilities(roles),
	}, requestID)
}
