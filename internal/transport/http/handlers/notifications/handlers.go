package notificationshandler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"loophr/internal/domain/notifications"
	"loophr/internal/platform/requestctx"
	"loophr/internal/transport/http/api"
	"loophr/internal/transport/http/middleware"
)

type Handler struct {
	Service *notifications.Service
}

func NewHandler(service *notifications.Service) *Handler {
	return &Handler{Service: service}
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	requestID := requestctx.GetRequestID(r.Context())
	user, _ := middleware.GetUser(r.Context())

	list, err := h.Service.List(r.Context(), user.UserID, r.URL.Query().Get("unread") == "true")
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "db_error", "failed to list notifications", requestID)
		return
	}
	api.Success(w, list, requestID)
}

func (h *Handler) HandleMarkRead(w http.ResponseWriter, r *http.Request) {
	requestID := requestctx.GetRequestID(r.Context())
	user, _ := middleware.GetUser(r.Context())

	if err := h.Service.MarkRead(r.Context(), chi.URLParam(r, "id"), user.UserID); err != nil {
		api.Fail(w, http.StatusInternalServerError, "db_error", "failed to mark notification read", requestID)
		return
	}
	api.Success(w, map[string]string{"status": "read"}, requestID)
}

func (h *Handler) HandleMarkAllRead(w http.ResponseWriter, r *http.Request) {
	requestID := requestctx.GetRequestID(r.Context())
	user, _ := middleware.GetUser(r.Context())

	if err := h.Service.MarkAllRead(r.Context(), user.UserID); err != nil {
		api.Fail(w, http.StatusInternalServerError, "db_error", "failed to mark notifications read", requestID)
		return
	}
	api.Success(w, map[string]string{"status": "read"}, requestID)
}
