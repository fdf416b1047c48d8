package user

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/jmoiron/sqlx"

	"github.com/wisbric/launchpad/internal/httpserver"
)

// Handler provides HTTP handlers for the users API.
type Handler struct {
	svc    *Service
	logger *slog.Logger
}

// NewHandler creates a user Handler.
func NewHandler(db *sqlx.DB, logger *slog.Logger) *Handler {
	return &Handler{svc: NewService(db, logger), logger: logger}
}

// Routes returns a chi.Router with all user routes mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.handleCreate)
	r.Get("/", h.handleList)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.handleGet)
		r.Delete("/", h.handleDelete)
	})
	return r
}

func idParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if !httpserver.DecodeJSON(w, r, &req) {
		return
	}
	u, err := h.svc.Create(r.Context(), req)
	if err != nil {
		httpserver.RespondDomainError(w, h.logger, err)
		return
	}
	httpserver.Respond(w, http.StatusCreated, u)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.List(r.Context())
	if err != nil {
		httpserver.RespondDomainError(w, h.logger, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, items)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid user ID")
		return
	}
	u, err := h.svc.Get(r.Context(), id)
	if err != nil {
		httpserver.RespondDomainError(w, h.logger, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, u)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid user ID")
		return
	}
	if err := h.svc.Delete(r.Context(), id); err != nil {
		httpserver.RespondDomainError(w, h.logger, err)
		return
	}
	httpserver.Respond(w, http.StatusNoContent, nil)
}
