package deployment

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/jmoiron/sqlx"

	"github.com/wisbric/launchpad/internal/httpserver"
	"github.com/wisbric/launchpad/pkg/job"
)

// Handler provides HTTP handlers for the deployments API.
type Handler struct {
	svc    *Service
	jobs   *job.Store
	logger *slog.Logger
}

// NewHandler creates a deployment Handler.
func NewHandler(db *sqlx.DB, logger *slog.Logger) *Handler {
	return &Handler{svc: NewService(db, logger), jobs: job.NewStore(db), logger: logger}
}

// Routes returns a chi.Router with all deployment routes mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.handleCreate)
	r.Get("/", h.handleList)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.handleGet)
		r.Put("/", h.handleUpdate)
		r.Delete("/", h.handleDelete)
		r.Get("/jobs", h.handleListJobs)
	})
	return r
}

func queryUserID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(r.URL.Query().Get("user_id"), 10, 64)
	return id
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if !httpserver.DecodeJSON(w, r, &req) {
		return
	}
	d, err := h.svc.Create(r.Context(), req)
	if err != nil {
		httpserver.RespondDomainError(w, h.logger, err)
		return
	}
	httpserver.Respond(w, http.StatusCreated, d)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	userID := queryUserID(r)
	if userID == 0 {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "user_id query parameter is required")
		return
	}
	items, err := h.svc.List(r.Context(), userID)
	if err != nil {
		httpserver.RespondDomainError(w, h.logger, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, items)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid deployment ID")
		return
	}
	d, err := h.svc.Get(r.Context(), id, queryUserID(r))
	if err != nil {
		httpserver.RespondDomainError(w, h.logger, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, d)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid deployment ID")
		return
	}
	var req UpdateRequest
	if !httpserver.DecodeJSON(w, r, &req) {
		return
	}
	req.ID = id
	d, err := h.svc.Update(r.Context(), req)
	if err != nil {
		httpserver.RespondDomainError(w, h.logger, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, d)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid deployment ID")
		return
	}
	d, err := h.svc.Delete(r.Context(), id, queryUserID(r))
	if err != nil {
		httpserver.RespondDomainError(w, h.logger, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, d)
}

func (h *Handler) handleListJobs(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid deployment ID")
		return
	}
	items, err := h.jobs.List(r.Context(), r.URL.Query().Get("status"), id, 100)
	if err != nil {
		httpserver.RespondDomainError(w, h.logger, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, items)
}
