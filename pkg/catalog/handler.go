package catalog

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/jmoiron/sqlx"

	"github.com/wisbric/launchpad/internal/httpserver"
)

// Handler provides HTTP handlers for the products and templates API.
type Handler struct {
	svc    *Service
	logger *slog.Logger
}

// NewHandler creates a catalog Handler.
func NewHandler(db *sqlx.DB, logger *slog.Logger) *Handler {
	return &Handler{svc: NewService(db, logger), logger: logger}
}

// Routes returns a chi.Router with all catalog routes mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.handleCreateProduct)
	r.Get("/", h.handleListProducts)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.handleGetProduct)
		r.Put("/", h.handleUpdateProduct)
		r.Delete("/", h.handleDeleteProduct)
		r.Route("/templates", func(r chi.Router) {
			r.Post("/", h.handleCreateTemplate)
			r.Get("/", h.handleListTemplates)
			r.Get("/{templateID}", h.handleGetTemplate)
			r.Delete("/{templateID}", h.handleDeleteTemplate)
		})
	})
	return r
}

func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	return id, err == nil
}

func (h *Handler) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req CreateProductRequest
	if !httpserver.DecodeJSON(w, r, &req) {
		return
	}
	p, err := h.svc.CreateProduct(r.Context(), req)
	if err != nil {
		httpserver.RespondDomainError(w, h.logger, err)
		return
	}
	httpserver.Respond(w, http.StatusCreated, p)
}

func (h *Handler) handleListProducts(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.ListProducts(r.Context())
	if err != nil {
		httpserver.RespondDomainError(w, h.logger, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, items)
}

func (h *Handler) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid product ID")
		return
	}
	p, err := h.svc.GetProduct(r.Context(), id)
	if err != nil {
		httpserver.RespondDomainError(w, h.logger, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, p)
}

func (h *Handler) handleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid product ID")
		return
	}
	var req UpdateProductRequest
	if !httpserver.DecodeJSON(w, r, &req) {
		return
	}
	p, err := h.svc.UpdateProduct(r.Context(), id, req)
	if err != nil {
		httpserver.RespondDomainError(w, h.logger, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, p)
}

func (h *Handler) handleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid product ID")
		return
	}
	if err := h.svc.DeleteProduct(r.Context(), id); err != nil {
		httpserver.RespondDomainError(w, h.logger, err)
		return
	}
	httpserver.Respond(w, http.StatusNoContent, nil)
}

func (h *Handler) handleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid product ID")
		return
	}
	var req CreateTemplateRequest
	if !httpserver.DecodeJSON(w, r, &req) {
		return
	}
	req.ProductID = id
	tv, err := h.svc.CreateTemplate(r.Context(), req)
	if err != nil {
		httpserver.RespondDomainError(w, h.logger, err)
		return
	}
	httpserver.Respond(w, http.StatusCreated, tv)
}

func (h *Handler) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid product ID")
		return
	}
	items, err := h.svc.ListTemplates(r.Context(), id)
	if err != nil {
		httpserver.RespondDomainError(w, h.logger, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, items)
}

func (h *Handler) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	templateID, ok2 := pathID(r, "templateID")
	if !ok || !ok2 {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid ID")
		return
	}
	tv, err := h.svc.GetTemplate(r.Context(), id, templateID)
	if err != nil {
		httpserver.RespondDomainError(w, h.logger, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, tv)
}

func (h *Handler) handleDeleteTemplate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	templateID, ok2 := pathID(r, "templateID")
	if !ok || !ok2 {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid ID")
		return
	}
	if err := h.svc.DeleteTemplate(r.Context(), id, templateID); err != nil {
		httpserver.RespondDomainError(w, h.logger, err)
		return
	}
	httpserver.Respond(w, http.StatusNoContent, nil)
}
