package comments

import (
	"encoding/json"
	"net/http"

	"github.com/bissquit/incident-tracker/internal/incidents"
	"github.com/bissquit/incident-tracker/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var errorMappings = []httputil.ErrorMapping{
	{Error: ErrCommentNotFound, Status: http.StatusNotFound},
	{Error: incidents.ErrIncidentNotFound, Status: http.StatusNotFound},
}

// Handler handles HTTP requests for the comments module.
type Handler struct {
	service   *Service
	validator *validator.Validate
}

// NewHandler creates a new comments handler.
func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: httputil.NewValidator(),
	}
}

// RegisterRoutes registers comment routes for authenticated users.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/incidents/{id}/comments", h.Create)
	r.Get("/incidents/{id}/comments", h.ListByIncident)
	r.Get("/incidents/{id}/comments/count", h.CountByIncident)

	r.Get("/comments/{id}", h.Get)
	r.Put("/comments/{id}", h.Update)
	r.Delete("/comments/{id}", h.Delete)
}

// CommentRequest represents the request body for creating or updating a comment.
type CommentRequest struct {
	Author  string `json:"author" validate:"required,min=2,max=255"`
	Message string `json:"message" validate:"required,min=1,max=2000"`
}

// Create handles POST /incidents/{id}/comments request.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	incidentID, ok := pathID(w, r, "invalid incident id")
	if !ok {
		return
	}

	req, ok := h.decode(w, r)
	if !ok {
		return
	}

	comment, err := h.service.Create(r.Context(), incidentID, Input{Author: req.Author, Message: req.Message})
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusCreated, comment)
}

// ListByIncident handles GET /incidents/{id}/comments request.
func (h *Handler) ListByIncident(w http.ResponseWriter, r *http.Request) {
	incidentID, ok := pathID(w, r, "invalid incident id")
	if !ok {
		return
	}

	list, err := h.service.ListByIncident(r.Context(), incidentID)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, list)
}

// CountByIncident handles GET /incidents/{id}/comments/count request.
func (h *Handler) CountByIncident(w http.ResponseWriter, r *http.Request) {
	incidentID, ok := pathID(w, r, "invalid incident id")
	if !ok {
		return
	}

	count, err := h.service.CountByIncident(r.Context(), incidentID)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, map[string]int64{"count": count})
}

// Get handles GET /comments/{id} request.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "invalid comment id")
	if !ok {
		return
	}

	comment, err := h.service.Get(r.Context(), id)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, comment)
}

// Update handles PUT /comments/{id} request.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "invalid comment id")
	if !ok {
		return
	}

	req, ok := h.decode(w, r)
	if !ok {
		return
	}

	comment, err := h.service.Update(r.Context(), id, Input{Author: req.Author, Message: req.Message})
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, comment)
}

// Delete handles DELETE /comments/{id} request.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "invalid comment id")
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), id); err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request) (*CommentRequest, bool) {
	var req CommentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return nil, false
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return nil, false
	}

	return &req, true
}

func pathID(w http.ResponseWriter, r *http.Request, message string) (string, bool) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		httputil.Error(w, http.StatusBadRequest, message)
		return "", false
	}
	return id, true
}
