package incidents

import (
	"encoding/json"
	"net/http"

	"github.com/bissquit/incident-tracker/internal/domain"
	"github.com/bissquit/incident-tracker/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// SortSpec lists the sort fields accepted by the incident listing.
var SortSpec = httputil.SortSpec{
	Fields: map[string]string{
		"title":             "title",
		"priority":          "priority",
		"status":            "status",
		"responsible_email": "responsible_email",
		"responsibleEmail":  "responsible_email",
		"created_at":        "created_at",
		"createdAt":         "created_at",
		"updated_at":        "updated_at",
		"updatedAt":         "updated_at",
	},
	DefaultBy:  "created_at",
	DefaultDir: domain.SortDesc,
}

var errorMappings = []httputil.ErrorMapping{
	{Error: ErrIncidentNotFound, Status: http.StatusNotFound},
	{Error: ErrInvalidStatus, Status: http.StatusBadRequest},
	{Error: ErrInvalidPriority, Status: http.StatusBadRequest},
	{Error: ErrTooManyTags, Status: http.StatusBadRequest},
}

// Handler handles HTTP requests for the incidents module.
type Handler struct {
	service   *Service
	validator *validator.Validate
}

// NewHandler creates a new incidents handler.
func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: httputil.NewValidator(),
	}
}

// RegisterRoutes registers routes available to any authenticated user.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/incidents", h.List)
	r.Post("/incidents", h.Create)
	r.Get("/incidents/{id}", h.Get)
	r.Put("/incidents/{id}", h.Update)
	r.Patch("/incidents/{id}/status", h.UpdateStatus)

	r.Get("/stats", h.Stats)
	r.Get("/stats/incidents", h.Stats)
}

// RegisterAdminRoutes registers routes that require the admin role.
func (h *Handler) RegisterAdminRoutes(r chi.Router) {
	r.Delete("/incidents/{id}", h.Delete)
}

// CreateIncidentRequest represents the request body for creating an incident.
type CreateIncidentRequest struct {
	Title            string   `json:"title" validate:"required,min=5,max=120"`
	Description      string   `json:"description" validate:"max=5000"`
	Priority         string   `json:"priority" validate:"required,oneof=LOW MEDIUM HIGH"`
	Status           string   `json:"status" validate:"omitempty,oneof=OPEN IN_PROGRESS RESOLVED"`
	ResponsibleEmail string   `json:"responsible_email" validate:"required,email,max=255"`
	Tags             []string `json:"tags" validate:"omitempty,dive,max=50"`
}

// ToInput converts the request to service input.
func (r *CreateIncidentRequest) ToInput() Input {
	return Input{
		Title:            r.Title,
		Description:      r.Description,
		Priority:         domain.IncidentPriority(r.Priority),
		Status:           domain.IncidentStatus(r.Status),
		ResponsibleEmail: r.ResponsibleEmail,
		Tags:             r.Tags,
	}
}

// UpdateIncidentRequest represents the request body for replacing an incident.
type UpdateIncidentRequest struct {
	Title            string   `json:"title" validate:"required,min=5,max=120"`
	Description      string   `json:"description" validate:"max=5000"`
	Priority         string   `json:"priority" validate:"required,oneof=LOW MEDIUM HIGH"`
	Status           string   `json:"status" validate:"required,oneof=OPEN IN_PROGRESS RESOLVED"`
	ResponsibleEmail string   `json:"responsible_email" validate:"required,email,max=255"`
	Tags             []string `json:"tags" validate:"omitempty,dive,max=50"`
}

// ToInput converts the request to service input.
func (r *UpdateIncidentRequest) ToInput() Input {
	return Input{
		Title:            r.Title,
		Description:      r.Description,
		Priority:         domain.IncidentPriority(r.Priority),
		Status:           domain.IncidentStatus(r.Status),
		ResponsibleEmail: r.ResponsibleEmail,
		Tags:             r.Tags,
	}
}

// UpdateStatusRequest represents the request body for changing the status.
type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=OPEN IN_PROGRESS RESOLVED"`
}

// List handles GET /incidents request.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	page, err := httputil.ParsePageRequest(r, SortSpec)
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	q := r.URL.Query()
	filter := Filter{}
	if v := q.Get("status"); v != "" {
		status := domain.IncidentStatus(v)
		filter.Status = &status
	}
	if v := q.Get("priority"); v != "" {
		priority := domain.IncidentPriority(v)
		filter.Priority = &priority
	}
	if q.Has("q") {
		term := q.Get("q")
		filter.Query = &term
	}

	result, err := h.service.List(r.Context(), filter, page)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, result)
}

// Get handles GET /incidents/{id} request.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := incidentID(w, r)
	if !ok {
		return
	}

	incident, err := h.service.Get(r.Context(), id)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, incident)
}

// Create handles POST /incidents request.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateIncidentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	incident, err := h.service.Create(r.Context(), req.ToInput())
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusCreated, incident)
}

// Update handles PUT /incidents/{id} request.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := incidentID(w, r)
	if !ok {
		return
	}

	var req UpdateIncidentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	incident, err := h.service.Update(r.Context(), id, req.ToInput())
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, incident)
}

// UpdateStatus handles PATCH /incidents/{id}/status request.
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := incidentID(w, r)
	if !ok {
		return
	}

	var req UpdateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	incident, err := h.service.UpdateStatus(r.Context(), id, domain.IncidentStatus(req.Status))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, incident)
}

// Delete handles DELETE /incidents/{id} request.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := incidentID(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), id); err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Stats handles GET /stats request.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, stats)
}

func incidentID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid incident id")
		return "", false
	}
	return id, true
}
