package jobs

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/inaiurai/shellmarket/internal/apperr"
	"github.com/inaiurai/shellmarket/internal/httpx"
	"github.com/inaiurai/shellmarket/internal/models"
	"github.com/inaiurai/shellmarket/internal/validate"
)

type CreateJobRequest struct {
	ServiceID   *uuid.UUID `json:"serviceId"`
	RequesterID uuid.UUID  `json:"requesterId"`
	ProviderID  uuid.UUID  `json:"providerId"`
	Amount      int64      `json:"amount"`
	Description *string    `json:"description"`
}

type DeliverJobRequest struct {
	Deliverable *string `json:"deliverable"`
}

type Handler struct {
	svc Service
	v   *validate.Validator
	log *slog.Logger
}

func NewHandler(svc Service, v *validate.Validator, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, v: v, log: log}
}

// Routes registers the job endpoints on mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /jobs", h.CreateJob)
	mux.HandleFunc("GET /jobs", h.ListJobs)
	mux.HandleFunc("GET /jobs/{id}", h.GetJob)
	mux.HandleFunc("PATCH /jobs/{id}/accept", h.AcceptJob)
	mux.HandleFunc("PATCH /jobs/{id}/deliver", h.DeliverJob)
	mux.HandleFunc("PATCH /jobs/{id}/complete", h.CompleteJob)
	mux.HandleFunc("PATCH /jobs/{id}/cancel", h.CancelJob)
}

func (h *Handler) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req CreateJobRequest
	if err := h.v.Decode(r, validate.CreateJob, &req); err != nil {
		apperr.Write(w, h.log, err)
		return
	}
	job, err := h.svc.Create(r.Context(), CreateInput{
		ServiceID:   req.ServiceID,
		RequesterID: req.RequesterID,
		ProviderID:  req.ProviderID,
		Amount:      req.Amount,
		Description: req.Description,
	})
	if err != nil {
		apperr.Write(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, job)
}

func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathUUID(r, "id", "job")
	if err != nil {
		apperr.Write(w, h.log, err)
		return
	}
	job, err := h.svc.Get(r.Context(), id)
	if err != nil {
		apperr.Write(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, job)
}

func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	var f models.JobFilter
	var err error
	if f.RequesterID, err = httpx.QueryUUID(r, "requesterId"); err != nil {
		apperr.Write(w, h.log, err)
		return
	}
	if f.ProviderID, err = httpx.QueryUUID(r, "providerId"); err != nil {
		apperr.Write(w, h.log, err)
		return
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		st, ok := models.ParseJobStatus(raw)
		if !ok {
			apperr.Write(w, h.log, apperr.Validation("status", "unknown job status"))
			return
		}
		f.Status = &st
	}
	list, err := h.svc.List(r.Context(), f)
	if err != nil {
		apperr.Write(w, h.log, err)
		return
	}
	if list == nil {
		list = []*models.Job{}
	}
	httpx.WriteJSON(w, http.StatusOK, list)
}

func (h *Handler) AcceptJob(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathUUID(r, "id", "job")
	if err != nil {
		apperr.Write(w, h.log, err)
		return
	}
	job, err := h.svc.Accept(r.Context(), id)
	if err != nil {
		apperr.Write(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, job)
}

func (h *Handler) DeliverJob(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathUUID(r, "id", "job")
	if err != nil {
		apperr.Write(w, h.log, err)
		return
	}
	var req DeliverJobRequest
	if err := h.v.Decode(r, validate.DeliverJob, &req); err != nil {
		apperr.Write(w, h.log, err)
		return
	}
	job, err := h.svc.Deliver(r.Context(), id, req.Deliverable)
	if err != nil {
		apperr.Write(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, job)
}

func (h *Handler) CompleteJob(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathUUID(r, "id", "job")
	if err != nil {
		apperr.Write(w, h.log, err)
		return
	}
	res, err := h.svc.Complete(r.Context(), id)
	if err != nil {
		apperr.Write(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) CancelJob(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathUUID(r, "id", "job")
	if err != nil {
		apperr.Write(w, h.log, err)
		return
	}
	job, err := h.svc.Cancel(r.Context(), id)
	if err != nil {
		apperr.Write(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, job)
}
