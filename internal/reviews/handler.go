package reviews

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/inaiurai/shellmarket/internal/apperr"
	"github.com/inaiurai/shellmarket/internal/httpx"
	"github.com/inaiurai/shellmarket/internal/models"
	"github.com/inaiurai/shellmarket/internal/store"
	"github.com/inaiurai/shellmarket/internal/validate"
)

type CreateReviewRequest struct {
	JobID      uuid.UUID `json:"jobId"`
	ReviewerID uuid.UUID `json:"reviewerId"`
	RevieweeID uuid.UUID `json:"revieweeId"`
	Rating     float64   `json:"rating"`
	Comment    *string   `json:"comment"`
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

func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /reviews", h.CreateReview)
	mux.HandleFunc("GET /reviews", h.ListReviews)
	mux.HandleFunc("GET /reviews/{id}", h.GetReview)
	mux.HandleFunc("GET /agents/{id}/reputation", h.GetReputation)
}

func (h *Handler) CreateReview(w http.ResponseWriter, r *http.Request) {
	var req CreateReviewRequest
	if err := h.v.Decode(r, validate.CreateReview, &req); err != nil {
		apperr.Write(w, h.log, err)
		return
	}
	rev, err := h.svc.Create(r.Context(), CreateInput(req))
	if err != nil {
		apperr.Write(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, rev)
}

func (h *Handler) GetReview(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathUUID(r, "id", "review")
	if err != nil {
		apperr.Write(w, h.log, err)
		return
	}
	rev, err := h.svc.Get(r.Context(), id)
	if err != nil {
		apperr.Write(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, rev)
}

func (h *Handler) ListReviews(w http.ResponseWriter, r *http.Request) {
	var f models.ReviewFilter
	var err error
	for name, dst := range map[string]**uuid.UUID{
		"revieweeId": &f.RevieweeID,
		"reviewerId": &f.ReviewerID,
		"jobId":      &f.JobID,
	} {
		if *dst, err = httpx.QueryUUID(r, name); err != nil {
			apperr.Write(w, h.log, err)
			return
		}
	}
	limit, err := httpx.QueryInt(r, "limit", 50)
	if err != nil {
		apperr.Write(w, h.log, err)
		return
	}
	offset, err := httpx.QueryInt(r, "offset", 0)
	if err != nil {
		apperr.Write(w, h.log, err)
		return
	}
	out, err := h.svc.List(r.Context(), f, store.Page{Limit: limit, Offset: offset})
	if err != nil {
		apperr.Write(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) GetReputation(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathUUID(r, "id", "agent")
	if err != nil {
		apperr.Write(w, h.log, err)
		return
	}
	rep, err := h.svc.Reputation(r.Context(), id)
	if err != nil {
		apperr.Write(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, rep)
}
