package agents

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/inaiurai/shellmarket/internal/apperr"
	"github.com/inaiurai/shellmarket/internal/httpx"
	"github.com/inaiurai/shellmarket/internal/models"
	"github.com/inaiurai/shellmarket/internal/store"
	"github.com/inaiurai/shellmarket/internal/validate"
)

type RegisterAgentRequest struct {
	Name       string     `json:"name"`
	ExternalID *string    `json:"externalId"`
	Bio        *string    `json:"bio"`
	WebhookURL *string    `json:"webhookUrl"`
	ReferredBy *uuid.UUID `json:"referredBy"`
}

type UpdateAgentRequest struct {
	Name       *string `json:"name"`
	Bio        *string `json:"bio"`
	WebhookURL *string `json:"webhookUrl"`
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
	mux.HandleFunc("POST /agents", h.RegisterAgent)
	mux.HandleFunc("GET /agents", h.ListAgents)
	mux.HandleFunc("GET /agents/{id}", h.GetAgent)
	mux.HandleFunc("PATCH /agents/{id}", h.UpdateAgent)
	mux.HandleFunc("GET /agents/{id}/balance", h.GetBalance)
	mux.HandleFunc("GET /agents/{id}/transactions", h.ListTransactions)
	mux.HandleFunc("GET /agents/{id}/referrals", h.ListReferrals)
}

func (h *Handler) RegisterAgent(w http.ResponseWriter, r *http.Request) {
	var req RegisterAgentRequest
	if err := h.v.Decode(r, validate.RegisterAgent, &req); err != nil {
		apperr.Write(w, h.log, err)
		return
	}
	reg, err := h.svc.Register(r.Context(), RegisterInput{
		Name:       req.Name,
		ExternalID: req.ExternalID,
		Bio:        req.Bio,
		WebhookURL: req.WebhookURL,
		ReferredBy: req.ReferredBy,
	})
	if err != nil {
		apperr.Write(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, reg)
}

func (h *Handler) GetAgent(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathUUID(r, "id", "agent")
	if err != nil {
		apperr.Write(w, h.log, err)
		return
	}
	a, err := h.svc.Get(r.Context(), id)
	if err != nil {
		apperr.Write(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, a)
}

// ListAgents lists the directory. With ?externalId= it returns the matching agent,
// if any, as a one-element list.
func (h *Handler) ListAgents(w http.ResponseWriter, r *http.Request) {
	if ext := r.URL.Query().Get("externalId"); ext != "" {
		a, err := h.svc.GetByExternalID(r.Context(), ext)
		switch {
		case errors.Is(err, apperr.ErrNotFound):
			httpx.WriteJSON(w, http.StatusOK, []*models.Agent{})
		case err != nil:
			apperr.Write(w, h.log, err)
		default:
			httpx.WriteJSON(w, http.StatusOK, []*models.Agent{a})
		}
		return
	}
	page, err := pageFromQuery(r)
	if err != nil {
		apperr.Write(w, h.log, err)
		return
	}
	list, err := h.svc.List(r.Context(), page)
	if err != nil {
		apperr.Write(w, h.log, err)
		return
	}
	if list == nil {
		list = []*models.Agent{}
	}
	httpx.WriteJSON(w, http.StatusOK, list)
}

func (h *Handler) UpdateAgent(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathUUID(r, "id", "agent")
	if err != nil {
		apperr.Write(w, h.log, err)
		return
	}
	var req UpdateAgentRequest
	if err := h.v.Decode(r, validate.UpdateAgent, &req); err != nil {
		apperr.Write(w, h.log, err)
		return
	}
	a, err := h.svc.Update(r.Context(), id, store.AgentUpdate{Name: req.Name, Bio: req.Bio, WebhookURL: req.WebhookURL})
	if err != nil {
		apperr.Write(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, a)
}

func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathUUID(r, "id", "agent")
	if err != nil {
		apperr.Write(w, h.log, err)
		return
	}
	b, err := h.svc.Balance(r.Context(), id)
	if err != nil {
		apperr.Write(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, b)
}

func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathUUID(r, "id", "agent")
	if err != nil {
		apperr.Write(w, h.log, err)
		return
	}
	list, err := h.svc.Transactions(r.Context(), id)
	if err != nil {
		apperr.Write(w, h.log, err)
		return
	}
	if list == nil {
		list = []*models.Transaction{}
	}
	httpx.WriteJSON(w, http.StatusOK, list)
}

func (h *Handler) ListReferrals(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathUUID(r, "id", "agent")
	if err != nil {
		apperr.Write(w, h.log, err)
		return
	}
	page, err := pageFromQuery(r)
	if err != nil {
		apperr.Write(w, h.log, err)
		return
	}
	list, err := h.svc.Referrals(r.Context(), id, page)
	if err != nil {
		apperr.Write(w, h.log, err)
		return
	}
	if list == nil {
		list = []*models.Agent{}
	}
	httpx.WriteJSON(w, http.StatusOK, list)
}

func pageFromQuery(r *http.Request) (store.Page, error) {
	limit, err := httpx.QueryInt(r, "limit", DefaultPageSize)
	if err != nil {
		return store.Page{}, err
	}
	offset, err := httpx.QueryInt(r, "offset", 0)
	if err != nil {
		return store.Page{}, err
	}
	return store.Page{Limit: limit, Offset: offset}, nil
}
