package decay

import (
	"log/slog"
	"net/http"

	"github.com/inaiurai/shellmarket/internal/apperr"
	"github.com/inaiurai/shellmarket/internal/httpx"
)

type Handler struct {
	svc *Service
	log *slog.Logger
}

func NewHandler(svc *Service, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, log: log}
}

func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /decay/preview", h.Preview)
	mux.HandleFunc("POST /decay/apply", h.Apply)
	mux.HandleFunc("GET /decay/agent/{id}", h.AgentStatus)
}

func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	sum, err := h.svc.Preview(r.Context())
	if err != nil {
		apperr.Write(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, sum)
}

func (h *Handler) Apply(w http.ResponseWriter, r *http.Request) {
	sum, err := h.svc.Apply(r.Context())
	if err != nil {
		apperr.Write(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, sum)
}

func (h *Handler) AgentStatus(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathUUID(r, "id", "agent")
	if err != nil {
		apperr.Write(w, h.log, err)
		return
	}
	st, err := h.svc.AgentStatus(r.Context(), id)
	if err != nil {
		apperr.Write(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, st)
}
