package catalog

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/inaiurai/shellmarket/internal/apperr"
	"github.com/inaiurai/shellmarket/internal/httpx"
	"github.com/inaiurai/shellmarket/internal/models"
	"github.com/inaiurai/shellmarket/internal/validate"
)

type CreateServiceRequest struct {
	ProviderID  uuid.UUID `json:"providerId"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	BasePrice   int64     `json:"basePrice"`
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
	mux.HandleFunc("POST /services", h.CreateService)
	mux.HandleFunc("GET /services", h.ListServices)
	mux.HandleFunc("GET /services/{id}", h.GetService)
	mux.HandleFunc("DELETE /services/{id}", h.DeactivateService)
}

func (h *Handler) CreateService(w http.ResponseWriter, r *http.Request) {
	var req CreateServiceRequest
	if err := h.v.Decode(r, validate.CreateService, &req); err != nil {
		apperr.Write(w, h.log, err)
		return
	}
	svc, err := h.svc.Create(r.Context(), CreateInput(req))
	if err != nil {
		apperr.Write(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, svc)
}

func (h *Handler) GetService(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathUUID(r, "id", "service")
	if err != nil {
		apperr.Write(w, h.log, err)
		return
	}
	svc, err := h.svc.Get(r.Context(), id)
	if err != nil {
		apperr.Write(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, svc)
}

func (h *Handler) ListServices(w http.ResponseWriter, r *http.Request) {
	provider, err := httpx.QueryUUID(r, "providerId")
	if err != nil {
		apperr.Write(w, h.log, err)
		return
	}
	list, err := h.svc.List(r.Context(), models.ServiceFilter{ProviderID: provider, Category: r.URL.Query().Get("category")})
	if err != nil {
		apperr.Write(w, h.log, err)
		return
	}
	if list == nil {
		list = []*models.Service{}
	}
	httpx.WriteJSON(w, http.StatusOK, list)
}

func (h *Handler) DeactivateService(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathUUID(r, "id", "service")
	if err != nil {
		apperr.Write(w, h.log, err)
		return
	}
	svc, err := h.svc.Deactivate(r.Context(), id)
	if err != nil {
		apperr.Write(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, svc)
}

type LeaderboardHandler struct {
	board Leaderboard
	log   *slog.Logger
}

func NewLeaderboardHandler(board Leaderboard, log *slog.Logger) *LeaderboardHandler {
	if log == nil {
		log = slog.Default()
	}
	return &LeaderboardHandler{board: board, log: log}
}

func (h *LeaderboardHandler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /leaderboards", h.ListCategories)
	mux.HandleFunc("GET /leaderboards/{category}", h.GetBoard)
	mux.HandleFunc("GET /leaderboards/{category}/me/{agentId}", h.GetStanding)
}

func (h *LeaderboardHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	idx, err := h.board.Categories(r.Context())
	if err != nil {
		apperr.Write(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, idx)
}

func (h *LeaderboardHandler) GetBoard(w http.ResponseWriter, r *http.Request) {
	metric, err := ParseMetric(r.URL.Query().Get("metric"))
	if err != nil {
		apperr.Write(w, h.log, err)
		return
	}
	limit, err := httpx.QueryInt(r, "limit", DefaultLeaderboardLimit)
	if err != nil {
		apperr.Write(w, h.log, err)
		return
	}
	board, err := h.board.Board(r.Context(), r.PathValue("category"), metric, limit)
	if err != nil {
		apperr.Write(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, board)
}

func (h *LeaderboardHandler) GetStanding(w http.ResponseWriter, r *http.Request) {
	metric, err := ParseMetric(r.URL.Query().Get("metric"))
	if err != nil {
		apperr.Write(w, h.log, err)
		return
	}
	id, err := httpx.PathUUID(r, "agentId", "agent")
	if err != nil {
		apperr.Write(w, h.log, err)
		return
	}
	st, err := h.board.Standing(r.Context(), r.PathValue("category"), id, metric)
	if err != nil {
		apperr.Write(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, st)
}
