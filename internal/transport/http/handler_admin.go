package httptransport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"bingo-hall/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type AdminStore interface {
	Ping(ctx context.Context) error
	EnsureUser(ctx context.Context, userID, name string) error
	SetUserStatus(ctx context.Context, userID, status string) error
	TopUp(ctx context.Context, userID string, real, bonus decimal.Decimal) (*store.Wallet, error)
	GetWallet(ctx context.Context, userID string) (*store.Wallet, error)
	ListLedgerEntries(ctx context.Context, f store.LedgerFilter, limit, offset int) ([]store.LedgerEntry, error)
	ListRooms(ctx context.Context) ([]store.Room, error)
	UpsertRoom(ctx context.Context, r store.Room) error
	GetPlayerStats(ctx context.Context, userID string) (*store.PlayerStats, error)
	CreateTournament(ctx context.Context, t store.Tournament) (*store.Tournament, error)
	GetGame(ctx context.Context, gameID string) (*store.Game, error)
	ListGameStakes(ctx context.Context, gameID string) ([]store.GameStake, error)
	ListClaims(ctx context.Context, gameID string) ([]store.Claim, error)
	GetBotEarnings(ctx context.Context, botID string) (decimal.Decimal, error)
}

type AdminHandlers struct {
	store AdminStore
}

func NewAdminHandlers(st AdminStore) *AdminHandlers {
	return &AdminHandlers{store: st}
}

func (h *AdminHandlers) Health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h.store.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false, "db": "down"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "db": "up"})
	}
}

func (h *AdminHandlers) Rooms() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, err := h.store.ListRooms(r.Context())
		if err != nil {
			WriteHTTPError(w, http.StatusInternalServerError, "internal_error")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	}
}

func (h *AdminHandlers) UpsertRoom() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body store.Room
		if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&body); err != nil {
			WriteHTTPError(w, http.StatusBadRequest, "invalid_json")
			return
		}
		body.ID = strings.TrimSpace(body.ID)
		if body.ID == "" || body.Name == "" || !body.Stake.IsPositive() ||
			body.CommissionRate.IsNegative() || body.CommissionRate.GreaterThan(decimal.NewFromInt(100)) ||
			body.MinPlayers < 1 || body.MaxPlayers < body.MinPlayers {
			WriteHTTPError(w, http.StatusBadRequest, "invalid_request")
			return
		}
		if err := h.store.UpsertRoom(r.Context(), body); err != nil {
			WriteHTTPError(w, http.StatusInternalServerError, "internal_error")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "room_id": body.ID})
	}
}

func (h *AdminHandlers) Users() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			UserID string `json:"user_id"`
			Name   string `json:"name"`
		}
		if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&body); err != nil {
			WriteHTTPError(w, http.StatusBadRequest, "invalid_json")
			return
		}
		if body.UserID == "" {
			WriteHTTPError(w, http.StatusBadRequest, "invalid_request")
			return
		}
		if err := h.store.EnsureUser(r.Context(), body.UserID, body.Name); err != nil {
			WriteHTTPError(w, http.StatusInternalServerError, "internal_error")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "user_id": body.UserID})
	}
}

func (h *AdminHandlers) UserStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Status string `json:"status"`
		}
		if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&body); err != nil {
			WriteHTTPError(w, http.StatusBadRequest, "invalid_json")
			return
		}
		if body.Status != "active" && body.Status != "suspended" {
			WriteHTTPError(w, http.StatusBadRequest, "invalid_request")
			return
		}
		if err := h.store.SetUserStatus(r.Context(), chi.URLParam(r, "user_id"), body.Status); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				WriteHTTPError(w, http.StatusNotFound, "user_not_found")
				return
			}
			WriteHTTPError(w, http.StatusInternalServerError, "internal_error")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	}
}

func (h *AdminHandlers) Topup() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			UserID string          `json:"user_id"`
			Real   decimal.Decimal `json:"real"`
			Bonus  decimal.Decimal `json:"bonus"`
		}
		if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&body); err != nil {
			WriteHTTPError(w, http.StatusBadRequest, "invalid_json")
			return
		}
		if body.UserID == "" || body.Real.IsNegative() || body.Bonus.IsNegative() ||
			(body.Real.IsZero() && body.Bonus.IsZero()) {
			WriteHTTPError(w, http.StatusBadRequest, "invalid_request")
			return
		}
		wallet, err := h.store.TopUp(r.Context(), body.UserID, body.Real, body.Bonus)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				WriteHTTPError(w, http.StatusNotFound, "user_not_found")
				return
			}
			WriteHTTPError(w, http.StatusInternalServerError, "internal_error")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "wallet": wallet})
	}
}

func (h *AdminHandlers) Wallet() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		wallet, err := h.store.GetWallet(r.Context(), chi.URLParam(r, "user_id"))
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				WriteHTTPError(w, http.StatusNotFound, "user_not_found")
				return
			}
			WriteHTTPError(w, http.StatusInternalServerError, "internal_error")
			return
		}
		writeJSON(w, http.StatusOK, wallet)
	}
}

// GameAudit returns the stored round with its stake ledger and every claim
// filed against it, in arrival order.
func (h *AdminHandlers) GameAudit() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		gameID := chi.URLParam(r, "game_id")
		g, err := h.store.GetGame(r.Context(), gameID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				WriteHTTPError(w, http.StatusNotFound, "game_not_found")
				return
			}
			WriteHTTPError(w, http.StatusInternalServerError, "internal_error")
			return
		}
		stakes, err := h.store.ListGameStakes(r.Context(), gameID)
		if err != nil {
			WriteHTTPError(w, http.StatusInternalServerError, "internal_error")
			return
		}
		claims, err := h.store.ListClaims(r.Context(), gameID)
		if err != nil {
			WriteHTTPError(w, http.StatusInternalServerError, "internal_error")
			return
		}
		if stakes == nil {
			stakes = []store.GameStake{}
		}
		if claims == nil {
			claims = []store.Claim{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"game": g, "stakes": stakes, "claims": claims})
	}
}

func (h *AdminHandlers) BotEarnings() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		botID := chi.URLParam(r, "bot_id")
		earnings, err := h.store.GetBotEarnings(r.Context(), botID)
		if err != nil {
			WriteHTTPError(w, http.StatusInternalServerError, "internal_error")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"bot_id": botID, "earnings": earnings})
	}
}

func (h *AdminHandlers) Stats() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := h.store.GetPlayerStats(r.Context(), chi.URLParam(r, "user_id"))
		if err != nil {
			WriteHTTPError(w, http.StatusInternalServerError, "internal_error")
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}

func (h *AdminHandlers) Ledger() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, offset := ParsePagination(r)
		q := r.URL.Query()
		f := store.LedgerFilter{OwnerID: q.Get("owner_id"), GameID: q.Get("game_id"), Type: q.Get("type")}
		if v := q.Get("from"); v != "" {
			if t, err := time.Parse(time.RFC3339, v); err == nil {
				f.From = &t
			}
		}
		if v := q.Get("to"); v != "" {
			if t, err := time.Parse(time.RFC3339, v); err == nil {
				f.To = &t
			}
		}
		items, err := h.store.ListLedgerEntries(r.Context(), f, limit, offset)
		if err != nil {
			WriteHTTPError(w, http.StatusInternalServerError, "internal_error")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items, "limit": limit, "offset": offset})
	}
}

func (h *AdminHandlers) CreateTournament() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body store.Tournament
		if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&body); err != nil {
			WriteHTTPError(w, http.StatusBadRequest, "invalid_json")
			return
		}
		if body.Name == "" || body.StartAt.IsZero() || !body.EndAt.After(body.StartAt) {
			WriteHTTPError(w, http.StatusBadRequest, "invalid_request")
			return
		}
		if body.PrizeMode != "" && body.PrizeMode != store.PrizeModeFixed && body.PrizeMode != store.PrizeModePercentage {
			WriteHTTPError(w, http.StatusBadRequest, "invalid_prize_config")
			return
		}
		t, err := h.store.CreateTournament(r.Context(), body)
		if err != nil {
			WriteHTTPError(w, http.StatusInternalServerError, "internal_error")
			return
		}
		writeJSON(w, http.StatusCreated, t)
	}
}
