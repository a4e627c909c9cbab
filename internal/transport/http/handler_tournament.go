package httptransport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"bingo-hall/internal/app/tournament"
	"bingo-hall/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

type Tournaments interface {
	Deposit(ctx context.Context, userID, externalID string, amount decimal.Decimal) (*tournament.DepositResult, error)
	Leaderboard(ctx context.Context, tournamentID, metric string, limit int) (*tournament.LeaderboardResponse, error)
	Finalize(ctx context.Context, tournamentID string, opts tournament.FinalizeOptions) (*tournament.FinalizeResult, error)
}

type TournamentHandlers struct {
	svc Tournaments
}

func NewTournamentHandlers(svc Tournaments) *TournamentHandlers {
	return &TournamentHandlers{svc: svc}
}

func (h *TournamentHandlers) Deposit() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			UserID     string          `json:"user_id"`
			ExternalID string          `json:"external_id"`
			Amount     decimal.Decimal `json:"amount"`
		}
		if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&body); err != nil {
			WriteHTTPError(w, http.StatusBadRequest, "invalid_json")
			return
		}
		resp, err := h.svc.Deposit(r.Context(), body.UserID, body.ExternalID, body.Amount)
		if err != nil {
			writeTournamentError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func (h *TournamentHandlers) Leaderboard() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 0
		if v := r.URL.Query().Get("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				limit = n
			}
		}
		metric := r.URL.Query().Get("metric")
		if metric == "" {
			metric = store.MetricDeposits
		}
		resp, err := h.svc.Leaderboard(r.Context(), chi.URLParam(r, "tournament_id"), metric, limit)
		if err != nil {
			writeTournamentError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func (h *TournamentHandlers) Finalize() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		opts := tournament.FinalizeOptions{
			Force:       q.Get("force") == "true",
			PreviewOnly: q.Get("preview") == "true",
		}
		resp, err := h.svc.Finalize(r.Context(), chi.URLParam(r, "tournament_id"), opts)
		if err != nil {
			writeTournamentError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func writeTournamentError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, tournament.ErrInvalidRequest),
		errors.Is(err, tournament.ErrUnknownMetric),
		errors.Is(err, tournament.ErrInvalidPrizeConfig):
		WriteHTTPError(w, http.StatusBadRequest, sentinelCode(err, "invalid_request",
			tournament.ErrUnknownMetric, tournament.ErrInvalidPrizeConfig))
	case errors.Is(err, tournament.ErrTournamentNotFound):
		WriteHTTPError(w, http.StatusNotFound, "tournament_not_found")
	case errors.Is(err, tournament.ErrTournamentNotEnded):
		WriteHTTPError(w, http.StatusConflict, "tournament_not_ended")
	case errors.Is(err, store.ErrNotFound):
		WriteHTTPError(w, http.StatusNotFound, "user_not_found")
	default:
		log.Error().Err(err).Msg("tournament request failed")
		WriteHTTPError(w, http.StatusInternalServerError, "internal_error")
	}
}
