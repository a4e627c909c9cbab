package httptransport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"

	"bingo-hall/internal/app/claim"
	"bingo-hall/internal/app/lobby"
	"bingo-hall/internal/bingo"
	"bingo-hall/internal/statecache"
	"bingo-hall/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

const maxBodyBytes = 64 << 10

type Lobby interface {
	Join(ctx context.Context, roomID, userID string) (*lobby.JoinResult, error)
	Leave(ctx context.Context, gameID, userID string) (*lobby.LeaveResult, error)
}

type Claims interface {
	Resolve(ctx context.Context, req claim.Request) (*claim.Result, error)
}

type Games interface {
	GetOrLoad(ctx context.Context, gameID string) (store.Game, error)
	RecordCall(ctx context.Context, gameID string, number int) (store.Game, error)
}

type Streamer interface {
	ServeWS(w http.ResponseWriter, r *http.Request, gameID string)
}

type RateLimiter interface {
	Allow(ctx context.Context, action, key string) bool
}

type GameHandlers struct {
	lobby   Lobby
	claims  Claims
	games   Games
	stream  Streamer
	limiter RateLimiter
}

func NewGameHandlers(lb Lobby, claims Claims, games Games, stream Streamer, limiter RateLimiter) *GameHandlers {
	return &GameHandlers{lobby: lb, claims: claims, games: games, stream: stream, limiter: limiter}
}

type userRequest struct {
	UserID string `json:"user_id"`
}

func (h *GameHandlers) Join() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body userRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&body); err != nil {
			WriteHTTPError(w, http.StatusBadRequest, "invalid_json")
			return
		}
		resp, err := h.lobby.Join(r.Context(), chi.URLParam(r, "room_id"), body.UserID)
		if err != nil {
			metricJoinErrors.Add(1)
			switch {
			case errors.Is(err, lobby.ErrInvalidRequest):
				WriteHTTPError(w, http.StatusBadRequest, "invalid_request")
			case errors.Is(err, lobby.ErrRoomNotFound):
				WriteHTTPError(w, http.StatusNotFound, "room_not_found")
			case errors.Is(err, lobby.ErrInsufficientBalance):
				WriteHTTPError(w, http.StatusBadRequest, "insufficient_balance")
			case errors.Is(err, lobby.ErrGameFull), errors.Is(err, lobby.ErrJoinContention):
				WriteHTTPError(w, http.StatusConflict, err.Error())
			case errors.Is(err, store.ErrNotFound):
				WriteHTTPError(w, http.StatusNotFound, "user_not_found")
			default:
				log.Error().Err(err).Str("room_id", chi.URLParam(r, "room_id")).Msg("join failed")
				WriteHTTPError(w, http.StatusInternalServerError, "internal_error")
			}
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// Leave accepts JSON or form bodies so a page-unload beacon can deliver it.
func (h *GameHandlers) Leave() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := leaveUserID(r)
		if err != nil {
			WriteHTTPError(w, http.StatusBadRequest, "invalid_request")
			return
		}
		resp, err := h.lobby.Leave(r.Context(), chi.URLParam(r, "game_id"), userID)
		if err != nil {
			switch {
			case errors.Is(err, lobby.ErrInvalidRequest):
				WriteHTTPError(w, http.StatusBadRequest, "invalid_request")
			case errors.Is(err, lobby.ErrGameNotFound):
				WriteHTTPError(w, http.StatusNotFound, "game_not_found")
			case errors.Is(err, lobby.ErrNotParticipant):
				WriteHTTPError(w, http.StatusForbidden, "not_participant")
			default:
				log.Error().Err(err).Str("game_id", chi.URLParam(r, "game_id")).Msg("leave failed")
				WriteHTTPError(w, http.StatusInternalServerError, "internal_error")
			}
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func leaveUserID(r *http.Request) (string, error) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return "", err
	}
	ct := r.Header.Get("Content-Type")
	trimmed := strings.TrimSpace(string(raw))
	switch {
	case strings.HasPrefix(ct, "application/x-www-form-urlencoded"):
		vals, err := url.ParseQuery(trimmed)
		if err != nil {
			return "", err
		}
		return vals.Get("user_id"), nil
	case strings.HasPrefix(trimmed, "{"):
		var body userRequest
		if err := json.Unmarshal(raw, &body); err != nil {
			return "", err
		}
		return body.UserID, nil
	case trimmed != "":
		vals, err := url.ParseQuery(trimmed)
		if err != nil {
			return "", err
		}
		return vals.Get("user_id"), nil
	}
	return r.URL.Query().Get("user_id"), nil
}

type claimRequest struct {
	UserID string   `json:"user_id"`
	Card   [][]int  `json:"card"`
	Marks  [][]bool `json:"marks,omitempty"`
}

func (h *GameHandlers) Claim() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		metricClaimRequests.Add(1)
		var body claimRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&body); err != nil {
			WriteHTTPError(w, http.StatusBadRequest, "invalid_json")
			return
		}
		if body.UserID == "" {
			WriteHTTPError(w, http.StatusBadRequest, "invalid_request")
			return
		}
		if h.limiter != nil && !h.limiter.Allow(r.Context(), "claim", body.UserID) {
			metricClaimRateLimited.Add(1)
			WriteHTTPError(w, http.StatusTooManyRequests, claim.ErrRateLimited.Error())
			return
		}
		card, err := bingo.CardFromRows(body.Card)
		if err != nil {
			writeClaimError(w, err)
			return
		}
		req := claim.Request{GameID: chi.URLParam(r, "game_id"), ClaimantID: body.UserID, Card: card}
		if body.Marks != nil {
			marks, err := bingo.MarksFromRows(body.Marks)
			if err != nil {
				writeClaimError(w, err)
				return
			}
			req.Marks = &marks
		}
		resp, err := h.claims.Resolve(r.Context(), req)
		if err != nil {
			writeClaimError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func writeClaimError(w http.ResponseWriter, err error) {
	var verr *bingo.ValidationError
	var lost *claim.RaceLostError
	switch {
	case errors.As(err, &lost):
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":     claim.ErrAnotherPlayerWon.Error(),
			"winner_id": lost.WinnerID,
		})
	case errors.As(err, &verr):
		WriteHTTPError(w, http.StatusBadRequest, verr.Reason)
	case errors.Is(err, claim.ErrGameNotFound):
		WriteHTTPError(w, http.StatusNotFound, "game_not_found")
	case errors.Is(err, claim.ErrNotParticipant):
		WriteHTTPError(w, http.StatusForbidden, "not_participant")
	case errors.Is(err, claim.ErrInvalidRequest),
		errors.Is(err, claim.ErrGameNotActive),
		errors.Is(err, claim.ErrAlreadyWon),
		errors.Is(err, claim.ErrNotABingo),
		errors.Is(err, claim.ErrClaimMismatch),
		errors.Is(err, claim.ErrAnotherPlayerWon):
		WriteHTTPError(w, http.StatusBadRequest, sentinelCode(err, "invalid_request",
			claim.ErrGameNotActive, claim.ErrAlreadyWon, claim.ErrNotABingo,
			claim.ErrClaimMismatch, claim.ErrAnotherPlayerWon))
	case errors.Is(err, claim.ErrUnresolvedRace):
		WriteHTTPError(w, http.StatusInternalServerError, "unresolved_race")
	default:
		log.Error().Err(err).Msg("claim failed")
		WriteHTTPError(w, http.StatusInternalServerError, "internal_error")
	}
}

// sentinelCode returns the code of the first sentinel err matches.
func sentinelCode(err error, fallback string, sentinels ...error) string {
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return fallback
}

func (h *GameHandlers) State() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		g, err := h.games.GetOrLoad(r.Context(), chi.URLParam(r, "game_id"))
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				WriteHTTPError(w, http.StatusNotFound, "game_not_found")
				return
			}
			WriteHTTPError(w, http.StatusInternalServerError, "internal_error")
			return
		}
		writeJSON(w, http.StatusOK, statecache.NewStatePayload(&g))
	}
}

func (h *GameHandlers) Stream() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		gameID := chi.URLParam(r, "game_id")
		if _, err := h.games.GetOrLoad(r.Context(), gameID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				WriteHTTPError(w, http.StatusNotFound, "game_not_found")
				return
			}
			WriteHTTPError(w, http.StatusInternalServerError, "internal_error")
			return
		}
		h.stream.ServeWS(w, r, gameID)
	}
}

// RecordCall ingests one draw from the number-calling scheduler.
func (h *GameHandlers) RecordCall() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Number int `json:"number"`
		}
		if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&body); err != nil {
			WriteHTTPError(w, http.StatusBadRequest, "invalid_json")
			return
		}
		gameID := chi.URLParam(r, "game_id")
		g, err := h.games.RecordCall(r.Context(), gameID, body.Number)
		if err != nil {
			switch {
			case errors.Is(err, store.ErrNotFound):
				WriteHTTPError(w, http.StatusNotFound, "game_not_found")
			case errors.Is(err, statecache.ErrInvalidNumber):
				WriteHTTPError(w, http.StatusBadRequest, err.Error())
			case errors.Is(err, statecache.ErrGameNotActive),
				errors.Is(err, statecache.ErrAlreadyCalled),
				errors.Is(err, statecache.ErrCallsExhausted):
				WriteHTTPError(w, http.StatusConflict, err.Error())
			default:
				log.Error().Err(err).Str("game_id", gameID).Msg("record call failed")
				WriteHTTPError(w, http.StatusInternalServerError, "internal_error")
			}
			return
		}
		writeJSON(w, http.StatusOK, statecache.NumberCalledPayload{
			GameID:    g.ID,
			Number:    body.Number,
			Label:     g.LatestCall,
			CallCount: len(g.CalledNumbers),
		})
	}
}
