// Command dumb-player joins a room, follows the draw over the game stream
// and claims as soon as its dealt card completes a line. Useful as a smoke
// client against a running server.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"bingo-hall/internal/bingo"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type joinResponse struct {
	Action string `json:"action"`
	GameID string `json:"game_id"`
}

type streamEvent struct {
	Event string `json:"event"`
	Data  struct {
		Number int    `json:"number"`
		Status string `json:"status"`
	} `json:"data"`
}

func main() {
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	baseURL := getenv("BASE_URL", "http://localhost:8080")
	roomID := getenv("ROOM_ID", "room_5")
	userID := getenv("USER_ID", "dumb-player")

	var joined joinResponse
	if err := postJSON(baseURL+"/api/rooms/"+roomID+"/join", map[string]string{"user_id": userID}, &joined); err != nil {
		log.Fatal().Err(err).Msg("join failed")
	}
	if joined.Action == "spectate" {
		log.Info().Str("game_id", joined.GameID).Msg("round in progress; spectating only")
	}

	rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
	card := bingo.Deal(rnd)
	log.Info().Str("game_id", joined.GameID).Interface("card", card.Rows()).Msg("joined")

	u, err := url.Parse(baseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("bad BASE_URL")
	}
	u.Scheme = strings.Replace(u.Scheme, "http", "ws", 1)
	u.Path = "/api/games/" + joined.GameID + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatal().Err(err).Msg("stream dial failed")
	}
	defer conn.Close()

	var called []int
	for {
		var ev streamEvent
		if err := conn.ReadJSON(&ev); err != nil {
			log.Info().Err(err).Msg("stream closed")
			return
		}
		switch ev.Event {
		case "game_state_update":
			if ev.Data.Status == "finished" {
				log.Info().Str("status", ev.Data.Status).Msg("round over")
				return
			}
		case "number_called":
			called = append(called, ev.Data.Number)
			if joined.Action == "spectate" {
				continue
			}
			if _, ok := bingo.DetectPattern(bingo.DeriveMarks(card, called)); !ok {
				continue
			}
			var out map[string]any
			err := postJSON(baseURL+"/api/games/"+joined.GameID+"/claim",
				map[string]any{"user_id": userID, "card": card.Rows()}, &out)
			if err != nil {
				log.Warn().Err(err).Msg("claim rejected")
				continue
			}
			log.Info().Interface("result", out).Msg("bingo")
			return
		}
	}
}

func postJSON(target string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	resp, err := http.Post(target, "application/json", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return fmt.Errorf("%s: %d %s", target, resp.StatusCode, e.Error)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
