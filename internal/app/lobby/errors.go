package lobby

import (
	"errors"

	"bingo-hall/internal/store"
)

var (
	ErrInvalidRequest      = errors.New("invalid_request")
	ErrRoomNotFound        = errors.New("room_not_found")
	ErrGameNotFound        = errors.New("game_not_found")
	ErrNotParticipant      = errors.New("not_participant")
	ErrInsufficientBalance = store.ErrInsufficientBalance
	ErrGameFull            = store.ErrGameFull
	ErrJoinContention      = errors.New("join_contention")
)
