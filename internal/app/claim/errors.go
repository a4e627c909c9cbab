package claim

import (
	"errors"

	"bingo-hall/internal/bingo"
)

var (
	ErrInvalidRequest   = errors.New("invalid_request")
	ErrGameNotFound     = errors.New("game_not_found")
	ErrGameNotActive    = errors.New("game_not_active")
	ErrAlreadyWon       = errors.New("already_won")
	ErrNotParticipant   = errors.New("not_participant")
	ErrNotABingo        = errors.New("not_a_bingo")
	ErrClaimMismatch    = bingo.ErrMarkNotCalled
	ErrAnotherPlayerWon = errors.New("another_player_won")
	ErrUnresolvedRace   = errors.New("unresolved_race")
	ErrRateLimited      = errors.New("rate_limited")
)

// RaceLostError is returned to a valid claimant whose claim lost
// arbitration. It matches ErrAnotherPlayerWon.
type RaceLostError struct {
	WinnerID string
}

func (e *RaceLostError) Error() string { return ErrAnotherPlayerWon.Error() }

func (e *RaceLostError) Is(target error) bool { return target == ErrAnotherPlayerWon }
