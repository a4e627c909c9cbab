package tournament

import "errors"

var (
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrTournamentNotFound = errors.New("tournament_not_found")
	ErrTournamentNotEnded = errors.New("tournament_not_ended")
	ErrUnknownMetric      = errors.New("unknown_metric")
	ErrInvalidPrizeConfig = errors.New("invalid_prize_config")
)
