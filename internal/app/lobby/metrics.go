package lobby

import "expvar"

var (
	metricJoins        = expvar.NewInt("lobby_joins_total")
	metricGamesCreated = expvar.NewInt("lobby_games_created_total")
	metricSpectates    = expvar.NewInt("lobby_spectates_total")
	metricRejoins      = expvar.NewInt("lobby_rejoins_total")
	metricBotsAdded    = expvar.NewInt("lobby_bots_added_total")
	metricLeaves       = expvar.NewInt("lobby_leaves_total")
	metricVoids        = expvar.NewInt("lobby_voided_games_total")
	metricAutoWins     = expvar.NewInt("lobby_auto_wins_total")
	metricGamesStarted = expvar.NewInt("lobby_games_started_total")
)
