package lobby

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"bingo-hall/internal/statecache"
	"bingo-hall/internal/store"

	"github.com/shopspring/decimal"
)

type fixture struct {
	st       *memStore
	cache    *statecache.Service
	settler  *recordingSettler
	plays    *recordingPlays
	notifier *recordingNotifier
	stopper  *recordingStopper
	svc      *Service
}

func newFixture(t *testing.T, filler Autofiller, cfg Config) *fixture {
	t.Helper()
	st := newMemStore()
	st.addRoom(store.Room{
		ID:             "classic",
		Stake:          decimal.NewFromInt(10),
		CommissionRate: decimal.NewFromInt(10),
		Difficulty:     "easy",
		MinPlayers:     2,
		MaxPlayers:     4,
		Status:         "active",
	})
	st.addRoom(store.Room{ID: "closed", Stake: decimal.NewFromInt(10), Status: "inactive"})
	for _, u := range []string{"u1", "u2", "u3", "u4"} {
		st.fund(u, "100")
	}
	f := &fixture{
		st:       st,
		cache:    statecache.New(st, nil, statecache.Config{}),
		settler:  &recordingSettler{},
		plays:    &recordingPlays{},
		notifier: &recordingNotifier{},
		stopper:  &recordingStopper{},
	}
	f.svc = NewService(st, f.cache, f.settler, f.plays, f.notifier, f.stopper, filler, cfg)
	t.Cleanup(f.svc.Close)
	return f
}

func slowTimers() Config {
	return Config{WaitingPeriod: time.Hour, CountdownPeriod: time.Second, Tick: time.Hour}
}

func TestJoinCreatesThenJoins(t *testing.T) {
	f := newFixture(t, nil, slowTimers())
	ctx := context.Background()

	first, err := f.svc.Join(ctx, "classic", "u1")
	if err != nil {
		t.Fatalf("first join: %v", err)
	}
	if first.Action != ActionCreated || first.Game.Status != store.GameWaiting || !slices.Equal(first.Game.Players, []string{"u1"}) {
		t.Fatalf("unexpected first join: %+v", first)
	}
	if !f.st.balance("u1").Equal(decimal.NewFromInt(90)) {
		t.Fatalf("stake not debited: %s", f.st.balance("u1"))
	}

	second, err := f.svc.Join(ctx, "classic", "u2")
	if err != nil {
		t.Fatalf("second join: %v", err)
	}
	if second.Action != ActionJoined || second.GameID != first.GameID {
		t.Fatalf("second player must join the open game: %+v", second)
	}
	if second.Game.Status != store.GameWaitingForPlayers || !second.Game.PrizePool.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("expected waiting_for_players with pool 20, got %+v", second.Game)
	}
	if !f.svc.timers.armed(first.GameID) {
		t.Fatalf("waiting timer must be armed")
	}

	again, err := f.svc.Join(ctx, "classic", "u1")
	if err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	if again.Action != ActionAlreadyJoined || !f.st.balance("u1").Equal(decimal.NewFromInt(90)) {
		t.Fatalf("rejoin must not debit twice: %+v", again)
	}
}

func TestJoinActiveGameSpectates(t *testing.T) {
	f := newFixture(t, nil, slowTimers())
	f.st.putGame(store.Game{ID: "live", RoomID: "classic", Status: store.GameActive, Players: []string{"u1", "u2"}, Stake: decimal.NewFromInt(10)})

	res, err := f.svc.Join(context.Background(), "classic", "u3")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if res.Action != ActionSpectate || res.GameID != "live" {
		t.Fatalf("expected spectate, got %+v", res)
	}
	if !f.st.balance("u3").Equal(decimal.NewFromInt(100)) {
		t.Fatalf("spectating must not debit")
	}
	member, err := f.svc.Join(context.Background(), "classic", "u1")
	if err != nil {
		t.Fatalf("member join: %v", err)
	}
	if member.Action != ActionAlreadyJoined {
		t.Fatalf("expected already_joined for a member, got %+v", member)
	}
}

func TestJoinErrors(t *testing.T) {
	f := newFixture(t, nil, slowTimers())
	f.st.fund("poor", "5")
	cases := []struct {
		name string
		room string
		user string
		want error
	}{
		{"unknown room", "nope", "u1", ErrRoomNotFound},
		{"inactive room", "closed", "u1", ErrRoomNotFound},
		{"missing user", "classic", "", ErrInvalidRequest},
		{"insufficient balance", "classic", "poor", ErrInsufficientBalance},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := f.svc.Join(context.Background(), tc.room, tc.user); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestJoinLosesCreateRace(t *testing.T) {
	f := newFixture(t, nil, slowTimers())
	f.st.onCreate = func() {
		f.st.putGame(store.Game{ID: "other", RoomID: "classic", Status: store.GameWaiting, Stake: decimal.NewFromInt(10)})
	}
	res, err := f.svc.Join(context.Background(), "classic", "u1")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if res.GameID != "other" || res.Action != ActionJoined {
		t.Fatalf("expected to join the concurrently created game, got %+v", res)
	}
}

func TestJoinAutofillsBots(t *testing.T) {
	f := newFixture(t, BotAutofiller{Enabled: true, Prefix: "bot_", MaxPerGame: 3}, slowTimers())
	res, err := f.svc.Join(context.Background(), "classic", "u1")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if len(res.Game.Bots) != 1 || res.Game.Status != store.GameWaitingForPlayers {
		t.Fatalf("expected one bot and the waiting period, got %+v", res.Game)
	}
}

func TestGameLifecycleReachesActive(t *testing.T) {
	cfg := Config{WaitingPeriod: 10 * time.Millisecond, CountdownPeriod: 2 * time.Second, Tick: 5 * time.Millisecond}
	f := newFixture(t, nil, cfg)
	ctx := context.Background()
	res, err := f.svc.Join(ctx, "classic", "u1")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := f.svc.Join(ctx, "classic", "u2"); err != nil {
		t.Fatalf("join: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if f.st.snapshot(res.GameID).Status == store.GameActive {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if got := f.st.snapshot(res.GameID); got.Status != store.GameActive || got.Countdown != 0 {
		t.Fatalf("expected active game, got status %s countdown %d", got.Status, got.Countdown)
	}
	if f.svc.timers.armed(res.GameID) {
		t.Fatalf("timers must be cleared once active")
	}
}

func TestLeaveBeforeStartVoidsAndRefunds(t *testing.T) {
	f := newFixture(t, nil, slowTimers())
	ctx := context.Background()
	res, _ := f.svc.Join(ctx, "classic", "u1")
	_, _ = f.svc.Join(ctx, "classic", "u2")

	out, err := f.svc.Leave(ctx, res.GameID, "u2")
	if err != nil {
		t.Fatalf("leave: %v", err)
	}
	if out.Message != msgInsufficient {
		t.Fatalf("unexpected message %q", out.Message)
	}
	g := f.st.snapshot(res.GameID)
	if g.Status != store.GameFinished || g.EndReason != reasonInsufficientPlayers || g.WinnerID != nil {
		t.Fatalf("expected voided game, got %+v", g)
	}
	for _, u := range []string{"u1", "u2"} {
		if !f.st.balance(u).Equal(decimal.NewFromInt(100)) {
			t.Fatalf("%s must be refunded, balance %s", u, f.st.balance(u))
		}
	}
	if f.svc.timers.armed(res.GameID) || !slices.Equal(f.stopper.reasons, []string{reasonInsufficientPlayers}) {
		t.Fatalf("void must cancel timers and stop the scheduler")
	}
	cached, _ := f.cache.Get(res.GameID)
	if cached.Status != store.GameFinished {
		t.Fatalf("cache must reflect the voided game")
	}
}

func TestLeaveActiveLastOpponentWinsByDefault(t *testing.T) {
	f := newFixture(t, nil, slowTimers())
	f.st.putGame(store.Game{ID: "live", RoomID: "classic", Status: store.GameActive, Players: []string{"u1", "u2"},
		Stake: decimal.NewFromInt(10), CommissionRate: decimal.NewFromInt(10)})

	out, err := f.svc.Leave(context.Background(), "live", "u2")
	if err != nil {
		t.Fatalf("leave: %v", err)
	}
	f.svc.Close()
	if !out.AutoWin || out.WinnerID != "u1" || !out.Prize.Equal(decimal.NewFromInt(18)) || !out.CommissionRate.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("unexpected default win: %+v", out)
	}
	g := f.st.snapshot("live")
	if g.Status != store.GameFinished || g.EndReason != reasonOpponentLeft || *g.WinnerID != "u1" {
		t.Fatalf("unexpected game: %+v", g)
	}
	if len(f.settler.runs) != 1 || !slices.Equal(f.settler.runs[0].Participants, []string{"u1", "u2"}) || f.settler.runs[0].Tier != "easy" {
		t.Fatalf("unexpected settlement: %+v", f.settler.runs)
	}
	slices.Sort(f.plays.users)
	if !slices.Equal(f.plays.users, []string{"u1", "u2"}) || len(f.notifier.events) != 1 {
		t.Fatalf("expected plays for both players and one notification")
	}
}

func TestLeaveActiveAfterClaimReportsWinner(t *testing.T) {
	f := newFixture(t, nil, slowTimers())
	f.st.putGame(store.Game{ID: "live", RoomID: "classic", Status: store.GameActive, Players: []string{"u1", "u2"}, Stake: decimal.NewFromInt(10)})
	// Simulate a claim landing between the leave's removal and the default win.
	st := &claimingStore{memStore: f.st, claimant: "u1"}
	f.svc.store = st

	out, err := f.svc.Leave(context.Background(), "live", "u2")
	if err != nil {
		t.Fatalf("leave: %v", err)
	}
	if out.AutoWin || out.Message != msgDecidedBefore || out.WinnerID != "u1" {
		t.Fatalf("unexpected result: %+v", out)
	}
	if len(f.settler.runs) != 0 {
		t.Fatalf("default win must not settle an already decided game")
	}
}

type claimingStore struct {
	*memStore
	claimant string
}

func (c *claimingStore) FinishIfUnclaimed(ctx context.Context, p store.FinishParams) (bool, error) {
	_, _ = c.memStore.FinishIfUnclaimed(ctx, store.FinishParams{GameID: p.GameID, WinnerID: c.claimant, EndReason: "bingo"})
	return c.memStore.FinishIfUnclaimed(ctx, p)
}

func TestLeaveOtherOutcomes(t *testing.T) {
	f := newFixture(t, nil, slowTimers())
	ctx := context.Background()
	f.st.putGame(store.Game{ID: "solo", RoomID: "classic", Status: store.GameActive, Players: []string{"u1"}, Stake: decimal.NewFromInt(10)})
	f.st.putGame(store.Game{ID: "trio", RoomID: "classic", Status: store.GameActive, Players: []string{"u1", "u2", "u3"}, Stake: decimal.NewFromInt(10)})
	f.st.putGame(store.Game{ID: "done", RoomID: "classic", Status: store.GameFinished, Players: []string{"u1"}})

	out, err := f.svc.Leave(ctx, "solo", "u1")
	if err != nil || out.Message != msgNoPlayers || f.st.snapshot("solo").EndReason != reasonNoPlayers {
		t.Fatalf("last player leaving must end the game: %+v %v", out, err)
	}

	out, err = f.svc.Leave(ctx, "trio", "u3")
	if err != nil || out.Message != msgLeft {
		t.Fatalf("unexpected leave result: %+v %v", out, err)
	}
	g, _ := f.cache.Get("trio")
	if len(g.Players) != 2 || !g.PrizePool.Equal(decimal.NewFromInt(20)) || g.Status != store.GameActive {
		t.Fatalf("roster must shrink with pool = stake * remaining: %+v", g)
	}

	out, err = f.svc.Leave(ctx, "done", "u1")
	if err != nil || out.Message != msgAlreadyOver {
		t.Fatalf("leaving a finished game is a no-op: %+v %v", out, err)
	}
	if _, err := f.svc.Leave(ctx, "trio", "stranger"); !errors.Is(err, ErrNotParticipant) {
		t.Fatalf("expected not_participant, got %v", err)
	}
	if _, err := f.svc.Leave(ctx, "missing", "u1"); !errors.Is(err, ErrGameNotFound) {
		t.Fatalf("expected game_not_found, got %v", err)
	}
}

func TestLeaveLastPlayerEndsGameAndStopsScheduler(t *testing.T) {
	for _, status := range []string{store.GameWaiting, store.GameWaitingForPlayers, store.GameCountdown, store.GameActive} {
		t.Run(status, func(t *testing.T) {
			f := newFixture(t, nil, slowTimers())
			f.st.putGame(store.Game{ID: "solo", RoomID: "classic", Status: status, Players: []string{"u1"}, Stake: decimal.NewFromInt(10)})

			out, err := f.svc.Leave(context.Background(), "solo", "u1")
			if err != nil || out.Message != msgNoPlayers {
				t.Fatalf("unexpected leave result: %+v %v", out, err)
			}
			g := f.st.snapshot("solo")
			if g.Status != store.GameFinished || g.EndReason != reasonNoPlayers || g.WinnerID != nil {
				t.Fatalf("expected a finished game without winner: %+v", g)
			}
			if !slices.Equal(f.stopper.reasons, []string{reasonNoPlayers}) {
				t.Fatalf("scheduler stop must be signalled, got %v", f.stopper.reasons)
			}
			if f.svc.timers.armed("solo") {
				t.Fatalf("timers must be cancelled")
			}
		})
	}
}

func TestLeaveDuringCountdownVoidsInsteadOfDefaultWin(t *testing.T) {
	f := newFixture(t, nil, slowTimers())
	f.st.putGame(store.Game{ID: "cd", RoomID: "classic", Status: store.GameCountdown, Countdown: 5,
		Players: []string{"u1", "u2"}, Stake: decimal.NewFromInt(10)})

	out, err := f.svc.Leave(context.Background(), "cd", "u2")
	if err != nil {
		t.Fatalf("leave: %v", err)
	}
	if out.AutoWin || out.Message != msgInsufficient {
		t.Fatalf("countdown leave must void, got %+v", out)
	}
	g := f.st.snapshot("cd")
	if g.Status != store.GameFinished || g.EndReason != reasonInsufficientPlayers || g.WinnerID != nil {
		t.Fatalf("expected voided game, got %+v", g)
	}
	if len(f.settler.runs) != 0 || !slices.Equal(f.stopper.reasons, []string{reasonInsufficientPlayers}) {
		t.Fatalf("void must not settle and must stop the scheduler")
	}
}

func TestBotAutofillerRespectsCap(t *testing.T) {
	a := BotAutofiller{Enabled: true, Prefix: "bot_", MaxPerGame: 2}
	g := &store.Game{Bots: []string{"bot_x"}}
	if got := a.Bots(g, 5); len(got) != 1 {
		t.Fatalf("expected one bot under the cap, got %v", got)
	}
	if got := (BotAutofiller{}).Bots(g, 5); got != nil {
		t.Fatalf("disabled autofiller must add nothing")
	}
}
