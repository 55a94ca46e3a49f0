package match

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	alice ParticipantID = "alice"
	bob   ParticipantID = "bob"
	carol ParticipantID = "carol"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events map[ParticipantID][]Event
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{events: make(map[ParticipantID][]Event)}
}

func (n *recordingNotifier) Notify(to ParticipantID, event Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events[to] = append(n.events[to], event)
}

func (n *recordingNotifier) of(p ParticipantID, eventType EventType) []Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []Event
	for _, ev := range n.events[p] {
		if ev.Type == eventType {
			out = append(out, ev)
		}
	}
	return out
}

func (n *recordingNotifier) types(p ParticipantID) []EventType {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]EventType, 0, len(n.events[p]))
	for _, ev := range n.events[p] {
		out = append(out, ev.Type)
	}
	return out
}

type recordingFeed struct {
	mu      sync.Mutex
	records []Record
}

func (f *recordingFeed) Publish(rec Record) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, rec)
}

func (f *recordingFeed) types() []RecordType {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]RecordType, 0, len(f.records))
	for _, rec := range f.records {
		out = append(out, rec.Type)
	}
	return out
}

type harness struct {
	manager  *Manager
	clock    *clockwork.FakeClock
	notifier *recordingNotifier
	feed     *recordingFeed
	cfg      Config
}

func testConfig() Config {
	return Config{
		WinThreshold:  3,
		RoundTimeout:  10 * time.Second,
		RoundPause:    2 * time.Second,
		CommandBuffer: 16,
	}
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		clock:    clockwork.NewFakeClock(),
		notifier: newRecordingNotifier(),
		feed:     &recordingFeed{},
		cfg:      testConfig(),
	}
	h.manager = NewManager(h.cfg, h.notifier,
		WithClock(h.clock),
		WithFeed(h.feed),
		WithRand(rand.New(rand.NewSource(42))),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = h.manager.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return h
}

// startMatch seats alice then bob in room and returns once round 1 is open
func (h *harness) startMatch(t *testing.T, room string) {
	t.Helper()
	require.NoError(t, h.manager.Join(alice, room))
	require.NoError(t, h.manager.Join(bob, room))
}

func (h *harness) snapshot(t *testing.T, room string) RoomSnapshot {
	t.Helper()
	snap, err := h.manager.Snapshot(room)
	require.NoError(t, err)
	return snap
}

// waitTask blocks until the room's pending task is of kind
func (h *harness) waitTask(t *testing.T, room string, kind TaskKind) {
	t.Helper()
	require.Eventually(t, func() bool {
		snap, err := h.manager.Snapshot(room)
		return err == nil && snap.TaskArmed && snap.TaskKind == kind
	}, time.Second, 5*time.Millisecond)
}

// playRound has alice and bob submit and, unless the match ended, advances through the pause
func (h *harness) playRound(t *testing.T, room string, a, b Choice) {
	t.Helper()
	require.NoError(t, h.manager.SubmitChoice(alice, room, a))
	require.NoError(t, h.manager.SubmitChoice(bob, room, b))
	if h.snapshot(t, room).Status == RoomStatusFinished {
		return
	}
	h.waitTask(t, room, TaskPause)
	h.clock.Advance(h.cfg.RoundPause)
	h.waitTask(t, room, TaskDeadline)
}

func lastResult(t *testing.T, n *recordingNotifier, p ParticipantID) ResultPayload {
	t.Helper()
	results := n.of(p, EventTypeResult)
	require.NotEmpty(t, results)
	payload, ok := results[len(results)-1].Data.(ResultPayload)
	require.True(t, ok)
	return payload
}

func TestJoin_FirstParticipantWaits(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.manager.Join(alice, "r1"))

	snap := h.snapshot(t, "r1")
	assert.Equal(t, RoomStatusWaiting, snap.Status)
	assert.Equal(t, 0, snap.Round)
	assert.Equal(t, []ParticipantID{alice}, snap.Participants)
	assert.False(t, snap.TaskArmed)
	assert.Empty(t, h.notifier.types(alice))
}

func TestJoin_SecondParticipantStartsMatch(t *testing.T) {
	h := newHarness(t)
	h.startMatch(t, "r1")

	for _, p := range []ParticipantID{alice, bob} {
		assert.Equal(t, []EventType{EventTypeStartGame, EventTypeNewRound}, h.notifier.types(p))

		start := h.notifier.of(p, EventTypeStartGame)[0].Data.(StartGamePayload)
		assert.Equal(t, 3, start.WinThreshold)

		round := h.notifier.of(p, EventTypeNewRound)[0].Data.(NewRoundPayload)
		assert.Equal(t, 1, round.Round)
		assert.Equal(t, 10, round.TimeoutSec)
		assert.Equal(t, h.clock.Now().Add(10*time.Second), round.Deadline)
	}

	snap := h.snapshot(t, "r1")
	assert.Equal(t, RoomStatusPlaying, snap.Status)
	assert.Equal(t, 1, snap.Round)
	assert.Equal(t, map[string]int{"alice": 0, "bob": 0}, snap.Scores)
	assert.True(t, snap.TaskArmed)
	assert.Equal(t, TaskDeadline, snap.TaskKind)

	assert.Equal(t, []RecordType{RecordMatchStarted}, h.feed.types())
}

func TestJoin_Idempotent(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.manager.Join(alice, "r1"))
	require.NoError(t, h.manager.Join(alice, "r1"))

	snap := h.snapshot(t, "r1")
	assert.Equal(t, []ParticipantID{alice}, snap.Participants)
	assert.Equal(t, RoomStatusWaiting, snap.Status)
}

func TestJoin_ThirdParticipantRejected(t *testing.T) {
	h := newHarness(t)
	h.startMatch(t, "r1")

	err := h.manager.Join(carol, "r1")
	require.ErrorIs(t, err, ErrRoomFull)
	assert.True(t, IsSilent(err))
	assert.Empty(t, h.notifier.types(carol))

	snap := h.snapshot(t, "r1")
	assert.Equal(t, []ParticipantID{alice, bob}, snap.Participants)
	assert.Equal(t, 1, snap.Round)
}

func TestSubmitChoice_ResolvesWithPerspective(t *testing.T) {
	h := newHarness(t)
	h.startMatch(t, "r1")

	require.NoError(t, h.manager.SubmitChoice(alice, "r1", ChoiceRock))
	assert.Empty(t, h.notifier.of(alice, EventTypeResult), "no result until both have chosen")

	require.NoError(t, h.manager.SubmitChoice(bob, "r1", ChoiceScissors))

	a := lastResult(t, h.notifier, alice)
	assert.Equal(t, ResultPayload{
		Round:          1,
		YourChoice:     ChoiceRock,
		OpponentChoice: ChoiceScissors,
		Outcome:        OutcomeWin,
		YourScore:      1,
		OpponentScore:  0,
	}, a)

	b := lastResult(t, h.notifier, bob)
	assert.Equal(t, ResultPayload{
		Round:          1,
		YourChoice:     ChoiceScissors,
		OpponentChoice: ChoiceRock,
		Outcome:        OutcomeLoss,
		YourScore:      0,
		OpponentScore:  1,
	}, b)

	snap := h.snapshot(t, "r1")
	assert.Equal(t, RoomStatusRoundEnd, snap.Status)
	assert.Equal(t, map[string]int{"alice": 1, "bob": 0}, snap.Scores)
	assert.Equal(t, TaskPause, snap.TaskKind)
}

func TestSubmitChoice_Draw(t *testing.T) {
	h := newHarness(t)
	h.startMatch(t, "r1")

	require.NoError(t, h.manager.SubmitChoice(alice, "r1", ChoicePaper))
	require.NoError(t, h.manager.SubmitChoice(bob, "r1", ChoicePaper))

	for _, p := range []ParticipantID{alice, bob} {
		res := lastResult(t, h.notifier, p)
		assert.Equal(t, OutcomeDraw, res.Outcome)
		assert.Equal(t, 0, res.YourScore)
		assert.Equal(t, 0, res.OpponentScore)
	}
}

func TestSubmitChoice_Rejected(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.manager.Join(alice, "r1"))

	testCases := []struct {
		name    string
		p       ParticipantID
		room    string
		choice  Choice
		wantErr error
	}{
		{name: "invalid choice", p: alice, room: "r1", choice: Choice("lizard"), wantErr: ErrInvalidChoice},
		{name: "unknown room", p: alice, room: "nope", choice: ChoiceRock, wantErr: ErrRoomNotFound},
		{name: "not a member", p: carol, room: "r1", choice: ChoiceRock, wantErr: ErrNotInRoom},
		{name: "room still waiting", p: alice, room: "r1", choice: ChoiceRock, wantErr: ErrNotPlaying},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := h.manager.SubmitChoice(tc.p, tc.room, tc.choice)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestSubmitChoice_IgnoredDuringPause(t *testing.T) {
	h := newHarness(t)
	h.startMatch(t, "r1")

	require.NoError(t, h.manager.SubmitChoice(alice, "r1", ChoiceRock))
	require.NoError(t, h.manager.SubmitChoice(bob, "r1", ChoiceScissors))

	err := h.manager.SubmitChoice(alice, "r1", ChoicePaper)
	assert.ErrorIs(t, err, ErrNotPlaying)
	assert.Len(t, h.notifier.of(alice, EventTypeResult), 1)
}

func TestSubmitChoice_OverwriteBeforeResolution(t *testing.T) {
	h := newHarness(t)
	h.startMatch(t, "r1")

	require.NoError(t, h.manager.SubmitChoice(alice, "r1", ChoiceRock))
	require.NoError(t, h.manager.SubmitChoice(alice, "r1", ChoicePaper))
	require.NoError(t, h.manager.SubmitChoice(bob, "r1", ChoiceRock))

	res := lastResult(t, h.notifier, alice)
	assert.Equal(t, ChoicePaper, res.YourChoice)
	assert.Equal(t, OutcomeWin, res.Outcome)
}

func TestDeadline_AutoPicksMissingChoice(t *testing.T) {
	h := newHarness(t)
	h.startMatch(t, "r1")

	require.NoError(t, h.manager.SubmitChoice(alice, "r1", ChoiceRock))
	h.clock.Advance(h.cfg.RoundTimeout)

	require.Eventually(t, func() bool {
		return len(h.notifier.of(alice, EventTypeResult)) == 1 &&
			len(h.notifier.of(bob, EventTypeResult)) == 1
	}, time.Second, 5*time.Millisecond)

	a := lastResult(t, h.notifier, alice)
	b := lastResult(t, h.notifier, bob)
	assert.Equal(t, ChoiceRock, a.YourChoice)
	assert.False(t, a.AutoPicked)
	assert.True(t, b.AutoPicked)
	assert.True(t, b.YourChoice.Valid())
	assert.Equal(t, b.YourChoice, a.OpponentChoice)
	assert.Equal(t, a.YourScore, b.OpponentScore)

	// late submissions after the deadline do not produce a second result
	assert.ErrorIs(t, h.manager.SubmitChoice(bob, "r1", ChoicePaper), ErrNotPlaying)
	h.waitTask(t, "r1", TaskPause)
	assert.Len(t, h.notifier.of(bob, EventTypeResult), 1)
}

func TestDeadline_BothSilent(t *testing.T) {
	h := newHarness(t)
	h.startMatch(t, "r1")

	h.clock.Advance(h.cfg.RoundTimeout)
	h.waitTask(t, "r1", TaskPause)

	for _, p := range []ParticipantID{alice, bob} {
		res := lastResult(t, h.notifier, p)
		assert.True(t, res.AutoPicked)
		assert.True(t, res.YourChoice.Valid())
		assert.True(t, res.OpponentChoice.Valid())
	}
}

func TestDeadline_CancelledByResolution(t *testing.T) {
	h := newHarness(t)
	h.startMatch(t, "r1")

	require.NoError(t, h.manager.SubmitChoice(alice, "r1", ChoiceRock))
	require.NoError(t, h.manager.SubmitChoice(bob, "r1", ChoiceRock))

	// the pause fires and opens round 2 with a fresh deadline
	h.clock.Advance(h.cfg.RoundPause)
	h.waitTask(t, "r1", TaskDeadline)

	assert.Equal(t, 2, h.snapshot(t, "r1").Round)

	// reach round 1's cancelled deadline, which must not fire
	h.clock.Advance(h.cfg.RoundTimeout - h.cfg.RoundPause)
	assert.Never(t, func() bool {
		return len(h.notifier.of(alice, EventTypeResult)) > 1
	}, 100*time.Millisecond, 10*time.Millisecond)
}

func TestPause_StartsNextRound(t *testing.T) {
	h := newHarness(t)
	h.startMatch(t, "r1")

	h.playRound(t, "r1", ChoiceRock, ChoiceScissors)

	rounds := h.notifier.of(bob, EventTypeNewRound)
	require.Len(t, rounds, 2)
	assert.Equal(t, 2, rounds[1].Data.(NewRoundPayload).Round)

	snap := h.snapshot(t, "r1")
	assert.Equal(t, RoomStatusPlaying, snap.Status)
	assert.Equal(t, map[string]int{"alice": 1, "bob": 0}, snap.Scores, "scores carry across rounds")
}

func TestMatch_FinishesAtThreshold(t *testing.T) {
	h := newHarness(t)
	h.startMatch(t, "r1")

	h.playRound(t, "r1", ChoiceRock, ChoiceScissors)
	h.playRound(t, "r1", ChoiceRock, ChoicePaper)
	h.playRound(t, "r1", ChoicePaper, ChoiceRock)
	h.playRound(t, "r1", ChoiceScissors, ChoicePaper)

	snap := h.snapshot(t, "r1")
	assert.Equal(t, RoomStatusFinished, snap.Status)
	assert.Equal(t, map[string]int{"alice": 3, "bob": 1}, snap.Scores)
	assert.False(t, snap.TaskArmed)

	aliceOver := h.notifier.of(alice, EventTypeGameOver)
	require.Len(t, aliceOver, 1)
	assert.Equal(t, GameOverPayload{Won: true, YourScore: 3, OpponentScore: 1}, aliceOver[0].Data)

	bobOver := h.notifier.of(bob, EventTypeGameOver)
	require.Len(t, bobOver, 1)
	assert.Equal(t, GameOverPayload{Won: false, YourScore: 1, OpponentScore: 3}, bobOver[0].Data)

	// the result of the deciding round precedes game-over and no further round opens
	types := h.notifier.types(alice)
	assert.Equal(t, EventTypeResult, types[len(types)-2])
	assert.Equal(t, EventTypeGameOver, types[len(types)-1])

	h.clock.Advance(time.Minute)
	assert.Len(t, h.notifier.of(alice, EventTypeNewRound), 4)
	assert.Equal(t, RoomStatusFinished, h.snapshot(t, "r1").Status)

	assert.Contains(t, h.feed.types(), RecordMatchFinished)
}

func finishMatch(t *testing.T, h *harness, room string) {
	t.Helper()
	for i := 0; i < h.cfg.WinThreshold; i++ {
		h.playRound(t, room, ChoiceRock, ChoiceScissors)
	}
	require.Equal(t, RoomStatusFinished, h.snapshot(t, room).Status)
}

func TestRematch_RequiresBothVotes(t *testing.T) {
	h := newHarness(t)
	h.startMatch(t, "r1")
	finishMatch(t, h, "r1")

	require.NoError(t, h.manager.RequestRematch(alice, "r1"))
	require.NoError(t, h.manager.RequestRematch(alice, "r1"))
	assert.Empty(t, h.notifier.of(alice, EventTypeRematchStart))
	assert.Equal(t, RoomStatusFinished, h.snapshot(t, "r1").Status)

	require.NoError(t, h.manager.RequestRematch(bob, "r1"))

	for _, p := range []ParticipantID{alice, bob} {
		assert.Len(t, h.notifier.of(p, EventTypeRematchStart), 1)
		rounds := h.notifier.of(p, EventTypeNewRound)
		assert.Equal(t, 1, rounds[len(rounds)-1].Data.(NewRoundPayload).Round)
	}

	snap := h.snapshot(t, "r1")
	assert.Equal(t, RoomStatusPlaying, snap.Status)
	assert.Equal(t, 1, snap.Round)
	assert.Equal(t, map[string]int{"alice": 0, "bob": 0}, snap.Scores)
	assert.Equal(t, TaskDeadline, snap.TaskKind)
}

func TestRematch_RejectedBeforeGameOver(t *testing.T) {
	h := newHarness(t)
	h.startMatch(t, "r1")

	assert.ErrorIs(t, h.manager.RequestRematch(alice, "r1"), ErrNotFinished)
	assert.ErrorIs(t, h.manager.RequestRematch(carol, "r1"), ErrNotInRoom)
	assert.ErrorIs(t, h.manager.RequestRematch(alice, "nope"), ErrRoomNotFound)
}

func TestRematch_VoteClearedWhenVoterLeaves(t *testing.T) {
	h := newHarness(t)
	h.startMatch(t, "r1")
	finishMatch(t, h, "r1")

	require.NoError(t, h.manager.RequestRematch(alice, "r1"))
	require.NoError(t, h.manager.Leave(alice, "r1"))
	require.NoError(t, h.manager.Join(carol, "r1"))

	// a new match starts with carol, alice's old vote is gone
	snap := h.snapshot(t, "r1")
	assert.Equal(t, RoomStatusPlaying, snap.Status)
	assert.Equal(t, 1, snap.Round)
	assert.Empty(t, h.notifier.of(bob, EventTypeRematchStart))
}

func TestLeave_NotifiesSurvivorAndCancelsTask(t *testing.T) {
	h := newHarness(t)
	h.startMatch(t, "r1")
	require.NoError(t, h.manager.SubmitChoice(bob, "r1", ChoicePaper))

	require.NoError(t, h.manager.Leave(alice, "r1"))

	assert.Len(t, h.notifier.of(bob, EventTypeOpponentLeft), 1)
	assert.Empty(t, h.notifier.of(alice, EventTypeOpponentLeft))

	snap := h.snapshot(t, "r1")
	assert.Equal(t, RoomStatusWaiting, snap.Status)
	assert.Equal(t, []ParticipantID{bob}, snap.Participants)
	assert.False(t, snap.TaskArmed)

	// the cancelled deadline never resolves a round
	h.clock.Advance(time.Minute)
	assert.Empty(t, h.notifier.of(bob, EventTypeResult))
	assert.Equal(t, RoomStatusWaiting, h.snapshot(t, "r1").Status)
}

func TestLeave_DuringPauseCancelsNextRound(t *testing.T) {
	h := newHarness(t)
	h.startMatch(t, "r1")
	require.NoError(t, h.manager.SubmitChoice(alice, "r1", ChoiceRock))
	require.NoError(t, h.manager.SubmitChoice(bob, "r1", ChoicePaper))

	require.NoError(t, h.manager.Leave(bob, "r1"))
	h.clock.Advance(h.cfg.RoundPause)

	assert.Len(t, h.notifier.of(alice, EventTypeNewRound), 1)
	assert.False(t, h.snapshot(t, "r1").TaskArmed)
}

func TestLeave_LastParticipantDestroysRoom(t *testing.T) {
	h := newHarness(t)
	h.startMatch(t, "r1")

	require.NoError(t, h.manager.Leave(alice, "r1"))
	require.NoError(t, h.manager.Leave(bob, "r1"))

	_, err := h.manager.Snapshot("r1")
	assert.ErrorIs(t, err, ErrRoomNotFound)

	err = h.manager.Leave(bob, "r1")
	assert.ErrorIs(t, err, ErrRoomNotFound)
	assert.True(t, IsSilent(err))

	rooms, err := h.manager.Rooms()
	require.NoError(t, err)
	assert.Empty(t, rooms)

	assert.Equal(t, []RecordType{
		RecordMatchStarted,
		RecordParticipantLeft,
		RecordParticipantLeft,
	}, h.feed.types())
}

func TestLeave_SurvivorPairsWithNewOpponent(t *testing.T) {
	h := newHarness(t)
	h.startMatch(t, "r1")
	h.playRound(t, "r1", ChoiceRock, ChoiceScissors)

	require.NoError(t, h.manager.Leave(bob, "r1"))
	require.NoError(t, h.manager.Join(carol, "r1"))

	assert.Len(t, h.notifier.of(carol, EventTypeStartGame), 1)
	round := h.notifier.of(carol, EventTypeNewRound)[0].Data.(NewRoundPayload)
	assert.Equal(t, 1, round.Round)

	snap := h.snapshot(t, "r1")
	assert.Equal(t, RoomStatusPlaying, snap.Status)
	assert.Equal(t, []ParticipantID{alice, carol}, snap.Participants)
	assert.Equal(t, 0, snap.Scores["carol"])
}

func TestDisconnect_LeavesEveryRoom(t *testing.T) {
	h := newHarness(t)
	h.startMatch(t, "r1")
	require.NoError(t, h.manager.Join(alice, "r2"))

	require.NoError(t, h.manager.Disconnect(alice))

	assert.Len(t, h.notifier.of(bob, EventTypeOpponentLeft), 1)
	_, err := h.manager.Snapshot("r2")
	assert.ErrorIs(t, err, ErrRoomNotFound)
	assert.Equal(t, []ParticipantID{bob}, h.snapshot(t, "r1").Participants)

	// disconnecting someone with no rooms is a no-op
	require.NoError(t, h.manager.Disconnect(carol))
}

func TestRooms_OrderedByKey(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.manager.Join(alice, "b"))
	require.NoError(t, h.manager.Join(bob, "a"))

	rooms, err := h.manager.Rooms()
	require.NoError(t, err)
	require.Len(t, rooms, 2)
	assert.Equal(t, "a", rooms[0].Key)
	assert.Equal(t, "b", rooms[1].Key)
}

func TestManager_StoppedRejectsCommands(t *testing.T) {
	m := NewManager(testConfig(), newRecordingNotifier(), WithClock(clockwork.NewFakeClock()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		assert.NoError(t, m.Run(ctx))
	}()

	require.NoError(t, m.Join(alice, "r1"))
	cancel()
	<-done

	assert.ErrorIs(t, m.Join(bob, "r1"), ErrManagerStopped)
	assert.ErrorIs(t, m.Disconnect(alice), ErrManagerStopped)
}
