// internal/lobby/service_test.go
package lobby

import (
	"context"
	"errors"
	"io"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pickuphq/pickup/internal/models"
	"github.com/pickuphq/pickup/internal/store"
)

// fakeRatings serves canned ratings, or fails every lookup.
type fakeRatings struct {
	ratings map[uuid.UUID]int
	err     error
}

func (f *fakeRatings) FetchRating(_ context.Context, playerID uuid.UUID) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.ratings[playerID], nil
}

// recordingReporter counts scoring invocations instead of hitting a database.
type recordingReporter struct {
	mu    sync.Mutex
	calls []MatchResult
	err   error
}

func (r *recordingReporter) ReportResult(_ context.Context, result MatchResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, result)
	return r.err
}

func (r *recordingReporter) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

// recordingNotifier collects published events.
type recordingNotifier struct {
	mu     sync.Mutex
	events []map[string]interface{}
}

func (n *recordingNotifier) Publish(_ context.Context, _ uuid.UUID, event map[string]interface{}) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

func (n *recordingNotifier) countType(eventType string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	count := 0
	for _, ev := range n.events {
		if ev["type"] == eventType {
			count++
		}
	}
	return count
}

type testEnv struct {
	svc      *Service
	ms       *store.MemoryStore
	ratings  *fakeRatings
	reporter *recordingReporter
	notifier *recordingNotifier
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	ms := store.NewMemoryStore()
	ratings := &fakeRatings{ratings: map[uuid.UUID]int{}}
	reporter := &recordingReporter{}
	notifier := &recordingNotifier{}

	svc := NewService(NewRepository(ms, time.Hour), ratings, reporter, notifier, DefaultConfig(), logger)
	svc.rng = rand.New(rand.NewSource(1))
	return &testEnv{svc: svc, ms: ms, ratings: ratings, reporter: reporter, notifier: notifier}
}

// fillLobby creates a lobby of the given size and joins players until full.
// Returns the lobby and the full roster, creator first.
func fillLobby(t *testing.T, env *testEnv, size int) (*models.Lobby, []uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	players := make([]uuid.UUID, size)
	for i := range players {
		players[i] = uuid.New()
	}
	l, err := env.svc.CreateLobby(ctx, players[0], size, 0, nil)
	require.NoError(t, err)
	for _, p := range players[1:] {
		l, err = env.svc.Join(ctx, l.ID, p)
		require.NoError(t, err)
	}
	return l, players
}

// lockSettings makes every player vote the same option so the draw is forced.
func lockSettings(t *testing.T, env *testEnv, lobbyID uuid.UUID, players []uuid.UUID) *models.Lobby {
	t.Helper()
	ctx := context.Background()
	var l *models.Lobby
	var err error
	for _, p := range players {
		l, err = env.svc.VoteSettings(ctx, lobbyID, p, "all_pick")
		require.NoError(t, err)
	}
	require.True(t, l.SettingsLocked())
	return l
}

func TestCreateLobbyValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.CreateLobby(ctx, uuid.New(), 1, 0, nil)
	assert.ErrorIs(t, err, ErrBadPlayerCount)

	_, err = env.svc.CreateLobby(ctx, uuid.New(), models.MaxLobbySize+1, 0, nil)
	assert.ErrorIs(t, err, ErrBadPlayerCount)

	_, err = env.svc.CreateLobby(ctx, uuid.New(), 4, -10, nil)
	assert.ErrorIs(t, err, ErrBadRatingRequirement)

	_, err = env.svc.CreateLobby(ctx, uuid.New(), 4, 0, []string{})
	assert.ErrorIs(t, err, ErrNoSettingsOptions)
}

func TestCreateLobbyRejectsSecondLobby(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	creator := uuid.New()

	_, err := env.svc.CreateLobby(ctx, creator, 4, 0, nil)
	require.NoError(t, err)

	_, err = env.svc.CreateLobby(ctx, creator, 4, 0, nil)
	assert.ErrorIs(t, err, ErrAlreadyInLobby)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestJoinFillsLobby(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	p1, p2, p3, p4 := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	l, err := env.svc.CreateLobby(ctx, p1, 4, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{p1}, l.Players)
	assert.Nil(t, l.FilledAt)

	l, err = env.svc.Join(ctx, l.ID, p2)
	require.NoError(t, err)
	l, err = env.svc.Join(ctx, l.ID, p3)
	require.NoError(t, err)
	assert.Nil(t, l.FilledAt)

	l, err = env.svc.Join(ctx, l.ID, p4)
	require.NoError(t, err)
	require.NotNil(t, l.FilledAt, "filling join must stamp FilledAt")
	assert.Len(t, l.Players, 4)

	_, err = env.svc.Join(ctx, l.ID, uuid.New())
	assert.ErrorIs(t, err, ErrLobbyFull)
}

func TestJoinRejectsCrossLobbyMembership(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a, _ := fillLobby(t, env, 2)

	other, err := env.svc.CreateLobby(ctx, uuid.New(), 4, 0, nil)
	require.NoError(t, err)

	// A member of the first lobby cannot join the second.
	member := a.Players[0]
	_, err = env.svc.Join(ctx, other.ID, member)
	assert.ErrorIs(t, err, ErrAlreadyInLobby)
}

func TestJoinAfterSettingsLocked(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	l, players := fillLobby(t, env, 2)
	// One seat frees up only on paper: lock settings first, then try.
	l = lockSettings(t, env, l.ID, players)

	_, err := env.svc.Join(ctx, l.ID, uuid.New())
	assert.ErrorIs(t, err, ErrSettingsLocked)

	_, err = env.svc.Leave(ctx, l.ID, players[0])
	assert.ErrorIs(t, err, ErrSettingsLocked, "roster is frozen once settings lock")
}

func TestJoinMissingLobby(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.Join(context.Background(), uuid.New(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRatingGate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	creator, lowRated, highRated := uuid.New(), uuid.New(), uuid.New()
	env.ratings.ratings[creator] = 1500
	env.ratings.ratings[lowRated] = 900
	env.ratings.ratings[highRated] = 1200

	l, err := env.svc.CreateLobby(ctx, creator, 4, 1000, nil)
	require.NoError(t, err)

	_, err = env.svc.Join(ctx, l.ID, lowRated)
	assert.ErrorIs(t, err, ErrBelowRating)

	_, err = env.svc.Join(ctx, l.ID, highRated)
	assert.NoError(t, err)
}

func TestRatingFetchFailureCountsAsZero(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.ratings.err = errors.New("profile service down")

	_, err := env.svc.CreateLobby(ctx, uuid.New(), 4, 1000, nil)
	assert.ErrorIs(t, err, ErrBelowRating)

	// An ungated lobby never consults the rating service.
	_, err = env.svc.CreateLobby(ctx, uuid.New(), 4, 0, nil)
	assert.NoError(t, err)
}

func TestConcurrentJoinsLastSeat(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	l, err := env.svc.CreateLobby(ctx, uuid.New(), 2, 0, nil)
	require.NoError(t, err)

	const contenders = 8
	var wg sync.WaitGroup
	errs := make([]error, contenders)
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.svc.Join(ctx, l.ID, uuid.New())
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
			continue
		}
		assert.True(t, errors.Is(err, store.ErrConflict) || errors.Is(err, ErrValidation),
			"unexpected error kind: %v", err)
	}
	assert.Equal(t, 1, successes, "exactly one contender wins the last seat")

	final, err := env.svc.GetLobby(ctx, l.ID)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(final.Players), final.PlayerCount)
}

func TestLeaveRemovesVoteAndUnfills(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	l, players := fillLobby(t, env, 3)
	require.NotNil(t, l.FilledAt)

	_, err := env.svc.VoteSettings(ctx, l.ID, players[1], "all_pick")
	require.NoError(t, err)

	l, err = env.svc.Leave(ctx, l.ID, players[1])
	require.NoError(t, err)
	assert.Len(t, l.Players, 2)
	assert.NotContains(t, l.Players, players[1])
	assert.NotContains(t, l.SettingsVotes, players[1], "leaving drops the settings vote")
	assert.Nil(t, l.FilledAt, "dropping below capacity clears FilledAt")

	_, err = env.svc.Leave(ctx, l.ID, players[1])
	assert.ErrorIs(t, err, ErrNotInLobby)

	// The freed player can join elsewhere.
	other, err := env.svc.CreateLobby(ctx, uuid.New(), 4, 0, nil)
	require.NoError(t, err)
	_, err = env.svc.Join(ctx, other.ID, players[1])
	assert.NoError(t, err)
}

func TestLastLeaveTearsDownLobby(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	creator := uuid.New()

	l, err := env.svc.CreateLobby(ctx, creator, 2, 0, nil)
	require.NoError(t, err)

	gone, err := env.svc.Leave(ctx, l.ID, creator)
	require.NoError(t, err)
	assert.Nil(t, gone)

	_, err = env.svc.GetLobby(ctx, l.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, found, err := env.svc.repo.PlayerLobbyID(ctx, creator)
	require.NoError(t, err)
	assert.False(t, found, "player index must go with the lobby")

	assert.Equal(t, 1, env.ms.QueueLen(TeardownQueue))
}

func TestVoteSettingsSelectsFromSubmitted(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	l, players := fillLobby(t, env, 4)
	choices := []string{"all_pick", "all_pick", "captains_mode", "all_pick"}
	var err error
	for i, p := range players {
		l, err = env.svc.VoteSettings(ctx, l.ID, p, choices[i])
		require.NoError(t, err)
		if i < len(players)-1 {
			assert.False(t, l.SettingsLocked(), "selection only after every seat voted")
		}
	}
	require.True(t, l.SettingsLocked())
	assert.Contains(t, []string{"all_pick", "captains_mode"}, l.SelectedSettingID)

	_, err = env.svc.VoteSettings(ctx, l.ID, players[0], "random_draft")
	assert.ErrorIs(t, err, ErrSettingsLocked)
}

func TestVoteSettingsValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	l, players := fillLobby(t, env, 2)

	_, err := env.svc.VoteSettings(ctx, l.ID, players[0], "bogus_mode")
	assert.ErrorIs(t, err, ErrBadSettingsChoice)

	_, err = env.svc.VoteSettings(ctx, l.ID, uuid.New(), "all_pick")
	assert.ErrorIs(t, err, ErrNotInLobby)
}

func TestVoteSettingsRevoteReplaces(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	l, players := fillLobby(t, env, 3)
	_, err := env.svc.VoteSettings(ctx, l.ID, players[0], "all_pick")
	require.NoError(t, err)
	l, err = env.svc.VoteSettings(ctx, l.ID, players[0], "captains_mode")
	require.NoError(t, err)

	assert.Len(t, l.SettingsVotes, 1)
	assert.Equal(t, "captains_mode", l.SettingsVotes[players[0]])
	assert.False(t, l.SettingsLocked())
}

func TestVoteWinnerMajority(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	l, players := fillLobby(t, env, 4)
	l = lockSettings(t, env, l.ID, players)
	winner := players[2]

	var err error
	for i, voter := range players[:2] {
		l, err = env.svc.VoteWinner(ctx, l.ID, voter, winner.String())
		require.NoError(t, err)
		assert.False(t, l.Resolved(), "vote %d should not resolve yet", i+1)
	}

	l, err = env.svc.VoteWinner(ctx, l.ID, players[2], winner.String())
	require.NoError(t, err)
	require.True(t, l.Resolved(), "third matching vote resolves a 4-player lobby")
	assert.Equal(t, winner.String(), l.Winner)
	assert.NotNil(t, l.CompletedAt)
	assert.True(t, l.ResultSubmitted)

	require.Equal(t, 1, env.reporter.callCount())
	call := env.reporter.calls[0]
	assert.Equal(t, l.ID, call.LobbyID)
	assert.Equal(t, winner, call.WinnerID)
	assert.Equal(t, l.SelectedSettingID, call.SettingID)
	assert.Len(t, call.Players, 4)

	_, err = env.svc.VoteWinner(ctx, l.ID, players[3], winner.String())
	assert.ErrorIs(t, err, ErrWinnerDecided)
}

func TestVoteWinnerNoMajority(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	l, players := fillLobby(t, env, 4)
	l = lockSettings(t, env, l.ID, players)

	// A, B, C, B: nobody reaches 3.
	choices := []string{players[0].String(), players[1].String(), players[2].String(), players[1].String()}
	var err error
	for i, voter := range players {
		l, err = env.svc.VoteWinner(ctx, l.ID, voter, choices[i])
		require.NoError(t, err)
	}
	require.True(t, l.Resolved())
	assert.Equal(t, models.WinnerNoMajority, l.Winner)
	assert.False(t, l.ResultSubmitted)
	assert.Equal(t, 0, env.reporter.callCount(), "no-majority outcomes are not reported")
}

func TestVoteWinnerNotPlayedThreshold(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	l, players := fillLobby(t, env, 5)

	_, err := env.svc.VoteWinner(ctx, l.ID, players[0], players[1].String())
	require.NoError(t, err)
	_, err = env.svc.VoteWinner(ctx, l.ID, players[1], models.NotPlayedVote)
	require.NoError(t, err)

	l, err = env.svc.VoteWinner(ctx, l.ID, players[2], models.NotPlayedVote)
	require.NoError(t, err)
	require.True(t, l.Resolved(), "second not-played vote abandons immediately")
	assert.Equal(t, models.WinnerNoResult, l.Winner)
	assert.Equal(t, 0, env.reporter.callCount())
}

func TestVoteWinnerRevoteReplaces(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	l, players := fillLobby(t, env, 4)
	a, b := players[0], players[1]

	_, err := env.svc.VoteWinner(ctx, l.ID, players[2], a.String())
	require.NoError(t, err)
	l, err = env.svc.VoteWinner(ctx, l.ID, players[2], b.String())
	require.NoError(t, err)

	require.Len(t, l.WinnerVotes, 1, "a re-vote replaces, never duplicates")
	assert.Equal(t, b.String(), l.WinnerVotes[0].Choice)
}

func TestVoteWinnerRejectsNonParticipantChoice(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	l, players := fillLobby(t, env, 4)
	_, err := env.svc.VoteWinner(ctx, l.ID, players[0], uuid.New().String())
	assert.ErrorIs(t, err, ErrBadWinnerChoice)

	_, err = env.svc.VoteWinner(ctx, l.ID, players[0], "definitely-not-a-uuid")
	assert.ErrorIs(t, err, ErrBadWinnerChoice)
}

func TestResultReportedAtMostOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.reporter.err = errors.New("scoring service flaked")

	l, players := fillLobby(t, env, 4)
	l = lockSettings(t, env, l.ID, players)
	winner := players[0]

	var err error
	for _, voter := range players[:3] {
		l, err = env.svc.VoteWinner(ctx, l.ID, voter, winner.String())
		require.NoError(t, err, "a failed report must not fail the vote")
	}
	require.True(t, l.Resolved())
	assert.True(t, l.ResultSubmitted, "submission is claimed in the resolving commit")
	assert.Equal(t, 1, env.reporter.callCount())

	// A retried resolution attempt cannot trigger a second report.
	_, err = env.svc.VoteWinner(ctx, l.ID, players[3], winner.String())
	assert.ErrorIs(t, err, ErrWinnerDecided)
	assert.Equal(t, 1, env.reporter.callCount())
}

func TestStaleIndexCleared(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	player := uuid.New()

	l, err := env.svc.CreateLobby(ctx, player, 2, 0, nil)
	require.NoError(t, err)

	// Simulate the lobby record expiring while the index entry lingers.
	require.NoError(t, env.ms.Delete(ctx, "lobby:"+l.ID.String()))

	fresh, err := env.svc.CreateLobby(ctx, player, 4, 0, nil)
	require.NoError(t, err, "stale index must not lock the player out")
	assert.Equal(t, player, fresh.CreatorID)
}
