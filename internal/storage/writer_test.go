package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ogd/internal/models"
	"ogd/internal/structures"
	"ogd/internal/testutil"
)

// fakeRemoteStore implements RemoteStoreInterface with injectable failures.
type fakeRemoteStore struct {
	mu           sync.Mutex
	mergeSupport bool
	mergeErr     error
	upsertErr    error
	gamesErr     error

	mergeCalls     [][]*models.OpeningGraphNode
	overwriteCalls [][]*models.OpeningGraphNode
	gameCalls      [][]*models.GameRecord
}

func (f *fakeRemoteStore) ProbeMergeSupport(_ context.Context) bool { return f.mergeSupport }

func (f *fakeRemoteStore) MergeNodes(_ context.Context, nodes []*models.OpeningGraphNode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.mergeErr != nil {
		return f.mergeErr
	}
	f.mergeCalls = append(f.mergeCalls, nodes)
	return nil
}

func (f *fakeRemoteStore) UpsertNodesOverwrite(_ context.Context, nodes []*models.OpeningGraphNode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.overwriteCalls = append(f.overwriteCalls, nodes)
	return nil
}

func (f *fakeRemoteStore) UpsertGames(_ context.Context, games []*models.GameRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gamesErr != nil {
		return f.gamesErr
	}
	f.gameCalls = append(f.gameCalls, games)
	return nil
}

func (f *fakeRemoteStore) CountGames(_ context.Context, _, _, _ string) (int64, error) {
	return 0, nil
}

func (f *fakeRemoteStore) ListNodes(_ context.Context, _, _, _, _ string, _ int) ([]models.OpeningGraphNode, error) {
	return nil, nil
}

func (f *fakeRemoteStore) ListGames(_ context.Context, _, _, _ string, _ int) ([]models.GameRecord, error) {
	return nil, nil
}

func (f *fakeRemoteStore) Close() error { return nil }

func (f *fakeRemoteStore) writtenGames() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, call := range f.gameCalls {
		n += len(call)
	}
	return n
}

func writerConfig() *structures.Config {
	return &structures.Config{
		Database: structures.DatabaseConfig{
			NodeChunkSize:   2,
			GameChunkSize:   2,
			GameParallelism: 2,
		},
	}
}

func node(positionKey string) *models.OpeningGraphNode {
	n := &models.OpeningGraphNode{
		Platform:    "lichess",
		Username:    "rival",
		FilterKey:   "all",
		PositionKey: positionKey,
		PlayedBy:    models.NewPlayedBy(),
	}
	n.PlayedBy.Opponent["e2e4"] = &models.MoveStats{Count: 1}
	return n
}

func game(id string) *models.GameRecord {
	return &models.GameRecord{Owner: "me", Platform: "lichess", PlatformGameID: id, Username: "rival"}
}

func TestWriteSession_MergeStrategyWhenSupported(t *testing.T) {
	store := &fakeRemoteStore{mergeSupport: true}
	w := NewWriter(writerConfig(), store, &testutil.MockLogger{})

	s := w.NewSession(context.Background())
	assert.Equal(t, MergeWrite, s.Strategy())
	require.NoError(t, s.Drain())
}

func TestWriteSession_OverwriteFallback(t *testing.T) {
	store := &fakeRemoteStore{mergeSupport: false}
	w := NewWriter(writerConfig(), store, &testutil.MockLogger{})

	s := w.NewSession(context.Background())
	assert.Equal(t, OverwriteWrite, s.Strategy())

	ok := s.Submit(&models.FlushPayload{Nodes: []*models.OpeningGraphNode{node("a")}})
	assert.True(t, ok)
	require.NoError(t, s.Drain())

	assert.Empty(t, store.mergeCalls)
	assert.Len(t, store.overwriteCalls, 1)
}

func TestWriteSession_AppliesFlushesAndCounts(t *testing.T) {
	store := &fakeRemoteStore{mergeSupport: true}
	w := NewWriter(writerConfig(), store, &testutil.MockLogger{})

	s := w.NewSession(context.Background())
	ok := s.Submit(&models.FlushPayload{
		Nodes: []*models.OpeningGraphNode{node("a"), node("b"), node("c")},
		Games: []*models.GameRecord{game("g1"), game("g2"), game("g3")},
	})
	assert.True(t, ok)
	require.NoError(t, s.Drain())

	// 3 nodes with chunk size 2 -> 2 merge calls.
	assert.Len(t, store.mergeCalls, 2)
	assert.Equal(t, 3, store.writtenGames())
	assert.Equal(t, int64(3), w.GamesWrittenTotal())
	assert.Equal(t, int64(1), w.FlushesTotal())
	assert.Equal(t, 0, w.PendingWrites())
	assert.Equal(t, int64(0), w.WriteErrorsTotal())
}

func TestWriteSession_OnAppliedFiresOnlyForDurableFlushes(t *testing.T) {
	store := &fakeRemoteStore{mergeSupport: true}
	w := NewWriter(writerConfig(), store, &testutil.MockLogger{})

	var mu sync.Mutex
	var applied []int
	s := w.NewSession(context.Background())
	s.OnApplied(func(flush *models.FlushPayload) {
		mu.Lock()
		applied = append(applied, flush.GamesProcessed)
		mu.Unlock()
	})

	require.True(t, s.Submit(&models.FlushPayload{
		Games:          []*models.GameRecord{game("g1"), game("g2")},
		GamesProcessed: 2,
	}))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(applied) == 1
	}, 2*time.Second, time.Millisecond)

	store.mu.Lock()
	store.gamesErr = errors.New("deadlock detected")
	store.mu.Unlock()
	require.True(t, s.Submit(&models.FlushPayload{
		Games:          []*models.GameRecord{game("g3")},
		GamesProcessed: 3,
	}))
	require.NoError(t, s.Drain())

	// The failed flush is not a resume point.
	assert.Equal(t, []int{2}, applied)
}

func TestWriteSession_DedupesWithinBatch(t *testing.T) {
	store := &fakeRemoteStore{mergeSupport: true}
	w := NewWriter(writerConfig(), store, &testutil.MockLogger{})

	s := w.NewSession(context.Background())
	s.Submit(&models.FlushPayload{
		Games: []*models.GameRecord{game("g1"), game("g1"), game("g2")},
	})
	require.NoError(t, s.Drain())

	assert.Equal(t, 2, store.writtenGames())
}

func TestWriteSession_NonFatalErrorContinues(t *testing.T) {
	store := &fakeRemoteStore{mergeSupport: true, gamesErr: errors.New("deadlock detected")}
	w := NewWriter(writerConfig(), store, &testutil.MockLogger{})

	s := w.NewSession(context.Background())
	s.Submit(&models.FlushPayload{Games: []*models.GameRecord{game("g1")}})
	require.NoError(t, s.Drain())

	assert.False(t, s.Disabled())
	assert.Equal(t, int64(1), w.WriteErrorsTotal())
	assert.Contains(t, s.LastError(), "deadlock")

	// A later session can still submit.
	store.gamesErr = nil
	s2 := w.NewSession(context.Background())
	assert.True(t, s2.Submit(&models.FlushPayload{Games: []*models.GameRecord{game("g2")}}))
	require.NoError(t, s2.Drain())
}

func TestWriteSession_AuthErrorDisablesSession(t *testing.T) {
	authErr := &pgconn.PgError{Code: "28P01", Message: "password authentication failed"}
	store := &fakeRemoteStore{mergeSupport: true, gamesErr: authErr}
	w := NewWriter(writerConfig(), store, &testutil.MockLogger{})

	s := w.NewSession(context.Background())
	require.True(t, s.Submit(&models.FlushPayload{Games: []*models.GameRecord{game("g1")}}))

	err := s.Drain()
	require.Error(t, err)
	assert.True(t, s.Disabled())
	assert.False(t, s.Submit(&models.FlushPayload{Games: []*models.GameRecord{game("g2")}}),
		"submits after a fatal error must be rejected")
	assert.Equal(t, 0, w.PendingWrites())
}

func TestWriteSession_SubmitNilIsNoop(t *testing.T) {
	store := &fakeRemoteStore{mergeSupport: true}
	w := NewWriter(writerConfig(), store, &testutil.MockLogger{})

	s := w.NewSession(context.Background())
	assert.True(t, s.Submit(nil))
	require.NoError(t, s.Drain())
	assert.Equal(t, int64(0), w.FlushesTotal())
}

func TestIsAuthError(t *testing.T) {
	assert.True(t, IsAuthError(&pgconn.PgError{Code: "28000"}))
	assert.True(t, IsAuthError(&pgconn.PgError{Code: "28P01"}))
	assert.True(t, IsAuthError(&pgconn.PgError{Code: "42501"}))
	assert.True(t, IsAuthError(fmt.Errorf("wrap: %w", &pgconn.PgError{Code: "42501"})))
	assert.True(t, IsAuthError(errors.New("FATAL: password authentication failed for user")))
	assert.True(t, IsAuthError(errors.New("ERROR: permission denied for table game_records")))
	assert.False(t, IsAuthError(errors.New("deadlock detected")))
	assert.False(t, IsAuthError(&pgconn.PgError{Code: "40P01"}))
}

func TestDedupeGames(t *testing.T) {
	in := []*models.GameRecord{game("g1"), game("g2"), game("g1")}
	out := DedupeGames(in)
	require.Len(t, out, 2)
	assert.Equal(t, "g1", out[0].PlatformGameID)
	assert.Equal(t, "g2", out[1].PlatformGameID)

	assert.Len(t, DedupeGames(nil), 0)
	one := []*models.GameRecord{game("g1")}
	assert.Equal(t, one, DedupeGames(one))
}

func TestChunk(t *testing.T) {
	parts := chunk([]int{1, 2, 3, 4, 5}, 2)
	require.Len(t, parts, 3)
	assert.Equal(t, []int{1, 2}, parts[0])
	assert.Equal(t, []int{5}, parts[2])

	assert.Len(t, chunk([]int{1, 2}, 0), 1)
	assert.Nil(t, chunk([]int(nil), 3))
}
