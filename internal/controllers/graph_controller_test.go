package controllers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ogd/internal/models"
	"ogd/internal/structures"
	"ogd/internal/testutil"
)

// mockRemoteStore implements storage.RemoteStoreInterface for read paths.
type mockRemoteStore struct {
	mu        sync.Mutex
	nodes     []models.OpeningGraphNode
	games     []models.GameRecord
	listErr   error
	nodeCalls int
	gameCalls int
}

func (m *mockRemoteStore) ProbeMergeSupport(_ context.Context) bool { return true }
func (m *mockRemoteStore) MergeNodes(_ context.Context, _ []*models.OpeningGraphNode) error {
	return nil
}
func (m *mockRemoteStore) UpsertNodesOverwrite(_ context.Context, _ []*models.OpeningGraphNode) error {
	return nil
}
func (m *mockRemoteStore) UpsertGames(_ context.Context, _ []*models.GameRecord) error { return nil }
func (m *mockRemoteStore) CountGames(_ context.Context, _, _, _ string) (int64, error) {
	return 0, nil
}

func (m *mockRemoteStore) ListNodes(_ context.Context, _, _, _, _ string, _ int) ([]models.OpeningGraphNode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nodeCalls++
	return m.nodes, m.listErr
}

func (m *mockRemoteStore) ListGames(_ context.Context, _, _, _ string, _ int) ([]models.GameRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gameCalls++
	return m.games, m.listErr
}

func (m *mockRemoteStore) Close() error { return nil }

func graphControllerConfig() *structures.Config {
	return &structures.Config{
		Importer: structures.ImporterConfig{ProfileOwner: "me"},
	}
}

func newGraphController(store *mockRemoteStore, cache *testutil.MockCache) *GraphController {
	return NewGraphController(&testutil.MockLogger{}, store, cache, graphControllerConfig())
}

func TestGraphController_GetGraph(t *testing.T) {
	store := &mockRemoteStore{nodes: []models.OpeningGraphNode{{
		Platform:    "lichess",
		Username:    "rival",
		FilterKey:   "all",
		PositionKey: "pos",
		PlayedBy:    models.NewPlayedBy(),
	}}}
	gc := newGraphController(store, testutil.NewMockCache())

	req := httptest.NewRequest(http.MethodGet, "/graph?platform=lichess&username=rival", nil)
	w := httptest.NewRecorder()
	gc.GetGraph(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var got []models.OpeningGraphNode
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "rival", got[0].Username)
}

func TestGraphController_GetGraphMissingParams(t *testing.T) {
	gc := newGraphController(&mockRemoteStore{}, testutil.NewMockCache())

	for _, target := range []string{"/graph", "/graph?platform=lichess", "/graph?username=rival"} {
		w := httptest.NewRecorder()
		gc.GetGraph(w, httptest.NewRequest(http.MethodGet, target, nil))
		assert.Equal(t, http.StatusBadRequest, w.Code, "target %s", target)
	}
}

func TestGraphController_GetGraphCaches(t *testing.T) {
	store := &mockRemoteStore{}
	gc := newGraphController(store, testutil.NewMockCache())

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		gc.GetGraph(w, httptest.NewRequest(http.MethodGet, "/graph?platform=lichess&username=rival&filter=blitz", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	}
	assert.Equal(t, 1, store.nodeCalls, "repeated queries must be served from cache")
}

func TestGraphController_GetGraphStoreError(t *testing.T) {
	store := &mockRemoteStore{listErr: errors.New("connection refused")}
	gc := newGraphController(store, testutil.NewMockCache())

	w := httptest.NewRecorder()
	gc.GetGraph(w, httptest.NewRequest(http.MethodGet, "/graph?platform=lichess&username=rival", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestGraphController_GetGames(t *testing.T) {
	store := &mockRemoteStore{games: []models.GameRecord{{
		Owner:          "me",
		Platform:       "lichess",
		PlatformGameID: "g1",
		Username:       "rival",
	}}}
	gc := newGraphController(store, testutil.NewMockCache())

	req := httptest.NewRequest(http.MethodGet, "/games?platform=lichess&username=rival&limit=10", nil)
	w := httptest.NewRecorder()
	gc.GetGames(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var got []models.GameRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "g1", got[0].PlatformGameID)
}

func TestGraphController_GetGamesMissingParams(t *testing.T) {
	gc := newGraphController(&mockRemoteStore{}, testutil.NewMockCache())

	w := httptest.NewRecorder()
	gc.GetGames(w, httptest.NewRequest(http.MethodGet, "/games", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetLimit(t *testing.T) {
	mk := func(raw string) *http.Request {
		return httptest.NewRequest(http.MethodGet, "/graph"+raw, nil)
	}
	assert.Equal(t, defaultListLimit, getLimit(mk("")))
	assert.Equal(t, 25, getLimit(mk("?limit=25")))
	assert.Equal(t, defaultListLimit, getLimit(mk("?limit=abc")))
	assert.Equal(t, defaultListLimit, getLimit(mk("?limit=-5")))
}
