package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ogd/internal/importer"
	"ogd/internal/models"
	"ogd/internal/testutil"
)

// mockOrchestrator implements importer.OrchestratorInterface.
type mockOrchestrator struct {
	mu         sync.Mutex
	enqueueErr error
	dequeueOK  bool
	startErr   error
	stopErr    error
	status     models.ImportStatus
	enqueued   []models.ImportTask
	dequeued   []models.OpponentID
	starts     int
	stops      int
}

func (m *mockOrchestrator) Enqueue(task models.ImportTask) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.enqueueErr != nil {
		return m.enqueueErr
	}
	m.enqueued = append(m.enqueued, task)
	return nil
}

func (m *mockOrchestrator) Dequeue(op models.OpponentID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dequeued = append(m.dequeued, op)
	return m.dequeueOK
}

func (m *mockOrchestrator) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.starts++
	return m.startErr
}

func (m *mockOrchestrator) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stops++
	return m.stopErr
}

func (m *mockOrchestrator) Status() models.ImportStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

func (m *mockOrchestrator) Shutdown(_ context.Context) error { return nil }
func (m *mockOrchestrator) QueueLength() int                 { return len(m.status.Queue) }
func (m *mockOrchestrator) PendingWrites() int               { return 0 }
func (m *mockOrchestrator) GamesImportedTotal() int64        { return 0 }
func (m *mockOrchestrator) FlushesTotal() int64              { return 0 }
func (m *mockOrchestrator) WriteErrorsTotal() int64          { return 0 }

func newImportController(orch *mockOrchestrator) *ImportController {
	return NewImportController(&testutil.MockLogger{}, orch)
}

func TestImportController_Enqueue(t *testing.T) {
	orch := &mockOrchestrator{}
	ic := newImportController(orch)

	req := httptest.NewRequest(http.MethodPost, "/import/enqueue", strings.NewReader(`{"opponent":"lichess:Rival","maxGames":50}`))
	w := httptest.NewRecorder()
	ic.Enqueue(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)
	require.Len(t, orch.enqueued, 1)
	assert.Equal(t, "lichess:rival", orch.enqueued[0].Opponent.String())
	assert.Equal(t, 50, orch.enqueued[0].MaxGames)
}

func TestImportController_EnqueueWithFilters(t *testing.T) {
	orch := &mockOrchestrator{}
	ic := newImportController(orch)

	req := httptest.NewRequest(http.MethodPost, "/import/enqueue",
		strings.NewReader(`{"opponent":"lichess:rival","color":"white","rated":"true"}`))
	w := httptest.NewRecorder()
	ic.Enqueue(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)
	require.Len(t, orch.enqueued, 1)
	assert.Equal(t, "white", orch.enqueued[0].Color)
	assert.Equal(t, "true", orch.enqueued[0].Rated)
}

func TestImportController_EnqueueInvalidFilters(t *testing.T) {
	orch := &mockOrchestrator{}
	ic := newImportController(orch)

	for _, body := range []string{
		`{"opponent":"lichess:rival","color":"green"}`,
		`{"opponent":"lichess:rival","rated":"maybe"}`,
	} {
		req := httptest.NewRequest(http.MethodPost, "/import/enqueue", strings.NewReader(body))
		w := httptest.NewRecorder()
		ic.Enqueue(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code, "body %q", body)
	}
	assert.Empty(t, orch.enqueued)
}

func TestImportController_EnqueueDuplicate(t *testing.T) {
	orch := &mockOrchestrator{enqueueErr: importer.ErrAlreadyQueued}
	ic := newImportController(orch)

	req := httptest.NewRequest(http.MethodPost, "/import/enqueue", strings.NewReader(`{"opponent":"lichess:rival"}`))
	w := httptest.NewRecorder()
	ic.Enqueue(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestImportController_EnqueueBadBody(t *testing.T) {
	ic := newImportController(&mockOrchestrator{})

	for _, body := range []string{`{`, `{"opponent":"noseparator"}`, `{"opponent":""}`} {
		req := httptest.NewRequest(http.MethodPost, "/import/enqueue", strings.NewReader(body))
		w := httptest.NewRecorder()
		ic.Enqueue(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code, "body %q", body)
	}
}

func TestImportController_Dequeue(t *testing.T) {
	orch := &mockOrchestrator{dequeueOK: true}
	ic := newImportController(orch)

	req := httptest.NewRequest(http.MethodPost, "/import/dequeue", strings.NewReader(`{"opponent":"lichess:rival"}`))
	w := httptest.NewRecorder()
	ic.Dequeue(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	require.Len(t, orch.dequeued, 1)
}

func TestImportController_DequeueUnknown(t *testing.T) {
	ic := newImportController(&mockOrchestrator{dequeueOK: false})

	req := httptest.NewRequest(http.MethodPost, "/import/dequeue", strings.NewReader(`{"opponent":"lichess:rival"}`))
	w := httptest.NewRecorder()
	ic.Dequeue(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestImportController_StartStop(t *testing.T) {
	orch := &mockOrchestrator{}
	ic := newImportController(orch)

	w := httptest.NewRecorder()
	ic.Start(w, httptest.NewRequest(http.MethodPost, "/import/start", nil))
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, 1, orch.starts)

	w = httptest.NewRecorder()
	ic.Stop(w, httptest.NewRequest(http.MethodPost, "/import/stop", nil))
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, 1, orch.stops)
}

func TestImportController_StopWhenIdle(t *testing.T) {
	ic := newImportController(&mockOrchestrator{stopErr: importer.ErrNotRunning})

	w := httptest.NewRecorder()
	ic.Stop(w, httptest.NewRequest(http.MethodPost, "/import/stop", nil))
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestImportController_Status(t *testing.T) {
	orch := &mockOrchestrator{status: models.ImportStatus{
		Phase:          models.PhaseStreaming,
		Opponent:       "lichess:rival",
		GamesProcessed: 42,
		Queue:          []string{"lichess:other"},
	}}
	ic := newImportController(orch)

	w := httptest.NewRecorder()
	ic.Status(w, httptest.NewRequest(http.MethodGet, "/import/status", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var got models.ImportStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, models.PhaseStreaming, got.Phase)
	assert.Equal(t, 42, got.GamesProcessed)
	assert.Equal(t, []string{"lichess:other"}, got.Queue)
}
