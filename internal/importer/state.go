package importer

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	json "github.com/goccy/go-json"

	"ogd/internal/compression"
	"ogd/internal/models"
	"ogd/internal/providers"
	"ogd/internal/structures"
)

const stateVersion = 1

type stateEnvelope struct {
	Version   int                          `json:"version"`
	Opponents map[string]*models.SyncState `json:"opponents"`
}

// SyncStateStore persists per-opponent sync cursors between runs. State is
// advisory: losing it only costs a full re-scan of an opponent's archive.
type SyncStateStoreInterface interface {
	Get(op models.OpponentID) models.SyncState
	SetOverride(op models.OpponentID, maxGames int) error
	RecordProgress(op models.OpponentID, gamesSynced int, newestTimestampMs int64) error
	ClearTimestamp(op models.OpponentID) error
}

type SyncStateStore struct {
	mu         sync.Mutex
	path       string
	opponents  map[string]*models.SyncState
	compressor compression.CompressorInterface
	logger     providers.Logger
}

func NewSyncStateStore(conf *structures.Config, compressor compression.CompressorInterface, logger providers.Logger) (SyncStateStoreInterface, error) {
	s := &SyncStateStore{
		path:       conf.Importer.StatePath,
		opponents:  make(map[string]*models.SyncState),
		compressor: compressor,
		logger:     logger,
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SyncStateStore) load() error {
	packed, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read sync state: %w", err)
	}
	raw, err := s.compressor.Decompress(packed)
	if err != nil {
		return fmt.Errorf("decompress sync state: %w", err)
	}
	var env stateEnvelope
	if err = json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("decode sync state: %w", err)
	}
	if env.Version != stateVersion {
		s.logger.Warnf(providers.TypeApp, "Unsupported sync state version %d, starting fresh", env.Version)
		return nil
	}
	if env.Opponents != nil {
		s.opponents = env.Opponents
	}
	return nil
}

// save writes to a temp file and renames so a crash mid-write never leaves
// a truncated state file.
func (s *SyncStateStore) save() error {
	raw, err := json.Marshal(stateEnvelope{Version: stateVersion, Opponents: s.opponents})
	if err != nil {
		return fmt.Errorf("encode sync state: %w", err)
	}
	packed, err := s.compressor.Compress(raw)
	if err != nil {
		return fmt.Errorf("compress sync state: %w", err)
	}
	if err = os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err = os.WriteFile(tmp, packed, 0o644); err != nil {
		return fmt.Errorf("write sync state: %w", err)
	}
	return os.Rename(tmp, s.path)
}

func (s *SyncStateStore) Get(op models.OpponentID) models.SyncState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.opponents[op.String()]; ok {
		return *st
	}
	return models.SyncState{}
}

func (s *SyncStateStore) entry(op models.OpponentID) *models.SyncState {
	st, ok := s.opponents[op.String()]
	if !ok {
		st = &models.SyncState{}
		s.opponents[op.String()] = st
	}
	return st
}

func (s *SyncStateStore) SetOverride(op models.OpponentID, maxGames int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entry(op).MaxGamesOverride = maxGames
	return s.save()
}

// RecordProgress advances the cursor. Both fields are monotonic: a run that
// saw fewer games or older timestamps than a previous one never moves the
// cursor backwards.
func (s *SyncStateStore) RecordProgress(op models.OpponentID, gamesSynced int, newestTimestampMs int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.entry(op)
	if gamesSynced > st.CumulativeGamesSynced {
		st.CumulativeGamesSynced = gamesSynced
	}
	if newestTimestampMs > st.LastSyncedTimestampMs {
		st.LastSyncedTimestampMs = newestTimestampMs
	}
	return s.save()
}

// ClearTimestamp drops the since cursor for an opponent whose remote rows
// turned out to be missing, forcing the next run to stream from the top.
func (s *SyncStateStore) ClearTimestamp(op models.OpponentID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.entry(op)
	st.LastSyncedTimestampMs = 0
	st.CumulativeGamesSynced = 0
	return s.save()
}
