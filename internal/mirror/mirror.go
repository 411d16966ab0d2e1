package mirror

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"
	json "github.com/goccy/go-json"

	"ogd/internal/compression"
	"ogd/internal/models"
	"ogd/internal/providers"
	"ogd/internal/structures"
)

var ErrGameNotFound = errors.New("game not found in mirror")

// StoreInterface is the best-effort local mirror of imported games. PutGames
// never returns an error: mirror failures must not fail or stall an import.
type StoreInterface interface {
	PutGames(games []*models.GameRecord)
	GetGame(owner, platform, gameID string) (*models.GameRecord, error)
	ListByOpponent(owner, platform, username string, limit int) ([]*models.GameRecord, error)
	Close() error
}

type Store struct {
	db         *badger.DB
	compressor compression.CompressorInterface
	logger     providers.Logger
}

func NewMirrorStore(conf *structures.Config, compressor compression.CompressorInterface, logger providers.Logger) (StoreInterface, error) {
	if !conf.Mirror.Enabled {
		logger.Infof(providers.TypeApp, "Mirror cache disabled")
		return &noopStore{}, nil
	}

	opts := badger.DefaultOptions(conf.Mirror.Dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open mirror store: %w", err)
	}
	return &Store{db: db, compressor: compressor, logger: logger}, nil
}

func gameKey(owner, platform, gameID string) []byte {
	return []byte("game:" + owner + ":" + platform + ":" + gameID)
}

func opponentKey(owner, platform, username, gameID string) []byte {
	return []byte("opp:" + owner + ":" + platform + ":" + username + ":" + gameID)
}

// PutGames upserts a flush's games. Every failure is swallowed after
// logging; the primary pipeline never sees them.
func (s *Store) PutGames(games []*models.GameRecord) {
	if len(games) == 0 {
		return
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		for _, g := range games {
			raw, err := json.Marshal(g)
			if err != nil {
				return fmt.Errorf("marshal game %s: %w", g.PlatformGameID, err)
			}
			packed, err := s.compressor.Compress(raw)
			if err != nil {
				return fmt.Errorf("compress game %s: %w", g.PlatformGameID, err)
			}
			if err := txn.Set(gameKey(g.Owner, g.Platform, g.PlatformGameID), packed); err != nil {
				return err
			}
			// Secondary index entry for per-opponent listing.
			if err := txn.Set(opponentKey(g.Owner, g.Platform, g.Username, g.PlatformGameID), []byte(g.PlatformGameID)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.logger.Warnf(providers.TypeWrite, "Mirror write failed (ignored): %s", err)
	}
}

func (s *Store) GetGame(owner, platform, gameID string) (*models.GameRecord, error) {
	var game models.GameRecord
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(gameKey(owner, platform, gameID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrGameNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			raw, err := s.compressor.Decompress(val)
			if err != nil {
				return err
			}
			return json.Unmarshal(raw, &game)
		})
	})
	if err != nil {
		return nil, err
	}
	return &game, nil
}

func (s *Store) ListByOpponent(owner, platform, username string, limit int) ([]*models.GameRecord, error) {
	prefix := []byte("opp:" + owner + ":" + platform + ":" + strings.ToLower(username) + ":")
	var ids []string
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(ids) >= limit {
				break
			}
			err := it.Item().Value(func(val []byte) error {
				ids = append(ids, string(val))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	games := make([]*models.GameRecord, 0, len(ids))
	for _, id := range ids {
		g, err := s.GetGame(owner, platform, id)
		if err != nil {
			continue
		}
		games = append(games, g)
	}
	return games, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

type noopStore struct{}

func (n *noopStore) PutGames(_ []*models.GameRecord) {}
func (n *noopStore) GetGame(_, _, _ string) (*models.GameRecord, error) {
	return nil, ErrGameNotFound
}
func (n *noopStore) ListByOpponent(_, _, _ string, _ int) ([]*models.GameRecord, error) {
	return nil, nil
}
func (n *noopStore) Close() error { return nil }
