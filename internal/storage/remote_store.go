package storage

import (
	"context"
	"fmt"

	json "github.com/goccy/go-json"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"ogd/internal/models"
	"ogd/internal/providers"
	"ogd/internal/structures"
)

// mergeStatsFn sums two move-stats maps field-wise. Installed once at
// migration time; its presence is what the capability probe checks.
const mergeStatsFn = `
CREATE OR REPLACE FUNCTION ogd_merge_stats(a jsonb, b jsonb) RETURNS jsonb AS $$
DECLARE
	k text;
	merged jsonb := COALESCE(a, '{}'::jsonb);
BEGIN
	FOR k IN SELECT jsonb_object_keys(COALESCE(b, '{}'::jsonb)) LOOP
		IF merged ? k THEN
			merged := jsonb_set(merged, ARRAY[k], jsonb_build_object(
				'count',  COALESCE((merged->k->>'count')::bigint, 0)  + COALESCE((b->k->>'count')::bigint, 0),
				'wins',   COALESCE((merged->k->>'wins')::bigint, 0)   + COALESCE((b->k->>'wins')::bigint, 0),
				'losses', COALESCE((merged->k->>'losses')::bigint, 0) + COALESCE((b->k->>'losses')::bigint, 0),
				'draws',  COALESCE((merged->k->>'draws')::bigint, 0)  + COALESCE((b->k->>'draws')::bigint, 0)));
		ELSE
			merged := jsonb_set(merged, ARRAY[k], b->k);
		END IF;
	END LOOP;
	RETURN merged;
END $$ LANGUAGE plpgsql;
`

// mergeNodesFn applies a batch of node deltas additively. The ON CONFLICT
// arm makes each row's merge atomic on the server.
const mergeNodesFn = `
CREATE OR REPLACE FUNCTION ogd_merge_nodes(payload jsonb) RETURNS void AS $$
	INSERT INTO opening_graph_nodes (platform, username, filter_key, position_key, played_by, updated_at)
	SELECT e->>'platform', e->>'username', e->>'filter_key', e->>'position_key', e->'played_by', now()
	FROM jsonb_array_elements(payload) AS e
	ON CONFLICT (platform, username, filter_key, position_key) DO UPDATE SET
		played_by = jsonb_build_object(
			'opponent', ogd_merge_stats(opening_graph_nodes.played_by->'opponent', EXCLUDED.played_by->'opponent'),
			'against',  ogd_merge_stats(opening_graph_nodes.played_by->'against',  EXCLUDED.played_by->'against')),
		updated_at = now();
$$ LANGUAGE sql;
`

type RemoteStoreInterface interface {
	ProbeMergeSupport(ctx context.Context) bool
	MergeNodes(ctx context.Context, nodes []*models.OpeningGraphNode) error
	UpsertNodesOverwrite(ctx context.Context, nodes []*models.OpeningGraphNode) error
	UpsertGames(ctx context.Context, games []*models.GameRecord) error
	CountGames(ctx context.Context, owner, platform, username string) (int64, error)
	ListNodes(ctx context.Context, platform, username, filterKey, positionKey string, limit int) ([]models.OpeningGraphNode, error)
	ListGames(ctx context.Context, owner, platform, username string, limit int) ([]models.GameRecord, error)
	Close() error
}

type RemoteStore struct {
	db     *gorm.DB
	logger providers.Logger
}

func NewRemoteStore(conf *structures.Config, logger providers.Logger) (RemoteStoreInterface, error) {
	db, err := gorm.Open(postgres.Open(conf.Database.DSN), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	s := &RemoteStore{db: db, logger: logger}

	if conf.Database.AutoMigrate {
		if err := db.AutoMigrate(&models.OpeningGraphNode{}, &models.GameRecord{}); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
		// Installing the merge functions can fail on restricted roles; the
		// writer then falls back to overwrite mode.
		if err := db.Exec(mergeStatsFn).Error; err != nil {
			logger.Warnf(providers.TypeWrite, "Cannot install ogd_merge_stats: %s", err)
		} else if err := db.Exec(mergeNodesFn).Error; err != nil {
			logger.Warnf(providers.TypeWrite, "Cannot install ogd_merge_nodes: %s", err)
		}
	}

	return s, nil
}

// ProbeMergeSupport checks once per run whether the server-side merge
// function is installed.
func (s *RemoteStore) ProbeMergeSupport(ctx context.Context) bool {
	var ok bool
	err := s.db.WithContext(ctx).
		Raw("SELECT to_regproc('ogd_merge_nodes') IS NOT NULL").
		Scan(&ok).Error
	if err != nil {
		s.logger.Warnf(providers.TypeWrite, "Merge capability probe failed: %s", err)
		return false
	}
	return ok
}

func (s *RemoteStore) MergeNodes(ctx context.Context, nodes []*models.OpeningGraphNode) error {
	if len(nodes) == 0 {
		return nil
	}
	payload, err := json.Marshal(nodes)
	if err != nil {
		return fmt.Errorf("marshal node batch: %w", err)
	}
	if err := s.db.WithContext(ctx).Exec("SELECT ogd_merge_nodes(?::jsonb)", string(payload)).Error; err != nil {
		return fmt.Errorf("merge nodes: %w", err)
	}
	return nil
}

// UpsertNodesOverwrite is the degraded write path used when the merge
// function is missing: last write wins instead of summing.
func (s *RemoteStore) UpsertNodesOverwrite(ctx context.Context, nodes []*models.OpeningGraphNode) error {
	if len(nodes) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).Clauses(clauseOnConflictNodes()).Create(nodes).Error
	if err != nil {
		return fmt.Errorf("upsert nodes: %w", err)
	}
	return nil
}

func (s *RemoteStore) UpsertGames(ctx context.Context, games []*models.GameRecord) error {
	if len(games) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).Clauses(clauseOnConflictGamesIgnore()).Create(games).Error
	if err != nil {
		return fmt.Errorf("upsert games: %w", err)
	}
	return nil
}

func (s *RemoteStore) CountGames(ctx context.Context, owner, platform, username string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.GameRecord{}).
		Where("owner = ? AND platform = ? AND username = ?", owner, platform, username).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("count games: %w", err)
	}
	return count, nil
}

func (s *RemoteStore) ListNodes(ctx context.Context, platform, username, filterKey, positionKey string, limit int) ([]models.OpeningGraphNode, error) {
	q := s.db.WithContext(ctx).Model(&models.OpeningGraphNode{}).
		Where("platform = ? AND username = ? AND filter_key = ?", platform, username, filterKey)
	if positionKey != "" {
		q = q.Where("position_key = ?", positionKey)
	}
	var nodes []models.OpeningGraphNode
	if err := q.Limit(limit).Find(&nodes).Error; err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}
	return nodes, nil
}

func (s *RemoteStore) ListGames(ctx context.Context, owner, platform, username string, limit int) ([]models.GameRecord, error) {
	var games []models.GameRecord
	err := s.db.WithContext(ctx).
		Where("owner = ? AND platform = ? AND username = ?", owner, platform, username).
		Order("played_at DESC").
		Limit(limit).
		Find(&games).Error
	if err != nil {
		return nil, fmt.Errorf("list games: %w", err)
	}
	return games, nil
}

func (s *RemoteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
