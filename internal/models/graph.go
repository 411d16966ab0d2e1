package models

import (
	"database/sql/driver"
	"errors"
	"time"

	json "github.com/goccy/go-json"
)

// MoveStats holds outcome tallies for a single move in a single position.
// Values flowing through the import pipeline are deltas; the remote store
// sums them into the persisted totals.
type MoveStats struct {
	Count  int64 `json:"count"`
	Wins   int64 `json:"wins"`
	Losses int64 `json:"losses"`
	Draws  int64 `json:"draws"`
}

func (s *MoveStats) Add(o *MoveStats) {
	if o == nil {
		return
	}
	s.Count += o.Count
	s.Wins += o.Wins
	s.Losses += o.Losses
	s.Draws += o.Draws
}

// StatsMap maps a move identifier (UCI) to its outcome tallies.
type StatsMap map[string]*MoveStats

func (m StatsMap) Merge(other StatsMap) {
	for move, stats := range other {
		if cur, ok := m[move]; ok {
			cur.Add(stats)
		} else {
			cp := *stats
			m[move] = &cp
		}
	}
}

// PlayedBy splits the statistics of a position between moves the opponent
// made and moves made against the opponent.
type PlayedBy struct {
	Opponent StatsMap `json:"opponent"`
	Against  StatsMap `json:"against"`
}

func NewPlayedBy() PlayedBy {
	return PlayedBy{
		Opponent: make(StatsMap),
		Against:  make(StatsMap),
	}
}

func (p PlayedBy) Value() (driver.Value, error) {
	return json.Marshal(p)
}

func (p *PlayedBy) Scan(src any) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, p)
	case string:
		return json.Unmarshal([]byte(v), p)
	case nil:
		*p = NewPlayedBy()
		return nil
	}
	return errors.New("played_by: unsupported scan source")
}

// OpeningGraphNode is one row of the opening graph table. Exactly one row
// exists per (platform, username, filter_key, position_key); its stats only
// ever grow by field-wise merge.
type OpeningGraphNode struct {
	Platform    string    `gorm:"primaryKey;type:varchar(32)" json:"platform"`
	Username    string    `gorm:"primaryKey;type:varchar(64)" json:"username"`
	FilterKey   string    `gorm:"primaryKey;type:varchar(32);column:filter_key" json:"filter_key"`
	PositionKey string    `gorm:"primaryKey;type:varchar(128);column:position_key" json:"position_key"`
	PlayedBy    PlayedBy  `gorm:"type:jsonb;column:played_by" json:"played_by"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (OpeningGraphNode) TableName() string {
	return "opening_graph_nodes"
}

// Key returns the logical identity of the node within one import run.
func (n *OpeningGraphNode) Key() string {
	return n.Platform + "|" + n.Username + "|" + n.FilterKey + "|" + n.PositionKey
}

// Merge folds another node's deltas into this one (field-wise sum).
func (n *OpeningGraphNode) Merge(other *OpeningGraphNode) {
	if other == nil {
		return
	}
	if n.PlayedBy.Opponent == nil {
		n.PlayedBy = NewPlayedBy()
	}
	n.PlayedBy.Opponent.Merge(other.PlayedBy.Opponent)
	n.PlayedBy.Against.Merge(other.PlayedBy.Against)
}
