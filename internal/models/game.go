package models

import (
	"database/sql/driver"
	"errors"
	"time"

	json "github.com/goccy/go-json"
)

const (
	ResultWin  = "win"
	ResultLoss = "loss"
	ResultDraw = "draw"
)

const (
	ColorWhite = "white"
	ColorBlack = "black"
)

// TracePly is one ply of the opening trace: the position the mover faced and
// the move chosen in it.
type TracePly struct {
	Ply         int    `json:"ply"`
	PositionKey string `json:"position_key"`
	Move        string `json:"move"`
	ByOpponent  bool   `json:"by_opponent"`
}

type OpeningTrace []TracePly

func (t OpeningTrace) Value() (driver.Value, error) {
	if t == nil {
		t = OpeningTrace{}
	}
	return json.Marshal(t)
}

func (t *OpeningTrace) Scan(src any) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, t)
	case string:
		return json.Unmarshal([]byte(v), t)
	case nil:
		*t = OpeningTrace{}
		return nil
	}
	return errors.New("opening_trace: unsupported scan source")
}

// GameRecord is one raw imported game. Identity is (owner, platform,
// platform_game_id); rows are immutable once written, duplicates are ignored
// on conflict.
type GameRecord struct {
	Owner          string       `gorm:"primaryKey;type:varchar(64)" json:"owner"`
	Platform       string       `gorm:"primaryKey;type:varchar(32)" json:"platform"`
	PlatformGameID string       `gorm:"primaryKey;type:varchar(64);column:platform_game_id" json:"platform_game_id"`
	Username       string       `gorm:"type:varchar(64);index" json:"username"`
	PlayedAt       int64        `gorm:"column:played_at" json:"played_at"`
	Speed          string       `gorm:"type:varchar(32)" json:"speed"`
	Rated          bool         `json:"rated"`
	Result         string       `gorm:"type:varchar(8)" json:"result"`
	OpponentColor  string       `gorm:"type:varchar(8);column:opponent_color" json:"opponent_color"`
	PGN            string       `gorm:"type:text;column:pgn" json:"pgn"`
	OpeningTrace   OpeningTrace `gorm:"type:jsonb;column:opening_trace" json:"opening_trace"`
	CreatedAt      time.Time    `json:"created_at"`
}

func (GameRecord) TableName() string {
	return "game_records"
}

// IdentityKey is used for in-batch deduplication before upserting.
func (g *GameRecord) IdentityKey() string {
	return g.Owner + "|" + g.Platform + "|" + g.PlatformGameID
}
