package models

import (
	"errors"
	"strings"
)

type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseStreaming Phase = "streaming"
	PhaseSaving    Phase = "saving"
	PhaseDone      Phase = "done"
	PhaseError     Phase = "error"
)

var ErrInvalidOpponent = errors.New("opponent must be of the form platform:username")

// OpponentID identifies an opponent on an external platform. Usernames are
// normalized to lower case so the queue treats them case-insensitively.
type OpponentID struct {
	Platform string
	Username string
}

func ParseOpponentID(s string) (OpponentID, error) {
	platform, username, ok := strings.Cut(s, ":")
	platform = strings.TrimSpace(platform)
	username = strings.TrimSpace(username)
	if !ok || platform == "" || username == "" {
		return OpponentID{}, ErrInvalidOpponent
	}
	return OpponentID{
		Platform: strings.ToLower(platform),
		Username: strings.ToLower(username),
	}, nil
}

func (id OpponentID) String() string {
	return id.Platform + ":" + id.Username
}

// ImportTask is one queued import. MaxGames zero means "use the configured
// default cap".
type ImportTask struct {
	Opponent OpponentID
	MaxGames int
	Color    string // "" = both colors
	Rated    string // "" = both, "true"/"false" otherwise
}

// ImportRequest parameterizes a single worker run.
type ImportRequest struct {
	Platform         string
	Username         string
	Color            string // "" = both colors
	Rated            string // "" = both, "true"/"false" otherwise
	SinceTimestampMs int64
	MaxGames         int
}

// ImportStatus is the ephemeral view of the running pipeline, reconstructed
// from worker messages and the write session.
type ImportStatus struct {
	Phase                 Phase    `json:"phase"`
	Opponent              string   `json:"opponent,omitempty"`
	GamesProcessed        int      `json:"games_processed"`
	BytesRead             int64    `json:"bytes_read"`
	PendingWrites         int      `json:"pending_writes"`
	BaseCount             int64    `json:"base_count"`
	NewestGameTimestampMs int64    `json:"newest_game_timestamp_ms,omitempty"`
	LastError             string   `json:"last_error,omitempty"`
	Queue                 []string `json:"queue"`
}

// SyncState is the durable per-opponent resume state.
type SyncState struct {
	CumulativeGamesSynced int   `json:"cumulative_games_synced"`
	LastSyncedTimestampMs int64 `json:"last_synced_timestamp_ms"`
	MaxGamesOverride      int   `json:"max_games_override,omitempty"`
}
