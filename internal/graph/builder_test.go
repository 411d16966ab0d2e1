package graph

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ogd/internal/models"
)

func extractedGame(id, positionKey string) *Extracted {
	node := &models.OpeningGraphNode{
		Platform:    "lichess",
		Username:    "rival",
		FilterKey:   "all",
		PositionKey: positionKey,
		PlayedBy:    models.NewPlayedBy(),
	}
	node.PlayedBy.Opponent["e2e4"] = &models.MoveStats{Count: 1, Wins: 1}
	return &Extracted{
		Nodes:  []*models.OpeningGraphNode{node},
		Record: &models.GameRecord{Owner: "me", Platform: "lichess", PlatformGameID: id, Username: "rival"},
	}
}

func TestBuilder_MergesNodeDeltas(t *testing.T) {
	b := NewBuilder(100, time.Hour)
	b.AddGame(extractedGame("g1", "posA"))
	b.AddGame(extractedGame("g2", "posA"))
	b.AddGame(extractedGame("g3", "posB"))

	payload := b.Flush()
	require.NotNil(t, payload)
	require.Len(t, payload.Nodes, 2)
	assert.Len(t, payload.Games, 3)
	assert.Equal(t, 3, payload.GamesProcessed)

	// Deterministic ordering by node key.
	assert.Equal(t, "posA", payload.Nodes[0].PositionKey)
	assert.Equal(t, "posB", payload.Nodes[1].PositionKey)
	assert.Equal(t, int64(2), payload.Nodes[0].PlayedBy.Opponent["e2e4"].Count)
}

func TestBuilder_FlushBySize(t *testing.T) {
	b := NewBuilder(2, time.Hour)
	assert.False(t, b.ShouldFlush())

	b.AddGame(extractedGame("g1", "posA"))
	assert.False(t, b.ShouldFlush())

	b.AddGame(extractedGame("g2", "posB"))
	assert.True(t, b.ShouldFlush())
}

func TestBuilder_FlushByAge(t *testing.T) {
	b := NewBuilder(100, 10*time.Millisecond)
	b.AddGame(extractedGame("g1", "posA"))
	assert.False(t, b.ShouldFlush())

	time.Sleep(20 * time.Millisecond)
	assert.True(t, b.ShouldFlush())
}

func TestBuilder_EmptyNeverFlushes(t *testing.T) {
	b := NewBuilder(1, time.Nanosecond)
	time.Sleep(time.Millisecond)
	assert.False(t, b.ShouldFlush())
	assert.Nil(t, b.Flush())
}

func TestBuilder_FlushResetsPending(t *testing.T) {
	b := NewBuilder(100, time.Hour)
	b.AddGame(extractedGame("g1", "posA"))
	require.NotNil(t, b.Flush())

	assert.Equal(t, 0, b.PendingGames())
	assert.Nil(t, b.Flush())

	// GamesProcessed is cumulative across flushes.
	b.AddGame(extractedGame("g2", "posB"))
	payload := b.Flush()
	require.NotNil(t, payload)
	assert.Equal(t, 2, payload.GamesProcessed)
	assert.Len(t, payload.Games, 1)
}
