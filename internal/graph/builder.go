package graph

import (
	"sort"
	"time"

	"ogd/internal/models"
)

// Builder accumulates extracted games into a pending flush so large imports
// never buffer unboundedly in memory.
type Builder struct {
	nodes          map[string]*models.OpeningGraphNode
	games          []*models.GameRecord
	gamesProcessed int
	flushGames     int
	flushInterval  time.Duration
	lastFlush      time.Time
}

func NewBuilder(flushGames int, flushInterval time.Duration) *Builder {
	return &Builder{
		nodes:         make(map[string]*models.OpeningGraphNode),
		flushGames:    flushGames,
		flushInterval: flushInterval,
		lastFlush:     time.Now(),
	}
}

func (b *Builder) AddGame(ex *Extracted) {
	for _, node := range ex.Nodes {
		if cur, ok := b.nodes[node.Key()]; ok {
			cur.Merge(node)
		} else {
			b.nodes[node.Key()] = node
		}
	}
	b.games = append(b.games, ex.Record)
	b.gamesProcessed++
}

func (b *Builder) GamesProcessed() int {
	return b.gamesProcessed
}

func (b *Builder) PendingGames() int {
	return len(b.games)
}

// ShouldFlush reports whether the pending batch is due, by size or by age.
func (b *Builder) ShouldFlush() bool {
	if len(b.games) == 0 {
		return false
	}
	if len(b.games) >= b.flushGames {
		return true
	}
	return time.Since(b.lastFlush) >= b.flushInterval
}

// Flush drains the pending batch into a payload, or returns nil when there is
// nothing to ship. Nodes are ordered deterministically.
func (b *Builder) Flush() *models.FlushPayload {
	if len(b.games) == 0 && len(b.nodes) == 0 {
		return nil
	}

	keys := make([]string, 0, len(b.nodes))
	for k := range b.nodes {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	nodes := make([]*models.OpeningGraphNode, 0, len(keys))
	for _, k := range keys {
		nodes = append(nodes, b.nodes[k])
	}

	payload := &models.FlushPayload{
		Nodes:          nodes,
		Games:          b.games,
		GamesProcessed: b.gamesProcessed,
	}

	b.nodes = make(map[string]*models.OpeningGraphNode)
	b.games = nil
	b.lastFlush = time.Now()
	return payload
}
