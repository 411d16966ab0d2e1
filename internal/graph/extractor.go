package graph

import (
	"fmt"
	"strings"

	"github.com/corentings/chess/v2"

	"ogd/internal/archive"
	"ogd/internal/models"
)

// Extracted is what one archived game contributes to the pipeline: graph node
// deltas and the raw game record.
type Extracted struct {
	Nodes  []*models.OpeningGraphNode
	Record *models.GameRecord
}

type Extractor struct {
	platform     string
	owner        string
	openingDepth int
}

// NewExtractor builds an extractor for one import run. openingDepth caps how
// many plies of each game feed the opening graph.
func NewExtractor(platform, owner string, openingDepth int) *Extractor {
	return &Extractor{
		platform:     platform,
		owner:        owner,
		openingDepth: openingDepth,
	}
}

// ExtractGame replays a game's moves and produces position-keyed stat deltas
// plus the GameRecord. The opponent is matched case-insensitively against the
// white and black player names.
func (e *Extractor) ExtractGame(g *archive.Game, opponent string) (*Extracted, error) {
	opponentColor, err := resolveOpponentColor(g, opponent)
	if err != nil {
		return nil, err
	}
	result := resultForOpponent(g.Winner, opponentColor)

	replay := chess.NewGame()
	notation := chess.AlgebraicNotation{}
	trace := models.OpeningTrace{}
	nodes := make(map[string]*models.OpeningGraphNode)
	filterKeys := []string{"all", SpeedFilter(g.Speed)}

	for ply, san := range strings.Fields(g.Moves) {
		if ply >= e.openingDepth {
			break
		}
		pos := replay.Position()
		positionKey := NormalizePositionKey(pos.String())
		moverIsWhite := pos.Turn() == chess.White

		mv, err := notation.Decode(pos, san)
		if err != nil {
			return nil, fmt.Errorf("game %s ply %d: decode %q: %w", g.ID, ply+1, san, err)
		}
		if err := replay.Move(mv, nil); err != nil {
			return nil, fmt.Errorf("game %s ply %d: apply %q: %w", g.ID, ply+1, san, err)
		}

		moveID := mv.String()
		byOpponent := (moverIsWhite && opponentColor == models.ColorWhite) ||
			(!moverIsWhite && opponentColor == models.ColorBlack)

		trace = append(trace, models.TracePly{
			Ply:         ply + 1,
			PositionKey: positionKey,
			Move:        moveID,
			ByOpponent:  byOpponent,
		})

		// Outcomes are tallied relative to the mover of each move, so a
		// node's "against" bucket scores the moves from the adversary's
		// point of view.
		moverResult := result
		if !byOpponent {
			moverResult = invertResult(result)
		}

		for _, fk := range filterKeys {
			key := e.platform + "|" + strings.ToLower(opponent) + "|" + fk + "|" + positionKey
			node, ok := nodes[key]
			if !ok {
				node = &models.OpeningGraphNode{
					Platform:    e.platform,
					Username:    strings.ToLower(opponent),
					FilterKey:   fk,
					PositionKey: positionKey,
					PlayedBy:    models.NewPlayedBy(),
				}
				nodes[key] = node
			}
			bucket := node.PlayedBy.Against
			if byOpponent {
				bucket = node.PlayedBy.Opponent
			}
			stats, ok := bucket[moveID]
			if !ok {
				stats = &models.MoveStats{}
				bucket[moveID] = stats
			}
			stats.Count++
			switch moverResult {
			case models.ResultWin:
				stats.Wins++
			case models.ResultLoss:
				stats.Losses++
			default:
				stats.Draws++
			}
		}
	}

	pgn := g.PGN
	if pgn == "" {
		pgn = g.Moves
	}
	record := &models.GameRecord{
		Owner:          e.owner,
		Platform:       e.platform,
		PlatformGameID: g.ID,
		Username:       strings.ToLower(opponent),
		PlayedAt:       g.CreatedAt,
		Speed:          g.Speed,
		Rated:          g.Rated,
		Result:         result,
		OpponentColor:  opponentColor,
		PGN:            pgn,
		OpeningTrace:   trace,
	}

	out := &Extracted{Record: record}
	for _, node := range nodes {
		out.Nodes = append(out.Nodes, node)
	}
	return out, nil
}

// NormalizePositionKey strips the halfmove and fullmove clocks from a FEN so
// transpositions reached at different move numbers share one key.
func NormalizePositionKey(fen string) string {
	fields := strings.Fields(fen)
	if len(fields) < 4 {
		return fen
	}
	return strings.Join(fields[:4], " ")
}

// SpeedFilter buckets archive speeds into filter partitions.
func SpeedFilter(speed string) string {
	switch strings.ToLower(speed) {
	case "ultrabullet", "bullet":
		return "bullet"
	case "blitz":
		return "blitz"
	case "rapid":
		return "rapid"
	case "classical", "correspondence":
		return "classical"
	default:
		return "other"
	}
}

func resolveOpponentColor(g *archive.Game, opponent string) (string, error) {
	switch {
	case strings.EqualFold(g.Players.White.Username(), opponent):
		return models.ColorWhite, nil
	case strings.EqualFold(g.Players.Black.Username(), opponent):
		return models.ColorBlack, nil
	}
	return "", fmt.Errorf("game %s: player %q not present", g.ID, opponent)
}

func resultForOpponent(winner, opponentColor string) string {
	switch winner {
	case "":
		return models.ResultDraw
	case opponentColor:
		return models.ResultWin
	}
	return models.ResultLoss
}

func invertResult(result string) string {
	switch result {
	case models.ResultWin:
		return models.ResultLoss
	case models.ResultLoss:
		return models.ResultWin
	}
	return models.ResultDraw
}
