package importer

import (
	"context"
	"errors"
	"strings"

	"ogd/internal/archive"
	"ogd/internal/graph"
	"ogd/internal/models"
	"ogd/internal/providers"
	"ogd/internal/structures"
)

// WorkerInterface streams one opponent's archive, extracts graph deltas and
// reports them back over a message channel. The channel is closed when the
// run ends, whether by completion, cap, error or context cancellation.
type WorkerInterface interface {
	Run(ctx context.Context, req models.ImportRequest) <-chan models.WorkerMessage
}

type Worker struct {
	client archive.ClientInterface
	conf   *structures.Config
	logger providers.Logger
}

func NewWorker(client archive.ClientInterface, conf *structures.Config, logger providers.Logger) WorkerInterface {
	return &Worker{client: client, conf: conf, logger: logger}
}

func (w *Worker) Run(ctx context.Context, req models.ImportRequest) <-chan models.WorkerMessage {
	out := make(chan models.WorkerMessage, 8)
	go func() {
		defer close(out)
		w.run(ctx, req, out)
	}()
	return out
}

func (w *Worker) run(ctx context.Context, req models.ImportRequest, out chan<- models.WorkerMessage) {
	extractor := graph.NewExtractor(req.Platform, strings.ToLower(w.conf.Importer.ProfileOwner), w.conf.Importer.OpeningDepth)
	builder := graph.NewBuilder(w.conf.Importer.FlushGames, w.conf.Importer.FlushInterval)

	var newestTimestamp int64
	maxGames := req.MaxGames
	if maxGames <= 0 {
		maxGames = w.conf.Importer.DefaultMaxGames
	}

	err := w.client.StreamGames(ctx, req, func(g *archive.Game, bytesRead int64) error {
		ex, err := extractor.ExtractGame(g, req.Username)
		if err != nil {
			w.logger.Warnf(providers.TypeImport, "Skipping game %s: %s", g.ID, err)
			return nil
		}
		builder.AddGame(ex)
		if g.CreatedAt > newestTimestamp {
			newestTimestamp = g.CreatedAt
		}

		// Progress is advisory. If the orchestrator is busy the update
		// is dropped rather than stalling the stream.
		select {
		case out <- models.WorkerMessage{Kind: models.MsgProgress, Progress: &models.ProgressPayload{
			GamesProcessed:        builder.GamesProcessed(),
			BytesRead:             bytesRead,
			Phase:                 models.PhaseStreaming,
			NewestGameTimestampMs: newestTimestamp,
		}}:
		default:
		}

		if builder.ShouldFlush() {
			if payload := builder.Flush(); payload != nil {
				payload.NewestGameTimestampMs = newestTimestamp
				select {
				case out <- models.WorkerMessage{Kind: models.MsgFlush, Flush: payload}:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
		if builder.GamesProcessed() >= maxGames {
			return archive.ErrStopStream
		}
		return nil
	})

	if err != nil && !errors.Is(err, archive.ErrStopStream) {
		out <- models.WorkerMessage{Kind: models.MsgError, Err: err.Error()}
		return
	}

	if payload := builder.Flush(); payload != nil {
		payload.NewestGameTimestampMs = newestTimestamp
		select {
		case out <- models.WorkerMessage{Kind: models.MsgFlush, Flush: payload}:
		case <-ctx.Done():
			return
		}
	}
	out <- models.WorkerMessage{Kind: models.MsgDone, Done: &models.DonePayload{
		GamesProcessed:        builder.GamesProcessed(),
		NewestGameTimestampMs: newestTimestamp,
	}}
}
