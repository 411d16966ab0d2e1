package storage

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"ogd/internal/models"
	"ogd/internal/providers"
	"ogd/internal/structures"
)

// WriteStrategy selects how graph nodes reach the remote store. The probe at
// session start decides which one a run uses.
type WriteStrategy int

const (
	MergeWrite WriteStrategy = iota
	OverwriteWrite
)

type WriterInterface interface {
	NewSession(ctx context.Context) *WriteSession
	AttachMetrics(m providers.MetricsProviderInterface)
	PendingWrites() int
	FlushesTotal() int64
	WriteErrorsTotal() int64
	GamesWrittenTotal() int64
}

// Writer durably applies flush batches to the remote store. Flushes of one
// session are applied strictly in arrival order; the chunks of a game batch
// may run in bounded parallel because game rows are disjoint and idempotent.
type Writer struct {
	store           RemoteStoreInterface
	logger          providers.Logger
	metrics         providers.MetricsProviderInterface
	nodeChunkSize   int
	gameChunkSize   int
	gameParallelism int

	pending     atomic.Int64
	flushes     atomic.Int64
	writeErrors atomic.Int64
	gamesTotal  atomic.Int64
}

func NewWriter(conf *structures.Config, store RemoteStoreInterface, logger providers.Logger) WriterInterface {
	return &Writer{
		store:           store,
		logger:          logger,
		nodeChunkSize:   conf.Database.NodeChunkSize,
		gameChunkSize:   conf.Database.GameChunkSize,
		gameParallelism: conf.Database.GameParallelism,
	}
}

// AttachMetrics wires the metrics provider after construction; the provider
// itself is built from the orchestrator's stats, which depend on this writer.
func (w *Writer) AttachMetrics(m providers.MetricsProviderInterface) {
	w.metrics = m
}

func (w *Writer) PendingWrites() int      { return int(w.pending.Load()) }
func (w *Writer) FlushesTotal() int64     { return w.flushes.Load() }
func (w *Writer) WriteErrorsTotal() int64 { return w.writeErrors.Load() }
func (w *Writer) GamesWrittenTotal() int64 {
	return w.gamesTotal.Load()
}

// WriteSession scopes the writer to one import run: one consumer goroutine,
// one capability probe, one fatal-error latch.
type WriteSession struct {
	writer    *Writer
	ctx       context.Context
	strategy  WriteStrategy
	queue     chan *models.FlushPayload
	done      chan struct{}
	closed    atomic.Bool
	disabled  atomic.Bool
	onApplied func(*models.FlushPayload)

	mu       sync.Mutex
	lastErr  string
	fatalErr error
}

func (w *Writer) NewSession(ctx context.Context) *WriteSession {
	strategy := OverwriteWrite
	if w.store.ProbeMergeSupport(ctx) {
		strategy = MergeWrite
	} else {
		w.logger.Warnf(providers.TypeWrite,
			"Server-side merge unavailable, falling back to overwrite upserts (degraded mode)")
	}

	s := &WriteSession{
		writer:   w,
		ctx:      ctx,
		strategy: strategy,
		queue:    make(chan *models.FlushPayload, 16),
		done:     make(chan struct{}),
	}
	go s.consume()
	return s
}

func (s *WriteSession) Strategy() WriteStrategy {
	return s.strategy
}

// OnApplied registers a callback invoked after a flush has been written in
// full, from the consumer goroutine. Set it before the first Submit.
func (s *WriteSession) OnApplied(fn func(*models.FlushPayload)) {
	s.onApplied = fn
}

// Submit hands a flush to the session. It reports false once writes have
// been disabled by a fatal error; the flush is then dropped.
func (s *WriteSession) Submit(flush *models.FlushPayload) bool {
	if flush == nil {
		return true
	}
	if s.disabled.Load() || s.closed.Load() {
		return false
	}
	s.writer.pending.Add(1)
	s.queue <- flush
	return true
}

// Drain closes the intake and waits until every accepted flush has been
// applied (or dropped after a fatal error). Returns the fatal error, if any.
func (s *WriteSession) Drain() error {
	if s.closed.CompareAndSwap(false, true) {
		close(s.queue)
	}
	<-s.done

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fatalErr
}

func (s *WriteSession) Disabled() bool {
	return s.disabled.Load()
}

func (s *WriteSession) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *WriteSession) consume() {
	defer close(s.done)
	for flush := range s.queue {
		if !s.disabled.Load() {
			if s.apply(flush) && s.onApplied != nil {
				s.onApplied(flush)
			}
		}
		s.writer.pending.Add(-1)
	}
}

// apply reports whether the whole flush reached the store, so the caller can
// treat it as a durable resume point.
func (s *WriteSession) apply(flush *models.FlushPayload) bool {
	w := s.writer
	started := time.Now()
	ok := true

	if err := s.writeNodes(flush.Nodes); err != nil {
		s.recordError(err)
		ok = false
	}
	if err := s.writeGames(flush.Games); err != nil {
		s.recordError(err)
		ok = false
	} else {
		w.gamesTotal.Add(int64(len(flush.Games)))
	}

	w.flushes.Add(1)
	if w.metrics != nil {
		w.metrics.ObserveFlushDuration(time.Since(started))
	}
	return ok
}

// writeNodes applies graph-node chunks sequentially: merges of overlapping
// keys across chunks must never race each other.
func (s *WriteSession) writeNodes(nodes []*models.OpeningGraphNode) error {
	for _, part := range chunk(nodes, s.writer.nodeChunkSize) {
		var err error
		if s.strategy == MergeWrite {
			err = s.writer.store.MergeNodes(s.ctx, part)
		} else {
			err = s.writer.store.UpsertNodesOverwrite(s.ctx, part)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// writeGames dedupes by identity key (a multi-row upsert repeating a conflict
// key is rejected by postgres) and writes chunks with bounded parallelism.
func (s *WriteSession) writeGames(games []*models.GameRecord) error {
	deduped := DedupeGames(games)
	parts := chunk(deduped, s.writer.gameChunkSize)
	if len(parts) == 0 {
		return nil
	}

	sem := make(chan struct{}, s.writer.gameParallelism)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for _, part := range parts {
		wg.Add(1)
		sem <- struct{}{}
		go func(rows []*models.GameRecord) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := s.writer.store.UpsertGames(s.ctx, rows); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		}(part)
	}
	wg.Wait()
	return firstErr
}

func (s *WriteSession) recordError(err error) {
	w := s.writer
	w.writeErrors.Add(1)

	s.mu.Lock()
	s.lastErr = err.Error()
	s.mu.Unlock()

	if IsAuthError(err) {
		// No point retrying without credentials; drop everything still
		// queued and let the orchestrator stop the run.
		s.disabled.Store(true)
		s.mu.Lock()
		s.fatalErr = err
		s.mu.Unlock()
		w.logger.Errorf(providers.TypeWrite, "Writes disabled for this run: %s", err)
		return
	}
	w.logger.Warnf(providers.TypeWrite, "Flush write failed, continuing with next batch: %s", err)
}

// IsAuthError classifies authentication/authorization failures, which are
// fatal for the remainder of a run.
func IsAuthError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "28000", "28P01", "42501":
			return true
		}
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "permission denied") ||
		strings.Contains(msg, "authentication failed") ||
		strings.Contains(msg, "password authentication")
}

// DedupeGames keeps the first occurrence of each game identity in a batch.
func DedupeGames(games []*models.GameRecord) []*models.GameRecord {
	if len(games) <= 1 {
		return games
	}
	seen := make(map[string]struct{}, len(games))
	out := games[:0:0]
	for _, g := range games {
		key := g.IdentityKey()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, g)
	}
	return out
}

func chunk[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = len(items)
	}
	var parts [][]T
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		parts = append(parts, items[start:end])
	}
	return parts
}
