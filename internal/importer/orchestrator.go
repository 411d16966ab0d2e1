package importer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roylee0704/gron"

	"ogd/internal/mirror"
	"ogd/internal/models"
	"ogd/internal/providers"
	"ogd/internal/storage"
	"ogd/internal/structures"
)

var (
	ErrAlreadyQueued = errors.New("opponent already queued")
	ErrNotRunning    = errors.New("no import is running")
)

// OrchestratorInterface drives the import queue. One opponent imports at a
// time; the queue is a FIFO set and a second Enqueue of the same opponent is
// rejected. Stop cancels only the active run, the queue keeps going.
type OrchestratorInterface interface {
	Enqueue(task models.ImportTask) error
	Dequeue(op models.OpponentID) bool
	Start() error
	Stop() error
	Status() models.ImportStatus
	Shutdown(ctx context.Context) error

	providers.ImportStatsSource
}

type Orchestrator struct {
	conf   *structures.Config
	worker WorkerInterface
	writer storage.WriterInterface
	store  storage.RemoteStoreInterface
	state  SyncStateStoreInterface
	mirror mirror.StoreInterface
	logger providers.Logger

	mu           sync.Mutex
	queue        []models.ImportTask
	queued       map[string]bool
	running      bool
	activeCancel context.CancelFunc
	status       models.ImportStatus
	stallReason  string
	userStop     bool

	// lastMessage holds the unix-nano timestamp of the last worker message
	// so the watchdog can poll it without taking the orchestrator lock.
	lastMessage  atomic.Int64
	watchdogOnce sync.Once
	shutdownOnce sync.Once
	cron         *gron.Cron
	drained      chan struct{}
}

func NewOrchestrator(
	conf *structures.Config,
	worker WorkerInterface,
	writer storage.WriterInterface,
	store storage.RemoteStoreInterface,
	state SyncStateStoreInterface,
	mirrorStore mirror.StoreInterface,
	logger providers.Logger,
) OrchestratorInterface {
	o := &Orchestrator{
		conf:   conf,
		worker: worker,
		writer: writer,
		store:  store,
		state:  state,
		mirror: mirrorStore,
		logger: logger,
		queued: make(map[string]bool),
		status: models.ImportStatus{Phase: models.PhaseIdle},
	}
	return o
}

func (o *Orchestrator) Enqueue(task models.ImportTask) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	key := task.Opponent.String()
	if o.queued[key] {
		return ErrAlreadyQueued
	}
	o.queued[key] = true
	o.queue = append(o.queue, task)
	if task.MaxGames > 0 {
		if err := o.state.SetOverride(task.Opponent, task.MaxGames); err != nil {
			o.logger.Warnf(providers.TypeImport, "Persisting max games override failed: %s", err)
		}
	}
	o.logger.Infof(providers.TypeImport, "Enqueued %s (queue length %d)", key, len(o.queue))
	return nil
}

// Dequeue removes a pending opponent. The active run, if it is this
// opponent, is left alone; use Stop for that.
func (o *Orchestrator) Dequeue(op models.OpponentID) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	key := op.String()
	for i, task := range o.queue {
		if task.Opponent.String() == key {
			o.queue = append(o.queue[:i], o.queue[i+1:]...)
			delete(o.queued, key)
			return true
		}
	}
	return false
}

func (o *Orchestrator) Start() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running {
		return nil
	}
	if len(o.queue) == 0 {
		return errors.New("queue is empty")
	}
	o.running = true
	o.watchdogOnce.Do(func() {
		o.cron = gron.New()
		o.cron.AddFunc(gron.Every(o.conf.Importer.WatchdogTick), o.checkStall)
		o.cron.Start()
	})
	go o.runLoop()
	return nil
}

// Stop cancels the active run only. Queued opponents after it still run.
func (o *Orchestrator) Stop() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.running || o.activeCancel == nil {
		return ErrNotRunning
	}
	o.logger.Infof(providers.TypeImport, "Stop requested for %s", o.status.Opponent)
	o.userStop = true
	o.activeCancel()
	return nil
}

func (o *Orchestrator) Status() models.ImportStatus {
	o.mu.Lock()
	defer o.mu.Unlock()
	st := o.status
	st.PendingWrites = o.writer.PendingWrites()
	st.Queue = make([]string, 0, len(o.queue))
	for _, task := range o.queue {
		st.Queue = append(st.Queue, task.Opponent.String())
	}
	return st
}

// Shutdown stops the queue, cancels the active run and waits for the
// current write session to drain or the context to expire.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	o.queue = nil
	o.queued = make(map[string]bool)
	if o.activeCancel != nil {
		o.userStop = true
		o.activeCancel()
	}
	drained := o.drained
	running := o.running
	o.shutdownOnce.Do(func() {
		if o.cron != nil {
			o.cron.Stop()
		}
	})
	o.mu.Unlock()

	if !running || drained == nil {
		return nil
	}
	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ImportStatsSource, consumed by the metrics provider.
func (o *Orchestrator) QueueLength() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.queue)
}

func (o *Orchestrator) PendingWrites() int        { return o.writer.PendingWrites() }
func (o *Orchestrator) GamesImportedTotal() int64 { return o.writer.GamesWrittenTotal() }
func (o *Orchestrator) FlushesTotal() int64       { return o.writer.FlushesTotal() }
func (o *Orchestrator) WriteErrorsTotal() int64   { return o.writer.WriteErrorsTotal() }

func (o *Orchestrator) runLoop() {
	for {
		o.mu.Lock()
		if len(o.queue) == 0 {
			o.running = false
			// Terminal phases stay visible until the next run starts.
			if o.status.Phase == models.PhaseStreaming || o.status.Phase == models.PhaseSaving {
				o.status.Phase = models.PhaseIdle
			}
			o.mu.Unlock()
			return
		}
		task := o.queue[0]
		o.queue = o.queue[1:]
		delete(o.queued, task.Opponent.String())
		// Flip the phase under the same lock as the pop so a status reader
		// never sees the previous run's terminal phase with an empty queue.
		o.status = models.ImportStatus{Phase: models.PhaseStreaming, Opponent: task.Opponent.String()}
		o.drained = make(chan struct{})
		o.mu.Unlock()

		o.runTask(task)

		o.mu.Lock()
		close(o.drained)
		o.drained = nil
		o.mu.Unlock()
	}
}

func (o *Orchestrator) runTask(task models.ImportTask) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	op := task.Opponent
	o.logger.Infof(providers.TypeImport, "Import starting for %s", op.String())

	owner := o.conf.Importer.ProfileOwner
	baseCount, err := o.store.CountGames(ctx, owner, op.Platform, op.Username)
	if err != nil {
		o.failTask(op, "count games: "+err.Error())
		return
	}

	st := o.state.Get(op)
	if baseCount == 0 && st.LastSyncedTimestampMs > 0 {
		// No remote rows survive, so the since cursor points at games the
		// store no longer has. Re-stream from the top.
		o.logger.Warnf(providers.TypeImport, "Remote store empty for %s, clearing stale sync cursor", op.String())
		if err := o.state.ClearTimestamp(op); err != nil {
			o.logger.Warnf(providers.TypeImport, "Clearing sync cursor failed: %s", err)
		}
		st = o.state.Get(op)
	}
	since := st.LastSyncedTimestampMs
	baseCumulative := st.CumulativeGamesSynced

	maxGames := task.MaxGames
	if maxGames <= 0 {
		maxGames = st.MaxGamesOverride
	}
	if maxGames <= 0 {
		maxGames = o.conf.Importer.DefaultMaxGames
	}

	session := o.writer.NewSession(ctx)
	// Persist the cursor as soon as a flush is durable, so an interrupted
	// run resumes behind its writes instead of re-merging them.
	session.OnApplied(func(flush *models.FlushPayload) {
		if err := o.state.RecordProgress(op, baseCumulative+flush.GamesProcessed, flush.NewestGameTimestampMs); err != nil {
			o.logger.Warnf(providers.TypeImport, "Persisting sync progress failed: %s", err)
		}
	})
	o.mu.Lock()
	o.activeCancel = cancel
	o.stallReason = ""
	o.userStop = false
	o.status = models.ImportStatus{
		Phase:     models.PhaseStreaming,
		Opponent:  op.String(),
		BaseCount: baseCount,
	}
	o.mu.Unlock()
	o.lastMessage.Store(time.Now().UnixNano())

	req := models.ImportRequest{
		Platform:         op.Platform,
		Username:         op.Username,
		Color:            task.Color,
		Rated:            task.Rated,
		SinceTimestampMs: since,
		MaxGames:         maxGames,
	}

	messages := o.worker.Run(ctx, req)
	var done *models.DonePayload
	var runErr string

	for msg := range messages {
		o.lastMessage.Store(time.Now().UnixNano())
		switch msg.Kind {
		case models.MsgProgress:
			o.mu.Lock()
			o.status.GamesProcessed = msg.Progress.GamesProcessed
			o.status.BytesRead = msg.Progress.BytesRead
			o.status.NewestGameTimestampMs = msg.Progress.NewestGameTimestampMs
			o.mu.Unlock()
		case models.MsgFlush:
			games := msg.Flush.Games
			if !session.Submit(msg.Flush) {
				// The session latched a fatal write error. Keep draining the
				// channel so the worker goroutine can exit, but stop the
				// stream now.
				cancel()
				continue
			}
			go o.mirror.PutGames(games)
		case models.MsgDone:
			done = msg.Done
		case models.MsgError:
			runErr = msg.Err
		}
	}

	o.mu.Lock()
	o.status.Phase = models.PhaseSaving
	o.mu.Unlock()

	drainErr := session.Drain()

	switch {
	case drainErr != nil:
		o.failTask(op, "write session: "+drainErr.Error())
	case runErr != "":
		// A cancellation surfaces as an error from the worker. Tell a
		// watchdog force-stop and a user stop apart from a real failure.
		o.mu.Lock()
		stall := o.stallReason
		o.stallReason = ""
		stopped := o.userStop
		o.userStop = false
		o.mu.Unlock()
		switch {
		case stall != "":
			o.failTask(op, stall)
		case stopped:
			o.stopTask(op)
		default:
			o.failTask(op, runErr)
		}
	case done != nil:
		if err := o.state.RecordProgress(op, baseCumulative+done.GamesProcessed, done.NewestGameTimestampMs); err != nil {
			o.logger.Warnf(providers.TypeImport, "Persisting sync progress failed: %s", err)
		}
		o.mu.Lock()
		o.activeCancel = nil
		o.status.Phase = models.PhaseDone
		o.status.GamesProcessed = done.GamesProcessed
		o.mu.Unlock()
		o.logger.Infof(providers.TypeImport, "Import done for %s: %d games", op.String(), done.GamesProcessed)
	default:
		o.stopTask(op)
	}
}

// stopTask ends a deliberately cancelled run without entering the error
// phase. Flushes that already drained are durable and the cursor already
// reflects them; anything after the last flush is picked up by the next run.
func (o *Orchestrator) stopTask(op models.OpponentID) {
	o.mu.Lock()
	o.activeCancel = nil
	o.status.Phase = models.PhaseIdle
	o.mu.Unlock()
	o.logger.Infof(providers.TypeImport, "Import for %s stopped before completion", op.String())
}

func (o *Orchestrator) failTask(op models.OpponentID, reason string) {
	o.mu.Lock()
	o.activeCancel = nil
	o.status.Phase = models.PhaseError
	o.status.LastError = reason
	o.mu.Unlock()
	o.logger.Errorf(providers.TypeImport, "Import failed for %s: %s", op.String(), reason)
	time.Sleep(o.conf.Importer.ErrorDelay)
}

// checkStall runs on the watchdog cron and force-stops a run whose worker
// has gone silent longer than the stall timeout, then lets the queue advance.
func (o *Orchestrator) checkStall() {
	o.mu.Lock()
	active := o.running && o.activeCancel != nil && o.status.Phase == models.PhaseStreaming
	cancel := o.activeCancel
	opponent := o.status.Opponent
	o.mu.Unlock()
	if !active {
		return
	}
	idle := time.Duration(time.Now().UnixNano() - o.lastMessage.Load())
	if idle < o.conf.Importer.StallTimeout {
		return
	}
	o.logger.Errorf(providers.TypeImport, "Import for %s stalled for %s, forcing stop", opponent, idle.Truncate(time.Second))
	o.mu.Lock()
	o.stallReason = "import stalled, no progress for " + idle.Truncate(time.Second).String()
	o.status.LastError = o.stallReason
	o.mu.Unlock()
	cancel()
}
