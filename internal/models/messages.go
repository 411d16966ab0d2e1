package models

type MessageKind int

const (
	MsgProgress MessageKind = iota
	MsgFlush
	MsgDone
	MsgError
)

// WorkerMessage is the only thing that crosses the worker/orchestrator
// boundary. The worker owns everything it sends; the orchestrator never
// shares memory back.
type WorkerMessage struct {
	Kind     MessageKind
	Progress *ProgressPayload
	Flush    *FlushPayload
	Done     *DonePayload
	Err      string
}

type ProgressPayload struct {
	GamesProcessed        int
	BytesRead             int64
	Phase                 Phase
	NewestGameTimestampMs int64
}

// FlushPayload carries one batch of accumulated deltas. Node stats are deltas
// of this run only, never totals. GamesProcessed and the newest timestamp are
// cumulative for the run up to and including this batch, so a durably applied
// flush is a valid resume point on its own.
type FlushPayload struct {
	Nodes                 []*OpeningGraphNode
	Games                 []*GameRecord
	GamesProcessed        int
	NewestGameTimestampMs int64
}

type DonePayload struct {
	GamesProcessed        int
	NewestGameTimestampMs int64
}
