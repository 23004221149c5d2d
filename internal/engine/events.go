package engine

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type State string

const (
	StateIdle          State = "idle"
	StateFetching      State = "fetching"
	StateTransforming  State = "transforming"
	StateWriting       State = "writing"
	StateCursorAdvance State = "cursor_advance"
	StateDone          State = "done"
	StateFailed        State = "failed"
)

func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// Event is emitted on every state transition of a resource run.
type Event struct {
	RunID    uuid.UUID `json:"run_id"`
	Service  string    `json:"service"`
	Resource string    `json:"resource"`
	State    State     `json:"state"`
	At       time.Time `json:"at"`
	Fetched  int       `json:"fetched,omitempty"`
	Inserted int       `json:"inserted,omitempty"`
	Updated  int       `json:"updated,omitempty"`
	Skipped  int       `json:"skipped,omitempty"`
	Deleted  int       `json:"deleted,omitempty"`
	Error    string    `json:"error,omitempty"`
}

type Observer interface {
	Observe(Event)
}

type ObserverFunc func(Event)

func (f ObserverFunc) Observe(e Event) { f(e) }

type multiObserver []Observer

func (m multiObserver) Observe(e Event) {
	for _, o := range m {
		o.Observe(e)
	}
}

// Observers fans events out to every non-nil observer.
func Observers(obs ...Observer) Observer {
	out := make(multiObserver, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			out = append(out, o)
		}
	}
	return out
}

// LogObserver writes transitions to zap. Terminal states log at info, the
// rest at debug.
func LogObserver(logger *zap.Logger) Observer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return ObserverFunc(func(e Event) {
		fields := []zap.Field{
			zap.String("run_id", e.RunID.String()),
			zap.String("service", e.Service),
			zap.String("resource", e.Resource),
			zap.String("state", string(e.State)),
		}
		switch e.State {
		case StateFailed:
			logger.Warn("sync failed", append(fields, zap.String("error", e.Error))...)
		case StateDone:
			logger.Info("sync done", append(fields,
				zap.Int("fetched", e.Fetched),
				zap.Int("inserted", e.Inserted),
				zap.Int("updated", e.Updated),
				zap.Int("skipped", e.Skipped),
				zap.Int("deleted", e.Deleted),
			)...)
		default:
			logger.Debug("sync state", fields...)
		}
	})
}

// Recorder keeps every event. Useful for tests and summaries.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Observe(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}
