package sweep

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/abbas-claw/dust-sweeper/internal/token"
)

type State string

const (
	StatePending   State = "pending"
	StateQuoting   State = "quoting"
	StateApproving State = "approving"
	StateSweeping  State = "sweeping"
	StateDone      State = "done"
	StateError     State = "error"
)

// Terminal reports whether no further transition is allowed within a run.
func (s State) Terminal() bool { return s == StateDone || s == StateError }

var ErrInvalidTransition = errors.New("sweep: invalid state transition")

func validTransition(from, to State) bool {
	if from.Terminal() {
		return false
	}
	switch to {
	case StatePending:
		return false
	case StateQuoting:
		return from == StatePending
	case StateApproving, StateSweeping:
		return from == StateQuoting || from == StateApproving || from == StateSweeping
	case StateDone:
		return from == StateApproving || from == StateSweeping
	case StateError:
		return true
	}
	return false
}

// Status is the observable progress of one token's sweep.
type Status struct {
	Key       token.Key
	Symbol    string
	ChainName string
	State     State
	Message   string
	TxHash    string
	UpdatedAt time.Time
}

// Feed is the keyed set of sweep statuses. It is safe to read from any
// goroutine while a sweep is running.
type Feed struct {
	mu        sync.RWMutex
	order     []token.Key
	byKey     map[token.Key]*Status
	observers []func(Status)
	now       func() time.Time
}

func NewFeed() *Feed {
	return &Feed{byKey: map[token.Key]*Status{}, now: time.Now}
}

// OnUpdate registers fn to be called with a copy of every status after it
// changes. Observers run on the sweeping goroutine and must not block.
func (f *Feed) OnUpdate(fn func(Status)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.observers = append(f.observers, fn)
}

// Snapshot returns copies of all statuses in the order tokens entered the sweep.
func (f *Feed) Snapshot() []Status {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]Status, 0, len(f.order))
	for _, k := range f.order {
		out = append(out, *f.byKey[k])
	}
	return out
}

func (f *Feed) Get(key token.Key) (Status, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	s, ok := f.byKey[key]
	if !ok {
		return Status{}, false
	}
	return *s, true
}

// Reset drops every status. Called when a new scan replaces the token list.
func (f *Feed) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.order = nil
	f.byKey = map[token.Key]*Status{}
}

// begin puts t into pending, replacing whatever a previous run left behind.
func (f *Feed) begin(t token.Token) {
	f.mu.Lock()
	key := t.Key()
	if _, ok := f.byKey[key]; !ok {
		f.order = append(f.order, key)
	}
	s := &Status{
		Key:       key,
		Symbol:    t.Symbol,
		ChainName: t.ChainName,
		State:     StatePending,
		UpdatedAt: f.now(),
	}
	f.byKey[key] = s
	snap, observers := *s, f.observers
	f.mu.Unlock()

	notify(observers, snap)
}

// transition moves key to state. txHash is kept when empty.
func (f *Feed) transition(key token.Key, state State, message, txHash string) (Status, error) {
	f.mu.Lock()
	s, ok := f.byKey[key]
	if !ok {
		f.mu.Unlock()
		return Status{}, fmt.Errorf("%w: %s not started", ErrInvalidTransition, key)
	}
	if !validTransition(s.State, state) {
		from := s.State
		f.mu.Unlock()
		return Status{}, fmt.Errorf("%w: %s %s -> %s", ErrInvalidTransition, key, from, state)
	}
	s.State = state
	s.Message = message
	if txHash != "" {
		s.TxHash = txHash
	}
	s.UpdatedAt = f.now()
	snap, observers := *s, f.observers
	f.mu.Unlock()

	notify(observers, snap)
	return snap, nil
}

func notify(observers []func(Status), s Status) {
	for _, fn := range observers {
		fn(s)
	}
}
