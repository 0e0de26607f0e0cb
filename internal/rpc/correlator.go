package rpc

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/kumorikarasu/SillyTavern-MCP-Server/internal/logging"
	"github.com/kumorikarasu/SillyTavern-MCP-Server/internal/mcperr"
)

// Outcome is delivered to a waiter exactly once: either Result or Err is
// set, never both.
type Outcome struct {
	Result json.RawMessage
	Err    *mcperr.Error
}

// ResultTransform lets the owning Client post-process a successful result
// before it reaches the waiter — this is the hook the result-unwrapping
// heuristic for tools/call is threaded through, since unwrapping is a
// client-level concern but must happen inside the correlator's dispatch
// so a single waiter resolution stays atomic.
type ResultTransform func(method string, result json.RawMessage) (json.RawMessage, *mcperr.Error)

type waiter struct {
	method string
	ch     chan Outcome
}

// Correlator allocates monotonic request ids, tracks the pending-request
// table, and matches inbound responses back to their waiters.
type Correlator struct {
	counter   atomic.Uint64
	mu        sync.Mutex
	pending   map[string]*waiter
	transform ResultTransform
	log       logging.Logger
}

func NewCorrelator(transform ResultTransform) *Correlator {
	return &Correlator{
		pending:   make(map[string]*waiter),
		transform: transform,
		log:       logging.GetDefault().With("component", "rpc.correlator"),
	}
}

// NextID returns the next strictly-increasing request id for this
// Correlator's owning Client (invariant 2).
func (c *Correlator) NextID() uint64 {
	return c.counter.Add(1)
}

// Register inserts a waiter for id and returns the channel its outcome
// will be delivered on. The channel is buffered so Dispatch/Teardown never
// block on a waiter that stopped listening (e.g. after a local timeout).
func (c *Correlator) Register(id uint64, method string) <-chan Outcome {
	ch := make(chan Outcome, 1)
	key := fmt.Sprintf("%d", id)
	c.mu.Lock()
	c.pending[key] = &waiter{method: method, ch: ch}
	c.mu.Unlock()
	return ch
}

// Cancel removes id from the pending table without resolving it, used
// when a caller's context deadline expires locally before a response
// arrives; the caller is responsible for surfacing RequestTimeout itself.
func (c *Correlator) Cancel(id uint64) {
	key := fmt.Sprintf("%d", id)
	c.mu.Lock()
	delete(c.pending, key)
	c.mu.Unlock()
}

// Dispatch handles one inbound message. It returns true if msg was a
// response matched to a live waiter (whether resolved or rejected).
// Notifications and unmatched responses are logged and dropped, per
// spec.md §4.2.
func (c *Correlator) Dispatch(msg Message) bool {
	if msg.IsNotification() {
		c.log.Debug("notification received", "method", msg.Method)
		return false
	}
	if !msg.IsResponse() {
		return false
	}
	key := msg.IDString()
	c.mu.Lock()
	w, ok := c.pending[key]
	if ok {
		delete(c.pending, key)
	}
	c.mu.Unlock()
	if !ok {
		c.log.Debug("response for unknown id dropped", "id", key)
		return false
	}

	if msg.Error != nil {
		w.ch <- Outcome{Err: mcperr.New(mcperr.Code(msg.Error.Code), msg.Error.Message, msg.Error.Data)}
		return true
	}

	result := msg.Result
	if c.transform != nil {
		transformed, err := c.transform(w.method, result)
		if err != nil {
			w.ch <- Outcome{Err: err}
			return true
		}
		result = transformed
	}
	w.ch <- Outcome{Result: result}
	return true
}

// Teardown rejects every remaining waiter with ConnectionClosed and empties
// the pending table, satisfying invariant 1 across transport failure.
func (c *Correlator) Teardown() {
	c.mu.Lock()
	pending := c.pending
	c.pending = make(map[string]*waiter)
	c.mu.Unlock()

	for _, w := range pending {
		w.ch <- Outcome{Err: mcperr.New(mcperr.ConnectionClosed, "transport closed", nil)}
	}
}

// Pending reports the number of in-flight requests, used by tests to
// assert invariant 1 (pending table empty once every request has a
// terminal outcome).
func (c *Correlator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
