package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mimo-os/runtime/events"
	"github.com/mimo-os/runtime/logger"
	"github.com/mimo-os/runtime/procedure"
	"github.com/mimo-os/runtime/procstore"
)

// historyEventEnter is recorded on every state entry.
const historyEventEnter = "enter"

type msgKind int

const (
	msgActionResult msgKind = iota
	msgExternalEvent
	msgInterrupt
	msgRetry
	msgOverallTimeout
)

// message is the unit of work delivered to an execution's control loop.
// Action results and retries carry the generation they belong to; a stale
// generation means a newer dispatch or transition superseded them and the
// message is dropped.
type message struct {
	kind       msgKind
	generation uint64
	result     *Result
	err        error
	duration   time.Duration
	event      string
	reason     string
}

// Outcome is the final result of an execution, delivered exactly once on
// the handle's Done channel.
type Outcome struct {
	Status       procstore.Status
	FinalContext map[string]any
	Error        string
}

// execution is one running procedure instance. Its control loop goroutine
// is the record's only writer; everything else communicates through the
// mailbox or reads snapshots under the mutex.
type execution struct {
	eng     *Engine
	proc    *procedure.Procedure
	rec     *procstore.Execution
	emitter *events.Emitter

	mailbox chan message
	quit    chan struct{}
	outcome chan Outcome

	mu sync.RWMutex // guards rec for external snapshot reads

	overallTimeout time.Duration
	overallTimer   *time.Timer
	retryTimer     *time.Timer
	cancelAction   context.CancelFunc

	generation uint64
	retryCount int
	started    time.Time
	finished   bool
}

func newExecution(e *Engine, proc *procedure.Procedure, rec *procstore.Execution, overallTimeout time.Duration) *execution {
	return &execution{
		eng:            e,
		proc:           proc,
		rec:            rec,
		emitter:        events.NewEmitter(e.bus, rec.ID, proc.Name, proc.Version),
		mailbox:        make(chan message, 16),
		quit:           make(chan struct{}),
		outcome:        make(chan Outcome, 1),
		overallTimeout: overallTimeout,
		started:        rec.StartedAt,
	}
}

// run is the control loop. Transitions are processed strictly sequentially;
// there is no concurrent mutation of the execution's context or history.
func (x *execution) run() {
	defer func() {
		if x.eng.sem != nil {
			x.eng.sem.Release(1)
		}
	}()

	// The overall timeout is armed once and never reset by transitions.
	if x.overallTimeout > 0 {
		x.overallTimer = time.AfterFunc(x.overallTimeout, func() {
			x.send(message{kind: msgOverallTimeout})
		})
	}

	x.emitter.ExecutionStarted(x.proc.Definition.InitialState)
	x.enterState("", x.proc.Definition.InitialState)

	for !x.finished {
		x.handle(<-x.mailbox)
	}
}

func (x *execution) handle(msg message) {
	switch msg.kind {
	case msgInterrupt:
		x.finish(procstore.StatusInterrupted, msg.reason)
	case msgOverallTimeout:
		x.finish(procstore.StatusFailed, reasonOverallTimeout)
	case msgActionResult:
		// First resolution wins: a result that arrives after its
		// timeout fired, or after a transition, is discarded.
		if msg.generation != x.generation {
			return
		}
		x.handleActionResult(msg)
	case msgExternalEvent:
		x.handleEvent(msg.event)
	case msgRetry:
		if msg.generation != x.generation {
			return
		}
		x.dispatchAction()
	}
}

// enterState runs the state-entry protocol: append a history entry, persist,
// then either complete (terminal, no action), wait (no action), or dispatch
// the state's action.
func (x *execution) enterState(from, to string) {
	x.generation++

	offset := x.eng.now().Sub(x.started).Milliseconds()
	x.mu.Lock()
	x.rec.CurrentState = to
	x.rec.History = append(x.rec.History, procstore.HistoryEntry{
		From:     from,
		To:       to,
		Event:    historyEventEnter,
		OffsetMs: offset,
	})
	x.mu.Unlock()
	x.persist()

	state := x.proc.Definition.State(to)
	if state == nil {
		// Transition targets are checked at registration; reaching an
		// undefined state means the definition was mutated underneath us.
		x.finish(procstore.StatusFailed, fmt.Sprintf("state %q not defined", to))
		return
	}

	if state.Action == nil {
		if state.IsTerminal() {
			x.finish(procstore.StatusCompleted, "")
			return
		}
		// Waiting state: nothing happens until an external event arrives.
		return
	}

	x.dispatchAction()
}

// dispatchAction invokes the current state's action in a supervised
// goroutine with its own timeout. The control loop keeps processing
// messages while the action runs.
func (x *execution) dispatchAction() {
	state := x.proc.Definition.State(x.rec.CurrentState)
	action := state.Action

	handler, ok := x.eng.handlers.Get(action.Handler)
	if !ok {
		// Handlers are checked at registration; a miss here means the
		// procedure bypassed the registry.
		x.handleActionError(fmt.Errorf("handler %q not registered", action.Handler))
		return
	}

	x.generation++
	gen := x.generation

	timeout := x.eng.actionTimeout
	if action.TimeoutMs > 0 {
		timeout = time.Duration(action.TimeoutMs) * time.Millisecond
	}
	// An external event may have transitioned away from a state whose
	// action is still in flight; release its context so the superseded
	// handler is not kept alive until its own deadline.
	if x.cancelAction != nil {
		x.cancelAction()
	}
	actionCtx, cancel := context.WithTimeout(context.Background(), timeout)
	x.cancelAction = cancel

	x.mu.RLock()
	inv := Invocation{Context: cloneContext(x.rec.Context), Args: action.Args}
	x.mu.RUnlock()

	x.emitter.ActionStarted(x.rec.CurrentState, action.Handler)
	logger.ActionDispatch(x.rec.ID, x.rec.CurrentState, action.Handler)

	go x.supervise(actionCtx, gen, handler, inv, x.eng.now())
}

// supervise runs the handler in a child goroutine and converts its three
// abnormal endings into ordinary error results: a panic becomes
// ErrActionCrashed, a deadline expiry becomes ErrActionTimeout, and a late
// return after either is dropped by the generation check.
func (x *execution) supervise(ctx context.Context, gen uint64, h Handler, inv Invocation, start time.Time) {
	type handlerReturn struct {
		res *Result
		err error
	}
	ch := make(chan handlerReturn, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- handlerReturn{err: fmt.Errorf("%w: %v", ErrActionCrashed, r)}
			}
		}()
		res, err := h(ctx, inv)
		ch <- handlerReturn{res: res, err: err}
	}()

	select {
	case r := <-ch:
		x.send(message{
			kind:       msgActionResult,
			generation: gen,
			result:     r.res,
			err:        r.err,
			duration:   x.eng.now().Sub(start),
		})
	case <-ctx.Done():
		x.send(message{
			kind:       msgActionResult,
			generation: gen,
			err:        ErrActionTimeout,
			duration:   x.eng.now().Sub(start),
		})
	}
}

func (x *execution) handleActionResult(msg message) {
	if x.cancelAction != nil {
		x.cancelAction()
		x.cancelAction = nil
	}

	state := x.proc.Definition.State(x.rec.CurrentState)
	handlerID := state.Action.Handler

	if msg.err != nil {
		x.emitter.ActionFailed(x.rec.CurrentState, handlerID, msg.err.Error(), msg.duration)
		logger.ActionError(x.rec.ID, x.rec.CurrentState, handlerID, msg.err)
		x.handleActionError(msg.err)
		return
	}

	x.emitter.ActionCompleted(x.rec.CurrentState, handlerID, msg.duration)

	res := msg.result
	if res == nil {
		// Permissive default: an unexpected result shape is logged and
		// treated as a bare success.
		logger.Warn("Action returned no result, treating as success",
			"execution_id", x.rec.ID,
			"state", x.rec.CurrentState,
			"handler", handlerID)
		x.handleEvent(procedure.EventSuccess)
		return
	}

	if res.event != "" {
		x.handleEvent(res.event)
		return
	}

	if len(res.patch) > 0 {
		x.mu.Lock()
		for k, v := range res.patch {
			x.rec.Context[k] = v
		}
		x.mu.Unlock()
	}
	x.handleEvent(procedure.EventSuccess)
}

// handleActionError routes a failed action: an "error" transition wins
// outright, otherwise the same action is retried with exponential backoff
// until max_retries is exhausted.
func (x *execution) handleActionError(err error) {
	state := x.proc.Definition.State(x.rec.CurrentState)

	if tr := state.TransitionFor(procedure.EventError); tr != nil {
		// An error-but-handled path is a successful outcome; retry is
		// bypassed entirely.
		x.transitionTo(tr, procedure.EventError)
		return
	}

	if x.retryCount < x.proc.MaxRetries {
		delay := x.eng.baseDelay << x.retryCount
		x.retryCount++
		x.emitter.ActionRetried(x.rec.CurrentState, state.Action.Handler, x.retryCount, delay)
		logger.Debug("Retrying action after backoff",
			"execution_id", x.rec.ID,
			"state", x.rec.CurrentState,
			"attempt", x.retryCount,
			"backoff", delay)

		gen := x.generation
		x.retryTimer = time.AfterFunc(delay, func() {
			x.send(message{kind: msgRetry, generation: gen})
		})
		return
	}

	x.finish(procstore.StatusFailed, err.Error())
}

// handleEvent resolves (current_state, event) against the definition's
// transition table. An unmatched event is a no-op, not a failure; in a
// terminal state it completes the execution.
func (x *execution) handleEvent(event string) {
	state := x.proc.Definition.State(x.rec.CurrentState)
	if state == nil {
		return
	}

	tr := state.TransitionFor(event)
	if tr == nil {
		logger.Warn("No transition for event",
			"execution_id", x.rec.ID,
			"state", x.rec.CurrentState,
			"event", event)
		if state.IsTerminal() {
			x.finish(procstore.StatusCompleted, "")
		}
		return
	}

	x.transitionTo(tr, event)
}

func (x *execution) transitionTo(tr *procedure.Transition, event string) {
	from := x.rec.CurrentState
	x.emitter.ExecutionTransitioned(from, tr.Target, event)
	x.enterState(from, tr.Target)
}

// finish freezes the execution in a terminal status. All terminal paths
// converge here; it runs at most once.
func (x *execution) finish(status procstore.Status, errMsg string) {
	if x.finished {
		return
	}
	x.finished = true

	if x.cancelAction != nil {
		x.cancelAction()
		x.cancelAction = nil
	}
	if x.overallTimer != nil {
		x.overallTimer.Stop()
	}
	if x.retryTimer != nil {
		x.retryTimer.Stop()
	}

	now := x.eng.now()
	x.mu.Lock()
	x.rec.Status = status
	x.rec.Error = errMsg
	completedAt := now
	x.rec.CompletedAt = &completedAt
	x.rec.DurationMs = now.Sub(x.started).Milliseconds()
	finalContext := cloneContext(x.rec.Context)
	durationMs := x.rec.DurationMs
	x.mu.Unlock()
	x.persist()

	duration := time.Duration(durationMs) * time.Millisecond
	switch status {
	case procstore.StatusCompleted:
		x.emitter.ExecutionCompleted(duration)
	case procstore.StatusFailed:
		x.emitter.ExecutionFailed(duration, errMsg)
	case procstore.StatusInterrupted:
		x.emitter.ExecutionInterrupted(duration, errMsg)
	}
	logger.ExecutionFinished(x.rec.ID, string(status), durationMs)

	x.outcome <- Outcome{Status: status, FinalContext: finalContext, Error: errMsg}
	close(x.quit)
}

// persist writes the current record snapshot to the store. Persistence
// failures are logged; the machine keeps running on its in-memory record.
func (x *execution) persist() {
	x.mu.RLock()
	snapshot := x.rec.Clone()
	x.mu.RUnlock()

	if err := x.eng.store.UpdateExecution(context.Background(), snapshot); err != nil {
		logger.Error("Failed to persist execution record",
			"execution_id", x.rec.ID,
			"error", err)
	}
}

// send delivers a message to the control loop, giving up once the
// execution has finished.
func (x *execution) send(msg message) {
	select {
	case x.mailbox <- msg:
	case <-x.quit:
	}
}
