package engine

import (
	"sync"
)

// StepQueue is an unbounded multi-producer, multi-consumer queue of steps.
// Each pushed step is handed to exactly one caller of Next.
//
// The queue also tracks claimed steps that have not finished. It becomes
// idle, and Next starts returning false, once nothing is pending and
// nothing is in flight; a step counts as finished only after its
// resulting event has been applied, so steps queued by that event are
// visible before idleness is decided.
type StepQueue struct {
	mu       sync.Mutex
	cond     *sync.Cond
	pending  []Step
	inFlight int
	idle     bool
}

// NewStepQueue creates an empty queue.
func NewStepQueue() *StepQueue {
	q := &StepQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends a step. Steps pushed after the queue became idle are dropped
// and Push reports false.
func (q *StepQueue) Push(step Step) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.idle {
		return false
	}

	q.pending = append(q.pending, step)
	q.cond.Signal()
	return true
}

// Next blocks until a step is available and claims it. It returns false
// once the queue is idle. Every claimed step must be released with Done.
func (q *StepQueue) Next() (Step, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.pending) == 0 {
		if q.idle || q.inFlight == 0 {
			q.markIdle()
			return nil, false
		}
		q.cond.Wait()
	}

	step := q.pending[0]
	q.pending[0] = nil
	q.pending = q.pending[1:]
	q.inFlight++

	return step, true
}

// Hold registers work that is not a queued step, such as an event posted
// from outside a worker, so the queue doesn't go idle underneath it. It
// reports false if the queue is already idle. A successful Hold must be
// released with Done.
func (q *StepQueue) Hold() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.idle {
		return false
	}

	q.inFlight++
	return true
}

// Done releases a step claimed by Next or a Hold.
func (q *StepQueue) Done() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.inFlight--
	if q.inFlight < 0 {
		panic("engine: StepQueue.Done called more times than Next and Hold")
	}

	if q.inFlight == 0 && len(q.pending) == 0 {
		q.markIdle()
	}
}

// Len returns the number of pending steps.
func (q *StepQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// InFlight returns the number of claimed, unfinished steps.
func (q *StepQueue) InFlight() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.inFlight
}

// Withdraw removes and returns the pending steps matching match, keeping
// the order of the rest. Claimed steps are unaffected.
func (q *StepQueue) Withdraw(match func(Step) bool) []Step {
	q.mu.Lock()
	defer q.mu.Unlock()

	var withdrawn []Step
	kept := q.pending[:0]
	for _, step := range q.pending {
		if match(step) {
			withdrawn = append(withdrawn, step)
		} else {
			kept = append(kept, step)
		}
	}
	for i := len(kept); i < len(q.pending); i++ {
		q.pending[i] = nil
	}
	q.pending = kept

	return withdrawn
}

// markIdle must be called with mu held.
func (q *StepQueue) markIdle() {
	if !q.idle {
		q.idle = true
		q.cond.Broadcast()
	}
}
