package engine

import (
	"sync"
	"testing"
	"time"
)

func TestStepQueue_FIFO(t *testing.T) {
	q := NewStepQueue()

	q.Push(PullImageStep{})
	q.Push(CreateTaskNetworkStep{})

	first, ok := q.Next()
	if !ok || first.Kind() != StepPullImage {
		t.Fatalf("expected pull step first, got %v (ok=%v)", first, ok)
	}
	second, ok := q.Next()
	if !ok || second.Kind() != StepCreateTaskNetwork {
		t.Fatalf("expected network step second, got %v (ok=%v)", second, ok)
	}

	if q.InFlight() != 2 {
		t.Errorf("expected 2 in flight, got %d", q.InFlight())
	}
}

func TestStepQueue_IdleWhenEmptyAndNothingInFlight(t *testing.T) {
	q := NewStepQueue()

	if _, ok := q.Next(); ok {
		t.Fatal("expected empty queue to be idle")
	}

	if q.Push(CreateTaskNetworkStep{}) {
		t.Error("expected push to an idle queue to be refused")
	}
	if q.Hold() {
		t.Error("expected hold on an idle queue to be refused")
	}
}

func TestStepQueue_NextWaitsForInFlightSteps(t *testing.T) {
	q := NewStepQueue()
	q.Push(CreateTaskNetworkStep{})

	if _, ok := q.Next(); !ok {
		t.Fatal("expected a step")
	}

	got := make(chan Step, 1)
	go func() {
		step, ok := q.Next()
		if !ok {
			got <- nil
			return
		}
		got <- step
	}()

	select {
	case <-got:
		t.Fatal("Next returned while a step was still in flight")
	case <-time.After(20 * time.Millisecond):
	}

	// The finishing step queues a follow-up before it is released.
	q.Push(PullImageStep{})
	q.Done()

	select {
	case step := <-got:
		if step == nil || step.Kind() != StepPullImage {
			t.Fatalf("expected the follow-up pull step, got %v", step)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the follow-up step")
	}

	q.Done()
	if _, ok := q.Next(); ok {
		t.Error("expected queue to be idle after the last step finished")
	}
}

func TestStepQueue_HoldKeepsQueueAlive(t *testing.T) {
	q := NewStepQueue()
	q.Push(CreateTaskNetworkStep{})

	if _, ok := q.Next(); !ok {
		t.Fatal("expected a step")
	}
	if !q.Hold() {
		t.Fatal("expected hold to succeed on a busy queue")
	}
	q.Done()

	if !q.Push(DisplayTaskFailureStep{Message: "interrupted"}) {
		t.Fatal("expected push to succeed while held")
	}
	q.Done()

	step, ok := q.Next()
	if !ok || step.Kind() != StepDisplayTaskFailure {
		t.Fatalf("expected the display step, got %v (ok=%v)", step, ok)
	}
	q.Done()

	if _, ok := q.Next(); ok {
		t.Error("expected queue to be idle")
	}
}

func TestStepQueue_ConcurrentWorkers(t *testing.T) {
	q := NewStepQueue()
	const total = 200

	q.Push(CreateTaskNetworkStep{})

	var (
		mu   sync.Mutex
		seen int
		wg   sync.WaitGroup
	)

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				_, ok := q.Next()
				if !ok {
					return
				}
				mu.Lock()
				seen++
				if seen < total {
					q.Push(PullImageStep{})
				}
				mu.Unlock()
				q.Done()
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("workers did not finish")
	}

	if seen != total {
		t.Errorf("expected %d steps to run, got %d", total, seen)
	}
}

func TestStepQueue_DoneUnderflowPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected Done without Next to panic")
		}
	}()

	NewStepQueue().Done()
}

func TestStepQueue_Withdraw(t *testing.T) {
	q := NewStepQueue()
	q.Push(CreateTaskNetworkStep{})
	q.Push(PullImageStep{})
	q.Push(DisplayTaskFailureStep{Message: "boom"})
	q.Push(BuildImageStep{})

	claimed, _ := q.Next()
	if claimed.Kind() != StepCreateTaskNetwork {
		t.Fatalf("expected network step to be claimed, got %s", claimed)
	}

	withdrawn := q.Withdraw(func(s Step) bool { return s.Kind().IsForwardProgress() })
	if len(withdrawn) != 2 || withdrawn[0].Kind() != StepPullImage || withdrawn[1].Kind() != StepBuildImage {
		t.Fatalf("expected pull and build to be withdrawn, got %v", withdrawn)
	}
	if q.Len() != 1 || q.InFlight() != 1 {
		t.Fatalf("expected 1 pending and 1 in flight, got %d and %d", q.Len(), q.InFlight())
	}

	next, ok := q.Next()
	if !ok || next.Kind() != StepDisplayTaskFailure {
		t.Errorf("expected the display step to remain, got %v (ok=%v)", next, ok)
	}
}
