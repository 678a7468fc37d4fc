package engine

// Listener observes a run. OnStepStarting is called from worker goroutines
// just before a step executes, so implementations must be safe for
// concurrent use. OnEventPosted is called from the event loop, in log
// order, before the event's reaction is applied.
type Listener interface {
	OnStepStarting(step Step)
	OnEventPosted(event Event)
}

// ListenerFuncs adapts a pair of functions to a Listener. Nil functions
// are skipped.
type ListenerFuncs struct {
	StepStarting func(Step)
	EventPosted  func(Event)
}

// OnStepStarting implements Listener.
func (f ListenerFuncs) OnStepStarting(step Step) {
	if f.StepStarting != nil {
		f.StepStarting(step)
	}
}

// OnEventPosted implements Listener.
func (f ListenerFuncs) OnEventPosted(event Event) {
	if f.EventPosted != nil {
		f.EventPosted(event)
	}
}
