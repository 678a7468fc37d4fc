package observers

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/openfroyo/crate/pkg/engine"
	"github.com/openfroyo/crate/pkg/stores"
	"github.com/openfroyo/crate/pkg/telemetry"
)

// JournalBufferSize is how many records may wait for the store before
// further records are dropped.
const JournalBufferSize = 1024

// Journal records a run in the history store. Listener calls only buffer
// records; a background writer stores them, so store latency never holds
// up the engine's event loop. Store errors are logged and never affect
// the run.
type Journal struct {
	store   stores.Store
	runID   string
	project string
	task    string
	logger  *telemetry.Logger

	ctx      context.Context
	stepSeq  atomic.Int64
	eventSeq atomic.Int64

	records chan journalRecord
	written chan struct{}

	mu       sync.Mutex
	started  bool
	closed   bool
	failures int
}

// journalRecord holds exactly one of step or event.
type journalRecord struct {
	step  *stores.StepRecord
	event *stores.Event
}

// NewJournal creates a journal for one run.
func NewJournal(store stores.Store, runID, project, task string, logger *telemetry.Logger) *Journal {
	if logger == nil {
		logger = telemetry.NopLogger()
	}
	return &Journal{
		store:   store,
		runID:   runID,
		project: project,
		task:    task,
		logger:  logger.NewComponentLogger("journal").WithRunID(runID),
		ctx:     context.Background(),
		records: make(chan journalRecord, JournalBufferSize),
		written: make(chan struct{}),
	}
}

// Start creates the run record. Events posted before Start are dropped.
func (j *Journal) Start(ctx context.Context) error {
	j.ctx = context.WithoutCancel(ctx)

	err := j.store.CreateRun(j.ctx, &stores.Run{
		ID:        j.runID,
		Project:   j.project,
		Task:      j.task,
		Status:    stores.RunStatusRunning,
		StartedAt: time.Now(),
	})
	if err != nil {
		return err
	}

	j.mu.Lock()
	j.started = true
	j.mu.Unlock()

	go j.write()
	return nil
}

func (j *Journal) isStarted() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.started
}

// enqueue hands a record to the writer without blocking.
func (j *Journal) enqueue(record journalRecord) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !j.started || j.closed {
		return
	}

	select {
	case j.records <- record:
	default:
		j.failures++
		j.logger.Warn().Msg("Journal buffer full, record dropped")
	}
}

func (j *Journal) write() {
	defer close(j.written)

	for record := range j.records {
		switch {
		case record.step != nil:
			if err := j.store.AppendStep(j.ctx, record.step); err != nil {
				j.recordFailure(err, "step")
			}
		case record.event != nil:
			if err := j.store.AppendEvent(j.ctx, record.event); err != nil {
				j.recordFailure(err, "event")
			}
		}
	}
}

// flush stops accepting records and waits for the writer to store the
// buffered ones.
func (j *Journal) flush() {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		<-j.written
		return
	}
	j.closed = true
	close(j.records)
	j.mu.Unlock()

	<-j.written
}

func (j *Journal) recordFailure(err error, what string) {
	j.mu.Lock()
	j.failures++
	j.mu.Unlock()
	j.logger.Warn().Err(err).Msg("Failed to record " + what)
}

// Failures returns how many records were dropped or failed to store.
func (j *Journal) Failures() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.failures
}

// OnStepStarting implements engine.Listener.
func (j *Journal) OnStepStarting(step engine.Step) {
	if !j.isStarted() {
		return
	}

	record := &stores.StepRecord{
		RunID:     j.runID,
		Seq:       int(j.stepSeq.Add(1)),
		Kind:      string(step.Kind()),
		Container: optional(containerName(engine.StepContainer(step))),
		StartedAt: time.Now(),
	}
	j.enqueue(journalRecord{step: record})
}

// OnEventPosted implements engine.Listener.
func (j *Journal) OnEventPosted(event engine.Event) {
	if !j.isStarted() {
		return
	}

	level, message := Describe(event)
	record := &stores.Event{
		RunID:     j.runID,
		Seq:       int(j.eventSeq.Add(1)),
		Kind:      string(event.Kind()),
		Container: optional(containerName(engine.EventContainer(event))),
		Level:     stores.EventLevel(level),
		Message:   message,
		Details:   eventDetails(event),
		Timestamp: time.Now(),
	}
	j.enqueue(journalRecord{event: record})
}

// Finish stores any buffered records, then records the run's outcome.
// Records arriving after Finish are dropped.
func (j *Journal) Finish(result *engine.Result) error {
	if !j.isStarted() {
		return nil
	}
	j.flush()

	res := stores.RunResult{
		Status:      stores.RunStatus(result.Status),
		CompletedAt: result.CompletedAt,
	}
	if result.ExitCode >= 0 {
		code := int(result.ExitCode)
		res.ExitCode = &code
	}
	res.Failure = optional(result.Failure)

	return j.store.FinishRun(j.ctx, j.runID, res)
}

// eventDetails returns a JSON object with the structured parts of an
// event, or nil when there are none worth keeping.
func eventDetails(event engine.Event) *string {
	details := map[string]interface{}{}

	switch e := event.(type) {
	case engine.TaskNetworkCreatedEvent:
		details["network_id"] = e.Network.ID
		details["network"] = e.Network.Name
	case engine.ImagePulledEvent:
		details["image_id"] = e.Image.ID
	case engine.ImageBuiltEvent:
		details["image_id"] = e.Image.ID
		details["tag"] = e.Image.Ref
	case engine.ContainerCreatedEvent:
		details["container_id"] = e.Handle.ID
		details["runtime_name"] = e.Handle.Name
	case engine.RunningContainerExitedEvent:
		details["exit_code"] = e.ExitCode
	case engine.TaskFailedEvent:
		details["step"] = string(e.Step)
		if re := engine.AsRuntimeError(e.Err); re != nil {
			details["class"] = string(re.Class)
			if re.Code != "" {
				details["code"] = re.Code
			}
			if re.Operation != "" {
				details["operation"] = re.Operation
			}
		}
	default:
		return nil
	}

	data, err := json.Marshal(details)
	if err != nil {
		return nil
	}
	return optional(string(data))
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
