package pipeline

// ProgressState marks a stage transition.
type ProgressState string

const (
	ProgressStarted  ProgressState = "started"
	ProgressFinished ProgressState = "finished"
	ProgressFailed   ProgressState = "failed"
)

// ProgressEvent is emitted for every stage transition. Events are independent
// of any concurrency primitive; callers bridge them onto channels, websockets
// or logs as they see fit.
type ProgressEvent struct {
	JobID   string        `json:"jobId"`
	Stage   string        `json:"stage"`
	State   ProgressState `json:"state"`
	Message string        `json:"message,omitempty"`
}

// ProgressFunc observes stage transitions. It is called synchronously from
// the pipeline goroutine and must not block.
type ProgressFunc func(ProgressEvent)

func (o *Orchestrator) emit(fn ProgressFunc, jobID, stage string, state ProgressState, msg string) {
	if fn == nil {
		return
	}
	fn(ProgressEvent{JobID: jobID, Stage: stage, State: state, Message: msg})
}
