package pipeline

import (
	"time"

	"github.com/voxpipe/internal/executor"
)

// Status is the terminal state of a job.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Stage names, in pipeline order.
const (
	StageDownload    = "download"
	StageExtract     = "extract"
	StageDenoise     = "denoise"
	StageEnhance     = "enhance"
	StageTrimSilence = "trim_silence"
	StageConvert     = "convert"
)

// StageResult records one completed stage. Results are appended in execution
// order and never mutated; entry i exists only if entries 0..i-1 succeeded.
type StageResult struct {
	Stage      string        `json:"stage"`
	Success    bool          `json:"success"`
	OutputPath string        `json:"outputPath,omitempty"`
	Error      string        `json:"error,omitempty"`
	Diagnostic string        `json:"diagnostic,omitempty"`
	Elapsed    time.Duration `json:"-"`
}

// Job is the per-run state, owned exclusively by one pipeline run.
type Job struct {
	ID        string
	SourceID  string
	CreatedAt time.Time

	Stages []StageResult
	// Files maps stage name to the stage's produced path.
	Files map[string]string

	Source *executor.SourceMetadata
	Audio  *executor.AudioMetadata
	Status Status
}

func newJob(id, sourceID string) *Job {
	return &Job{
		ID:        id,
		SourceID:  sourceID,
		CreatedAt: time.Now(),
		Files:     make(map[string]string),
	}
}

// OutputFiles are the final deliverables; they are never auto-deleted.
type OutputFiles struct {
	WAV string `json:"wav"`
	MP3 string `json:"mp3,omitempty"`
}

// JobResult is the single aggregated result every run produces.
type JobResult struct {
	Success       bool                     `json:"success"`
	JobID         string                   `json:"jobId"`
	SourceID      string                   `json:"sourceId,omitempty"`
	Status        Status                   `json:"status"`
	Metadata      *executor.SourceMetadata `json:"metadata,omitempty"`
	AudioMetadata *executor.AudioMetadata  `json:"audioMetadata,omitempty"`
	OutputFiles   *OutputFiles             `json:"outputFiles,omitempty"`
	Stages        []StageResult            `json:"stages,omitempty"`
	Error         string                   `json:"error,omitempty"`
	Details       string                   `json:"details,omitempty"`
}
