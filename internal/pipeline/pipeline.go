// Package pipeline sequences the staged audio extraction: download, extract
// to canonical PCM, denoise, enhance, optional silence trim, convert to the
// final deliverables. Each run is a pure function of (reference, config,
// collaborators); no state is shared between jobs beyond the filesystem
// namespace, which job-qualified file names keep collision-free.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/voxpipe/internal/config"
	"github.com/voxpipe/internal/executor"
	"github.com/voxpipe/internal/filtergraph"
	"github.com/voxpipe/internal/tempfiles"
	"github.com/voxpipe/pkg/logger"
)

// Downloader is the contract required of the download engine.
type Downloader interface {
	IsValidReference(ref string) bool
	ExtractSourceID(ref string) (string, bool)
	FetchMetadata(ctx context.Context, ref string) (*executor.SourceMetadata, error)
	FetchAudio(ctx context.Context, ref, destPath string) executor.DownloadOutcome
}

// AudioProcessor is the contract required of the transcoding engine, one
// entry point per stage type so the orchestrator is testable with a fake.
type AudioProcessor interface {
	ExtractRaw(ctx context.Context, inputPath, outputPath string) executor.Result
	ApplyFilterGraph(ctx context.Context, inputPath, outputPath string, spec filtergraph.Spec) executor.Result
	RemoveSilence(ctx context.Context, inputPath, outputPath string, spec filtergraph.Spec) executor.Result
	ConvertFormat(ctx context.Context, inputPath, outputPath, targetFormat string) executor.Result
	ProbeMetadata(ctx context.Context, path string) (*executor.AudioMetadata, error)
}

// Notifier delivers job completion notifications. May be nil.
type Notifier interface {
	NotifySuccess(title, body string) error
	NotifyError(title, body string) error
}

// Options control a single run.
type Options struct {
	// CleanupTemp deletes intermediate artifacts at finalization.
	CleanupTemp bool
	// QuickMode downloads and extracts straight to the final WAV, skipping
	// every filter stage and the MP3 deliverable.
	QuickMode bool
	// TrimSilence inserts the silence-removal stage between enhance and
	// convert.
	TrimSilence bool
	// OnProgress observes stage transitions.
	OnProgress ProgressFunc
}

// Orchestrator runs one end-to-end pipeline per Run call.
type Orchestrator struct {
	cfg        *config.Config
	downloader Downloader
	processor  AudioProcessor
	notifier   Notifier

	// Monotonic timestamp guard so back-to-back jobs for the same source
	// never collide on file names.
	stampMu   sync.Mutex
	lastStamp int64
}

// New creates an orchestrator. notifier may be nil.
func New(cfg *config.Config, dl Downloader, proc AudioProcessor, notifier Notifier) *Orchestrator {
	return &Orchestrator{
		cfg:        cfg,
		downloader: dl,
		processor:  proc,
		notifier:   notifier,
	}
}

// Run executes the full pipeline for reference and returns the aggregated
// result. It never returns an error; every failure mode is folded into the
// JobResult.
func (o *Orchestrator) Run(ctx context.Context, reference string, opts Options) *JobResult {
	if !o.downloader.IsValidReference(reference) {
		err := &InvalidInputError{Reference: reference}
		logger.Warnf("rejected request: %v", err)
		return &JobResult{
			Success: false,
			JobID:   newJobID(),
			Status:  StatusFailed,
			Error:   err.Error(),
		}
	}

	sourceID, _ := o.downloader.ExtractSourceID(reference)
	job := newJob(newJobID(), sourceID)
	base := fmt.Sprintf("%s_%d", sourceID, o.nextStamp())
	tmp := tempfiles.New()

	logger.Infof("job %s started: %s (source %s)", job.ID, reference, sourceID)
	start := time.Now()

	result := o.execute(ctx, job, reference, base, tmp, opts)

	if opts.CleanupTemp {
		tmp.Cleanup()
	}

	logger.Infof("job %s finished: %s in %v", job.ID, job.Status, time.Since(start).Round(time.Millisecond))
	o.notify(job, result)

	return result
}

// execute runs the stage chain and finalizes the job. Cleanup and
// notification are handled by Run so they apply to every exit path.
func (o *Orchestrator) execute(ctx context.Context, job *Job, reference, base string, tmp *tempfiles.Manager, opts Options) *JobResult {
	tempDir := o.cfg.Paths.TempDir
	outDir := o.cfg.Paths.OutputDir

	finalWAV := filepath.Join(outDir, base+"_clean_voice.wav")
	finalMP3 := filepath.Join(outDir, base+"_clean_voice.mp3")

	// Stage: download. The metadata probe runs first so unavailable or
	// restricted content fails before any payload cost.
	o.emit(opts.OnProgress, job.ID, StageDownload, ProgressStarted, reference)
	stageStart := time.Now()

	meta, err := o.downloader.FetchMetadata(ctx, reference)
	if err != nil {
		dlErr := &DownloadError{Reference: reference, Detail: err.Error()}
		return o.fail(ctx, job, opts, StageDownload, stageStart, dlErr, err.Error())
	}
	job.Source = meta

	rawPath := filepath.Join(tempDir, base+"_raw.m4a")
	tmp.Track(rawPath)

	outcome := o.downloader.FetchAudio(ctx, reference, rawPath)
	if !outcome.Success {
		dlErr := &DownloadError{Reference: reference, Detail: outcome.Error}
		return o.fail(ctx, job, opts, StageDownload, stageStart, dlErr, outcome.Error)
	}
	o.record(job, opts, StageDownload, rawPath, stageStart)

	if opts.QuickMode {
		// Quick mode: canonical PCM straight into the output directory,
		// no filter stages, no MP3 twin.
		o.emit(opts.OnProgress, job.ID, StageExtract, ProgressStarted, "")
		stageStart = time.Now()
		if res := o.processor.ExtractRaw(ctx, rawPath, finalWAV); !res.Success {
			return o.failProcessing(ctx, job, opts, StageExtract, stageStart, res)
		}
		o.record(job, opts, StageExtract, finalWAV, stageStart)
		return o.succeed(ctx, job, finalWAV, "")
	}

	// Stage: extract to canonical PCM.
	pcmPath := filepath.Join(tempDir, base+"_pcm.wav")
	tmp.Track(pcmPath)
	o.emit(opts.OnProgress, job.ID, StageExtract, ProgressStarted, "")
	stageStart = time.Now()
	if res := o.processor.ExtractRaw(ctx, rawPath, pcmPath); !res.Success {
		return o.failProcessing(ctx, job, opts, StageExtract, stageStart, res)
	}
	o.record(job, opts, StageExtract, pcmPath, stageStart)

	// Stage: denoise.
	denoiseSpec, err := filtergraph.Build(filtergraph.NoiseReduction, o.filterParams())
	if err != nil {
		return o.fail(ctx, job, opts, StageDenoise, time.Now(), err, "")
	}
	denoisedPath := filepath.Join(tempDir, base+"_denoised.wav")
	tmp.Track(denoisedPath)
	o.emit(opts.OnProgress, job.ID, StageDenoise, ProgressStarted, "")
	stageStart = time.Now()
	if res := o.processor.ApplyFilterGraph(ctx, pcmPath, denoisedPath, denoiseSpec); !res.Success {
		return o.failProcessing(ctx, job, opts, StageDenoise, stageStart, res)
	}
	o.record(job, opts, StageDenoise, denoisedPath, stageStart)

	// Stage: enhance.
	enhanceSpec, err := filtergraph.Build(filtergraph.VocalEnhancement, o.filterParams())
	if err != nil {
		return o.fail(ctx, job, opts, StageEnhance, time.Now(), err, "")
	}
	enhancedPath := filepath.Join(tempDir, base+"_enhanced.wav")
	tmp.Track(enhancedPath)
	o.emit(opts.OnProgress, job.ID, StageEnhance, ProgressStarted, "")
	stageStart = time.Now()
	if res := o.processor.ApplyFilterGraph(ctx, denoisedPath, enhancedPath, enhanceSpec); !res.Success {
		return o.failProcessing(ctx, job, opts, StageEnhance, stageStart, res)
	}
	o.record(job, opts, StageEnhance, enhancedPath, stageStart)

	convertInput := enhancedPath

	// Stage: trim silence (optional).
	if opts.TrimSilence {
		trimSpec, err := filtergraph.Build(filtergraph.SilenceRemoval, o.filterParams())
		if err != nil {
			return o.fail(ctx, job, opts, StageTrimSilence, time.Now(), err, "")
		}
		trimmedPath := filepath.Join(tempDir, base+"_trimmed.wav")
		tmp.Track(trimmedPath)
		o.emit(opts.OnProgress, job.ID, StageTrimSilence, ProgressStarted, "")
		stageStart = time.Now()
		if res := o.processor.RemoveSilence(ctx, enhancedPath, trimmedPath, trimSpec); !res.Success {
			return o.failProcessing(ctx, job, opts, StageTrimSilence, stageStart, res)
		}
		o.record(job, opts, StageTrimSilence, trimmedPath, stageStart)
		convertInput = trimmedPath
	}

	// Stage: convert to deliverables (lossless WAV plus compressed twin).
	o.emit(opts.OnProgress, job.ID, StageConvert, ProgressStarted, "")
	stageStart = time.Now()
	if res := o.processor.ConvertFormat(ctx, convertInput, finalWAV, "wav"); !res.Success {
		return o.failProcessing(ctx, job, opts, StageConvert, stageStart, res)
	}
	if res := o.processor.ConvertFormat(ctx, finalWAV, finalMP3, "mp3"); !res.Success {
		return o.failProcessing(ctx, job, opts, StageConvert, stageStart, res)
	}
	o.record(job, opts, StageConvert, finalWAV, stageStart)

	return o.succeed(ctx, job, finalWAV, finalMP3)
}

// record appends a successful StageResult and stores the produced path.
func (o *Orchestrator) record(job *Job, opts Options, stage, outputPath string, start time.Time) {
	job.Stages = append(job.Stages, StageResult{
		Stage:      stage,
		Success:    true,
		OutputPath: outputPath,
		Elapsed:    time.Since(start),
	})
	job.Files[stage] = outputPath
	logger.Infof("job %s: stage %s done in %v", job.ID, stage, time.Since(start).Round(time.Millisecond))
	o.emit(opts.OnProgress, job.ID, stage, ProgressFinished, outputPath)
}

// succeed finalizes the job, probing the final output for audio metadata.
func (o *Orchestrator) succeed(ctx context.Context, job *Job, wavPath, mp3Path string) *JobResult {
	job.Status = StatusSucceeded

	result := &JobResult{
		Success:     true,
		JobID:       job.ID,
		SourceID:    job.SourceID,
		Status:      StatusSucceeded,
		Metadata:    job.Source,
		OutputFiles: &OutputFiles{WAV: wavPath, MP3: mp3Path},
		Stages:      job.Stages,
	}

	audio, err := o.processor.ProbeMetadata(ctx, wavPath)
	if err != nil {
		// The deliverable exists; a failed probe degrades the result but
		// does not flip the verdict.
		metaErr := &MetadataError{Path: wavPath, Err: err}
		logger.Warnf("job %s: %v", job.ID, metaErr)
		result.Details = metaErr.Error()
		return result
	}

	job.Audio = audio
	result.AudioMetadata = audio
	return result
}

// fail finalizes the job after a stage failure. Later stages are never
// attempted; the result carries every StageResult already produced.
func (o *Orchestrator) fail(ctx context.Context, job *Job, opts Options, stage string, start time.Time, cause error, diagnostic string) *JobResult {
	status := StatusFailed
	if ctx.Err() != nil || errors.Is(cause, context.Canceled) || errors.Is(cause, context.DeadlineExceeded) {
		status = StatusCancelled
	}
	job.Status = status

	msg := failureMessage(stage, cause)
	logger.Errorf("job %s: %s (stage %s, %v elapsed)", job.ID, msg, stage, time.Since(start).Round(time.Millisecond))
	o.emit(opts.OnProgress, job.ID, stage, ProgressFailed, msg)

	return &JobResult{
		Success:  false,
		JobID:    job.ID,
		SourceID: job.SourceID,
		Status:   status,
		Metadata: job.Source,
		Stages:   job.Stages,
		Error:    msg,
		Details:  diagnostic,
	}
}

func (o *Orchestrator) failProcessing(ctx context.Context, job *Job, opts Options, stage string, start time.Time, res executor.Result) *JobResult {
	procErr := &ProcessingError{Stage: stage, Diagnostic: res.Log, Err: res.Err}
	return o.fail(ctx, job, opts, stage, start, procErr, res.Log)
}

func failureMessage(stage string, cause error) string {
	if stage == StageDownload {
		var dlErr *DownloadError
		if errors.As(cause, &dlErr) {
			return fmt.Sprintf("Failed to download audio: %s", dlErr.Detail)
		}
	}
	return cause.Error()
}

func (o *Orchestrator) filterParams() filtergraph.Params {
	f := o.cfg.Filters
	return filtergraph.Params{
		HighpassHz:         f.HighpassHz,
		LowpassHz:          f.LowpassHz,
		NoiseReduceDB:      f.NoiseReduceDB,
		NoiseFloorDB:       f.NoiseFloorDB,
		ClarityHz:          f.ClarityHz,
		ClarityWidthHz:     f.ClarityWidthHz,
		ClarityGainDB:      f.ClarityGainDB,
		LoudnessTargetLUFS: f.LoudnessTargetLUFS,
		LoudnessTruePeak:   f.LoudnessTruePeak,
		LoudnessRange:      f.LoudnessRange,
		SilenceThresholdDB: f.SilenceThresholdDB,
		SilenceMinDuration: f.SilenceMinDuration,
	}
}

func (o *Orchestrator) notify(job *Job, result *JobResult) {
	if o.notifier == nil {
		return
	}

	if result.Success {
		title := "Voice extraction complete"
		body := fmt.Sprintf("**%s**\nJob: %s", job.SourceID, job.ID)
		if job.Source != nil {
			body = fmt.Sprintf("**%s**\nJob: %s", job.Source.Title, job.ID)
		}
		if err := o.notifier.NotifySuccess(title, body); err != nil {
			logger.Warnf("failed to send notification: %v", err)
		}
		return
	}

	title := "Voice extraction failed"
	body := fmt.Sprintf("Job: %s\nError: %s", job.ID, result.Error)
	if err := o.notifier.NotifyError(title, body); err != nil {
		logger.Warnf("failed to send error notification: %v", err)
	}
}

// nextStamp returns a unix-millisecond timestamp that is strictly greater
// than the previous one handed out, so two jobs for the same source started
// within the same millisecond still get distinct file names.
func (o *Orchestrator) nextStamp() int64 {
	o.stampMu.Lock()
	defer o.stampMu.Unlock()

	now := time.Now().UnixMilli()
	if now <= o.lastStamp {
		now = o.lastStamp + 1
	}
	o.lastStamp = now
	return now
}

func newJobID() string {
	return uuid.New().String()[:8]
}
