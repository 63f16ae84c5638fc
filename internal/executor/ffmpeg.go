package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sync/semaphore"

	"github.com/voxpipe/internal/config"
	"github.com/voxpipe/internal/fileops"
	"github.com/voxpipe/internal/filtergraph"
	"github.com/voxpipe/pkg/logger"
)

// Result is the uniform outcome of one transcoding-engine invocation. Engine
// failures never escape as panics or raw errors; the orchestrator branches on
// Success and reports Log for diagnosis.
type Result struct {
	Success    bool
	OutputPath string
	Err        error
	Log        string
}

// AudioMetadata is derived by probing a file, never by assumption.
type AudioMetadata struct {
	Duration   float64 `json:"duration"`
	SampleRate int     `json:"sampleRate"`
	Channels   int     `json:"channels"`
	Codec      string  `json:"codec"`
	BitRate    int     `json:"bitRate"`
}

// AudioProcessor wraps the external transcoding engine (ffmpeg/ffprobe), one
// invocation per pipeline stage. A weighted semaphore bounds how many engine
// processes run at once across all jobs.
type AudioProcessor struct {
	audio  config.AudioConfig
	cfg    config.TranscoderConfig
	runner CommandRunner
	sem    *semaphore.Weighted
}

// ProcessorOption is a functional option for configuring AudioProcessor.
type ProcessorOption func(*AudioProcessor)

// WithProcessorRunner sets a custom command runner (for testing).
func WithProcessorRunner(r CommandRunner) ProcessorOption {
	return func(p *AudioProcessor) { p.runner = r }
}

// NewAudioProcessor creates an ffmpeg-backed audio processor.
func NewAudioProcessor(audio config.AudioConfig, cfg config.TranscoderConfig, opts ...ProcessorOption) *AudioProcessor {
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}

	p := &AudioProcessor{
		audio:  audio,
		cfg:    cfg,
		runner: ExecRunner{},
		sem:    semaphore.NewWeighted(int64(maxConcurrent)),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// ExtractRaw converts arbitrary container audio into canonical linear PCM at
// the configured sample rate and channel count.
func (p *AudioProcessor) ExtractRaw(ctx context.Context, inputPath, outputPath string) Result {
	args := []string{
		"-y",
		"-i", inputPath,
		"-vn",
		"-acodec", "pcm_s16le",
		"-ar", strconv.Itoa(p.audio.SampleRate),
		"-ac", strconv.Itoa(p.audio.Channels),
		outputPath,
	}
	return p.transcode(ctx, outputPath, args)
}

// ApplyFilterGraph runs one filter chain over the input, re-encoding to the
// canonical PCM form so every stage's output is a valid input to the next.
// It serves both the noise-reduction and the enhancement stage.
func (p *AudioProcessor) ApplyFilterGraph(ctx context.Context, inputPath, outputPath string, spec filtergraph.Spec) Result {
	args := []string{
		"-y",
		"-i", inputPath,
		"-af", spec.Serialize(),
		"-acodec", "pcm_s16le",
		"-ar", strconv.Itoa(p.audio.SampleRate),
		"-ac", strconv.Itoa(p.audio.Channels),
		outputPath,
	}
	return p.transcode(ctx, outputPath, args)
}

// RemoveSilence trims leading and trailing silence per the given chain.
func (p *AudioProcessor) RemoveSilence(ctx context.Context, inputPath, outputPath string, spec filtergraph.Spec) Result {
	return p.ApplyFilterGraph(ctx, inputPath, outputPath, spec)
}

// ConvertFormat produces a deliverable. Supported targets: "wav" (canonical
// lossless) and "mp3" (compressed twin).
func (p *AudioProcessor) ConvertFormat(ctx context.Context, inputPath, outputPath, targetFormat string) Result {
	var args []string

	switch targetFormat {
	case "wav":
		args = []string{
			"-y",
			"-i", inputPath,
			"-acodec", "pcm_s16le",
			"-ar", strconv.Itoa(p.audio.SampleRate),
			"-ac", strconv.Itoa(p.audio.Channels),
			outputPath,
		}
	case "mp3":
		args = []string{
			"-y",
			"-i", inputPath,
			"-vn",
			"-acodec", "libmp3lame",
			"-ab", p.audio.MP3Bitrate,
			outputPath,
		}
	default:
		return Result{Success: false, Err: fmt.Errorf("unsupported target format: %q", targetFormat)}
	}

	return p.transcode(ctx, outputPath, args)
}

// ProbeMetadata returns structured stream/format metadata for path.
func (p *AudioProcessor) ProbeMetadata(ctx context.Context, path string) (*AudioMetadata, error) {
	args := []string{
		"-v", "error",
		"-select_streams", "a:0",
		"-show_entries", "stream=codec_name,sample_rate,channels,bit_rate",
		"-show_entries", "format=duration,bit_rate",
		"-of", "json",
		path,
	}

	stdout, stderr, err := p.runner.Run(ctx, p.cfg.FFprobePath, args...)
	if err != nil {
		return nil, fmt.Errorf("probe failed: %w: %s", err, strings.TrimSpace(stderr))
	}

	var doc struct {
		Streams []struct {
			CodecName  string `json:"codec_name"`
			SampleRate string `json:"sample_rate"`
			Channels   int    `json:"channels"`
			BitRate    string `json:"bit_rate"`
		} `json:"streams"`
		Format struct {
			Duration string `json:"duration"`
			BitRate  string `json:"bit_rate"`
		} `json:"format"`
	}
	if err := json.Unmarshal([]byte(stdout), &doc); err != nil {
		return nil, fmt.Errorf("parse probe document: %w", err)
	}
	if len(doc.Streams) == 0 {
		return nil, fmt.Errorf("no audio stream in %s", path)
	}

	stream := doc.Streams[0]
	meta := &AudioMetadata{
		Codec:    stream.CodecName,
		Channels: stream.Channels,
	}
	meta.SampleRate, _ = strconv.Atoi(stream.SampleRate)
	meta.Duration, _ = strconv.ParseFloat(doc.Format.Duration, 64)

	// Stream-level bit rate is missing for some codecs; fall back to format.
	if stream.BitRate != "" {
		meta.BitRate, _ = strconv.Atoi(stream.BitRate)
	}
	if meta.BitRate == 0 && doc.Format.BitRate != "" {
		meta.BitRate, _ = strconv.Atoi(doc.Format.BitRate)
	}

	return meta, nil
}

// transcode runs one engine invocation under the concurrency bound and folds
// the outcome into a uniform Result.
func (p *AudioProcessor) transcode(ctx context.Context, outputPath string, args []string) Result {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return Result{Success: false, Err: fmt.Errorf("acquire transcode slot: %w", err)}
	}
	defer p.sem.Release(1)

	logger.Debugf("transcoding: %s %s", p.cfg.FFmpegPath, strings.Join(args, " "))

	_, stderr, err := p.runner.Run(ctx, p.cfg.FFmpegPath, args...)
	if err != nil {
		// A partially written file from a failed run must not be mistaken
		// for valid stage output.
		_ = os.Remove(outputPath)
		return Result{
			Success: false,
			Err:     fmt.Errorf("transcode failed: %w", err),
			Log:     strings.TrimSpace(stderr),
		}
	}

	if !fileops.NonEmpty(outputPath) {
		return Result{
			Success: false,
			Err:     fmt.Errorf("engine reported success but produced no output at %s", outputPath),
			Log:     strings.TrimSpace(stderr),
		}
	}

	logger.Debugf("transcode complete: %s", filepath.Base(outputPath))
	return Result{Success: true, OutputPath: outputPath, Log: strings.TrimSpace(stderr)}
}

// VerifyInstalled checks that the external engines are available.
func (p *AudioProcessor) VerifyInstalled(ctx context.Context) error {
	if _, _, err := p.runner.Run(ctx, p.cfg.FFmpegPath, "-version"); err != nil {
		return fmt.Errorf("ffmpeg not found or not executable: %w", err)
	}
	if _, _, err := p.runner.Run(ctx, p.cfg.FFprobePath, "-version"); err != nil {
		return fmt.Errorf("ffprobe not found or not executable: %w", err)
	}
	return nil
}
