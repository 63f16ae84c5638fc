package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"golang.org/x/time/rate"

	"github.com/voxpipe/internal/config"
	"github.com/voxpipe/internal/fileops"
	"github.com/voxpipe/pkg/logger"
)

// Two accepted reference families: the canonical watch-page form and the
// short-link form. Source ids are always 11 characters.
var (
	watchPattern = regexp.MustCompile(`^(?:https?://)?(?:www\.)?youtube\.com/watch\?(?:[^#]*&)?v=([A-Za-z0-9_-]{11})(?:[&#].*)?$`)
	shortPattern = regexp.MustCompile(`^(?:https?://)?(?:www\.)?youtu\.be/([A-Za-z0-9_-]{11})(?:[?#].*)?$`)
)

// SourceMetadata is the probe result for a reference, fetched without
// downloading any payload.
type SourceMetadata struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Uploader   string  `json:"uploader"`
	UploadDate string  `json:"upload_date"`
	Duration   float64 `json:"duration"`
}

// DownloadOutcome reports a payload fetch. FetchAudio never returns a Go
// error; failures surface here with human-readable detail.
type DownloadOutcome struct {
	Success  bool
	FilePath string
	Error    string
}

// Downloader wraps the external download engine (yt-dlp).
type Downloader struct {
	cfg     config.DownloaderConfig
	runner  CommandRunner
	limiter *rate.Limiter
}

// DownloaderOption is a functional option for configuring Downloader.
type DownloaderOption func(*Downloader)

// WithDownloaderRunner sets a custom command runner (for testing).
func WithDownloaderRunner(r CommandRunner) DownloaderOption {
	return func(d *Downloader) { d.runner = r }
}

// NewDownloader creates a yt-dlp-backed downloader.
func NewDownloader(cfg config.DownloaderConfig, opts ...DownloaderOption) *Downloader {
	d := &Downloader{cfg: cfg, runner: ExecRunner{}}

	if cfg.ProbeRateLimitRPM > 0 {
		rps := float64(cfg.ProbeRateLimitRPM) / 60.0
		d.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		logger.Infof("downloader probe rate limit: %d RPM", cfg.ProbeRateLimitRPM)
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// IsValidReference reports whether ref matches an accepted reference pattern.
func (d *Downloader) IsValidReference(ref string) bool {
	return watchPattern.MatchString(ref) || shortPattern.MatchString(ref)
}

// ExtractSourceID returns the stable source identifier encoded in ref.
func (d *Downloader) ExtractSourceID(ref string) (string, bool) {
	if m := watchPattern.FindStringSubmatch(ref); m != nil {
		return m[1], true
	}
	if m := shortPattern.FindStringSubmatch(ref); m != nil {
		return m[1], true
	}
	return "", false
}

// FetchMetadata probes ref without downloading the payload. Used to fail fast
// on unavailable or restricted content, and by the video-info endpoint.
func (d *Downloader) FetchMetadata(ctx context.Context, ref string) (*SourceMetadata, error) {
	if d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("probe rate limit: %w", err)
		}
	}

	args := []string{
		"--dump-json",
		"--skip-download",
		"--no-playlist",
		"--no-warnings",
		ref,
	}

	logger.Debugf("probing metadata: %s %s", d.cfg.BinPath, strings.Join(args, " "))

	stdout, stderr, err := d.runner.Run(ctx, d.cfg.BinPath, args...)
	if err != nil {
		return nil, fmt.Errorf("metadata probe failed: %w: %s", err, strings.TrimSpace(stderr))
	}

	var meta SourceMetadata
	if err := json.Unmarshal([]byte(strings.TrimSpace(stdout)), &meta); err != nil {
		return nil, fmt.Errorf("parse metadata document: %w", err)
	}

	return &meta, nil
}

// FetchAudio downloads the best available audio for ref into destPath.
func (d *Downloader) FetchAudio(ctx context.Context, ref, destPath string) DownloadOutcome {
	args := []string{
		"-f", "bestaudio",
		"--no-playlist",
		"--no-progress",
		"--no-warnings",
		"-o", destPath,
		ref,
	}

	logger.Infof("downloading audio: %s", ref)
	logger.Debugf("  command: %s %s", d.cfg.BinPath, strings.Join(args, " "))

	_, stderr, err := d.runner.Run(ctx, d.cfg.BinPath, args...)
	if err != nil {
		detail := strings.TrimSpace(stderr)
		if detail == "" {
			detail = err.Error()
		}
		return DownloadOutcome{Success: false, Error: detail}
	}

	// The engine reporting success is not enough; the payload must exist.
	if !fileops.NonEmpty(destPath) {
		return DownloadOutcome{
			Success: false,
			Error:   fmt.Sprintf("download produced no file at %s", destPath),
		}
	}

	logger.Infof("download complete: %s", filepath.Base(destPath))
	return DownloadOutcome{Success: true, FilePath: destPath}
}

// VerifyInstalled checks that the download engine is available.
func (d *Downloader) VerifyInstalled(ctx context.Context) error {
	if _, _, err := d.runner.Run(ctx, d.cfg.BinPath, "--version"); err != nil {
		return fmt.Errorf("yt-dlp not found or not executable: %w", err)
	}
	return nil
}
