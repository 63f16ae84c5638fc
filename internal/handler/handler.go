package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/voxpipe/internal/config"
	"github.com/voxpipe/internal/executor"
	"github.com/voxpipe/internal/pipeline"
	"github.com/voxpipe/internal/version"
	"github.com/voxpipe/pkg/logger"
)

// PipelineRunner runs one extraction pipeline per call.
type PipelineRunner interface {
	Run(ctx context.Context, reference string, opts pipeline.Options) *pipeline.JobResult
}

// MetadataProber serves /video-info without a full pipeline run.
type MetadataProber interface {
	IsValidReference(ref string) bool
	FetchMetadata(ctx context.Context, ref string) (*executor.SourceMetadata, error)
}

// Handler handles HTTP requests.
type Handler struct {
	runner PipelineRunner
	prober MetadataProber
	cfg    *config.Config
}

// New creates a new Handler.
func New(runner PipelineRunner, prober MetadataProber, cfg *config.Config) *Handler {
	return &Handler{
		runner: runner,
		prober: prober,
		cfg:    cfg,
	}
}

// RegisterRoutes registers all API routes.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api/v1")
	{
		api.GET("/health", h.Health)
		api.GET("/version", h.Version)

		api.POST("/extract", h.Extract)
		api.POST("/extract/quick", h.QuickExtract)
		api.GET("/video-info", h.VideoInfo)
	}
}

// Health returns service health status.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Version returns service version.
func (h *Handler) Version(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"version": version.Version})
}

// ExtractRequest is the request body for extraction endpoints.
type ExtractRequest struct {
	URL         string `json:"url" binding:"required"`
	CleanupTemp *bool  `json:"cleanupTemp"`
	TrimSilence *bool  `json:"trimSilence"`
}

// Extract runs the full pipeline synchronously and returns the aggregated
// result. Every request yields exactly one JSON result.
func (h *Handler) Extract(c *gin.Context) {
	h.runPipeline(c, false)
}

// QuickExtract runs download and raw extraction only, skipping all filter
// stages and the compressed deliverable.
func (h *Handler) QuickExtract(c *gin.Context) {
	h.runPipeline(c, true)
}

func (h *Handler) runPipeline(c *gin.Context, quick bool) {
	var req ExtractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	opts := pipeline.Options{
		CleanupTemp: h.cfg.Pipeline.CleanupTemp,
		QuickMode:   quick,
	}
	if req.CleanupTemp != nil {
		opts.CleanupTemp = *req.CleanupTemp
	}
	if req.TrimSilence != nil {
		opts.TrimSilence = *req.TrimSilence
	}
	opts.OnProgress = func(ev pipeline.ProgressEvent) {
		logger.Debugf("job %s: %s %s %s", ev.JobID, ev.Stage, ev.State, ev.Message)
	}

	ctx := c.Request.Context()
	if h.cfg.Pipeline.JobTimeoutMinutes > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(h.cfg.Pipeline.JobTimeoutMinutes)*time.Minute)
		defer cancel()
	}

	result := h.runner.Run(ctx, req.URL, opts)

	status := http.StatusOK
	if !result.Success {
		status = http.StatusUnprocessableEntity
		if result.Status == pipeline.StatusFailed && len(result.Stages) == 0 && result.SourceID == "" {
			// Malformed reference: rejected before any stage ran.
			status = http.StatusBadRequest
		}
	}

	c.JSON(status, result)
}

// VideoInfo probes source metadata without downloading any payload.
func (h *Handler) VideoInfo(c *gin.Context) {
	ref := c.Query("url")
	if ref == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "url query parameter required"})
		return
	}

	if !h.prober.IsValidReference(ref) {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid video reference"})
		return
	}

	meta, err := h.prober.FetchMetadata(c.Request.Context(), ref)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"success": false, "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "metadata": meta})
}
