package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxpipe/internal/config"
	"github.com/voxpipe/internal/executor"
	"github.com/voxpipe/internal/pipeline"
	"github.com/voxpipe/pkg/logger"
)

func TestMain(m *testing.M) {
	logger.Init(true)
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type fakeRunner struct {
	lastRef  string
	lastOpts pipeline.Options
	result   *pipeline.JobResult
}

func (f *fakeRunner) Run(_ context.Context, ref string, opts pipeline.Options) *pipeline.JobResult {
	f.lastRef = ref
	f.lastOpts = opts
	return f.result
}

type fakeProber struct {
	meta *executor.SourceMetadata
	err  error
}

func (f *fakeProber) IsValidReference(ref string) bool {
	return strings.Contains(ref, "youtube.com/watch?v=") || strings.Contains(ref, "youtu.be/")
}

func (f *fakeProber) FetchMetadata(context.Context, string) (*executor.SourceMetadata, error) {
	return f.meta, f.err
}

func newTestRouter(runner PipelineRunner, prober MetadataProber) *gin.Engine {
	cfg := &config.Config{
		Pipeline: config.PipelineConfig{CleanupTemp: true},
	}
	r := gin.New()
	New(runner, prober, cfg).RegisterRoutes(r)
	return r
}

func doJSON(t *testing.T, r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestExtract_Success(t *testing.T) {
	runner := &fakeRunner{result: &pipeline.JobResult{
		Success:  true,
		JobID:    "abc12345",
		SourceID: "dQw4w9WgXcQ",
		Status:   pipeline.StatusSucceeded,
		OutputFiles: &pipeline.OutputFiles{
			WAV: "/out/dQw4w9WgXcQ_1_clean_voice.wav",
			MP3: "/out/dQw4w9WgXcQ_1_clean_voice.mp3",
		},
	}}
	r := newTestRouter(runner, &fakeProber{})

	w := doJSON(t, r, http.MethodPost, "/api/v1/extract",
		`{"url":"https://youtu.be/dQw4w9WgXcQ"}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://youtu.be/dQw4w9WgXcQ", runner.lastRef)
	assert.False(t, runner.lastOpts.QuickMode)
	assert.True(t, runner.lastOpts.CleanupTemp, "config default applies")

	var resp pipeline.JobResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "abc12345", resp.JobID)
	require.NotNil(t, resp.OutputFiles)
	assert.NotEmpty(t, resp.OutputFiles.WAV)
	assert.NotEmpty(t, resp.OutputFiles.MP3)
}

func TestExtract_OptionsOverrideDefaults(t *testing.T) {
	runner := &fakeRunner{result: &pipeline.JobResult{Success: true, Status: pipeline.StatusSucceeded}}
	r := newTestRouter(runner, &fakeProber{})

	w := doJSON(t, r, http.MethodPost, "/api/v1/extract",
		`{"url":"https://youtu.be/dQw4w9WgXcQ","cleanupTemp":false,"trimSilence":true}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.False(t, runner.lastOpts.CleanupTemp)
	assert.True(t, runner.lastOpts.TrimSilence)
}

func TestExtract_MissingURL(t *testing.T) {
	runner := &fakeRunner{}
	r := newTestRouter(runner, &fakeProber{})

	w := doJSON(t, r, http.MethodPost, "/api/v1/extract", `{}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, runner.lastRef)
}

func TestExtract_InvalidReferenceIsBadRequest(t *testing.T) {
	runner := &fakeRunner{result: &pipeline.JobResult{
		Success: false,
		JobID:   "abc12345",
		Status:  pipeline.StatusFailed,
		Error:   `invalid video reference: "garbage"`,
	}}
	r := newTestRouter(runner, &fakeProber{})

	w := doJSON(t, r, http.MethodPost, "/api/v1/extract", `{"url":"garbage"}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExtract_PipelineFailure(t *testing.T) {
	runner := &fakeRunner{result: &pipeline.JobResult{
		Success:  false,
		JobID:    "abc12345",
		SourceID: "dQw4w9WgXcQ",
		Status:   pipeline.StatusFailed,
		Error:    "Failed to download audio: Video unavailable",
	}}
	r := newTestRouter(runner, &fakeProber{})

	w := doJSON(t, r, http.MethodPost, "/api/v1/extract",
		`{"url":"https://youtu.be/dQw4w9WgXcQ"}`)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	var resp pipeline.JobResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "Failed to download audio")
	assert.Equal(t, "abc12345", resp.JobID)
}

func TestQuickExtract_SetsQuickMode(t *testing.T) {
	runner := &fakeRunner{result: &pipeline.JobResult{Success: true, Status: pipeline.StatusSucceeded}}
	r := newTestRouter(runner, &fakeProber{})

	w := doJSON(t, r, http.MethodPost, "/api/v1/extract/quick",
		`{"url":"https://youtu.be/dQw4w9WgXcQ"}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, runner.lastOpts.QuickMode)
}

func TestVideoInfo(t *testing.T) {
	prober := &fakeProber{meta: &executor.SourceMetadata{
		ID: "dQw4w9WgXcQ", Title: "Test Video", Duration: 212,
	}}
	r := newTestRouter(&fakeRunner{}, prober)

	req := httptest.NewRequest(http.MethodGet,
		"/api/v1/video-info?url=https://youtu.be/dQw4w9WgXcQ", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Test Video")
}

func TestVideoInfo_MissingURL(t *testing.T) {
	r := newTestRouter(&fakeRunner{}, &fakeProber{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/video-info", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestVideoInfo_InvalidReference(t *testing.T) {
	r := newTestRouter(&fakeRunner{}, &fakeProber{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/video-info?url=garbage", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestVideoInfo_ProbeFailure(t *testing.T) {
	prober := &fakeProber{err: errors.New("Video unavailable")}
	r := newTestRouter(&fakeRunner{}, prober)

	req := httptest.NewRequest(http.MethodGet,
		"/api/v1/video-info?url=https://youtu.be/dQw4w9WgXcQ", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "Video unavailable")
}

func TestHealth(t *testing.T) {
	r := newTestRouter(&fakeRunner{}, &fakeProber{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ok")
}
