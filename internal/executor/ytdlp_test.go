package executor

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxpipe/internal/config"
)

func newTestDownloader(runner CommandRunner) *Downloader {
	return NewDownloader(
		config.DownloaderConfig{BinPath: "yt-dlp"},
		WithDownloaderRunner(runner),
	)
}

func TestIsValidReference(t *testing.T) {
	d := newTestDownloader(&fakeRunner{})

	valid := []string{
		"https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		"https://youtube.com/watch?v=dQw4w9WgXcQ",
		"http://www.youtube.com/watch?v=dQw4w9WgXcQ",
		"www.youtube.com/watch?v=dQw4w9WgXcQ",
		"youtube.com/watch?v=dQw4w9WgXcQ&t=42",
		"https://www.youtube.com/watch?list=PL123&v=dQw4w9WgXcQ",
		"https://youtu.be/dQw4w9WgXcQ",
		"youtu.be/dQw4w9WgXcQ?t=10",
	}
	for _, ref := range valid {
		assert.True(t, d.IsValidReference(ref), "should accept %q", ref)
	}

	invalid := []string{
		"",
		"not a url",
		"https://vimeo.com/12345678",
		"https://www.youtube.com/watch?v=short",
		"https://www.youtube.com/playlist?list=PL123",
		"https://youtu.be/",
		"ftp://youtube.com/watch?v=dQw4w9WgXcQ",
		"https://youtube.com.evil.com/watch?v=dQw4w9WgXcQ",
	}
	for _, ref := range invalid {
		assert.False(t, d.IsValidReference(ref), "should reject %q", ref)
	}
}

func TestExtractSourceID(t *testing.T) {
	d := newTestDownloader(&fakeRunner{})

	tests := []struct {
		ref    string
		wantID string
		wantOK bool
	}{
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ", true},
		{"https://youtu.be/Ab_c-123XYZ", "Ab_c-123XYZ", true},
		{"youtube.com/watch?v=dQw4w9WgXcQ&t=5", "dQw4w9WgXcQ", true},
		{"https://example.com/watch?v=dQw4w9WgXcQ", "", false},
		{"garbage", "", false},
	}

	for _, tt := range tests {
		id, ok := d.ExtractSourceID(tt.ref)
		assert.Equal(t, tt.wantOK, ok, tt.ref)
		assert.Equal(t, tt.wantID, id, tt.ref)
	}
}

func TestFetchMetadata(t *testing.T) {
	doc := `{"id":"dQw4w9WgXcQ","title":"Test Video","uploader":"tester","upload_date":"20240115","duration":212.5}`
	runner := &fakeRunner{stdout: doc + "\n"}
	d := newTestDownloader(runner)

	meta, err := d.FetchMetadata(context.Background(), "https://youtu.be/dQw4w9WgXcQ")
	require.NoError(t, err)

	assert.Equal(t, "dQw4w9WgXcQ", meta.ID)
	assert.Equal(t, "Test Video", meta.Title)
	assert.Equal(t, "tester", meta.Uploader)
	assert.Equal(t, "20240115", meta.UploadDate)
	assert.Equal(t, 212.5, meta.Duration)

	require.Len(t, runner.calls, 1)
	call := runner.calls[0]
	assert.Equal(t, "yt-dlp", call[0])
	assert.Contains(t, call, "--dump-json")
	assert.Contains(t, call, "--skip-download")
}

func TestFetchMetadata_EngineFailure(t *testing.T) {
	runner := &fakeRunner{stderr: "ERROR: Video unavailable", err: errEngine}
	d := newTestDownloader(runner)

	_, err := d.FetchMetadata(context.Background(), "https://youtu.be/dQw4w9WgXcQ")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Video unavailable")
}

func TestFetchAudio_Success(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "raw.m4a")
	runner := &fakeRunner{
		onRun: func(_ string, _ []string) {
			require.NoError(t, os.WriteFile(dest, []byte("audio-bytes"), 0644))
		},
	}
	d := newTestDownloader(runner)

	outcome := d.FetchAudio(context.Background(), "https://youtu.be/dQw4w9WgXcQ", dest)

	assert.True(t, outcome.Success)
	assert.Equal(t, dest, outcome.FilePath)
	assert.Empty(t, outcome.Error)

	require.Len(t, runner.calls, 1)
	call := runner.calls[0]
	assert.Contains(t, call, "bestaudio")
	assert.Contains(t, call, dest)
}

func TestFetchAudio_EngineFailure(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "raw.m4a")
	runner := &fakeRunner{stderr: "ERROR: unable to resolve host", err: errEngine}
	d := newTestDownloader(runner)

	outcome := d.FetchAudio(context.Background(), "https://youtu.be/dQw4w9WgXcQ", dest)

	assert.False(t, outcome.Success)
	assert.Contains(t, outcome.Error, "unable to resolve host")
	assert.NoFileExists(t, dest)
}

func TestFetchAudio_NoFileProduced(t *testing.T) {
	// Engine exits zero but writes nothing.
	dest := filepath.Join(t.TempDir(), "raw.m4a")
	d := newTestDownloader(&fakeRunner{})

	outcome := d.FetchAudio(context.Background(), "https://youtu.be/dQw4w9WgXcQ", dest)

	assert.False(t, outcome.Success)
	assert.Contains(t, outcome.Error, "no file")
}
