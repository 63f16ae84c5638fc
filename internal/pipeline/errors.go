package pipeline

import "fmt"

// InvalidInputError means the reference matched no accepted pattern. No stage
// runs and no files are created.
type InvalidInputError struct {
	Reference string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid video reference: %q", e.Reference)
}

// DownloadError means the download engine reported failure: unreachable,
// restricted, or not found.
type DownloadError struct {
	Reference string
	Detail    string
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("download failed for %s: %s", e.Reference, e.Detail)
}

// ProcessingError tags a transcoding stage failure with the stage name and
// the raw engine diagnostic.
type ProcessingError struct {
	Stage      string
	Diagnostic string
	Err        error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("stage %s failed: %v", e.Stage, e.Err)
}

func (e *ProcessingError) Unwrap() error { return e.Err }

// MetadataError means the probe failed on an otherwise-successful file.
type MetadataError struct {
	Path string
	Err  error
}

func (e *MetadataError) Error() string {
	return fmt.Sprintf("metadata probe failed for %s: %v", e.Path, e.Err)
}

func (e *MetadataError) Unwrap() error { return e.Err }
