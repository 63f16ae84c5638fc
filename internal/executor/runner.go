package executor

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/voxpipe/pkg/logger"
)

// CommandRunner abstracts external process execution so the downloader and
// the audio processor can be exercised in tests without spawning anything.
// Run returns the captured stdout and stderr regardless of the error.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr string, err error)
}

// ExecRunner is the production implementation using os/exec. Engine output is
// captured for diagnostics and mirrored, dimmed, to stderr so long stages are
// observable without polluting structured logs.
type ExecRunner struct{}

const (
	dimStart = "\033[2m"
	dimEnd   = "\033[0m"
)

func (ExecRunner) Run(ctx context.Context, name string, args ...string) (string, string, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return "", "", fmt.Errorf("stdout pipe: %w", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return "", "", fmt.Errorf("stderr pipe: %w", err)
	}

	var stdoutBuf, stderrBuf bytes.Buffer
	var wg sync.WaitGroup

	wg.Add(2)
	go streamDimmed(&wg, stdoutPipe, &stdoutBuf)
	go streamDimmed(&wg, stderrPipe, &stderrBuf)

	if err := cmd.Start(); err != nil {
		return "", "", fmt.Errorf("start %s: %w", name, err)
	}

	wg.Wait()

	if err := cmd.Wait(); err != nil {
		return stdoutBuf.String(), stderrBuf.String(), fmt.Errorf("%s: %w", name, err)
	}

	return stdoutBuf.String(), stderrBuf.String(), nil
}

// streamDimmed reads from r, writes to buf for capture, and prints dimmed to
// stderr for a Docker-build-like live view of engine output.
func streamDimmed(wg *sync.WaitGroup, r io.Reader, buf *bytes.Buffer) {
	defer wg.Done()
	scanner := bufio.NewScanner(r)
	// Engine progress lines can get long.
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		buf.WriteString(line)
		buf.WriteByte('\n')
		fmt.Fprintf(os.Stderr, "%s  | %s%s\n", dimStart, line, dimEnd)
	}

	if err := scanner.Err(); err != nil {
		logger.Debugf("scanner error (may be normal): %v", err)
	}
}
