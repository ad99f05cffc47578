package plugin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
)

// ErrTimeout is returned when a plugin does not answer in time.
var ErrTimeout = errors.New("plugin timed out")

// maxOutput bounds how much of a plugin's stdout and stderr is kept.
const maxOutput = 64 * 1024

// Executor runs plugin executables with a per-call timeout.
type Executor struct {
	timeout time.Duration
}

// NewExecutor creates an Executor that kills plugins running longer than
// timeoutMs milliseconds.
func NewExecutor(timeoutMs int) *Executor {
	return &Executor{timeout: time.Duration(timeoutMs) * time.Millisecond}
}

// Timeout returns the per-call timeout.
func (e *Executor) Timeout() time.Duration {
	return e.timeout
}

// Execute runs p in its directory with req on stdin and parses its stdout
// as a Response. A plugin that answers with Success false is not an error
// here; callers inspect the Response.
func (e *Executor) Execute(ctx context.Context, p *Plugin, req *Request) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	input, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	stdout := &limitedBuffer{limit: maxOutput}
	stderr := &limitedBuffer{limit: maxOutput}
	cmd := exec.CommandContext(ctx, p.Executable)
	cmd.Dir = p.Path
	cmd.Stdin = bytes.NewReader(input)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = time.Second

	start := time.Now()
	err = cmd.Run()
	logger.Tracef(ctx, "plugin %s/%s (sign %q) ran for %v", p.Manifest.Name, req.Action, req.Sign, time.Since(start))

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("%w after %v", ErrTimeout, e.timeout)
	}
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("run %s: %w: %s", p.Manifest.Name, err, msg)
		}
		return nil, fmt.Errorf("run %s: %w", p.Manifest.Name, err)
	}

	var resp Response
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return nil, fmt.Errorf("parse %s response %q: %w", p.Manifest.Name, stdout.String(), err)
	}
	return &resp, nil
}

// limitedBuffer keeps the first limit bytes written to it and discards
// the rest without failing the writer.
type limitedBuffer struct {
	bytes.Buffer
	limit int
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	if room := b.limit - b.Len(); room > 0 {
		if len(p) > room {
			b.Buffer.Write(p[:room])
		} else {
			b.Buffer.Write(p)
		}
	}
	return len(p), nil
}
