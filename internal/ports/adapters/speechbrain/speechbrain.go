package speechbrain

import (
	"bufio"
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/forPelevin/accentscan/internal/metrics"
	"github.com/forPelevin/accentscan/internal/types"
)

//go:embed assets/classify_accent.py
var helperScript []byte

const DefaultSource = "Jzuluaga/accent-id-commonaccent_xlsr-en-english"

// Adapter drives a long-lived Python helper that keeps the pretrained model
// loaded between chunks. Requests and responses are single JSON lines.
type Adapter struct {
	bin  string
	args []string
	env  []string

	mu sync.Mutex
	h  *helper
}

type helper struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	out    *bufio.Reader
	stderr *tailBuffer
}

type request struct {
	Path string `json:"path"`
}

type response struct {
	types.Prediction
	// Path echoes the request path.
	Path  string `json:"path"`
	Error string `json:"error,omitempty"`
}

// maxStray bounds the non-JSON stdout lines skipped while waiting for a reply.
const maxStray = 64

var errStray = errors.New("too many stray output lines")

// New builds an adapter running `python script --source source`. An empty
// script uses the embedded helper, written to the user cache directory.
func New(python, script, source string) (*Adapter, error) {
	if python == "" {
		python = "python3"
	}
	if source == "" {
		source = DefaultSource
	}
	if script == "" {
		p, err := materializeScript()
		if err != nil {
			return nil, err
		}
		script = p
	}
	return &Adapter{bin: python, args: []string{script, "--source", source}}, nil
}

func materializeScript() (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	dir = filepath.Join(dir, "accentscan")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create helper dir: %w", err)
	}
	p := filepath.Join(dir, "classify_accent.py")
	if err := os.WriteFile(p, helperScript, 0o644); err != nil {
		return "", fmt.Errorf("write helper script: %w", err)
	}
	return p, nil
}

func (a *Adapter) Classify(ctx context.Context, wavPath string) (types.Prediction, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	start := time.Now()
	p, err := a.roundTrip(ctx, wavPath)
	metrics.ObserveCommand("classifier", err, time.Since(start))
	return p, err
}

func (a *Adapter) roundTrip(ctx context.Context, wavPath string) (types.Prediction, error) {
	if a.h == nil {
		h, err := a.start()
		if err != nil {
			return types.Prediction{}, err
		}
		a.h = h
	}

	b, err := json.Marshal(request{Path: wavPath})
	if err != nil {
		return types.Prediction{}, err
	}
	if _, err := a.h.stdin.Write(append(b, '\n')); err != nil {
		stderr := a.h.stderr
		a.stopLocked()
		msg := stderr.String()
		return types.Prediction{}, fmt.Errorf("classifier helper write: %w\n%s", err, msg)
	}

	type lineResult struct {
		line []byte
		err  error
	}
	ch := make(chan lineResult, 1)
	go func(h *helper) {
		for skipped := 0; ; skipped++ {
			line, err := h.out.ReadBytes('\n')
			if err != nil {
				ch <- lineResult{err: err}
				return
			}
			if t := bytes.TrimSpace(line); len(t) > 0 && t[0] == '{' {
				ch <- lineResult{line: t}
				return
			}
			// Library banners and warnings: keep them with stderr.
			_, _ = h.stderr.Write(line)
			if skipped == maxStray {
				ch <- lineResult{err: errStray}
				return
			}
		}
	}(a.h)

	select {
	case <-ctx.Done():
		a.stopLocked()
		return types.Prediction{}, ctx.Err()
	case res := <-ch:
		if res.err != nil {
			stderr := a.h.stderr
			a.stopLocked()
			msg := stderr.String()
			if errors.Is(res.err, errStray) {
				return types.Prediction{}, fmt.Errorf("classifier helper out of step: %w\n%s", res.err, msg)
			}
			return types.Prediction{}, fmt.Errorf("classifier helper exited: %w\n%s", res.err, msg)
		}
		var resp response
		if err := json.Unmarshal(res.line, &resp); err != nil {
			a.stopLocked()
			return types.Prediction{}, fmt.Errorf("parse classifier output %q: %w", truncate(string(res.line), 200), err)
		}
		if resp.Path != wavPath {
			a.stopLocked()
			return types.Prediction{}, fmt.Errorf("classifier helper out of step: reply for %q while waiting for %q", resp.Path, wavPath)
		}
		if resp.Error != "" {
			return types.Prediction{}, fmt.Errorf("classifier: %s", resp.Error)
		}
		return resp.Prediction, nil
	}
}

func (a *Adapter) start() (*helper, error) {
	cmd := exec.Command(a.bin, a.args...)
	if len(a.env) > 0 {
		cmd.Env = append(os.Environ(), a.env...)
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr := &tailBuffer{max: 4096}
	cmd.Stderr = stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start classifier helper: %w", err)
	}
	return &helper{cmd: cmd, stdin: stdin, out: bufio.NewReader(stdout), stderr: stderr}, nil
}

// Close stops the helper process, if one is running.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopLocked()
	return nil
}

func (a *Adapter) stopLocked() {
	if a.h == nil {
		return
	}
	_ = a.h.stdin.Close()
	done := make(chan struct{})
	go func(cmd *exec.Cmd) {
		_ = cmd.Wait()
		close(done)
	}(a.h.cmd)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		_ = a.h.cmd.Process.Kill()
		<-done
	}
	a.h = nil
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	b   []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.b = append(t.b, p...)
	if over := len(t.b) - t.max; over > 0 {
		t.b = t.b[over:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimSpace(string(t.b))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// running reports whether a helper process is currently alive.
func (a *Adapter) running() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.h != nil
}
