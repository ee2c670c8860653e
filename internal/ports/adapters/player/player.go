package player

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"time"

	"github.com/forPelevin/accentscan/internal/metrics"
)

type runFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRun(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Adapter hands audio files to the host's default player.
type Adapter struct {
	goos string
	run  runFunc
}

func New() *Adapter {
	return &Adapter{goos: runtime.GOOS, run: execRun}
}

// Command returns the opener invocation for goos.
func Command(goos, path string) (string, []string) {
	switch goos {
	case "darwin":
		return "open", []string{path}
	case "windows":
		return "cmd", []string{"/c", "start", "", path}
	default:
		return "xdg-open", []string{path}
	}
}

func (a *Adapter) Play(ctx context.Context, path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("play: %w", err)
	}
	name, args := Command(a.goos, path)
	start := time.Now()
	b, err := a.run(ctx, name, args...)
	metrics.ObserveCommand("player", err, time.Since(start))
	if err != nil {
		return fmt.Errorf("%s: %w\n%s", name, err, string(b))
	}
	return nil
}
