// Package swmm runs the EPA-SWMM engine executable.
package swmm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/couchcryptid/swmm-fews-adapter/internal/domain"
	"github.com/jonboulle/clockwork"
)

// BatchFile is the record of the command line left in the work directory so
// a modeller can rerun the model by hand.
const BatchFile = "Run_model.bat"

// Runner invokes the model executable.
type Runner struct {
	timeout time.Duration
	clock   clockwork.Clock
	logger  *slog.Logger
}

// NewRunner creates a Runner. A zero timeout waits for the model
// indefinitely; a nil clock uses the real clock.
func NewRunner(timeout time.Duration, clock clockwork.Clock, logger *slog.Logger) *Runner {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Runner{timeout: timeout, clock: clock, logger: logger}
}

// Run executes "exe inp rpt" with workDir as the working directory.
func (r *Runner) Run(ctx context.Context, exe, inp, rpt, workDir string) error {
	line := strings.Join([]string{exe, inp, rpt}, " ")
	if err := os.WriteFile(filepath.Join(workDir, BatchFile), []byte(line+"\n"), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", BatchFile, err)
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, exe, inp, rpt)
	cmd.Dir = workDir
	cmd.Stdout = &out
	cmd.Stderr = &out

	r.logger.Info("starting model run", "command", line, "work_dir", workDir)
	start := r.clock.Now()
	err := cmd.Run()
	if out.Len() > 0 {
		r.logger.Debug("model output", "output", strings.TrimSpace(out.String()))
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%w: model run interrupted: %w", domain.ErrModel, ctxErr)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Errorf("%w: model exited with code %d", domain.ErrModel, exitErr.ExitCode())
		}
		return fmt.Errorf("%w: start model: %w", domain.ErrModel, err)
	}
	r.logger.Info("model run finished", "duration", r.clock.Since(start))
	return nil
}
