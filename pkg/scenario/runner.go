package scenario

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/rs/zerolog"

	"github.com/panelflow/panelflow/pkg/engine"
)

// DefaultTimeout bounds each wait when the scenario sets none.
const DefaultTimeout = 10 * time.Second

// ownerKey identifies a scenario-declared input scheme owner.
type ownerKey string

// StepResult is the outcome of one step.
type StepResult struct {
	Index       int           `json:"index"`
	Op          string        `json:"op,omitempty"`
	Path        string        `json:"path,omitempty"`
	OperationID uint64        `json:"operation_id,omitempty"`
	State       string        `json:"state,omitempty"`
	Error       string        `json:"error,omitempty"`
	Duration    time.Duration `json:"duration"`
	Failures    []string      `json:"failures,omitempty"`

	handle *engine.OperationHandle
}

// Report is the outcome of a replay.
type Report struct {
	Name     string        `json:"name,omitempty"`
	Steps    []*StepResult `json:"steps"`
	Duration time.Duration `json:"duration"`
}

// Failed returns the number of failed expectations.
func (r *Report) Failed() int {
	n := 0
	for _, s := range r.Steps {
		n += len(s.Failures)
	}
	return n
}

// Runner replays scenarios against an initialized System.
type Runner struct {
	sys    *engine.System
	logger zerolog.Logger
}

// NewRunner creates a runner for sys.
func NewRunner(sys *engine.System, logger zerolog.Logger) *Runner {
	return &Runner{
		sys:    sys,
		logger: logger.With().Str("component", "scenario").Logger(),
	}
}

// Run submits every step in order. Operations are queued without waiting;
// wait and expect steps block until everything submitted so far resolved.
// Expectation mismatches are reported, not returned as errors.
func (r *Runner) Run(ctx context.Context, s *Scenario) (*Report, error) {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	start := time.Now()
	report := &Report{Name: s.Name}
	var pending []*StepResult

	for i, step := range s.Steps {
		res := &StepResult{Index: i + 1, Op: step.Op, Path: step.Path}
		report.Steps = append(report.Steps, res)
		stepStart := time.Now()

		switch step.Op {
		case "":
		case OpWait:
			if err := r.await(ctx, pending, timeout); err != nil {
				return report, err
			}
			pending = nil
		case OpSleep:
			select {
			case <-time.After(step.Duration):
			case <-ctx.Done():
				return report, ctx.Err()
			}
		case OpSetInputScheme:
			r.sys.Inspect(func() {
				r.sys.SetInputScheme(ownerKey(step.Owner), step.Scheme)
			})
		default:
			op := engine.Operation{
				Type:         engine.OperationType(step.Op),
				Path:         step.Path,
				UseAnimation: step.useAnimation(),
				Force:        step.Force,
			}
			if step.UserData != nil {
				op.UserData = step.UserData
			}
			res.handle = r.sys.Submit(op)
			res.OperationID = res.handle.ID()
			pending = append(pending, res)
		}

		if step.Expect != nil {
			if err := r.await(ctx, pending, timeout); err != nil {
				return report, err
			}
			pending = nil
			res.Failures = r.check(step.Expect, res)
		}
		if res.handle == nil {
			res.Duration = time.Since(stepStart)
		}

		r.logger.Debug().Int("step", res.Index).Str("op", step.Op).Str("path", step.Path).Msg("Step submitted")
	}

	if err := r.await(ctx, pending, timeout); err != nil {
		return report, err
	}
	report.Duration = time.Since(start)

	r.logger.Info().
		Str("scenario", s.Name).
		Int("steps", len(report.Steps)).
		Int("failures", report.Failed()).
		Dur("duration", report.Duration).
		Msg("Scenario finished")
	return report, nil
}

// await waits for every pending handle and records its outcome.
func (r *Runner) await(ctx context.Context, pending []*StepResult, timeout time.Duration) error {
	for _, res := range pending {
		waitCtx, cancel := context.WithTimeout(ctx, timeout)
		_, err := res.handle.Wait(waitCtx)
		cancel()
		if err != nil && !res.handle.IsCompleted() {
			return fmt.Errorf("step %d (%s %s): %w", res.Index, res.Op, res.Path, err)
		}

		res.State = string(res.handle.State())
		if herr := res.handle.Err(); herr != nil {
			res.Error = herr.Error()
		}
		submitted, _, finished := res.handle.Timing()
		res.Duration = finished.Sub(submitted)
	}
	return nil
}

// check compares the system against exp. res is the step's own result, used
// for state expectations.
func (r *Runner) check(exp *Expectation, res *StepResult) []string {
	var failures []string
	fail := func(format string, args ...any) {
		failures = append(failures, fmt.Sprintf(format, args...))
	}

	r.sys.Inspect(func() {
		if exp.Visible != nil {
			var visible []string
			for _, p := range r.sys.Order() {
				if p.IsVisible() {
					visible = append(visible, p.Path())
				}
			}
			if !slices.Equal(visible, exp.Visible) {
				fail("visible: expected %v, got %v", exp.Visible, visible)
			}
		}
		if exp.Scheme != "" {
			if got := r.sys.InputScheme(); got != exp.Scheme {
				fail("scheme: expected %s, got %s", exp.Scheme, got)
			}
		}
		if exp.Main != nil {
			if got := pathOf(r.sys.CurrentMain()); got != *exp.Main {
				fail("main: expected %q, got %q", *exp.Main, got)
			}
		}
		if exp.Focus != nil {
			if got := pathOf(r.sys.FocusHolder()); got != *exp.Focus {
				fail("focus: expected %q, got %q", *exp.Focus, got)
			}
		}
		if exp.Mask != nil {
			if got := pathOf(r.sys.MaskTarget()); got != *exp.Mask {
				fail("mask: expected %q, got %q", *exp.Mask, got)
			}
		}
		if exp.Live != nil {
			if got := len(r.sys.LivePanels()); got != *exp.Live {
				fail("live: expected %d panels, got %d", *exp.Live, got)
			}
		}
	})

	if exp.State != "" {
		if res.handle == nil {
			fail("state: step has no operation")
		} else if res.State != exp.State {
			fail("state: expected %s, got %s", exp.State, res.State)
		}
	}
	return failures
}

func pathOf(p *engine.Panel) string {
	if p == nil {
		return ""
	}
	return p.Path()
}
