package tui

import (
	"context"
	"time"

	"github.com/panelflow/panelflow/pkg/engine"
)

// Transition is an in-progress show or hide animation.
type Transition struct {
	Phase    string
	Progress float64
}

// Default animation timing.
const (
	DefaultAnimationDuration = 240 * time.Millisecond
	DefaultAnimationSteps    = 8
)

// TickAnimator implements engine.Animator by stepping a transition on the
// screen with a ticker. Cancellation stops the transition where it is.
type TickAnimator struct {
	screen   *Screen
	duration time.Duration
	steps    int
}

// NewTickAnimator creates an animator drawing on screen.
// Non-positive values select the defaults.
func NewTickAnimator(screen *Screen, duration time.Duration, steps int) *TickAnimator {
	if duration <= 0 {
		duration = DefaultAnimationDuration
	}
	if steps <= 0 {
		steps = DefaultAnimationSteps
	}
	return &TickAnimator{screen: screen, duration: duration, steps: steps}
}

func (a *TickAnimator) PlayShow(ctx context.Context, p *engine.Panel) error {
	return a.play(ctx, p.ID(), "show")
}

func (a *TickAnimator) PlayHide(ctx context.Context, p *engine.Panel) error {
	return a.play(ctx, p.ID(), "hide")
}

func (a *TickAnimator) play(ctx context.Context, id uint64, phase string) error {
	defer a.screen.update(func() { delete(a.screen.anims, id) })

	ticker := time.NewTicker(a.duration / time.Duration(a.steps))
	defer ticker.Stop()

	for step := 0; step <= a.steps; step++ {
		progress := float64(step) / float64(a.steps)
		a.screen.update(func() {
			a.screen.anims[id] = Transition{Phase: phase, Progress: progress}
		})
		if step == a.steps {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}
