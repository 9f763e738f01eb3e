// Package engine provides the panel orchestration runtime.
//
// # Overview
//
// A System manages the lifecycle, visibility, stacking, focus, masking and
// main-screen switching of many concurrently existing panels. Callers submit
// operations; the System executes them one at a time in submission order:
//
//  1. Submit - enqueue an Operation and receive a Pending OperationHandle
//  2. Dispatch - the drain loop pops the head and resolves or instantiates the target panel
//  3. Transition - the panel runs its Show/Hide/Close state machine, awaiting the Animator
//  4. Resolve - the resolver reorders panels, places the mask and moves focus
//  5. Complete - the handle is resolved with the resulting panel
//
// # Panel Lifecycle
//
// Panels move between three states:
//
//   - Hidden: the initial state
//   - Shown: reached after a committed show transition
//   - Closed: terminal; the panel is torn down and never resurrected
//
// Every transition bumps a per-panel generation counter. An animation wait
// that resumes with a stale generation discards its result, so a hide issued
// while a show animation is running wins.
//
// # Cooperative Context
//
// System state is owned by a single cooperative context. The scheduler holds
// it while an operation runs and releases it only while awaiting the
// Animator, the LoadingHandler or a LoadingHook. Lifecycle hooks run inside
// the context and may submit operations, which are appended to the queue:
//
//	type inventory struct{ engine.BaseHooks }
//
//	func (inventory) OnShown(p *engine.Panel) {
//	    p.System().Show("ui/tooltip", true, nil)
//	}
//
// Direct transitions on a Panel (Panel.Show, Panel.Hide, Panel.Close) enter
// the context from outside and interleave with queued operations only at
// their suspension points.
//
// # Main Screen
//
// Panels with RoleMainUI compete for the main-screen slot. ShowMainUI
// displaces every other non-persistent panel according to its
// MainChangeBehavior, optionally gates the switch behind the LoadingHandler,
// and records history for GoBackMainUI. SwitchMainUI always closes the
// previous main and clears history.
//
// # Collaborators
//
// Rendering, animation playback, template loading and input routing are
// external: see Animator, LoadingHandler, TemplateLoader, ContainerFactory,
// InputSchemeHandler and EventPublisher.
package engine
