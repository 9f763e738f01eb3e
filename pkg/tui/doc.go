// Package tui is a terminal front end for the panel engine.
//
// Screen, TickAnimator, LoadingOverlay and InputRouter implement the engine's
// collaborator interfaces on top of a character grid. Model is a bubbletea
// program that renders Screen snapshots with lipgloss and turns key presses
// into queued operations through a KeyMap scoped by input scheme.
//
//	screen := tui.NewScreen(nil)
//	input := tui.NewInputRouter(settings.DefaultInputScheme, logger)
//	sys := engine.New(catalog,
//		engine.WithContainerFactory(screen),
//		engine.WithAnimator(tui.NewTickAnimator(screen, 0, 0)),
//		engine.WithLoadingHandler(tui.NewLoadingOverlay(screen)),
//		engine.WithInputSchemeHandler(input),
//	)
//	m := tui.NewModel(sys, screen, input, tui.DefaultKeyMap(settings, templates))
//	err := tui.Run(ctx, m)
package tui
