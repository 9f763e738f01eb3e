// Package scenario replays scripted panel operations against a System and
// checks the resulting state.
//
// A scenario is a YAML file:
//
//	name: bag over town
//	timeout: 5s
//	steps:
//	  - op: show_main
//	    path: scenes/town
//	  - op: show
//	    path: ui/bag
//	    expect:
//	      visible: [ui/bag, scenes/town]
//	      scheme: UI
//	      mask: ui/bag
//	  - op: auto_close_top
//	    expect:
//	      visible: [scenes/town]
//	      scheme: Game
//
// Operations are submitted without waiting, in order. wait and expect steps
// block until every earlier operation has resolved.
package scenario
