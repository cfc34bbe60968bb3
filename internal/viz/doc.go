// Package viz renders soil moisture profiles in the terminal and as
// images.
//
//   - [Model]: Bubble Tea live view that steps a simulation and draws the
//     moisture column on a Braille [Canvas]
//   - [ProfileGraph]: asciigraph rendering of stored profiles
//   - [SaveProfilePNG]: profile plot written with gonum/plot
//
// # Key Bindings
//
//	Space - Pause/Resume simulation
//	+/-   - Steps per frame
//	T     - Cycle color themes
//	?     - Show help overlay
//	Q     - Quit
package viz
