package ui

import (
	"fmt"

	"github.com/fastfare/fleetlive/internal/model"
)

// ANSI256 color codes matching the Ayu palette.
const (
	colorAccent = 74  // blue
	colorCmd    = 250 // light gray
	colorMuted  = 245 // medium gray
	colorOK     = 114 // green
	colorWarn   = 221 // yellow
	colorFail   = 203 // red
)

var noColor bool

func paint(color int, s string) string {
	if noColor {
		return s
	}
	return fmt.Sprintf("\x1b[38;5;%dm%s\x1b[0m", color, s)
}

// RenderAccent returns s in the accent (blue) color.
func RenderAccent(s string) string { return paint(colorAccent, s) }

// RenderMuted returns s in the muted (gray) color.
func RenderMuted(s string) string { return paint(colorMuted, s) }

// RenderCommand returns s styled as a command name (light gray).
func RenderCommand(s string) string { return paint(colorCmd, s) }

// RenderStatus colors a connectivity status: connected green, degraded
// yellow, anything else red.
func RenderStatus(s model.ConnStatus) string {
	switch s {
	case model.StatusConnected:
		return paint(colorOK, s.String())
	case model.StatusDegraded:
		return paint(colorWarn, s.String())
	default:
		return paint(colorFail, s.String())
	}
}

// RenderLiveness renders a driver's live/offline marker.
func RenderLiveness(offline bool) string {
	if offline {
		return paint(colorMuted, "offline")
	}
	return paint(colorOK, "live")
}

// ForceNoColor disables color output globally.
func ForceNoColor() {
	noColor = true
}
