// ABOUTME: Decides the terminal background before BubbleTea's init() would query it over OSC 11
// ABOUTME: Must be imported (with _) before any package that imports bubbletea

package termfix

import (
	"os"

	"github.com/charmbracelet/lipgloss"
)

func init() {
	// Once a background is set, lipgloss skips the OSC query whose late
	// reply would otherwise leak into the picker's input. This package must
	// not import bubbletea so that this runs first.
	lipgloss.SetHasDarkBackground(DarkBackground(os.Getenv("COLORFGBG")))
}

// DarkBackground interprets a COLORFGBG value ("fg;bg" or "fg;default;bg").
// Unknown or missing values are taken as dark.
func DarkBackground(colorfgbg string) bool {
	bg := colorfgbg
	for i := len(colorfgbg) - 1; i >= 0; i-- {
		if colorfgbg[i] == ';' {
			bg = colorfgbg[i+1:]
			break
		}
	}
	switch bg {
	case "7", "9", "10", "11", "12", "13", "14", "15":
		return false
	}
	return true
}
