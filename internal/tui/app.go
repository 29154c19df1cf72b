// Package tui implements the interactive archive picker and confirmation
// screens. The orchestrator never imports this package; it only sees the
// typed results.
package tui

import (
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// Color palette
var (
	AccentBlue    = tcell.NewRGBColor(59, 130, 246)
	SuccessGreen  = tcell.NewRGBColor(34, 197, 94)
	ErrorRed      = tcell.NewRGBColor(239, 68, 68)
	WarningYellow = tcell.NewRGBColor(234, 179, 8)
)

// App wraps tview.Application with blocksave styling.
type App struct {
	*tview.Application
}

// NewApp creates a themed TUI application.
func NewApp() *App {
	app := &App{
		Application: tview.NewApplication(),
	}
	app.EnableMouse(true)

	tview.Styles.PrimitiveBackgroundColor = tcell.ColorBlack
	tview.Styles.ContrastBackgroundColor = tcell.ColorBlack
	tview.Styles.BorderColor = AccentBlue
	tview.Styles.TitleColor = AccentBlue
	tview.Styles.GraphicsColor = AccentBlue
	tview.Styles.PrimaryTextColor = tcell.ColorWhite
	tview.Styles.SecondaryTextColor = tcell.ColorLightGray

	return app
}

// SetRootWithTitle sets the root primitive with a styled border title.
func (a *App) SetRootWithTitle(root tview.Primitive, title string) *App {
	if box, ok := root.(*tview.Box); ok {
		box.SetBorder(true).
			SetTitle(" " + title + " ").
			SetTitleAlign(tview.AlignCenter).
			SetTitleColor(AccentBlue).
			SetBorderColor(AccentBlue)
	}
	a.SetRoot(root, true)
	return a
}
