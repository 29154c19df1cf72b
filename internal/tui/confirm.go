package tui

import (
	"path/filepath"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/tis24dev/blocksave/internal/types"
)

var modalCreatedHook func(*tview.Modal)

func notifyModalCreated(modal *tview.Modal) {
	if modalCreatedHook != nil {
		modalCreatedHook(modal)
	}
}

// showRestoreModal builds the destructive-restore modal and installs it as
// the app root. done receives true only on an explicit Restore.
func showRestoreModal(app *App, archive *types.ArchiveInfo, devicePath string, done func(bool)) {
	modal := tview.NewModal().
		SetText("Restore " + filepath.Base(archive.Path) + " onto " + devicePath + "?\n\n" +
			"ALL DATA on " + devicePath + " will be overwritten.\n\n" +
			"[yellow]Use TAB or arrows to switch | ENTER to select[white]").
		AddButtons([]string{"Restore", "Cancel"}).
		SetDoneFunc(func(buttonIndex int, buttonLabel string) {
			done(buttonLabel == "Restore")
			app.Stop()
		})

	notifyModalCreated(modal)

	modal.SetBorder(true).
		SetTitle(" Confirm Restore ").
		SetTitleAlign(tview.AlignCenter).
		SetTitleColor(ErrorRed).
		SetBorderColor(ErrorRed).
		SetBackgroundColor(tcell.ColorBlack)

	app.SetRoot(modal, true).SetFocus(modal)
}

// ConfirmRestore shows a Restore/Cancel modal naming the archive and the
// device it will overwrite, and blocks until the operator chooses. Returns
// true only on an explicit Restore.
func ConfirmRestore(app *App, archive *types.ArchiveInfo, devicePath string) (bool, error) {
	confirmed := false
	showRestoreModal(app, archive, devicePath, func(ok bool) { confirmed = ok })
	if err := app.Run(); err != nil {
		return false, err
	}
	return confirmed, nil
}
