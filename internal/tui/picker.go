package tui

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/tis24dev/blocksave/internal/types"
)

// ErrPickerAborted signals that the operator left the picker without
// choosing an archive.
var ErrPickerAborted = errors.New("archive selection aborted")

var titleCaser = cases.Title(language.English)

// archiveLine renders one picker entry: main text is the archive filename,
// secondary text carries size, age, and sidecar markers.
func archiveLine(a *types.ArchiveInfo) (main, secondary string) {
	main = filepath.Base(a.Path)

	markers := make([]string, 0, 3)
	if a.HasChecksum() {
		markers = append(markers, "sha256")
	}
	if a.HasSignature() {
		markers = append(markers, "signed")
	}
	if a.Encrypted {
		markers = append(markers, "encrypted")
	}
	marker := "no sidecars"
	if len(markers) > 0 {
		marker = strings.Join(markers, ", ")
	}

	secondary = fmt.Sprintf("   %s · %s · %s",
		humanize.Bytes(uint64(a.SizeBytes)),
		humanize.Time(a.CreatedAt),
		marker)
	return main, secondary
}

// kindTitle renders a device kind for display ("whole_disk" -> "Whole Disk").
func kindTitle(kind types.DeviceKind) string {
	return titleCaser.String(strings.ReplaceAll(kind.String(), "_", " "))
}

// PickArchive shows a full-screen list of archives, newest first, and blocks
// until the operator selects one or aborts with Esc or q.
func PickArchive(app *App, kind types.DeviceKind, archives []*types.ArchiveInfo) (*types.ArchiveInfo, error) {
	if len(archives) == 0 {
		return nil, fmt.Errorf("no archives to select from")
	}

	var selected *types.ArchiveInfo
	list := tview.NewList()
	for _, a := range archives {
		a := a
		main, secondary := archiveLine(a)
		list.AddItem(main, secondary, 0, func() {
			selected = a
			app.Stop()
		})
	}
	list.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() == tcell.KeyEscape || event.Rune() == 'q' {
			app.Stop()
			return nil
		}
		return event
	})

	app.SetRootWithTitle(list, fmt.Sprintf("%s Archives", kindTitle(kind)))
	if err := app.Run(); err != nil {
		return nil, fmt.Errorf("picker failed: %w", err)
	}
	if selected == nil {
		return nil, ErrPickerAborted
	}
	return selected, nil
}
