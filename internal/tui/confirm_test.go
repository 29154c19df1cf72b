package tui

import (
	"reflect"
	"strings"
	"testing"
	"unsafe"

	"github.com/rivo/tview"

	"github.com/tis24dev/blocksave/internal/types"
)

func captureModal(t *testing.T, fn func(app *App)) *tview.Modal {
	t.Helper()
	original := modalCreatedHook
	var captured *tview.Modal
	modalCreatedHook = func(m *tview.Modal) {
		captured = m
	}
	t.Cleanup(func() {
		modalCreatedHook = original
	})

	app := NewApp()
	fn(app)
	if captured == nil {
		t.Fatalf("modal not captured")
	}
	return captured
}

func modalText(modal *tview.Modal) string {
	return reflect.ValueOf(modal).Elem().FieldByName("text").String()
}

func modalDone(modal *tview.Modal) func(int, string) {
	field := reflect.ValueOf(modal).Elem().FieldByName("done")
	ptr := unsafe.Pointer(field.UnsafeAddr())
	return *(*func(int, string))(ptr)
}

func TestRestoreModalWarnsAboutOverwrite(t *testing.T) {
	a := &types.ArchiveInfo{Path: "/backups/dev_sda1-2026-08-29_10-00-00.img.zst"}
	modal := captureModal(t, func(app *App) {
		showRestoreModal(app, a, "/dev/sda1", func(bool) {})
	})

	text := modalText(modal)
	if !strings.Contains(text, "dev_sda1-2026-08-29_10-00-00.img.zst") {
		t.Errorf("modal text should name the archive: %q", text)
	}
	if !strings.Contains(text, "ALL DATA on /dev/sda1") {
		t.Errorf("modal text should warn about overwriting the device: %q", text)
	}
}

func TestRestoreModalButtons(t *testing.T) {
	a := &types.ArchiveInfo{Path: "/backups/dev_sda1-2026-08-29_10-00-00.img.zst"}

	var choices []bool
	modal := captureModal(t, func(app *App) {
		showRestoreModal(app, a, "/dev/sda1", func(ok bool) { choices = append(choices, ok) })
	})

	done := modalDone(modal)
	done(0, "Restore")
	done(1, "Cancel")
	if len(choices) != 2 || !choices[0] || choices[1] {
		t.Fatalf("choices = %v, want [true false]", choices)
	}
}
