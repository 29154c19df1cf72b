package tui

import (
	"strings"
	"testing"
	"time"

	"github.com/tis24dev/blocksave/internal/types"
)

func TestArchiveLine(t *testing.T) {
	a := &types.ArchiveInfo{
		Path:          "/backups/dev_sda1-2026-08-29_10-00-00.img.zst",
		SizeBytes:     1 << 30,
		CreatedAt:     time.Now().Add(-2 * time.Hour),
		ChecksumPath:  "/backups/dev_sda1-2026-08-29_10-00-00.img.zst.sha256",
		SignaturePath: "/backups/dev_sda1-2026-08-29_10-00-00.img.zst.sig",
	}

	main, secondary := archiveLine(a)
	if main != "dev_sda1-2026-08-29_10-00-00.img.zst" {
		t.Errorf("main = %q", main)
	}
	for _, want := range []string{"GB", "sha256", "signed", "hour"} {
		if !strings.Contains(secondary, want) {
			t.Errorf("secondary %q lacks %q", secondary, want)
		}
	}
	if strings.Contains(secondary, "encrypted") {
		t.Errorf("secondary %q should not claim encryption", secondary)
	}
}

func TestArchiveLineNoSidecars(t *testing.T) {
	a := &types.ArchiveInfo{
		Path:      "/backups/dev_sdb1-2026-08-29_10-00-00.img.gz",
		SizeBytes: 4096,
		CreatedAt: time.Now(),
	}
	_, secondary := archiveLine(a)
	if !strings.Contains(secondary, "no sidecars") {
		t.Errorf("secondary %q should flag missing sidecars", secondary)
	}
}

func TestKindTitle(t *testing.T) {
	if got := kindTitle(types.DeviceWholeDisk); got != "Whole Disk" {
		t.Errorf("kindTitle(whole_disk) = %q", got)
	}
	if got := kindTitle(types.DevicePartition); got != "Partition" {
		t.Errorf("kindTitle(partition) = %q", got)
	}
}
