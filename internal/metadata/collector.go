// Package metadata captures disk layout snapshots alongside whole-disk
// archives. Every capture is best-effort: a missing tool or a failing
// command is logged and skipped, never fatal, so a minimal rescue
// environment still produces a usable backup.
package metadata

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/tis24dev/blocksave/internal/logging"
	"github.com/tis24dev/blocksave/internal/types"
)

// Summary reports how many captures succeeded, were skipped because the
// tool is not installed, and failed at runtime.
type Summary struct {
	Captured int
	Skipped  int
	Failed   int
}

// capture describes one snapshot command. Output goes to fileName inside
// the reports directory.
type capture struct {
	description string
	fileName    string
	args        []string
}

// Collector writes layout snapshots for a disk into a reports directory.
type Collector struct {
	logger *logging.Logger

	// indirections for tests
	lookPath       func(string) (string, error)
	commandContext func(context.Context, string, ...string) *exec.Cmd
}

// NewCollector builds a collector bound to the given logger.
func NewCollector(logger *logging.Logger) *Collector {
	return &Collector{
		logger:         logger,
		lookPath:       exec.LookPath,
		commandContext: exec.CommandContext,
	}
}

// SetDeps overrides process lookup and creation (for tests).
func (c *Collector) SetDeps(lookPath func(string) (string, error), commandContext func(context.Context, string, ...string) *exec.Cmd) {
	if lookPath != nil {
		c.lookPath = lookPath
	}
	if commandContext != nil {
		c.commandContext = commandContext
	}
}

// captures lists the snapshot commands for a whole disk. sgdisk writes
// its binary GPT backup directly via --backup, so it is handled apart.
func captures(devicePath string) []capture {
	return []capture{
		{"partition table dump", "sfdisk_dump.txt", []string{"sfdisk", "-d", devicePath}},
		{"block device tree", "lsblk.txt", []string{"lsblk", "-f", "-o", "+SIZE,TYPE", devicePath}},
		{"filesystem identifiers", "blkid.txt", []string{"blkid"}},
		{"EFI boot entries", "efibootmgr.txt", []string{"efibootmgr", "-v"}},
		{"software RAID layout", "mdadm_scan.txt", []string{"mdadm", "--detail", "--scan"}},
	}
}

// Collect writes all snapshots for device into reportsDir, creating the
// directory if needed. Only directory creation errors are returned; the
// individual captures report through the Summary.
func (c *Collector) Collect(ctx context.Context, device types.DeviceRef, reportsDir string) (Summary, error) {
	var summary Summary

	if err := os.MkdirAll(reportsDir, 0750); err != nil {
		return summary, fmt.Errorf("failed to create reports directory %s: %w", reportsDir, err)
	}

	for _, snap := range captures(device.Path) {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		c.runCapture(ctx, snap, reportsDir, &summary)
	}

	// GPT partition table binary backup. Unlike the text captures the
	// tool writes the file itself.
	c.runGPTBackup(ctx, device.Path, reportsDir, &summary)

	c.logger.Debug("Metadata snapshot for %s: %d captured, %d skipped, %d failed",
		device.Path, summary.Captured, summary.Skipped, summary.Failed)
	return summary, nil
}

func (c *Collector) runCapture(ctx context.Context, snap capture, reportsDir string, summary *Summary) {
	tool := snap.args[0]
	if _, err := c.lookPath(tool); err != nil {
		c.logger.Skip("Tool not available: %s (skipping %s)", tool, snap.description)
		summary.Skipped++
		return
	}

	cmd := c.commandContext(ctx, snap.args[0], snap.args[1:]...)
	out, err := cmd.Output()
	if err != nil {
		c.logger.Warning("Skipping %s: `%s` failed (%v). Non-critical; backup continues.",
			snap.description, strings.Join(snap.args, " "), err)
		summary.Failed++
		return
	}

	outPath := filepath.Join(reportsDir, snap.fileName)
	if err := os.WriteFile(outPath, out, 0640); err != nil {
		c.logger.Warning("Failed to write %s snapshot to %s: %v", snap.description, outPath, err)
		summary.Failed++
		return
	}

	c.logger.Debug("Captured %s: %s", snap.description, outPath)
	summary.Captured++
}

func (c *Collector) runGPTBackup(ctx context.Context, devicePath, reportsDir string, summary *Summary) {
	if _, err := c.lookPath("sgdisk"); err != nil {
		c.logger.Skip("Tool not available: sgdisk (skipping GPT backup)")
		summary.Skipped++
		return
	}

	outPath := filepath.Join(reportsDir, "sgdisk_backup.bin")
	cmd := c.commandContext(ctx, "sgdisk", "--backup="+outPath, devicePath)
	if out, err := cmd.CombinedOutput(); err != nil {
		c.logger.Warning("Skipping GPT backup: sgdisk failed (%v). Non-critical; backup continues. Output: %s",
			err, strings.TrimSpace(string(out)))
		summary.Failed++
		return
	}

	c.logger.Debug("Captured GPT backup: %s", outPath)
	summary.Captured++
}
