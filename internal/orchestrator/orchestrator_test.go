package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"filippo.io/age"

	"github.com/tis24dev/blocksave/internal/codec"
	"github.com/tis24dev/blocksave/internal/config"
	"github.com/tis24dev/blocksave/internal/input"
	"github.com/tis24dev/blocksave/internal/integrity"
	"github.com/tis24dev/blocksave/internal/logging"
	"github.com/tis24dev/blocksave/internal/types"
)

// passthroughTransform copies bytes unchanged, standing in for a real
// compressor so tests do not depend on installed tools.
type passthroughTransform struct{}

func (passthroughTransform) Compress(ctx context.Context, r io.Reader, w io.Writer) error {
	_, err := io.Copy(w, r)
	return err
}

func (passthroughTransform) Decompress(ctx context.Context, r io.Reader, w io.Writer) error {
	_, err := io.Copy(w, r)
	return err
}

type failingTransform struct{ err error }

func (t failingTransform) Compress(ctx context.Context, r io.Reader, w io.Writer) error {
	return t.err
}

func (t failingTransform) Decompress(ctx context.Context, r io.Reader, w io.Writer) error {
	return t.err
}

// recordingConfirmer counts confirmation requests and returns a fixed verdict.
type recordingConfirmer struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (c *recordingConfirmer) ConfirmDevicePath(ctx context.Context, devicePath string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, devicePath)
	return c.err
}

func (c *recordingConfirmer) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

type fakeSigner struct {
	signErr   error
	verifyErr error
}

func (s *fakeSigner) Name() string { return "fake" }

func (s *fakeSigner) Sign(ctx context.Context, archivePath string) (string, error) {
	if s.signErr != nil {
		return "", s.signErr
	}
	sigPath := archivePath + integrity.SignatureSuffix
	if err := os.WriteFile(sigPath, []byte("fake signature"), 0640); err != nil {
		return "", err
	}
	return sigPath, nil
}

func (s *fakeSigner) Verify(ctx context.Context, archivePath, sigPath string) error {
	return s.verifyErr
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.BackupRoot = t.TempDir()
	cfg.RestoreDelaySeconds = 0
	cfg.DebugLevel = types.LogLevelNone
	return cfg
}

// newTestOrchestrator wires an orchestrator with a fake transform, an
// instant countdown, and a ticking fake clock so consecutive backups get
// distinct timestamps.
func newTestOrchestrator(t *testing.T, cfg *config.Config, opts Options) *Orchestrator {
	t.Helper()
	logger := logging.New(types.LogLevelNone, false)
	o := New(logger, cfg, opts)
	o.newTransform = func(spec types.CompressionSpec) (codec.StreamTransform, error) {
		return passthroughTransform{}, nil
	}
	o.countdown = func(ctx context.Context, seconds int) error { return nil }

	clock := time.Date(2026, 8, 29, 10, 0, 0, 0, time.Local)
	var mu sync.Mutex
	o.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		clock = clock.Add(time.Second)
		return clock
	}
	return o
}

func makeSourceDevice(t *testing.T, size int) (types.DeviceRef, []byte) {
	t.Helper()
	content := bytes.Repeat([]byte("blocksave test pattern "), size/23+1)[:size]
	path := filepath.Join(t.TempDir(), "part.img")
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("failed to write source device: %v", err)
	}
	return types.DeviceRef{Path: path, SizeBytes: int64(size), Kind: types.DevicePartition}, content
}

func familyArchives(t *testing.T, o *Orchestrator, dev types.DeviceRef) []*types.ArchiveInfo {
	t.Helper()
	family, err := o.ListFamily(dev.Path, dev.Kind)
	if err != nil {
		t.Fatalf("ListFamily failed: %v", err)
	}
	return family
}

func TestBackupPartition(t *testing.T) {
	cfg := testConfig(t)
	o := newTestOrchestrator(t, cfg, Options{})
	dev, _ := makeSourceDevice(t, 1<<20)

	stats, err := o.Backup(context.Background(), dev)
	if err != nil {
		t.Fatalf("Backup failed: %v", err)
	}

	if stats.BytesRead != 1<<20 {
		t.Errorf("BytesRead = %d, want %d", stats.BytesRead, 1<<20)
	}
	if stats.RatioPercent != 100.0 {
		t.Errorf("RatioPercent = %.2f, want 100.00 for passthrough", stats.RatioPercent)
	}
	if _, err := os.Stat(stats.Archive.Path); err != nil {
		t.Errorf("archive missing: %v", err)
	}
	if stats.Archive.ChecksumPath == "" {
		t.Fatal("no checksum sidecar recorded")
	}
	if _, err := os.Stat(stats.Archive.ChecksumPath); err != nil {
		t.Errorf("checksum sidecar missing: %v", err)
	}
	if filepath.Dir(stats.Archive.Path) != cfg.BackupRoot {
		t.Errorf("partition archive should live directly under the backup root: %s", stats.Archive.Path)
	}

	// Lock must be released after the operation
	if _, err := os.Stat(filepath.Join(cfg.BackupRoot, lockFileName)); !os.IsNotExist(err) {
		t.Error("lock file still present after backup")
	}

	// Family log records the run
	logData, err := os.ReadFile(filepath.Join(cfg.BackupRoot, stats.Archive.SourceDevice+".log"))
	if err != nil {
		t.Fatalf("family log missing: %v", err)
	}
	if !strings.Contains(string(logData), "BACKUP START") || !strings.Contains(string(logData), "BACKUP SUCCESS") {
		t.Errorf("family log lacks start/success lines: %s", logData)
	}
}

func TestBackupRotationKeepsNewest(t *testing.T) {
	cfg := testConfig(t)
	cfg.RetentionLimit = 5
	o := newTestOrchestrator(t, cfg, Options{})
	dev, _ := makeSourceDevice(t, 4096)

	var last *BackupStats
	for i := 0; i < 7; i++ {
		stats, err := o.Backup(context.Background(), dev)
		if err != nil {
			t.Fatalf("backup %d failed: %v", i, err)
		}
		last = stats
	}

	family := familyArchives(t, o, dev)
	if len(family) != 5 {
		t.Fatalf("family size = %d, want 5", len(family))
	}
	if family[0].Path != last.Archive.Path {
		t.Errorf("newest archive = %s, want %s", family[0].Path, last.Archive.Path)
	}
	for _, a := range family {
		if !a.HasChecksum() {
			t.Errorf("surviving archive %s lost its checksum sidecar", a.Path)
		}
	}
}

func TestBackupStreamFailureLeavesNoTrace(t *testing.T) {
	cfg := testConfig(t)
	o := newTestOrchestrator(t, cfg, Options{})
	o.newTransform = func(spec types.CompressionSpec) (codec.StreamTransform, error) {
		return failingTransform{err: errors.New("compressor exploded")}, nil
	}
	dev, _ := makeSourceDevice(t, 4096)

	_, err := o.Backup(context.Background(), dev)
	var opErr *OperationError
	if !errors.As(err, &opErr) {
		t.Fatalf("error type = %T, want *OperationError", err)
	}
	if opErr.Phase != "stream" {
		t.Errorf("Phase = %s, want stream", opErr.Phase)
	}
	if opErr.Code != types.ExitStreamError {
		t.Errorf("Code = %v, want ExitStreamError", opErr.Code)
	}

	// No archive, no sidecars, empty family
	entries, err := os.ReadDir(cfg.BackupRoot)
	if err != nil {
		t.Fatalf("read backup root: %v", err)
	}
	for _, e := range entries {
		if strings.Contains(e.Name(), ".img.") {
			t.Errorf("partial output left behind: %s", e.Name())
		}
	}
	if family := familyArchives(t, o, dev); len(family) != 0 {
		t.Errorf("failed backup registered %d archives", len(family))
	}
}

func TestBackupWholeDiskConfirmation(t *testing.T) {
	cfg := testConfig(t)
	confirmer := &recordingConfirmer{err: input.ErrConfirmationMismatch}
	o := newTestOrchestrator(t, cfg, Options{Confirmer: confirmer})
	o.collector.SetDeps(func(string) (string, error) { return "", errors.New("not found") }, nil)

	dev, _ := makeSourceDevice(t, 4096)
	dev.Kind = types.DeviceWholeDisk

	_, err := o.Backup(context.Background(), dev)
	var opErr *OperationError
	if !errors.As(err, &opErr) {
		t.Fatalf("error type = %T, want *OperationError", err)
	}
	if opErr.Phase != "confirm" || opErr.Code != types.ExitAbortedError {
		t.Errorf("got phase=%s code=%v, want confirm/ExitAbortedError", opErr.Phase, opErr.Code)
	}
	if confirmer.callCount() != 1 {
		t.Errorf("confirmer calls = %d, want 1", confirmer.callCount())
	}

	// Confirmed run succeeds and lands under disk_backup with a reports dir
	confirmer.err = nil
	stats, err := o.Backup(context.Background(), dev)
	if err != nil {
		t.Fatalf("confirmed whole-disk backup failed: %v", err)
	}
	if filepath.Dir(stats.Archive.Path) != cfg.DiskBackupDir() {
		t.Errorf("whole-disk archive in %s, want %s", filepath.Dir(stats.Archive.Path), cfg.DiskBackupDir())
	}
	if stats.Archive.ReportsDir == "" {
		t.Fatal("no reports dir recorded for whole-disk backup")
	}
	if _, err := os.Stat(stats.Archive.ReportsDir); err != nil {
		t.Errorf("reports dir missing: %v", err)
	}
}

func TestRestoreRoundTrip(t *testing.T) {
	cfg := testConfig(t)
	confirmer := &recordingConfirmer{}
	o := newTestOrchestrator(t, cfg, Options{Confirmer: confirmer})
	dev, content := makeSourceDevice(t, 256<<10)

	stats, err := o.Backup(context.Background(), dev)
	if err != nil {
		t.Fatalf("Backup failed: %v", err)
	}

	target := filepath.Join(t.TempDir(), "target.img")
	if err := os.WriteFile(target, make([]byte, len(content)), 0644); err != nil {
		t.Fatalf("failed to create target: %v", err)
	}
	targetRef := types.DeviceRef{Path: target, Kind: types.DevicePartition}

	rstats, err := o.Restore(context.Background(), stats.Archive.Path, targetRef)
	if err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	if rstats.BytesWritten != int64(len(content)) {
		t.Errorf("BytesWritten = %d, want %d", rstats.BytesWritten, len(content))
	}

	restored, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read target: %v", err)
	}
	if !bytes.Equal(restored, content) {
		t.Error("restored bytes differ from original device content")
	}
	if confirmer.callCount() != 1 {
		t.Errorf("confirmer calls = %d, want 1", confirmer.callCount())
	}
}

func TestRestoreTamperedDigestBlocksWrite(t *testing.T) {
	cfg := testConfig(t)
	confirmer := &recordingConfirmer{}
	o := newTestOrchestrator(t, cfg, Options{Confirmer: confirmer})
	dev, content := makeSourceDevice(t, 4096)

	stats, err := o.Backup(context.Background(), dev)
	if err != nil {
		t.Fatalf("Backup failed: %v", err)
	}

	// Flip one byte of the digest sidecar
	data, err := os.ReadFile(stats.Archive.ChecksumPath)
	if err != nil {
		t.Fatalf("read sidecar: %v", err)
	}
	if data[0] == '0' {
		data[0] = '1'
	} else {
		data[0] = '0'
	}
	if err := os.WriteFile(stats.Archive.ChecksumPath, data, 0640); err != nil {
		t.Fatalf("tamper sidecar: %v", err)
	}

	target := filepath.Join(t.TempDir(), "target.img")
	if err := os.WriteFile(target, make([]byte, len(content)), 0644); err != nil {
		t.Fatalf("failed to create target: %v", err)
	}

	_, err = o.Restore(context.Background(), stats.Archive.Path, types.DeviceRef{Path: target, Kind: types.DevicePartition})
	var opErr *OperationError
	if !errors.As(err, &opErr) {
		t.Fatalf("error type = %T, want *OperationError", err)
	}
	if opErr.Code != types.ExitIntegrityError {
		t.Errorf("Code = %v, want ExitIntegrityError", opErr.Code)
	}
	if !errors.Is(err, integrity.ErrChecksumMismatch) {
		t.Errorf("error = %v, want ErrChecksumMismatch", err)
	}

	// Destructive gate never reached, target untouched
	if confirmer.callCount() != 0 {
		t.Errorf("confirmer calls = %d, want 0", confirmer.callCount())
	}
	restored, _ := os.ReadFile(target)
	if !bytes.Equal(restored, make([]byte, len(content))) {
		t.Error("target was written despite integrity failure")
	}
}

func TestRestoreSigningEnabledMissingSignature(t *testing.T) {
	cfg := testConfig(t)
	confirmer := &recordingConfirmer{}
	o := newTestOrchestrator(t, cfg, Options{Confirmer: confirmer})
	dev, _ := makeSourceDevice(t, 4096)

	stats, err := o.Backup(context.Background(), dev)
	if err != nil {
		t.Fatalf("Backup failed: %v", err)
	}

	// Enable signing only for the restore: the archive has no .sig
	cfg.SigningEnabled = true
	cfg.SigningKey = "ABCD1234"
	o.signer = &fakeSigner{}

	target := filepath.Join(t.TempDir(), "target.img")
	if err := os.WriteFile(target, make([]byte, 4096), 0644); err != nil {
		t.Fatalf("failed to create target: %v", err)
	}

	_, err = o.Restore(context.Background(), stats.Archive.Path, types.DeviceRef{Path: target, Kind: types.DevicePartition})
	var opErr *OperationError
	if !errors.As(err, &opErr) {
		t.Fatalf("error type = %T, want *OperationError", err)
	}
	if opErr.Code != types.ExitIntegrityError {
		t.Errorf("Code = %v, want ExitIntegrityError", opErr.Code)
	}
	if !errors.Is(err, integrity.ErrSignatureMissing) {
		t.Errorf("error = %v, want ErrSignatureMissing", err)
	}
	if confirmer.callCount() != 0 {
		t.Errorf("confirmer calls = %d, want 0", confirmer.callCount())
	}
}

func TestBackupSigningFailureIsNonFatal(t *testing.T) {
	cfg := testConfig(t)
	cfg.SigningEnabled = true
	cfg.SigningKey = "ABCD1234"
	o := newTestOrchestrator(t, cfg, Options{Signer: &fakeSigner{signErr: errors.New("gpg unavailable")}})
	dev, _ := makeSourceDevice(t, 4096)

	stats, err := o.Backup(context.Background(), dev)
	if err != nil {
		t.Fatalf("Backup should succeed despite signing failure: %v", err)
	}
	if stats.Archive.SignaturePath != "" {
		t.Errorf("SignaturePath = %s, want empty", stats.Archive.SignaturePath)
	}
	if stats.Archive.ChecksumPath == "" {
		t.Error("checksum sidecar must still be written")
	}
}

func TestBackupLockContention(t *testing.T) {
	cfg := testConfig(t)
	o := newTestOrchestrator(t, cfg, Options{})
	dev, _ := makeSourceDevice(t, 4096)

	// A fresh foreign lock blocks the operation
	lockPath := filepath.Join(cfg.BackupRoot, lockFileName)
	content := "pid=99999\ntime=" + time.Now().Format(time.RFC3339) + "\n"
	if err := os.WriteFile(lockPath, []byte(content), 0640); err != nil {
		t.Fatalf("failed to plant lock: %v", err)
	}

	_, err := o.Backup(context.Background(), dev)
	var opErr *OperationError
	if !errors.As(err, &opErr) {
		t.Fatalf("error type = %T, want *OperationError", err)
	}
	if opErr.Code != types.ExitLockError {
		t.Errorf("Code = %v, want ExitLockError", opErr.Code)
	}

	// A stale lock is broken and the backup proceeds
	stale := "pid=99999\ntime=" + time.Now().Add(-48*time.Hour).Format(time.RFC3339) + "\n"
	if err := os.WriteFile(lockPath, []byte(stale), 0640); err != nil {
		t.Fatalf("failed to plant stale lock: %v", err)
	}
	if _, err := o.Backup(context.Background(), dev); err != nil {
		t.Fatalf("Backup should break a stale lock: %v", err)
	}
}

func TestBackupInvalidConfigNeverTouchesDevice(t *testing.T) {
	cfg := testConfig(t)
	cfg.Algorithm = "brotli"
	o := newTestOrchestrator(t, cfg, Options{})

	// A nonexistent device proves config errors are detected first
	dev := types.DeviceRef{Path: "/nonexistent/device", Kind: types.DevicePartition}
	_, err := o.Backup(context.Background(), dev)
	var opErr *OperationError
	if !errors.As(err, &opErr) {
		t.Fatalf("error type = %T, want *OperationError", err)
	}
	if opErr.Phase != "preflight" || opErr.Code != types.ExitConfigError {
		t.Errorf("got phase=%s code=%v, want preflight/ExitConfigError", opErr.Phase, opErr.Code)
	}
}

func TestEncryptedBackupRestoreRoundTrip(t *testing.T) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		t.Fatalf("failed to generate identity: %v", err)
	}
	identityPath := filepath.Join(t.TempDir(), "identity.txt")
	if err := os.WriteFile(identityPath, []byte(identity.String()+"\n"), 0600); err != nil {
		t.Fatalf("failed to write identity file: %v", err)
	}

	cfg := testConfig(t)
	cfg.EncryptEnabled = true
	cfg.AgeRecipients = []string{identity.Recipient().String()}
	cfg.AgeIdentity = identityPath

	confirmer := &recordingConfirmer{}
	o := newTestOrchestrator(t, cfg, Options{Confirmer: confirmer})
	dev, content := makeSourceDevice(t, 64<<10)

	stats, err := o.Backup(context.Background(), dev)
	if err != nil {
		t.Fatalf("Backup failed: %v", err)
	}
	if !strings.HasSuffix(stats.Archive.Path, ".age") {
		t.Fatalf("encrypted archive should carry .age suffix: %s", stats.Archive.Path)
	}
	if !stats.Archive.Encrypted {
		t.Error("ArchiveInfo.Encrypted = false")
	}

	// Ciphertext must not contain the plaintext pattern
	data, err := os.ReadFile(stats.Archive.Path)
	if err != nil {
		t.Fatalf("read archive: %v", err)
	}
	if bytes.Contains(data, []byte("blocksave test pattern")) {
		t.Error("archive contains plaintext despite encryption")
	}

	target := filepath.Join(t.TempDir(), "target.img")
	if err := os.WriteFile(target, make([]byte, len(content)), 0644); err != nil {
		t.Fatalf("failed to create target: %v", err)
	}
	if _, err := o.Restore(context.Background(), stats.Archive.Path, types.DeviceRef{Path: target, Kind: types.DevicePartition}); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	restored, _ := os.ReadFile(target)
	if !bytes.Equal(restored, content) {
		t.Error("decrypted restore differs from original content")
	}
}

func TestVerify(t *testing.T) {
	cfg := testConfig(t)
	o := newTestOrchestrator(t, cfg, Options{})
	dev, _ := makeSourceDevice(t, 4096)

	stats, err := o.Backup(context.Background(), dev)
	if err != nil {
		t.Fatalf("Backup failed: %v", err)
	}

	if err := o.Verify(context.Background(), stats.Archive.Path); err != nil {
		t.Fatalf("Verify failed on intact archive: %v", err)
	}

	// Corrupt the archive body
	f, err := os.OpenFile(stats.Archive.Path, os.O_WRONLY, 0)
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	if _, err := f.WriteAt([]byte{0xFF}, 10); err != nil {
		t.Fatalf("corrupt archive: %v", err)
	}
	f.Close()

	err = o.Verify(context.Background(), stats.Archive.Path)
	if !errors.Is(err, integrity.ErrChecksumMismatch) {
		t.Errorf("error = %v, want ErrChecksumMismatch", err)
	}
}
