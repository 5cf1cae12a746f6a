package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/driftsync/driftsync/pkg/config"
	"github.com/driftsync/driftsync/pkg/metrics"
	"github.com/driftsync/driftsync/pkg/snapshot"
	"github.com/driftsync/driftsync/pkg/store"
)

var baseTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	engine      *Engine
	cfg         *config.Config
	projectRoot string
	vaultRoot   string
}

func newTestEnv(t *testing.T, direction string) *testEnv {
	t.Helper()
	base := t.TempDir()
	projectRoot := filepath.Join(base, "project")
	vaultRoot := filepath.Join(base, "vault")
	if err := os.MkdirAll(projectRoot, 0o755); err != nil {
		t.Fatalf("setup failed: %v", err)
	}
	if err := os.MkdirAll(vaultRoot, 0o755); err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	cfg := &config.Config{
		Policy: config.Policy{
			ConflictStrategy: "newer-wins",
			FileTypes:        []string{".md"},
			BackupFormat:     "none",
			SyncDeletions:    true,
			ConfirmDeletions: false,
		},
		Mappings: []config.Mapping{{
			ID:          "main",
			Name:        "Main",
			ProjectRoot: projectRoot,
			VaultRoot:   vaultRoot,
			Enabled:     true,
			Direction:   direction,
		}},
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("test config invalid: %v", err)
	}

	snapStore := snapshot.NewStore(filepath.Join(base, snapshot.DefaultFileName))
	if err := snapStore.Load(); err != nil {
		t.Fatalf("snapshot load failed: %v", err)
	}

	return &testEnv{
		engine:      New(cfg, snapStore, nil),
		cfg:         cfg,
		projectRoot: projectRoot,
		vaultRoot:   vaultRoot,
	}
}

func (env *testEnv) mapping() *config.Mapping { return &env.cfg.Mappings[0] }

func (env *testEnv) run(t *testing.T) *Result {
	t.Helper()
	res := env.engine.Run(context.Background(), env.mapping(), false)
	if res.Err != nil {
		t.Fatalf("run failed: %v", res.Err)
	}
	return res
}

func writeSide(t *testing.T, root, relPath, content string, modTime time.Time) {
	t.Helper()
	absPath := filepath.Join(root, filepath.FromSlash(relPath))
	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		t.Fatalf("setup failed: %v", err)
	}
	if err := os.WriteFile(absPath, []byte(content), 0o644); err != nil {
		t.Fatalf("setup failed: %v", err)
	}
	if err := os.Chtimes(absPath, modTime, modTime); err != nil {
		t.Fatalf("setup failed: %v", err)
	}
}

func readSide(t *testing.T, root, relPath string) (string, bool) {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(relPath)))
	if os.IsNotExist(err) {
		return "", false
	}
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	return string(data), true
}

func TestFirstSyncCopiesBothWaysAndNeverDeletes(t *testing.T) {
	env := newTestEnv(t, "bidirectional")
	writeSide(t, env.projectRoot, "p.md", "from project", baseTime)
	writeSide(t, env.vaultRoot, "v.md", "from vault", baseTime)

	res := env.run(t)

	if res.Copied != 2 || res.Deleted != 0 || res.Errors != 0 {
		t.Errorf("unexpected counts: %+v", res)
	}
	if content, ok := readSide(t, env.vaultRoot, "p.md"); !ok || content != "from project" {
		t.Errorf("p.md not copied to vault: %q %v", content, ok)
	}
	if content, ok := readSide(t, env.projectRoot, "v.md"); !ok || content != "from vault" {
		t.Errorf("v.md not copied to project: %q %v", content, ok)
	}
}

func TestCopyPreservesModTime(t *testing.T) {
	env := newTestEnv(t, "bidirectional")
	writeSide(t, env.projectRoot, "p.md", "x", baseTime)

	env.run(t)

	info, err := os.Stat(filepath.Join(env.vaultRoot, "p.md"))
	if err != nil {
		t.Fatalf("copy missing: %v", err)
	}
	if !info.ModTime().Equal(baseTime) {
		t.Errorf("mod time not preserved: got %v, expected %v", info.ModTime(), baseTime)
	}
}

func TestReconcileScenario(t *testing.T) {
	// a.md newer on the project side, b.md identical on both sides,
	// c.md only in the vault.
	env := newTestEnv(t, "bidirectional")
	writeSide(t, env.projectRoot, "a.md", "project edit", baseTime.Add(5*time.Second))
	writeSide(t, env.vaultRoot, "a.md", "stale", baseTime)
	writeSide(t, env.projectRoot, "b.md", "same", baseTime)
	writeSide(t, env.vaultRoot, "b.md", "same", baseTime)
	writeSide(t, env.vaultRoot, "c.md", "vault only", baseTime)

	res := env.run(t)

	if res.Updated != 1 || res.Copied != 1 || res.Skipped != 1 {
		t.Errorf("expected 1 update, 1 copy, 1 skip, got %+v", res)
	}
	if res.Processed() != 3 {
		t.Errorf("Processed() = %d, expected 3", res.Processed())
	}
	if content, _ := readSide(t, env.vaultRoot, "a.md"); content != "project edit" {
		t.Errorf("a.md not updated in vault: %q", content)
	}
	if content, ok := readSide(t, env.projectRoot, "c.md"); !ok || content != "vault only" {
		t.Errorf("c.md not copied to project: %q %v", content, ok)
	}
}

func TestToleranceBoundary(t *testing.T) {
	testCases := []struct {
		name         string
		delta        time.Duration
		expectUpdate bool
	}{
		{"999ms is unchanged", 999 * time.Millisecond, false},
		{"1000ms is a conflict", 1000 * time.Millisecond, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t, "bidirectional")
			writeSide(t, env.projectRoot, "x.md", "project version", baseTime.Add(tc.delta))
			writeSide(t, env.vaultRoot, "x.md", "vault version", baseTime)

			res := env.run(t)

			if tc.expectUpdate {
				if res.Updated != 1 || res.Skipped != 0 {
					t.Errorf("expected an update, got %+v", res)
				}
				if content, _ := readSide(t, env.vaultRoot, "x.md"); content != "project version" {
					t.Errorf("newer project version should win: %q", content)
				}
			} else {
				if res.Updated != 0 || res.Skipped != 1 {
					t.Errorf("expected a skip, got %+v", res)
				}
				if content, _ := readSide(t, env.vaultRoot, "x.md"); content != "vault version" {
					t.Errorf("vault version should be untouched: %q", content)
				}
			}
		})
	}
}

func TestSecondRunIsIdempotent(t *testing.T) {
	env := newTestEnv(t, "bidirectional")
	writeSide(t, env.projectRoot, "a.md", "x", baseTime)
	writeSide(t, env.vaultRoot, "b.md", "y", baseTime)

	env.run(t)
	res := env.run(t)

	if res.Copied != 0 || res.Updated != 0 || res.Deleted != 0 {
		t.Errorf("second run should change nothing: %+v", res)
	}
	if res.Skipped != 2 {
		t.Errorf("expected 2 skips, got %+v", res)
	}
}

func TestDeletionPropagatesBidirectionally(t *testing.T) {
	env := newTestEnv(t, "bidirectional")
	writeSide(t, env.projectRoot, "doomed.md", "x", baseTime)
	writeSide(t, env.projectRoot, "keeper.md", "y", baseTime)
	env.run(t)

	if err := os.Remove(filepath.Join(env.projectRoot, "doomed.md")); err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	res := env.run(t)

	if res.Deleted != 1 {
		t.Errorf("expected 1 deletion, got %+v", res)
	}
	if _, ok := readSide(t, env.vaultRoot, "doomed.md"); ok {
		t.Error("doomed.md should have been deleted from the vault")
	}
	if _, ok := readSide(t, env.vaultRoot, "keeper.md"); !ok {
		t.Error("keeper.md should survive")
	}

	// And the reverse direction.
	if err := os.Remove(filepath.Join(env.vaultRoot, "keeper.md")); err != nil {
		t.Fatalf("setup failed: %v", err)
	}
	res = env.run(t)
	if res.Deleted != 1 {
		t.Errorf("expected 1 deletion, got %+v", res)
	}
	if _, ok := readSide(t, env.projectRoot, "keeper.md"); ok {
		t.Error("keeper.md should have been deleted from the project side")
	}
}

func TestSinkDeletionDoesNotPropagateUnidirectionally(t *testing.T) {
	env := newTestEnv(t, "project-to-vault")
	writeSide(t, env.projectRoot, "a.md", "x", baseTime)
	env.run(t)

	// Deleting the vault copy of a unidirectional mapping must not delete
	// the source; the file is simply copied back.
	if err := os.Remove(filepath.Join(env.vaultRoot, "a.md")); err != nil {
		t.Fatalf("setup failed: %v", err)
	}
	res := env.run(t)

	if res.Deleted != 0 {
		t.Errorf("sink deletion must not propagate: %+v", res)
	}
	if _, ok := readSide(t, env.projectRoot, "a.md"); !ok {
		t.Error("source file must survive")
	}
	if _, ok := readSide(t, env.vaultRoot, "a.md"); !ok {
		t.Error("file should have been copied back to the vault")
	}
}

func TestDeclinedConfirmationSkipsAllDeletions(t *testing.T) {
	env := newTestEnv(t, "bidirectional")
	env.cfg.Policy.ConfirmDeletions = true
	writeSide(t, env.projectRoot, "a.md", "x", baseTime)
	env.run(t)

	if err := os.Remove(filepath.Join(env.projectRoot, "a.md")); err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	// No confirmer registered: deletions are declined.
	res := env.run(t)
	if res.Deleted != 0 {
		t.Errorf("unconfirmed deletions must not run: %+v", res)
	}
	if len(res.Deletions) != 1 {
		t.Errorf("detection should still be reported: %v", res.Deletions)
	}
	if _, ok := readSide(t, env.vaultRoot, "a.md"); !ok {
		t.Error("vault copy must survive a declined confirmation")
	}

	// With a confirmer saying yes, the deletion goes through.
	env.engine.DeletionConfirmer = func(deletions []DetectedDeletion) bool { return true }
	res = env.run(t)
	if res.Deleted != 1 {
		t.Errorf("confirmed deletion should run: %+v", res)
	}
}

func TestAskStrategySuspendsOnDecider(t *testing.T) {
	env := newTestEnv(t, "bidirectional")
	ask := "ask"
	env.cfg.Mappings[0].ConflictStrategyOverride = &ask
	writeSide(t, env.projectRoot, "x.md", "project version", baseTime.Add(5*time.Second))
	writeSide(t, env.vaultRoot, "x.md", "vault version", baseTime)

	// No decider: the conflict is skipped.
	res := env.run(t)
	if res.Skipped != 1 || res.Updated != 0 {
		t.Errorf("undecided conflict should skip: %+v", res)
	}
	if res.Conflicts != 1 {
		t.Errorf("conflict should be counted: %+v", res)
	}

	var seen ConflictInfo
	env.engine.ConflictDecider = func(info ConflictInfo) Decision {
		seen = info
		return DecisionKeepVault
	}
	res = env.run(t)
	if res.Updated != 1 {
		t.Errorf("decided conflict should apply: %+v", res)
	}
	if seen.RelPath != "x.md" || seen.MappingID != "main" {
		t.Errorf("decider got wrong conflict info: %+v", seen)
	}
	if content, _ := readSide(t, env.projectRoot, "x.md"); content != "vault version" {
		t.Errorf("vault version should have won: %q", content)
	}
}

func TestConflictListRecordsSignificance(t *testing.T) {
	env := newTestEnv(t, "bidirectional")
	// Same size, 10s drift: a conflict, but not one worth surfacing first.
	writeSide(t, env.projectRoot, "minor.md", "aaaa", baseTime.Add(10*time.Second))
	writeSide(t, env.vaultRoot, "minor.md", "bbbb", baseTime)
	// Diverged sizes make a conflict significant regardless of the gap.
	writeSide(t, env.projectRoot, "major.md", "short", baseTime.Add(5*time.Second))
	writeSide(t, env.vaultRoot, "major.md", "much longer content", baseTime)
	// Same size but over a minute of drift is significant too.
	writeSide(t, env.projectRoot, "drift.md", "same", baseTime.Add(2*time.Minute))
	writeSide(t, env.vaultRoot, "drift.md", "sbme", baseTime)

	res := env.run(t)

	if res.Conflicts != 3 || len(res.ConflictFiles) != 3 {
		t.Fatalf("expected 3 listed conflicts, got count %d, list %+v", res.Conflicts, res.ConflictFiles)
	}
	significant := make(map[string]bool, len(res.ConflictFiles))
	for _, c := range res.ConflictFiles {
		if c.MappingID != "main" {
			t.Errorf("conflict %s carries wrong mapping id %q", c.RelPath, c.MappingID)
		}
		significant[c.RelPath] = c.Significant
	}
	if significant["minor.md"] {
		t.Error("same-size conflict within a minute should not be significant")
	}
	if !significant["major.md"] {
		t.Error("size-diverged conflict should be significant")
	}
	if !significant["drift.md"] {
		t.Error("over-a-minute drift should be significant")
	}
}

func TestMetricsCountersTrackRun(t *testing.T) {
	env := newTestEnv(t, "bidirectional")
	m := &metrics.SyncMetrics{}
	env.engine.metrics = m

	writeSide(t, env.projectRoot, "new.md", "x", baseTime)
	writeSide(t, env.projectRoot, "shared.md", "project edit", baseTime.Add(5*time.Second))
	writeSide(t, env.vaultRoot, "shared.md", "old", baseTime)

	env.run(t)

	if got := m.FilesCopied.Load(); got != 1 {
		t.Errorf("FilesCopied = %d, expected 1", got)
	}
	if got := m.FilesUpdated.Load(); got != 1 {
		t.Errorf("FilesUpdated = %d, expected 1", got)
	}
	if got := m.Conflicts.Load(); got != 1 {
		t.Errorf("Conflicts = %d, expected 1", got)
	}
	if got := m.Errors.Load(); got != 0 {
		t.Errorf("Errors = %d, expected 0", got)
	}
}

func TestVaultToProjectDirection(t *testing.T) {
	env := newTestEnv(t, "vault-to-project")
	writeSide(t, env.vaultRoot, "v.md", "vault only", baseTime)
	writeSide(t, env.projectRoot, "p.md", "project only", baseTime)
	writeSide(t, env.vaultRoot, "shared.md", "vault edit", baseTime.Add(5*time.Second))
	writeSide(t, env.projectRoot, "shared.md", "old", baseTime)

	res := env.run(t)

	if res.Copied != 1 || res.Updated != 1 {
		t.Errorf("expected 1 copy and 1 update, got %+v", res)
	}
	if content, ok := readSide(t, env.projectRoot, "v.md"); !ok || content != "vault only" {
		t.Errorf("vault-only file not copied: %q %v", content, ok)
	}
	if content, _ := readSide(t, env.projectRoot, "shared.md"); content != "vault edit" {
		t.Errorf("newer vault version should win: %q", content)
	}
	// The project-only file never crosses into the vault.
	if _, ok := readSide(t, env.vaultRoot, "p.md"); ok {
		t.Error("project-only file must not be copied for vault-to-project")
	}
}

func TestDryRunPlansWithoutTouchingAnything(t *testing.T) {
	env := newTestEnv(t, "bidirectional")
	writeSide(t, env.projectRoot, "a.md", "x", baseTime)

	res := env.engine.Run(context.Background(), env.mapping(), true)
	if res.Err != nil {
		t.Fatalf("dry run failed: %v", res.Err)
	}

	if len(res.Planned) != 1 || res.Planned[0].Kind != ActionCopy {
		t.Errorf("expected one planned copy, got %v", res.Planned)
	}
	if len(res.Files) != 0 {
		t.Errorf("dry run must not execute actions: %v", res.Files)
	}
	if _, ok := readSide(t, env.vaultRoot, "a.md"); ok {
		t.Error("dry run must not write files")
	}

	// A real run afterwards still treats this as a first sync.
	res = env.run(t)
	if res.Copied != 1 {
		t.Errorf("dry run must not consume the first sync: %+v", res)
	}
}

func TestRunLockSkipsBusyMapping(t *testing.T) {
	env := newTestEnv(t, "bidirectional")

	lock := env.engine.lockFor("main")
	if !lock.TryAcquire(1) {
		t.Fatal("could not acquire test lock")
	}
	defer lock.Release(1)

	res := env.engine.Run(context.Background(), env.mapping(), false)
	if res.Err != ErrRunInProgress {
		t.Errorf("expected ErrRunInProgress, got %v", res.Err)
	}
}

func TestBackupWrittenBeforeOverwrite(t *testing.T) {
	env := newTestEnv(t, "bidirectional")
	env.cfg.Policy.CreateBackups = true
	writeSide(t, env.projectRoot, "a.md", "new version", baseTime.Add(5*time.Second))
	writeSide(t, env.vaultRoot, "a.md", "old version", baseTime)

	res := env.run(t)
	if res.Updated != 1 {
		t.Fatalf("expected an update, got %+v", res)
	}

	backupDir := filepath.Join(env.vaultRoot, store.BackupDirName)
	entries, err := os.ReadDir(backupDir)
	if err != nil {
		t.Fatalf("backup directory missing: %v", err)
	}
	if len(entries) == 0 {
		t.Fatal("no backup written before overwrite")
	}
}

func TestRunAllProcessesMappingsSequentially(t *testing.T) {
	env := newTestEnv(t, "bidirectional")
	writeSide(t, env.projectRoot, "a.md", "x", baseTime)

	results, err := env.engine.RunAll(context.Background(), nil, false)
	if err != nil {
		t.Fatalf("RunAll failed: %v", err)
	}
	if len(results) != 1 || !results[0].Success {
		t.Errorf("unexpected results: %+v", results)
	}

	if _, err := env.engine.RunAll(context.Background(), []string{"nope"}, false); err == nil {
		t.Error("unknown mapping id should fail")
	}
}
