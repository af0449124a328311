package deploy

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"pullhook/internal/app"
	"pullhook/internal/journal"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testApp(t *testing.T, path, restart string) *app.App {
	t.Helper()
	return &app.App{
		Name:           "test-app",
		Path:           path,
		Secret:         "Kj8mP2nQ5wR7tU9yI3oL6hG4fD1sA0xZ",
		Branch:         "main",
		Remote:         "origin",
		Restart:        restart,
		PullTimeout:    30,
		RestartTimeout: 30,
	}
}

// setupGitFixture builds a local origin repository and a clone of it, so a
// real git pull can run without network access. Returns the clone path.
func setupGitFixture(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}

	tmp := t.TempDir()
	originDir := filepath.Join(tmp, "origin")
	appDir := filepath.Join(tmp, "app")

	runGit(t, tmp, "init", originDir)
	if err := os.WriteFile(filepath.Join(originDir, "README.md"), []byte("fixture\n"), 0644); err != nil {
		t.Fatalf("Failed to write fixture file: %v", err)
	}
	runGit(t, originDir, "add", ".")
	runGit(t, originDir, "-c", "user.name=test", "-c", "user.email=test@example.com", "commit", "-m", "initial")
	runGit(t, originDir, "branch", "-M", "main")
	runGit(t, tmp, "clone", originDir, appDir)

	return appDir
}

func runGit(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	if output, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git %v failed: %v\n%s", args, err, output)
	}
}

func TestSaga_ShouldDeploy(t *testing.T) {
	saga := NewSaga(testApp(t, t.TempDir(), "touch marker"), nil, testLogger(), false)

	if !saga.ShouldDeploy("refs/heads/main") {
		t.Error("Expected push to configured branch to trigger a deploy")
	}
	if saga.ShouldDeploy("refs/heads/feature-x") {
		t.Error("Expected push to other branch to be skipped")
	}
	if saga.ShouldDeploy("refs/tags/v1.0.0") {
		t.Error("Expected tag push to be skipped")
	}
}

func TestSaga_Execute_Success(t *testing.T) {
	appDir := setupGitFixture(t)
	marker := filepath.Join(appDir, "restarted.marker")

	saga := NewSaga(testApp(t, appDir, "touch "+marker), nil, testLogger(), false)

	response, status := saga.Execute(context.Background(), "refs/heads/main", "abc123")
	if status != http.StatusOK {
		t.Fatalf("Expected status 200, got %d (response: %v)", status, response)
	}
	if response["message"] != "Deploy successful" {
		t.Errorf("Expected success message, got %v", response)
	}
	if _, err := os.Stat(marker); err != nil {
		t.Errorf("Expected restart step to run after successful pull: %v", err)
	}
}

func TestSaga_Execute_PullFailureSkipsRestart(t *testing.T) {
	// A plain directory is not a git work tree, so the pull step fails.
	// The restart step must not run.
	appDir := t.TempDir()
	marker := filepath.Join(appDir, "should-not-exist.marker")

	saga := NewSaga(testApp(t, appDir, "touch "+marker), nil, testLogger(), false)

	response, status := saga.Execute(context.Background(), "refs/heads/main", "")
	if status != http.StatusInternalServerError {
		t.Fatalf("Expected status 500, got %d (response: %v)", status, response)
	}
	if _, err := os.Stat(marker); !os.IsNotExist(err) {
		t.Error("Expected restart step to be skipped after pull failure")
	}
}

func TestSaga_Execute_RestartFailureKeepsTree(t *testing.T) {
	// The restart step fails after a successful pull. No rollback: the run
	// is failed but the pull step is recorded as success.
	appDir := setupGitFixture(t)
	dbPath := filepath.Join(t.TempDir(), "journal.db")

	jnl, err := journal.New(dbPath)
	if err != nil {
		t.Fatalf("Failed to open journal: %v", err)
	}
	defer jnl.Close()

	// git is on the allow-list but an unknown flag makes it exit non-zero
	saga := NewSaga(testApp(t, appDir, "git --not-a-real-flag"), jnl, testLogger(), false)

	response, status := saga.Execute(context.Background(), "refs/heads/main", "abc123")
	if status != http.StatusInternalServerError {
		t.Fatalf("Expected status 500, got %d (response: %v)", status, response)
	}

	ctx := context.Background()
	run, err := jnl.GetLatestRun(ctx, "test-app")
	if err != nil {
		t.Fatalf("Failed to query latest run: %v", err)
	}
	if run == nil {
		t.Fatal("Expected a run record")
	}
	if run.Status != journal.StatusFailed {
		t.Errorf("Expected run status %q, got %q", journal.StatusFailed, run.Status)
	}

	steps, err := jnl.GetRunSteps(ctx, run.ID)
	if err != nil {
		t.Fatalf("Failed to query run steps: %v", err)
	}
	if len(steps) != 2 {
		t.Fatalf("Expected 2 recorded steps, got %d", len(steps))
	}
	if steps[0].Name != journal.StepPull || steps[0].Status != journal.StatusSuccess {
		t.Errorf("Expected pull step recorded as success, got %s=%s", steps[0].Name, steps[0].Status)
	}
	if steps[1].Name != journal.StepRestart || steps[1].Status != journal.StatusFailed {
		t.Errorf("Expected restart step recorded as failed, got %s=%s", steps[1].Name, steps[1].Status)
	}
}

func TestSaga_Execute_JournalPartialStateOnPullFailure(t *testing.T) {
	appDir := t.TempDir()
	dbPath := filepath.Join(t.TempDir(), "journal.db")

	jnl, err := journal.New(dbPath)
	if err != nil {
		t.Fatalf("Failed to open journal: %v", err)
	}
	defer jnl.Close()

	saga := NewSaga(testApp(t, appDir, "touch marker"), jnl, testLogger(), false)

	_, status := saga.Execute(context.Background(), "refs/heads/main", "")
	if status != http.StatusInternalServerError {
		t.Fatalf("Expected status 500, got %d", status)
	}

	ctx := context.Background()
	run, err := jnl.GetLatestRun(ctx, "test-app")
	if err != nil || run == nil {
		t.Fatalf("Expected a run record, got run=%v err=%v", run, err)
	}
	if run.Status != journal.StatusFailed {
		t.Errorf("Expected run status %q, got %q", journal.StatusFailed, run.Status)
	}
	if run.ErrorMessage == nil {
		t.Error("Expected an error message on the failed run")
	}

	steps, err := jnl.GetRunSteps(ctx, run.ID)
	if err != nil {
		t.Fatalf("Failed to query run steps: %v", err)
	}
	if len(steps) != 1 {
		t.Fatalf("Expected only the pull step to be recorded, got %d steps", len(steps))
	}
	if steps[0].Name != journal.StepPull || steps[0].Status != journal.StatusFailed {
		t.Errorf("Expected pull step recorded as failed, got %s=%s", steps[0].Name, steps[0].Status)
	}
}

func TestSaga_Execute_CancelledContext(t *testing.T) {
	saga := NewSaga(testApp(t, t.TempDir(), "touch marker"), nil, testLogger(), false)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, status := saga.Execute(ctx, "refs/heads/main", "")
	if status != http.StatusRequestTimeout {
		t.Errorf("Expected status 408 for cancelled context, got %d", status)
	}
}

func TestSaga_Execute_ExposeOutput(t *testing.T) {
	appDir := t.TempDir()

	hidden := NewSaga(testApp(t, appDir, "touch marker"), nil, testLogger(), false)
	response, _ := hidden.Execute(context.Background(), "refs/heads/main", "")
	if _, ok := response["output"]; ok {
		t.Error("Expected command output to be hidden by default")
	}

	exposed := NewSaga(testApp(t, appDir, "touch marker"), nil, testLogger(), true)
	response, _ = exposed.Execute(context.Background(), "refs/heads/main", "")
	if _, ok := response["output"]; !ok {
		t.Error("Expected command output when exposure is enabled")
	}
}
