package deploy

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestExecutionResult_OK(t *testing.T) {
	ok := &ExecutionResult{ReturnCode: 0}
	if !ok.OK() {
		t.Error("Expected exit code 0 to be OK")
	}

	failed := &ExecutionResult{ReturnCode: 1}
	if failed.OK() {
		t.Error("Expected exit code 1 to not be OK")
	}
}

func TestExecutor_RunCommand(t *testing.T) {
	dir := t.TempDir()
	executor := NewExecutor(dir)

	result, err := executor.RunCommand(context.Background(), []string{"echo", "hello"}, 10)
	if err != nil {
		t.Fatalf("Expected echo to succeed, got %v", err)
	}
	if !result.OK() {
		t.Errorf("Expected exit code 0, got %d", result.ReturnCode)
	}
	if !strings.Contains(result.Output, "hello") {
		t.Errorf("Expected output to contain 'hello', got %q", result.Output)
	}
	if result.Duration <= 0 {
		t.Error("Expected a positive duration")
	}
}

func TestExecutor_RunCommand_Failure(t *testing.T) {
	dir := t.TempDir()
	executor := NewExecutor(dir)

	result, err := executor.RunCommand(context.Background(), []string{"false"}, 10)
	if err == nil {
		t.Fatal("Expected error for failing command")
	}
	if result == nil {
		t.Fatal("Expected a result even on failure")
	}
	if result.OK() {
		t.Errorf("Expected non-zero exit code, got %d", result.ReturnCode)
	}
}

func TestExecutor_RunGitPull_InvalidNames(t *testing.T) {
	dir := t.TempDir()
	executor := NewExecutor(dir)

	if _, err := executor.RunGitPull(context.Background(), "origin", "main; rm -rf /", 10); err == nil {
		t.Error("Expected invalid branch name to be rejected")
	}
	if _, err := executor.RunGitPull(context.Background(), "origin$(whoami)", "main", 10); err == nil {
		t.Error("Expected invalid remote name to be rejected")
	}
}

func TestExecutor_RunGitPull_NotARepo(t *testing.T) {
	// A plain directory is not a git work tree, so the reset step fails
	dir := t.TempDir()
	executor := NewExecutor(dir)

	result, err := executor.RunGitPull(context.Background(), "origin", "main", 10)
	if err == nil {
		t.Fatal("Expected git pull in a non-repo directory to fail")
	}
	if result != nil && result.OK() {
		t.Error("Expected non-zero exit code from git in a non-repo directory")
	}
}

func TestExecutor_RunRestart(t *testing.T) {
	dir := t.TempDir()
	executor := NewExecutor(dir)

	marker := filepath.Join(dir, "restarted.marker")
	result, err := executor.RunRestart(context.Background(), "touch "+marker, 10)
	if err != nil {
		t.Fatalf("Expected restart command to succeed, got %v", err)
	}
	if !result.OK() {
		t.Errorf("Expected exit code 0, got %d", result.ReturnCode)
	}
	if _, err := os.Stat(marker); err != nil {
		t.Errorf("Expected restart command to create %s: %v", marker, err)
	}
}

func TestExecutor_RunRestart_ListForm(t *testing.T) {
	dir := t.TempDir()
	executor := NewExecutor(dir)

	marker := filepath.Join(dir, "list-form.marker")
	cmd := []interface{}{"touch", marker}
	if _, err := executor.RunRestart(context.Background(), cmd, 10); err != nil {
		t.Fatalf("Expected list-form restart command to succeed, got %v", err)
	}
	if _, err := os.Stat(marker); err != nil {
		t.Errorf("Expected restart command to create %s: %v", marker, err)
	}
}

func TestExecutor_RunRestart_DisallowedCommand(t *testing.T) {
	dir := t.TempDir()
	executor := NewExecutor(dir)

	testCases := []struct {
		name    string
		command interface{}
	}{
		{"not on allow-list", "rm -rf /tmp/something"},
		{"shell metacharacters", "systemctl restart app; echo pwned"},
		{"sudo wrapping disallowed command", "sudo rm -rf /"},
		{"empty command", ""},
		{"invalid type", 42},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := executor.RunRestart(context.Background(), tc.command, 10); err == nil {
				t.Errorf("Expected restart command %v to be rejected", tc.command)
			}
		})
	}
}
