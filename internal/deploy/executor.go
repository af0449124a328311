package deploy

import (
	"context"
	"fmt"
	"time"

	"pullhook/internal/security"
	"pullhook/pkg/cmdutil"
)

// ExecutionResult represents the result of running an external action.
type ExecutionResult struct {
	ReturnCode int
	Output     string // combined stdout and stderr
	Duration   time.Duration
}

// OK checks if the execution was successful.
func (r *ExecutionResult) OK() bool {
	return r.ReturnCode == 0
}

// Executor runs the external actions of a deploy inside the app's source
// tree, with timeouts and allow-list validation.
type Executor struct {
	AppPath string
	sandbox *security.SandboxedExecutor
}

// NewExecutor creates a new executor rooted at the app's source tree.
func NewExecutor(appPath string) *Executor {
	return &Executor{
		AppPath: appPath,
		sandbox: security.NewSandboxedExecutor(appPath),
	}
}

// RunCommand executes a command with a timeout in the app's source tree.
func (e *Executor) RunCommand(ctx context.Context, command []string, timeout int) (*ExecutionResult, error) {
	result, err := cmdutil.Run(
		ctx,
		cmdutil.ExecOptions{
			Dir:     e.AppPath,
			Timeout: time.Duration(timeout) * time.Second,
		},
		command,
	)

	execResult := &ExecutionResult{}
	if result != nil {
		execResult.Output = string(result.Output)
		execResult.ReturnCode = result.ExitCode
		execResult.Duration = result.Duration
	}

	if err != nil {
		return execResult, err
	}

	return execResult, nil
}

// RunGitPull updates the source tree from the configured remote.
// Local changes are reset first so the pull can never conflict.
func (e *Executor) RunGitPull(ctx context.Context, remote, branch string, timeout int) (*ExecutionResult, error) {
	if err := security.ValidateBranchName(branch); err != nil {
		return nil, fmt.Errorf("invalid branch name: %w", err)
	}
	if err := security.ValidateRemoteName(remote); err != nil {
		return nil, fmt.Errorf("invalid remote name: %w", err)
	}

	resetCmd := []string{"git", "reset", "--hard", "HEAD"}
	result, err := e.RunCommand(ctx, resetCmd, timeout)
	if err != nil {
		return result, fmt.Errorf("git reset failed: %w", err)
	}
	if !result.OK() {
		return result, fmt.Errorf("git reset exited with code %d", result.ReturnCode)
	}

	cmd := []string{"git", "pull", remote, branch}
	return e.RunCommand(ctx, cmd, timeout)
}

// RunRestart restarts the dependent service with the app's configured
// restart command. The command is validated against the sandbox allow-list
// before it runs; execution is shell-free.
func (e *Executor) RunRestart(ctx context.Context, command interface{}, timeout int) (*ExecutionResult, error) {
	parts, err := cmdutil.ParseCommandList(command)
	if err != nil {
		return nil, fmt.Errorf("failed to parse restart command: %w", err)
	}

	if err := e.sandbox.ValidateCommandParts(parts); err != nil {
		return nil, fmt.Errorf("restart command rejected: %w", err)
	}

	result, err := e.RunCommand(ctx, parts, timeout)
	if err != nil {
		return result, fmt.Errorf("restart command failed: %w (command: %s)", err, cmdutil.FormatCommand(parts))
	}
	if !result.OK() {
		return result, fmt.Errorf("restart command exited with code %d (command: %s)",
			result.ReturnCode, cmdutil.FormatCommand(parts))
	}

	return result, nil
}
