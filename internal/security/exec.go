package security

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// DefaultAllowedCommands is the default set of commands permitted for deploy
// operations: source-tree updates and service restarts.
var DefaultAllowedCommands = map[string]bool{
	"git":            true,
	"sudo":           true,
	"systemctl":      true,
	"service":        true,
	"supervisorctl":  true,
	"pm2":            true,
	"docker":         true,
	"docker-compose": true,
	"kill":           true,
	"pkill":          true,
	"touch":          true,
	"make":           true,
}

// SandboxedExecutor provides safe command execution with validation and sandboxing.
type SandboxedExecutor struct {
	// AllowedCommands is the map of commands that are permitted to run.
	AllowedCommands map[string]bool

	// WorkDir is the working directory for command execution.
	WorkDir string

	// Env contains environment variables for the command.
	Env []string

	// AllowShellMetachars allows shell metacharacters in arguments (DANGEROUS!).
	// This should almost always be false.
	AllowShellMetachars bool
}

// NewSandboxedExecutor creates a new sandboxed executor with default settings.
// The allow-list is copied so AddAllowedCommand never widens it for other
// executors in the process.
func NewSandboxedExecutor(workDir string) *SandboxedExecutor {
	allowed := make(map[string]bool, len(DefaultAllowedCommands))
	for cmd := range DefaultAllowedCommands {
		allowed[cmd] = true
	}

	return &SandboxedExecutor{
		AllowedCommands:     allowed,
		WorkDir:             workDir,
		AllowShellMetachars: false,
	}
}

// Execute runs a command with validation and sandboxing.
// Returns the combined stdout/stderr output and any error.
func (e *SandboxedExecutor) Execute(ctx context.Context, cmdParts []string) ([]byte, error) {
	if err := e.ValidateCommandParts(cmdParts); err != nil {
		return nil, err
	}

	// Create command without shell (prevents shell injection)
	cmd := exec.CommandContext(ctx, cmdParts[0], cmdParts[1:]...)
	cmd.Dir = e.WorkDir
	cmd.Env = e.Env

	output, err := cmd.CombinedOutput()
	if err != nil {
		return output, fmt.Errorf("command failed: %w", err)
	}

	return output, nil
}

// ValidateCommandParts validates a command without executing it.
// Restart commands from the config file are pre-validated with this at load
// time so a bad config fails at startup, not mid-deploy.
func (e *SandboxedExecutor) ValidateCommandParts(cmdParts []string) error {
	if len(cmdParts) == 0 {
		return fmt.Errorf("empty command")
	}

	baseCmd := cmdParts[0]
	if !e.AllowedCommands[baseCmd] {
		return fmt.Errorf("command not allowed: %s", baseCmd)
	}

	// sudo must wrap another allowed command, never a bare shell
	if baseCmd == "sudo" {
		if len(cmdParts) < 2 {
			return fmt.Errorf("sudo requires a command")
		}
		if !e.AllowedCommands[cmdParts[1]] {
			return fmt.Errorf("command not allowed under sudo: %s", cmdParts[1])
		}
	}

	if !e.AllowShellMetachars {
		for i, arg := range cmdParts[1:] {
			if containsShellMetachars(arg) {
				return fmt.Errorf("argument %d contains shell metacharacters: %s", i+1, arg)
			}
		}
	}

	return nil
}

// IsCommandAllowed checks if a command is in the allowed list.
func (e *SandboxedExecutor) IsCommandAllowed(cmd string) bool {
	return e.AllowedCommands[cmd]
}

// AddAllowedCommand adds a command to the allowed list.
// Use with caution - only add commands you trust.
func (e *SandboxedExecutor) AddAllowedCommand(cmd string) {
	if e.AllowedCommands == nil {
		e.AllowedCommands = make(map[string]bool)
	}
	e.AllowedCommands[cmd] = true
}

// containsShellMetachars checks if a string contains shell metacharacters.
// These characters can be used for command injection attacks.
func containsShellMetachars(s string) bool {
	const dangerous = ";|&$`\n><(){}*?[]\\'\""
	return strings.ContainsAny(s, dangerous)
}
