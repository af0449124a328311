package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"pullhook/internal/security"
	"pullhook/pkg/cmdutil"
)

const (
	DefaultBranch         = "main"
	DefaultRemote         = "origin"
	DefaultPullTimeout    = 60
	DefaultRestartTimeout = 60
)

// LoadConfig loads and validates the configuration from a YAML file.
func LoadConfig(configPath string) (*Config, map[string]*App, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	// Initialize Apps map if it's nil (happens with empty YAML files)
	if config.Apps == nil {
		config.Apps = make(map[string]AppConfig)
	}

	apps := make(map[string]*App)
	for name, appConfig := range config.Apps {
		errors := ValidateAppConfig(name, appConfig)
		if len(errors) > 0 {
			return nil, nil, fmt.Errorf("invalid configuration for app '%s':\n%s",
				name, strings.Join(errors, "\n"))
		}

		// Apply defaults
		branch := appConfig.Branch
		if branch == "" {
			branch = DefaultBranch
		}

		remote := appConfig.Remote
		if remote == "" {
			remote = DefaultRemote
		}

		pullTimeout := appConfig.PullTimeout
		if pullTimeout == 0 {
			pullTimeout = DefaultPullTimeout
		}

		restartTimeout := appConfig.RestartTimeout
		if restartTimeout == 0 {
			restartTimeout = DefaultRestartTimeout
		}

		// Resolve path to absolute and follow symlinks
		resolvedPath, err := filepath.Abs(appConfig.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to resolve path for app '%s': %w", name, err)
		}
		realPath, err := filepath.EvalSymlinks(resolvedPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to resolve symlinks for app '%s': %w", name, err)
		}

		apps[name] = &App{
			Name:           name,
			Path:           realPath,
			Secret:         appConfig.Secret,
			Branch:         branch,
			Remote:         remote,
			Restart:        appConfig.Restart,
			AllowSHA1:      appConfig.AllowSHA1,
			PullTimeout:    pullTimeout,
			RestartTimeout: restartTimeout,
		}
	}

	return &config, apps, nil
}

// ValidateAppConfig validates a single application configuration.
func ValidateAppConfig(name string, config AppConfig) []string {
	var errors []string

	if err := security.ValidateAppName(name); err != nil {
		errors = append(errors, fmt.Sprintf("  - App '%s': invalid name: %v", name, err))
	}

	// Validate path
	if config.Path == "" {
		errors = append(errors, fmt.Sprintf("  - App '%s': missing required 'path' field", name))
	} else if !filepath.IsAbs(config.Path) {
		errors = append(errors, fmt.Sprintf("  - App '%s': path must be absolute, got '%s'", name, config.Path))
	} else {
		resolvedPath, err := filepath.Abs(config.Path)
		if err != nil {
			errors = append(errors, fmt.Sprintf("  - App '%s': cannot resolve path '%s': %v", name, config.Path, err))
		} else {
			realPath, err := filepath.EvalSymlinks(resolvedPath)
			if err != nil {
				errors = append(errors, fmt.Sprintf("  - App '%s': cannot resolve path '%s': %v", name, config.Path, err))
			} else {
				info, err := os.Stat(realPath)
				if err != nil {
					if os.IsNotExist(err) {
						errors = append(errors, fmt.Sprintf("  - App '%s': path does not exist: '%s'", name, realPath))
					} else {
						errors = append(errors, fmt.Sprintf("  - App '%s': cannot stat path '%s': %v", name, realPath, err))
					}
				} else if !info.IsDir() {
					errors = append(errors, fmt.Sprintf("  - App '%s': path is not a directory: '%s'", name, realPath))
				} else {
					// The source tree must be a git worktree, it gets pulled in place
					gitDir := filepath.Join(realPath, ".git")
					if _, err := os.Stat(gitDir); os.IsNotExist(err) {
						errors = append(errors, fmt.Sprintf("  - App '%s': path is not a git repository (missing .git): '%s'", name, realPath))
					}

					// Check path is within allowed root if configured
					appsRoot := os.Getenv("PULLHOOK_APPS_ROOT")
					if appsRoot != "" {
						rootPath, err := filepath.EvalSymlinks(appsRoot)
						if err == nil {
							relPath, err := filepath.Rel(rootPath, realPath)
							if err != nil || strings.HasPrefix(relPath, "..") {
								errors = append(errors, fmt.Sprintf("  - App '%s': path '%s' is outside allowed root '%s'", name, realPath, rootPath))
							}
						}
					}
				}
			}
		}
	}

	// Validate secret
	if config.Secret == "" {
		errors = append(errors, fmt.Sprintf("  - App '%s': missing required 'secret' field", name))
	} else if err := security.ValidateSecret(config.Secret); err != nil {
		errors = append(errors, fmt.Sprintf("  - App '%s': %v", name, err))
	}

	// Validate branch and remote
	branch := config.Branch
	if branch == "" {
		branch = DefaultBranch
	}
	if err := security.ValidateBranchName(branch); err != nil {
		errors = append(errors, fmt.Sprintf("  - App '%s': invalid branch: %v", name, err))
	}

	remote := config.Remote
	if remote == "" {
		remote = DefaultRemote
	}
	if err := security.ValidateRemoteName(remote); err != nil {
		errors = append(errors, fmt.Sprintf("  - App '%s': invalid remote: %v", name, err))
	}

	// Validate timeouts (must be positive if set, zero uses defaults)
	if config.PullTimeout < 0 {
		errors = append(errors, fmt.Sprintf("  - App '%s': pull_timeout must be a positive integer, got %d", name, config.PullTimeout))
	}
	if config.RestartTimeout < 0 {
		errors = append(errors, fmt.Sprintf("  - App '%s': restart_timeout must be a positive integer, got %d", name, config.RestartTimeout))
	}

	// Validate restart command: required, parseable, and allowed by the
	// sandbox so a bad config fails at startup rather than mid-deploy
	if config.Restart == nil {
		errors = append(errors, fmt.Sprintf("  - App '%s': missing required 'restart' field", name))
	} else {
		parts, err := cmdutil.ParseCommandList(config.Restart)
		if err != nil {
			errors = append(errors, fmt.Sprintf("  - App '%s': invalid restart command: %v", name, err))
		} else {
			executor := security.NewSandboxedExecutor("")
			if err := executor.ValidateCommandParts(parts); err != nil {
				errors = append(errors, fmt.Sprintf("  - App '%s': restart command rejected: %v", name, err))
			}
		}
	}

	return errors
}
