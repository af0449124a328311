package app

import "fmt"

// App represents a validated application configuration. It is built once at
// startup from the YAML config and never mutated afterwards.
type App struct {
	Name           string
	Path           string
	Secret         string
	Branch         string
	Remote         string
	Restart        interface{} // string or list form, parsed by cmdutil
	AllowSHA1      bool
	PullTimeout    int
	RestartTimeout int
}

// AppConfig represents the YAML configuration for an application.
type AppConfig struct {
	Path           string      `yaml:"path"`
	Secret         string      `yaml:"secret"`
	Branch         string      `yaml:"branch"`
	Remote         string      `yaml:"remote"`
	Restart        interface{} `yaml:"restart"`
	AllowSHA1      bool        `yaml:"allow_sha1"`
	PullTimeout    int         `yaml:"pull_timeout"`
	RestartTimeout int         `yaml:"restart_timeout"`
}

// Config represents the root configuration structure.
type Config struct {
	Apps map[string]AppConfig `yaml:"apps"`
}

// MatchesRef checks if a git ref matches the app's target branch.
func (a *App) MatchesRef(ref string) bool {
	return ref == fmt.Sprintf("refs/heads/%s", a.Branch)
}
