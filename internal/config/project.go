package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ProjectConfig represents an .ultra.yaml file in a repository
type ProjectConfig struct {
	Version string `yaml:"version"`

	// File patterns for test discovery
	Include []string `yaml:"include,omitempty"`
	Exclude []string `yaml:"exclude,omitempty"`

	// Orchestration settings
	Orchestration OrchestrationConfig `yaml:"orchestration,omitempty"`

	// Cache settings
	Cache CacheConfig `yaml:"cache,omitempty"`
}

// OrchestrationConfig holds scheduling preferences
type OrchestrationConfig struct {
	// Stop dispatching new batches after the first failure
	FailFast *bool `yaml:"fail_fast,omitempty"`

	// Profiles per parallel batch
	BatchSize int `yaml:"batch_size,omitempty"`

	// Hard worker count override (0 = auto)
	Workers int `yaml:"workers,omitempty"`

	// Restrict discovery to one category (unit, integration, e2e, performance)
	Category string `yaml:"category,omitempty"`
}

// CacheConfig holds result cache preferences
type CacheConfig struct {
	// Disable result caching entirely
	Disabled bool `yaml:"disabled,omitempty"`

	// Override cache directory for this project
	Dir string `yaml:"dir,omitempty"`
}

// ProjectConfigFile is the well-known project config filename
const ProjectConfigFile = ".ultra.yaml"

// LoadProjectConfig reads .ultra.yaml from the repository root.
// A missing file is not an error; defaults are returned.
func LoadProjectConfig(repoPath string) (*ProjectConfig, error) {
	cfg := DefaultProjectConfig()

	path := filepath.Join(repoPath, ProjectConfigFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// DefaultProjectConfig returns a project config with defaults applied
func DefaultProjectConfig() *ProjectConfig {
	return &ProjectConfig{
		Version: "1",
		Orchestration: OrchestrationConfig{
			BatchSize: 20,
			Category:  "all",
		},
	}
}

// FailFast reports whether fail-fast is enabled (default true)
func (c *ProjectConfig) FailFast() bool {
	if c.Orchestration.FailFast == nil {
		return true
	}
	return *c.Orchestration.FailFast
}
