// ABOUTME: Settings loading: global YAML, then pyproject.toml [tool.rope], then project YAML
// ABOUTME: Later layers override earlier ones field by field; env maps merge key by key

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied by accessors when a setting is unset.
const (
	DefaultProtocol         = "plain"
	DefaultParameterName    = "new_parameter"
	DefaultHandshakeTimeout = 30 * time.Second
	DefaultRequestTimeout   = 60 * time.Second
	DefaultCacheTTL         = 30 * time.Second
)

// Settings holds the merged configuration.
type Settings struct {
	Python           string            `yaml:"python,omitempty"`
	Protocol         string            `yaml:"protocol,omitempty"`
	IgnoredResources []string          `yaml:"ignored_resources,omitempty"`
	SourceFolders    []string          `yaml:"source_folders,omitempty"`
	HandshakeTimeout Duration          `yaml:"handshake_timeout,omitempty"`
	RequestTimeout   Duration          `yaml:"request_timeout,omitempty"`
	CacheTTL         *Duration         `yaml:"cache_ttl,omitempty"`
	ParameterName    string            `yaml:"parameter_name,omitempty"`
	LogLevel         string            `yaml:"log_level,omitempty"`
	Env              map[string]string `yaml:"env,omitempty"`

	// Keybindings maps picker actions to keys; see internal/keybindings.
	Keybindings map[string][]string `yaml:"keybindings,omitempty"`
}

// Duration is a time.Duration written as "10s" or "1m30s" in YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	if parsed < 0 {
		return fmt.Errorf("line %d: negative duration %s", node.Line, s)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Load reads and merges the global settings, the project's pyproject.toml
// and the project-local settings. Missing files are skipped.
func Load(projectRoot string) (*Settings, error) {
	return LoadFrom(GlobalConfigFile(), projectRoot)
}

// LoadFrom is Load with an explicit global settings file.
func LoadFrom(globalFile, projectRoot string) (*Settings, error) {
	global, err := loadFile(globalFile)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading global config: %w", err)
	}

	var pyproject, project *Settings
	if projectRoot != "" {
		pyproject, err = loadPyproject(PyprojectFile(projectRoot))
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading pyproject.toml: %w", err)
		}
		project, err = loadFile(ProjectConfigFile(projectRoot))
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading project config: %w", err)
		}
	}

	return merge(merge(global, pyproject), project), nil
}

// loadFile reads Settings from a YAML file. An empty file is zero Settings.
func loadFile(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return &Settings{}, err
	}
	var s Settings
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &s, nil
}

// merge overlays non-zero fields of over onto base.
func merge(base, over *Settings) *Settings {
	if base == nil {
		base = &Settings{}
	}
	if over == nil {
		return base
	}

	result := *base

	if over.Python != "" {
		result.Python = over.Python
	}
	if over.Protocol != "" {
		result.Protocol = over.Protocol
	}
	if over.IgnoredResources != nil {
		result.IgnoredResources = over.IgnoredResources
	}
	if over.SourceFolders != nil {
		result.SourceFolders = over.SourceFolders
	}
	if over.HandshakeTimeout != 0 {
		result.HandshakeTimeout = over.HandshakeTimeout
	}
	if over.RequestTimeout != 0 {
		result.RequestTimeout = over.RequestTimeout
	}
	if over.CacheTTL != nil {
		result.CacheTTL = over.CacheTTL
	}
	if over.ParameterName != "" {
		result.ParameterName = over.ParameterName
	}
	if over.LogLevel != "" {
		result.LogLevel = over.LogLevel
	}

	if len(over.Env) > 0 {
		env := make(map[string]string, len(base.Env)+len(over.Env))
		for k, v := range base.Env {
			env[k] = v
		}
		for k, v := range over.Env {
			env[k] = v
		}
		result.Env = env
	}

	if len(over.Keybindings) > 0 {
		kb := make(map[string][]string, len(base.Keybindings)+len(over.Keybindings))
		maps.Copy(kb, base.Keybindings)
		maps.Copy(kb, over.Keybindings)
		result.Keybindings = kb
	}

	return &result
}

// HandshakeTimeoutOrDefault returns the handshake timeout.
func (s *Settings) HandshakeTimeoutOrDefault() time.Duration {
	if s.HandshakeTimeout > 0 {
		return time.Duration(s.HandshakeTimeout)
	}
	return DefaultHandshakeTimeout
}

// RequestTimeoutOrDefault returns the per-request timeout.
func (s *Settings) RequestTimeoutOrDefault() time.Duration {
	if s.RequestTimeout > 0 {
		return time.Duration(s.RequestTimeout)
	}
	return DefaultRequestTimeout
}

// CacheTTLOrDefault returns how long proposals are cached. Zero disables caching.
func (s *Settings) CacheTTLOrDefault() time.Duration {
	if s.CacheTTL != nil {
		return time.Duration(*s.CacheTTL)
	}
	return DefaultCacheTTL
}

// ParameterNameOrDefault returns the name given to introduced parameters.
func (s *Settings) ParameterNameOrDefault() string {
	if s.ParameterName != "" {
		return s.ParameterName
	}
	return DefaultParameterName
}

// ProtocolOrDefault returns the configured wire protocol name.
func (s *Settings) ProtocolOrDefault() string {
	if s.Protocol != "" {
		return s.Protocol
	}
	return DefaultProtocol
}

// EnvList renders Env as KEY=VALUE pairs for a child process.
func (s *Settings) EnvList() []string {
	if len(s.Env) == 0 {
		return nil
	}
	out := make([]string, 0, len(s.Env))
	for k, v := range s.Env {
		out = append(out, k+"="+v)
	}
	slices.Sort(out)
	return out
}
