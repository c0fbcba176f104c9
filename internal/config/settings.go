package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultAPIBase          = "https://api.openai.com/v1"
	DefaultTimeoutSeconds   = 600
	DefaultRefreshPerSecond = 6
	DefaultMaxFileKB        = 512
	DefaultMaxTotalKB       = 2048
)

// ModelProfile configures one named model. Every field is optional; a
// profile may extend another and inherits what it does not set.
type ModelProfile struct {
	Model       *string                `yaml:"model,omitempty"`
	APIBase     *string                `yaml:"api_base,omitempty"`
	Encoding    *string                `yaml:"encoding,omitempty"`
	Temperature *float64               `yaml:"temperature,omitempty"`
	ExtraBody   map[string]interface{} `yaml:"extra_body,omitempty"`
	Extend      *string                `yaml:"extend,omitempty"`
	Aliases     []string               `yaml:"aliases,omitempty"`
}

// ContextSettings bounds what the context assembler injects.
type ContextSettings struct {
	MaxFileKB   *int  `yaml:"max_file_kb,omitempty"`
	MaxTotalKB  *int  `yaml:"max_total_kb,omitempty"`
	Skeletonize *bool `yaml:"skeletonize,omitempty"`
}

// Settings is the optional settings.yaml file.
type Settings struct {
	APIBase          string                  `yaml:"api_base,omitempty"`
	Timeout          *int                    `yaml:"timeout,omitempty"` // seconds
	RefreshPerSecond *int                    `yaml:"refresh_per_second,omitempty"`
	LogLevel         string                  `yaml:"log_level,omitempty"`
	LogFormat        string                  `yaml:"log_format,omitempty"`
	Context          *ContextSettings        `yaml:"context,omitempty"`
	Models           map[string]ModelProfile `yaml:"models,omitempty"`
}

// LoadSettings reads path. A missing file yields empty settings.
func LoadSettings(path string, logger *slog.Logger) (*Settings, error) {
	if logger == nil {
		logger = DiscardLogger()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Settings{}, nil
		}
		return nil, fmt.Errorf("reading settings %s: %w", path, err)
	}

	var s Settings
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse settings file %s: %w", path, err)
	}

	s.expandAliases(logger)
	return &s, nil
}

func (s *Settings) expandAliases(logger *slog.Logger) {
	if s.Models == nil {
		return
	}
	aliasMap := make(map[string]ModelProfile)
	for name, profile := range s.Models {
		for _, alias := range profile.Aliases {
			if _, exists := s.Models[alias]; exists {
				logger.Warn("alias clashes with existing model, ignoring", "alias", alias, "model", name)
				continue
			}
			if _, exists := aliasMap[alias]; exists {
				logger.Warn("duplicate alias, ignoring", "alias", alias, "model", name)
				continue
			}
			parent := name
			aliasMap[alias] = ModelProfile{Extend: &parent}
		}
	}
	for k, v := range aliasMap {
		s.Models[k] = v
	}
}

// APIBaseURL returns OPENAI_API_BASE, the settings value or the default.
func (s *Settings) APIBaseURL() string {
	if v := os.Getenv("OPENAI_API_BASE"); v != "" {
		return strings.TrimSuffix(v, "/")
	}
	if s.APIBase != "" {
		return strings.TrimSuffix(s.APIBase, "/")
	}
	return DefaultAPIBase
}

// RequestTimeout bounds a whole turn.
func (s *Settings) RequestTimeout() time.Duration {
	if s.Timeout != nil && *s.Timeout > 0 {
		return time.Duration(*s.Timeout) * time.Second
	}
	return DefaultTimeoutSeconds * time.Second
}

// RefreshInterval is the minimum time between two live re-renders.
func (s *Settings) RefreshInterval() time.Duration {
	n := DefaultRefreshPerSecond
	if s.RefreshPerSecond != nil && *s.RefreshPerSecond > 0 {
		n = *s.RefreshPerSecond
	}
	return time.Second / time.Duration(n)
}

// ContextLimits returns the per-file and total caps in bytes and whether
// oversized source files are reduced to skeletons.
func (s *Settings) ContextLimits() (maxFile, maxTotal int, skeletonize bool) {
	maxFile, maxTotal, skeletonize = DefaultMaxFileKB*1024, DefaultMaxTotalKB*1024, true
	if s.Context == nil {
		return
	}
	if s.Context.MaxFileKB != nil && *s.Context.MaxFileKB > 0 {
		maxFile = *s.Context.MaxFileKB * 1024
	}
	if s.Context.MaxTotalKB != nil && *s.Context.MaxTotalKB > 0 {
		maxTotal = *s.Context.MaxTotalKB * 1024
	}
	if s.Context.Skeletonize != nil {
		skeletonize = *s.Context.Skeletonize
	}
	return
}

// Encodings maps every profile with an explicit encoding to it, keyed by
// both the profile name and its upstream model id.
func (s *Settings) Encodings() map[string]string {
	out := make(map[string]string)
	for name := range s.Models {
		p, err := s.Resolve(name)
		if err != nil || p.Encoding == nil {
			continue
		}
		out[name] = *p.Encoding
		if p.Model != nil {
			out[*p.Model] = *p.Encoding
		}
	}
	return out
}

func mergeMaps(base, override map[string]interface{}) map[string]interface{} {
	if base == nil {
		base = make(map[string]interface{})
	}
	if override == nil {
		return base
	}

	result := make(map[string]interface{})
	for k, v := range base {
		result[k] = v
	}

	for k, v := range override {
		if baseVal, ok := result[k]; ok {
			baseMap, baseOk := baseVal.(map[string]interface{})
			overrideMap, overrideOk := v.(map[string]interface{})
			if baseOk && overrideOk {
				result[k] = mergeMaps(baseMap, overrideMap)
				continue
			}
		}
		result[k] = v
	}
	return result
}

// Resolve returns the effective profile for name, following extend chains.
// Unknown names resolve to an empty profile so any upstream model id can
// be used without configuration.
func (s *Settings) Resolve(name string) (ModelProfile, error) {
	if s == nil || len(s.Models) == 0 || name == "" {
		return ModelProfile{}, nil
	}
	return s.resolve(name, map[string]bool{})
}

func (s *Settings) resolve(name string, visited map[string]bool) (ModelProfile, error) {
	if visited[name] {
		return ModelProfile{}, fmt.Errorf("circular dependency detected for model: %s", name)
	}
	visited[name] = true

	profile, ok := s.Models[name]
	if !ok {
		return ModelProfile{}, nil
	}
	if profile.Extend == nil {
		return profile, nil
	}

	merged, err := s.resolve(*profile.Extend, visited)
	if err != nil {
		return ModelProfile{}, err
	}

	if profile.Model != nil {
		merged.Model = profile.Model
	}
	if profile.APIBase != nil {
		merged.APIBase = profile.APIBase
	}
	if profile.Encoding != nil {
		merged.Encoding = profile.Encoding
	}
	if profile.Temperature != nil {
		merged.Temperature = profile.Temperature
	}
	merged.ExtraBody = mergeMaps(merged.ExtraBody, profile.ExtraBody)
	merged.Extend = profile.Extend
	merged.Aliases = profile.Aliases
	return merged, nil
}

// UpstreamModel returns the id sent to the service for the configured
// model name.
func (p ModelProfile) UpstreamModel(name string) string {
	if p.Model != nil && *p.Model != "" {
		return *p.Model
	}
	return name
}
