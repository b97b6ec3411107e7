package config

import (
	"os"
	"strings"
)

// BuildMode selects between the development and production pipelines.
// It is resolved once per process and passed explicitly to every task.
type BuildMode string

const (
	ModeDevelopment BuildMode = "development"
	ModeProduction  BuildMode = "production"
)

// IsDevelopment reports whether m is the development mode.
func (m BuildMode) IsDevelopment() bool { return m == ModeDevelopment }

// IsProduction reports whether m is the production mode.
func (m BuildMode) IsProduction() bool { return m == ModeProduction }

func (m BuildMode) String() string { return string(m) }

// ParseMode maps an environment value to a BuildMode. Empty or "development"
// selects development; every other value selects production.
func ParseMode(raw string) BuildMode {
	v := strings.TrimSpace(raw)
	if v == "" || v == string(ModeDevelopment) {
		return ModeDevelopment
	}
	return ModeProduction
}

// ResolveMode reads the configured mode variable from the environment.
func (c *Config) ResolveMode() BuildMode {
	name := c.ModeEnv
	if name == "" {
		name = DefaultModeEnv
	}
	return ParseMode(os.Getenv(name))
}
