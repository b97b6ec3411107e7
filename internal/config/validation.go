package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
)

// Validate checks the configuration for values that would make the pipeline
// destructive or ambiguous. Every failure is a fatal ConfigError.
func (c *Config) Validate() error {
	if err := requireNonEmpty(map[string]string{
		"paths.source":     c.Paths.Source,
		"paths.output":     c.Paths.Output,
		"paths.manifest":   c.Paths.Manifest,
		"styles.entry":     c.Styles.Entry,
		"static.pattern":   c.Static.Pattern,
		"assets.pattern":   c.Assets.Pattern,
		"styles.watch":     c.Styles.Watch,
		"scripts.manifest": c.Scripts.Manifest,
		"styles.manifest":  c.Styles.Manifest,
	}); err != nil {
		return err
	}

	for field, name := range map[string]string{
		"styles.manifest":  c.Styles.Manifest,
		"scripts.manifest": c.Scripts.Manifest,
	} {
		if err := validateManifestName(field, name); err != nil {
			return err
		}
	}
	if c.Styles.Manifest == c.Scripts.Manifest {
		return errors.ConfigError("styles and scripts manifests must have different names").
			WithContext("manifest", c.Styles.Manifest).Build()
	}

	out := filepath.Clean(c.Paths.Output)
	if out == filepath.Clean(c.Paths.Source) {
		return errors.ConfigError("paths.output must differ from paths.source").
			WithContext("path", c.Paths.Output).Build()
	}
	if isWithin(filepath.Clean(c.Paths.Manifest), out) {
		return errors.ConfigError("paths.manifest must not live inside paths.output").
			WithContext("manifest", c.Paths.Manifest).
			WithContext("output", c.Paths.Output).Build()
	}

	if len(c.Scripts.Entries) == 0 {
		return errors.ConfigError("scripts.entries must name at least one entry point").Build()
	}
	for name, path := range c.Scripts.Entries {
		if strings.TrimSpace(name) == "" || strings.ContainsAny(name, `/\`) {
			return errors.ConfigError(fmt.Sprintf("invalid script entry name %q", name)).Build()
		}
		if strings.TrimSpace(path) == "" {
			return errors.ConfigError(fmt.Sprintf("script entry %q has no path", name)).Build()
		}
	}

	if c.Serve.Port < 0 || c.Serve.Port > 65535 {
		return errors.ConfigError(fmt.Sprintf("serve.port out of range: %d", c.Serve.Port)).Build()
	}
	if c.Watch.Debounce < 0 {
		return errors.ConfigError("watch.debounce must not be negative").Build()
	}
	return nil
}

func requireNonEmpty(fields map[string]string) error {
	for field, value := range fields {
		if strings.TrimSpace(value) == "" {
			return errors.ConfigError(fmt.Sprintf("%s must not be empty", field)).
				WithContext("field", field).Build()
		}
	}
	return nil
}

// validateManifestName accepts plain *.json file names only; manifests always
// live directly inside paths.manifest.
func validateManifestName(field, name string) error {
	if filepath.Base(name) != name || name == "." || name == ".." {
		return errors.ConfigError(fmt.Sprintf("%s must be a plain file name, got %q", field, name)).
			WithContext("field", field).Build()
	}
	if filepath.Ext(name) != ".json" {
		return errors.ConfigError(fmt.Sprintf("%s must have a .json extension, got %q", field, name)).
			WithContext("field", field).Build()
	}
	return nil
}

// isWithin reports whether path equals dir or is nested below it.
func isWithin(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
