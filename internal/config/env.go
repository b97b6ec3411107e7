package config

import (
	"errors"
	"os"

	"github.com/joho/godotenv"
)

// envFiles are tried in order; variables already present in the process
// environment are never overwritten.
var envFiles = []string{".env", ".env.local"}

// LoadEnvFiles loads KEY=VALUE pairs from .env and .env.local if present.
// It returns an error only when none of the files could be loaded.
func LoadEnvFiles() error {
	var loaded bool
	var errs []error
	for _, path := range envFiles {
		if _, err := os.Stat(path); err != nil {
			errs = append(errs, err)
			continue
		}
		if err := godotenv.Load(path); err != nil {
			errs = append(errs, err)
			continue
		}
		loaded = true
	}
	if !loaded {
		return errors.Join(errs...)
	}
	return nil
}
