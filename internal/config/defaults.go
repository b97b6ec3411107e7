package config

import "time"

const (
	DefaultConfigFile = "assetpipe.yaml"
	DefaultModeEnv    = "NODE_ENV"
	DefaultDebounce   = 100 * time.Millisecond
)

// Default returns the configuration matching the conventional project layout:
// sources under src/, build output under dist/, manifests under manifest/.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// applyDefaults fills every zero-valued field. Explicit values are never overwritten.
func applyDefaults(cfg *Config) {
	if cfg.ModeEnv == "" {
		cfg.ModeEnv = DefaultModeEnv
	}

	if cfg.Paths.Source == "" {
		cfg.Paths.Source = "src"
	}
	if cfg.Paths.Output == "" {
		cfg.Paths.Output = "dist"
	}
	if cfg.Paths.Manifest == "" {
		cfg.Paths.Manifest = "manifest"
	}

	if cfg.Styles.Entry == "" {
		cfg.Styles.Entry = "src/css/index.scss"
	}
	if cfg.Styles.OutputDir == "" {
		cfg.Styles.OutputDir = "css"
	}
	if cfg.Styles.Manifest == "" {
		cfg.Styles.Manifest = "css.json"
	}
	if cfg.Styles.Watch == "" {
		cfg.Styles.Watch = "src/css/*.scss"
	}
	if cfg.Styles.SassBin == "" {
		cfg.Styles.SassBin = "sass"
	}

	if len(cfg.Scripts.Entries) == 0 {
		cfg.Scripts.Entries = map[string]string{"index": "src/js/index.js"}
	}
	if cfg.Scripts.OutputDir == "" {
		cfg.Scripts.OutputDir = "js"
	}
	if cfg.Scripts.PublicPath == "" {
		cfg.Scripts.PublicPath = "/js/"
	}
	if cfg.Scripts.Manifest == "" {
		cfg.Scripts.Manifest = "webpack.json"
	}
	if cfg.Scripts.Target == "" {
		cfg.Scripts.Target = "es2015"
	}

	if cfg.Static.Pattern == "" {
		cfg.Static.Pattern = "src/images/*.{svg,png}"
	}
	if cfg.Static.OutputDir == "" {
		cfg.Static.OutputDir = "images"
	}

	if cfg.Assets.Pattern == "" {
		cfg.Assets.Pattern = "src/*.html"
	}

	// A zero port means the serve block was omitted entirely; live reload is on by default then.
	if cfg.Serve.Port == 0 {
		cfg.Serve.Port = 3000
		cfg.Serve.LiveReload = true
	}

	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = DefaultDebounce
	}

	if cfg.History.Path == "" {
		cfg.History.Path = ".assetpipe/history.db"
	}
}
