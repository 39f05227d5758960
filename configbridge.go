package gutter

import (
	"path/filepath"

	"github.com/gossip-lsp/gutter/config"
)

// configBridge loads the workspace config file into the server's settings
// store and keeps watching it.
type configBridge struct {
	reloader *config.Reloader[Config]
	watcher  *config.Watcher
}

// startConfig loads <root>/<configFile>. Poll interval and worker count are
// read once, before the manager exists; settings follow the file for the
// life of the server.
func (s *Server) startConfig(root string) {
	path := filepath.Join(root, s.configFile)
	defaults := &Config{
		Settings:     *s.settings.Get(),
		PollInterval: s.pollInterval,
		Workers:      s.workers,
		Baseline:     DefaultConfig().Baseline,
	}

	first := true
	apply := func(cfg *Config) {
		if first {
			first = false
			if cfg.PollInterval > 0 {
				s.pollInterval = cfg.PollInterval
			}
			s.workers = cfg.Workers
		}
		settings := cfg.Settings
		if *s.settings.Get() != settings {
			s.settings.Swap(&settings)
			s.logger.Info("settings loaded", "path", path, "ignoreLeadingTrailingWhitespace", settings.IgnoreLeadingTrailingWhitespace)
		}
	}

	b := &configBridge{reloader: config.NewReloader(path, defaults, apply, s.logger)}
	if err := b.reloader.Reload(); err != nil {
		first = false
	}
	w, err := b.reloader.Watch()
	if err != nil {
		// Watching is best-effort.
		s.logger.Warn("config watcher failed to start", "path", path, "error", err)
	}
	b.watcher = w
	s.config = b
}

func (b *configBridge) close() {
	if b.watcher != nil {
		_ = b.watcher.Close()
	}
}
