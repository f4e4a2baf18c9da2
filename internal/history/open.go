package history

import "avatarmap/internal/config"

// OpenFromConfig opens the configured history database, or a no-op Recorder
// when history is disabled.
func OpenFromConfig(cfg *config.Config) (Recorder, error) {
	if cfg == nil || !cfg.History.Enabled {
		return NewNoop(), nil
	}
	return Open(cfg.HistoryPath())
}
