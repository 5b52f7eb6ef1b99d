package driven

import "github.com/custodia-labs/sercha-rag/internal/core/domain"

// ConfigStore provides access to application configuration.
// Implementations handle persistence (e.g., TOML files) and environment
// overrides.
type ConfigStore interface {
	// Settings returns a copy of the loaded settings.
	Settings() domain.Settings

	// Save validates and persists settings.
	Save(settings domain.Settings) error

	// Load rereads the configuration from storage.
	Load() error

	// Path returns the configuration file path.
	Path() string
}
