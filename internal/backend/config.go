package backend

import (
	"errors"
	"fmt"
	"strings"

	"expensa/internal/config"
)

// FromAppConfig reads DATA_BACKEND and SQLITE_DB_PATH out of the app config.
// The backend name is matched case-insensitively.
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, errors.New("app config is nil")
	}
	cfg := Config{
		Type:         BackendType(strings.ToLower(strings.TrimSpace(appConfig.DataBackend))),
		SQLiteDBPath: strings.TrimSpace(appConfig.SQLiteDBPath),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("%w: %q", ErrUnknownBackend, c.Type)
	}
	if c.Type == SQLiteBackend && c.SQLiteDBPath == "" {
		return ErrMissingDBPath
	}
	return nil
}
