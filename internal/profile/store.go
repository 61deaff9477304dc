// Package profile persists the browser identity replayed by each run.
//
// Stores never return errors to callers: a missing, unreadable or corrupt profile is
// reported as absent so the orchestrator falls through to setup mode.
package profile

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/swapflow/api/schemas"
	"github.com/xkilldash9x/swapflow/internal/config"
)

// Store is durable key/value persistence of named browser identities.
type Store interface {
	Save(ctx context.Context, name string, profile *schemas.BrowserProfile)
	Load(ctx context.Context, name string) (*schemas.BrowserProfile, bool)
	Exists(ctx context.Context, name string) bool
	Delete(ctx context.Context, name string)
}

// New builds the store selected by cfg.Backend.
func New(cfg config.ProfileConfig, logger *zap.Logger) (Store, error) {
	switch cfg.Backend {
	case "", "file":
		return NewFileStore(config.ExpandPath(cfg.Dir), logger)
	case "redis":
		return NewRedisStore(cfg.Redis, logger), nil
	default:
		return nil, fmt.Errorf("unknown profile backend %q", cfg.Backend)
	}
}

var unsafeName = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// sanitizeName maps a profile name onto a safe key or file stem.
func sanitizeName(name string) string {
	cleaned := unsafeName.ReplaceAllString(strings.TrimSpace(name), "_")
	cleaned = strings.Trim(cleaned, ".")
	if cleaned == "" {
		return "default"
	}
	return cleaned
}

// stamp prepares a copy of profile for persistence.
func stamp(name string, profile *schemas.BrowserProfile) *schemas.BrowserProfile {
	record := profile.Clone()
	record.Name = name
	record.SavedAt = time.Now().UTC()
	record.Version = schemas.ProfileVersion
	if record.LocalStorage == nil {
		record.LocalStorage = map[string]string{}
	}
	if record.SessionStorage == nil {
		record.SessionStorage = map[string]string{}
	}
	if record.Cookies == nil {
		record.Cookies = []schemas.Cookie{}
	}
	return record
}
