// Package config resolves the engine's on-disk locations and the
// OPENMUX_* environment variables (spec §6).
package config

import (
	"os"
	"path/filepath"
	"strconv"
)

// EngineConfig holds the tunables spec §6 lists as environment variables,
// each with the spec's documented default.
type EngineConfig struct {
	ScrollbackHotLimit           int    // OPENMUX_SCROLLBACK_HOT_LIMIT
	ScrollbackArchiveMaxMB       int    // OPENMUX_SCROLLBACK_ARCHIVE_MAX_MB
	ScrollbackArchiveGlobalMaxMB int    // OPENMUX_SCROLLBACK_ARCHIVE_GLOBAL_MAX_MB
	ScrollbackArchiveChunkLines  int    // OPENMUX_SCROLLBACK_ARCHIVE_CHUNK_LINES
	OriginalCWD                  string // OPENMUX_ORIGINAL_CWD
}

// LoadEngineConfig reads the OPENMUX_* environment variables, applying the
// spec's defaults for anything unset or unparsable.
func LoadEngineConfig() EngineConfig {
	cwd, _ := os.Getwd()
	return EngineConfig{
		ScrollbackHotLimit:           envInt("OPENMUX_SCROLLBACK_HOT_LIMIT", 2000),
		ScrollbackArchiveMaxMB:       envInt("OPENMUX_SCROLLBACK_ARCHIVE_MAX_MB", 200),
		ScrollbackArchiveGlobalMaxMB: envInt("OPENMUX_SCROLLBACK_ARCHIVE_GLOBAL_MAX_MB", 2000),
		ScrollbackArchiveChunkLines:  envInt("OPENMUX_SCROLLBACK_ARCHIVE_CHUNK_LINES", 2000),
		OriginalCWD:                  envOr("OPENMUX_ORIGINAL_CWD", cwd),
	}
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// ConfigDir returns the openmux configuration directory (~/.openmux/).
func ConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".openmux")
	}
	return filepath.Join(home, ".openmux")
}
