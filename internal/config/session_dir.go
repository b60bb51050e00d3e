package config

import "path/filepath"

// SessionsDir returns the directory holding persisted session files
// (~/.openmux/sessions/), one "<id>.session" file per Session plus the
// ".active" pointer file (spec §6).
func SessionsDir() string {
	return filepath.Join(ConfigDir(), "sessions")
}

// TemplatesDir returns the directory holding session templates
// (~/.openmux/sessions/templates/<templateId>.template).
func TemplatesDir() string {
	return filepath.Join(SessionsDir(), "templates")
}

// ScrollbackArchiveDir returns the root directory under which each PTY gets
// its own archive subdirectory (spec §5 "one archive directory" per PTY).
func ScrollbackArchiveDir() string {
	return filepath.Join(ConfigDir(), "scrollback")
}
