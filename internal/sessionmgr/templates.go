package sessionmgr

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// templatePath returns the on-disk path for a template id, rooted in the
// same sessions directory's templates/ subdirectory (spec §6).
func (s *fileStore) templatePath(id string) string {
	return filepath.Join(s.dir, "templates", id+".template")
}

// SaveTemplate writes a named workspace-tree preset.
func (s *fileStore) SaveTemplate(t *Template) error {
	data, err := yaml.Marshal(t)
	if err != nil {
		return fmt.Errorf("sessionmgr: marshal template %s: %w", t.ID, err)
	}
	return atomicWriteLocked(s.templatePath(t.ID), data)
}

// LoadTemplate reads a named workspace-tree preset.
func (s *fileStore) LoadTemplate(id string) (*Template, error) {
	raw, err := os.ReadFile(s.templatePath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("sessionmgr: read template %s: %w", id, err)
	}
	var t Template
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("sessionmgr: parse template %s: %w", id, err)
	}
	return &t, nil
}

// ListTemplates returns every known template id.
func (s *fileStore) ListTemplates() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.dir, "templates"))
	if err != nil {
		return nil, fmt.Errorf("sessionmgr: list templates: %w", err)
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if filepath.Ext(name) == ".template" {
			ids = append(ids, name[:len(name)-len(".template")])
		}
	}
	return ids, nil
}
