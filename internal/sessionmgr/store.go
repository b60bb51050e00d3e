package sessionmgr

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"gopkg.in/yaml.v3"
)

// ErrSessionNotFound is returned by Load/Delete for an unknown session id.
var ErrSessionNotFound = errors.New("sessionmgr: session not found")

// SessionStore is the opaque persistence interface the Manager binds to
// (spec §4.G). A SessionStore implementation owns the on-disk (or
// otherwise durable) representation entirely; the Manager never reaches
// past this interface.
type SessionStore interface {
	List() ([]string, error)
	Save(id string, s *Session) error
	Load(id string) (*Session, error)
	Delete(id string) error
	SetActive(id string) error
	GetActive() (string, error)
}

// fileStore is a SessionStore backed by one YAML file per session plus a
// `.active` pointer file, following the layout spec §6 documents: each
// session lives at `<sessionsDir>/<id>.session`, the active pointer at
// `<sessionsDir>/.active`, and templates under
// `<sessionsDir>/templates/<templateId>.template`. Writes go through a
// temp-file-plus-rename for atomicity and a `flock` advisory lock so two
// processes (or a crashed save mid-write) never interleave into a torn
// file — the lock's only job is serializing the rewrite, not long-term
// exclusion.
type fileStore struct {
	dir string
}

// NewFileStore creates a SessionStore rooted at dir, creating dir (and
// its templates subdirectory) if necessary.
func NewFileStore(dir string) (SessionStore, error) {
	if err := os.MkdirAll(filepath.Join(dir, "templates"), 0o755); err != nil {
		return nil, fmt.Errorf("sessionmgr: create sessions dir: %w", err)
	}
	return &fileStore{dir: dir}, nil
}

func (s *fileStore) sessionPath(id string) string {
	return filepath.Join(s.dir, id+".session")
}

func (s *fileStore) activePath() string {
	return filepath.Join(s.dir, ".active")
}

func (s *fileStore) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("sessionmgr: list sessions: %w", err)
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if filepath.Ext(name) == ".session" {
			ids = append(ids, name[:len(name)-len(".session")])
		}
	}
	return ids, nil
}

func (s *fileStore) Save(id string, sess *Session) error {
	data, err := yaml.Marshal(sess)
	if err != nil {
		return fmt.Errorf("sessionmgr: marshal session %s: %w", id, err)
	}
	return atomicWriteLocked(s.sessionPath(id), data)
}

func (s *fileStore) Load(id string) (*Session, error) {
	raw, err := os.ReadFile(s.sessionPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("sessionmgr: read session %s: %w", id, err)
	}
	var sess Session
	if err := yaml.Unmarshal(raw, &sess); err != nil {
		return nil, fmt.Errorf("sessionmgr: parse session %s: %w", id, err)
	}
	return &sess, nil
}

func (s *fileStore) Delete(id string) error {
	if err := os.Remove(s.sessionPath(id)); err != nil {
		if os.IsNotExist(err) {
			return ErrSessionNotFound
		}
		return fmt.Errorf("sessionmgr: delete session %s: %w", id, err)
	}
	return nil
}

func (s *fileStore) SetActive(id string) error {
	return atomicWriteLocked(s.activePath(), []byte(id))
}

func (s *fileStore) GetActive() (string, error) {
	raw, err := os.ReadFile(s.activePath())
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("sessionmgr: read active pointer: %w", err)
	}
	return string(raw), nil
}

// atomicWriteLocked takes an flock around a write-to-temp-then-rename so
// a crash mid-write leaves the previous file intact rather than a
// half-written one.
func atomicWriteLocked(path string, data []byte) error {
	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("sessionmgr: lock %s: %w", path, err)
	}
	defer lock.Unlock()

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("sessionmgr: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("sessionmgr: rename %s: %w", tmp, err)
	}
	return nil
}
