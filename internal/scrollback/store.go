// Package scrollback implements the two-tier scrollback store: an
// in-memory hot ring plus a per-PTY on-disk append-only archive with a
// bounded LRU line cache (spec §4.B).
package scrollback

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/openmux/openmux/internal/term"
)

// cacheKey identifies one cached archived line within a specific PTY's
// store (the cache is shared process-wide via the Manager).
type cacheKey struct {
	ptyID string
	index int
}

// Store is the scrollback tier for a single PTY.
type Store struct {
	mu sync.Mutex

	ptyID     string
	dir       string
	hotCap    int
	chunkCap  int
	manager   *Manager

	hot           []term.Row
	hotStartIndex int // absolute index of hot[0]

	chunks          []chunkMeta
	nextChunkSeq    int
	archiveDisabled bool
	truncatedOnce   bool
	lastTouched     time.Time
}

// newStore creates a Store rooted at dir (created lazily on first spill).
func newStore(m *Manager, ptyID, dir string, hotCap, chunkCap int) *Store {
	return &Store{
		ptyID:    ptyID,
		dir:      dir,
		hotCap:   hotCap,
		chunkCap: chunkCap,
		manager:  m,
	}
}

// Append pushes rows onto the hot ring, spilling the oldest half to the
// archive whenever the ring overflows its capacity (spec §4.B append).
//
// Spilled chunks are accounted with the Manager only after s.mu is
// released: accountChunk can trigger evictUntilWithinBudget, which walks
// every store (including this one) to find the oldest-touched PTY and
// locks each in turn — calling that while still holding s.mu would
// deadlock this goroutine against itself.
func (s *Store) Append(rows []term.Row) {
	if len(rows) == 0 {
		return
	}
	s.mu.Lock()
	s.lastTouched = time.Now()
	s.hot = append(s.hot, rows...)
	var spilled []chunkMeta
	for len(s.hot) > s.hotCap {
		spill := s.hotCap / 2
		if spill <= 0 {
			spill = 1
		}
		if spill > len(s.hot) {
			spill = len(s.hot)
		}
		if meta, ok := s.spillLocked(s.hot[:spill]); ok {
			spilled = append(spilled, meta)
		}
		s.hot = s.hot[spill:]
		s.hotStartIndex += spill
	}
	s.mu.Unlock()

	if s.manager != nil {
		for _, meta := range spilled {
			s.manager.accountChunk(s, meta)
		}
	}
}

// spillLocked archives the given rows as a new chunk. On write failure the
// store enters archive-disabled mode: the rows are dropped (not archived),
// hot eviction still proceeds, and ScrollbackTruncated is reported once via
// the Manager's notify callback. Callers account the chunk with the
// Manager themselves, after releasing s.mu.
func (s *Store) spillLocked(rows []term.Row) (chunkMeta, bool) {
	if s.archiveDisabled {
		return chunkMeta{}, false
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		s.disableArchiveLocked()
		return chunkMeta{}, false
	}
	startIndex := s.hotStartIndex
	meta, err := writeChunk(s.dir, s.nextChunkSeq, startIndex, chunkSlice(rows))
	if err != nil {
		s.disableArchiveLocked()
		return chunkMeta{}, false
	}
	s.nextChunkSeq++
	s.chunks = append(s.chunks, meta)
	return meta, true
}

func chunkSlice(rows []term.Row) []term.Row {
	out := make([]term.Row, len(rows))
	copy(out, rows)
	return out
}

func (s *Store) disableArchiveLocked() {
	if s.archiveDisabled {
		return
	}
	s.archiveDisabled = true
	if !s.truncatedOnce {
		s.truncatedOnce = true
		if s.manager != nil {
			s.manager.notifyTruncated(s.ptyID)
		}
	}
}

// GetLine returns the row at an absolute index, transparently paging from
// the archive with a bounded LRU cache. It returns (zero, false) when the
// index has never been appended or its archived chunk has since been
// evicted (spec §8 property 4).
func (s *Store) GetLine(absoluteIndex int) (term.Row, bool) {
	s.mu.Lock()
	if absoluteIndex >= s.hotStartIndex {
		offset := absoluteIndex - s.hotStartIndex
		if offset >= 0 && offset < len(s.hot) {
			row := s.hot[offset]
			s.mu.Unlock()
			return row, true
		}
		s.mu.Unlock()
		return term.Row{}, false
	}
	meta, posInChunk, ok := s.locateLocked(absoluteIndex)
	s.mu.Unlock()
	if !ok {
		return term.Row{}, false
	}

	if s.manager != nil {
		if row, ok := s.manager.cacheGet(s.ptyID, absoluteIndex); ok {
			return row, true
		}
	}
	row, err := readChunkLine(meta.path, posInChunk)
	if err != nil {
		return term.Row{}, false
	}
	if s.manager != nil {
		s.manager.cachePut(s.ptyID, absoluteIndex, row)
	}
	return row, true
}

func (s *Store) locateLocked(absoluteIndex int) (chunkMeta, int, bool) {
	for _, c := range s.chunks {
		if absoluteIndex >= c.startIndex && absoluteIndex < c.startIndex+c.count {
			return c, absoluteIndex - c.startIndex, true
		}
	}
	return chunkMeta{}, 0, false
}

// GetLength returns the count of archived plus hot lines ever appended
// (not yet evicted lines still count toward the absolute index space).
func (s *Store) GetLength() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hotStartIndex + len(s.hot)
}

// ClearArchiveCache drops the LRU cache while preserving chunks on disk,
// used when entering the alternate screen so stale selection text is not
// served from cache (spec §4.B).
func (s *Store) ClearArchiveCache() {
	if s.manager != nil {
		s.manager.purgePTY(s.ptyID)
	}
}

// ArchiveDisabled reports whether this store has fallen back to hot-only
// mode after a disk write failure.
func (s *Store) ArchiveDisabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.archiveDisabled
}

// HotRingFull reports whether the hot ring has ever overflowed into the
// archive, or is currently sitting at capacity: the trigger for
// ScrollState.IsAtScrollbackLimit (spec §3: "a full hot ring implies
// isAtScrollbackLimit").
func (s *Store) HotRingFull() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.chunks) > 0 || len(s.hot) >= s.hotCap
}

// evictOldestChunk removes this store's oldest chunk from disk and
// its index entry. Lines within the evicted range become unreachable
// (GetLine returns false for them), which is permitted by spec §8
// property 4. It takes s.mu itself, so the caller must not hold it.
func (s *Store) evictOldestChunk() (bytes int64, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.chunks) == 0 {
		return 0, false
	}
	victim := s.chunks[0]
	os.Remove(victim.path)
	s.chunks = s.chunks[1:]
	return victim.bytes, true
}

// Manager coordinates scrollback Stores across every PTY: it enforces the
// global archive byte budget (evicting the oldest chunk of the
// oldest-touched PTY first) and owns the shared LRU line cache.
type Manager struct {
	mu sync.Mutex

	baseDir       string
	hotCap        int
	chunkCap      int
	perPTYMaxB    int64
	globalMaxB    int64
	usedB         int64
	perPTYUsed    map[string]int64
	stores        map[string]*Store
	cache         *lru.Cache[cacheKey, term.Row]
	onTruncated   func(ptyID string)
}

// NewManager creates a Manager rooted at baseDir (one subdirectory per
// PTY). hotCap and chunkLines come from OPENMUX_SCROLLBACK_HOT_LIMIT and
// OPENMUX_SCROLLBACK_ARCHIVE_CHUNK_LINES; perPTYMaxMB/globalMaxMB from the
// matching env vars (spec §6).
func NewManager(baseDir string, hotCap, chunkLines, perPTYMaxMB, globalMaxMB int, onTruncated func(ptyID string)) *Manager {
	cache, _ := lru.New[cacheKey, term.Row](4096)
	return &Manager{
		baseDir:     baseDir,
		hotCap:      hotCap,
		chunkCap:    chunkLines,
		perPTYMaxB:  int64(perPTYMaxMB) * 1024 * 1024,
		globalMaxB:  int64(globalMaxMB) * 1024 * 1024,
		perPTYUsed:  make(map[string]int64),
		stores:      make(map[string]*Store),
		cache:       cache,
		onTruncated: onTruncated,
	}
}

// Store returns (creating if necessary) the scrollback Store for ptyID.
func (m *Manager) Store(ptyID string) *Store {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.stores[ptyID]; ok {
		return s
	}
	s := newStore(m, ptyID, filepath.Join(m.baseDir, ptyID), m.hotCap, m.chunkCap)
	m.stores[ptyID] = s
	return s
}

// Remove releases a PTY's store (called on PTY destroy), purges its
// cached lines and deletes its archive directory, mirroring "one archive
// directory... released on destroy via a guaranteed teardown path"
// (spec §5).
func (m *Manager) Remove(ptyID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.stores, ptyID)
	delete(m.perPTYUsed, ptyID)
	m.purgePTY(ptyID)
	os.RemoveAll(filepath.Join(m.baseDir, ptyID))
}

func (m *Manager) accountChunk(s *Store, meta chunkMeta) {
	m.mu.Lock()
	m.usedB += meta.bytes
	m.perPTYUsed[s.ptyID] += meta.bytes
	needEvict := m.usedB > m.globalMaxB || m.perPTYUsed[s.ptyID] > m.perPTYMaxB
	m.mu.Unlock()
	if needEvict {
		m.evictUntilWithinBudget()
	}
}

// evictUntilWithinBudget evicts the oldest chunk of the oldest-touched PTY
// repeatedly until the global budget (and that PTY's own budget) is
// satisfied, or there is nothing left to evict.
func (m *Manager) evictUntilWithinBudget() {
	for {
		m.mu.Lock()
		if m.usedB <= m.globalMaxB {
			overBudget := false
			for id, used := range m.perPTYUsed {
				if used > m.perPTYMaxB {
					overBudget = true
					_ = id
					break
				}
			}
			if !overBudget {
				m.mu.Unlock()
				return
			}
		}
		oldestID, oldestStore := m.oldestTouchedLocked()
		m.mu.Unlock()
		if oldestStore == nil {
			return
		}
		bytes, ok := oldestStore.evictOldestChunk()
		if !ok {
			// Nothing left to evict for this PTY; stop to avoid spinning.
			return
		}
		m.mu.Lock()
		m.usedB -= bytes
		m.perPTYUsed[oldestID] -= bytes
		m.mu.Unlock()
	}
}

func (m *Manager) oldestTouchedLocked() (string, *Store) {
	var oldestID string
	var oldest *Store
	var oldestTime time.Time
	for id, s := range m.stores {
		s.mu.Lock()
		lt := s.lastTouched
		hasChunks := len(s.chunks) > 0
		s.mu.Unlock()
		if !hasChunks {
			continue
		}
		if oldest == nil || lt.Before(oldestTime) {
			oldest = s
			oldestID = id
			oldestTime = lt
		}
	}
	return oldestID, oldest
}

func (m *Manager) cacheGet(ptyID string, index int) (term.Row, bool) {
	return m.cache.Get(cacheKey{ptyID, index})
}

func (m *Manager) cachePut(ptyID string, index int, row term.Row) {
	m.cache.Add(cacheKey{ptyID, index}, row)
}

func (m *Manager) purgePTY(ptyID string) {
	for _, k := range m.cache.Keys() {
		if k.ptyID == ptyID {
			m.cache.Remove(k)
		}
	}
}

func (m *Manager) notifyTruncated(ptyID string) {
	if m.onTruncated != nil {
		m.onTruncated(ptyID)
	}
}
