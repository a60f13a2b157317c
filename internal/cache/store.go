// Package cache holds generated module content in memory, keyed by module id,
// and mirrors every entry into an output directory on disk.
package cache

import (
	"bytes"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
)

// Store caches generated content by module id
type Store struct {
	entries  map[string]*Entry
	versions map[string]uint64
	mutex    sync.RWMutex

	outDir        string
	onMirrorError func(id string, err error)
	mirrorMu      sync.Mutex
	pending       sync.WaitGroup

	// Statistics tracking (atomic for thread safety)
	hits          int64
	misses        int64
	puts          int64
	invalidations int64
	mirrorErrors  int64
}

// Entry represents a cached artifact
type Entry struct {
	ID       string
	Content  []byte
	Mirrored bool
}

// Stats is a snapshot of store counters
type Stats struct {
	Entries       int   `json:"entries"`
	Hits          int64 `json:"hits"`
	Misses        int64 `json:"misses"`
	Puts          int64 `json:"puts"`
	Invalidations int64 `json:"invalidations"`
	MirrorErrors  int64 `json:"mirror_errors"`
}

// Option configures a Store
type Option func(*Store)

// WithMirrorErrorHandler registers a callback for failed disk mirror writes.
// Failures never reach the caller of Put.
func WithMirrorErrorHandler(fn func(id string, err error)) Option {
	return func(s *Store) {
		s.onMirrorError = fn
	}
}

// NewStore creates a new store mirroring into outDir. An empty outDir disables
// the disk mirror.
func NewStore(outDir string, opts ...Option) *Store {
	s := &Store{
		entries:  make(map[string]*Entry),
		versions: make(map[string]uint64),
		outDir:   outDir,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OutDir returns the mirror directory
func (s *Store) OutDir() string {
	return s.outDir
}

// Get retrieves the content cached for id
func (s *Store) Get(id string) ([]byte, bool) {
	s.mutex.RLock()
	entry, exists := s.entries[id]
	s.mutex.RUnlock()

	if !exists {
		atomic.AddInt64(&s.misses, 1)
		return nil, false
	}

	atomic.AddInt64(&s.hits, 1)
	return entry.Content, true
}

// Has reports whether id is cached without touching the hit counters.
func (s *Store) Has(id string) bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	_, exists := s.entries[id]
	return exists
}

// Put stores content for id. Memory is updated before Put returns; the disk
// mirror is written in the background.
func (s *Store) Put(id string, content []byte) {
	s.mutex.Lock()
	s.entries[id] = &Entry{ID: id, Content: content}
	s.mutex.Unlock()

	atomic.AddInt64(&s.puts, 1)
	s.mirror(id, content)
}

// Version returns the invalidation generation of id. Pass it to PutIfCurrent
// after computing content so a concurrent invalidation is not overwritten.
func (s *Store) Version(id string) uint64 {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.versions[id]
}

// PutIfCurrent stores content only if id has not been invalidated since
// version was read. It reports whether the entry was stored.
func (s *Store) PutIfCurrent(id string, version uint64, content []byte) bool {
	s.mutex.Lock()
	if s.versions[id] != version {
		s.mutex.Unlock()
		return false
	}
	s.entries[id] = &Entry{ID: id, Content: content}
	s.mutex.Unlock()

	atomic.AddInt64(&s.puts, 1)
	s.mirror(id, content)
	return true
}

// Invalidate removes id. Invalidating a scoped stylesheet also removes its
// generated proxy module.
func (s *Store) Invalidate(id string) {
	ids := []string{id}
	if IsScopedStylesheet(id) {
		ids = append(ids, ProxyID(id))
	}

	s.mutex.Lock()
	for _, key := range ids {
		s.versions[key]++
		if _, exists := s.entries[key]; exists {
			delete(s.entries, key)
			atomic.AddInt64(&s.invalidations, 1)
		}
	}
	s.mutex.Unlock()
}

// Clear drops every entry
func (s *Store) Clear() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	for key := range s.entries {
		s.versions[key]++
	}
	s.entries = make(map[string]*Entry)
}

// Len returns the number of cached ids
func (s *Store) Len() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.entries)
}

// Stats returns store statistics
func (s *Store) Stats() Stats {
	return Stats{
		Entries:       s.Len(),
		Hits:          atomic.LoadInt64(&s.hits),
		Misses:        atomic.LoadInt64(&s.misses),
		Puts:          atomic.LoadInt64(&s.puts),
		Invalidations: atomic.LoadInt64(&s.invalidations),
		MirrorErrors:  atomic.LoadInt64(&s.mirrorErrors),
	}
}

// Wait blocks until queued mirror writes have finished.
func (s *Store) Wait() {
	s.pending.Wait()
}

func (s *Store) mirror(id string, content []byte) {
	if s.outDir == "" {
		return
	}

	s.pending.Add(1)
	go func() {
		defer s.pending.Done()

		// Writes are serialized so the newest content for an id lands last.
		s.mirrorMu.Lock()
		defer s.mirrorMu.Unlock()

		s.mutex.RLock()
		current, exists := s.entries[id]
		s.mutex.RUnlock()
		if !exists || !bytes.Equal(current.Content, content) {
			return
		}

		if err := s.writeFile(id, content); err != nil {
			atomic.AddInt64(&s.mirrorErrors, 1)
			if s.onMirrorError != nil {
				s.onMirrorError(id, err)
			}
			return
		}

		s.mutex.Lock()
		if current, exists := s.entries[id]; exists && bytes.Equal(current.Content, content) {
			current.Mirrored = true
		}
		s.mutex.Unlock()
	}()
}

func (s *Store) writeFile(id string, content []byte) error {
	target := filepath.Join(s.outDir, filepath.FromSlash(id))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	return os.WriteFile(target, content, 0o644)
}

// Mirrored reports whether the entry for id has been written to disk.
func (s *Store) Mirrored(id string) bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	entry, exists := s.entries[id]
	return exists && entry.Mirrored
}
