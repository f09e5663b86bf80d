package catalog

import (
	"sort"
	"strings"
	"sync"
)

func lower(s string) string { return strings.ToLower(s) }

// PathSet is a case-insensitive set of file paths. Membership is by path
// rather than item ID so it survives items being recreated on reload.
type PathSet struct {
	mu       sync.RWMutex
	paths    map[string]string
	onChange []func(paths []string)
}

// NewPathSet creates an empty set.
func NewPathSet() *PathSet {
	return &PathSet{paths: make(map[string]string)}
}

// Init replaces the contents without notifying subscribers. Used to seed the
// set from persisted state.
func (s *PathSet) Init(paths []string) {
	s.mu.Lock()
	s.paths = make(map[string]string, len(paths))
	for _, p := range paths {
		if p != "" {
			s.paths[lower(p)] = p
		}
	}
	s.mu.Unlock()
}

// Add inserts path. It reports whether the set changed.
func (s *PathSet) Add(path string) bool {
	s.mu.Lock()
	k := lower(path)
	if _, ok := s.paths[k]; ok || path == "" {
		s.mu.Unlock()
		return false
	}
	s.paths[k] = path
	s.mu.Unlock()
	s.notify()
	return true
}

// Remove deletes path. It reports whether the set changed.
func (s *PathSet) Remove(path string) bool {
	s.mu.Lock()
	k := lower(path)
	if _, ok := s.paths[k]; !ok {
		s.mu.Unlock()
		return false
	}
	delete(s.paths, k)
	s.mu.Unlock()
	s.notify()
	return true
}

// Contains reports whether path is in the set.
func (s *PathSet) Contains(path string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.paths[lower(path)]
	return ok
}

// Clear empties the set.
func (s *PathSet) Clear() {
	s.mu.Lock()
	n := len(s.paths)
	s.paths = make(map[string]string)
	s.mu.Unlock()
	if n > 0 {
		s.notify()
	}
}

// Len returns the number of paths.
func (s *PathSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.paths)
}

// Paths returns the members in their original spelling, sorted.
func (s *PathSet) Paths() []string {
	s.mu.RLock()
	out := make([]string, 0, len(s.paths))
	for _, p := range s.paths {
		out = append(out, p)
	}
	s.mu.RUnlock()
	sort.Strings(out)
	return out
}

// OnChange registers fn to receive the full membership after every change.
func (s *PathSet) OnChange(fn func(paths []string)) {
	s.mu.Lock()
	s.onChange = append(s.onChange, fn)
	s.mu.Unlock()
}

func (s *PathSet) notify() {
	s.mu.RLock()
	subs := append([]func([]string){}, s.onChange...)
	s.mu.RUnlock()
	if len(subs) == 0 {
		return
	}
	paths := s.Paths()
	for _, fn := range subs {
		fn(paths)
	}
}
