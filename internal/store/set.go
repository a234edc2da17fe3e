package store

import "sync"

// Set is a collection of logs keyed by symbol, created lazily on first use.
// Every log in a set shares one capacity.
type Set[T any] struct {
	mu       sync.RWMutex
	logs     map[string]*Log[T]
	capacity int
}

// NewSet creates an empty keyed collection of logs.
func NewSet[T any](capacity int) *Set[T] {
	return &Set[T]{logs: make(map[string]*Log[T]), capacity: capacity}
}

// Get returns the log for key, creating it if needed.
func (s *Set[T]) Get(key string) *Log[T] {
	s.mu.RLock()
	l, ok := s.logs[key]
	s.mu.RUnlock()
	if ok {
		return l
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.logs[key]; ok {
		return l
	}
	l = NewLog[T](s.capacity)
	s.logs[key] = l
	return l
}

// Keys returns the symbols that currently have a log.
func (s *Set[T]) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.logs))
	for k := range s.logs {
		keys = append(keys, k)
	}
	return keys
}
