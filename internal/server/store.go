package server

import "sync"

// summaryStore caches each user's health summary for the lifetime of their
// session. Summaries are computed at login and dropped at logout; they are
// never persisted.
type summaryStore struct {
	mu     sync.RWMutex
	byUser map[int64]string
}

func newSummaryStore() *summaryStore {
	return &summaryStore{byUser: make(map[int64]string)}
}

func (s *summaryStore) Get(userID int64) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byUser[userID]
}

func (s *summaryStore) Set(userID int64, summary string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byUser[userID] = summary
}

func (s *summaryStore) Delete(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byUser, userID)
}
