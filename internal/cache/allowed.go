package cache

import (
	"sync"

	"github.com/google/uuid"
)

// AllowedTeamsEntry is the cached result of an allowed-teams computation
// for one player in one competition.
type AllowedTeamsEntry struct {
	Teams    []string
	WasReset bool
}

// Store caches allowed-teams results. Correctness depends on callers
// invalidating synchronously after every pick mutation, so entries never
// expire on their own.
type Store interface {
	Get(competitionID, userID uuid.UUID) (AllowedTeamsEntry, bool)
	Set(competitionID, userID uuid.UUID, entry AllowedTeamsEntry)
	Invalidate(competitionID, userID uuid.UUID)
	InvalidateCompetition(competitionID uuid.UUID)
}

type key struct {
	competitionID uuid.UUID
	userID        uuid.UUID
}

type MemoryStore struct {
	mu      sync.RWMutex
	entries map[key]AllowedTeamsEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[key]AllowedTeamsEntry)}
}

func (s *MemoryStore) Get(competitionID, userID uuid.UUID) (AllowedTeamsEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[key{competitionID, userID}]
	return entry, ok
}

func (s *MemoryStore) Set(competitionID, userID uuid.UUID, entry AllowedTeamsEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key{competitionID, userID}] = entry
}

func (s *MemoryStore) Invalidate(competitionID, userID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key{competitionID, userID})
}

// InvalidateCompetition drops every player's entry for a competition.
// Used when round processing changes used-team history for everyone.
func (s *MemoryStore) InvalidateCompetition(competitionID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.entries {
		if k.competitionID == competitionID {
			delete(s.entries, k)
		}
	}
}
