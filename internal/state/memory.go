package state

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps all state in process memory. It is the default backend
// and the substrate the file backend builds on.
type MemoryStore struct {
	mu sync.RWMutex

	routeCursors    map[string]int
	candidateStates map[string]*CandidateState
	bucketUsage     map[string]map[string]*BucketUsage

	candidateTTL time.Duration
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithCandidateTTL overrides the candidate-state retention TTL.
func WithCandidateTTL(ttl time.Duration) MemoryOption {
	return func(s *MemoryStore) {
		if ttl > 0 {
			s.candidateTTL = ttl
		}
	}
}

// NewMemory creates an empty in-memory store.
func NewMemory(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		routeCursors:    make(map[string]int),
		candidateStates: make(map[string]*CandidateState),
		bucketUsage:     make(map[string]map[string]*BucketUsage),
		candidateTTL:    DefaultCandidateTTL,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *MemoryStore) GetRouteCursor(_ context.Context, routeKey string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.routeCursors[routeKey], nil
}

func (s *MemoryStore) SetRouteCursor(_ context.Context, routeKey string, v int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v < 0 {
		v = 0
	}
	s.routeCursors[routeKey] = v
	return nil
}

func (s *MemoryStore) GetCandidateState(_ context.Context, candidateKey string) (*CandidateState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.candidateStates[candidateKey]
	if !ok {
		return nil, nil
	}
	cp := *st
	return &cp, nil
}

func (s *MemoryStore) SetCandidateState(_ context.Context, candidateKey string, st *CandidateState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st == nil {
		delete(s.candidateStates, candidateKey)
		return nil
	}
	cp := *st
	s.candidateStates[candidateKey] = &cp
	return nil
}

func (s *MemoryStore) ReadBucketUsage(_ context.Context, bucketKey, windowKey string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if windows, ok := s.bucketUsage[bucketKey]; ok {
		if u, ok := windows[windowKey]; ok {
			return u.Count, nil
		}
	}
	return 0, nil
}

func (s *MemoryStore) IncrementBucketUsage(_ context.Context, bucketKey, windowKey string, amount int, expiresAt, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	windows, ok := s.bucketUsage[bucketKey]
	if !ok {
		windows = make(map[string]*BucketUsage)
		s.bucketUsage[bucketKey] = windows
	}
	u, ok := windows[windowKey]
	if !ok {
		u = &BucketUsage{ExpiresAt: expiresAt.UnixMilli()}
		windows[windowKey] = u
	}
	u.Count += amount
	u.UpdatedAt = now.UnixMilli()
	return u.Count, nil
}

func (s *MemoryStore) PruneExpired(_ context.Context, now time.Time) (PruneResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pruneLocked(now), nil
}

// pruneLocked removes expired rows. Caller must hold s.mu.
func (s *MemoryStore) pruneLocked(now time.Time) PruneResult {
	nowMs := now.UnixMilli()
	var res PruneResult
	for key, windows := range s.bucketUsage {
		for wk, u := range windows {
			if u.ExpiresAt > 0 && u.ExpiresAt <= nowMs {
				delete(windows, wk)
				res.PrunedBuckets++
			}
		}
		if len(windows) == 0 {
			delete(s.bucketUsage, key)
		}
	}
	for key, st := range s.candidateStates {
		if st.expiresAtWithTTL(s.candidateTTL) <= nowMs {
			delete(s.candidateStates, key)
			res.PrunedCandidateStates++
		}
	}
	return res
}

func (s *MemoryStore) Close() error { return nil }

// Snapshot returns a deep copy of all state, used by the file backend and
// the admin introspection endpoints.
func (s *MemoryStore) Snapshot() (map[string]int, map[string]CandidateState, map[string]map[string]BucketUsage) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cursors := make(map[string]int, len(s.routeCursors))
	for k, v := range s.routeCursors {
		cursors[k] = v
	}
	states := make(map[string]CandidateState, len(s.candidateStates))
	for k, v := range s.candidateStates {
		states[k] = *v
	}
	usage := make(map[string]map[string]BucketUsage, len(s.bucketUsage))
	for k, windows := range s.bucketUsage {
		cp := make(map[string]BucketUsage, len(windows))
		for wk, u := range windows {
			cp[wk] = *u
		}
		usage[k] = cp
	}
	return cursors, states, usage
}

// replace swaps in a full state snapshot, used by the file backend on load.
func (s *MemoryStore) replace(cursors map[string]int, states map[string]CandidateState, usage map[string]map[string]BucketUsage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routeCursors = make(map[string]int, len(cursors))
	for k, v := range cursors {
		s.routeCursors[k] = v
	}
	s.candidateStates = make(map[string]*CandidateState, len(states))
	for k, v := range states {
		cp := v
		s.candidateStates[k] = &cp
	}
	s.bucketUsage = make(map[string]map[string]*BucketUsage, len(usage))
	for k, windows := range usage {
		cp := make(map[string]*BucketUsage, len(windows))
		for wk, u := range windows {
			ucp := u
			cp[wk] = &ucp
		}
		s.bucketUsage[k] = cp
	}
}
