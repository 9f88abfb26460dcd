package feed

import (
	"sort"
	"sync"
)

// SubscriptionSet is the set of currently desired topics. It survives
// reconnects: the connection manager replays the full snapshot on every new
// connection. Safe for concurrent mutation from the watch path and
// concurrent reads from the replay step.
type SubscriptionSet struct {
	mu     sync.RWMutex
	topics map[Topic]struct{}
}

// NewSubscriptionSet creates an empty subscription set.
func NewSubscriptionSet() *SubscriptionSet {
	return &SubscriptionSet{
		topics: make(map[Topic]struct{}),
	}
}

// Add records a desired topic. Idempotent; returns true only if the topic
// was not already present.
func (s *SubscriptionSet) Add(t Topic) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.topics[t]; exists {
		return false
	}
	s.topics[t] = struct{}{}
	return true
}

// Remove drops a topic. Returns true if the topic was present.
func (s *SubscriptionSet) Remove(t Topic) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.topics[t]; !exists {
		return false
	}
	delete(s.topics, t)
	return true
}

// Contains reports whether the topic is currently desired.
func (s *SubscriptionSet) Contains(t Topic) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, exists := s.topics[t]
	return exists
}

// Len returns the number of desired topics.
func (s *SubscriptionSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.topics)
}

// Snapshot returns a sorted copy of the current topics. The snapshot
// reflects every Add and Remove that completed before the call.
func (s *SubscriptionSet) Snapshot() []Topic {
	s.mu.RLock()
	out := make([]Topic, 0, len(s.topics))
	for t := range s.topics {
		out = append(out, t)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
