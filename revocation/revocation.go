// Package revocation implements peerfsm.RevocationStore: a per-height
// table of revealed commitment secrets, adapted from the teacher's
// elkrem hash-chain receiver into a plain indexed store (the simpler
// shape is enough once the core no longer needs the elkrem chain's
// storage-compaction trick, which saved space the core itself has no
// Non-goal-compatible reason to reclaim here).
package revocation

import "sync"

// Store is the default peerfsm.RevocationStore: secrets keyed by the
// commitment height they revoke.
type Store struct {
	mu      sync.RWMutex
	secrets map[uint64][32]byte
}

// New returns an empty Store.
func New() *Store {
	return &Store{secrets: make(map[uint64][32]byte)}
}

// Store records the secret that revokes the commitment at height.
// Matches elkrem's "add one more hash to the chain" shape, minus the
// chain's compacted storage: a malicious peer cannot force us to hold
// more than one secret per commitment height regardless.
func (s *Store) Store(height uint64, secret [32]byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.secrets[height] = secret
}

// Lookup returns the secret revoking the commitment at height, if any
// has been recorded.
func (s *Store) Lookup(height uint64) ([32]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	secret, ok := s.secrets[height]
	return secret, ok
}
