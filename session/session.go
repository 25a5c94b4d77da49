// Package session holds the ephemeral per-owner state that guests poke at:
// the pending request queue, the last played track and the online flag.
// Nothing here survives a restart and that's the contract.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

type ResourceKind string

const (
	KindPlaylist  ResourceKind = "playlist"
	KindTrack     ResourceKind = "track"
	KindRadioSeed ResourceKind = "radio_seed"
)

// PendingRequest is a guest request waiting for the owner's attention.
// Records are immutable once appended and are never drained automatically.
type PendingRequest struct {
	ID          string       `json:"id"`
	URI         string       `json:"uri"`
	Kind        ResourceKind `json:"kind"`
	RequestedBy string       `json:"requested_by"`
	AddedAt     time.Time    `json:"added_at"`
}

type LastPlayed struct {
	Track     string    `json:"track"`
	Timestamp time.Time `json:"timestamp"`
}

type State struct {
	Queue      []PendingRequest `json:"queue"`
	LastPlayed *LastPlayed      `json:"last_played"`
	Online     bool             `json:"online"`
}

// Store keeps one State per owner name, created lazily. All mutation goes
// through the store's mutex so concurrent guest requests can't lose appends.
type Store struct {
	mu    sync.Mutex
	state map[string]*State
}

func NewStore() *Store {
	return &Store{
		state: map[string]*State{},
	}
}

func (s *Store) getLocked(owner string) *State {
	st, ok := s.state[owner]
	if !ok {
		st = &State{Queue: []PendingRequest{}}
		s.state[owner] = st
	}
	return st
}

// GetState returns a copy of the owner's state so callers can't mutate the
// queue behind the store's back.
func (s *Store) GetState(owner string) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.getLocked(owner)
	snapshot := State{
		Queue:  make([]PendingRequest, len(st.Queue)),
		Online: st.Online,
	}
	copy(snapshot.Queue, st.Queue)
	if st.LastPlayed != nil {
		lastPlayed := *st.LastPlayed
		snapshot.LastPlayed = &lastPlayed
	}
	return snapshot
}

// AppendToQueue adds one pending request and returns the resulting queue
// oldest first, all under one critical section so the reported length is
// accurate even when guests race.
func (s *Store) AppendToQueue(owner string, uri string, kind ResourceKind, requestedBy string) []PendingRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.getLocked(owner)
	st.Queue = append(st.Queue, PendingRequest{
		ID:          uuid.NewString(),
		URI:         uri,
		Kind:        kind,
		RequestedBy: requestedBy,
		AddedAt:     time.Now().UTC(),
	})
	snapshot := make([]PendingRequest, len(st.Queue))
	copy(snapshot, st.Queue)
	return snapshot
}

func (s *Store) SetLastPlayed(owner string, track string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.getLocked(owner)
	st.LastPlayed = &LastPlayed{
		Track:     track,
		Timestamp: time.Now().UTC(),
	}
}

func (s *Store) SetOnline(owner string, online bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getLocked(owner).Online = online
}
