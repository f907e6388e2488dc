// Package snapshot holds the last known playback state and the copy frozen when connectivity is lost.
package snapshot

import (
	"fmt"
	"sync"
	"time"

	"github.com/samber/mo"
)

// Snapshot is a point-in-time view of the player.
type Snapshot struct {
	TrackID    string    `json:"track_id"`
	PositionMs uint64    `json:"position_ms"`
	DurationMs uint64    `json:"duration_ms"`
	IsPlaying  bool      `json:"is_playing"`
	CapturedAt time.Time `json:"captured_at"`
}

func (s Snapshot) String() string {
	state := "paused"
	if s.IsPlaying {
		state = "playing"
	}
	return fmt.Sprintf("%s %s %d/%dms", state, s.TrackID, s.PositionMs, s.DurationMs)
}

// Store keeps the live snapshot. Updates are last-write-wins.
type Store struct {
	mu     sync.RWMutex
	live   Snapshot
	frozen mo.Option[Snapshot]
}

func NewStore() *Store {
	return &Store{frozen: mo.None[Snapshot]()}
}

// Update overwrites the live snapshot unconditionally.
func (s *Store) Update(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.live = snap
}

// Freeze copies the live snapshot and keeps it until the next Freeze or Thaw.
func (s *Store) Freeze() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frozen = mo.Some(s.live)
	return s.live
}

// Thaw discards the frozen copy.
func (s *Store) Thaw() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frozen = mo.None[Snapshot]()
}

func (s *Store) Current() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.live
}

func (s *Store) Frozen() mo.Option[Snapshot] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.frozen
}
