// Package room owns the room table: membership sets, the per-room meeting
// timer transition, and the rule that an empty room does not exist.
package room

import (
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"
)

// JoinSnapshot is the state a join observed, captured atomically under the
// room lock so broadcasts built from it describe a state that really existed.
type JoinSnapshot struct {
	// Others are the members that were present before this join.
	Others []string
	// Members is the full membership after the join.
	Members []string
	// StartedAt is the room's timer start, zero if not started.
	StartedAt time.Time
	// Fired is true when this join was the one that started the timer.
	Fired bool
	// Rejoined is true when the session was already a member.
	Rejoined bool
}

// LeaveSnapshot is the state a leave observed.
type LeaveSnapshot struct {
	RoomID  string
	Members []string
	Deleted bool
}

// Store maps room ids to rooms. The store mutex guards only the two maps;
// room state is guarded by each room's own lock, so operations on distinct
// rooms proceed in parallel.
type Store struct {
	mu       sync.RWMutex
	rooms    map[string]*Room
	byMember map[string]map[string]struct{}

	threshold int
}

// NewStore returns an empty store. startThreshold is the membership count
// at which a room's timer starts.
func NewStore(startThreshold int) *Store {
	return &Store{
		rooms:     make(map[string]*Room),
		byMember:  make(map[string]map[string]struct{}),
		threshold: startThreshold,
	}
}

// Join adds sessionID to the room, creating it on first use, and runs the
// timer rule: if the membership count reaches the threshold and the timer
// has not started, it starts now. Count check and timer write share the
// room lock, so two simultaneous threshold-reaching joins cannot both fire.
func (s *Store) Join(roomID, sessionID string) JoinSnapshot {
	for {
		r := s.getOrCreate(roomID, sessionID)

		r.mu.Lock()
		if r.retired {
			r.mu.Unlock()
			continue
		}

		_, rejoined := r.members[sessionID]
		others := make([]string, 0, len(r.members))
		for id := range r.members {
			if id != sessionID {
				others = append(others, id)
			}
		}
		r.members[sessionID] = struct{}{}

		fired := false
		if r.startedAt.IsZero() && len(r.members) >= s.threshold {
			r.startedAt = time.Now()
			fired = true
		}

		snap := JoinSnapshot{
			Others:    others,
			Members:   lo.Keys(r.members),
			StartedAt: r.startedAt,
			Fired:     fired,
			Rejoined:  rejoined,
		}
		r.mu.Unlock()
		return snap
	}
}

// Leave removes sessionID from the room. The second return is false when
// the session was not a member (leave is idempotent). An emptied room is
// retired from the store, which also discards its timer state.
func (s *Store) Leave(roomID, sessionID string) (LeaveSnapshot, bool) {
	s.mu.Lock()
	r, ok := s.rooms[roomID]
	if set, tracked := s.byMember[sessionID]; tracked {
		delete(set, roomID)
		if len(set) == 0 {
			delete(s.byMember, sessionID)
		}
	}
	s.mu.Unlock()
	if !ok {
		return LeaveSnapshot{}, false
	}

	r.mu.Lock()
	if r.retired {
		r.mu.Unlock()
		return LeaveSnapshot{}, false
	}
	if _, member := r.members[sessionID]; !member {
		r.mu.Unlock()
		return LeaveSnapshot{}, false
	}
	delete(r.members, sessionID)
	members := lo.Keys(r.members)
	empty := len(members) == 0
	r.mu.Unlock()

	deleted := false
	if empty {
		deleted = s.retire(roomID, r)
	}
	return LeaveSnapshot{RoomID: roomID, Members: members, Deleted: deleted}, true
}

// LeaveAll removes sessionID from every room it joined, returning one
// snapshot per room it actually left. Rooms are processed one at a time;
// no operation ever holds two room locks.
func (s *Store) LeaveAll(sessionID string) []LeaveSnapshot {
	s.mu.RLock()
	roomIDs := lo.Keys(s.byMember[sessionID])
	s.mu.RUnlock()
	sort.Strings(roomIDs)

	snaps := make([]LeaveSnapshot, 0, len(roomIDs))
	for _, roomID := range roomIDs {
		if snap, ok := s.Leave(roomID, sessionID); ok {
			snaps = append(snaps, snap)
		}
	}
	return snaps
}

// Members returns the current membership, nil for an absent room.
func (s *Store) Members(roomID string) []string {
	s.mu.RLock()
	r, ok := s.rooms[roomID]
	s.mu.RUnlock()
	if !ok {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.retired || len(r.members) == 0 {
		return nil
	}
	return lo.Keys(r.members)
}

// MemberCount returns 0 for an absent room.
func (s *Store) MemberCount(roomID string) int {
	return len(s.Members(roomID))
}

// StartedAt reports the room's timer start. ok is false when the room does
// not exist; a zero time with ok true means the timer has not started.
func (s *Store) StartedAt(roomID string) (time.Time, bool) {
	s.mu.RLock()
	r, ok := s.rooms[roomID]
	s.mu.RUnlock()
	if !ok {
		return time.Time{}, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.retired {
		return time.Time{}, false
	}
	return r.startedAt, true
}

// Len is the number of live rooms.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms)
}

// getOrCreate returns the shared room instance for roomID, creating it if
// absent, and records the membership intent for LeaveAll. Concurrent
// callers always observe the same instance.
func (s *Store) getOrCreate(roomID, sessionID string) *Room {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[roomID]
	if !ok {
		r = newRoom(roomID)
		s.rooms[roomID] = r
	}

	set, ok := s.byMember[sessionID]
	if !ok {
		set = make(map[string]struct{})
		s.byMember[sessionID] = set
	}
	set[roomID] = struct{}{}
	return r
}

// retire drops the room from the store if it is still the mapped instance
// and still empty. Lock order is store then room, everywhere.
func (s *Store) retire(roomID string, r *Room) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.rooms[roomID]
	if !ok || cur != r {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.members) > 0 {
		return false
	}
	r.retired = true
	delete(s.rooms, roomID)
	return true
}
