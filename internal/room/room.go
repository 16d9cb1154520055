package room

import (
	"sync"
	"time"
)

// Room holds the mutable state of one named room. Every read-modify-write
// on a room (membership, the timer transition) happens under mu, which is
// what keeps the "first join to reach the threshold" decision race-free
// without serializing unrelated rooms.
type Room struct {
	mu      sync.Mutex
	id      string
	members map[string]struct{}

	// startedAt is zero until the meeting timer fires, and is written at
	// most once for the life of the room.
	startedAt time.Time

	// retired is set when the store drops the room. A joiner that raced
	// the retirement sees it and retries against a fresh room.
	retired bool
}

func newRoom(id string) *Room {
	return &Room{
		id:      id,
		members: make(map[string]struct{}),
	}
}
