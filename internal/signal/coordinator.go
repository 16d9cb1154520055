// Package signal is the call-setup core: it runs the membership lifecycle
// for each connection, keeps participant lists in sync, coordinates the
// per-room meeting timer, and relays opaque signaling payloads between
// peers. Transport concerns (sockets, handshakes) live in internal/ws.
package signal

import (
	"encoding/json"
	"log"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"

	"github.com/roomcall/backend/internal/room"
	"github.com/roomcall/backend/internal/session"
)

// FallbackName stands in for any member whose session cannot be resolved,
// so a vanished session never breaks a participants broadcast.
const FallbackName = "Guest"

type Coordinator struct {
	registry *session.Registry
	rooms    *room.Store
	duration int
	validate *validator.Validate
}

func NewCoordinator(registry *session.Registry, rooms *room.Store, durationMinutes int) *Coordinator {
	return &Coordinator{
		registry: registry,
		rooms:    rooms,
		duration: durationMinutes,
		validate: validator.New(),
	}
}

// Connect registers a live connection before any of its messages are
// handled.
func (c *Coordinator) Connect(id, name string, out session.Sink) error {
	return c.registry.Register(id, name, out)
}

// Disconnect runs the full teardown for a closed connection: leave every
// joined room, tell the remaining members, then drop the session. Callers
// must let this finish even when the close was mid-operation.
func (c *Coordinator) Disconnect(id string) {
	for _, snap := range c.rooms.LeaveAll(id) {
		c.broadcastParticipants(snap.Members)
		if snap.Deleted {
			log.Printf("room %s retired", snap.RoomID)
		}
	}
	c.registry.Remove(id)
}

// Handle dispatches one inbound frame from senderID. Anything malformed is
// dropped without a reply and without closing the connection.
func (c *Coordinator) Handle(senderID string, data []byte) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Printf("drop frame from %s: %v", senderID, err)
		return
	}

	switch env.Type {
	case MsgJoin:
		var p JoinPayload
		if c.decode(senderID, env.Payload, &p) {
			c.join(senderID, p.Room)
		}
	case MsgLeave:
		var p LeavePayload
		if c.decode(senderID, env.Payload, &p) {
			c.leave(senderID, p.Room)
		}
	case MsgChat:
		var p ChatPayload
		if c.decode(senderID, env.Payload, &p) {
			c.chat(senderID, p)
		}
	case MsgOffer, MsgAnswer, MsgCandidate:
		c.relay(senderID, env.Type, env.Payload)
	default:
		log.Printf("drop frame from %s: unknown type %q", senderID, env.Type)
	}
}

// decode unmarshals and validates a payload, logging and reporting false on
// anything unusable.
func (c *Coordinator) decode(senderID string, raw json.RawMessage, v any) bool {
	if err := json.Unmarshal(raw, v); err != nil {
		log.Printf("drop payload from %s: %v", senderID, err)
		return false
	}
	if err := c.validate.Struct(v); err != nil {
		log.Printf("drop payload from %s: %v", senderID, err)
		return false
	}
	return true
}

// join runs the join effects in order: membership, timer rule,
// timer state to the joiner, offer requests to the existing peers, then the
// participants broadcast.
func (c *Coordinator) join(senderID, roomID string) {
	snap := c.rooms.Join(roomID, senderID)

	if snap.Fired {
		log.Printf("room %s timer started (%d members)", roomID, len(snap.Members))
		started := snap.StartedAt
		c.sendToMany(snap.Members, MsgTimerStart, TimerPayload{
			StartedAt: &started,
			Duration:  c.duration,
		})
	}

	c.send(senderID, MsgTimerState, c.timerPayload(snap.StartedAt))

	if !snap.Rejoined {
		for _, peer := range snap.Others {
			c.send(peer, MsgNeedOffer, NeedOfferPayload{TargetID: senderID})
		}
	}

	c.broadcastParticipants(snap.Members)
}

func (c *Coordinator) leave(senderID, roomID string) {
	snap, ok := c.rooms.Leave(roomID, senderID)
	if !ok {
		return
	}
	c.broadcastParticipants(snap.Members)
	if snap.Deleted {
		log.Printf("room %s retired", roomID)
	}
}

func (c *Coordinator) chat(senderID string, p ChatPayload) {
	text := strings.TrimSpace(p.Text)
	if text == "" {
		return
	}
	members := c.rooms.Members(p.Room)
	if len(members) == 0 {
		return
	}
	c.sendToMany(members, MsgChat, ChatBroadcast{
		From: senderID,
		Name: c.displayName(senderID),
		Text: text,
	})
}

// relay forwards an opaque signaling body to one peer. An unresolvable
// target is a silent drop: the sender learns about a gone peer from the
// participants broadcast, not from relay errors.
func (c *Coordinator) relay(senderID string, kind MessageType, raw json.RawMessage) {
	var p RelayPayload
	if !c.decode(senderID, raw, &p) {
		return
	}
	target, ok := c.registry.Lookup(p.To)
	if !ok {
		return
	}
	c.deliver(target, kind, ForwardPayload{From: senderID, Payload: p.Payload})
}

// broadcastParticipants sends the full membership snapshot to everyone on
// it. The list comes from the operation that changed it, never from a
// re-read, so receivers only ever see states that actually existed.
func (c *Coordinator) broadcastParticipants(members []string) {
	list := lo.Map(members, func(id string, _ int) Participant {
		return Participant{ID: id, Name: c.displayName(id)}
	})
	c.sendToMany(members, MsgParticipants, ParticipantsPayload{Participants: list})
}

func (c *Coordinator) displayName(id string) string {
	if s, ok := c.registry.Lookup(id); ok {
		return s.Name
	}
	return FallbackName
}

func (c *Coordinator) timerPayload(startedAt time.Time) TimerPayload {
	p := TimerPayload{Duration: c.duration}
	if !startedAt.IsZero() {
		t := startedAt
		p.StartedAt = &t
	}
	return p
}

func (c *Coordinator) send(id string, kind MessageType, payload any) {
	s, ok := c.registry.Lookup(id)
	if !ok {
		return
	}
	c.deliver(s, kind, payload)
}

// sendToMany marshals once and delivers independently: one unreachable
// receiver never affects the others.
func (c *Coordinator) sendToMany(ids []string, kind MessageType, payload any) {
	data, err := json.Marshal(Event{Type: kind, Payload: payload})
	if err != nil {
		log.Printf("marshal %s: %v", kind, err)
		return
	}
	for _, id := range ids {
		s, ok := c.registry.Lookup(id)
		if !ok {
			continue
		}
		if !s.Out.Deliver(data) {
			log.Printf("drop %s to %s: receiver not keeping up", kind, id)
		}
	}
}

func (c *Coordinator) deliver(s *session.Session, kind MessageType, payload any) {
	data, err := json.Marshal(Event{Type: kind, Payload: payload})
	if err != nil {
		log.Printf("marshal %s: %v", kind, err)
		return
	}
	if !s.Out.Deliver(data) {
		log.Printf("drop %s to %s: receiver not keeping up", kind, s.ID)
	}
}
