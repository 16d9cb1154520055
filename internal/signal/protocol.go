package signal

import (
	"encoding/json"
	"time"
)

type MessageType string

// Client → server.
const (
	MsgJoin      MessageType = "join"
	MsgLeave     MessageType = "leave"
	MsgChat      MessageType = "chat"
	MsgOffer     MessageType = "offer"
	MsgAnswer    MessageType = "answer"
	MsgCandidate MessageType = "ice-candidate"
)

// Server → client.
const (
	MsgNeedOffer    MessageType = "need-offer"
	MsgParticipants MessageType = "participants"
	MsgTimerStart   MessageType = "timer-start"
	MsgTimerState   MessageType = "timer-state"
)

// Envelope is the inbound frame. Payload stays raw until the type-specific
// struct below decodes it.
type Envelope struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Event is the outbound frame.
type Event struct {
	Type    MessageType `json:"type"`
	Payload any         `json:"payload"`
}

type JoinPayload struct {
	Room string `json:"room" validate:"required"`
}

type LeavePayload struct {
	Room string `json:"room" validate:"required"`
}

type ChatPayload struct {
	Room string `json:"room" validate:"required"`
	Text string `json:"text" validate:"required"`
}

// RelayPayload addresses an opaque offer/answer/candidate body to one peer.
// The body is never parsed here.
type RelayPayload struct {
	To      string          `json:"to" validate:"required"`
	Payload json.RawMessage `json:"payload" validate:"required"`
}

type ForwardPayload struct {
	From    string          `json:"from"`
	Payload json.RawMessage `json:"payload"`
}

type ChatBroadcast struct {
	From string `json:"from"`
	Name string `json:"name"`
	Text string `json:"text"`
}

type NeedOfferPayload struct {
	TargetID string `json:"targetId"`
}

type Participant struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type ParticipantsPayload struct {
	Participants []Participant `json:"participants"`
}

// TimerPayload carries the meeting timer. StartedAt is null until the room's
// timer has started; Duration is in minutes.
type TimerPayload struct {
	StartedAt *time.Time `json:"startedAt"`
	Duration  int        `json:"duration"`
}
