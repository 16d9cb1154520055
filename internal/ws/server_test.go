package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/roomcall/backend/internal/room"
	"github.com/roomcall/backend/internal/session"
	"github.com/roomcall/backend/internal/signal"
)

func newTestServer(t *testing.T, allowedOrigins []string) *httptest.Server {
	t.Helper()
	registry := session.NewRegistry()
	rooms := room.NewStore(2)
	coord := signal.NewCoordinator(registry, rooms, 60)

	mux := http.NewServeMux()
	NewServer(coord, allowedOrigins).SetupRoutes(mux)

	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func dial(t *testing.T, ts *httptest.Server, name string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	if name != "" {
		u += "?name=" + name
	}
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

type frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// readUntil reads frames until one of the given type arrives, failing on
// timeout. Frames of other types are collected and returned too.
func readUntil(t *testing.T, conn *websocket.Conn, kind string) (frame, []frame) {
	t.Helper()
	var seen []frame
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var f frame
		require.NoError(t, conn.ReadJSON(&f), "waiting for %s, saw %v", kind, seen)
		if f.Type == kind {
			return f, seen
		}
		seen = append(seen, f)
	}
}

func send(t *testing.T, conn *websocket.Conn, kind string, payload any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(map[string]any{"type": kind, "payload": json.RawMessage(raw)}))
}

func TestServer_JoinFlowOverWebsocket(t *testing.T) {
	req := require.New(t)
	ts := newTestServer(t, nil)

	alice := dial(t, ts, "Alice")
	send(t, alice, "join", map[string]string{"room": "r1"})

	// Alice alone: timer not running, list is just her.
	state, _ := readUntil(t, alice, "timer-state")
	var timer signal.TimerPayload
	req.NoError(json.Unmarshal(state.Payload, &timer))
	req.Nil(timer.StartedAt)
	req.Equal(60, timer.Duration)

	list, _ := readUntil(t, alice, "participants")
	var participants signal.ParticipantsPayload
	req.NoError(json.Unmarshal(list.Payload, &participants))
	req.Len(participants.Participants, 1)
	req.Equal("Alice", participants.Participants[0].Name)
	aliceID := participants.Participants[0].ID

	bob := dial(t, ts, "Bob")
	send(t, bob, "join", map[string]string{"room": "r1"})

	// Bob's join starts the timer and asks Alice for an offer.
	started, _ := readUntil(t, alice, "timer-start")
	req.NoError(json.Unmarshal(started.Payload, &timer))
	req.NotNil(timer.StartedAt)

	needOffer, _ := readUntil(t, alice, "need-offer")
	var offerReq signal.NeedOfferPayload
	req.NoError(json.Unmarshal(needOffer.Payload, &offerReq))
	req.NotEmpty(offerReq.TargetID)
	bobID := offerReq.TargetID

	list, _ = readUntil(t, alice, "participants")
	req.NoError(json.Unmarshal(list.Payload, &participants))
	req.Len(participants.Participants, 2)

	_, _ = readUntil(t, bob, "participants")

	// Alice relays an offer straight to Bob.
	send(t, alice, "offer", map[string]any{"to": bobID, "payload": map[string]string{"sdp": "v=0"}})
	fwd, _ := readUntil(t, bob, "offer")
	var forwarded signal.ForwardPayload
	req.NoError(json.Unmarshal(fwd.Payload, &forwarded))
	req.Equal(aliceID, forwarded.From)
	req.JSONEq(`{"sdp":"v=0"}`, string(forwarded.Payload))

	// Chat reaches both, trimmed.
	send(t, bob, "chat", map[string]string{"room": "r1", "text": " hello "})
	chatFrame, _ := readUntil(t, alice, "chat")
	var chat signal.ChatBroadcast
	req.NoError(json.Unmarshal(chatFrame.Payload, &chat))
	req.Equal("Bob", chat.Name)
	req.Equal("hello", chat.Text)
	_, _ = readUntil(t, bob, "chat")

	// Bob closing his socket shrinks Alice's list.
	bob.Close()
	for {
		list, _ = readUntil(t, alice, "participants")
		req.NoError(json.Unmarshal(list.Payload, &participants))
		if len(participants.Participants) == 1 {
			break
		}
	}
	req.Equal(aliceID, participants.Participants[0].ID)
}

func TestServer_MissingNameBecomesGuest(t *testing.T) {
	req := require.New(t)
	ts := newTestServer(t, nil)

	conn := dial(t, ts, "")
	send(t, conn, "join", map[string]string{"room": "r1"})

	list, _ := readUntil(t, conn, "participants")
	var participants signal.ParticipantsPayload
	req.NoError(json.Unmarshal(list.Payload, &participants))
	req.Len(participants.Participants, 1)
	req.Equal(signal.FallbackName, participants.Participants[0].Name)
}

func TestServer_MalformedFrameKeepsConnectionOpen(t *testing.T) {
	ts := newTestServer(t, nil)

	conn := dial(t, ts, "Alice")
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))

	// The connection survives and still handles a valid join.
	send(t, conn, "join", map[string]string{"room": "r1"})
	_, _ = readUntil(t, conn, "participants")
}

func TestCheckOrigin(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		host    string
		want    bool
	}{
		{"NoOriginHeader", nil, "", "example.com", true},
		{"SameHost", nil, "http://example.com", "example.com", true},
		{"Localhost", nil, "http://localhost:3000", "example.com", true},
		{"Loopback", nil, "http://127.0.0.1:3000", "example.com", true},
		{"ForeignHost", nil, "http://evil.com", "example.com", false},
		{"AllowlistedExact", []string{"https://call.example.com"}, "https://call.example.com", "example.com", true},
		{"AllowlistedHost", []string{"https://call.example.com"}, "http://call.example.com", "example.com", true},
		{"NotAllowlisted", []string{"https://call.example.com"}, "http://localhost:3000", "example.com", false},
		{"GarbageOrigin", nil, "://///", "example.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewServer(nil, tt.allowed)
			r := httptest.NewRequest(http.MethodGet, "/ws", nil)
			r.Host = tt.host
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			require.Equal(t, tt.want, s.checkOrigin(r))
		})
	}
}
