package websocket

import (
	"encoding/json"
	"fmt"
	"strings"

	"watchparty.live/model"
	"watchparty.live/pkg/utils"
)

// Message kinds exchanged over the live channel.
const (
	TypeJoin        = "join"
	TypeChat        = "chat"
	TypeState       = "state"
	TypeRequestSync = "request-sync"
	TypePing        = "ping"
	TypePong        = "pong"
	TypeSystem      = "system"
)

// System event names.
const (
	EventJoined = "joined"
	EventJoin   = "join"
	EventLeave  = "leave"
)

// MaxChatLen is the rune limit applied to chat messages before fan-out.
const MaxChatLen = 1000

// Envelope is one inbound message from a client. Fields beyond Type are
// populated per kind; Validate enforces the shape required by the
// declared kind and rejects unknown kinds.
type Envelope struct {
	Type     string               `json:"type"`
	RoomID   string               `json:"roomId,omitempty"`
	UserID   string               `json:"userId,omitempty"`
	Role     string               `json:"role,omitempty"`
	Nickname string               `json:"nickname,omitempty"`
	Message  string               `json:"message,omitempty"`
	State    *model.PlaybackState `json:"state,omitempty"`
}

func (e *Envelope) Validate() error {
	switch e.Type {
	case TypeJoin:
		if strings.TrimSpace(e.RoomID) == "" {
			return fmt.Errorf("invalid '%s' message, field 'roomId' is required", e.Type)
		}
		if strings.TrimSpace(e.UserID) == "" {
			return fmt.Errorf("invalid '%s' message, field 'userId' is required", e.Type)
		}
	case TypeState:
		if e.State == nil {
			return fmt.Errorf("invalid '%s' message, field 'state' is required", e.Type)
		}
	case TypeChat, TypeRequestSync, TypePing:
	default:
		return fmt.Errorf("unknown message type: '%s'", e.Type)
	}
	return nil
}

// Outbound payloads. At and Ts are Unix milliseconds.
type (
	ChatEvent struct {
		Type    string       `json:"type"`
		At      int64        `json:"at"`
		From    model.Member `json:"from"`
		Message string       `json:"message"`
	}

	StateEvent struct {
		Type  string               `json:"type"`
		At    int64                `json:"at"`
		From  *model.Member        `json:"from,omitempty"`
		State *model.PlaybackState `json:"state"`
	}

	SyncRequestEvent struct {
		Type string       `json:"type"`
		At   int64        `json:"at"`
		From model.Member `json:"from"`
	}

	SystemEvent struct {
		Type    string        `json:"type"`
		Event   string        `json:"event"`
		At      int64         `json:"at,omitempty"`
		Message string        `json:"message,omitempty"`
		User    *model.Member `json:"user,omitempty"`
	}

	PongEvent struct {
		Type string `json:"type"`
		Ts   int64  `json:"ts"`
	}
)

func NewChatEvent(from model.Member, text string) *ChatEvent {
	return &ChatEvent{
		Type:    TypeChat,
		At:      utils.NowMillis(),
		From:    from,
		Message: utils.TruncateRunes(text, MaxChatLen),
	}
}

// NewStateEvent builds a state payload. from is nil for the snapshot sent
// directly to a freshly joined viewer, which carries no sender.
func NewStateEvent(from *model.Member, state *model.PlaybackState) *StateEvent {
	return &StateEvent{Type: TypeState, At: utils.NowMillis(), From: from, State: state}
}

func NewSyncRequestEvent(from model.Member) *SyncRequestEvent {
	return &SyncRequestEvent{Type: TypeRequestSync, At: utils.NowMillis(), From: from}
}

func NewPongEvent() *PongEvent {
	return &PongEvent{Type: TypePong, Ts: utils.NowMillis()}
}

// NewJoinedAck is the direct acknowledgement sent to a joining client.
func NewJoinedAck(roomID string, role model.Role) *SystemEvent {
	return &SystemEvent{
		Type:    TypeSystem,
		Event:   EventJoined,
		Message: fmt.Sprintf("joined room %s as %s", roomID, role),
	}
}

// NewPresenceEvent announces a join or leave to the rest of a room.
func NewPresenceEvent(event string, user model.Member) *SystemEvent {
	return &SystemEvent{Type: TypeSystem, Event: event, At: utils.NowMillis(), User: &user}
}

// RoomEvent is the unit relayed through the message broker: one
// pre-encoded payload addressed to a room, with an optional subscriber
// to skip during fan-out.
type RoomEvent struct {
	RoomID    string          `json:"roomId"`
	ExcludeID string          `json:"excludeId,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}
