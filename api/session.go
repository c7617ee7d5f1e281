package api

import (
	"encoding/json"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/labstack/gommon/log"

	"watchparty.live/model"
	"watchparty.live/pkg/websocket"
)

const (
	sendQueueSize = 256
	writeWait     = 10 * time.Second
	pingPeriod    = 30 * time.Second
)

var errQueueFull = errors.New("send queue full")

// session is the protocol state machine for one live connection. It
// starts unjoined; a valid join message populates identity and room
// membership, and transport close or error is terminal.
type session struct {
	api  *API
	id   string
	conn net.Conn

	out       chan []byte
	done      chan struct{}
	closeOnce sync.Once

	joined   bool
	roomID   string
	userID   string
	nickname string
	role     model.Role
}

func newSession(api *API, id string, conn net.Conn) *session {
	return &session{
		api:  api,
		id:   id,
		conn: conn,
		out:  make(chan []byte, sendQueueSize),
		done: make(chan struct{}),
	}
}

func (s *session) GetID() string { return s.id }

// Write queues payload for delivery. It never blocks: when the queue is
// full the payload is dropped and an error returned, so one slow
// consumer cannot stall a room-wide fan-out.
func (s *session) Write(p []byte) (int, error) {
	// closed check runs on its own first so a ready queue slot cannot
	// race the done signal
	select {
	case <-s.done:
		return 0, net.ErrClosed
	default:
	}
	select {
	case <-s.done:
		return 0, net.ErrClosed
	case s.out <- p:
		return len(p), nil
	default:
		return 0, errQueueFull
	}
}

func (s *session) close() {
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
}

// writeLoop owns all writes to the underlying transport, including
// keepalive pings. A failed write closes the transport, which ends the
// read loop and triggers cleanup.
func (s *session) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.close()
	}()

	for {
		select {
		case <-s.done:
			return
		case payload := <-s.out:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := wsutil.WriteServerText(s.conn, payload); err != nil {
				log.Warnf("session %s: write failed: %v", s.id, err)
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := wsutil.WriteServerMessage(s.conn, ws.OpPing, nil); err != nil {
				log.Infof("session %s: keepalive failed, closing: %v", s.id, err)
				return
			}
		}
	}
}

// readLoop drives the state machine until the transport closes or errors.
func (s *session) readLoop() {
	defer s.close()
	for {
		b, err := wsutil.ReadClientText(s.conn)
		if err != nil {
			return
		}
		s.handleMessage(b)
	}
}

func (s *session) handleMessage(b []byte) {
	var env websocket.Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		log.Warnf("session %s: malformed message: %v", s.id, err)
		return
	}
	if err := env.Validate(); err != nil {
		log.Warnf("session %s: %v", s.id, err)
		return
	}

	switch env.Type {
	case websocket.TypePing:
		s.reply(websocket.NewPongEvent())
		return
	case websocket.TypeJoin:
		s.handleJoin(&env)
		return
	}

	if !s.joined {
		log.Infof("session %s: '%s' message before join, dropped", s.id, env.Type)
		return
	}

	switch env.Type {
	case websocket.TypeChat:
		s.handleChat(&env)
	case websocket.TypeState:
		s.handleState(&env)
	case websocket.TypeRequestSync:
		s.publish(websocket.NewSyncRequestEvent(model.Member{ID: s.userID, Nickname: s.nickname}), s.id)
	}
}

func (s *session) handleJoin(env *websocket.Envelope) {
	if s.joined {
		// a repeated join moves the session: leave the old room first
		s.leaveRoom()
	}

	s.roomID = env.RoomID
	s.userID = env.UserID
	s.role = model.ParseRole(env.Role)
	s.nickname = env.Nickname
	if s.nickname == "" {
		s.nickname = "Guest"
	}
	s.joined = true

	s.api.registry.Join(s, s.roomID)
	log.Infof("user %s (%s) joined room %s as %s", s.nickname, s.userID, s.roomID, s.role)

	s.publish(websocket.NewPresenceEvent(websocket.EventJoin,
		model.Member{ID: s.userID, Nickname: s.nickname, Role: s.role}), s.id)
	s.reply(websocket.NewJoinedAck(s.roomID, s.role))

	if s.role != model.RoleViewer {
		return
	}
	state, err := s.api.storage.GetState(s.roomID)
	if err != nil {
		log.Error(err)
		return
	}
	if state != nil {
		s.reply(websocket.NewStateEvent(nil, state))
	}
}

func (s *session) handleChat(env *websocket.Envelope) {
	from := model.Member{ID: s.userID, Nickname: s.nickname, Role: s.role}
	// sender included: exclude nobody
	s.publish(websocket.NewChatEvent(from, env.Message), "")
}

func (s *session) handleState(env *websocket.Envelope) {
	if s.role != model.RoleHost {
		log.Infof("session %s: non-host %s tried to send state, dropped", s.id, s.nickname)
		return
	}
	if err := s.api.storage.SetState(s.roomID, env.State); err != nil {
		log.Error(err)
		return
	}
	s.publish(websocket.NewStateEvent(&model.Member{ID: s.userID, Nickname: s.nickname}, env.State), s.id)
}

// leaveRoom removes the session from its room and notifies the members
// left behind. No-op for sessions that never joined.
func (s *session) leaveRoom() {
	if !s.joined {
		return
	}
	s.api.registry.Leave(s, s.roomID)
	if len(s.api.registry.Subscribers(s.roomID)) > 0 {
		s.publish(websocket.NewPresenceEvent(websocket.EventLeave,
			model.Member{ID: s.userID, Nickname: s.nickname, Role: s.role}), s.id)
	}
	s.joined = false
}

// reply sends an event directly to this session, bypassing the broker.
func (s *session) reply(event interface{}) {
	b, err := json.Marshal(event)
	if err != nil {
		log.Error(err)
		return
	}
	if _, err = s.Write(b); err != nil {
		log.Warnf("session %s: reply dropped: %v", s.id, err)
	}
}

// publish routes an event to the session's room through the broker.
func (s *session) publish(event interface{}, excludeID string) {
	if err := s.api.publishRoomEvent(s.roomID, excludeID, event); err != nil {
		log.Warnf("session %s: publish failed: %v", s.id, err)
	}
}
