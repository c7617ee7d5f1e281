package websocket

import (
	"io"
	"sync"

	"github.com/labstack/gommon/log"
)

// Subscriber is one live connection able to receive room payloads.
// Write must not block; a slow consumer returns an error instead.
type Subscriber interface {
	GetID() string
	io.Writer
}

// Registry tracks which subscribers currently belong to which room and
// fans payloads out to them. Room entries exist only while they have at
// least one member; playback state is kept elsewhere and is not affected
// by membership changes.
type Registry interface {
	Join(sub Subscriber, roomID string)
	Leave(sub Subscriber, roomID string)
	Subscribers(roomID string) []Subscriber
	Broadcast(roomID string, payload []byte, excludeID string) int
	Stats() (rooms, subscribers int)
}

type registry struct {
	sync.RWMutex
	rooms map[string]map[string]Subscriber
}

func NewRegistry() Registry {
	return &registry{rooms: make(map[string]map[string]Subscriber)}
}

func (r *registry) Join(sub Subscriber, roomID string) {
	r.Lock()
	room, exists := r.rooms[roomID]
	if !exists {
		room = make(map[string]Subscriber)
		r.rooms[roomID] = room
	}
	room[sub.GetID()] = sub
	r.Unlock()
}

func (r *registry) Leave(sub Subscriber, roomID string) {
	r.Lock()
	room, exists := r.rooms[roomID]
	if exists {
		delete(room, sub.GetID())
		if len(room) == 0 {
			delete(r.rooms, roomID)
			log.Infof("room %s removed, empty", roomID)
		}
	}
	r.Unlock()
}

// Subscribers returns a snapshot of the room's membership, so callers may
// iterate while joins and leaves proceed concurrently.
func (r *registry) Subscribers(roomID string) []Subscriber {
	var result []Subscriber
	r.RLock()
	for _, sub := range r.rooms[roomID] {
		result = append(result, sub)
	}
	r.RUnlock()
	return result
}

// Broadcast delivers payload to every subscriber of roomID except the one
// identified by excludeID. Delivery is best effort: a failed write is
// logged and skipped, it neither aborts the fan-out nor removes the
// subscriber from the room. Returns the number of successful deliveries.
func (r *registry) Broadcast(roomID string, payload []byte, excludeID string) int {
	var sent int
	for _, sub := range r.Subscribers(roomID) {
		if sub.GetID() == excludeID {
			continue
		}
		if _, err := sub.Write(payload); err != nil {
			log.Warnf("broadcast to %s in room %s failed: %v", sub.GetID(), roomID, err)
			continue
		}
		sent++
	}
	log.Debugf("broadcast to room %s: %d subscribers", roomID, sent)
	return sent
}

func (r *registry) Stats() (int, int) {
	r.RLock()
	defer r.RUnlock()
	var subs int
	for _, room := range r.rooms {
		subs += len(room)
	}
	return len(r.rooms), subs
}
