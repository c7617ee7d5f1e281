package storage

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v7"

	"watchparty.live/model"
)

// Storage is the playback state store: the latest snapshot per room,
// kept independently of room membership. A stored snapshot survives the
// room becoming empty.
type Storage interface {
	// GetState returns the last stored snapshot for roomID, or nil if
	// the room has never been written to.
	GetState(roomID string) (*model.PlaybackState, error)
	// SetState replaces the stored snapshot wholesale. Last writer wins.
	SetState(roomID string, state *model.PlaybackState) error
	IncrVisits() (int64, error)
	GetVisitsByDate(date time.Time) (int64, error)
}

type redisStorage struct {
	rdb *redis.Client
}

// NewRedis returns a Storage backed by Redis.
func NewRedis(rdb *redis.Client) Storage {
	return &redisStorage{rdb: rdb}
}

func (s *redisStorage) GetState(roomID string) (*model.PlaybackState, error) {
	b, err := s.rdb.Get("state:" + roomID).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var state model.PlaybackState
	if err = json.Unmarshal(b, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

func (s *redisStorage) SetState(roomID string, state *model.PlaybackState) error {
	if state == nil {
		return errors.New("nil state")
	}
	b, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return s.rdb.Set("state:"+roomID, b, 0).Err()
}

func (s *redisStorage) IncrVisits() (int64, error) {
	return s.rdb.Incr("visits:" + time.Now().Format("02.01.06")).Result()
}

func (s *redisStorage) GetVisitsByDate(date time.Time) (int64, error) {
	return s.rdb.Get("visits:" + date.Format("02.01.06")).Int64()
}
