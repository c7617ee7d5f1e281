package storage

import (
	"errors"
	"sync"
	"time"

	"watchparty.live/model"
)

// memoryStorage is the default Storage for single-instance deployments
// without Redis. Snapshots are stored by value so callers cannot mutate
// the stored copy through a returned pointer.
type memoryStorage struct {
	sync.RWMutex
	states map[string]model.PlaybackState
	visits map[string]int64
}

// NewMemory returns an in-memory Storage.
func NewMemory() Storage {
	return &memoryStorage{
		states: make(map[string]model.PlaybackState),
		visits: make(map[string]int64),
	}
}

func (s *memoryStorage) GetState(roomID string) (*model.PlaybackState, error) {
	s.RLock()
	defer s.RUnlock()
	state, exists := s.states[roomID]
	if !exists {
		return nil, nil
	}
	return &state, nil
}

func (s *memoryStorage) SetState(roomID string, state *model.PlaybackState) error {
	if state == nil {
		return errors.New("nil state")
	}
	s.Lock()
	s.states[roomID] = *state
	s.Unlock()
	return nil
}

func (s *memoryStorage) IncrVisits() (int64, error) {
	key := time.Now().Format("02.01.06")
	s.Lock()
	s.visits[key]++
	v := s.visits[key]
	s.Unlock()
	return v, nil
}

func (s *memoryStorage) GetVisitsByDate(date time.Time) (int64, error) {
	s.RLock()
	defer s.RUnlock()
	return s.visits[date.Format("02.01.06")], nil
}
