package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"watchparty.live/model"
)

func TestMemoryStorage_GetStateUnknownRoom(t *testing.T) {
	s := NewMemory()
	state, err := s.GetState("never-written")
	require.NoError(t, err)
	assert.Nil(t, state)
}

func TestMemoryStorage_SetStateOverwrites(t *testing.T) {
	s := NewMemory()

	first := &model.PlaybackState{Playing: true, CurrentTime: 12.3, PlaybackRate: 1, LastHostTs: 1000}
	require.NoError(t, s.SetState("r1", first))

	got, err := s.GetState("r1")
	require.NoError(t, err)
	assert.Equal(t, first, got)

	// wholesale replacement, not a merge
	second := &model.PlaybackState{Playing: false, CurrentTime: 0, PlaybackRate: 1, LastHostTs: 2000}
	require.NoError(t, s.SetState("r1", second))

	got, err = s.GetState("r1")
	require.NoError(t, err)
	assert.Equal(t, second, got)
}

func TestMemoryStorage_SetStateIdempotent(t *testing.T) {
	s := NewMemory()
	state := &model.PlaybackState{Playing: true, CurrentTime: 5, PlaybackRate: 1.5, LastHostTs: 42}

	require.NoError(t, s.SetState("r1", state))
	require.NoError(t, s.SetState("r1", state))

	got, err := s.GetState("r1")
	require.NoError(t, err)
	assert.Equal(t, state, got)
}

func TestMemoryStorage_ReturnsCopy(t *testing.T) {
	s := NewMemory()
	require.NoError(t, s.SetState("r1", &model.PlaybackState{CurrentTime: 1}))

	got, err := s.GetState("r1")
	require.NoError(t, err)
	got.CurrentTime = 99

	again, err := s.GetState("r1")
	require.NoError(t, err)
	assert.Equal(t, float64(1), again.CurrentTime)
}

func TestMemoryStorage_NilState(t *testing.T) {
	s := NewMemory()
	assert.Error(t, s.SetState("r1", nil))
}

func TestMemoryStorage_Visits(t *testing.T) {
	s := NewMemory()

	v, err := s.IncrVisits()
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	v, err = s.IncrVisits()
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)

	today, err := s.GetVisitsByDate(time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(2), today)

	yesterday, err := s.GetVisitsByDate(time.Now().AddDate(0, 0, -1))
	require.NoError(t, err)
	assert.Zero(t, yesterday)
}
