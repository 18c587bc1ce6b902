package store

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xueqianLu/contestpay/internal/backend"
)

func TestContestStore_StaleWritesDropped(t *testing.T) {
	s := NewContestStore()
	s.Select("c1")

	ticket := s.Ticket()
	s.Select("c2") // user navigated away

	assert.False(t, s.MarkJoined(ticket, "c1"))
	assert.False(t, s.Joined("c1"))
	assert.False(t, s.ApplyContests(ticket, []backend.Contest{{ID: "c1"}}))
	assert.Empty(t, s.Contests())

	ticket = s.Ticket()
	assert.True(t, s.MarkJoined(ticket, "c2"))
	assert.True(t, s.Joined("c2"))
}

func TestContestStore_SelectedAndReplace(t *testing.T) {
	s := NewContestStore()
	ticket := s.Ticket()
	require.True(t, s.ApplyContests(ticket, []backend.Contest{{ID: "c1", Title: "A"}, {ID: "c2", Title: "B"}}))

	_, ok := s.Selected()
	assert.False(t, ok)

	s.Select("c2")
	c, ok := s.Selected()
	require.True(t, ok)
	assert.Equal(t, "B", c.Title)

	old := s.Ticket()
	s.Replace([]backend.Contest{{ID: "c3"}})
	assert.NotEqual(t, old, s.Ticket())
	assert.Len(t, s.Contests(), 1)
	_, ok = s.Selected()
	assert.False(t, ok)
}

func TestContestStore_ContestsIsCopy(t *testing.T) {
	s := NewContestStore()
	s.Replace([]backend.Contest{{ID: "c1"}})
	list := s.Contests()
	list[0].ID = "mutated"
	assert.Equal(t, "c1", s.Contests()[0].ID)
}

func TestContestStore_Concurrent(t *testing.T) {
	s := NewContestStore()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.MarkJoined(s.Ticket(), "c1")
		}()
		go func() {
			defer wg.Done()
			s.Select("c1")
		}()
	}
	wg.Wait()
	assert.Equal(t, uint64(50), s.Ticket())
}

func TestUserStore(t *testing.T) {
	s := NewUserStore()
	_, ok := s.User()
	assert.False(t, ok)

	ticket := s.Ticket()
	require.True(t, s.SetUser(ticket, backend.User{ID: "u1"}))
	u, ok := s.User()
	require.True(t, ok)
	assert.Equal(t, "u1", u.ID)

	s.Clear()
	_, ok = s.User()
	assert.False(t, ok)
	assert.False(t, s.SetUser(ticket, backend.User{ID: "u1"}), "fetch started before logout")
}
