package server

import (
	"sync"

	"github.com/brojonat/signwatch/service/dashboard"
)

// viewSession is the dashboard page's table state. The page is a single
// shared view, so there is one session per server.
type viewSession struct {
	mu     sync.Mutex
	state  dashboard.ViewState
	notice string
}

func newViewSession(pageSize int) *viewSession {
	return &viewSession{state: dashboard.NewViewState(pageSize)}
}

// Dispatch applies actions in order and returns the resulting state.
func (s *viewSession) Dispatch(actions ...dashboard.Action) dashboard.ViewState {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range actions {
		s.state = dashboard.Reduce(s.state, a)
	}
	return s.state
}

// State returns the current state.
func (s *viewSession) State() dashboard.ViewState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetNotice stores a message shown once on the next render.
func (s *viewSession) SetNotice(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notice = msg
}

// TakeNotice returns and clears the pending notice.
func (s *viewSession) TakeNotice() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg := s.notice
	s.notice = ""
	return msg
}

// follow applies DataReplaced for every new store version until updates closes.
func (s *viewSession) follow(updates <-chan dashboard.Update) {
	for u := range updates {
		if u.Kind == dashboard.UpdateFetched {
			s.Dispatch(dashboard.DataReplaced{Version: u.Snapshot.Version})
		}
	}
}
