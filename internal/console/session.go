package console

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/term"

	"warren/watch"
)

// Session is one connected console user. It owns the watchers created by
// /watch commands and prints their events to the terminal as they arrive.
// When the session ends, every watcher it still holds is closed, so a
// disconnected user never lingers on a topic.
type Session struct {
	user   string
	term   *term.Terminal
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	watches map[string]*watch.Watcher
	wg      sync.WaitGroup
}

// NewSession creates a session for user writing to terminal.
func NewSession(user string, terminal *term.Terminal) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		user:    user,
		term:    terminal,
		ctx:     ctx,
		cancel:  cancel,
		watches: make(map[string]*watch.Watcher),
	}
}

// User returns the authenticated SSH username.
func (s *Session) User() string {
	return s.user
}

// Context is cancelled when the session closes. Watchers created against
// it clean themselves up even if the session is torn down abruptly.
func (s *Session) Context() context.Context {
	return s.ctx
}

// AddWatch adopts w under label and starts printing its events to the
// terminal. Returns false if label is already taken; ownership of w then
// stays with the caller.
func (s *Session) AddWatch(label string, w *watch.Watcher) bool {
	s.mu.Lock()
	if _, ok := s.watches[label]; ok {
		s.mu.Unlock()
		return false
	}
	s.watches[label] = w
	s.mu.Unlock()

	s.wg.Add(1)
	go s.pump(w)
	return true
}

// RemoveWatch closes the watcher under label and reports whether one
// existed. Events it buffered before the close still print.
func (s *Session) RemoveWatch(label string) bool {
	s.mu.Lock()
	w, ok := s.watches[label]
	delete(s.watches, label)
	s.mu.Unlock()
	if !ok {
		return false
	}
	w.Close()
	return true
}

// Watches returns the active watch labels in sorted order.
func (s *Session) Watches() []string {
	s.mu.Lock()
	labels := make([]string, 0, len(s.watches))
	for label := range s.watches {
		labels = append(labels, label)
	}
	s.mu.Unlock()
	sort.Strings(labels)
	return labels
}

// Close cancels the session context, closes every remaining watcher, and
// waits until their buffered events have been printed. Idempotent.
func (s *Session) Close() {
	s.cancel()

	s.mu.Lock()
	ws := make([]*watch.Watcher, 0, len(s.watches))
	for _, w := range s.watches {
		ws = append(ws, w)
	}
	s.watches = make(map[string]*watch.Watcher)
	s.mu.Unlock()

	for _, w := range ws {
		w.Close()
	}
	s.wg.Wait()
}

// pump prints a watcher's events until its channel closes.
func (s *Session) pump(w *watch.Watcher) {
	defer s.wg.Done()
	for ev := range w.Events() {
		switch ev.Kind {
		case watch.KindDeleted:
			_, _ = fmt.Fprintf(s.term, "[%s] deleted %s\r\n", ev.Bucket, ev.Key)
		default:
			_, _ = fmt.Fprintf(s.term, "[%s] updated %s = %v\r\n", ev.Bucket, ev.Key, ev.Value)
		}
	}
}
