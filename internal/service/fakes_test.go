package service

import (
	"context"
	"sync"
	"testing"
	"time"
)

type sentText struct {
	to, text string
}

type fakeSession struct {
	mu         sync.Mutex
	identity   string
	loggedIn   bool
	connectErr error
	closeErr   error
	sendErr    error
	closed     int
	loggedOut  int
	sent       []sentText
	// connecting, when set, is signalled on entry and Connect then waits
	// for release before returning.
	connecting chan struct{}
	release    chan struct{}
}

func (s *fakeSession) Connect(ctx context.Context) error {
	if s.connecting != nil {
		close(s.connecting)
		<-s.release
	}
	return s.connectErr
}

func (s *fakeSession) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *fakeSession) Identity() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

func (s *fakeSession) IsLoggedIn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loggedIn
}

func (s *fakeSession) setLoggedIn(v bool) {
	s.mu.Lock()
	s.loggedIn = v
	s.mu.Unlock()
}

func (s *fakeSession) SendText(ctx context.Context, to, text string) (SendResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return SendResult{}, s.sendErr
	}
	s.sent = append(s.sent, sentText{to: to, text: text})
	return SendResult{ID: "3EB0C767D26A1D8F", Timestamp: time.Unix(1700000000, 0)}, nil
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return s.closeErr
}

func (s *fakeSession) Logout(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loggedOut++
	return nil
}

type fakeConnector struct {
	mu      sync.Mutex
	session *fakeSession
	openErr error
	opened  int
}

func (c *fakeConnector) Open(ctx context.Context, sink EventSink) (Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.opened++
	if c.openErr != nil {
		return nil, c.openErr
	}
	return c.session, nil
}

func (c *fakeConnector) openCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opened
}

type fakeStore struct {
	number  string
	err     error
	cleared int
}

func (s *fakeStore) Exists(ctx context.Context) (bool, error) { return s.number != "", s.err }

func (s *fakeStore) PersistedNumber(ctx context.Context) (string, error) { return s.number, s.err }

func (s *fakeStore) Clear(ctx context.Context) error {
	s.cleared++
	return s.err
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}
