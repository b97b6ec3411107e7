package orchestrator

import (
	"io"
	"log/slog"
	"sync"

	"git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
	"git.home.luguber.info/inful/assetpipe/internal/logfields"
)

type subscription struct {
	name   string
	closer io.Closer
}

// Lifecycle owns long-lived handles such as bundler watch sessions, the dev
// server, file watchers or the history store. They are closed in reverse
// registration order.
type Lifecycle struct {
	mu     sync.Mutex
	subs   []subscription
	closed bool
}

// Track registers c. Registering after Close closes c immediately.
func (l *Lifecycle) Track(name string, c io.Closer) {
	l.mu.Lock()
	if !l.closed {
		l.subs = append(l.subs, subscription{name: name, closer: c})
		l.mu.Unlock()
		slog.Debug("Subscription registered", slog.String("subscription", name))
		return
	}
	l.mu.Unlock()
	if err := c.Close(); err != nil {
		slog.Warn("Error closing late subscription", slog.String("subscription", name), logfields.Error(err))
	}
}

// Len returns the number of open subscriptions.
func (l *Lifecycle) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.subs)
}

// Names lists the open subscriptions in registration order.
func (l *Lifecycle) Names() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	names := make([]string, len(l.subs))
	for i, s := range l.subs {
		names[i] = s.name
	}
	return names
}

// Close closes every subscription, newest first. All subscriptions are
// closed even when some fail; the last failure is returned.
func (l *Lifecycle) Close() error {
	l.mu.Lock()
	subs := l.subs
	l.subs = nil
	l.closed = true
	l.mu.Unlock()

	if len(subs) == 0 {
		return nil
	}
	slog.Debug("Closing subscriptions", logfields.Count(len(subs)))

	var lastErr error
	for i := len(subs) - 1; i >= 0; i-- {
		s := subs[i]
		if err := s.closer.Close(); err != nil {
			lastErr = err
			slog.Error("Error closing subscription", slog.String("subscription", s.name), logfields.Error(err))
		}
	}
	if lastErr != nil {
		return errors.RuntimeError("some subscriptions failed to close").WithCause(lastErr).Build()
	}
	return nil
}
