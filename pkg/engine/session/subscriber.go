package session

import (
	"sync"

	"github.com/paperwave/studio/pkg/engine/events"
)

// Subscriber is one independent event feed. Each subscriber has its own
// buffered channel; a slow consumer loses events rather than stalling the
// pump or its siblings.
type Subscriber struct {
	session *Session
	kinds   map[events.Kind]struct{}
	ch      chan events.Event

	closeOnce sync.Once
}

// Subscribe registers a feed for the given kinds; nil or empty means every
// kind. The feed receives events emitted after registration only.
func (s *Session) Subscribe(kinds []events.Kind) *Subscriber {
	sub := &Subscriber{
		session: s,
		ch:      make(chan events.Event, s.opts.SubscriberBuffer),
	}
	if len(kinds) > 0 {
		sub.kinds = make(map[events.Kind]struct{}, len(kinds))
		for _, k := range kinds {
			sub.kinds[k] = struct{}{}
		}
	}

	s.subsMu.Lock()
	s.subs[sub] = struct{}{}
	s.subsMu.Unlock()
	return sub
}

// Events yields this subscriber's feed. The channel closes on Close.
func (sub *Subscriber) Events() <-chan events.Event {
	return sub.ch
}

// Close detaches the subscriber and closes its feed.
func (sub *Subscriber) Close() {
	sub.closeOnce.Do(func() {
		s := sub.session
		s.subsMu.Lock()
		delete(s.subs, sub)
		close(sub.ch)
		s.subsMu.Unlock()
	})
}

func (sub *Subscriber) wants(k events.Kind) bool {
	if sub.kinds == nil {
		return true
	}
	_, ok := sub.kinds[k]
	return ok
}

// dispatch delivers one event to every matching subscriber. Delivery is
// non-blocking per subscriber; the lock is held across the sends so a Close
// cannot race a send into a closed channel.
func (s *Session) dispatch(ev events.Event) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for sub := range s.subs {
		if !sub.wants(ev.Kind()) {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			s.logger.Warn("subscriber buffer full, dropping event", "kind", ev.Kind())
		}
	}
}
