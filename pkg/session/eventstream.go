// pkg/session/eventstream.go
// Copyright(c) 2024-2026 Echo-Map contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package session

import (
	"fmt"
	"log/slog"
	"runtime"
	"slices"
	"sync"
	"time"

	"github.com/Milad9A/Echo-Map-sub001/pkg/log"
)

// EventStream provides a basic pub/sub interface over the session's
// outbound notifications: the session posts, and any number of
// observers (the websocket hub, a recorder, tests) subscribe and
// consume at their own pace.
type EventStream struct {
	mu            sync.Mutex
	notifications []Notification
	subscriptions map[*StreamSubscription]interface{}
	lastPost      time.Time
	warnedLong    bool
	done          chan struct{}
	lg            *log.Logger
}

type StreamSubscription struct {
	stream *EventStream
	// offset is the index into the stream's notification array up to
	// which this subscriber has consumed so far.
	offset      int
	source      string
	lastGet     time.Time
	warnedNoGet bool
}

func (s *StreamSubscription) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("offset", s.offset),
		slog.String("source", s.source),
		slog.Time("last_get", s.lastGet))
}

func NewEventStream(lg *log.Logger) *EventStream {
	es := &EventStream{
		subscriptions: make(map[*StreamSubscription]interface{}),
		lastPost:      time.Now(),
		done:          make(chan struct{}),
		lg:            lg,
	}
	go es.monitor()
	return es
}

// Subscribe registers a new observer and returns its subscription.
func (e *EventStream) Subscribe() *StreamSubscription {
	// Record the subscriber's callsite, so that we can more easily
	// debug subscribers that aren't consuming notifications.
	_, fn, line, _ := runtime.Caller(1)
	source := fmt.Sprintf("%s:%d", fn, line)

	sub := &StreamSubscription{
		stream:  e,
		source:  source,
		lastGet: time.Now(),
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	sub.offset = len(e.notifications)
	e.subscriptions[sub] = nil
	return sub
}

func (e *EventStream) monitor() {
	tick := time.Tick(5 * time.Second)

	for {
		<-tick

		select {
		case <-e.done:
			return
		default:
		}

		e.mu.Lock()

		e.compact()

		if len(e.notifications) > 1000 && !e.warnedLong {
			// It's likely that one of the subscribers is out to lunch
			// if the stream has grown this long.
			e.lg.Warn("Long EventStream", slog.Int("length", len(e.notifications)),
				slog.Int("subscribers", len(e.subscriptions)))
			e.warnedLong = true
		}

		// Check if any of the subscribers haven't been consuming,
		// though only if notifications are being posted so we don't
		// complain while navigation is paused.
		if time.Since(e.lastPost) < 5*time.Second {
			for sub := range e.subscriptions {
				if d := time.Since(sub.lastGet); d > 10*time.Second && !sub.warnedNoGet {
					e.lg.Warn("Subscriber has not called Get() recently",
						slog.Duration("duration", d), slog.Any("subscriber", sub))
					sub.warnedNoGet = true
				}
			}
		}

		e.mu.Unlock()
	}
}

// Unsubscribe removes a subscriber from the subscriber list.
func (s *StreamSubscription) Unsubscribe() {
	s.stream.mu.Lock()
	defer s.stream.mu.Unlock()

	if _, ok := s.stream.subscriptions[s]; !ok {
		s.stream.lg.Errorf("Attempted to unsubscribe invalid subscription: %+v", s)
	}
	delete(s.stream.subscriptions, s)
	s.stream = nil
}

// Post adds a notification to the stream.
func (e *EventStream) Post(n Notification) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.lg.Debug("posted notification", slog.Any("notification", n))

	// Ignore it if no one's paying attention.
	if len(e.subscriptions) > 0 {
		e.lastPost = time.Now()
		e.notifications = append(e.notifications, n)
	}
}

// Get returns all of the notifications posted since the last Get on
// this subscription. Notifications from before Subscribe was called are
// never reported.
func (s *StreamSubscription) Get() []Notification {
	s.stream.mu.Lock()
	defer s.stream.mu.Unlock()

	if _, ok := s.stream.subscriptions[s]; !ok {
		s.stream.lg.Errorf("Attempted to get with unregistered subscription: %+v", s)
		return nil
	}

	ns := slices.Clone(s.stream.notifications[s.offset:])
	s.offset = len(s.stream.notifications)
	s.lastGet = time.Now()
	s.warnedNoGet = false

	return ns
}

func (e *EventStream) Destroy() {
	e.mu.Lock()
	defer e.mu.Unlock()

	close(e.done)
	clear(e.subscriptions)
}

// compact reclaims storage for notifications that all subscribers have
// seen; called periodically so memory usage doesn't grow without bound
// over a long walk.
func (e *EventStream) compact() {
	minOffset := len(e.notifications)
	for sub := range e.subscriptions {
		if sub.offset < minOffset {
			minOffset = sub.offset
		}
	}

	if minOffset > cap(e.notifications)/2 {
		n := len(e.notifications) - minOffset

		copy(e.notifications, e.notifications[minOffset:])
		e.notifications = e.notifications[:n]

		for sub := range e.subscriptions {
			sub.offset -= minOffset
		}

		e.warnedLong = false // reset this after a successful compact.
	}
}

// implements slog.LogValuer
func (e *EventStream) LogValue() slog.Value {
	e.mu.Lock()
	defer e.mu.Unlock()

	items := []slog.Attr{slog.Int("len", len(e.notifications)), slog.Int("cap", cap(e.notifications))}
	if len(e.notifications) > 0 {
		items = append(items, slog.Any("last_element", e.notifications[len(e.notifications)-1]))
	}
	items = append(items, slog.Int("subscribers", len(e.subscriptions)))
	return slog.GroupValue(items...)
}
