// Package event implements the structured-event bus fired on commit,
// reject, and view-change (§6): Torii's /events subscribes here; this
// repository only defines the events and delivers them.
//
// FeedOf is a minimal generic multicast primitive in the shape of
// go-ethereum's event.Feed: Subscribe registers a channel, Send delivers a
// value to every current subscriber. Unlike go-ethereum's Feed, Send here
// blocks on a slow subscriber rather than juggling a dynamic select set —
// callers that need to shed a stuck subscriber should give it a buffered
// channel and drain it promptly.
package event

import "sync"

// Subscription is returned by FeedOf.Subscribe. Unsubscribe stops delivery
// to the channel and closes Err's channel.
type Subscription interface {
	Unsubscribe()
	Err() <-chan error
}

// FeedOf multicasts values of type T to every subscribed channel. The zero
// value is ready to use.
type FeedOf[T any] struct {
	mu   sync.Mutex
	subs map[*feedSub[T]]struct{}
}

type feedSub[T any] struct {
	feed *FeedOf[T]
	ch   chan<- T
	err  chan error
	once sync.Once
}

// Subscribe registers channel to receive every value sent after this call.
func (f *FeedOf[T]) Subscribe(channel chan<- T) Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subs == nil {
		f.subs = make(map[*feedSub[T]]struct{})
	}
	sub := &feedSub[T]{feed: f, ch: channel, err: make(chan error, 1)}
	f.subs[sub] = struct{}{}
	return sub
}

// Send delivers value to every currently subscribed channel, blocking until
// each has received it, and returns the number of subscribers it reached.
func (f *FeedOf[T]) Send(value T) int {
	f.mu.Lock()
	subs := make([]*feedSub[T], 0, len(f.subs))
	for s := range f.subs {
		subs = append(subs, s)
	}
	f.mu.Unlock()

	for _, s := range subs {
		s.ch <- value
	}
	return len(subs)
}

func (s *feedSub[T]) Unsubscribe() {
	s.once.Do(func() {
		s.feed.mu.Lock()
		delete(s.feed.subs, s)
		s.feed.mu.Unlock()
		close(s.err)
	})
}

func (s *feedSub[T]) Err() <-chan error { return s.err }
