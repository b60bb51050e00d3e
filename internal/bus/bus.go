// Package bus is the Subscription Bus (spec §4.I): per-PTY fan-out of
// unified updates, scroll state, title changes, and exit, with
// synchronous in-tick delivery and an exactly-once guarantee for exit.
//
// Grounded on dcosson-h2/internal/session/session.go's ForEachClient
// pattern (iterate a snapshot of registered clients under the lock,
// then call each outside any lock the callback itself might need) and
// on ptyservice.Subscribers, which this package supersedes as the
// engine's real multi-listener fan-out — ptyservice.Create still
// accepts a single Subscribers value per PTY, but the engine wiring
// layer passes one backed by a Bus.Topic so any number of listeners
// (the TUI, the aggregate index, a capture tool) can subscribe and
// unsubscribe independently.
package bus

import (
	"sync"

	"github.com/openmux/openmux/internal/term"
)

// Handle is returned by each Subscribe call; release it to unsubscribe.
type Handle struct {
	id     uint64
	remove func(uint64)
}

// Release unsubscribes. Idempotent.
func (h *Handle) Release() {
	if h == nil || h.remove == nil {
		return
	}
	h.remove(h.id)
	h.remove = nil
}

// ExitInfo is delivered to exit subscribers exactly once.
type ExitInfo struct {
	Code   int
	Signal string
}

type entry[T any] struct {
	id uint64
	fn func(T)
}

// channel is a generic single-event-type subscriber registry with
// synchronous, error-tolerant delivery.
type channel[T any] struct {
	mu   sync.Mutex
	next uint64
	subs []entry[T]
}

func (c *channel[T]) subscribe(fn func(T)) *Handle {
	c.mu.Lock()
	c.next++
	id := c.next
	c.subs = append(c.subs, entry[T]{id: id, fn: fn})
	c.mu.Unlock()
	return &Handle{id: id, remove: c.unsubscribe}
}

func (c *channel[T]) unsubscribe(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, e := range c.subs {
		if e.id == id {
			c.subs = append(c.subs[:i], c.subs[i+1:]...)
			return
		}
	}
}

// snapshot copies the subscriber list under the lock so a subscriber
// added or removed mid-delivery (e.g. from within its own callback)
// never races the delivery loop.
func (c *channel[T]) snapshot() []entry[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]entry[T], len(c.subs))
	copy(out, c.subs)
	return out
}

// publish delivers val to every current subscriber, catching panics so
// one misbehaving subscriber never prevents delivery to its siblings
// (spec §4.I: "exceptions thrown by a subscriber are caught ... and do
// not prevent delivery to siblings"). onPanic, if non-nil, is called
// once per recovered panic.
func (c *channel[T]) publish(val T, onPanic func(any)) {
	for _, e := range c.snapshot() {
		deliverOne(e.fn, val, onPanic)
	}
}

func deliverOne[T any](fn func(T), val T, onPanic func(any)) {
	defer func() {
		if r := recover(); r != nil && onPanic != nil {
			onPanic(r)
		}
	}()
	fn(val)
}

// Topic is one PTY's full set of subscriber channels. A synthetic full
// refresh is sent to a late-subscribing update listener so it "receives
// a synthetic full refresh before any delta" (spec §5).
type Topic struct {
	onPanic func(any)

	update      channel[term.DirtyUpdate]
	scrollState channel[term.ScrollState]
	title       channel[string]
	exit        channel[ExitInfo]

	mu         sync.Mutex
	lastUpdate *term.DirtyUpdate
	exited     bool
}

// NewTopic creates an empty topic. onPanic, if non-nil, is invoked with
// the recovered value whenever a subscriber callback panics.
func NewTopic(onPanic func(any)) *Topic {
	return &Topic{onPanic: onPanic}
}

// SubscribeUpdate registers fn for unified updates. If a full update has
// already been published, fn is immediately invoked with it (as a full
// refresh) before any subsequent delta, per spec §5.
func (t *Topic) SubscribeUpdate(fn func(term.DirtyUpdate)) *Handle {
	h := t.update.subscribe(fn)
	t.mu.Lock()
	last := t.lastUpdate
	t.mu.Unlock()
	if last != nil {
		refresh := *last
		refresh.IsFull = true
		deliverOne(fn, refresh, t.onPanic)
	}
	return h
}

// SubscribeScrollState registers fn for scroll-state changes.
func (t *Topic) SubscribeScrollState(fn func(term.ScrollState)) *Handle {
	return t.scrollState.subscribe(fn)
}

// SubscribeTitle registers fn for OSC title changes.
func (t *Topic) SubscribeTitle(fn func(string)) *Handle {
	return t.title.subscribe(fn)
}

// SubscribeExit registers fn to be called exactly once when the PTY
// exits. If the PTY has already exited, fn is never called again —
// exit is a one-shot event, not a replayed snapshot like update.
func (t *Topic) SubscribeExit(fn func(ExitInfo)) *Handle {
	return t.exit.subscribe(fn)
}

// PublishUpdate fans out a DirtyUpdate and remembers it (for late
// subscribers) if it was a full refresh.
func (t *Topic) PublishUpdate(u term.DirtyUpdate) {
	if u.IsFull {
		t.mu.Lock()
		cp := u
		t.lastUpdate = &cp
		t.mu.Unlock()
	}
	t.update.publish(u, t.onPanic)
}

// PublishScrollState fans out a ScrollState change.
func (t *Topic) PublishScrollState(s term.ScrollState) {
	t.scrollState.publish(s, t.onPanic)
}

// PublishTitle fans out a title change.
func (t *Topic) PublishTitle(title string) {
	t.title.publish(title, t.onPanic)
}

// PublishExit fans out exit info exactly once; subsequent calls are
// no-ops, which is what makes SubscribeExit's "exactly once across its
// lifetime" guarantee (spec §8 property 10) hold even if the PTY
// service's exit path is ever invoked twice defensively.
func (t *Topic) PublishExit(info ExitInfo) {
	t.mu.Lock()
	if t.exited {
		t.mu.Unlock()
		return
	}
	t.exited = true
	t.mu.Unlock()
	t.exit.publish(info, t.onPanic)
}

// Bus owns one Topic per PTY.
type Bus struct {
	onPanic func(any)

	mu     sync.Mutex
	topics map[string]*Topic
}

// New creates an empty Bus.
func New(onPanic func(any)) *Bus {
	return &Bus{onPanic: onPanic, topics: make(map[string]*Topic)}
}

// Topic returns (creating if necessary) the Topic for ptyID.
func (b *Bus) Topic(ptyID string) *Topic {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.topics[ptyID]
	if !ok {
		t = NewTopic(b.onPanic)
		b.topics[ptyID] = t
	}
	return t
}

// Remove drops a PTY's topic once it's permanently gone (spec §3: a PTY
// is exclusively owned by the registry; once destroyed its subscriber
// sets have nothing left to deliver to).
func (b *Bus) Remove(ptyID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.topics, ptyID)
}
