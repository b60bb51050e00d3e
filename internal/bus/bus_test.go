package bus

import (
	"testing"

	"github.com/openmux/openmux/internal/term"
)

func TestSubscribeReceivesLateFullRefresh(t *testing.T) {
	topic := NewTopic(nil)
	topic.PublishUpdate(term.DirtyUpdate{IsFull: true, FullState: &term.TerminalState{Cols: 80}})

	var got []term.DirtyUpdate
	topic.SubscribeUpdate(func(u term.DirtyUpdate) { got = append(got, u) })

	if len(got) != 1 || !got[0].IsFull {
		t.Fatalf("expected synthetic full refresh on subscribe, got %+v", got)
	}
}

func TestPublishDeliversToAllSubscribers(t *testing.T) {
	topic := NewTopic(nil)
	var a, b int
	topic.SubscribeUpdate(func(term.DirtyUpdate) { a++ })
	topic.SubscribeUpdate(func(term.DirtyUpdate) { b++ })

	topic.PublishUpdate(term.DirtyUpdate{IsFull: true, FullState: &term.TerminalState{}})
	if a != 1 || b != 1 {
		t.Fatalf("a=%d b=%d, want 1,1", a, b)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	topic := NewTopic(nil)
	var n int
	h := topic.SubscribeUpdate(func(term.DirtyUpdate) { n++ })
	h.Release()

	topic.PublishUpdate(term.DirtyUpdate{IsFull: true, FullState: &term.TerminalState{}})
	if n != 0 {
		t.Fatalf("n=%d, want 0 after unsubscribe", n)
	}
}

func TestPanicInSubscriberDoesNotStopSiblings(t *testing.T) {
	var panicked bool
	topic := NewTopic(func(r any) { panicked = true })

	var sawSibling bool
	topic.SubscribeUpdate(func(term.DirtyUpdate) { panic("boom") })
	topic.SubscribeUpdate(func(term.DirtyUpdate) { sawSibling = true })

	topic.PublishUpdate(term.DirtyUpdate{IsFull: true, FullState: &term.TerminalState{}})

	if !panicked {
		t.Errorf("expected onPanic to be invoked")
	}
	if !sawSibling {
		t.Errorf("expected sibling subscriber to still be called")
	}
}

func TestExitFiresExactlyOnce(t *testing.T) {
	topic := NewTopic(nil)
	var n int
	topic.SubscribeExit(func(ExitInfo) { n++ })

	topic.PublishExit(ExitInfo{Code: 0})
	topic.PublishExit(ExitInfo{Code: 1})

	if n != 1 {
		t.Fatalf("n=%d, want exactly 1", n)
	}
}

func TestBusTopicReuse(t *testing.T) {
	b := New(nil)
	t1 := b.Topic("pty-1")
	t2 := b.Topic("pty-1")
	if t1 != t2 {
		t.Errorf("expected same topic instance for the same PTY id")
	}

	b.Remove("pty-1")
	t3 := b.Topic("pty-1")
	if t3 == t1 {
		t.Errorf("expected a fresh topic after Remove")
	}
}
