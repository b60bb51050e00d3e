package keyboard

import "testing"

func TestDispatchToCoreWhenNoOverlay(t *testing.T) {
	var gotKey string
	core := HandlerFunc{Consume: func(k Key) bool { gotKey = k.Key; return true }}
	r := New(core)

	if !r.Dispatch(Key{Key: "a"}) {
		t.Fatal("expected consumption")
	}
	if gotKey != "a" {
		t.Fatalf("core did not receive key: %q", gotKey)
	}
}

func TestTopActiveOverlayWins(t *testing.T) {
	var coreCalled bool
	core := HandlerFunc{Consume: func(Key) bool { coreCalled = true; return true }}
	r := New(core)

	var overlayCalled bool
	release := r.Push(HandlerFunc{
		Active:  func() bool { return true },
		Consume: func(Key) bool { overlayCalled = true; return true },
	})
	defer release()

	r.Dispatch(Key{Key: "x"})
	if !overlayCalled {
		t.Errorf("expected overlay to receive event")
	}
	if coreCalled {
		t.Errorf("core should not see an event consumed by an overlay")
	}
}

func TestInactiveOverlaySkipped(t *testing.T) {
	var coreCalled bool
	core := HandlerFunc{Consume: func(Key) bool { coreCalled = true; return true }}
	r := New(core)

	release := r.Push(HandlerFunc{Active: func() bool { return false }})
	defer release()

	r.Dispatch(Key{Key: "x"})
	if !coreCalled {
		t.Errorf("expected dispatch to fall through to core past an inactive overlay")
	}
}

func TestDecliningActiveOverlayFallsThroughToCoreNotLowerOverlay(t *testing.T) {
	var coreCalled, lowerCalled bool
	core := HandlerFunc{Consume: func(Key) bool { coreCalled = true; return true }}
	r := New(core)

	releaseLower := r.Push(HandlerFunc{
		Active:  func() bool { return true },
		Consume: func(Key) bool { lowerCalled = true; return true },
	})
	defer releaseLower()

	releaseTop := r.Push(HandlerFunc{
		Active:  func() bool { return true },
		Consume: func(Key) bool { return false },
	})
	defer releaseTop()

	r.Dispatch(Key{Key: "x"})
	if lowerCalled {
		t.Errorf("a declining active overlay must not fall through to a lower overlay")
	}
	if !coreCalled {
		t.Errorf("expected fallthrough to core")
	}
}

func TestPushReleasePopsExactlyThatHandler(t *testing.T) {
	r := New(nil)
	var calls []string
	h1 := HandlerFunc{Active: func() bool { return true }, Consume: func(Key) bool { calls = append(calls, "h1"); return true }}
	h2 := HandlerFunc{Active: func() bool { return true }, Consume: func(Key) bool { calls = append(calls, "h2"); return true }}

	releaseH1 := r.Push(h1)
	releaseH2 := r.Push(h2)

	r.Dispatch(Key{})
	releaseH2()
	r.Dispatch(Key{})
	releaseH1()

	if len(calls) != 2 || calls[0] != "h2" || calls[1] != "h1" {
		t.Fatalf("calls = %v", calls)
	}
}
