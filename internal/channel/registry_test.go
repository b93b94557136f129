package channel

import "testing"

func TestPublishFanOutToSubscribers(t *testing.T) {
	r := New()
	r.Subscribe("room", "conn-a")
	r.Subscribe("room", "conn-b")

	delivered, dropped := r.Publish("room", "hello")
	if delivered != 2 {
		t.Fatalf("delivered = %d, want 2", delivered)
	}
	if dropped {
		t.Fatal("fresh channel should not report a queue drop")
	}

	msgs := r.Drain("room", "conn-a")
	if len(msgs) != 1 || msgs[0].Payload != "hello" {
		t.Fatalf("conn-a drain = %+v, want one message with payload hello", msgs)
	}
}

func TestSubscribeIsIdempotent(t *testing.T) {
	r := New()
	r.Subscribe("room", "conn-a")
	r.Subscribe("room", "conn-a")
	if got := r.SubscriberCount("room"); got != 1 {
		t.Fatalf("subscriber count = %d, want 1", got)
	}
}

func TestUnsubscribeStopsFutureDelivery(t *testing.T) {
	r := New()
	r.Subscribe("room", "conn-a")
	r.Unsubscribe("room", "conn-a")
	delivered, _ := r.Publish("room", "msg")
	if delivered != 0 {
		t.Fatalf("delivered = %d, want 0 after unsubscribe", delivered)
	}
}

func TestMessageOrderingPerChannel(t *testing.T) {
	r := New()
	r.Subscribe("room", "conn-a")
	r.Publish("room", "m1")
	r.Publish("room", "m2")
	r.Publish("room", "m3")

	msgs := r.Drain("room", "conn-a")
	if len(msgs) != 3 {
		t.Fatalf("len(msgs) = %d, want 3", len(msgs))
	}
	for i, want := range []string{"m1", "m2", "m3"} {
		if msgs[i].Payload != want {
			t.Fatalf("msgs[%d] = %q, want %q", i, msgs[i].Payload, want)
		}
		if i > 0 && msgs[i].Seq <= msgs[i-1].Seq {
			t.Fatalf("seq not monotonic: %d then %d", msgs[i-1].Seq, msgs[i].Seq)
		}
	}
}

func TestChannelQueueHeadDropOnOverflow(t *testing.T) {
	r := NewWithCapacity(2, DefaultSubscriberCapacity)
	r.Publish("room", "m1")
	r.Publish("room", "m2")
	_, dropped := r.Publish("room", "m3")
	if !dropped {
		t.Fatal("expected third publish into a capacity-2 queue to report a drop")
	}
	if got := r.Llen("room"); got != 2 {
		t.Fatalf("Llen = %d, want 2", got)
	}
	m, ok := r.Rpop("room")
	if !ok || m.Payload != "m2" {
		t.Fatalf("Rpop = %+v, want m2 (m1 should have been head-dropped)", m)
	}
}

func TestSubscriberQueueHeadDropOnOverflow(t *testing.T) {
	r := NewWithCapacity(DefaultQueueCapacity, 2)
	r.Subscribe("room", "conn-a")
	r.Publish("room", "m1")
	r.Publish("room", "m2")
	r.Publish("room", "m3")

	msgs := r.Drain("room", "conn-a")
	if len(msgs) != 2 {
		t.Fatalf("len(msgs) = %d, want 2 (oldest head-dropped)", len(msgs))
	}
	if msgs[0].Payload != "m2" || msgs[1].Payload != "m3" {
		t.Fatalf("msgs = %+v, want [m2 m3]", msgs)
	}
}

func TestRpopOnEmptyOrAbsentChannel(t *testing.T) {
	r := New()
	if _, ok := r.Rpop("nope"); ok {
		t.Fatal("rpop on an absent channel should return ok=false")
	}
	r.Subscribe("room", "conn-a")
	if _, ok := r.Rpop("room"); ok {
		t.Fatal("rpop on an empty (but existing) channel should return ok=false")
	}
}

func TestDestroyResetsChannel(t *testing.T) {
	r := New()
	r.Subscribe("room", "conn-a")
	r.Publish("room", "m1")
	r.Destroy("room")
	if got := r.Llen("room"); got != 0 {
		t.Fatalf("Llen after destroy = %d, want 0", got)
	}
	if got := r.SubscriberCount("room"); got != 0 {
		t.Fatalf("subscriber count after destroy = %d, want 0", got)
	}
}

func TestListReflectsKnownChannels(t *testing.T) {
	r := New()
	r.Subscribe("a", "conn-1")
	r.Publish("b", "hi")
	names := r.List()
	if len(names) != 2 {
		t.Fatalf("List() = %v, want 2 entries", names)
	}
}

func TestUnsubscribeAllOnConnectionClose(t *testing.T) {
	r := New()
	r.Subscribe("a", "conn-1")
	r.Subscribe("b", "conn-1")
	r.UnsubscribeAll("conn-1")
	if r.SubscriberCount("a") != 0 || r.SubscriberCount("b") != 0 {
		t.Fatal("expected conn-1 removed from every channel")
	}
}
