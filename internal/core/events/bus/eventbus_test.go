package bus

import (
	"errors"
	"testing"
)

func TestBasicPublishSubscribe(t *testing.T) {
	b := New()
	var got []any
	_, err := b.Subscribe("entity.created", func(e Event) error {
		got = append(got, e.Data())
		return nil
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err = b.Publish(NewEvent("entity.created", "scene", "cam1", nil)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err = b.Publish(NewEvent("entity.deleted", "scene", "cam1", nil)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(got) != 1 || got[0] != "cam1" {
		t.Fatalf("unexpected deliveries: %v", got)
	}
}

func TestWildcardAndOrder(t *testing.T) {
	b := New()
	var order []string
	_, _ = b.Subscribe(Wildcard, func(e Event) error {
		order = append(order, "all:"+e.Type())
		return nil
	})
	_, _ = b.Subscribe("scene.rendered", func(e Event) error {
		order = append(order, "rendered")
		return nil
	})
	if err := b.PublishBatch(
		NewEvent("scene.rendered", "scene", nil, nil),
		NewEvent("scene.cleared", "scene", nil, nil),
	); err != nil {
		t.Fatalf("publish: %v", err)
	}
	want := []string{"all:scene.rendered", "rendered", "all:scene.cleared"}
	if len(order) != len(want) {
		t.Fatalf("got %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("got %v, want %v", order, want)
		}
	}
}

func TestHandlerErrorsAreJoined(t *testing.T) {
	b := New()
	e1 := errors.New("first")
	e2 := errors.New("second")
	_, _ = b.Subscribe("x", func(Event) error { return e1 })
	_, _ = b.Subscribe("x", func(Event) error { return e2 })

	err := b.Publish(NewEvent("x", "src", nil, nil))
	if !errors.Is(err, e1) || !errors.Is(err, e2) {
		t.Fatalf("expected joined error, got %v", err)
	}
}

func TestUnsubscribe(t *testing.T) {
	b := New()
	calls := 0
	sub, err := b.Subscribe("x", func(Event) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if b.Subscribers("x") != 1 {
		t.Fatalf("expected one subscriber")
	}
	if err = b.Unsubscribe(sub); err != nil {
		t.Fatalf("unsubscribe: %v", err)
	}
	_ = sub.Cancel()
	if sub.IsActive() || b.Subscribers("x") != 0 {
		t.Fatalf("subscription still active")
	}
	_ = b.Publish(NewEvent("x", "src", nil, nil))
	if calls != 0 {
		t.Fatalf("handler called after unsubscribe")
	}
	if err = b.Unsubscribe(nil); err != nil {
		t.Fatalf("nil unsubscribe: %v", err)
	}
}

func TestFilteredAndNilHandler(t *testing.T) {
	b := New()
	seen := 0
	onlyCam := func(e Event) bool { return e.Data() == "cam1" }
	_, _ = b.Subscribe("entity.created", Filtered(func(Event) error {
		seen++
		return nil
	}, onlyCam))
	_ = b.Publish(NewEvent("entity.created", "scene", "sphere1", nil))
	_ = b.Publish(NewEvent("entity.created", "scene", "cam1", nil))
	if seen != 1 {
		t.Fatalf("filter not applied: %d", seen)
	}
	if _, err := b.Subscribe("x", nil); !errors.Is(err, ErrNilHandler) {
		t.Fatalf("expected ErrNilHandler, got %v", err)
	}
}
