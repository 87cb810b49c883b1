package imp

import (
	"strings"
	"sync"
	"testing"
)

func TestEvent_FiresInRegistrationOrder(t *testing.T) {
	var e Event[int]
	var got []string
	e.Subscribe(func(int) { got = append(got, "a") })
	e.Subscribe(func(int) { got = append(got, "b") })
	e.Subscribe(func(int) { got = append(got, "c") })
	e.Fire(1)
	if want := "abc"; strings.Join(got, "") != want {
		t.Errorf("order = %q, want %q", strings.Join(got, ""), want)
	}
}

func TestEvent_Unsubscribe(t *testing.T) {
	var e Event[string]
	calls := 0
	id := e.Subscribe(func(string) { calls++ })
	e.Subscribe(func(string) { calls += 10 })

	if !e.Unsubscribe(id) {
		t.Fatal("Unsubscribe() = false, want true")
	}
	if e.Unsubscribe(id) {
		t.Error("second Unsubscribe() = true, want false")
	}
	e.Fire("x")
	if calls != 10 {
		t.Errorf("calls = %d, want 10", calls)
	}
	if e.Len() != 1 {
		t.Errorf("Len() = %d, want 1", e.Len())
	}
}

func TestEvent_UnsubscribeDuringFire(t *testing.T) {
	var e Event[int]
	var id SubscriptionID
	fired := 0
	id = e.Subscribe(func(int) {
		fired++
		e.Unsubscribe(id)
	})
	e.Fire(0)
	e.Fire(0)
	if fired != 1 {
		t.Errorf("fired = %d, want 1", fired)
	}
}

func TestEvent_ConcurrentSubscribeAndFire(t *testing.T) {
	var e Event[int]
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			id := e.Subscribe(func(int) {})
			e.Unsubscribe(id)
		}()
		go func() {
			defer wg.Done()
			e.Fire(1)
		}()
	}
	wg.Wait()
	if e.Len() != 0 {
		t.Errorf("Len() = %d, want 0", e.Len())
	}
}
