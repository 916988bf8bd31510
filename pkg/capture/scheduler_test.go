package capture

import (
	"context"
	"reflect"
	"testing"
	"time"
)

func TestManualOrder(t *testing.T) {
	m := NewManual()
	var got []string
	m.After(2*time.Second, func() { got = append(got, "c") })
	m.After(time.Second, func() { got = append(got, "a") })
	m.After(time.Second, func() {
		got = append(got, "b")
		m.After(500*time.Millisecond, func() { got = append(got, "b2") })
	})
	m.After(3*time.Second, func() { got = append(got, "d") })

	m.Advance(2 * time.Second)
	if want := []string{"a", "b", "b2", "c"}; !reflect.DeepEqual(got, want) {
		t.Errorf("ran %v, want %v", got, want)
	}
	if m.Pending() != 1 {
		t.Errorf("Pending = %d, want 1", m.Pending())
	}
	if want := time.Unix(2, 0); !m.Now().Equal(want) {
		t.Errorf("Now = %v, want %v", m.Now(), want)
	}
}

func TestManualStop(t *testing.T) {
	m := NewManual()
	ran := 0
	t1 := m.After(time.Second, func() { ran++ })
	t2 := m.After(time.Second, func() { ran++ })

	if !t1.Stop() {
		t.Error("Stop on a pending timer = false, want true")
	}
	if t1.Stop() {
		t.Error("second Stop = true, want false")
	}

	m.Advance(time.Second)
	if ran != 1 {
		t.Errorf("ran %d callbacks, want 1", ran)
	}
	if t2.Stop() {
		t.Error("Stop after run = true, want false")
	}
}

func TestLoop(t *testing.T) {
	l := NewLoop()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan []int, 1)
	var order []int
	l.After(20*time.Millisecond, func() {
		order = append(order, 2)
		done <- order
	})
	l.After(0, func() { order = append(order, 1) })
	cancelled := l.After(10*time.Millisecond, func() { order = append(order, 99) })
	cancelled.Stop()

	errc := make(chan error, 1)
	go func() { errc <- l.Run(ctx) }()

	select {
	case got := <-done:
		if want := []int{1, 2}; !reflect.DeepEqual(got, want) {
			t.Errorf("ran %v, want %v", got, want)
		}
	case <-ctx.Done():
		t.Fatal("loop never ran the callbacks")
	}

	cancel()
	if err := <-errc; err != context.Canceled {
		t.Errorf("Run = %v, want context.Canceled", err)
	}
}
