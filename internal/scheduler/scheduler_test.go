package scheduler

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestScheduleOnceFires(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()

	done := make(chan struct{})
	s.ScheduleOnce("k1", 10*time.Millisecond, func() { close(done) })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timer did not fire")
	}

	if s.Pending() != 0 {
		t.Errorf("expected key released after firing, pending=%d", s.Pending())
	}
}

func TestCancel(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()

	var fired atomic.Bool
	s.ScheduleOnce("k1", 30*time.Millisecond, func() { fired.Store(true) })

	if !s.Cancel("k1") {
		t.Fatal("expected cancel to find the timer")
	}
	if s.Cancel("k1") {
		t.Error("second cancel must report nothing armed")
	}

	time.Sleep(60 * time.Millisecond)
	if fired.Load() {
		t.Error("cancelled timer fired")
	}
}

func TestScheduleOnceReplaces(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()

	var first, second atomic.Bool
	s.ScheduleOnce("k1", 30*time.Millisecond, func() { first.Store(true) })
	s.ScheduleOnce("k1", 10*time.Millisecond, func() { second.Store(true) })

	if s.Pending() != 1 {
		t.Fatalf("expected 1 pending timer, got %d", s.Pending())
	}

	time.Sleep(80 * time.Millisecond)
	if first.Load() {
		t.Error("replaced timer fired")
	}
	if !second.Load() {
		t.Error("replacement timer did not fire")
	}
}

func TestStopCancelsAll(t *testing.T) {
	s := NewScheduler()

	var fired atomic.Int32
	for _, key := range []string{"a", "b", "c"} {
		s.ScheduleOnce(key, 30*time.Millisecond, func() { fired.Add(1) })
	}
	s.Stop()

	time.Sleep(60 * time.Millisecond)
	if n := fired.Load(); n != 0 {
		t.Errorf("expected no timers after Stop, %d fired", n)
	}
}
