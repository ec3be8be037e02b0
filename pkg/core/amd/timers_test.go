package amd

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestTimers_FiresOnce(t *testing.T) {
	timers := NewTimers()
	var fired atomic.Int64
	timers.Arm("abc", 10*time.Millisecond, func(string) { fired.Add(1) })

	time.Sleep(100 * time.Millisecond)
	if n := fired.Load(); n != 1 {
		t.Fatalf("fired=%d, want 1", n)
	}
	if timers.Pending() != 0 {
		t.Fatalf("pending=%d after fire, want 0", timers.Pending())
	}
	if timers.Cancel("abc") {
		t.Fatalf("Cancel returned true after timer already fired")
	}
}

func TestTimers_CancelBeforeFire(t *testing.T) {
	timers := NewTimers()
	var fired atomic.Int64
	timers.Arm("abc", 50*time.Millisecond, func(string) { fired.Add(1) })

	if !timers.Cancel("abc") {
		t.Fatalf("Cancel returned false for pending timer")
	}
	time.Sleep(150 * time.Millisecond)
	if n := fired.Load(); n != 0 {
		t.Fatalf("fired=%d after cancel, want 0", n)
	}
}

func TestTimers_RearmReplaces(t *testing.T) {
	timers := NewTimers()
	var first, second atomic.Int64
	timers.Arm("abc", 20*time.Millisecond, func(string) { first.Add(1) })
	timers.Arm("abc", 20*time.Millisecond, func(string) { second.Add(1) })

	time.Sleep(150 * time.Millisecond)
	if first.Load() != 0 {
		t.Fatalf("replaced timer fired")
	}
	if second.Load() != 1 {
		t.Fatalf("second timer fired %d times, want 1", second.Load())
	}
}

func TestTimers_CancelRace_ExactlyOneOutcome(t *testing.T) {
	timers := NewTimers()
	for i := 0; i < 200; i++ {
		var fired atomic.Int64
		timers.Arm("abc", time.Millisecond, func(string) { fired.Add(1) })
		time.Sleep(time.Millisecond)
		cancelled := timers.Cancel("abc")
		time.Sleep(5 * time.Millisecond)
		if cancelled && fired.Load() != 0 {
			t.Fatalf("iteration %d: both cancel and fire happened", i)
		}
		if !cancelled && fired.Load() != 1 {
			t.Fatalf("iteration %d: neither cancel nor fire happened", i)
		}
	}
}

func TestTimers_CancelAll(t *testing.T) {
	timers := NewTimers()
	var fired atomic.Int64
	timers.Arm("a", 50*time.Millisecond, func(string) { fired.Add(1) })
	timers.Arm("b", 50*time.Millisecond, func(string) { fired.Add(1) })
	timers.CancelAll()

	time.Sleep(150 * time.Millisecond)
	if fired.Load() != 0 {
		t.Fatalf("fired=%d after CancelAll, want 0", fired.Load())
	}
	if timers.Pending() != 0 {
		t.Fatalf("pending=%d, want 0", timers.Pending())
	}
}
