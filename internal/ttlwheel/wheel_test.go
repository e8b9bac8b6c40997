package ttlwheel

import (
	"testing"
	"time"
)

func TestAddAndIsExpired(t *testing.T) {
	w := New()
	w.Add("k", 50)
	if w.IsExpired("k") {
		t.Fatalf("key should not be expired immediately")
	}
	time.Sleep(80 * time.Millisecond)
	if !w.IsExpired("k") {
		t.Fatalf("key should be expired after ttl elapsed")
	}
}

func TestAbsentKeyNeverExpired(t *testing.T) {
	w := New()
	if w.IsExpired("missing") {
		t.Fatalf("absent key must never report expired")
	}
}

func TestRemove(t *testing.T) {
	w := New()
	w.Add("k", 10*1000)
	w.Remove("k")
	if w.ExpirationOf("k") != 0 {
		t.Fatalf("expected 0 expiration after remove")
	}
}

func TestPeekDueBounded(t *testing.T) {
	w := New()
	for i := 0; i < 1500; i++ {
		w.AddAt(string(rune('a'+i%26))+string(rune(i)), 1) // already in the past
	}
	due := w.PeekDue()
	if len(due) != 1000 {
		t.Fatalf("expected sweep bounded at 1000, got %d", len(due))
	}
	for _, key := range due {
		if !w.RemoveIfStillDue(key) {
			t.Fatalf("expected %q to still be due for removal", key)
		}
	}
	// second sweep picks up the remainder
	due2 := w.PeekDue()
	if len(due2) != 500 {
		t.Fatalf("expected remaining 500 entries, got %d", len(due2))
	}
}

func TestRemoveIfStillDueRejectsRefreshedEntry(t *testing.T) {
	w := New()
	w.AddAt("k", 1) // already in the past

	due := w.PeekDue()
	if len(due) != 1 || due[0] != "k" {
		t.Fatalf("expected k to be due, got %v", due)
	}

	// simulate a concurrent SetWithTTL racing the sweep: it lands between
	// the peek and the caller's stripe-locked removal.
	w.Add("k", 10*1000)

	if w.RemoveIfStillDue("k") {
		t.Fatalf("expected a refreshed entry to survive the sweep")
	}
	if w.ExpirationOf("k") == 0 {
		t.Fatalf("expected the refreshed TTL entry to remain in the wheel")
	}
}

func TestRemoveIfStillDueRejectsAlreadyRemovedEntry(t *testing.T) {
	w := New()
	w.AddAt("k", 1) // already in the past

	due := w.PeekDue()
	if len(due) != 1 || due[0] != "k" {
		t.Fatalf("expected k to be due, got %v", due)
	}

	// simulate a concurrent permanent Set racing the sweep: it clears the
	// TTL entry entirely between the peek and the caller's removal.
	w.Remove("k")

	if w.RemoveIfStillDue("k") {
		t.Fatalf("expected an already-cleared entry to report not-still-due")
	}
}

func TestAddReplacesExisting(t *testing.T) {
	w := New()
	w.Add("k", 10)
	w.Add("k", 100000)
	if w.Len() != 1 {
		t.Fatalf("expected a single entry for repeated Add, got %d", w.Len())
	}
}
