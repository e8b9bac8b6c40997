package manager

import (
	"testing"

	"github.com/sstash/sstash/internal/sstasherr"
)

func newTestManager(t *testing.T) *Manager {
	m, err := New(Config{DataDir: t.TempDir(), DefaultMaxKeyCount: 0})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(m.CloseAll)
	return m
}

func TestDefaultStashExists(t *testing.T) {
	m := newTestManager(t)
	if _, err := m.Get(DefaultStashName); err != nil {
		t.Fatalf("expected default stash to exist: %v", err)
	}
}

func TestCannotDropDefault(t *testing.T) {
	m := newTestManager(t)
	err := m.Drop(DefaultStashName)
	if se := sstasherr.As(err); se == nil || se.Code != sstasherr.CodeCannotDropDefault {
		t.Fatalf("expected cannot-drop-default error, got %v", err)
	}
}

func TestCreateIsIdempotent(t *testing.T) {
	m := newTestManager(t)
	if err := m.Create("s", false, 10); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := m.Create("s", false, 999); err != nil {
		t.Fatalf("re-Create should be a no-op, not an error: %v", err)
	}
	s, err := m.Get("s")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if s.MaxKeyCount != 10 {
		t.Fatalf("expected original max key count retained, got %d", s.MaxKeyCount)
	}
}

func TestDropMissingIsNoop(t *testing.T) {
	m := newTestManager(t)
	if err := m.Drop("never-created"); err != nil {
		t.Fatalf("dropping an absent stash should not error: %v", err)
	}
}

func TestGetMissingStash(t *testing.T) {
	m := newTestManager(t)
	_, err := m.Get("absent")
	if se := sstasherr.As(err); se == nil || se.Code != sstasherr.CodeNoSuchStash {
		t.Fatalf("expected no-such-stash error, got %v", err)
	}
}

func TestStashCountCap(t *testing.T) {
	m := newTestManager(t)
	for i := 0; i < MaxStashCount-1; i++ { // -1: default stash already counts
		if err := m.Create(nameFor(i), false, 10); err != nil {
			t.Fatalf("Create %d: %v", i, err)
		}
	}
	err := m.Create("one-too-many", false, 10)
	if se := sstasherr.As(err); se == nil || se.Code != sstasherr.CodeManagerFull {
		t.Fatalf("expected manager-full error, got %v", err)
	}
}

func nameFor(i int) string {
	const letters = "abcdefghijklmnopqrstuvwxyz"
	return string(letters[i%26]) + string(rune('0'+i/26))
}

func TestDropClosesStash(t *testing.T) {
	m := newTestManager(t)
	_ = m.Create("s", false, 10)
	s, _ := m.Get("s")
	_ = s.Set("k", []byte("v"), nil)

	if err := m.Drop("s"); err != nil {
		t.Fatalf("Drop: %v", err)
	}
	if _, _, err := s.Get("k", true); err == nil {
		t.Fatalf("expected stash-closed error after Drop")
	}
	if _, err := m.Get("s"); err == nil {
		t.Fatalf("expected no-such-stash after Drop")
	}
}
