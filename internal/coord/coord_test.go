package coord

import (
	"testing"
	"time"
)

func TestMemoryStoreBasics(t *testing.T) {
	s := NewMemoryStore()

	if _, err := s.Get("missing"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := s.Set("room.ABCDEF", "10.0.0.1:22023", 0); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	val, err := s.Get("room.ABCDEF")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if val != "10.0.0.1:22023" {
		t.Fatalf("unexpected value %q", val)
	}

	if err := s.Del("room.ABCDEF"); err != nil {
		t.Fatalf("del failed: %v", err)
	}
	if _, err := s.Get("room.ABCDEF"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestMemoryStoreTTL(t *testing.T) {
	s := NewMemoryStore()
	s.Set("k", "v", 10*time.Millisecond)
	if _, err := s.Get("k"); err != nil {
		t.Fatalf("fresh key should exist: %v", err)
	}
	time.Sleep(30 * time.Millisecond)
	if _, err := s.Get("k"); err != ErrNotFound {
		t.Fatalf("expired key should be gone, got %v", err)
	}
}

func TestMemoryStoreCounters(t *testing.T) {
	s := NewMemoryStore()
	if n, _ := s.Incr("connections.1.2.3.4", 1); n != 1 {
		t.Fatalf("expected 1, got %d", n)
	}
	if n, _ := s.Incr("connections.1.2.3.4", 1); n != 2 {
		t.Fatalf("expected 2, got %d", n)
	}
	if n, _ := s.Decr("connections.1.2.3.4", 1); n != 1 {
		t.Fatalf("expected 1, got %d", n)
	}
}

func TestMemoryStoreKeys(t *testing.T) {
	s := NewMemoryStore()
	s.Set("room.AAAAAA", "a", 0)
	s.Set("room.BBBBBB", "b", 0)
	s.Set("ban.1.2.3.4", "cheating", 0)

	keys, err := s.Keys("room.*")
	if err != nil {
		t.Fatalf("keys failed: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("expected 2 room keys, got %d: %v", len(keys), keys)
	}
}

func TestRedirectMarkerSingle(t *testing.T) {
	s := NewMemoryStore()

	ok, err := ConsumeRedirect(s, "1.2.3.4", "alice")
	if err != nil {
		t.Fatalf("consume failed: %v", err)
	}
	if ok {
		t.Fatal("no marker should mean rejection")
	}

	if err := MarkRedirected(s, "1.2.3.4", "alice"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	ok, err = ConsumeRedirect(s, "1.2.3.4", "alice")
	if err != nil || !ok {
		t.Fatalf("marked client should be accepted, ok=%v err=%v", ok, err)
	}

	// The single marker is spent.
	ok, _ = ConsumeRedirect(s, "1.2.3.4", "alice")
	if ok {
		t.Fatal("marker must be consumed exactly once")
	}
}

func TestRedirectMarkerCounts(t *testing.T) {
	s := NewMemoryStore()
	ip, name := "5.6.7.8", "alice"

	// The same player redirected twice in quick succession.
	MarkRedirected(s, ip, name)
	MarkRedirected(s, ip, name)

	for i := 0; i < 2; i++ {
		ok, err := ConsumeRedirect(s, ip, name)
		if err != nil || !ok {
			t.Fatalf("consume %d: ok=%v err=%v", i, ok, err)
		}
	}
	if ok, _ := ConsumeRedirect(s, ip, name); ok {
		t.Fatal("third consume should fail")
	}
}

func TestRedirectMarkerUsernameScoped(t *testing.T) {
	s := NewMemoryStore()
	MarkRedirected(s, "1.2.3.4", "alice")

	// A different player behind the same NAT must not spend it.
	if ok, _ := ConsumeRedirect(s, "1.2.3.4", "bob"); ok {
		t.Fatal("marker for another player must not match")
	}
	if ok, _ := ConsumeRedirect(s, "1.2.3.4", "alice"); !ok {
		t.Fatal("original marker should still be live")
	}
}
