package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/benaskins/tessera/internal/vault"
)

func TestDefaultBackend(t *testing.T) {
	s := New()
	backends, err := s.Enumerate(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(backends) != 1 {
		t.Fatalf("got %d backends, want 1", len(backends))
	}
	b := backends[0]
	if b.Source != "memory" || b.Handler != vault.SecretsService || !b.Encrypted {
		t.Errorf("default backend = %+v", b)
	}
}

func TestStoreFetchDelete(t *testing.T) {
	s := New()
	ctx := context.Background()
	b := vault.Backend{Source: "memory"}

	ref1, err := s.Store(ctx, b, "one", "blob-1")
	if err != nil {
		t.Fatal(err)
	}
	ref2, err := s.Store(ctx, b, "two", "blob-2")
	if err != nil {
		t.Fatal(err)
	}
	if ref1 == ref2 {
		t.Fatalf("refs collide: %s", ref1)
	}

	entries, err := s.Fetch(ctx, b)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 || entries[0].Label != "one" || entries[1].Label != "two" {
		t.Errorf("entries = %+v, want insertion order kept", entries)
	}

	if err := s.Delete(ctx, b, ref1); err != nil {
		t.Fatal(err)
	}
	entries, _ = s.Fetch(ctx, b)
	if len(entries) != 1 || entries[0].Ref != ref2 {
		t.Errorf("after delete: %+v", entries)
	}

	if err := s.Delete(ctx, b, "item-999"); err == nil {
		t.Error("deleting a missing ref succeeded")
	}
}

func TestReadOnly(t *testing.T) {
	s := New()
	s.SetReadOnly("memory")
	_, err := s.Store(context.Background(), vault.Backend{Source: "memory"}, "x", "y")
	if !errors.Is(err, vault.ErrNoSaver) {
		t.Errorf("err = %v, want ErrNoSaver", err)
	}
}

func TestFailFetch(t *testing.T) {
	s := New()
	boom := errors.New("boom")
	s.FailFetch("memory", boom)
	_, err := s.Fetch(context.Background(), vault.Backend{Source: "memory"})
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want the injected failure", err)
	}
}
