package kv_test

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/haivivi/nova/pkg/kv"
)

func stores(t *testing.T) map[string]kv.Store {
	t.Helper()
	b, err := kv.OpenBadger("", kv.WithInMemory())
	if err != nil {
		t.Fatalf("OpenBadger: %v", err)
	}
	m := kv.NewMemory()
	t.Cleanup(func() {
		b.Close()
		m.Close()
	})
	return map[string]kv.Store{"memory": m, "badger": b}
}

func TestGetSetDelete(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			key := kv.Key{"session", "a1"}

			if _, err := s.Get(ctx, key); !errors.Is(err, kv.ErrNotFound) {
				t.Fatalf("Get missing = %v, want ErrNotFound", err)
			}
			if err := s.Set(ctx, key, []byte("one")); err != nil {
				t.Fatalf("Set: %v", err)
			}
			if err := s.Set(ctx, key, []byte("two")); err != nil {
				t.Fatalf("Set overwrite: %v", err)
			}
			got, err := s.Get(ctx, key)
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if string(got) != "two" {
				t.Fatalf("Get = %q, want %q", got, "two")
			}
			if err := s.Delete(ctx, key); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			if err := s.Delete(ctx, key); err != nil {
				t.Fatalf("Delete missing: %v", err)
			}
			if _, err := s.Get(ctx, key); !errors.Is(err, kv.ErrNotFound) {
				t.Fatalf("Get after delete = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestList(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for _, k := range []kv.Key{
				{"session", "c"},
				{"session", "a"},
				{"sessionx", "b"},
				{"image", "z"},
			} {
				if err := s.Set(ctx, k, []byte(k.String())); err != nil {
					t.Fatalf("Set %s: %v", k, err)
				}
			}

			var keys []string
			for e, err := range s.List(ctx, kv.Key{"session"}) {
				if err != nil {
					t.Fatalf("List: %v", err)
				}
				if string(e.Value) != e.Key.String() {
					t.Errorf("value %q does not match key %s", e.Value, e.Key)
				}
				keys = append(keys, e.Key.String())
			}
			if want := []string{"session/a", "session/c"}; !slices.Equal(keys, want) {
				t.Fatalf("List = %v, want %v", keys, want)
			}

			n := 0
			for range s.List(ctx, nil) {
				n++
			}
			if n != 4 {
				t.Fatalf("List(nil) yielded %d entries, want 4", n)
			}
		})
	}
}

func TestListStopsEarly(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for _, id := range []string{"a", "b", "c"} {
				if err := s.Set(ctx, kv.Key{"session", id}, nil); err != nil {
					t.Fatal(err)
				}
			}
			n := 0
			for _, err := range s.List(ctx, kv.Key{"session"}) {
				if err != nil {
					t.Fatal(err)
				}
				n++
				if n == 2 {
					break
				}
			}
			if n != 2 {
				t.Fatalf("iterated %d entries, want 2", n)
			}
		})
	}
}

func TestInvalidKey(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for _, k := range []kv.Key{nil, {"a", ""}, {"a/b"}} {
				if err := s.Set(ctx, k, []byte("x")); err == nil {
					t.Errorf("Set(%q) succeeded, want error", []string(k))
				}
			}
		})
	}
}

func TestMemoryReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := kv.NewMemory()
	val := []byte("abc")
	if err := s.Set(ctx, kv.Key{"k"}, val); err != nil {
		t.Fatal(err)
	}
	val[0] = 'x'
	got, _ := s.Get(ctx, kv.Key{"k"})
	got[1] = 'y'
	again, _ := s.Get(ctx, kv.Key{"k"})
	if string(again) != "abc" {
		t.Fatalf("stored value mutated: %q", again)
	}
}

func TestOpenBadgerRequiresDir(t *testing.T) {
	if _, err := kv.OpenBadger(""); err == nil {
		t.Fatal("OpenBadger(\"\") succeeded, want error")
	}
}

func TestBadgerOnDisk(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := kv.OpenBadger(dir)
	if err != nil {
		t.Fatalf("OpenBadger: %v", err)
	}
	if err := s.Set(ctx, kv.Key{"session", "p"}, []byte("persisted")); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s, err = kv.OpenBadger(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	got, err := s.Get(ctx, kv.Key{"session", "p"})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "persisted" {
		t.Fatalf("Get = %q", got)
	}
}
