package storage

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLocal_PutGetDelete(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := NewLocal(dir)
	if err != nil {
		t.Fatal(err)
	}

	loc, err := s.Put(ctx, "images/a.png", "image/png", []byte("png-bytes"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if want := filepath.Join(s.Root(), "images", "a.png"); loc != want {
		t.Errorf("location = %q, want %q", loc, want)
	}
	if !filepath.IsAbs(loc) {
		t.Errorf("location %q is not absolute", loc)
	}

	got, err := s.Get(ctx, "images/a.png")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got, []byte("png-bytes")) {
		t.Errorf("Get = %q", got)
	}

	ok, err := s.Exists(ctx, "images/a.png")
	if err != nil || !ok {
		t.Fatalf("Exists = %v, %v", ok, err)
	}

	if err := s.Delete(ctx, "images/a.png"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete(ctx, "images/a.png"); err != nil {
		t.Fatalf("second Delete: %v", err)
	}
	if _, err := s.Get(ctx, "images/a.png"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after delete = %v, want ErrNotFound", err)
	}
	ok, err = s.Exists(ctx, "images/a.png")
	if err != nil || ok {
		t.Errorf("Exists after delete = %v, %v", ok, err)
	}
}

func TestLocal_PutReplacesAndLeavesNoTemp(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	for _, body := range []string{"first", "second"} {
		if _, err := s.Put(ctx, "x.png", "", []byte(body)); err != nil {
			t.Fatal(err)
		}
	}
	got, err := s.Get(ctx, "x.png")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "second" {
		t.Errorf("Get = %q, want second", got)
	}

	entries, err := os.ReadDir(s.Root())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("root holds %v, want only x.png", names)
	}
}

func TestLocal_RejectsEscapingNames(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"", "../x.png", "a/../../x.png", "a//b.png", "a/./b.png"} {
		if _, err := s.Put(ctx, name, "", []byte("x")); err == nil {
			t.Errorf("Put(%q) succeeded", name)
		}
	}
}

func TestCleanName(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"a.png", "a.png", true},
		{"/a/b.png", "a/b.png", true},
		{"a/b/c.png", "a/b/c.png", true},
		{"", "", false},
		{"/", "", false},
		{"..", "", false},
		{"a/../b", "", false},
	}
	for _, tt := range tests {
		got, err := cleanName(tt.in)
		if (err == nil) != tt.ok {
			t.Errorf("cleanName(%q) err = %v, want ok=%v", tt.in, err, tt.ok)
			continue
		}
		if tt.ok && got != tt.want {
			t.Errorf("cleanName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
