package storage_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"post2image/internal/storage"

	"github.com/google/go-cmp/cmp"
)

func TestKey(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 30, 45, 123_000_000, time.FixedZone("JST", 9*60*60))
	got := storage.Key("X", "https://x.com/someuser/status/1234567890", at)

	parts := strings.Split(got, "/")
	if len(parts) != 3 {
		t.Fatalf("unexpected key %s", got)
	}
	if parts[0] != "X" || len(parts[1]) != 16 || parts[2] != "20240301T033045.123Z.png" {
		t.Errorf("unexpected key %s", got)
	}
	if again := storage.Key("X", "https://x.com/someuser/status/1234567890", at.Add(time.Second)); !strings.HasPrefix(again, parts[0]+"/"+parts[1]+"/") {
		t.Errorf("captures of one link do not share a prefix: %s, %s", got, again)
	}
}

func TestFileStorage(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := storage.NewFileStorage(ctx, storage.FileConfig{Directory: dir})
	if err != nil {
		t.Fatal(err)
	}

	data := []byte{0x89, 'P', 'N', 'G'}
	location, err := s.Put(ctx, "X/abc/1.png", data, "image/png")
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(dir, "X", "abc", "1.png"); location != want {
		t.Errorf("got %s, want %s", location, want)
	}

	got, err := s.Get(ctx, location)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(data, got); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestFileStorageRejectsEscapingKeys(t *testing.T) {
	s, err := storage.NewFileStorage(context.Background(), storage.FileConfig{Directory: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"../outside.png", "/etc/passwd"} {
		if _, err := s.Put(context.Background(), key, nil, "image/png"); err == nil {
			t.Errorf("%s was accepted", key)
		}
	}
}

func TestFileStorageGetStaysUnderRoot(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := storage.NewFileStorage(ctx, storage.FileConfig{Directory: filepath.Join(dir, "captures")})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Put(ctx, "X/abc/1.png", []byte("png"), "image/png"); err != nil {
		t.Fatal(err)
	}

	for _, location := range []string{
		filepath.Join(dir, "elsewhere.png"),
		filepath.Join(dir, "captures", "X", "abc", "missing.png"),
	} {
		if _, err := s.Get(ctx, location); err == nil {
			t.Errorf("%s was readable", location)
		}
	}
}

func TestFileStorageOverwrites(t *testing.T) {
	ctx := context.Background()
	s, err := storage.NewFileStorage(ctx, storage.FileConfig{Directory: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Put(ctx, "X/abc/1.png", []byte("first"), "image/png"); err != nil {
		t.Fatal(err)
	}
	location, err := s.Put(ctx, "X/abc/1.png", []byte("second"), "image/png")
	if err != nil {
		t.Fatal(err)
	}

	got, err := s.Get(ctx, location)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]byte("second"), got); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
	entries, err := os.ReadDir(filepath.Dir(location))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("temporary files left behind: %v", entries)
	}
}
