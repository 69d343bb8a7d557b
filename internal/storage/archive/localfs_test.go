package archive

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLocalFS_WriteRead(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewLocalFS(dir)
	if err != nil {
		t.Fatalf("NewLocalFS: %v", err)
	}

	ctx := context.Background()
	data := []byte(`{"competition_id":"c1"}`)

	if err := fs.Write(ctx, "results/2024-05-01/c1.json", data); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := fs.Read(ctx, "results/2024-05-01/c1.json")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}

	if string(got) != string(data) {
		t.Errorf("got %q, want %q", got, data)
	}
	if _, err := os.Stat(filepath.Join(dir, "results/2024-05-01/c1.json.tmp")); !os.IsNotExist(err) {
		t.Error("temporary file should be renamed away")
	}
}

func TestLocalFS_ReadMissing(t *testing.T) {
	fs, _ := NewLocalFS(t.TempDir())

	_, err := fs.Read(context.Background(), "missing.json")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestLocalFS_Exists(t *testing.T) {
	dir := t.TempDir()
	fs, _ := NewLocalFS(dir)
	ctx := context.Background()

	exists, _ := fs.Exists(ctx, "nonexistent.txt")
	if exists {
		t.Error("expected false for nonexistent file")
	}

	fs.Write(ctx, "exists.txt", []byte("data"))
	exists, _ = fs.Exists(ctx, "exists.txt")
	if !exists {
		t.Error("expected true for existing file")
	}
}

func TestLocalFS_List(t *testing.T) {
	dir := t.TempDir()
	fs, _ := NewLocalFS(dir)
	ctx := context.Background()

	fs.Write(ctx, "results/2024-01-02/b.json", []byte("b"))
	fs.Write(ctx, "results/2024-01-02/a.json", []byte("a"))
	fs.Write(ctx, "results/2024-01-03/c.json", []byte("c"))

	paths, err := fs.List(ctx, "results/2024-01-02")
	if err != nil {
		t.Fatalf("List: %v", err)
	}

	want := []string{"results/2024-01-02/a.json", "results/2024-01-02/b.json"}
	if len(paths) != len(want) {
		t.Fatalf("expected %d paths, got %v", len(want), paths)
	}
	for i := range want {
		if paths[i] != want[i] {
			t.Errorf("paths[%d] = %s, want %s", i, paths[i], want[i])
		}
	}

	none, err := fs.List(ctx, "results/1999-01-01")
	if err != nil || len(none) != 0 {
		t.Errorf("expected empty list for missing prefix, got %v, %v", none, err)
	}
}

func TestLocalFS_StaysUnderBase(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "archive")
	fs, _ := NewLocalFS(base)
	ctx := context.Background()

	if err := fs.Write(ctx, "../escape.json", []byte("x")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "escape.json")); !os.IsNotExist(err) {
		t.Error("write escaped the base directory")
	}
	if ok, _ := fs.Exists(ctx, "escape.json"); !ok {
		t.Error("expected file to land under the base directory")
	}

	if err := fs.Write(ctx, "", []byte("x")); err == nil {
		t.Error("expected error for empty path")
	}
}

func TestLocalFS_Delete(t *testing.T) {
	dir := t.TempDir()
	fs, _ := NewLocalFS(dir)
	ctx := context.Background()

	fs.Write(ctx, "delete.txt", []byte("data"))
	fs.Delete(ctx, "delete.txt")

	exists, _ := fs.Exists(ctx, "delete.txt")
	if exists {
		t.Error("file should be deleted")
	}
}
