package archive

import (
	"context"
	"testing"
)

func TestLocalFS_ImplementsStorage(t *testing.T) {
	var _ Storage = (*LocalFS)(nil)
}

func TestLocalFS_WriteRead(t *testing.T) {
	fs, err := NewLocalFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalFS: %v", err)
	}

	ctx := context.Background()
	data := []byte(`{"id":"abc"}`)

	if err := fs.Write(ctx, "results/abc.json", data); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := fs.Read(ctx, "results/abc.json")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != string(data) {
		t.Errorf("got %q, want %q", got, data)
	}
}

func TestLocalFS_Exists(t *testing.T) {
	fs, _ := NewLocalFS(t.TempDir())
	ctx := context.Background()

	exists, err := fs.Exists(ctx, "results/missing.json")
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if exists {
		t.Error("expected false for a missing key")
	}

	fs.Write(ctx, "results/here.json", []byte("{}"))
	exists, _ = fs.Exists(ctx, "results/here.json")
	if !exists {
		t.Error("expected true for a written key")
	}
}

func TestLocalFS_List(t *testing.T) {
	fs, _ := NewLocalFS(t.TempDir())
	ctx := context.Background()

	fs.Write(ctx, "results/b.json", []byte("b"))
	fs.Write(ctx, "results/a.json", []byte("a"))
	fs.Write(ctx, "other/c.json", []byte("c"))

	keys, err := fs.List(ctx, "results")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("expected 2 keys, got %d: %v", len(keys), keys)
	}
	if keys[0] != "results/a.json" || keys[1] != "results/b.json" {
		t.Errorf("keys should be slash-separated and sorted, got %v", keys)
	}
}

func TestLocalFS_ListMissingPrefix(t *testing.T) {
	fs, _ := NewLocalFS(t.TempDir())

	keys, err := fs.List(context.Background(), "nothing")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(keys) != 0 {
		t.Errorf("missing prefix should list empty, got %v", keys)
	}
}

func TestLocalFS_Delete(t *testing.T) {
	fs, _ := NewLocalFS(t.TempDir())
	ctx := context.Background()

	fs.Write(ctx, "results/gone.json", []byte("{}"))
	if err := fs.Delete(ctx, "results/gone.json"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	exists, _ := fs.Exists(ctx, "results/gone.json")
	if exists {
		t.Error("key should be gone after delete")
	}
}
