package storage

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func tempVault(t *testing.T) *FS {
	t.Helper()
	dir := t.TempDir()
	fs, err := NewFS(dir)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return fs
}

func TestWriteAndRead(t *testing.T) {
	s := tempVault(t)
	content := []byte("# Hello\nWorld\n")
	if err := s.Write("note.md", content); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := s.Read("note.md")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("content mismatch: got %q", got)
	}
}

func TestWriteCreatesSubdirs(t *testing.T) {
	s := tempVault(t)
	if err := s.Write("Readwise/Books/c.md", []byte("deep")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := s.Read("Readwise/Books/c.md")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != "deep" {
		t.Errorf("content = %q", got)
	}
}

func TestCreate_RefusesExisting(t *testing.T) {
	s := tempVault(t)
	if err := s.Create("a.md", []byte("first")); err != nil {
		t.Fatalf("Create: %v", err)
	}
	err := s.Create("a.md", []byte("second"))
	if !errors.Is(err, fs.ErrExist) {
		t.Fatalf("second Create err = %v, want fs.ErrExist", err)
	}
	got, _ := s.Read("a.md")
	if string(got) != "first" {
		t.Errorf("content = %q, existing file must not be replaced", got)
	}
	matches, _ := filepath.Glob(filepath.Join(s.root, ".marginalia-tmp-*"))
	if len(matches) != 0 {
		t.Errorf("leftover temp files: %v", matches)
	}
}

func TestExists_CaseInsensitiveName(t *testing.T) {
	s := tempVault(t)
	_ = s.Write("Books/Dune.md", []byte("x"))

	for _, p := range []string{"Books/Dune.md", "Books/dune.md", "Books/DUNE.MD"} {
		ok, err := s.Exists(p)
		if err != nil {
			t.Fatalf("Exists(%q): %v", p, err)
		}
		if !ok {
			t.Errorf("Exists(%q) = false, want true", p)
		}
	}
	ok, err := s.Exists("Articles/Dune.md")
	if err != nil || ok {
		t.Errorf("Exists in missing dir = %v, %v", ok, err)
	}
}

func TestResolve_ReturnsActualName(t *testing.T) {
	s := tempVault(t)
	_ = s.Write("Books/Dune.md", []byte("x"))

	got, ok, err := s.Resolve("Books/dune.md")
	if err != nil || !ok {
		t.Fatalf("Resolve = %q, %v, %v", got, ok, err)
	}
	if got != "Books/Dune.md" {
		t.Errorf("actual = %q, want Books/Dune.md", got)
	}
	if _, ok, _ := s.Resolve("Books/Other.md"); ok {
		t.Error("Resolve found a missing file")
	}
}

func TestProcess_UnchangedSkipsWrite(t *testing.T) {
	s := tempVault(t)
	_ = s.Write("same.md", []byte("same"))
	old := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := s.SetModTime("same.md", old); err != nil {
		t.Fatal(err)
	}
	if err := s.Process("same.md", func(b []byte) ([]byte, error) { return b, nil }); err != nil {
		t.Fatal(err)
	}
	info, _ := os.Stat(filepath.Join(s.Root(), "same.md"))
	if !info.ModTime().Equal(old) {
		t.Errorf("mtime changed to %v", info.ModTime())
	}
}

func TestProcess(t *testing.T) {
	s := tempVault(t)
	_ = s.Write("p.md", []byte("hello"))
	err := s.Process("p.md", func(b []byte) ([]byte, error) {
		return []byte(strings.ToUpper(string(b))), nil
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	got, _ := s.Read("p.md")
	if string(got) != "HELLO" {
		t.Errorf("content = %q", got)
	}
}

func TestProcess_FnErrorLeavesFile(t *testing.T) {
	s := tempVault(t)
	_ = s.Write("p.md", []byte("keep"))
	err := s.Process("p.md", func([]byte) ([]byte, error) {
		return nil, errors.New("boom")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	got, _ := s.Read("p.md")
	if string(got) != "keep" {
		t.Errorf("content = %q", got)
	}
}

func TestMove(t *testing.T) {
	s := tempVault(t)
	_ = s.Write("old.md", []byte("data"))
	if err := s.Move("old.md", "sub/new.md"); err != nil {
		t.Fatalf("Move: %v", err)
	}
	got, err := s.Read("sub/new.md")
	if err != nil {
		t.Fatalf("Read after move: %v", err)
	}
	if string(got) != "data" {
		t.Errorf("content = %q", got)
	}
	if _, err := s.Read("old.md"); err == nil {
		t.Error("old path should not exist")
	}
}

func TestTrash(t *testing.T) {
	s := tempVault(t)
	_ = s.Write("Books/dup.md", []byte("one"))
	if err := s.Trash("Books/dup.md"); err != nil {
		t.Fatalf("Trash: %v", err)
	}
	if ok, _ := s.Exists("Books/dup.md"); ok {
		t.Error("trashed file still present")
	}
	got, err := os.ReadFile(filepath.Join(s.root, TrashDir, "Books", "dup.md"))
	if err != nil || string(got) != "one" {
		t.Fatalf("trash copy = %q, %v", got, err)
	}

	// A second trash of the same path must not clobber the first.
	_ = s.Write("Books/dup.md", []byte("two"))
	if err := s.Trash("Books/dup.md"); err != nil {
		t.Fatalf("Trash again: %v", err)
	}
	entries, _ := os.ReadDir(filepath.Join(s.root, TrashDir, "Books"))
	if len(entries) != 2 {
		t.Errorf("trash entries = %d, want 2", len(entries))
	}
}

func TestList(t *testing.T) {
	s := tempVault(t)
	_ = s.Write("a.md", []byte("a"))
	_ = s.Write("sub/b.md", []byte("b"))
	_ = s.Write("readme.txt", []byte("not md"))
	_ = s.Write(".trash/c.md", []byte("trashed"))

	items, err := s.List("")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 2 {
		t.Errorf("len = %d, want 2", len(items))
	}
	for _, it := range items {
		if strings.Contains(it.Path, "\\") {
			t.Errorf("path %q should use forward slashes", it.Path)
		}
	}
}

func TestList_MissingDir(t *testing.T) {
	s := tempVault(t)
	items, err := s.List("nope")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("len = %d", len(items))
	}
}

func TestSetModTime(t *testing.T) {
	s := tempVault(t)
	_ = s.Write("t.md", []byte("x"))
	when := time.Date(2021, 3, 4, 5, 6, 7, 0, time.UTC)
	if err := s.SetModTime("t.md", when); err != nil {
		t.Fatalf("SetModTime: %v", err)
	}
	info, err := os.Stat(filepath.Join(s.root, "t.md"))
	if err != nil {
		t.Fatal(err)
	}
	if !info.ModTime().Equal(when) {
		t.Errorf("mtime = %v, want %v", info.ModTime(), when)
	}
}

func TestTraversalBlocked(t *testing.T) {
	s := tempVault(t)

	cases := []string{
		"../../etc/passwd",
		"../outside.md",
		"/etc/shadow",
	}
	for _, p := range cases {
		if _, err := s.Read(p); err == nil {
			t.Errorf("expected error for path %q", p)
		}
		if err := s.Write(p, []byte("x")); err == nil {
			t.Errorf("expected error for write to %q", p)
		}
	}
}

func TestNewFS_NonExistentDir(t *testing.T) {
	_, err := NewFS("/tmp/marginalia-does-not-exist-" + t.Name())
	if err == nil {
		t.Error("expected error for non-existent dir")
	}
}

func TestNewFS_FileNotDir(t *testing.T) {
	f, _ := os.CreateTemp("", "marginalia-test-*")
	_ = f.Close()
	defer os.Remove(f.Name())
	_, err := NewFS(f.Name())
	if err == nil {
		t.Error("expected error when root is a file")
	}
}
