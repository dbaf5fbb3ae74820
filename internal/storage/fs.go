package storage

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	pathpkg "path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/starford/marginalia/internal/checksum"
)

// TrashDir is the vault-relative folder that receives soft-deleted files.
const TrashDir = ".trash"

// FS implements Provider backed by the local file system.
type FS struct {
	root string // absolute path to vault directory
}

// NewFS creates a new FS provider rooted at the given directory.
// The directory must already exist.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	}
	return &FS{root: abs}, nil
}

// Root returns the absolute vault root.
func (f *FS) Root() string {
	return f.root
}

// safePath resolves a relative path against the vault root and rejects
// any result that escapes it (directory traversal).
func (f *FS) safePath(rel string) (string, error) {
	if rel == "" {
		return f.root, nil
	}
	cleaned := filepath.Clean(filepath.FromSlash(rel))
	if filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("storage: absolute paths not allowed: %s", rel)
	}
	abs, err := filepath.Abs(filepath.Join(f.root, cleaned))
	if err != nil {
		return "", fmt.Errorf("storage: resolve path: %w", err)
	}
	if !strings.HasPrefix(abs, f.root+string(os.PathSeparator)) && abs != f.root {
		return "", fmt.Errorf("storage: path escapes vault root: %s", rel)
	}
	return abs, nil
}

// List walks dir (relative to root) and returns metadata for every .md file.
func (f *FS) List(dir string) ([]FileMeta, error) {
	base, err := f.safePath(dir)
	if err != nil {
		return nil, err
	}
	var out []FileMeta
	err = filepath.WalkDir(base, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if errors.Is(walkErr, fs.ErrNotExist) && p == base {
				return filepath.SkipDir
			}
			return walkErr
		}
		if d.IsDir() {
			if p != base && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(d.Name(), ".md") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(f.root, p)
		out = append(out, FileMeta{
			Path:     filepath.ToSlash(rel),
			Checksum: checksum.Sum(data),
			ModTime:  info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storage: list: %w", err)
	}
	return out, nil
}

// Exists reports whether path is occupied, matching the file name case-insensitively.
func (f *FS) Exists(path string) (bool, error) {
	_, ok, err := f.Resolve(path)
	return ok, err
}

// Resolve returns the on-disk path occupying path. An exact match wins;
// otherwise the final element is matched case-insensitively.
func (f *FS) Resolve(path string) (string, bool, error) {
	abs, err := f.safePath(path)
	if err != nil {
		return "", false, err
	}
	if _, err := os.Stat(abs); err == nil {
		return path, true, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return "", false, fmt.Errorf("storage: stat %s: %w", path, err)
	}
	entries, err := os.ReadDir(filepath.Dir(abs))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("storage: read dir for %s: %w", path, err)
	}
	name := filepath.Base(abs)
	for _, e := range entries {
		if strings.EqualFold(e.Name(), name) {
			return pathpkg.Join(pathpkg.Dir(filepath.ToSlash(path)), e.Name()), true, nil
		}
	}
	return "", false, nil
}

// Read returns the raw bytes of a vault file.
func (f *FS) Read(path string) ([]byte, error) {
	abs, err := f.safePath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", path, err)
	}
	return data, nil
}

// Create writes content to a new file. The temp file is hard-linked into
// place so an existing file is never replaced.
func (f *FS) Create(path string, content []byte) error {
	abs, err := f.safePath(path)
	if err != nil {
		return err
	}
	tmpName, err := f.writeTemp(abs, content)
	if err != nil {
		return err
	}
	defer os.Remove(tmpName)
	if err := os.Link(tmpName, abs); err != nil {
		return fmt.Errorf("storage: create %s: %w", path, err)
	}
	return nil
}

// Write atomically writes content: tmp file → fsync → rename.
func (f *FS) Write(path string, content []byte) error {
	abs, err := f.safePath(path)
	if err != nil {
		return err
	}
	tmpName, err := f.writeTemp(abs, content)
	if err != nil {
		return err
	}
	if err := os.Rename(tmpName, abs); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("storage: rename: %w", err)
	}
	return nil
}

// Process reads the file, passes its content to fn and atomically writes the
// result. Identical output leaves the file untouched.
func (f *FS) Process(path string, fn func([]byte) ([]byte, error)) error {
	data, err := f.Read(path)
	if err != nil {
		return err
	}
	out, err := fn(data)
	if err != nil {
		return fmt.Errorf("storage: process %s: %w", path, err)
	}
	if bytes.Equal(out, data) {
		return nil
	}
	return f.Write(path, out)
}

// writeTemp writes content to a synced temp file next to abs and returns its name.
func (f *FS) writeTemp(abs string, content []byte) (string, error) {
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("storage: mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".marginalia-tmp-*")
	if err != nil {
		return "", fmt.Errorf("storage: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return "", fmt.Errorf("storage: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return "", fmt.Errorf("storage: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("storage: close temp: %w", err)
	}
	success = true
	return tmpName, nil
}

// Move renames a file within the vault.
func (f *FS) Move(oldPath, newPath string) error {
	absOld, err := f.safePath(oldPath)
	if err != nil {
		return err
	}
	absNew, err := f.safePath(newPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(absNew), 0o755); err != nil {
		return fmt.Errorf("storage: mkdir for move: %w", err)
	}
	if err := os.Rename(absOld, absNew); err != nil {
		return fmt.Errorf("storage: move: %w", err)
	}
	return nil
}

// Trash moves a file into TrashDir, keeping its relative path. A clashing
// trash entry gets a unix-time suffix.
func (f *FS) Trash(path string) error {
	abs, err := f.safePath(path)
	if err != nil {
		return err
	}
	rel, err := filepath.Rel(f.root, abs)
	if err != nil {
		return fmt.Errorf("storage: trash %s: %w", path, err)
	}
	target := filepath.Join(f.root, TrashDir, rel)
	if _, err := os.Stat(target); err == nil {
		ext := filepath.Ext(target)
		target = strings.TrimSuffix(target, ext) + " " + strconv.FormatInt(time.Now().UnixNano(), 10) + ext
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("storage: mkdir for trash: %w", err)
	}
	if err := os.Rename(abs, target); err != nil {
		return fmt.Errorf("storage: trash %s: %w", path, err)
	}
	return nil
}

// SetModTime sets both access and modification time of the file.
func (f *FS) SetModTime(path string, t time.Time) error {
	abs, err := f.safePath(path)
	if err != nil {
		return err
	}
	if err := os.Chtimes(abs, t, t); err != nil {
		return fmt.Errorf("storage: chtimes %s: %w", path, err)
	}
	return nil
}
