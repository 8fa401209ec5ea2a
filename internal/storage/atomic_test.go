package storage

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWriteAtomicReplaces(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	os.WriteFile(path, []byte("old"), 0o644)

	err := writeAtomic(path, func(w io.Writer) error {
		// The target is untouched until the content is complete.
		if data, _ := os.ReadFile(path); string(data) != "old" {
			t.Errorf("during write = %q, want old", data)
		}
		_, err := w.Write([]byte("new"))
		return err
	})
	if err != nil {
		t.Fatalf("writeAtomic() error = %v", err)
	}
	if data, _ := os.ReadFile(path); string(data) != "new" {
		t.Errorf("after write = %q, want new", data)
	}
}

func TestWriteAtomicFailureKeepsTarget(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.json")
	os.WriteFile(path, []byte("old"), 0o644)

	boom := errors.New("encode failed")
	err := writeAtomic(path, func(w io.Writer) error {
		w.Write([]byte("partial"))
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("writeAtomic() error = %v, want %v", err, boom)
	}

	if data, _ := os.ReadFile(path); string(data) != "old" {
		t.Errorf("after failure = %q, want old", data)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("temp file left behind: %d entries", len(entries))
	}
}

func TestWriteAtomicCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "nested", "out.json")
	if err := writeAtomic(path, func(w io.Writer) error { _, err := w.Write([]byte("{}")); return err }); err != nil {
		t.Fatalf("writeAtomic() error = %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("Stat() error = %v", err)
	}
}

func TestFileLockExclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "posted_videos.json")

	first := NewFileLock(path)
	if err := first.Lock(time.Second); err != nil {
		t.Fatalf("first Lock() error = %v", err)
	}

	second := NewFileLock(path)
	err := second.Lock(50 * time.Millisecond)
	if !IsLockTimeout(err) {
		t.Errorf("second Lock() error = %v, want ErrLockTimeout", err)
	}

	if err := first.Unlock(); err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}
	if err := second.Lock(time.Second); err != nil {
		t.Fatalf("Lock() after unlock error = %v", err)
	}
	second.Unlock()

	if _, err := os.Stat(first.Path()); !os.IsNotExist(err) {
		t.Error("lock file should be removed on Unlock")
	}
}

func TestFileLockUnlockWithoutLock(t *testing.T) {
	l := NewFileLock(filepath.Join(t.TempDir(), "x"))
	if err := l.Unlock(); err != nil {
		t.Errorf("Unlock() without Lock error = %v", err)
	}
}
