package lockfile

import (
	"path/filepath"
	"testing"
)

func TestAcquireThenRelease(t *testing.T) {
	dir := t.TempDir()
	lock, err := Acquire(dir, filepath.Join(dir, "db"), "1.0.0")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
}

func TestAcquireTwiceFromSameProcessFails(t *testing.T) {
	dir := t.TempDir()
	first, err := Acquire(dir, filepath.Join(dir, "db"), "1.0.0")
	if err != nil {
		t.Fatalf("first Acquire: %v", err)
	}
	defer first.Release()

	if _, err := Acquire(dir, filepath.Join(dir, "db"), "1.0.0"); err == nil {
		t.Fatal("expected second Acquire to fail while first lock is held")
	} else if !IsLocked(err) {
		t.Fatalf("expected IsLocked(err) to be true, got %v", err)
	}
}

func TestAcquireAfterReleaseSucceeds(t *testing.T) {
	dir := t.TempDir()
	first, err := Acquire(dir, filepath.Join(dir, "db"), "1.0.0")
	if err != nil {
		t.Fatalf("first Acquire: %v", err)
	}
	if err := first.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}

	second, err := Acquire(dir, filepath.Join(dir, "db"), "1.0.0")
	if err != nil {
		t.Fatalf("second Acquire: %v", err)
	}
	defer second.Release()
}

func TestReadLockInfoAfterAcquire(t *testing.T) {
	dir := t.TempDir()
	lock, err := Acquire(dir, "mydb", "2.3.4")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer lock.Release()

	info, err := ReadLockInfo(dir)
	if err != nil {
		t.Fatalf("ReadLockInfo: %v", err)
	}
	if info.Database != "mydb" || info.Version != "2.3.4" {
		t.Fatalf("unexpected lock info: %+v", info)
	}
	if !IsHeldByLiveProcess(info) {
		t.Fatal("expected current process's own lock to be reported as live")
	}
}

func TestReadLockInfoMissingIsError(t *testing.T) {
	dir := t.TempDir()
	if _, err := ReadLockInfo(dir); err == nil {
		t.Fatal("expected error reading lock info before Acquire")
	}
}
