package utils

import (
	"os"
	"path/filepath"
	"testing"
)

func touch(t *testing.T, path string) {
	t.Helper()
	if err := MakeDir(filepath.Dir(path)); err != nil {
		t.Fatalf("Failed to create dir: %v", err)
	}
	if err := os.WriteFile(path, nil, 0644); err != nil {
		t.Fatalf("Failed to create %s: %v", path, err)
	}
}

func TestFindAudioFiles(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "b.mp3"))
	touch(t, filepath.Join(root, "a.WAV"))
	touch(t, filepath.Join(root, "notes.txt"))
	touch(t, filepath.Join(root, "album", "c.flac"))
	touch(t, filepath.Join(root, ".cache", "d.wav"))

	files, err := FindAudioFiles(root)
	if err != nil {
		t.Fatalf("FindAudioFiles failed: %v", err)
	}

	want := []string{
		filepath.Join(root, "a.WAV"),
		filepath.Join(root, "album", "c.flac"),
		filepath.Join(root, "b.mp3"),
	}
	if len(files) != len(want) {
		t.Fatalf("Expected %d files, got %d: %v", len(want), len(files), files)
	}
	for i := range want {
		if files[i] != want[i] {
			t.Errorf("File %d: expected %s, got %s", i, want[i], files[i])
		}
	}
}

func TestFindAudioFilesMissingRoot(t *testing.T) {
	if _, err := FindAudioFiles(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Error("Expected an error for a missing root")
	}
}

func TestMoveFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.wav")
	dst := filepath.Join(dir, "dst.wav")
	touch(t, src)

	if err := MoveFile(src, dst); err != nil {
		t.Fatalf("MoveFile failed: %v", err)
	}
	if _, err := os.Stat(dst); err != nil {
		t.Errorf("Expected destination to exist: %v", err)
	}
	if err := DeleteFile(dst); err != nil {
		t.Errorf("DeleteFile failed: %v", err)
	}
}
